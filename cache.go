// cache.go: Project-keyed index cache with lazy rebuild
//
// Each project entry is in one of three states:
//
//	Absent -> Valid   first successful build during a query
//	Valid  -> Stale   classpath event for the project, or a file event under
//	                  one of the roots the snapshot was built from
//	Stale  -> Valid   next query rebuilds
//
// Invalidation is O(1): it bumps the entry epoch. A stored snapshot is valid
// only while its build epoch equals the entry epoch. Rebuilds are serialized
// per project, so concurrent readers of a stale project share one build.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/agilira/go-errors"
)

// CacheState is the per-project cache state.
type CacheState int

const (
	StateAbsent CacheState = iota
	StateValid
	StateStale
)

func (s CacheState) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateValid:
		return "valid"
	case StateStale:
		return "stale"
	default:
		return "unknown"
	}
}

// CacheStats are monotonically increasing counters.
type CacheStats struct {
	Projects      int    `json:"projects"`
	Builds        uint64 `json:"builds"`
	Hits          uint64 `json:"hits"`
	Invalidations uint64 `json:"invalidations"`
	Removals      uint64 `json:"removals"`
}

// storedSnapshot pairs a snapshot with the epoch it was built at.
type storedSnapshot struct {
	snap  *Snapshot
	epoch uint64
}

// cacheEntry is the state of one project.
type cacheEntry struct {
	id         ProjectID
	epoch      atomic.Uint64
	generation atomic.Uint64
	current    atomic.Pointer[storedSnapshot]
	buildMu    sync.Mutex
	// building holds the roots of the build in progress, if any
	building atomic.Pointer[[]string]
}

// IndexCache holds at most one snapshot per project and keeps it consistent
// with the classpath and file feeds.
type IndexCache struct {
	builder *Builder
	warn    ErrorHandler
	audit   *AuditLogger

	mu      sync.RWMutex
	entries map[ProjectID]*cacheEntry

	classpath *Subscription[ClasspathEvent]
	files     *Subscription[FileEvent]
	drains    sync.WaitGroup
	closed    atomic.Bool

	builds        atomic.Uint64
	hits          atomic.Uint64
	invalidations atomic.Uint64
	removals      atomic.Uint64
}

// NewIndexCache creates a cache and subscribes it to the given feeds.
//
// Either feed may be nil. Without a classpath feed the root list passed to
// Get is compared with the one the snapshot was built from. Without a file
// feed every Get rebuilds, trading speed for never serving stale content.
func NewIndexCache(builder *Builder, classpath *ClasspathFeed, files *FileFeed, config Config) *IndexCache {
	cfg := config.WithDefaults()
	c := &IndexCache{
		builder: builder,
		warn:    cfg.ErrorHandler,
		entries: make(map[ProjectID]*cacheEntry),
	}

	if classpath != nil {
		c.classpath = classpath.Subscribe(cfg.FeedBuffer)
		c.drains.Add(1)
		go drain(c, c.classpath, c.onClasspath)
	}
	if files != nil {
		c.files = files.Subscribe(cfg.FeedBuffer)
		c.drains.Add(1)
		go drain(c, c.files, c.onFile)
	}

	return c
}

// withAudit attaches an audit logger for lifecycle events.
func (c *IndexCache) withAudit(audit *AuditLogger) *IndexCache {
	c.audit = audit
	return c
}

// drain applies every delivery of sub to handle and acknowledges it, even
// when handle panics.
func drain[E any](c *IndexCache, sub *Subscription[E], handle func(E)) {
	defer c.drains.Done()
	for d := range sub.Events() {
		c.apply(func() { handle(d.Event) })
		sub.Ack(d.Seq)
	}
}

// apply runs one invalidation with panic recovery.
func (c *IndexCache) apply(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.audit.Log(AuditCritical, "invalidation_panic", "", "",
				map[string]interface{}{"panic": fmt.Sprint(r)})
			if c.warn != nil {
				c.warn(errors.New(ErrCodeInvalidation, "panic while applying invalidation").
					WithContext("panic", fmt.Sprint(r)), "")
			}
		}
	}()
	fn()
}

// sync waits until every event published so far has been applied, so a
// query never misses an invalidation that happened before it started.
func (c *IndexCache) sync() {
	if c.classpath != nil {
		c.classpath.Sync()
	}
	if c.files != nil {
		c.files.Sync()
	}
}

func (c *IndexCache) lookup(id ProjectID) *cacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[id]
}

func (c *IndexCache) lookupOrCreate(id ProjectID) *cacheEntry {
	if e := c.lookup(id); e != nil {
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		return e
	}
	e := &cacheEntry{id: id}
	c.entries[id] = e
	return e
}

// valid returns the stored snapshot if it may be served for p.
func (c *IndexCache) valid(e *cacheEntry, p Project) *Snapshot {
	if c.files == nil {
		return nil
	}
	cur := e.current.Load()
	if cur == nil || cur.epoch != e.epoch.Load() {
		return nil
	}
	if !sameRoots(cur.snap.roots, cleanRoots(p.Roots)) {
		return nil
	}
	return cur.snap
}

// Get returns the current snapshot of p, building it if the project is
// Absent or Stale. It never returns nil.
func (c *IndexCache) Get(p Project) *Snapshot {
	c.sync()

	e := c.lookupOrCreate(p.ID)
	if snap := c.valid(e, p); snap != nil {
		c.hits.Add(1)
		return snap
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	// Another reader may have rebuilt while we waited
	if snap := c.valid(e, p); snap != nil {
		c.hits.Add(1)
		return snap
	}

	// Publish the roots, then read the epoch before building: an invalidation
	// that lands during the build leaves the stored result stale for the next
	// reader.
	p.Roots = cleanRoots(p.Roots)
	e.building.Store(&p.Roots)
	epoch := e.epoch.Load()
	generation := e.generation.Load()
	snap := c.builder.BuildGeneration(p, generation)
	e.current.Store(&storedSnapshot{snap: snap, epoch: epoch})
	e.building.Store(nil)
	c.builds.Add(1)

	c.audit.LogBuild(snap)

	return snap
}

// State reports the cache state of a project once every published event has
// been applied.
func (c *IndexCache) State(id ProjectID) CacheState {
	c.sync()
	e := c.lookup(id)
	if e == nil {
		return StateAbsent
	}
	cur := e.current.Load()
	if cur == nil {
		return StateAbsent
	}
	if c.files == nil || cur.epoch != e.epoch.Load() {
		return StateStale
	}
	return StateValid
}

// Invalidate marks a project Stale. Unknown or Absent projects are left alone.
func (c *IndexCache) Invalidate(id ProjectID) {
	if e := c.lookup(id); e != nil {
		c.invalidate(e, "manual")
	}
}

func (c *IndexCache) invalidate(e *cacheEntry, reason string) {
	e.epoch.Add(1)
	c.invalidations.Add(1)
	c.audit.Log(AuditInfo, "index_invalidated", e.id, "",
		map[string]interface{}{"reason": reason})
}

// Remove drops a project's entry. The next query for the same id starts
// from Absent.
func (c *IndexCache) Remove(id ProjectID) {
	c.mu.Lock()
	e, ok := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()

	if !ok {
		return
	}
	// A build still running on the detached entry cannot be served again
	e.epoch.Add(1)
	c.removals.Add(1)
	c.audit.Log(AuditInfo, "project_removed", id, "", nil)
}

func (c *IndexCache) onClasspath(ev ClasspathEvent) {
	switch ev.Kind {
	case ClasspathRemoved:
		c.Remove(ev.Project)
	default:
		if e := c.lookup(ev.Project); e != nil {
			e.generation.Add(1)
			c.invalidate(e, "classpath_changed")
		}
	}
}

func (c *IndexCache) onFile(ev FileEvent) {
	c.mu.RLock()
	entries := make([]*cacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	for _, e := range entries {
		if affected(e, ev.Path) {
			c.invalidate(e, "file_"+ev.Kind.String())
		}
	}
}

// affected reports whether a change to path concerns the valid snapshot of e
// or the build running for it.
func affected(e *cacheEntry, path string) bool {
	if roots := e.building.Load(); roots != nil && underAny(path, *roots) {
		return true
	}
	cur := e.current.Load()
	if cur == nil || cur.epoch != e.epoch.Load() {
		// Absent or already stale
		return false
	}
	return underAny(path, cur.snap.roots)
}

func underAny(path string, roots []string) bool {
	for _, root := range roots {
		if underRoot(path, root) {
			return true
		}
	}
	return false
}

// Stats returns a point-in-time copy of the cache counters.
func (c *IndexCache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{
		Projects:      n,
		Builds:        c.builds.Load(),
		Hits:          c.hits.Load(),
		Invalidations: c.invalidations.Load(),
		Removals:      c.removals.Load(),
	}
}

// Close unsubscribes from both feeds and waits for the drain goroutines.
func (c *IndexCache) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.classpath != nil {
		c.classpath.Close()
	}
	if c.files != nil {
		c.files.Close()
	}
	c.drains.Wait()
}
