// poller.go: Stat-polling File Feed producer
//
// FilePoller watches individual paths, including paths that do not exist
// yet, and publishes created/modified/deleted events on a FileFeed. Stat
// results are cached for CacheTTL in a lock-free copy-on-write map, so
// several polls within the TTL cost one stat per path.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// FileWatcher is a File Feed producer.
type FileWatcher interface {
	Watch(path string) error
	Unwatch(path string) error
	Start() error
	Stop() error
	WatchedFiles() int
}

// fileStat is a cached stat result. Value type, copied in and out of the cache.
type fileStat struct {
	modTime  time.Time
	size     int64
	exists   bool
	cachedAt int64 // timecache nanos
}

func (fs *fileStat) isExpired(ttl time.Duration) bool {
	return timecache.CachedTimeNano()-fs.cachedAt > int64(ttl)
}

// watchedFile is a path under observation with its last known state.
type watchedFile struct {
	path     string
	lastStat fileStat
}

// pollConcurrency bounds parallel stats per poll.
const pollConcurrency = 8

// FilePoller publishes FileEvents for watched paths by polling.
type FilePoller struct {
	config  Config
	fs      afero.Fs
	feed    *FileFeed
	files   map[string]*watchedFile
	filesMu sync.RWMutex

	statCache atomic.Pointer[map[string]fileStat]

	// pollMu serializes polls so lastStat has a single writer
	pollMu sync.Mutex

	audit *AuditLogger

	running   atomic.Bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewFilePoller creates a poller publishing on feed, stat-ing through
// config.Fs.
func NewFilePoller(feed *FileFeed, config Config) *FilePoller {
	cfg := config.WithDefaults()
	p := &FilePoller{
		config: *cfg,
		fs:     cfg.Fs,
		feed:   feed,
		files:  make(map[string]*watchedFile),
	}
	empty := make(map[string]fileStat)
	p.statCache.Store(&empty)
	return p
}

// withAudit attaches an audit logger for rejected paths and limit hits.
func (p *FilePoller) withAudit(audit *AuditLogger) *FilePoller {
	p.audit = audit
	return p
}

// Watch adds a path. The path does not have to exist; its creation is
// reported as FileCreated. Watching a path twice is a no-op.
func (p *FilePoller) Watch(path string) error {
	if err := ValidateSecurePath(path); err != nil {
		p.audit.LogSecurityEvent("path_rejected", "Rejected unsafe watch path",
			map[string]interface{}{"path": path, "reason": err.Error()})
		return errors.Wrap(err, ErrCodeUnsafePath, "invalid or unsafe watch path").
			WithContext("path", path)
	}
	abs := absPath(path)

	p.filesMu.Lock()
	defer p.filesMu.Unlock()

	if _, ok := p.files[abs]; ok {
		return nil
	}
	if len(p.files) >= p.config.MaxWatchedFiles {
		p.audit.LogSecurityEvent("watch_limit_exceeded", "Maximum watched files exceeded",
			map[string]interface{}{
				"path":          abs,
				"max_files":     p.config.MaxWatchedFiles,
				"current_files": len(p.files),
			})
		return errors.New(ErrCodeWatchLimit, "maximum watched files exceeded").
			WithContext("max_files", p.config.MaxWatchedFiles).
			WithContext("current_files", len(p.files))
	}

	initial, err := p.getStat(abs)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, ErrCodeIOError, "failed to stat file").
			WithContext("path", abs)
	}
	p.files[abs] = &watchedFile{path: abs, lastStat: initial}
	return nil
}

// Unwatch removes a path. Unknown paths are ignored.
func (p *FilePoller) Unwatch(path string) error {
	abs := absPath(path)

	p.filesMu.Lock()
	delete(p.files, abs)
	p.filesMu.Unlock()

	p.removeFromCache(abs)
	return nil
}

// WatchedFiles returns the number of watched paths.
func (p *FilePoller) WatchedFiles() int {
	p.filesMu.RLock()
	defer p.filesMu.RUnlock()
	return len(p.files)
}

// Start begins polling every PollInterval.
func (p *FilePoller) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New(ErrCodeWatcherBusy, "poller is already running")
	}
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})
	go p.pollLoop(p.stopCh, p.stoppedCh)
	return nil
}

// Stop stops polling and waits for the loop to exit. The poller can be
// started again.
func (p *FilePoller) Stop() error {
	if !p.running.CompareAndSwap(true, false) {
		return errors.New(ErrCodeWatcherStopped, "poller is not running")
	}
	close(p.stopCh)
	<-p.stoppedCh
	return nil
}

// IsRunning reports whether the poll loop is active.
func (p *FilePoller) IsRunning() bool { return p.running.Load() }

func (p *FilePoller) pollLoop(stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll checks every watched path once and publishes what changed. It
// returns when all resulting events are published.
func (p *FilePoller) Poll() {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	p.filesMu.RLock()
	files := make([]*watchedFile, 0, len(p.files))
	for _, wf := range p.files {
		files = append(files, wf)
	}
	p.filesMu.RUnlock()

	if len(files) == 1 {
		p.checkFile(files[0])
		return
	}

	var g errgroup.Group
	g.SetLimit(pollConcurrency)
	for _, wf := range files {
		g.Go(func() error {
			p.checkFile(wf)
			return nil
		})
	}
	_ = g.Wait()
}

// checkFile compares the current stat with the last known one.
func (p *FilePoller) checkFile(wf *watchedFile) {
	current, err := p.getStat(wf.path)
	if err != nil {
		if os.IsNotExist(err) {
			if wf.lastStat.exists {
				p.feed.Publish(FileEvent{Path: wf.path, Kind: FileDeleted})
			}
			wf.lastStat = current
		} else if p.config.ErrorHandler != nil {
			p.config.ErrorHandler(errors.Wrap(err, ErrCodeIOError, "failed to stat file").
				WithContext("path", wf.path), wf.path)
		}
		return
	}

	switch {
	case !wf.lastStat.exists:
		p.feed.Publish(FileEvent{Path: wf.path, Kind: FileCreated, ModTime: current.modTime, Size: current.size})
	case !current.modTime.Equal(wf.lastStat.modTime) || current.size != wf.lastStat.size:
		p.feed.Publish(FileEvent{Path: wf.path, Kind: FileModified, ModTime: current.modTime, Size: current.size})
	}
	wf.lastStat = current
}

// getStat returns a cached stat or stats through the filesystem.
func (p *FilePoller) getStat(path string) (fileStat, error) {
	cacheMap := *p.statCache.Load()
	if cached, ok := cacheMap[path]; ok && !cached.isExpired(p.config.CacheTTL) {
		if !cached.exists {
			return cached, os.ErrNotExist
		}
		return cached, nil
	}

	info, err := p.fs.Stat(path)
	stat := fileStat{
		cachedAt: timecache.CachedTimeNano(),
		exists:   err == nil,
	}
	if err == nil {
		if info.IsDir() {
			// A directory where a resource is expected counts as absent
			stat.exists = false
			err = os.ErrNotExist
		} else {
			stat.modTime = info.ModTime()
			stat.size = info.Size()
		}
	}

	if err == nil || os.IsNotExist(err) {
		p.updateCache(path, stat)
	}
	return stat, err
}

// updateCache stores stat with a copy-on-write swap.
func (p *FilePoller) updateCache(path string, stat fileStat) {
	for {
		oldPtr := p.statCache.Load()
		oldMap := *oldPtr
		newMap := make(map[string]fileStat, len(oldMap)+1)
		for k, v := range oldMap {
			newMap[k] = v
		}
		newMap[path] = stat
		if p.statCache.CompareAndSwap(oldPtr, &newMap) {
			return
		}
	}
}

func (p *FilePoller) removeFromCache(path string) {
	for {
		oldPtr := p.statCache.Load()
		oldMap := *oldPtr
		if _, ok := oldMap[path]; !ok {
			return
		}
		newMap := make(map[string]fileStat, len(oldMap)-1)
		for k, v := range oldMap {
			if k != path {
				newMap[k] = v
			}
		}
		if p.statCache.CompareAndSwap(oldPtr, &newMap) {
			return
		}
	}
}

// ClearCache drops every cached stat so the next poll sees the filesystem.
func (p *FilePoller) ClearCache() {
	empty := make(map[string]fileStat)
	p.statCache.Store(&empty)
}

// StatCacheStats describes the poller's stat cache.
type StatCacheStats struct {
	Entries   int
	OldestAge time.Duration
	NewestAge time.Duration
}

// GetCacheStats returns the size and age range of the stat cache.
func (p *FilePoller) GetCacheStats() StatCacheStats {
	cacheMap := *p.statCache.Load()
	if len(cacheMap) == 0 {
		return StatCacheStats{}
	}

	now := timecache.CachedTimeNano()
	var oldest, newest int64
	first := true
	for _, stat := range cacheMap {
		if first || stat.cachedAt < oldest {
			oldest = stat.cachedAt
		}
		if first || stat.cachedAt > newest {
			newest = stat.cachedAt
		}
		first = false
	}
	return StatCacheStats{
		Entries:   len(cacheMap),
		OldestAge: time.Duration(now - oldest),
		NewestAge: time.Duration(now - newest),
	}
}
