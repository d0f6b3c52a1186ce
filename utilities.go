// utilities.go: LiveProvider, a Provider wired to a Workspace and a file watcher
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"sync"

	"github.com/agilira/go-errors"
)

// LiveProvider is a Provider whose feeds are produced for you: the
// Workspace publishes classpath events, and a FileWatcher observes every
// candidate resource path of every registered project.
//
// Example:
//
//	ws := propindex.NewWorkspace()
//	lp, err := propindex.NewLiveProvider(ws, propindex.Config{FileWatch: propindex.FileWatchNotify})
//	if err != nil {
//	    return err
//	}
//	defer lp.Close()
//	_ = ws.AddProject("api", "/src/api", "/src/api/src/main/resources")
//	snap := lp.GetIndex(propindex.DocumentURI("/src/api/src/main/java/Main.java"))
type LiveProvider struct {
	*Provider

	ws      *Workspace
	files   *FileFeed
	watcher FileWatcher

	registrar *Subscription[ClasspathEvent]
	done      sync.WaitGroup

	mu      sync.Mutex
	watched map[ProjectID][]string
	refs    map[string]int

	closeOnce sync.Once
	closeErr  error
}

// NewLiveProvider creates a provider over ws and starts watching. With
// FileWatchNone there is no file feed and every query rebuilds. When
// fsnotify is unavailable FileWatchNotify falls back to polling.
func NewLiveProvider(ws *Workspace, config Config) (*LiveProvider, error) {
	if ws == nil {
		return nil, errors.New(ErrCodeInvalidConfig, "workspace cannot be nil")
	}
	cfg := config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var files *FileFeed
	if cfg.FileWatch != FileWatchNone {
		files = NewFileFeed()
	}

	provider, err := New(ws, Feeds{Classpath: ws.ClasspathFeed(), Files: files}, *cfg)
	if err != nil {
		return nil, err
	}

	lp := &LiveProvider{
		Provider: provider,
		ws:       ws,
		files:    files,
		watched:  make(map[ProjectID][]string),
		refs:     make(map[string]int),
	}

	switch cfg.FileWatch {
	case FileWatchNotify:
		nw, err := NewNotifyWatcher(files, *cfg)
		if err != nil {
			cfg.ErrorHandler(errors.Wrap(err, ErrCodeIOError, "fsnotify unavailable, polling instead"), "")
			lp.watcher = NewFilePoller(files, *cfg).withAudit(provider.audit)
		} else {
			lp.watcher = nw.withAudit(provider.audit)
		}
	case FileWatchPoll:
		lp.watcher = NewFilePoller(files, *cfg).withAudit(provider.audit)
	}

	// Subscribe before the initial scan so no project registered in between is missed
	lp.registrar = ws.ClasspathFeed().Subscribe(cfg.FeedBuffer)
	for _, p := range ws.Projects() {
		lp.rewatch(p.ID)
	}
	lp.done.Add(1)
	go lp.register()

	if lp.watcher != nil {
		if err := lp.watcher.Start(); err != nil {
			_ = lp.Close()
			return nil, err
		}
	}
	return lp, nil
}

// register keeps the watched path set in line with the workspace.
func (lp *LiveProvider) register() {
	defer lp.done.Done()
	for d := range lp.registrar.Events() {
		lp.rewatch(d.Event.Project)
		lp.registrar.Ack(d.Seq)
	}
}

// rewatch replaces the watched candidates of a project with its current ones.
func (lp *LiveProvider) rewatch(id ProjectID) {
	if lp.watcher == nil {
		return
	}

	var next []string
	if p, ok := lp.ws.Project(id); ok {
		for _, res := range lp.Locator().Candidates(p) {
			next = append(next, res.Path)
		}
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	prev := lp.watched[id]
	for _, path := range next {
		if lp.refs[path] == 0 {
			if err := lp.watcher.Watch(path); err != nil {
				lp.warn(err, path)
				continue
			}
		}
		lp.refs[path]++
	}
	for _, path := range prev {
		if lp.refs[path]--; lp.refs[path] <= 0 {
			delete(lp.refs, path)
			_ = lp.watcher.Unwatch(path)
		}
	}

	kept := next[:0]
	for _, path := range next {
		if lp.refs[path] > 0 {
			kept = append(kept, path)
		}
	}
	if len(kept) == 0 {
		delete(lp.watched, id)
	} else {
		lp.watched[id] = kept
	}
}

// Watcher returns the file watcher, or nil with FileWatchNone.
func (lp *LiveProvider) Watcher() FileWatcher { return lp.watcher }

// Refresh waits until the watched path set reflects every workspace change,
// then runs a synchronous poll when the watcher polls, so changes made
// before the call are visible to the next query.
func (lp *LiveProvider) Refresh() {
	lp.registrar.Sync()
	if poller, ok := lp.watcher.(*FilePoller); ok {
		poller.ClearCache()
		poller.Poll()
	}
}

// WatchedPaths returns the number of distinct paths being watched.
func (lp *LiveProvider) WatchedPaths() int {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return len(lp.refs)
}

// Close stops watching, then closes the provider. The Workspace is left
// open. Safe to call more than once.
func (lp *LiveProvider) Close() error {
	lp.closeOnce.Do(func() {
		lp.registrar.Close()
		lp.done.Wait()

		if lp.watcher != nil {
			if err := lp.watcher.Stop(); err != nil && !isWatcherStopped(err) {
				lp.closeErr = err
			}
		}
		if lp.files != nil {
			lp.files.Close()
		}
		if err := lp.Provider.Close(); err != nil && lp.closeErr == nil {
			lp.closeErr = err
		}
	})
	return lp.closeErr
}

func isWatcherStopped(err error) bool {
	coder, ok := err.(errors.ErrorCoder)
	return ok && string(coder.ErrorCode()) == ErrCodeWatcherStopped
}
