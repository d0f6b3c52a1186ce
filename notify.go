// notify.go: fsnotify-backed File Feed producer
//
// NotifyWatcher reports the same created/modified/deleted events as
// FilePoller without polling. fsnotify watches directories, so for every
// wanted file the nearest existing ancestor directory is watched; when a
// missing directory appears the watch moves down and the new directory is
// rescanned for wanted files that were created with it.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/agilira/go-errors"
	"github.com/fsnotify/fsnotify"
)

// NotifyStats are the counters of a NotifyWatcher.
type NotifyStats struct {
	WantedFiles  int   `json:"wanted_files"`
	WatchedDirs  int   `json:"watched_dirs"`
	Events       int64 `json:"events"`
	Errors       int64 `json:"errors"`
	IgnoredNoise int64 `json:"ignored"`
}

// NotifyWatcher publishes FileEvents from operating system notifications.
// It always observes the real filesystem, whatever Config.Fs is.
type NotifyWatcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	feed    *FileFeed
	config  Config
	audit   *AuditLogger

	// wanted maps each watched file to its last known existence
	wanted map[string]bool
	dirs   map[string]bool

	running  atomic.Bool
	stopped  atomic.Bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup

	events  atomic.Int64
	errs    atomic.Int64
	ignored atomic.Int64
}

// NewNotifyWatcher creates a watcher publishing on feed.
func NewNotifyWatcher(feed *FileFeed, config Config) (*NotifyWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "failed to create fsnotify watcher")
	}
	return &NotifyWatcher{
		watcher: fsw,
		feed:    feed,
		config:  *config.WithDefaults(),
		wanted:  make(map[string]bool),
		dirs:    make(map[string]bool),
		closeCh: make(chan struct{}),
	}, nil
}

func (w *NotifyWatcher) withAudit(audit *AuditLogger) *NotifyWatcher {
	w.audit = audit
	return w
}

// Watch adds a file path, which does not have to exist yet.
func (w *NotifyWatcher) Watch(path string) error {
	if err := ValidateSecurePath(path); err != nil {
		w.audit.LogSecurityEvent("path_rejected", "Rejected unsafe watch path",
			map[string]interface{}{"path": path, "reason": err.Error()})
		return errors.Wrap(err, ErrCodeUnsafePath, "invalid or unsafe watch path").
			WithContext("path", path)
	}
	abs := absPath(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped.Load() {
		return errors.New(ErrCodeWatcherStopped, "watcher has been stopped")
	}
	if _, ok := w.wanted[abs]; ok {
		return nil
	}
	if len(w.wanted) >= w.config.MaxWatchedFiles {
		w.audit.LogSecurityEvent("watch_limit_exceeded", "Maximum watched files exceeded",
			map[string]interface{}{"path": abs, "max_files": w.config.MaxWatchedFiles})
		return errors.New(ErrCodeWatchLimit, "maximum watched files exceeded").
			WithContext("max_files", w.config.MaxWatchedFiles)
	}

	if err := w.armLocked(abs); err != nil {
		return err
	}
	w.wanted[abs] = isRegularFile(abs)
	return nil
}

// Unwatch removes a file path and releases directory watches nothing needs.
func (w *NotifyWatcher) Unwatch(path string) error {
	abs := absPath(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.wanted[abs]; !ok {
		return nil
	}
	delete(w.wanted, abs)
	w.pruneLocked()
	return nil
}

// WatchedFiles returns the number of wanted files.
func (w *NotifyWatcher) WatchedFiles() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.wanted)
}

// Start begins processing notifications.
func (w *NotifyWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped.Load() {
		return errors.New(ErrCodeWatcherStopped, "watcher has been stopped")
	}
	if !w.running.CompareAndSwap(false, true) {
		return errors.New(ErrCodeWatcherBusy, "watcher is already running")
	}
	w.closedWg.Add(1)
	go w.processLoop()
	return nil
}

// Stop ends processing and releases the fsnotify watcher, also when it was
// never started. A stopped NotifyWatcher cannot be restarted.
func (w *NotifyWatcher) Stop() error {
	if !w.stopped.CompareAndSwap(false, true) {
		return errors.New(ErrCodeWatcherStopped, "watcher is not running")
	}
	if w.running.CompareAndSwap(true, false) {
		close(w.closeCh)
		w.closedWg.Wait()
	}
	return w.watcher.Close()
}

// Stats returns the watcher counters.
func (w *NotifyWatcher) Stats() NotifyStats {
	w.mu.Lock()
	wanted, dirs := len(w.wanted), len(w.dirs)
	w.mu.Unlock()
	return NotifyStats{
		WantedFiles:  wanted,
		WatchedDirs:  dirs,
		Events:       w.events.Load(),
		Errors:       w.errs.Load(),
		IgnoredNoise: w.ignored.Load(),
	}
}

func (w *NotifyWatcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			for _, out := range w.handle(ev) {
				w.feed.Publish(out)
				w.events.Add(1)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.errs.Add(1)
			if w.config.ErrorHandler != nil {
				w.config.ErrorHandler(errors.Wrap(err, ErrCodeIOError, "file notification error"), "")
			}
		}
	}
}

// handle translates one notification into zero or more FileEvents. The
// events are published by the caller, outside the lock.
func (w *NotifyWatcher) handle(ev fsnotify.Event) []FileEvent {
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	var out []FileEvent

	gone := ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)

	if ev.Has(fsnotify.Create) && isDir(path) {
		out = append(out, w.rescanLocked(path)...)
	}
	if gone && w.dirs[path] {
		out = append(out, w.dirGoneLocked(path)...)
	}

	existed, ok := w.wanted[path]
	if !ok {
		if len(out) == 0 {
			w.ignored.Add(1)
		}
		return out
	}

	switch {
	case gone:
		if existed && !isRegularFile(path) {
			w.wanted[path] = false
			out = append(out, FileEvent{Path: path, Kind: FileDeleted})
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if fe, exists := statEvent(path, existed); exists {
			w.wanted[path] = true
			out = append(out, fe)
		}
	default:
		// Chmod alone does not change content
		w.ignored.Add(1)
	}
	return out
}

// rescanLocked handles a created directory: wanted files below it get
// their watch moved down, and files that already exist are reported.
func (w *NotifyWatcher) rescanLocked(dir string) []FileEvent {
	var out []FileEvent
	for path, existed := range w.wanted {
		if !underRoot(path, dir) {
			continue
		}
		if err := w.armLocked(path); err != nil {
			w.errs.Add(1)
			continue
		}
		if fe, exists := statEvent(path, existed); exists && !existed {
			w.wanted[path] = true
			out = append(out, fe)
		}
	}
	return out
}

// dirGoneLocked handles a removed or renamed watched directory.
func (w *NotifyWatcher) dirGoneLocked(dir string) []FileEvent {
	_ = w.watcher.Remove(dir)
	delete(w.dirs, dir)

	var out []FileEvent
	for path, existed := range w.wanted {
		if !underRoot(path, dir) {
			continue
		}
		if existed && !isRegularFile(path) {
			w.wanted[path] = false
			out = append(out, FileEvent{Path: path, Kind: FileDeleted})
		}
		if err := w.armLocked(path); err != nil {
			w.errs.Add(1)
		}
	}
	return out
}

// armLocked watches the nearest existing ancestor directory of path.
func (w *NotifyWatcher) armLocked(path string) error {
	dir := nearestDir(filepath.Dir(path))
	if w.dirs[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "failed to watch directory").
			WithContext("dir", dir)
	}
	w.dirs[dir] = true
	return nil
}

// pruneLocked removes directory watches no wanted file depends on.
func (w *NotifyWatcher) pruneLocked() {
	needed := make(map[string]bool, len(w.dirs))
	for path := range w.wanted {
		needed[nearestDir(filepath.Dir(path))] = true
	}
	for dir := range w.dirs {
		if !needed[dir] {
			_ = w.watcher.Remove(dir)
			delete(w.dirs, dir)
		}
	}
}

// nearestDir walks up from dir to the first existing directory.
func nearestDir(dir string) string {
	for {
		if isDir(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// statEvent builds the created/modified event for path if it is a regular file.
func statEvent(path string, existed bool) (FileEvent, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return FileEvent{}, false
	}
	kind := FileCreated
	if existed {
		kind = FileModified
	}
	return FileEvent{Path: path, Kind: kind, ModTime: info.ModTime(), Size: info.Size()}, true
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
