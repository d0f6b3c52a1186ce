// workspace.go: In-memory project registry and classpath feed producer
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agilira/go-errors"
)

// ProjectID identifies a project; it is the cache key.
type ProjectID string

// Project is a value snapshot of a project's identity and source roots.
type Project struct {
	ID    ProjectID `json:"id"`
	Dir   string    `json:"dir,omitempty"`
	Roots []string  `json:"roots"`
}

// Document is anything that can be resolved to a project, typically an
// open editor buffer identified by a file path or file:// URI.
type Document interface {
	URI() string
}

// DocumentURI is the simplest Document: a path or file:// URI.
type DocumentURI string

// URI implements Document.
func (d DocumentURI) URI() string { return string(d) }

// ProjectResolver is the host-side collaborator that maps documents to
// projects and reports their current source roots.
type ProjectResolver interface {
	Resolve(doc Document) (Project, bool)
}

// ResolverFunc adapts a function to ProjectResolver.
type ResolverFunc func(doc Document) (Project, bool)

// Resolve implements ProjectResolver.
func (f ResolverFunc) Resolve(doc Document) (Project, bool) { return f(doc) }

// documentPath turns a document URI into a cleaned filesystem path.
func documentPath(doc Document) string {
	if doc == nil {
		return ""
	}
	raw := doc.URI()
	if strings.HasPrefix(raw, "file:") {
		if u, err := url.Parse(raw); err == nil && u.Path != "" {
			raw = u.Path
		}
	}
	if raw == "" {
		return ""
	}
	return absPath(raw)
}

// Workspace is a thread-safe registry of projects. Every change to a
// project's root set is published on its ClasspathFeed.
type Workspace struct {
	mu       sync.RWMutex
	projects map[ProjectID]*Project
	feed     *ClasspathFeed
}

// NewWorkspace creates an empty workspace with its own classpath feed.
func NewWorkspace() *Workspace {
	return &Workspace{
		projects: make(map[ProjectID]*Project),
		feed:     NewClasspathFeed(),
	}
}

// ClasspathFeed returns the feed carrying this workspace's root changes.
func (w *Workspace) ClasspathFeed() *ClasspathFeed { return w.feed }

// cleanRoots drops empty roots and makes the rest absolute, so they compare
// equal to the absolute paths carried by file events.
func cleanRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if r == "" {
			continue
		}
		out = append(out, absPath(r))
	}
	return out
}

// absPath is filepath.Abs falling back to filepath.Clean.
func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// AddProject registers a project. dir is the project directory used to
// resolve documents; roots are its source roots in priority order.
func (w *Workspace) AddProject(id ProjectID, dir string, roots ...string) error {
	if id == "" {
		return errors.New(ErrCodeInvalidConfig, "project id cannot be empty")
	}

	w.mu.Lock()
	if _, exists := w.projects[id]; exists {
		w.mu.Unlock()
		return errors.New(ErrCodeInvalidConfig, "project already registered").
			WithContext("project", string(id))
	}
	p := &Project{ID: id, Roots: cleanRoots(roots)}
	if dir != "" {
		p.Dir = absPath(dir)
	}
	w.projects[id] = p
	w.mu.Unlock()

	w.feed.Publish(ClasspathEvent{Project: id, Kind: ClasspathChanged})
	return nil
}

// SetSourceRoots replaces the root list of a project.
func (w *Workspace) SetSourceRoots(id ProjectID, roots ...string) error {
	return w.updateRoots(id, func(_ []string) []string { return cleanRoots(roots) })
}

// AddSourceRoot appends a root (lowest priority) unless already present.
func (w *Workspace) AddSourceRoot(id ProjectID, root string) error {
	root = absPath(root)
	return w.updateRoots(id, func(current []string) []string {
		for _, r := range current {
			if r == root {
				return current
			}
		}
		return append(current, root)
	})
}

// RemoveSourceRoot drops a root from a project.
func (w *Workspace) RemoveSourceRoot(id ProjectID, root string) error {
	root = absPath(root)
	return w.updateRoots(id, func(current []string) []string {
		out := current[:0]
		for _, r := range current {
			if r != root {
				out = append(out, r)
			}
		}
		return out
	})
}

// updateRoots applies fn under the lock and publishes a change when the
// root list actually differs.
func (w *Workspace) updateRoots(id ProjectID, fn func([]string) []string) error {
	w.mu.Lock()
	p, ok := w.projects[id]
	if !ok {
		w.mu.Unlock()
		return errors.New(ErrCodeProjectNotFound, "unknown project").
			WithContext("project", string(id))
	}
	before := append([]string(nil), p.Roots...)
	after := fn(append([]string(nil), p.Roots...))
	p.Roots = after
	w.mu.Unlock()

	if !sameRoots(before, after) {
		w.feed.Publish(ClasspathEvent{Project: id, Kind: ClasspathChanged})
	}
	return nil
}

// RemoveProject unregisters a project and publishes its teardown.
func (w *Workspace) RemoveProject(id ProjectID) error {
	w.mu.Lock()
	if _, ok := w.projects[id]; !ok {
		w.mu.Unlock()
		return errors.New(ErrCodeProjectNotFound, "unknown project").
			WithContext("project", string(id))
	}
	delete(w.projects, id)
	w.mu.Unlock()

	w.feed.Publish(ClasspathEvent{Project: id, Kind: ClasspathRemoved})
	return nil
}

// Project returns a copy of a registered project.
func (w *Workspace) Project(id ProjectID) (Project, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.projects[id]
	if !ok {
		return Project{}, false
	}
	return p.copy(), true
}

// Projects returns copies of every project sorted by id.
func (w *Workspace) Projects() []Project {
	w.mu.RLock()
	out := make([]Project, 0, len(w.projects))
	for _, p := range w.projects {
		out = append(out, p.copy())
	}
	w.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve finds the project owning doc: the project whose directory or
// source root is the longest prefix of the document path.
func (w *Workspace) Resolve(doc Document) (Project, bool) {
	path := documentPath(doc)
	if path == "" {
		return Project{}, false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	var best *Project
	bestLen := -1
	for _, p := range w.projects {
		candidates := append([]string{p.Dir}, p.Roots...)
		for _, c := range candidates {
			if c != "" && underRoot(path, c) && len(c) > bestLen {
				best, bestLen = p, len(c)
			}
		}
	}
	if best == nil {
		return Project{}, false
	}
	return best.copy(), true
}

// Close closes the classpath feed and every subscription on it.
func (w *Workspace) Close() {
	w.feed.Close()
}

func (p *Project) copy() Project {
	return Project{ID: p.ID, Dir: p.Dir, Roots: append([]string(nil), p.Roots...)}
}

// sameRoots compares root lists including order.
func sameRoots(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
