// snapshot.go: Immutable per-project index snapshots
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"sort"
	"strings"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// Snapshot is the ordered set of property entries of one project at one
// point in time. It is never modified after construction; a rebuild produces
// a new Snapshot. Callers must not hold on to it beyond their own request.
type Snapshot struct {
	id         string
	project    ProjectID
	generation uint64
	roots      []string
	resources  []Resource
	versions   map[string]string
	builtAt    time.Time
	entries    []PropertyEntry
}

// newSnapshot takes ownership of entries and sorts them by id.
func newSnapshot(project ProjectID, generation uint64, roots []string, resources []Resource, versions map[string]string, entries []PropertyEntry) *Snapshot {
	sortEntries(entries)
	if versions == nil {
		versions = map[string]string{}
	}
	return &Snapshot{
		id:         uuid.NewString(),
		project:    project,
		generation: generation,
		roots:      append([]string(nil), roots...),
		resources:  resources,
		versions:   versions,
		builtAt:    timecache.CachedTime(),
		entries:    entries,
	}
}

// emptySnapshot is returned when nothing can be indexed, e.g. when a
// document does not belong to any known project.
func emptySnapshot(project ProjectID) *Snapshot {
	return newSnapshot(project, 0, nil, nil, nil, []PropertyEntry{})
}

// ID is unique per build.
func (s *Snapshot) ID() string { return s.id }

// Project returns the owning project.
func (s *Snapshot) Project() ProjectID { return s.project }

// Generation is the classpath generation the snapshot was built against.
func (s *Snapshot) Generation() uint64 { return s.generation }

// BuiltAt returns the (cached) wall-clock time of the build.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Roots returns a copy of the source roots the snapshot was built from.
func (s *Snapshot) Roots() []string { return append([]string(nil), s.roots...) }

// Resources returns a copy of the located resources, in priority order.
func (s *Snapshot) Resources() []Resource { return append([]Resource(nil), s.resources...) }

// Version returns the content fingerprint (hex SHA-256) of a resource.
func (s *Snapshot) Version(path string) (string, bool) {
	v, ok := s.versions[path]
	return v, ok
}

// Versions returns a copy of every resource fingerprint keyed by path.
func (s *Snapshot) Versions() map[string]string {
	out := make(map[string]string, len(s.versions))
	for k, v := range s.versions {
		out[k] = v
	}
	return out
}

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// IsEmpty reports whether the snapshot has no entries.
func (s *Snapshot) IsEmpty() bool { return len(s.entries) == 0 }

// At returns the i-th entry in id order.
func (s *Snapshot) At(i int) PropertyEntry { return s.entries[i] }

// Entries returns a copy of all entries in id order.
func (s *Snapshot) Entries() []PropertyEntry {
	return append([]PropertyEntry(nil), s.entries...)
}

// IDs returns the entry ids in order, duplicates included.
func (s *Snapshot) IDs() []string {
	ids := make([]string, len(s.entries))
	for i, e := range s.entries {
		ids[i] = e.ID
	}
	return ids
}

// Lookup returns every entry declared with exactly id, in discovery order.
func (s *Snapshot) Lookup(id string) []PropertyEntry {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].ID >= id })
	var out []PropertyEntry
	for ; i < len(s.entries) && s.entries[i].ID == id; i++ {
		out = append(out, s.entries[i])
	}
	return out
}

// Has reports whether at least one entry is declared with id.
func (s *Snapshot) Has(id string) bool {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].ID >= id })
	return i < len(s.entries) && s.entries[i].ID == id
}

// WithPrefix returns the entries whose id starts with prefix.
func (s *Snapshot) WithPrefix(prefix string) []PropertyEntry {
	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].ID >= prefix })
	var out []PropertyEntry
	for ; i < len(s.entries) && strings.HasPrefix(s.entries[i].ID, prefix); i++ {
		out = append(out, s.entries[i])
	}
	return out
}

// SameEntries reports whether two snapshots hold the same entry multiset in
// the same order.
func (s *Snapshot) SameEntries(other *Snapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.entries) != len(other.entries) {
		return false
	}
	for i := range s.entries {
		if !s.entries[i].Equal(other.entries[i]) {
			return false
		}
	}
	return true
}
