// entry.go: Property entry model for the propindex property index
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"fmt"
	"sort"
)

// SourceLocation points at the place a property was declared.
// Line and Column are 1-based; Offset is a 0-based byte offset into the resource.
type SourceLocation struct {
	Path   string `json:"path"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Offset int    `json:"offset"`
}

// String renders the location as path:line:column for diagnostics
func (l SourceLocation) String() string {
	if l.Line == 0 {
		return l.Path
	}
	return fmt.Sprintf("%s:%d:%d", l.Path, l.Line, l.Column)
}

// PropertyEntry is one discovered configuration key.
//
// Two entries with the same ID coming from different resources are distinct
// values: the index reports shadowing, it does not resolve it.
type PropertyEntry struct {
	// ID is the dotted property path (e.g. "server.port"). Never empty.
	ID string `json:"id"`

	// Location is nil when the parser cannot attribute a position.
	Location *SourceLocation `json:"location,omitempty"`

	// Type is a format-dependent hint ("string", "int", "bool", ...). Optional.
	Type string `json:"type,omitempty"`

	// Description is taken from comments attached to the declaration. Optional.
	Description string `json:"description,omitempty"`

	// Value is the raw textual value as written in the resource.
	Value string `json:"value,omitempty"`
}

// Less orders entries by ID only
func (e PropertyEntry) Less(other PropertyEntry) bool {
	return e.ID < other.ID
}

// Equal reports whether two entries describe the same declaration.
// Location is compared by value.
func (e PropertyEntry) Equal(other PropertyEntry) bool {
	if e.ID != other.ID || e.Type != other.Type || e.Description != other.Description || e.Value != other.Value {
		return false
	}
	if e.Location == nil || other.Location == nil {
		return e.Location == other.Location
	}
	return *e.Location == *other.Location
}

// sortEntries sorts in place by ID. The sort is stable so equal IDs keep
// discovery order (resource priority, then parse order).
func sortEntries(entries []PropertyEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
}
