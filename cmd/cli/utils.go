// Utility functions for the propindex CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/agilira/propindex"
	"github.com/agilira/propindex/conditions"
	internalcli "github.com/agilira/propindex/internal/cli"
)

// projectFromArgs turns the directory argument and --roots flag into a
// Project. Relative roots are resolved against the directory.
func (m *Manager) projectFromArgs(ctx *orpheus.Context) (propindex.Project, error) {
	dir := ctx.GetArg(0)
	if dir == "" {
		return propindex.Project{}, errors.New(internalcli.ErrCodeInvalidArgument, "project directory is required")
	}
	if err := propindex.ValidateSecurePath(dir); err != nil {
		return propindex.Project{}, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return propindex.Project{}, errors.Wrap(err, propindex.ErrCodeIOError, "failed to resolve directory").
			WithContext("dir", dir)
	}

	roots := internalcli.SplitList(ctx.GetFlagString("roots"))
	for i, r := range roots {
		if !filepath.IsAbs(r) {
			roots[i] = filepath.Join(abs, r)
		}
	}
	if len(roots) == 0 {
		roots = internalcli.DiscoverSourceRoots(abs)
	}

	return propindex.Project{
		ID:    propindex.ProjectID(filepath.Base(abs)),
		Dir:   abs,
		Roots: roots,
	}, nil
}

// auditCommand records a CLI operation when auditing is on.
func (m *Manager) auditCommand(event, path string) {
	m.auditLogger.Record(propindex.AuditEvent{
		Level:     propindex.AuditInfo,
		Event:     event,
		Component: "cli",
		FilePath:  path,
	})
}

// describeEvent renders the subject of an audit event as
// "project@generation path".
func describeEvent(ev propindex.AuditEvent) string {
	var parts []string
	if ev.Project != "" {
		if ev.Generation > 0 {
			parts = append(parts, fmt.Sprintf("%s@%d", ev.Project, ev.Generation))
		} else {
			parts = append(parts, ev.Project)
		}
	}
	if ev.FilePath != "" {
		parts = append(parts, ev.FilePath)
	}
	return strings.Join(parts, " ")
}

func filterEntries(entries []propindex.PropertyEntry, prefix string) []propindex.PropertyEntry {
	if prefix == "" {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if strings.HasPrefix(e.ID, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// formatEntry renders one entry as "id = value  [type]  location".
func formatEntry(e propindex.PropertyEntry) string {
	var b strings.Builder
	b.WriteString(e.ID)
	if e.Value != "" {
		b.WriteString(" = ")
		b.WriteString(e.Value)
	}
	if e.Type != "" {
		fmt.Fprintf(&b, "  [%s]", e.Type)
	}
	if e.Location != nil {
		b.WriteString("  ")
		b.WriteString(e.Location.String())
	}
	return b.String()
}

// diffIDs returns the ids only in next (added) and only in prev (removed).
func diffIDs(prev, next *propindex.Snapshot) (added, removed []string) {
	before := make(map[string]bool)
	for _, id := range prev.IDs() {
		before[id] = true
	}
	after := make(map[string]bool)
	for _, id := range next.IDs() {
		after[id] = true
		if !before[id] {
			added = append(added, id)
		}
	}
	for _, id := range prev.IDs() {
		if !after[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func formatContext(ctx map[string]interface{}) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ctx[k]))
	}
	return " " + strings.Join(parts, " ")
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinFormats(formats []propindex.ResourceFormat) string {
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, f.String())
	}
	return strings.Join(names, ", ")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func describeMember(m conditions.Ref) string {
	if m.Name == "" {
		return m.Scope
	}
	return m.Scope + "#" + m.Name
}
