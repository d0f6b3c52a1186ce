// builder.go: Index builder composing the locator and the parsers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/agilira/go-errors"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Builder produces snapshots: locate, read, parse, concatenate in locator
// order, then sort by id.
type Builder struct {
	locator     *Locator
	fs          afero.Fs
	concurrency int
	warn        ErrorHandler
	audit       *AuditLogger
}

// NewBuilder creates a builder reading through fs. A nil fs uses config.Fs.
func NewBuilder(fs afero.Fs, config Config) *Builder {
	cfg := config.WithDefaults()
	if fs == nil {
		fs = cfg.Fs
	}
	return &Builder{
		locator:     NewLocator(fs, *cfg),
		fs:          fs,
		concurrency: cfg.ReadConcurrency,
		warn:        cfg.ErrorHandler,
	}
}

// withAudit attaches an audit logger to the builder and its locator.
func (b *Builder) withAudit(audit *AuditLogger) *Builder {
	b.audit = audit
	b.locator.withAudit(audit)
	return b
}

// Locator returns the locator used by the builder.
func (b *Builder) Locator() *Locator { return b.locator }

// parsedResource is the outcome of reading and parsing one resource.
type parsedResource struct {
	version string
	entries []PropertyEntry
}

// Build indexes p at generation 0. See BuildGeneration.
func (b *Builder) Build(p Project) *Snapshot {
	return b.BuildGeneration(p, 0)
}

// BuildGeneration indexes p and tags the snapshot with generation. It never
// fails: unreadable or malformed resources contribute no entries.
func (b *Builder) BuildGeneration(p Project, generation uint64) *Snapshot {
	resources := b.locator.Locate(p)
	results := make([]parsedResource, len(resources))

	// Reads may run in parallel; results keep locator order by index.
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i := range resources {
		g.Go(func() error {
			results[i] = b.load(p, resources[i])
			return nil
		})
	}
	_ = g.Wait() // load never returns errors

	total := 0
	for _, r := range results {
		total += len(r.entries)
	}
	entries := make([]PropertyEntry, 0, total)
	versions := make(map[string]string, len(resources))
	for i, r := range results {
		entries = append(entries, r.entries...)
		if r.version != "" {
			versions[resources[i].Path] = r.version
		}
	}

	return newSnapshot(p.ID, generation, p.Roots, resources, versions, entries)
}

// load reads and parses one resource, reporting problems as soft warnings.
func (b *Builder) load(p Project, res Resource) parsedResource {
	content, err := afero.ReadFile(b.fs, res.Path)
	if err != nil {
		b.audit.Log(AuditWarn, "resource_unreadable", p.ID, res.Path,
			map[string]interface{}{"error": err.Error()})
		if b.warn != nil {
			b.warn(errors.Wrap(err, ErrCodeResourceUnreadable, "failed to read resource").
				WithContext("project", string(p.ID)), res.Path)
		}
		return parsedResource{}
	}

	sum := sha256.Sum256(content)
	version := hex.EncodeToString(sum[:])

	entries, err := parseResource(content, res)
	if err != nil {
		action := "resource_malformed"
		if GetValidationErrorCode(err) == ErrCodeEntrySkipped {
			action = "entry_skipped"
		}
		b.audit.Log(AuditWarn, action, p.ID, res.Path,
			map[string]interface{}{"error": err.Error()})
		if b.warn != nil {
			b.warn(err, res.Path)
		}
	}

	return parsedResource{version: version, entries: entries}
}
