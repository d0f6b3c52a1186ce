// propindex: Live property index over .properties and YAML configuration resources
//
// Philosophy:
// - Queries never fail: broken or missing resources contribute nothing
// - Invalidation is cheap and eager, rebuilding is lazy and per project
// - A query never observes a result older than the last change it could see
// - Pluggable filesystem, parsers and change feeds
//
// Example Usage:
//   ws := propindex.NewWorkspace()
//   _ = ws.AddProject("demo", "/src/demo", "/src/demo/src/main/resources")
//
//   provider, err := propindex.NewLiveProvider(ws, propindex.Config{})
//   if err != nil {
//       return err
//   }
//   defer provider.Close()
//
//   snap := provider.GetIndex(propindex.DocumentURI("/src/demo/src/main/java/App.java"))
//   for _, e := range snap.Entries() {
//       fmt.Println(e.ID, e.Location)
//   }
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"sync/atomic"

	"github.com/agilira/go-errors"
)

// Error codes for property index operations
const (
	ErrCodeInvalidConfig        = "PROPINDEX_INVALID_CONFIG"
	ErrCodeResourceUnreadable   = "PROPINDEX_RESOURCE_UNREADABLE"
	ErrCodeResourceMalformed    = "PROPINDEX_RESOURCE_MALFORMED"
	ErrCodeEntrySkipped         = "PROPINDEX_ENTRY_SKIPPED"
	ErrCodeUnsafePath           = "PROPINDEX_UNSAFE_PATH"
	ErrCodeProjectNotFound      = "PROPINDEX_PROJECT_NOT_FOUND"
	ErrCodeFeedClosed           = "PROPINDEX_FEED_CLOSED"
	ErrCodeWatcherBusy          = "PROPINDEX_WATCHER_BUSY"
	ErrCodeWatcherStopped       = "PROPINDEX_WATCHER_STOPPED"
	ErrCodeWatchLimit           = "PROPINDEX_WATCH_LIMIT"
	ErrCodeInvalidPollInterval  = "PROPINDEX_INVALID_POLL_INTERVAL"
	ErrCodeInvalidCacheTTL      = "PROPINDEX_INVALID_CACHE_TTL"
	ErrCodeInvalidBufferSize    = "PROPINDEX_INVALID_BUFFER_SIZE"
	ErrCodeInvalidFlushInterval = "PROPINDEX_INVALID_FLUSH_INTERVAL"
	ErrCodeInvalidOutputFile    = "PROPINDEX_INVALID_OUTPUT_FILE"
	ErrCodeInvalidAuditConfig   = "PROPINDEX_INVALID_AUDIT_CONFIG"
	ErrCodeInvalidLogLevel      = "PROPINDEX_INVALID_LOG_LEVEL"
	ErrCodeUnsupportedFormat    = "PROPINDEX_UNSUPPORTED_FORMAT"
	ErrCodeIOError              = "PROPINDEX_IO_ERROR"
	ErrCodeInvalidation         = "PROPINDEX_INVALIDATION_FAILED"
)

// ErrorHandler receives soft warnings together with the path they concern
// (empty when no file is involved).
type ErrorHandler func(err error, path string)

// auditComponent tags every audit event and log line of this package.
const auditComponent = "propindex"

// Feeds are the change feeds a Provider's cache subscribes to. Either may
// be nil; see NewIndexCache for the fallbacks.
type Feeds struct {
	Classpath *ClasspathFeed
	Files     *FileFeed
}

// Provider is the query facade: it maps a document to its project and
// returns that project's current index.
type Provider struct {
	resolver ProjectResolver
	builder  *Builder
	cache    *IndexCache
	warn     ErrorHandler
	audit    *AuditLogger
	config   Config
	closed   atomic.Bool
}

// New creates a Provider. The configuration is completed with defaults and
// validated; an audit backend that cannot be opened disables auditing with
// a warning instead of failing.
func New(resolver ProjectResolver, feeds Feeds, config Config) (*Provider, error) {
	if resolver == nil {
		return nil, errors.New(ErrCodeInvalidConfig, "project resolver cannot be nil")
	}

	cfg := config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	audit, err := NewAuditLogger(cfg.Audit)
	if err != nil {
		cfg.ErrorHandler(errors.Wrap(err, ErrCodeInvalidAuditConfig, "audit disabled"), cfg.Audit.OutputFile)
		audit, _ = NewAuditLogger(AuditConfig{Enabled: false})
	}

	builder := NewBuilder(cfg.Fs, *cfg).withAudit(audit)
	cache := NewIndexCache(builder, feeds.Classpath, feeds.Files, *cfg).withAudit(audit)

	return &Provider{
		resolver: resolver,
		builder:  builder,
		cache:    cache,
		warn:     cfg.ErrorHandler,
		audit:    audit,
		config:   *cfg,
	}, nil
}

// GetIndex returns the current index of the project owning doc. It never
// returns nil: an unresolvable document yields an empty snapshot and a
// warning. After Close every call builds afresh without caching.
func (p *Provider) GetIndex(doc Document) *Snapshot {
	project, ok := p.Resolve(doc)
	if !ok {
		return emptySnapshot("")
	}
	if p.closed.Load() {
		return p.builder.Build(project)
	}
	return p.cache.Get(project)
}

// Resolve maps doc to its project, warning when it cannot.
func (p *Provider) Resolve(doc Document) (Project, bool) {
	var uri string
	if doc != nil {
		uri = doc.URI()
	}
	project, ok := p.resolver.Resolve(doc)
	if !ok {
		p.warn(errors.New(ErrCodeProjectNotFound, "document does not belong to a known project").
			WithContext("document", uri), documentPath(doc))
		return Project{}, false
	}
	return project, true
}

// State reports the cache state of the project owning doc.
func (p *Provider) State(doc Document) CacheState {
	project, ok := p.resolver.Resolve(doc)
	if !ok {
		return StateAbsent
	}
	return p.cache.State(project.ID)
}

// Invalidate marks a project Stale regardless of feeds.
func (p *Provider) Invalidate(id ProjectID) { p.cache.Invalidate(id) }

// Stats returns the cache counters.
func (p *Provider) Stats() CacheStats { return p.cache.Stats() }

// Locator exposes the resource locator, e.g. for watchers and diagnostics.
func (p *Provider) Locator() *Locator { return p.builder.Locator() }

// Audit returns the audit logger (never nil; possibly disabled).
func (p *Provider) Audit() *AuditLogger { return p.audit }

// Config returns the effective configuration.
func (p *Provider) Config() Config { return p.config }

// Close detaches the cache from its feeds and flushes the audit trail.
// Safe to call more than once.
func (p *Provider) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cache.Close()
	return p.audit.Close()
}
