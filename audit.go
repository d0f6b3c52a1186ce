// audit.go: Audit trail for index lifecycle events
//
// Records builds, invalidations, project teardown and rejected or broken
// resources so an operator can reconstruct why an index looked the way it
// did at a given time. Events are buffered, checksummed and flushed in the
// background to a SQLite or JSONL backend.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// AuditLevel represents the severity of audit events
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
	AuditSecurity
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	case AuditSecurity:
		return "SECURITY"
	default:
		return "UNKNOWN"
	}
}

// ParseAuditLevel is the inverse of AuditLevel.String, case-insensitive.
func ParseAuditLevel(s string) (AuditLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO", "":
		return AuditInfo, nil
	case "WARN", "WARNING":
		return AuditWarn, nil
	case "CRITICAL":
		return AuditCritical, nil
	case "SECURITY":
		return AuditSecurity, nil
	default:
		return AuditInfo, errors.New(ErrCodeInvalidAuditConfig, "unknown audit level").
			WithContext("level", s)
	}
}

// AuditEvent is one entry of the audit trail. Project and Generation
// identify the index an event concerns; FilePath the resource, if any.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Level       AuditLevel             `json:"level"`
	Event       string                 `json:"event"`
	Component   string                 `json:"component"`
	Project     string                 `json:"project,omitempty"`
	Generation  uint64                 `json:"generation,omitempty"`
	FilePath    string                 `json:"file_path,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Checksum    string                 `json:"checksum"`
}

// AuditConfig configures the audit system
type AuditConfig struct {
	Enabled bool `json:"enabled"`
	// OutputFile selects the backend: ".jsonl" writes JSON lines, ".db" a
	// SQLite file at that path, empty the shared SQLite database.
	OutputFile    string        `json:"output_file"`
	MinLevel      AuditLevel    `json:"min_level"`
	BufferSize    int           `json:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval"`
	// RetentionDays bounds how long SQLite keeps events (default 90).
	RetentionDays int `json:"retention_days"`
}

// DefaultAuditConfig returns the default audit configuration. Auditing is
// off by default; an embedded index should not write files on its own.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       false,
		OutputFile:    "",
		MinLevel:      AuditInfo,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
		RetentionDays: 90,
	}
}

// withDefaults fills zero buffering fields of an enabled configuration.
func (c AuditConfig) withDefaults() AuditConfig {
	def := DefaultAuditConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = def.RetentionDays
	}
	return c
}

// AuditLogger buffers audit events and flushes them to a backend.
//
// A nil *AuditLogger, or one created from a disabled configuration, accepts
// every call and records nothing.
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
	processID   int
	processName string
}

// NewAuditLogger creates an audit logger. A disabled configuration yields a
// logger without backend.
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	logger := &AuditLogger{
		config:      config,
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: getProcessName(),
	}
	if !config.Enabled {
		return logger, nil
	}

	logger.config = config.withDefaults()
	backend, err := createAuditBackend(logger.config)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidAuditConfig, "failed to initialize audit backend")
	}
	logger.backend = backend
	logger.buffer = make([]AuditEvent, 0, logger.config.BufferSize)

	logger.flushTicker = time.NewTicker(logger.config.FlushInterval)
	go logger.flushLoop()

	return logger, nil
}

// Enabled reports whether events are being recorded.
func (al *AuditLogger) Enabled() bool {
	return al != nil && al.backend != nil && al.config.Enabled
}

// Record stores ev, stamping time, process and checksum. Events below
// MinLevel are dropped.
func (al *AuditLogger) Record(ev AuditEvent) {
	if !al.Enabled() || ev.Level < al.config.MinLevel {
		return
	}

	ev.Timestamp = timecache.CachedTime()
	ev.ProcessID = al.processID
	ev.ProcessName = al.processName
	ev.Checksum = al.generateChecksum(ev)

	al.bufferMu.Lock()
	al.buffer = append(al.buffer, ev)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe() // retried on the next flush
	}
	al.bufferMu.Unlock()
}

// Log records an index event of project. path names the resource involved
// and may be empty.
func (al *AuditLogger) Log(level AuditLevel, event string, project ProjectID, path string, context map[string]interface{}) {
	al.Record(AuditEvent{
		Level:     level,
		Event:     event,
		Component: auditComponent,
		Project:   string(project),
		FilePath:  path,
		Context:   context,
	})
}

// LogBuild records a finished build of one index generation.
func (al *AuditLogger) LogBuild(snap *Snapshot) {
	if !al.Enabled() {
		return
	}
	al.Record(AuditEvent{
		Level:      AuditInfo,
		Event:      "index_built",
		Component:  auditComponent,
		Project:    string(snap.Project()),
		Generation: snap.Generation(),
		Context: map[string]interface{}{
			"snapshot":  snap.ID(),
			"entries":   snap.Len(),
			"resources": len(snap.resources),
		},
	})
}

// LogSecurityEvent logs security-related events such as rejected paths.
func (al *AuditLogger) LogSecurityEvent(event, details string, context map[string]interface{}) {
	if context == nil {
		context = map[string]interface{}{}
	}
	if details != "" {
		context["details"] = details
	}
	project, _ := context["project"].(string)
	path, _ := context["path"].(string)
	al.Record(AuditEvent{
		Level:     AuditSecurity,
		Event:     event,
		Component: auditComponent,
		Project:   project,
		FilePath:  path,
		Context:   context,
	})
}

// Flush immediately writes all buffered events
func (al *AuditLogger) Flush() error {
	if !al.Enabled() {
		return nil
	}
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	return al.flushBufferUnsafe()
}

// Query flushes pending events and returns the stored ones matching q,
// newest first.
func (al *AuditLogger) Query(q AuditQuery) ([]AuditEvent, error) {
	if !al.Enabled() {
		return nil, nil
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.Query(q)
}

// Cleanup deletes events older than cutoff, or only counts them on dryRun.
func (al *AuditLogger) Cleanup(cutoff time.Time, dryRun bool) (int64, error) {
	if !al.Enabled() {
		return 0, nil
	}
	if err := al.Flush(); err != nil {
		return 0, err
	}
	return al.backend.Cleanup(cutoff, dryRun)
}

// Stats flushes pending events and returns backend statistics.
func (al *AuditLogger) Stats() (*AuditDatabaseStats, error) {
	if !al.Enabled() {
		return &AuditDatabaseStats{
			EventsByLevel:     map[string]int64{},
			EventsByComponent: map[string]int64{},
			EventsByProject:   map[string]int64{},
		}, nil
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.GetStats()
}

// Close stops the background flusher, flushes and releases the backend.
// Safe to call more than once.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	var err error
	al.closeOnce.Do(func() {
		close(al.stopCh)
		if al.flushTicker != nil {
			al.flushTicker.Stop()
		}
		if al.backend == nil {
			return
		}
		if ferr := al.Flush(); ferr != nil {
			err = errors.Wrap(ferr, ErrCodeIOError, "failed to flush audit logger during close")
		}
		if cerr := al.backend.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, ErrCodeIOError, "failed to close audit backend")
		}
	})
	return err
}

func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush() // next tick retries
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes the buffer to the backend (caller must hold bufferMu).
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 {
		return nil
	}
	if err := al.backend.Write(al.buffer); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "failed to write audit events")
	}
	al.buffer = al.buffer[:0]
	return nil
}

// generateChecksum hashes the identifying fields of an event with SHA-256.
func (al *AuditLogger) generateChecksum(event AuditEvent) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d|%s|%s",
		event.Timestamp.UTC().Format(auditTimeLayout), event.Level,
		event.Event, event.Component, event.Generation, event.Project, event.FilePath)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

func getProcessName() string {
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return auditComponent
}
