// audit_backend.go: SQLite and JSONL storage for the audit trail
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// auditTimeLayout is fixed-width UTC so stored timestamps sort lexically.
const auditTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// AuditQuery filters stored audit events. Zero fields match everything.
type AuditQuery struct {
	Since     time.Time
	Event     string
	Component string
	Project   string
	// FilePath matches as a substring.
	FilePath string
	Limit    int
}

func (q AuditQuery) matches(ev AuditEvent) bool {
	if !q.Since.IsZero() && ev.Timestamp.Before(q.Since) {
		return false
	}
	if q.Event != "" && ev.Event != q.Event {
		return false
	}
	if q.Component != "" && ev.Component != q.Component {
		return false
	}
	if q.Project != "" && ev.Project != q.Project {
		return false
	}
	if q.FilePath != "" && !strings.Contains(ev.FilePath, q.FilePath) {
		return false
	}
	return true
}

// auditBackend abstracts audit storage.
type auditBackend interface {
	// Write persists a batch of events; safe for concurrent use.
	Write(events []AuditEvent) error
	Flush() error
	Close() error
	// Maintenance applies retention and backend housekeeping.
	Maintenance() error
	GetStats() (*AuditDatabaseStats, error)
	// Query returns matching events, newest first.
	Query(q AuditQuery) ([]AuditEvent, error)
	// Cleanup removes events older than cutoff and returns how many there were.
	Cleanup(cutoff time.Time, dryRun bool) (int64, error)
}

// AuditDatabaseStats summarizes the stored audit trail.
type AuditDatabaseStats struct {
	TotalEvents       int64            `json:"total_events"`
	EventsByLevel     map[string]int64 `json:"events_by_level"`
	EventsByComponent map[string]int64 `json:"events_by_component"`
	EventsByProject   map[string]int64 `json:"events_by_project"`
	OldestEvent       *time.Time       `json:"oldest_event"`
	NewestEvent       *time.Time       `json:"newest_event"`
	DatabaseSize      int64            `json:"database_size_bytes"`
	SchemaVersion     int              `json:"schema_version"`
	Backend           string           `json:"backend"`
}

// createAuditBackend picks the backend from OutputFile: an explicit .jsonl
// file gets JSONL, everything else SQLite with JSONL as fallback.
func createAuditBackend(config AuditConfig) (auditBackend, error) {
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLBackend(config)
	}

	backend, err := newSQLiteBackend(config)
	if err == nil {
		return backend, nil
	}

	jsonlBackend, jsonlErr := newJSONLBackend(config)
	if jsonlErr != nil {
		return nil, fmt.Errorf("all audit backends failed - SQLite: %w, JSONL: %v", err, jsonlErr)
	}
	return jsonlBackend, nil
}

// DefaultAuditPath is the shared SQLite database used when OutputFile is empty.
func DefaultAuditPath() string {
	return filepath.Join(os.TempDir(), "propindex", "audit.db")
}

// sqliteAuditBackend stores events in a SQLite database.
type sqliteAuditBackend struct {
	db            *sql.DB
	dbPath        string
	retentionDays int
	insertStmt    *sql.Stmt
	mu            sync.RWMutex
	closed        bool
}

func newSQLiteBackend(config AuditConfig) (*sqliteAuditBackend, error) {
	dbPath := DefaultAuditPath()
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".db" {
		dbPath = config.OutputFile
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create audit database directory: %w", err)
	}

	// WAL keeps readers (the CLI) from blocking the writer.
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	backend := &sqliteAuditBackend{
		db:            db,
		dbPath:        dbPath,
		retentionDays: config.RetentionDays,
	}
	if err := backend.ensureSchemaVersion(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit database schema: %w", err)
	}
	if err := backend.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare audit database statements: %w", err)
	}
	_ = backend.Maintenance() // housekeeping only

	return backend, nil
}

const currentSchemaVersion = 2

// ensureSchemaVersion migrates the database to currentSchemaVersion.
//
//	v1: audit_events table with project and generation columns
//	v2: composite indexes for the CLI and per-project queries
func (s *sqliteAuditBackend) ensureSchemaVersion() error {
	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER PRIMARY KEY,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("failed to create schema_info table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check schema version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	for v := version; v < currentSchemaVersion; v++ {
		var stmts []string
		switch v {
		case 0:
			stmts = []string{
				`CREATE TABLE IF NOT EXISTS audit_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					timestamp TEXT NOT NULL,
					level TEXT NOT NULL,
					event TEXT NOT NULL,
					component TEXT NOT NULL,
					project TEXT NOT NULL DEFAULT '',
					generation INTEGER NOT NULL DEFAULT 0,
					file_path TEXT,
					process_id INTEGER NOT NULL,
					process_name TEXT NOT NULL,
					context TEXT,
					checksum TEXT
				);`,
				"CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)",
				"CREATE INDEX IF NOT EXISTS idx_audit_level ON audit_events(level)",
			}
		case 1:
			stmts = []string{
				"CREATE INDEX IF NOT EXISTS idx_audit_event_time ON audit_events(event, timestamp)",
				"CREATE INDEX IF NOT EXISTS idx_audit_project_time ON audit_events(project, timestamp)",
			}
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration to v%d failed: %w", v+1, err)
			}
		}
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO schema_info (version, updated_at) VALUES (?, CURRENT_TIMESTAMP)", currentSchemaVersion); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteAuditBackend) prepareStatements() error {
	stmt, err := s.db.Prepare(`
	INSERT INTO audit_events (
		timestamp, level, event, component, project, generation,
		process_id, process_name, file_path, context, checksum
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	s.insertStmt = stmt
	return nil
}

func (s *sqliteAuditBackend) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Write inserts a batch in one transaction.
func (s *sqliteAuditBackend) Write(events []AuditEvent) (err error) {
	if s.isClosed() {
		return fmt.Errorf("cannot write to closed SQLite audit backend")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	txStmt := tx.Stmt(s.insertStmt)
	defer txStmt.Close()

	for _, event := range events {
		if err = s.insertEvent(txStmt, event); err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) insertEvent(stmt *sql.Stmt, event AuditEvent) error {
	var context string
	if len(event.Context) > 0 {
		data, err := json.Marshal(event.Context)
		if err != nil {
			return fmt.Errorf("failed to serialize context: %w", err)
		}
		context = string(data)
	}

	_, err := stmt.Exec(
		event.Timestamp.UTC().Format(auditTimeLayout),
		event.Level.String(),
		event.Event,
		event.Component,
		event.Project,
		int64(event.Generation),
		event.ProcessID,
		event.ProcessName,
		event.FilePath,
		context,
		event.Checksum,
	)
	return err
}

// Flush checkpoints the WAL.
func (s *sqliteAuditBackend) Flush() error {
	if s.isClosed() {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to flush SQLite audit backend: %w", err)
	}
	return nil
}

// Maintenance drops events beyond the retention window and refreshes
// planner statistics.
func (s *sqliteAuditBackend) Maintenance() error {
	if s.isClosed() {
		return nil
	}
	days := s.retentionDays
	if days <= 0 {
		days = DefaultAuditConfig().RetentionDays
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	if _, err := s.Cleanup(cutoff, false); err != nil {
		return err
	}
	_, _ = s.db.Exec("PRAGMA optimize")
	return nil
}

// Cleanup deletes, or counts when dryRun, events older than cutoff.
func (s *sqliteAuditBackend) Cleanup(cutoff time.Time, dryRun bool) (int64, error) {
	if s.isClosed() {
		return 0, fmt.Errorf("cannot clean up closed SQLite audit backend")
	}
	bound := cutoff.UTC().Format(auditTimeLayout)
	if dryRun {
		var n int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events WHERE timestamp < ?", bound).Scan(&n); err != nil {
			return 0, fmt.Errorf("failed to count old audit events: %w", err)
		}
		return n, nil
	}
	res, err := s.db.Exec("DELETE FROM audit_events WHERE timestamp < ?", bound)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Query builds a parameterized SELECT from q.
func (s *sqliteAuditBackend) Query(q AuditQuery) ([]AuditEvent, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("cannot query closed SQLite audit backend")
	}

	var where []string
	var args []interface{}
	if !q.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, q.Since.UTC().Format(auditTimeLayout))
	}
	if q.Event != "" {
		where = append(where, "event = ?")
		args = append(args, q.Event)
	}
	if q.Component != "" {
		where = append(where, "component = ?")
		args = append(args, q.Component)
	}
	if q.Project != "" {
		where = append(where, "project = ?")
		args = append(args, q.Project)
	}
	if q.FilePath != "" {
		where = append(where, "instr(file_path, ?) > 0")
		args = append(args, q.FilePath)
	}

	query := "SELECT timestamp, level, event, component, project, generation, file_path, process_id, process_name, context, checksum FROM audit_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var (
			ts, level, context, filePath, checksum sql.NullString
			generation                             int64
			ev                                     AuditEvent
		)
		if err := rows.Scan(&ts, &level, &ev.Event, &ev.Component, &ev.Project, &generation, &filePath,
			&ev.ProcessID, &ev.ProcessName, &context, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.Timestamp, _ = time.Parse(auditTimeLayout, ts.String)
		ev.Level, _ = ParseAuditLevel(level.String)
		ev.Generation = uint64(generation)
		ev.FilePath = filePath.String
		ev.Checksum = checksum.String
		if context.String != "" {
			_ = json.Unmarshal([]byte(context.String), &ev.Context)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// GetStats returns counts by level and component, time range and size.
func (s *sqliteAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("cannot read stats of closed SQLite audit backend")
	}
	stats := &AuditDatabaseStats{
		EventsByLevel:     make(map[string]int64),
		EventsByComponent: make(map[string]int64),
		EventsByProject:   make(map[string]int64),
		Backend:           "sqlite",
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to get total events count: %w", err)
	}
	if err := s.groupCount("level", stats.EventsByLevel); err != nil {
		return nil, err
	}
	if err := s.groupCount("component", stats.EventsByComponent); err != nil {
		return nil, err
	}
	if err := s.groupCount("project", stats.EventsByProject); err != nil {
		return nil, err
	}
	delete(stats.EventsByProject, "")

	var oldest, newest sql.NullString
	if err := s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM audit_events").Scan(&oldest, &newest); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get event time range: %w", err)
	}
	if t, err := time.Parse(auditTimeLayout, oldest.String); oldest.Valid && err == nil {
		stats.OldestEvent = &t
	}
	if t, err := time.Parse(auditTimeLayout, newest.String); newest.Valid && err == nil {
		stats.NewestEvent = &t
	}

	if err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&stats.SchemaVersion); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get schema version: %w", err)
	}
	if info, err := os.Stat(s.dbPath); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

// groupCount fills into with COUNT(*) grouped by column (a fixed identifier).
func (s *sqliteAuditBackend) groupCount(column string, into map[string]int64) error {
	rows, err := s.db.Query("SELECT " + column + ", COUNT(*) FROM audit_events GROUP BY " + column)
	if err != nil {
		return fmt.Errorf("failed to get events by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s stats: %w", column, err)
		}
		into[key] = count
	}
	return rows.Err()
}

// Close flushes the WAL and releases the statement and the connection.
// Safe to call more than once.
func (s *sqliteAuditBackend) Close() error {
	if err := s.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "audit: %v\n", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.insertStmt != nil {
		if err := s.insertStmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close insert statement: %w", err))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite audit backend: %v", errs)
	}
	return nil
}

// jsonlAuditBackend appends one JSON object per line to a file.
type jsonlAuditBackend struct {
	path   string
	file   *os.File
	mu     sync.Mutex
	closed bool
}

func newJSONLBackend(config AuditConfig) (*jsonlAuditBackend, error) {
	if config.OutputFile == "" {
		return nil, fmt.Errorf("JSONL backend requires OutputFile to be specified")
	}
	if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0750); err != nil {
		return nil, fmt.Errorf("failed to create JSONL audit log directory: %w", err)
	}
	file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log file: %w", err)
	}
	return &jsonlAuditBackend{path: config.OutputFile, file: file}, nil
}

func (j *jsonlAuditBackend) Write(events []AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("cannot write to closed JSONL audit backend")
	}

	w := bufio.NewWriter(j.file)
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize audit event: %w", err)
		}
		_, _ = w.Write(data)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write audit events to JSONL: %w", err)
	}
	return nil
}

func (j *jsonlAuditBackend) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync JSONL audit file: %w", err)
	}
	return nil
}

// Maintenance is a no-op; JSONL files are rotated externally.
func (j *jsonlAuditBackend) Maintenance() error { return nil }

// readAll decodes every line of the file, skipping lines that do not parse.
func (j *jsonlAuditBackend) readAll() ([]AuditEvent, error) {
	f, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log: %w", err)
	}
	defer f.Close()

	var out []AuditEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var ev AuditEvent
		if json.Unmarshal(scanner.Bytes(), &ev) == nil {
			out = append(out, ev)
		}
	}
	return out, scanner.Err()
}

func (j *jsonlAuditBackend) Query(q AuditQuery) ([]AuditEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	var out []AuditEvent
	for i := len(all) - 1; i >= 0; i-- {
		if q.matches(all[i]) {
			out = append(out, all[i])
			if q.Limit > 0 && len(out) == q.Limit {
				break
			}
		}
	}
	return out, nil
}

// Cleanup rewrites the file without the old events.
func (j *jsonlAuditBackend) Cleanup(cutoff time.Time, dryRun bool) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, fmt.Errorf("cannot clean up closed JSONL audit backend")
	}

	all, err := j.readAll()
	if err != nil {
		return 0, err
	}
	keep := make([]AuditEvent, 0, len(all))
	for _, ev := range all {
		if !ev.Timestamp.Before(cutoff) {
			keep = append(keep, ev)
		}
	}
	removed := int64(len(all) - len(keep))
	if dryRun || removed == 0 {
		return removed, nil
	}

	tmp := j.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return 0, fmt.Errorf("failed to create JSONL rewrite file: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, ev := range keep {
		if err := enc.Encode(ev); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return 0, fmt.Errorf("failed to rewrite audit event: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close JSONL rewrite file: %w", err)
	}

	_ = j.file.Close()
	if err := os.Rename(tmp, j.path); err != nil {
		return 0, fmt.Errorf("failed to replace JSONL audit log: %w", err)
	}
	j.file, err = os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		j.closed = true
		return removed, fmt.Errorf("failed to reopen JSONL audit log: %w", err)
	}
	return removed, nil
}

// GetStats counts events by scanning the file.
func (j *jsonlAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := &AuditDatabaseStats{
		EventsByLevel:     make(map[string]int64),
		EventsByComponent: make(map[string]int64),
		EventsByProject:   make(map[string]int64),
		SchemaVersion:     1,
		Backend:           "jsonl",
	}
	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	for i := range all {
		ev := &all[i]
		stats.TotalEvents++
		stats.EventsByLevel[ev.Level.String()]++
		stats.EventsByComponent[ev.Component]++
		if ev.Project != "" {
			stats.EventsByProject[ev.Project]++
		}
		if stats.OldestEvent == nil || ev.Timestamp.Before(*stats.OldestEvent) {
			stats.OldestEvent = &ev.Timestamp
		}
		if stats.NewestEvent == nil || ev.Timestamp.After(*stats.NewestEvent) {
			stats.NewestEvent = &ev.Timestamp
		}
	}
	if info, err := os.Stat(j.path); err == nil {
		stats.DatabaseSize = info.Size()
	}
	return stats, nil
}

func (j *jsonlAuditBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}
