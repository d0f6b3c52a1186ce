// Command handlers for the propindex CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/agilira/propindex"
	"github.com/agilira/propindex/conditions"
	internalcli "github.com/agilira/propindex/internal/cli"
)

// handleList builds the index of a directory and prints it.
func (m *Manager) handleList(ctx *orpheus.Context) error {
	project, err := m.projectFromArgs(ctx)
	if err != nil {
		return err
	}
	m.auditCommand("cli_list", project.Dir)

	snap := propindex.NewBuilder(nil, m.config).Build(project)
	entries := filterEntries(snap.Entries(), ctx.GetFlagString("prefix"))

	if ctx.GetFlagBool("json") {
		return m.writeJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintf(m.out, "No properties found in %s\n", project.Dir)
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(m.out, formatEntry(e))
	}
	return nil
}

// handleResources prints the resources the locator finds for a directory.
func (m *Manager) handleResources(ctx *orpheus.Context) error {
	project, err := m.projectFromArgs(ctx)
	if err != nil {
		return err
	}
	m.auditCommand("cli_resources", project.Dir)

	locator := propindex.NewLocator(nil, m.config)
	if ctx.GetFlagBool("all") {
		found := make(map[string]bool)
		for _, res := range locator.Locate(project) {
			found[res.Path] = true
		}
		for _, res := range locator.Candidates(project) {
			mark := "-"
			if found[res.Path] {
				mark = "+"
			}
			fmt.Fprintf(m.out, "%s %d %-10s %s\n", mark, res.Rank, res.Format, res.Path)
		}
		return nil
	}

	resources := locator.Locate(project)
	if len(resources) == 0 {
		fmt.Fprintf(m.out, "No configuration resources found in %s\n", project.Dir)
		return nil
	}
	for _, res := range resources {
		fmt.Fprintf(m.out, "%d %-10s %s\n", res.Rank, res.Format, res.Path)
	}
	return nil
}

// handleWatch keeps a live index of a directory and prints what changes.
func (m *Manager) handleWatch(ctx *orpheus.Context) error {
	project, err := m.projectFromArgs(ctx)
	if err != nil {
		return err
	}

	interval, err := internalcli.ParseExtendedDuration(ctx.GetFlagString("interval"))
	if err != nil || interval <= 0 {
		return errors.New(propindex.ErrCodeInvalidPollInterval, fmt.Sprintf("invalid interval: %s", ctx.GetFlagString("interval")))
	}
	runFor, err := internalcli.ParseExtendedDuration(ctx.GetFlagString("for"))
	if err != nil {
		return errors.New(propindex.ErrCodeInvalidConfig, fmt.Sprintf("invalid duration: %s", ctx.GetFlagString("for")))
	}
	verbose := ctx.GetFlagBool("verbose")

	cfg := m.config
	cfg.PollInterval = interval
	cfg.CacheTTL = 0
	cfg.FileWatch = propindex.FileWatchPoll
	if ctx.GetFlagBool("notify") {
		cfg.FileWatch = propindex.FileWatchNotify
	}

	ws := propindex.NewWorkspace()
	defer ws.Close()
	lp, err := propindex.NewLiveProvider(ws, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = lp.Close() }()

	if err := ws.AddProject(project.ID, project.Dir, project.Roots...); err != nil {
		return err
	}
	m.auditCommand("cli_watch", project.Dir)

	doc := propindex.DocumentURI(project.Dir)
	current := lp.GetIndex(doc)
	fmt.Fprintf(m.out, "Watching %s (%d properties in %d resources, interval %v)\n",
		project.Dir, current.Len(), len(current.Resources()), interval)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	var deadline <-chan time.Time
	if runFor > 0 {
		timer := time.NewTimer(runFor)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-interrupt:
			return nil
		case <-deadline:
			return nil
		case <-ticker.C:
			lp.Refresh()
			next := lp.GetIndex(doc)
			if next.SameEntries(current) {
				continue
			}
			added, removed := diffIDs(current, next)
			fmt.Fprintf(m.out, "[%s] index changed: %d properties (+%d -%d)\n",
				next.BuiltAt().Format(time.TimeOnly), next.Len(), len(added), len(removed))
			if verbose {
				for _, id := range added {
					fmt.Fprintf(m.out, "  + %s\n", id)
				}
				for _, id := range removed {
					fmt.Fprintf(m.out, "  - %s\n", id)
				}
			}
			current = next
		}
	}
}

// handleConditions prints the report conditions matching a type or method.
func (m *Manager) handleConditions(ctx *orpheus.Context) error {
	reportPath := ctx.GetArg(0)
	scope := ctx.GetArg(1)
	if reportPath == "" || scope == "" {
		return errors.New(internalcli.ErrCodeInvalidArgument, "usage: conditions <report.json> <Scope> [member]")
	}
	if err := propindex.ValidateSecurePath(reportPath); err != nil {
		return err
	}

	report, err := conditions.LoadReport(reportPath)
	if err != nil {
		return err
	}
	m.auditCommand("cli_conditions", reportPath)

	member := conditions.Ref{
		Scope:      scope,
		Name:       ctx.GetArg(2),
		Annotation: ctx.GetFlagString("annotation"),
	}
	matched := report.Conditions(member)

	if ctx.GetFlagBool("json") {
		return m.writeJSON(matched)
	}
	if len(matched) == 0 {
		fmt.Fprintf(m.out, "No matching conditions for %s\n", describeMember(member))
		return nil
	}
	for _, c := range matched {
		fmt.Fprintf(m.out, "Condition: %s\n", c.Condition)
		fmt.Fprintf(m.out, "Message: %s\n", c.Message)
	}
	return nil
}

// handleAuditQuery prints audit events, newest first.
func (m *Manager) handleAuditQuery(ctx *orpheus.Context) error {
	if !m.auditLogger.Enabled() {
		return errors.New(propindex.ErrCodeInvalidAuditConfig, "audit logging not enabled")
	}

	since, err := internalcli.ParseExtendedDuration(ctx.GetFlagString("since"))
	if err != nil {
		return errors.New(propindex.ErrCodeInvalidConfig, fmt.Sprintf("invalid since: %s", ctx.GetFlagString("since")))
	}
	if err := m.auditLogger.Flush(); err != nil {
		return err
	}

	events, err := m.auditLogger.Query(propindex.AuditQuery{
		Since:    time.Now().Add(-since),
		Event:    ctx.GetFlagString("event"),
		Project:  ctx.GetFlagString("project"),
		FilePath: ctx.GetFlagString("file"),
		Limit:    ctx.GetFlagInt("limit"),
	})
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Fprintln(m.out, "No audit events found")
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(m.out, "%s %-8s %-20s %s%s\n",
			ev.Timestamp.Format(time.RFC3339), ev.Level, ev.Event, describeEvent(ev), formatContext(ev.Context))
	}
	return nil
}

// handleAuditCleanup deletes audit events older than a cutoff.
func (m *Manager) handleAuditCleanup(ctx *orpheus.Context) error {
	if !m.auditLogger.Enabled() {
		return errors.New(propindex.ErrCodeInvalidAuditConfig, "audit logging not enabled")
	}

	olderThan, err := internalcli.ParseExtendedDuration(ctx.GetFlagString("older-than"))
	if err != nil {
		return errors.New(propindex.ErrCodeInvalidConfig, fmt.Sprintf("invalid older-than: %s", ctx.GetFlagString("older-than")))
	}
	dryRun := ctx.GetFlagBool("dry-run")
	if err := m.auditLogger.Flush(); err != nil {
		return err
	}

	n, err := m.auditLogger.Cleanup(time.Now().Add(-olderThan), dryRun)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Fprintf(m.out, "Would delete %d audit events older than %s\n", n, ctx.GetFlagString("older-than"))
	} else {
		fmt.Fprintf(m.out, "Deleted %d audit events older than %s\n", n, ctx.GetFlagString("older-than"))
	}
	return nil
}

// handleAuditStats summarizes the audit trail.
func (m *Manager) handleAuditStats(ctx *orpheus.Context) error {
	if !m.auditLogger.Enabled() {
		return errors.New(propindex.ErrCodeInvalidAuditConfig, "audit logging not enabled")
	}
	if err := m.auditLogger.Flush(); err != nil {
		return err
	}
	stats, err := m.auditLogger.Stats()
	if err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Backend: %s\n", stats.Backend)
	fmt.Fprintf(m.out, "Total events: %d\n", stats.TotalEvents)
	if stats.OldestEvent != nil && stats.NewestEvent != nil {
		fmt.Fprintf(m.out, "Range: %s .. %s\n", stats.OldestEvent.Format(time.RFC3339), stats.NewestEvent.Format(time.RFC3339))
	}
	for _, level := range sortedKeys(stats.EventsByLevel) {
		fmt.Fprintf(m.out, "  %-10s %d\n", level, stats.EventsByLevel[level])
	}
	if len(stats.EventsByProject) > 0 {
		fmt.Fprintln(m.out, "Projects:")
		for _, project := range sortedKeys(stats.EventsByProject) {
			fmt.Fprintf(m.out, "  %-20s %d\n", project, stats.EventsByProject[project])
		}
	}
	if stats.DatabaseSize > 0 {
		fmt.Fprintf(m.out, "Size: %d bytes\n", stats.DatabaseSize)
	}
	return nil
}

// handleBenchmark measures full index builds for a directory.
func (m *Manager) handleBenchmark(ctx *orpheus.Context) error {
	project, err := m.projectFromArgs(ctx)
	if err != nil {
		return err
	}
	iterations := ctx.GetFlagInt("iterations")
	if iterations <= 0 {
		return errors.New(internalcli.ErrCodeInvalidArgument, fmt.Sprintf("invalid iterations: %d", iterations))
	}

	builder := propindex.NewBuilder(nil, m.config)
	var snap *propindex.Snapshot
	start := time.Now()
	for i := 0; i < iterations; i++ {
		snap = builder.Build(project)
	}
	elapsed := time.Since(start)

	fmt.Fprintf(m.out, "Built %d properties from %d resources %d times in %v\n",
		snap.Len(), len(snap.Resources()), iterations, elapsed)
	fmt.Fprintf(m.out, "Average: %v per build\n", elapsed/time.Duration(iterations))
	return nil
}

// handleInfo prints the effective configuration.
func (m *Manager) handleInfo(ctx *orpheus.Context) error {
	cfg := m.config.WithDefaults()

	fmt.Fprintf(m.out, "propindex %s\n", Version)
	fmt.Fprintf(m.out, "Formats: %s\n", joinFormats(cfg.Formats))
	fmt.Fprintf(m.out, "Base names: %s\n", strings.Join(cfg.BaseNames, ", "))
	fmt.Fprintf(m.out, "Profiles: %s\n", orNone(strings.Join(cfg.Profiles, ", ")))
	fmt.Fprintf(m.out, "File watch: %s\n", cfg.FileWatch)
	fmt.Fprintf(m.out, "Audit: %v\n", m.auditLogger.Enabled())

	if ctx.GetFlagBool("verbose") {
		fmt.Fprintf(m.out, "\nSub-paths: %q\n", cfg.ResourceSubPaths)
		fmt.Fprintf(m.out, "Poll interval: %v\n", cfg.PollInterval)
		fmt.Fprintf(m.out, "Cache TTL: %v\n", cfg.CacheTTL)
		fmt.Fprintf(m.out, "Max watched files: %d\n", cfg.MaxWatchedFiles)
		fmt.Fprintf(m.out, "Feed buffer: %d\n", cfg.FeedBuffer)
		fmt.Fprintf(m.out, "Read concurrency: %d\n", cfg.ReadConcurrency)
		fmt.Fprintf(m.out, "Go version: %s\n", runtime.Version())
		if result := cfg.ValidateDetailed(); !result.Valid || len(result.Warnings) > 0 {
			fmt.Fprintf(m.out, "Validation: %s\n", result.String())
		}
	}
	return nil
}

// handleCompletion generates shell completion scripts.
func (m *Manager) handleCompletion(ctx *orpheus.Context) error {
	shell := ctx.GetArg(0)
	words := strings.Join(Commands(), " ")

	switch shell {
	case "bash":
		fmt.Fprintf(m.out, "# Bash completion for propindex\n")
		fmt.Fprintf(m.out, "# Add to ~/.bashrc: source <(propindex completion bash)\n")
		fmt.Fprintf(m.out, "_propindex_completion() {\n")
		fmt.Fprintf(m.out, "  COMPREPLY=($(compgen -W '%s' -- \"${COMP_WORDS[COMP_CWORD]}\"))\n", words)
		fmt.Fprintf(m.out, "}\n")
		fmt.Fprintf(m.out, "complete -F _propindex_completion propindex\n")
	case "zsh":
		fmt.Fprintf(m.out, "#compdef propindex\n")
		fmt.Fprintf(m.out, "# Add to ~/.zshrc: source <(propindex completion zsh)\n")
		fmt.Fprintf(m.out, "_propindex() {\n")
		fmt.Fprintf(m.out, "  _arguments '1: :(%s)'\n", words)
		fmt.Fprintf(m.out, "}\n")
	case "fish":
		fmt.Fprintf(m.out, "# Fish completion for propindex\n")
		fmt.Fprintf(m.out, "complete -c propindex -f -a '%s'\n", words)
	default:
		return errors.New(internalcli.ErrCodeInvalidArgument, fmt.Sprintf("unsupported shell: %s", shell))
	}
	return nil
}

func (m *Manager) writeJSON(v interface{}) error {
	enc := json.NewEncoder(m.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, propindex.ErrCodeIOError, "failed to write JSON output")
	}
	return nil
}
