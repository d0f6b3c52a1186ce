// Package cli provides the propindex command line interface.
//
// The CLI is built on the Orpheus framework, with git-style subcommands:
//   - list / resources: build and inspect the property index of a directory
//   - watch: keep the index live and print changes
//   - conditions: match an autoconfiguration report against a type or method
//   - audit: query, clean up and summarize the audit trail
//   - info, benchmark, completion: diagnostics
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"io"
	"os"

	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/agilira/propindex"
	"github.com/charmbracelet/log"
)

// Version is reported by info and --version.
const Version = "1.0.0"

// Manager wires the propindex commands into an Orpheus application.
type Manager struct {
	app         *orpheus.App
	config      propindex.Config
	auditLogger *propindex.AuditLogger // optional
	out         io.Writer
	logger      *log.Logger
}

// NewManager creates a manager with default configuration writing to stdout.
func NewManager() *Manager {
	app := orpheus.New("propindex").
		SetDescription("Live property index over .properties and YAML configuration resources").
		SetVersion(Version)

	manager := &Manager{
		app:    app,
		out:    os.Stdout,
		logger: propindex.NewLogger(propindex.DefaultLogLevel),
	}

	manager.setupIndexCommands()
	manager.setupWatchCommands()
	manager.setupConditionsCommands()
	manager.setupUtilityCommands()

	return manager
}

// Commands lists the top-level command names.
func Commands() []string {
	return []string{"list", "resources", "watch", "conditions", "audit", "benchmark", "info", "completion"}
}

// WithConfig sets the index configuration used by every command.
func (m *Manager) WithConfig(config propindex.Config) *Manager {
	m.config = config
	if config.Logger != nil {
		m.logger = config.Logger
	} else if config.LogLevel != "" {
		m.logger = propindex.NewLogger(config.LogLevel)
	}
	return m
}

// WithAudit enables audit commands and records CLI operations.
func (m *Manager) WithAudit(auditLogger *propindex.AuditLogger) *Manager {
	m.auditLogger = auditLogger
	return m
}

// WithOutput redirects command output, e.g. to a buffer in tests.
func (m *Manager) WithOutput(w io.Writer) *Manager {
	m.out = w
	return m
}

// Run executes the command line (without the program name).
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

func (m *Manager) setupIndexCommands() {
	// list <dir> [--roots=a,b] [--prefix=server.] [--json]
	listCmd := orpheus.NewCommand("list", "Print the property index of a project directory").
		AddFlag("roots", "r", "", "Comma-separated source roots (default: discovered)").
		AddFlag("prefix", "p", "", "Only ids starting with this prefix").
		AddBoolFlag("json", "j", false, "JSON output").
		SetHandler(m.handleList)
	m.app.AddCommand(listCmd)

	// resources <dir> [--roots=a,b] [--all]
	resourcesCmd := orpheus.NewCommand("resources", "List the configuration resources of a project directory").
		AddFlag("roots", "r", "", "Comma-separated source roots (default: discovered)").
		AddBoolFlag("all", "a", false, "Include candidate paths that do not exist").
		SetHandler(m.handleResources)
	m.app.AddCommand(resourcesCmd)
}

func (m *Manager) setupWatchCommands() {
	// watch <dir> [--interval=2s] [--notify] [--for=0]
	watchCmd := orpheus.NewCommand("watch", "Keep the index of a project directory live and print changes")
	watchCmd.SetHandler(m.handleWatch)
	watchCmd.AddFlag("roots", "r", "", "Comma-separated source roots (default: discovered)")
	watchCmd.AddFlag("interval", "i", "2s", "Polling interval")
	watchCmd.AddFlag("for", "", "0", "Stop after this long (0 runs until interrupted)")
	watchCmd.AddBoolFlag("notify", "n", false, "Use file system notifications instead of polling")
	watchCmd.AddBoolFlag("verbose", "v", false, "Print every changed id")
	m.app.AddCommand(watchCmd)
}

func (m *Manager) setupConditionsCommands() {
	// conditions <report.json> <Scope> [member] [--annotation=ConditionalOnClass]
	conditionsCmd := orpheus.NewCommand("conditions", "Show report conditions matching a type or method").
		AddFlag("annotation", "a", "", "Annotation simple name filter").
		AddBoolFlag("json", "j", false, "JSON output").
		SetHandler(m.handleConditions)
	m.app.AddCommand(conditionsCmd)
}

func (m *Manager) setupUtilityCommands() {
	auditCmd := orpheus.NewCommand("audit", "Audit trail management")

	queryCmd := auditCmd.Subcommand("query", "Query audit events", m.handleAuditQuery)
	queryCmd.AddFlag("since", "s", "24h", "Time range (e.g., 24h, 7d, 2w)")
	queryCmd.AddFlag("event", "e", "", "Event type filter")
	queryCmd.AddFlag("file", "f", "", "File path filter")
	queryCmd.AddFlag("project", "p", "", "Project id filter")
	queryCmd.AddIntFlag("limit", "l", 100, "Maximum results")

	cleanupCmd := auditCmd.Subcommand("cleanup", "Delete old audit events", m.handleAuditCleanup)
	cleanupCmd.AddFlag("older-than", "o", "30d", "Delete entries older than")
	cleanupCmd.AddBoolFlag("dry-run", "d", false, "Show what would be deleted")

	auditCmd.Subcommand("stats", "Audit trail statistics", m.handleAuditStats)

	m.app.AddCommand(auditCmd)

	benchmarkCmd := orpheus.NewCommand("benchmark", "Measure index build time for a project directory")
	benchmarkCmd.SetHandler(m.handleBenchmark)
	benchmarkCmd.AddFlag("roots", "r", "", "Comma-separated source roots (default: discovered)")
	benchmarkCmd.AddIntFlag("iterations", "i", 100, "Number of builds")
	m.app.AddCommand(benchmarkCmd)

	infoCmd := orpheus.NewCommand("info", "Effective configuration and diagnostics")
	infoCmd.SetHandler(m.handleInfo)
	infoCmd.AddBoolFlag("verbose", "v", false, "Verbose information")
	m.app.AddCommand(infoCmd)

	completionCmd := orpheus.NewCommand("completion", "Generate shell completion scripts")
	completionCmd.SetHandler(m.handleCompletion)
	m.app.AddCommand(completionCmd)
}
