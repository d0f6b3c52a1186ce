// config.go: Configuration for the property index
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// FileWatchMode selects the File Feed producer used by NewLiveProvider.
type FileWatchMode int

const (
	// FileWatchPoll stats candidate resources every PollInterval.
	FileWatchPoll FileWatchMode = iota
	// FileWatchNotify uses OS notifications on the source-root directories.
	FileWatchNotify
	// FileWatchNone disables the File Feed; every query rebuilds.
	FileWatchNone
)

func (m FileWatchMode) String() string {
	switch m {
	case FileWatchPoll:
		return "poll"
	case FileWatchNotify:
		return "notify"
	case FileWatchNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseFileWatchMode parses "poll", "notify" or "none".
func ParseFileWatchMode(s string) (FileWatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "poll", "":
		return FileWatchPoll, nil
	case "notify", "fsnotify":
		return FileWatchNotify, nil
	case "none", "off":
		return FileWatchNone, nil
	default:
		return FileWatchPoll, errors.New(ErrCodeInvalidConfig, "unknown file watch mode").
			WithContext("mode", s)
	}
}

// Config configures locating, parsing, caching and watching.
type Config struct {
	// ResourceSubPaths are searched below every source root, in order.
	// Default: "" (the root itself) then "config".
	ResourceSubPaths []string

	// BaseNames are the resource base names. Default: "application".
	BaseNames []string

	// Profiles add base-profile variants after each base name, e.g.
	// application-dev.yml. Default: none.
	Profiles []string

	// Formats are the enabled resource formats. Default: properties and YAML.
	Formats []ResourceFormat

	// FileWatch selects the File Feed producer. Default: FileWatchPoll.
	FileWatch FileWatchMode

	// PollInterval is how often the poller stats watched files. Default: 2s.
	PollInterval time.Duration

	// CacheTTL is how long stat results are reused. Must be <= PollInterval.
	// Default: PollInterval / 2.
	CacheTTL time.Duration

	// MaxWatchedFiles caps the candidate paths a poller observes. Default: 4096.
	MaxWatchedFiles int

	// FeedBuffer is the channel buffer of each feed subscription. Default: 64.
	FeedBuffer int

	// ReadConcurrency bounds parallel resource reads per build. Default: 8.
	ReadConcurrency int

	// LogLevel of the default logger: debug, info, warn or error. Default: info.
	LogLevel string

	// Audit configures the audit trail. Default: disabled.
	Audit AuditConfig

	// ErrorHandler receives soft warnings (unreadable or malformed
	// resources, unresolved documents). Default: logs through Logger.
	ErrorHandler ErrorHandler

	// Logger is used by the default ErrorHandler and by watchers.
	// Default: a stderr logger at LogLevel.
	Logger *log.Logger

	// Fs is the filesystem resources are read from. Default: the OS.
	Fs afero.Fs
}

// Default values.
const (
	DefaultPollInterval    = 2 * time.Second
	DefaultMaxWatchedFiles = 4096
	DefaultFeedBuffer      = 64
	DefaultReadConcurrency = 8
	DefaultLogLevel        = "info"
)

// WithDefaults returns a copy of the configuration with zero fields filled.
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.ResourceSubPaths == nil {
		config.ResourceSubPaths = []string{"", "config"}
	}
	if len(config.BaseNames) == 0 {
		config.BaseNames = []string{"application"}
	}
	if len(config.Formats) == 0 {
		config.Formats = []ResourceFormat{FormatProperties, FormatYAML}
	}

	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.CacheTTL <= 0 || config.CacheTTL > config.PollInterval {
		config.CacheTTL = config.PollInterval / 2
	}
	if config.MaxWatchedFiles <= 0 {
		config.MaxWatchedFiles = DefaultMaxWatchedFiles
	}
	if config.FeedBuffer <= 0 {
		config.FeedBuffer = DefaultFeedBuffer
	}
	if config.ReadConcurrency <= 0 {
		config.ReadConcurrency = DefaultReadConcurrency
	}
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevel
	}

	if config.Audit == (AuditConfig{}) {
		config.Audit = DefaultAuditConfig()
	}

	if config.Logger == nil {
		config.Logger = NewLogger(config.LogLevel)
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = LogErrorHandler(config.Logger)
	}
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}

	return &config
}
