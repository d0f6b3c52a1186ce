// integration.go: Command line flags for the index configuration, via FlashFlags
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"strings"

	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/go-errors"
)

// Flag names registered by NewConfigFlags.
const (
	FlagConfig          = "config"
	FlagSubPaths        = "sub-paths"
	FlagBaseNames       = "base-names"
	FlagProfiles        = "profiles"
	FlagFormats         = "formats"
	FlagFileWatch       = "file-watch"
	FlagPollInterval    = "poll-interval"
	FlagCacheTTL        = "cache-ttl"
	FlagMaxWatchedFiles = "max-watched-files"
	FlagFeedBuffer      = "feed-buffer"
	FlagReadConcurrency = "read-concurrency"
	FlagLogLevel        = "log-level"
	FlagAudit           = "audit"
	FlagAuditFile       = "audit-file"
)

// ErrHelpRequested is returned by ConfigFlags.Parse for -h and --help.
var ErrHelpRequested = errors.New(ErrCodeInvalidConfig, "help requested")

// ConfigFlags binds every Config knob to a command line flag. Flags left at
// their zero default do not override the configuration file or environment.
//
//	flags := propindex.NewConfigFlags("propindex")
//	if err := flags.Parse(os.Args[1:]); err != nil {
//	    return err
//	}
//	cfg, err := flags.Config()
type ConfigFlags struct {
	flags   *flashflags.FlagSet
	appName string
}

// NewConfigFlags registers the configuration flags on a new FlashFlags set.
func NewConfigFlags(appName string) *ConfigFlags {
	fs := flashflags.New(appName)

	fs.String(FlagConfig, "", "Configuration file (.json, .yaml, .yml, .toml)")
	fs.String(FlagSubPaths, "", "Comma-separated sub-paths searched in each root; a leading comma keeps the root itself")
	fs.StringSlice(FlagBaseNames, nil, "Resource base names (default application)")
	fs.StringSlice(FlagProfiles, nil, "Active profiles, e.g. dev,local")
	fs.StringSlice(FlagFormats, nil, "Resource formats: properties,yaml,json,toml")
	fs.String(FlagFileWatch, "", "File watch strategy: poll, notify or none")
	fs.Duration(FlagPollInterval, 0, "Poll interval for the poll strategy (default 2s)")
	fs.Duration(FlagCacheTTL, 0, "Stat cache TTL for the poll strategy")
	fs.Int(FlagMaxWatchedFiles, 0, "Maximum number of watched paths")
	fs.Int(FlagFeedBuffer, 0, "Per-subscriber change feed buffer")
	fs.Int(FlagReadConcurrency, 0, "Resources read in parallel per build")
	fs.String(FlagLogLevel, "", "Log level: debug, info, warn, error")
	fs.Bool(FlagAudit, false, "Record an audit trail")
	fs.String(FlagAuditFile, "", "Audit output (.db for SQLite, .jsonl for JSON lines)")

	return &ConfigFlags{flags: fs, appName: appName}
}

// SetDescription sets the description shown in help.
func (cf *ConfigFlags) SetDescription(description string) *ConfigFlags {
	cf.flags.SetDescription(description)
	return cf
}

// SetVersion sets the version shown in help.
func (cf *ConfigFlags) SetVersion(version string) *ConfigFlags {
	cf.flags.SetVersion(version)
	return cf
}

// FlagSet exposes the underlying FlashFlags set for extra flags.
func (cf *ConfigFlags) FlagSet() *flashflags.FlagSet { return cf.flags }

// Parse parses args. Environment variables with the PROPINDEX prefix are
// honoured by FlashFlags for flags not given on the command line.
func (cf *ConfigFlags) Parse(args []string) error {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return ErrHelpRequested
		}
	}
	cf.flags.SetEnvPrefix(strings.TrimSuffix(EnvPrefix, "_"))
	if err := cf.flags.Parse(args); err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "failed to parse command-line flags")
	}
	return nil
}

// Config returns defaults, overlaid by the configuration file, the
// environment and finally the flags that were set, completed and validated.
func (cf *ConfigFlags) Config() (*Config, error) {
	config, err := LoadConfigMultiSource(cf.flags.GetString(FlagConfig))
	if err != nil {
		return nil, err
	}
	if err := cf.apply(config); err != nil {
		return nil, err
	}
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (cf *ConfigFlags) apply(config *Config) error {
	if v := cf.flags.GetString(FlagSubPaths); v != "" {
		config.ResourceSubPaths = splitList(v, true)
	}
	if v := cf.flags.GetStringSlice(FlagBaseNames); len(v) > 0 {
		config.BaseNames = v
	}
	if v := cf.flags.GetStringSlice(FlagProfiles); len(v) > 0 {
		config.Profiles = v
	}
	if v := cf.flags.GetStringSlice(FlagFormats); len(v) > 0 {
		formats, err := parseFormats(v)
		if err != nil {
			return err
		}
		config.Formats = formats
	}
	if v := cf.flags.GetString(FlagFileWatch); v != "" {
		mode, err := ParseFileWatchMode(v)
		if err != nil {
			return err
		}
		config.FileWatch = mode
	}
	if v := cf.flags.GetDuration(FlagPollInterval); v != 0 {
		config.PollInterval = v
	}
	if v := cf.flags.GetDuration(FlagCacheTTL); v != 0 {
		config.CacheTTL = v
	}
	if v := cf.flags.GetInt(FlagMaxWatchedFiles); v != 0 {
		config.MaxWatchedFiles = v
	}
	if v := cf.flags.GetInt(FlagFeedBuffer); v != 0 {
		config.FeedBuffer = v
	}
	if v := cf.flags.GetInt(FlagReadConcurrency); v != 0 {
		config.ReadConcurrency = v
	}
	if v := cf.flags.GetString(FlagLogLevel); v != "" {
		config.LogLevel = v
	}

	auditOn := cf.flags.GetBool(FlagAudit)
	auditFile := cf.flags.GetString(FlagAuditFile)
	if auditOn || auditFile != "" {
		if config.Audit == (AuditConfig{}) {
			config.Audit = DefaultAuditConfig()
		}
		config.Audit.Enabled = true
		if auditFile != "" {
			config.Audit.OutputFile = auditFile
		}
	}
	return nil
}

// PrintUsage prints help for every flag.
func (cf *ConfigFlags) PrintUsage() { cf.flags.PrintHelp() }

// Names returns the registered flag names.
func (cf *ConfigFlags) Names() []string {
	var names []string
	cf.flags.VisitAll(func(flag *flashflags.Flag) {
		names = append(names, flag.Name())
	})
	return names
}

// FlagToEnvKey returns the environment variable consulted for a flag,
// e.g. poll-interval -> PROPINDEX_POLL_INTERVAL.
func FlagToEnvKey(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
