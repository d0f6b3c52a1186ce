// env_config.go: Environment variable support for the property index
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// EnvPrefix prefixes every environment variable read by LoadConfigFromEnv.
const EnvPrefix = "PROPINDEX_"

// EnvConfig is the raw configuration read from PROPINDEX_* variables.
type EnvConfig struct {
	SubPaths  []string `env:"PROPINDEX_SUB_PATHS"`
	BaseNames []string `env:"PROPINDEX_BASE_NAMES"`
	Profiles  []string `env:"PROPINDEX_PROFILES"`
	Formats   []string `env:"PROPINDEX_FORMATS"`

	FileWatch       string        `env:"PROPINDEX_FILE_WATCH"`
	PollInterval    time.Duration `env:"PROPINDEX_POLL_INTERVAL"`
	CacheTTL        time.Duration `env:"PROPINDEX_CACHE_TTL"`
	MaxWatchedFiles int           `env:"PROPINDEX_MAX_WATCHED_FILES"`
	FeedBuffer      int           `env:"PROPINDEX_FEED_BUFFER"`
	ReadConcurrency int           `env:"PROPINDEX_READ_CONCURRENCY"`
	LogLevel        string        `env:"PROPINDEX_LOG_LEVEL"`

	AuditEnabled       bool          `env:"PROPINDEX_AUDIT_ENABLED"`
	AuditOutputFile    string        `env:"PROPINDEX_AUDIT_OUTPUT_FILE"`
	AuditMinLevel      string        `env:"PROPINDEX_AUDIT_MIN_LEVEL"`
	AuditBufferSize    int           `env:"PROPINDEX_AUDIT_BUFFER_SIZE"`
	AuditFlushInterval time.Duration `env:"PROPINDEX_AUDIT_FLUSH_INTERVAL"`
}

// LoadConfigFromEnv builds a configuration from PROPINDEX_* variables, with
// defaults for everything unset.
func LoadConfigFromEnv() (*Config, error) {
	envConfig := &EnvConfig{}
	if err := loadEnvVars(envConfig); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to load environment configuration")
	}

	config := &Config{}
	if err := convertEnvToConfig(envConfig, config); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to convert environment configuration")
	}
	return config.WithDefaults(), nil
}

// LoadConfigMultiSource loads configuration with precedence, highest first:
// environment variables, the configuration file (if non-empty), defaults.
func LoadConfigMultiSource(configFile string) (*Config, error) {
	config := &Config{}
	if configFile != "" {
		loaded, err := LoadConfigFile(configFile)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	envConfig := &EnvConfig{}
	if err := loadEnvVars(envConfig); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to load environment configuration")
	}
	if err := convertEnvToConfig(envConfig, config); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to merge environment configuration")
	}
	return config.WithDefaults(), nil
}

func loadEnvVars(envConfig *EnvConfig) error {
	if err := loadNamingEnv(envConfig); err != nil {
		return err
	}
	if err := loadRuntimeEnv(envConfig); err != nil {
		return err
	}
	return loadAuditEnv(envConfig)
}

func loadNamingEnv(envConfig *EnvConfig) error {
	if v, ok := os.LookupEnv(EnvPrefix + "SUB_PATHS"); ok {
		// An explicitly empty element keeps the root itself, e.g. ",config"
		envConfig.SubPaths = splitList(v, true)
	}
	envConfig.BaseNames = splitList(os.Getenv(EnvPrefix+"BASE_NAMES"), false)
	envConfig.Profiles = splitList(os.Getenv(EnvPrefix+"PROFILES"), false)
	envConfig.Formats = splitList(os.Getenv(EnvPrefix+"FORMATS"), false)
	return nil
}

func loadRuntimeEnv(envConfig *EnvConfig) error {
	envConfig.FileWatch = os.Getenv(EnvPrefix + "FILE_WATCH")
	envConfig.LogLevel = os.Getenv(EnvPrefix + "LOG_LEVEL")

	var err error
	if envConfig.PollInterval, err = envDuration("POLL_INTERVAL"); err != nil {
		return err
	}
	if envConfig.CacheTTL, err = envDuration("CACHE_TTL"); err != nil {
		return err
	}
	if envConfig.MaxWatchedFiles, err = envInt("MAX_WATCHED_FILES"); err != nil {
		return err
	}
	if envConfig.FeedBuffer, err = envInt("FEED_BUFFER"); err != nil {
		return err
	}
	if envConfig.ReadConcurrency, err = envInt("READ_CONCURRENCY"); err != nil {
		return err
	}
	return nil
}

func loadAuditEnv(envConfig *EnvConfig) error {
	if v := os.Getenv(EnvPrefix + "AUDIT_ENABLED"); v != "" {
		envConfig.AuditEnabled = parseBool(v)
	}
	envConfig.AuditOutputFile = os.Getenv(EnvPrefix + "AUDIT_OUTPUT_FILE")
	envConfig.AuditMinLevel = os.Getenv(EnvPrefix + "AUDIT_MIN_LEVEL")

	var err error
	if envConfig.AuditBufferSize, err = envInt("AUDIT_BUFFER_SIZE"); err != nil {
		return err
	}
	if envConfig.AuditFlushInterval, err = envDuration("AUDIT_FLUSH_INTERVAL"); err != nil {
		return err
	}
	return nil
}

func envDuration(name string) (time.Duration, error) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, errors.New(ErrCodeInvalidConfig, "invalid "+EnvPrefix+name+" format").
			WithContext("value", v)
	}
	return d, nil
}

func envInt(name string) (int, error) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.New(ErrCodeInvalidConfig, "invalid "+EnvPrefix+name+" value").
			WithContext("value", v)
	}
	return n, nil
}

// convertEnvToConfig overlays the set environment values onto config.
func convertEnvToConfig(envConfig *EnvConfig, config *Config) error {
	if envConfig.SubPaths != nil {
		config.ResourceSubPaths = envConfig.SubPaths
	}
	if len(envConfig.BaseNames) > 0 {
		config.BaseNames = envConfig.BaseNames
	}
	if len(envConfig.Profiles) > 0 {
		config.Profiles = envConfig.Profiles
	}
	if len(envConfig.Formats) > 0 {
		formats, err := parseFormats(envConfig.Formats)
		if err != nil {
			return err
		}
		config.Formats = formats
	}

	if envConfig.FileWatch != "" {
		mode, err := ParseFileWatchMode(envConfig.FileWatch)
		if err != nil {
			return err
		}
		config.FileWatch = mode
	}
	if envConfig.PollInterval != 0 {
		config.PollInterval = envConfig.PollInterval
	}
	if envConfig.CacheTTL != 0 {
		config.CacheTTL = envConfig.CacheTTL
	}
	if envConfig.MaxWatchedFiles != 0 {
		config.MaxWatchedFiles = envConfig.MaxWatchedFiles
	}
	if envConfig.FeedBuffer != 0 {
		config.FeedBuffer = envConfig.FeedBuffer
	}
	if envConfig.ReadConcurrency != 0 {
		config.ReadConcurrency = envConfig.ReadConcurrency
	}
	if envConfig.LogLevel != "" {
		config.LogLevel = envConfig.LogLevel
	}

	return convertAuditEnv(envConfig, config)
}

func convertAuditEnv(envConfig *EnvConfig, config *Config) error {
	if !envConfig.AuditEnabled && envConfig.AuditOutputFile == "" {
		return nil
	}
	if config.Audit == (AuditConfig{}) {
		config.Audit = DefaultAuditConfig()
	}
	config.Audit.Enabled = envConfig.AuditEnabled
	if envConfig.AuditOutputFile != "" {
		config.Audit.OutputFile = envConfig.AuditOutputFile
	}
	if envConfig.AuditMinLevel != "" {
		level, err := ParseAuditLevel(envConfig.AuditMinLevel)
		if err != nil {
			return err
		}
		config.Audit.MinLevel = level
	}
	if envConfig.AuditBufferSize > 0 {
		config.Audit.BufferSize = envConfig.AuditBufferSize
	}
	if envConfig.AuditFlushInterval > 0 {
		config.Audit.FlushInterval = envConfig.AuditFlushInterval
	}
	return nil
}

// parseFormats maps format names to ResourceFormat values.
func parseFormats(names []string) ([]ResourceFormat, error) {
	out := make([]ResourceFormat, 0, len(names))
	for _, name := range names {
		f := ParseFormat(name)
		if f == FormatUnknown {
			return nil, errors.New(ErrCodeUnsupportedFormat, "unknown resource format").
				WithContext("format", name)
		}
		out = append(out, f)
	}
	return out, nil
}

// splitList splits a comma-separated list, trimming elements. Empty
// elements are dropped unless keepEmpty is set.
func splitList(value string, keepEmpty bool) []string {
	if strings.TrimSpace(value) == "" {
		if keepEmpty {
			return []string{""}
		}
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" && !keepEmpty {
			continue
		}
		out = append(out, p)
	}
	return out
}

// parseBool accepts true/false, 1/0, yes/no, on/off, enabled/disabled.
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on", "enabled":
		return true
	default:
		return false
	}
}
