// config_file.go: Loading the index configuration from JSON, YAML or TOML files
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"encoding/json"
	"os"
	"time"

	"github.com/agilira/go-errors"
	"github.com/pelletier/go-toml/v2"
	"go.yaml.in/yaml/v3"
)

// FileConfig is the on-disk shape of Config. Durations are strings such as
// "2s"; formats and the watch mode are names.
type FileConfig struct {
	ResourceSubPaths []string        `json:"resource_sub_paths" yaml:"resource_sub_paths" toml:"resource_sub_paths"`
	BaseNames        []string        `json:"base_names" yaml:"base_names" toml:"base_names"`
	Profiles         []string        `json:"profiles" yaml:"profiles" toml:"profiles"`
	Formats          []string        `json:"formats" yaml:"formats" toml:"formats"`
	FileWatch        string          `json:"file_watch" yaml:"file_watch" toml:"file_watch"`
	PollInterval     string          `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	CacheTTL         string          `json:"cache_ttl" yaml:"cache_ttl" toml:"cache_ttl"`
	MaxWatchedFiles  int             `json:"max_watched_files" yaml:"max_watched_files" toml:"max_watched_files"`
	FeedBuffer       int             `json:"feed_buffer" yaml:"feed_buffer" toml:"feed_buffer"`
	ReadConcurrency  int             `json:"read_concurrency" yaml:"read_concurrency" toml:"read_concurrency"`
	LogLevel         string          `json:"log_level" yaml:"log_level" toml:"log_level"`
	Audit            FileAuditConfig `json:"audit" yaml:"audit" toml:"audit"`
}

// FileAuditConfig is the on-disk shape of AuditConfig.
type FileAuditConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	OutputFile    string `json:"output_file" yaml:"output_file" toml:"output_file"`
	MinLevel      string `json:"min_level" yaml:"min_level" toml:"min_level"`
	BufferSize    int    `json:"buffer_size" yaml:"buffer_size" toml:"buffer_size"`
	FlushInterval string `json:"flush_interval" yaml:"flush_interval" toml:"flush_interval"`
	RetentionDays int    `json:"retention_days" yaml:"retention_days" toml:"retention_days"`
}

// LoadConfigFile reads a configuration file; the format follows the
// extension (.json, .yaml/.yml, .toml). Unset fields are left zero so that
// WithDefaults can fill them later.
func LoadConfigFile(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New(ErrCodeInvalidConfig, "configuration file path cannot be empty")
	}
	if err := ValidateSecurePath(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path validated above
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeIOError, "failed to read config file").
			WithContext("path", path)
	}

	var fc FileConfig
	switch DetectFormat(path) {
	case FormatJSON:
		err = json.Unmarshal(data, &fc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &fc)
	case FormatTOML:
		err = toml.Unmarshal(data, &fc)
	default:
		return nil, errors.New(ErrCodeUnsupportedFormat, "config file must be .json, .yaml, .yml or .toml").
			WithContext("path", path)
	}
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to parse config file").
			WithContext("path", path)
	}

	return fc.toConfig()
}

func (fc FileConfig) toConfig() (*Config, error) {
	config := &Config{
		ResourceSubPaths: fc.ResourceSubPaths,
		BaseNames:        fc.BaseNames,
		Profiles:         fc.Profiles,
		MaxWatchedFiles:  fc.MaxWatchedFiles,
		FeedBuffer:       fc.FeedBuffer,
		ReadConcurrency:  fc.ReadConcurrency,
		LogLevel:         fc.LogLevel,
	}

	var err error
	if len(fc.Formats) > 0 {
		if config.Formats, err = parseFormats(fc.Formats); err != nil {
			return nil, err
		}
	}
	if fc.FileWatch != "" {
		if config.FileWatch, err = ParseFileWatchMode(fc.FileWatch); err != nil {
			return nil, err
		}
	}
	if config.PollInterval, err = parseFileDuration("poll_interval", fc.PollInterval); err != nil {
		return nil, err
	}
	if config.CacheTTL, err = parseFileDuration("cache_ttl", fc.CacheTTL); err != nil {
		return nil, err
	}

	if fc.Audit != (FileAuditConfig{}) {
		audit := DefaultAuditConfig()
		audit.Enabled = fc.Audit.Enabled
		audit.OutputFile = fc.Audit.OutputFile
		if fc.Audit.MinLevel != "" {
			if audit.MinLevel, err = ParseAuditLevel(fc.Audit.MinLevel); err != nil {
				return nil, err
			}
		}
		if fc.Audit.BufferSize != 0 {
			audit.BufferSize = fc.Audit.BufferSize
		}
		if fc.Audit.FlushInterval != "" {
			if audit.FlushInterval, err = parseFileDuration("audit.flush_interval", fc.Audit.FlushInterval); err != nil {
				return nil, err
			}
		}
		if fc.Audit.RetentionDays != 0 {
			audit.RetentionDays = fc.Audit.RetentionDays
		}
		config.Audit = audit
	}

	return config, nil
}

func parseFileDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeInvalidConfig, "invalid duration in config file").
			WithContext("field", field).
			WithContext("value", value)
	}
	return d, nil
}
