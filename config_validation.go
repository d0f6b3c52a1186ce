// config_validation.go: Configuration validation with errors and warnings
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/charmbracelet/log"
)

// Validation errors
var (
	ErrInvalidPollInterval    = errors.New(ErrCodeInvalidPollInterval, "poll interval must be positive")
	ErrPollIntervalTooSmall   = errors.New(ErrCodeInvalidPollInterval, "poll interval should be at least 10ms for stability")
	ErrInvalidCacheTTL        = errors.New(ErrCodeInvalidCacheTTL, "cache TTL must not be negative")
	ErrInvalidMaxWatchedFiles = errors.New(ErrCodeInvalidConfig, "max watched files must be positive")
	ErrInvalidFeedBuffer      = errors.New(ErrCodeInvalidBufferSize, "feed buffer must not be negative")
	ErrInvalidConcurrency     = errors.New(ErrCodeInvalidConfig, "read concurrency must not be negative")
	ErrInvalidBufferSize      = errors.New(ErrCodeInvalidBufferSize, "audit buffer size must not be negative")
	ErrInvalidFlushInterval   = errors.New(ErrCodeInvalidFlushInterval, "audit flush interval must not be negative")
	ErrInvalidOutputFile      = errors.New(ErrCodeInvalidOutputFile, "audit output file path is invalid")
)

// ValidationResult contains errors, which make a configuration unusable, and
// warnings, which do not.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	first error
}

func (vr *ValidationResult) fail(err error) {
	if vr.first == nil {
		vr.first = err
	}
	vr.Errors = append(vr.Errors, err.Error())
}

func (vr *ValidationResult) warn(msg string) {
	vr.Warnings = append(vr.Warnings, msg)
}

// String returns a human-readable representation of validation results
func (vr ValidationResult) String() string {
	if vr.Valid {
		if len(vr.Warnings) == 0 {
			return "Configuration is valid"
		}
		return fmt.Sprintf("Configuration is valid with %d warning(s)", len(vr.Warnings))
	}
	return fmt.Sprintf("Configuration is invalid: %d error(s), %d warning(s)",
		len(vr.Errors), len(vr.Warnings))
}

// Validate returns the first validation error, or nil.
func (c *Config) Validate() error {
	result := c.ValidateDetailed()
	if result.Valid {
		return nil
	}
	return result.first
}

// ValidateDetailed reports every error and warning.
func (c *Config) ValidateDetailed() ValidationResult {
	result := ValidationResult{
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
	}

	c.validateWatching(&result)
	c.validateNaming(&result)
	c.validateRuntime(&result)
	c.validateAuditConfig(&result)

	result.Valid = len(result.Errors) == 0
	return result
}

func (c *Config) validateWatching(result *ValidationResult) {
	switch c.FileWatch {
	case FileWatchPoll, FileWatchNotify, FileWatchNone:
	default:
		result.fail(errors.New(ErrCodeInvalidConfig, fmt.Sprintf("unknown file watch mode: %d", int(c.FileWatch))))
	}

	pollIntervalValid := true
	if c.PollInterval <= 0 {
		result.fail(ErrInvalidPollInterval)
		pollIntervalValid = false
	} else if c.PollInterval < 10*time.Millisecond {
		result.fail(ErrPollIntervalTooSmall)
		pollIntervalValid = false
	}

	if c.CacheTTL < 0 {
		result.fail(ErrInvalidCacheTTL)
	} else if pollIntervalValid && c.CacheTTL > c.PollInterval {
		result.warn("cache TTL should not exceed poll interval")
	}

	if c.MaxWatchedFiles <= 0 {
		result.fail(ErrInvalidMaxWatchedFiles)
	} else if c.MaxWatchedFiles > 100000 {
		result.warn("max watched files exceeds recommended limit (100000)")
	}

	if c.FileWatch == FileWatchNone {
		result.warn("file watching disabled: every query rebuilds the index")
	}
}

func isPlainName(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
}

func (c *Config) validateNaming(result *ValidationResult) {
	for _, f := range c.Formats {
		if f < FormatProperties || f >= FormatUnknown {
			result.fail(errors.New(ErrCodeUnsupportedFormat, fmt.Sprintf("unknown resource format: %d", int(f))))
		}
	}
	for _, name := range c.BaseNames {
		if !isPlainName(name) {
			result.fail(errors.New(ErrCodeInvalidConfig, fmt.Sprintf("resource base name must be a plain file name: %q", name)))
		}
	}
	for _, p := range c.Profiles {
		if !isPlainName(p) {
			result.fail(errors.New(ErrCodeInvalidConfig, fmt.Sprintf("profile must be a plain name: %q", p)))
		}
	}
	for _, sub := range c.ResourceSubPaths {
		if sub == "" {
			continue
		}
		clean := filepath.Clean(sub)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			result.fail(errors.New(ErrCodeInvalidConfig, fmt.Sprintf("resource sub-path must be relative and stay below the root: %q", sub)))
		}
	}
}

func (c *Config) validateRuntime(result *ValidationResult) {
	if c.FeedBuffer < 0 {
		result.fail(ErrInvalidFeedBuffer)
	} else if c.FeedBuffer == 0 {
		result.warn("unbuffered feeds make publishers wait for every invalidation")
	}

	if c.ReadConcurrency < 0 {
		result.fail(ErrInvalidConcurrency)
	} else if c.ReadConcurrency > 256 {
		result.warn("read concurrency above 256 rarely helps and may exhaust file descriptors")
	}

	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			result.fail(errors.New(ErrCodeInvalidLogLevel, fmt.Sprintf("log level must be debug, info, warn or error: %q", c.LogLevel)))
		}
	}
}

// validateAuditConfig validates the audit section when enabled.
func (c *Config) validateAuditConfig(result *ValidationResult) {
	if !c.Audit.Enabled {
		return
	}

	if c.Audit.BufferSize < 0 {
		result.fail(ErrInvalidBufferSize)
	} else if c.Audit.BufferSize > 10000 {
		result.warn("large audit buffer size may consume significant memory")
	}

	if c.Audit.FlushInterval < 0 {
		result.fail(ErrInvalidFlushInterval)
	}

	if c.Audit.OutputFile == "" {
		result.warn("audit output file not set: events go to " + DefaultAuditPath())
		return
	}
	switch filepath.Ext(c.Audit.OutputFile) {
	case ".db", ".jsonl":
	default:
		result.warn("audit output file has neither .db nor .jsonl extension: events go to " + DefaultAuditPath())
	}
	if err := validateOutputFile(c.Audit.OutputFile); err != nil {
		result.fail(err)
	}
}

// validateOutputFile checks that the audit file's directory exists.
func validateOutputFile(outputFile string) error {
	cleanPath := filepath.Clean(outputFile)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New(ErrCodeInvalidOutputFile,
			fmt.Sprintf("path '%s' is not a valid file path", outputFile))
	}
	if err := ValidateSecurePath(cleanPath); err != nil {
		return errors.Wrap(err, ErrCodeInvalidOutputFile, "audit output file path is unsafe")
	}

	dir := filepath.Dir(cleanPath)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New(ErrCodeInvalidOutputFile,
				fmt.Sprintf("directory '%s' does not exist", dir))
		}
		return errors.Wrap(err, ErrCodeInvalidOutputFile,
			fmt.Sprintf("cannot access directory '%s'", dir))
	}
	if !info.IsDir() {
		return errors.New(ErrCodeInvalidOutputFile,
			fmt.Sprintf("'%s' is not a directory", dir))
	}
	return nil
}

// ValidateEnvironmentConfig loads the configuration from PROPINDEX_*
// variables and validates it.
func ValidateEnvironmentConfig() error {
	config, err := LoadConfigFromEnv()
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "failed to load config from environment")
	}
	return config.Validate()
}

// ValidateConfigFile loads a configuration file and validates it.
func ValidateConfigFile(configPath string) error {
	config, err := LoadConfigFile(configPath)
	if err != nil {
		return err
	}
	return config.WithDefaults().Validate()
}

// GetValidationErrorCode extracts the error code of a validation error.
func GetValidationErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if coder, ok := err.(errors.ErrorCoder); ok {
		return string(coder.ErrorCode())
	}
	return ""
}

// IsValidationError reports whether err carries a PROPINDEX_ code.
func IsValidationError(err error) bool {
	return strings.HasPrefix(GetValidationErrorCode(err), "PROPINDEX_")
}
