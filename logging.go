// logging.go: Default structured logger and soft-warning handler
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"os"

	"github.com/agilira/go-errors"
	"github.com/charmbracelet/log"
)

// NewLogger returns a stderr logger with the propindex prefix. An unknown
// level falls back to info.
func NewLogger(level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          auditComponent,
		Level:           lvl,
		ReportTimestamp: true,
	})
}

// LogErrorHandler returns an ErrorHandler that logs soft warnings at warn
// level, with the error code and path as fields.
func LogErrorHandler(logger *log.Logger) ErrorHandler {
	if logger == nil {
		logger = NewLogger(DefaultLogLevel)
	}
	return func(err error, path string) {
		if err == nil {
			return
		}
		keyvals := []interface{}{"error", err}
		if coder, ok := err.(errors.ErrorCoder); ok {
			keyvals = append(keyvals, "code", string(coder.ErrorCode()))
		}
		if path != "" {
			keyvals = append(keyvals, "path", path)
		}
		logger.Warn("property index warning", keyvals...)
	}
}
