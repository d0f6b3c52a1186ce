// Shared helpers for the propindex command line
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// ErrCodeInvalidArgument is returned for malformed command line input.
const ErrCodeInvalidArgument = "PROPINDEX_INVALID_ARGUMENT"

// wellKnownRoots are the resource directories of common project layouts,
// in priority order.
var wellKnownRoots = []string{
	filepath.Join("src", "main", "resources"),
	filepath.Join("src", "test", "resources"),
	"resources",
}

var extendedDuration = regexp.MustCompile(`^(\d+)(d|w)$`)

// DiscoverSourceRoots returns the well-known resource directories that exist
// under dir, or dir itself when none does.
func DiscoverSourceRoots(dir string) []string {
	var roots []string
	for _, rel := range wellKnownRoots {
		candidate := filepath.Join(dir, rel)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			roots = append(roots, candidate)
		}
	}
	if len(roots) == 0 {
		return []string{dir}
	}
	return roots
}

// SplitList splits a comma-separated flag value, dropping empty elements.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseExtendedDuration parses Go durations plus days (d) and weeks (w),
// e.g. "30d", "2w", "24h".
func ParseExtendedDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	matches := extendedDuration.FindStringSubmatch(strings.TrimSpace(s))
	if len(matches) != 3 {
		return 0, errors.New(ErrCodeInvalidArgument, "invalid duration").
			WithContext("value", s)
	}

	value, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeInvalidArgument, "invalid duration value").
			WithContext("value", s)
	}

	switch matches[2] {
	case "w":
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	default:
		return time.Duration(value) * 24 * time.Hour, nil
	}
}

// SplitGlobalArgs separates global flags from the command line: everything
// before the first argument that names a command is global.
func SplitGlobalArgs(args []string, commands []string) (global, rest []string) {
	known := make(map[string]bool, len(commands))
	for _, c := range commands {
		known[c] = true
	}
	for i, arg := range args {
		if known[arg] {
			return args[:i], args[i:]
		}
	}
	return args, nil
}
