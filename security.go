// security.go: Path validation for resources and watched paths
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agilira/go-errors"
)

// maxPathLength and maxPathDepth bound the paths we are willing to stat or read.
const (
	maxPathLength = 4096
	maxPathDepth  = 64
)

// ValidateSecurePath checks that a resource or root path is safe to read.
//
// Rejected: empty paths, parent-directory segments, URL-encoded traversal,
// null bytes and control characters, well-known system locations, Windows
// device names, and paths that are too long or too deep.
func ValidateSecurePath(path string) error {
	if path == "" {
		return errors.New(ErrCodeUnsafePath, "empty path not allowed")
	}

	if len(path) > maxPathLength {
		return errors.New(ErrCodeUnsafePath, fmt.Sprintf("path too long (max %d characters): %d", maxPathLength, len(path)))
	}

	for _, char := range path {
		if char == 0 {
			return errors.New(ErrCodeUnsafePath, "null byte in path not allowed")
		}
		if char < 32 {
			return errors.New(ErrCodeUnsafePath, fmt.Sprintf("control character in path not allowed: %d", char))
		}
	}

	// Traversal is checked per segment so names like "a..b" stay legal
	normalized := strings.ReplaceAll(path, "\\", "/")
	segments := strings.Split(normalized, "/")
	for _, seg := range segments {
		if seg == ".." {
			return errors.New(ErrCodeUnsafePath, "path contains parent directory reference")
		}
	}
	if len(segments) > maxPathDepth {
		return errors.New(ErrCodeUnsafePath, fmt.Sprintf("path too complex (max %d directory levels): %d", maxPathDepth, len(segments)))
	}

	lower := strings.ToLower(normalized)
	for _, pattern := range []string{"%2e%2e", "%252e", "%2f", "%252f", "%5c", "%255c", "%00"} {
		if strings.Contains(lower, pattern) {
			return errors.New(ErrCodeUnsafePath, "path contains URL-encoded traversal pattern: "+pattern)
		}
	}

	if sensitive := systemLocation(lower); sensitive != "" {
		return errors.New(ErrCodeUnsafePath, "access to system file/directory not allowed: "+sensitive)
	}

	base := strings.ToUpper(filepath.Base(normalized))
	if dot := strings.Index(base, "."); dot != -1 {
		base = base[:dot]
	}
	switch base {
	case "CON", "PRN", "AUX", "NUL",
		"COM1", "COM2", "COM3", "COM4", "COM5", "COM6", "COM7", "COM8", "COM9",
		"LPT1", "LPT2", "LPT3", "LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9":
		return errors.New(ErrCodeUnsafePath, "windows device name not allowed: "+base)
	}

	return nil
}

// systemLocations are matched against the start of a cleaned absolute path,
// so a project living under e.g. /home/u/dev stays readable.
var systemLocations = []string{"/etc/passwd", "/etc/shadow", "/proc", "/sys", "/dev", "/windows/system32"}

// systemLocation returns the system location lower (a lower-cased,
// slash-separated path) points into, or "" when it points into none.
func systemLocation(lower string) string {
	clean := filepath.ToSlash(filepath.Clean(lower))
	if len(clean) >= 2 && clean[1] == ':' && clean[0] >= 'a' && clean[0] <= 'z' {
		clean = clean[2:]
	}
	if !strings.HasPrefix(clean, "/") {
		return ""
	}
	for _, loc := range systemLocations {
		if clean == loc || strings.HasPrefix(clean, loc+"/") {
			return loc
		}
	}
	return ""
}

// underRoot reports whether path is root itself or lies below it.
func underRoot(path, root string) bool {
	if root == "" {
		return false
	}
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(path, root)
}
