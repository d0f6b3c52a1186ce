// parsers.go: Resource format detection and parser registry for propindex
//
// A resource is parsed by the first registered Parser that supports its format,
// falling back to the built-in parsers:
// - Properties (.properties) - flat key=value, ids taken verbatim
// - YAML (.yml, .yaml) - hierarchical, flattened to dotted paths
// - JSON (.json) - hierarchical, opt-in
// - TOML (.toml) - hierarchical, opt-in
//
// Parsing never fails from the caller's point of view: a malformed resource
// yields zero entries plus a soft warning.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"strings"
	"sync"

	"github.com/agilira/go-errors"
)

// ResourceFormat identifies how a resource is parsed.
type ResourceFormat int

const (
	FormatProperties ResourceFormat = iota
	FormatYAML
	FormatJSON
	FormatTOML
	FormatUnknown
)

// String returns the lower-case format name used in config and CLI output.
func (f ResourceFormat) String() string {
	switch f {
	case FormatProperties:
		return "properties"
	case FormatYAML:
		return "yaml"
	case FormatJSON:
		return "json"
	case FormatTOML:
		return "toml"
	default:
		return "unknown"
	}
}

// Hierarchical reports whether ids are built by flattening nested structure.
func (f ResourceFormat) Hierarchical() bool {
	return f == FormatYAML || f == FormatJSON || f == FormatTOML
}

// ParseFormat maps a format name (as used in config files, env vars and flags)
// to a ResourceFormat.
func ParseFormat(name string) ResourceFormat {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "properties", "props":
		return FormatProperties
	case "yaml", "yml":
		return FormatYAML
	case "json":
		return FormatJSON
	case "toml":
		return FormatTOML
	default:
		return FormatUnknown
	}
}

// extensions returns the file extensions searched for a format, in precedence order.
func (f ResourceFormat) extensions() []string {
	switch f {
	case FormatProperties:
		return []string{".properties"}
	case FormatYAML:
		return []string{".yml", ".yaml"}
	case FormatJSON:
		return []string{".json"}
	case FormatTOML:
		return []string{".toml"}
	default:
		return nil
	}
}

// DetectFormat detects the resource format from the file extension.
// Case-insensitive, no allocations.
func DetectFormat(path string) ResourceFormat {
	n := len(path)

	// .properties
	if n >= 11 && path[n-11] == '.' &&
		(path[n-10]|32) == 'p' && (path[n-9]|32) == 'r' && (path[n-8]|32) == 'o' &&
		(path[n-7]|32) == 'p' && (path[n-6]|32) == 'e' && (path[n-5]|32) == 'r' &&
		(path[n-4]|32) == 't' && (path[n-3]|32) == 'i' && (path[n-2]|32) == 'e' &&
		(path[n-1]|32) == 's' {
		return FormatProperties
	}

	if n >= 5 && path[n-5] == '.' {
		switch uint32(path[n-4]|32)<<24 | uint32(path[n-3]|32)<<16 | uint32(path[n-2]|32)<<8 | uint32(path[n-1]|32) {
		case 0x79616d6c: // "yaml"
			return FormatYAML
		case 0x6a736f6e: // "json"
			return FormatJSON
		case 0x746f6d6c: // "toml"
			return FormatTOML
		}
	}

	if n >= 4 && path[n-4] == '.' &&
		(path[n-3]|32) == 'y' && (path[n-2]|32) == 'm' && (path[n-1]|32) == 'l' {
		return FormatYAML
	}

	return FormatUnknown
}

// Parser turns the raw content of one resource into property entries.
//
// Custom parsers can be registered to replace a built-in for a format:
//
//	propindex.RegisterParser(&MyStrictYAMLParser{})
type Parser interface {
	// Parse returns the entries declared in content. res.Path should be used
	// for SourceLocation.Path. An error discards every entry of the resource,
	// except one coded ErrCodeEntrySkipped, which keeps the returned entries
	// and is reported as a warning.
	Parse(content []byte, res Resource) ([]PropertyEntry, error)

	// Supports returns true if this parser can handle the given format
	Supports(format ResourceFormat) bool

	// Name returns a human-readable name for this parser (for debugging)
	Name() string
}

var (
	customParsers []Parser
	parserMutex   sync.RWMutex
)

// RegisterParser registers a custom parser. Custom parsers are tried before
// the built-ins, most recently registered last.
func RegisterParser(parser Parser) {
	if parser == nil {
		return
	}
	parserMutex.Lock()
	defer parserMutex.Unlock()
	customParsers = append(customParsers, parser)
}

// lookupParser returns the parser for a format, custom parsers first.
func lookupParser(format ResourceFormat) Parser {
	parserMutex.RLock()
	for _, p := range customParsers {
		if p.Supports(format) {
			parserMutex.RUnlock()
			return p
		}
	}
	parserMutex.RUnlock()

	switch format {
	case FormatProperties:
		return propertiesParser{}
	case FormatYAML:
		return yamlParser{}
	case FormatJSON:
		return jsonParser{}
	case FormatTOML:
		return tomlParser{}
	default:
		return nil
	}
}

// ParseResource parses content according to res.Format. It never fails:
// on malformed content it returns an empty slice and reports the problem
// through warn (which may be nil). Lines skipped for an empty key are
// reported the same way while the rest of the resource is kept.
func ParseResource(content []byte, res Resource, warn ErrorHandler) []PropertyEntry {
	entries, err := parseResource(content, res)
	if err != nil && warn != nil {
		warn(err, res.Path)
	}
	if entries == nil {
		return []PropertyEntry{}
	}
	return entries
}

// parseResource is ParseResource with the error surfaced, used by the builder
// so it can audit malformed resources. A non-nil error comes with nil
// entries unless its code is ErrCodeEntrySkipped.
func parseResource(content []byte, res Resource) (entries []PropertyEntry, err error) {
	parser := lookupParser(res.Format)
	if parser == nil {
		return nil, errors.New(ErrCodeUnsupportedFormat, "no parser for resource format").
			WithContext("path", res.Path).
			WithContext("format", res.Format.String())
	}

	// A panicking custom parser must not take the build down with it
	defer func() {
		if r := recover(); r != nil {
			entries = nil
			err = errors.New(ErrCodeResourceMalformed, "parser panicked").
				WithContext("path", res.Path).
				WithContext("parser", parser.Name()).
				WithContext("panic", r)
		}
	}()

	entries, err = parser.Parse(content, res)
	if err != nil && GetValidationErrorCode(err) == ErrCodeEntrySkipped {
		return dropEmptyIDs(entries), errors.Wrap(err, ErrCodeEntrySkipped, "entries skipped in "+res.Format.String()+" resource").
			WithContext("path", res.Path).
			WithContext("parser", parser.Name())
	}
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeResourceMalformed, "malformed "+res.Format.String()+" resource").
			WithContext("path", res.Path).
			WithContext("parser", parser.Name())
	}

	return dropEmptyIDs(entries), nil
}

// dropEmptyIDs filters out entries a parser handed back without an id.
func dropEmptyIDs(entries []PropertyEntry) []PropertyEntry {
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != "" {
			kept = append(kept, e)
		}
	}
	return kept
}
