// parser_text.go: Flat key/value parser for propindex
//
// Java-style .properties files:
// - key=value, key:value and "key value" separators
// - # and ! comment lines (a comment block directly above a key becomes its description)
// - backslash line continuation
// - keys are taken verbatim, only escaped separators are unescaped
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"bytes"
	"strings"

	"github.com/agilira/go-errors"
)

// propertiesParser is the built-in parser for FormatProperties.
type propertiesParser struct{}

func (propertiesParser) Name() string { return "builtin-properties" }

func (propertiesParser) Supports(format ResourceFormat) bool { return format == FormatProperties }

// physicalLine is one line of the file with its position.
type physicalLine struct {
	text   string
	number int // 1-based
	offset int // byte offset of the first character
}

// splitLines splits data on \n, \r\n or \r keeping line numbers and offsets.
func splitLines(data []byte) []physicalLine {
	var lines []physicalLine
	offset := 0
	number := 1
	for offset <= len(data) {
		rest := data[offset:]
		end := bytes.IndexAny(rest, "\r\n")
		if end < 0 {
			if len(rest) > 0 {
				lines = append(lines, physicalLine{text: string(rest), number: number, offset: offset})
			}
			break
		}
		lines = append(lines, physicalLine{text: string(rest[:end]), number: number, offset: offset})
		next := end + 1
		if rest[end] == '\r' && next < len(rest) && rest[next] == '\n' {
			next++
		}
		offset += next
		number++
	}
	return lines
}

// continues reports whether a line ends with an odd number of backslashes.
func continues(line string) bool {
	n := 0
	for i := len(line) - 1; i >= 0 && line[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

func isPropertiesSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\f'
}

// Parse implements Parser.
func (propertiesParser) Parse(content []byte, res Resource) ([]PropertyEntry, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	lines := splitLines(content)
	entries := make([]PropertyEntry, 0, len(lines)/2)

	var comments []string
	var skipped []int
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimLeft(line.text, " \t\f")

		if trimmed == "" {
			comments = comments[:0]
			continue
		}
		if trimmed[0] == '#' || trimmed[0] == '!' {
			comments = append(comments, strings.TrimSpace(trimmed[1:]))
			continue
		}

		indent := len(line.text) - len(trimmed)

		// Join continuation lines into one logical line
		logical := trimmed
		for continues(logical) && i+1 < len(lines) {
			i++
			logical = logical[:len(logical)-1] + strings.TrimLeft(lines[i].text, " \t\f")
		}
		if continues(logical) {
			logical = logical[:len(logical)-1]
		}

		key, value := splitProperty(logical)
		if err := validatePropertiesKey(key, line.number); err != nil {
			if GetValidationErrorCode(err) != ErrCodeEntrySkipped {
				return nil, err
			}
			skipped = append(skipped, line.number)
			comments = comments[:0]
			continue
		}

		entry := PropertyEntry{
			ID:    key,
			Value: value,
			Type:  "string",
			Location: &SourceLocation{
				Path:   res.Path,
				Line:   line.number,
				Column: indent + 1,
				Offset: line.offset + indent,
			},
		}
		if len(comments) > 0 {
			entry.Description = strings.Join(comments, "\n")
			comments = comments[:0]
		}
		entries = append(entries, entry)
	}

	if len(skipped) > 0 {
		return entries, errors.New(ErrCodeEntrySkipped, "properties lines with an empty key were skipped").
			WithContext("lines", skipped)
	}
	return entries, nil
}

// splitProperty splits a logical line into its key and raw value.
// The key ends at the first unescaped '=', ':' or whitespace.
func splitProperty(line string) (string, string) {
	var key strings.Builder
	i := 0
	for i < len(line) {
		c := line[i]
		if c == '\\' && i+1 < len(line) {
			next := line[i+1]
			switch next {
			case '=', ':', ' ', '\t', '#', '!', '\\':
				key.WriteByte(next)
			default:
				key.WriteByte(c)
				key.WriteByte(next)
			}
			i += 2
			continue
		}
		if c == '=' || c == ':' || isPropertiesSpace(c) {
			break
		}
		key.WriteByte(c)
		i++
	}

	// Separator: optional whitespace, at most one '=' or ':', optional whitespace
	for i < len(line) && isPropertiesSpace(line[i]) {
		i++
	}
	if i < len(line) && (line[i] == '=' || line[i] == ':') {
		i++
	}
	for i < len(line) && isPropertiesSpace(line[i]) {
		i++
	}

	return key.String(), strings.TrimRight(line[i:], " \t\f")
}
