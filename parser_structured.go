// parser_structured.go: Hierarchical parsers for propindex
//
// YAML, JSON and TOML documents are flattened into dotted ids:
// - mapping keys are joined with '.' from the root to each scalar leaf
// - sequence elements merge into their parent path (no index segment)
// - empty mappings and sequences, and scalars at the document root, yield nothing
// - the same effective path reached through different structure is emitted twice
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/agilira/go-errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"
	"go.yaml.in/yaml/v3"
)

// maxNestingDepth bounds recursion through aliases and deeply nested documents.
const maxNestingDepth = 128

// lineIndex maps between byte offsets and 1-based line/column positions.
type lineIndex struct {
	starts []int
}

func newLineIndex(content []byte) lineIndex {
	starts := []int{0}
	for i, c := range content {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return lineIndex{starts: starts}
}

// offset converts a 1-based line/column into a byte offset.
func (li lineIndex) offset(line, column int) int {
	if line < 1 || line > len(li.starts) {
		return 0
	}
	if column < 1 {
		column = 1
	}
	return li.starts[line-1] + column - 1
}

// position converts a byte offset into a 1-based line/column.
func (li lineIndex) position(offset int) (int, int) {
	line := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset })
	if line == 0 {
		return 1, offset + 1
	}
	return line, offset - li.starts[line-1] + 1
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// =============================================================================
// YAML
// =============================================================================

// yamlParser is the built-in parser for FormatYAML. Multi-document streams,
// anchors, aliases and "<<" merge keys are supported.
type yamlParser struct{}

func (yamlParser) Name() string { return "builtin-yaml" }

func (yamlParser) Supports(format ResourceFormat) bool { return format == FormatYAML }

// yamlWalker carries the per-resource state of one flattening pass.
type yamlWalker struct {
	res     Resource
	lines   lineIndex
	entries []PropertyEntry
}

// Parse implements Parser.
func (yamlParser) Parse(content []byte, res Resource) ([]PropertyEntry, error) {
	w := &yamlWalker{res: res, lines: newLineIndex(content)}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	for {
		var doc yaml.Node
		if err := dec.Decode(&doc); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if err := w.walk(&doc, "", nil, 0); err != nil {
			return nil, err
		}
	}

	return w.entries, nil
}

// walk flattens node under prefix. anchor is the node whose position and
// comments describe the leaf (the mapping key for mapping values).
func (w *yamlWalker) walk(node *yaml.Node, prefix string, anchor *yaml.Node, depth int) error {
	if node == nil {
		return nil
	}
	if depth > maxNestingDepth {
		return errors.New(ErrCodeResourceMalformed, "YAML nesting too deep").
			WithContext("path", w.res.Path).
			WithContext("prefix", prefix)
	}

	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			if err := w.walk(child, prefix, nil, depth+1); err != nil {
				return err
			}
		}

	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if key.Kind != yaml.ScalarNode {
				continue
			}
			if key.ShortTag() == "!!merge" {
				if err := w.walk(value, prefix, nil, depth+1); err != nil {
					return err
				}
				continue
			}
			if err := w.walk(value, joinPath(prefix, key.Value), key, depth+1); err != nil {
				return err
			}
		}

	case yaml.SequenceNode:
		for _, item := range node.Content {
			if err := w.walk(item, prefix, item, depth+1); err != nil {
				return err
			}
		}

	case yaml.AliasNode:
		return w.walk(node.Alias, prefix, anchor, depth+1)

	case yaml.ScalarNode:
		if prefix == "" {
			return nil
		}
		if anchor == nil {
			anchor = node
		}
		w.entries = append(w.entries, PropertyEntry{
			ID:          prefix,
			Value:       node.Value,
			Type:        yamlType(node.ShortTag()),
			Description: commentText(anchor.HeadComment),
			Location: &SourceLocation{
				Path:   w.res.Path,
				Line:   anchor.Line,
				Column: anchor.Column,
				Offset: w.lines.offset(anchor.Line, anchor.Column),
			},
		})
	}

	return nil
}

// yamlType maps a resolved YAML tag to the entry type hint.
func yamlType(tag string) string {
	switch tag {
	case "!!str":
		return "string"
	case "!!int":
		return "int"
	case "!!float":
		return "float"
	case "!!bool":
		return "bool"
	case "!!null":
		return "null"
	case "!!timestamp":
		return "timestamp"
	case "!!binary":
		return "binary"
	default:
		return strings.TrimLeft(tag, "!")
	}
}

// commentText strips comment markers from a YAML head comment.
func commentText(comment string) string {
	if comment == "" {
		return ""
	}
	lines := strings.Split(comment, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimSpace(strings.TrimPrefix(l, "#"))
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// =============================================================================
// JSON
// =============================================================================

// jsonParser is the built-in parser for FormatJSON. gjson keeps document
// order and byte offsets, which encoding/json maps would lose.
type jsonParser struct{}

func (jsonParser) Name() string { return "builtin-json" }

func (jsonParser) Supports(format ResourceFormat) bool { return format == FormatJSON }

// Parse implements Parser.
func (jsonParser) Parse(content []byte, res Resource) ([]PropertyEntry, error) {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(content, []byte("\xef\xbb\xbf")), " \t\r\n")
	if len(trimmed) == 0 {
		return []PropertyEntry{}, nil
	}
	if !gjson.ValidBytes(trimmed) {
		return nil, errors.New(ErrCodeResourceMalformed, "invalid JSON").
			WithContext("path", res.Path)
	}

	lead := len(content) - len(trimmed)
	lines := newLineIndex(content)
	var entries []PropertyEntry

	var walk func(value gjson.Result, prefix string, at int, depth int) error
	walk = func(value gjson.Result, prefix string, at int, depth int) error {
		if depth > maxNestingDepth {
			return errors.New(ErrCodeResourceMalformed, "JSON nesting too deep").
				WithContext("path", res.Path)
		}
		switch {
		case value.IsObject():
			var err error
			value.ForEach(func(key, child gjson.Result) bool {
				err = walk(child, joinPath(prefix, key.String()), key.Index+lead, depth+1)
				return err == nil
			})
			return err
		case value.IsArray():
			var err error
			value.ForEach(func(_, child gjson.Result) bool {
				err = walk(child, prefix, child.Index+lead, depth+1)
				return err == nil
			})
			return err
		default:
			if prefix == "" {
				return nil
			}
			line, col := lines.position(at)
			entries = append(entries, PropertyEntry{
				ID:    prefix,
				Value: value.String(),
				Type:  jsonType(value),
				Location: &SourceLocation{
					Path:   res.Path,
					Line:   line,
					Column: col,
					Offset: at,
				},
			})
			return nil
		}
	}

	if err := walk(gjson.ParseBytes(trimmed), "", lead, 0); err != nil {
		return nil, err
	}
	return entries, nil
}

func jsonType(value gjson.Result) string {
	switch value.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		if strings.ContainsAny(value.Raw, ".eE") {
			return "float"
		}
		return "int"
	case gjson.True, gjson.False:
		return "bool"
	case gjson.Null:
		return "null"
	default:
		return ""
	}
}

// =============================================================================
// TOML
// =============================================================================

// tomlParser is the built-in parser for FormatTOML. go-toml decodes into a
// map, so keys are visited in sorted order and positions are file-level only.
type tomlParser struct{}

func (tomlParser) Name() string { return "builtin-toml" }

func (tomlParser) Supports(format ResourceFormat) bool { return format == FormatTOML }

// Parse implements Parser.
func (tomlParser) Parse(content []byte, res Resource) ([]PropertyEntry, error) {
	var doc map[string]interface{}
	if err := toml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}

	var entries []PropertyEntry
	var walk func(value interface{}, prefix string)
	walk = func(value interface{}, prefix string) {
		switch v := value.(type) {
		case map[string]interface{}:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(v[k], joinPath(prefix, k))
			}
		case []interface{}:
			for _, item := range v {
				walk(item, prefix)
			}
		case []map[string]interface{}:
			for _, item := range v {
				walk(item, prefix)
			}
		default:
			if prefix == "" {
				return
			}
			entries = append(entries, PropertyEntry{
				ID:       prefix,
				Value:    tomlValue(v),
				Type:     tomlType(v),
				Location: &SourceLocation{Path: res.Path},
			})
		}
	}
	walk(doc, "")

	return entries, nil
}

func tomlType(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case int64, int:
		return "int"
	case float64:
		return "float"
	case bool:
		return "bool"
	case time.Time, toml.LocalDate, toml.LocalDateTime, toml.LocalTime:
		return "timestamp"
	default:
		return ""
	}
}

func tomlValue(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
