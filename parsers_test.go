// parsers_test.go: Tests for resource format detection and the built-in parsers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"strings"
	"sync/atomic"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want ResourceFormat
	}{
		{"application.properties", FormatProperties},
		{"/a/b/APPLICATION.PROPERTIES", FormatProperties},
		{"application.yml", FormatYAML},
		{"application.yaml", FormatYAML},
		{"application.YML", FormatYAML},
		{"application.json", FormatJSON},
		{"application.toml", FormatTOML},
		{"application.ini", FormatUnknown},
		{"yml", FormatUnknown},
		{"", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.path); got != tt.want {
			t.Errorf("DetectFormat(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]ResourceFormat{
		"properties": FormatProperties,
		" YML ":      FormatYAML,
		"yaml":       FormatYAML,
		"json":       FormatJSON,
		"toml":       FormatTOML,
		"xml":        FormatUnknown,
	} {
		if got := ParseFormat(name); got != want {
			t.Errorf("ParseFormat(%q) = %v, want %v", name, got, want)
		}
	}
	if FormatProperties.Hierarchical() || !FormatYAML.Hierarchical() {
		t.Error("only structured formats are hierarchical")
	}
}

func propertiesResource(path string) Resource {
	return Resource{Path: path, Format: FormatProperties}
}

func TestPropertiesParser(t *testing.T) {
	content := "# The port\n# to listen on\nserver.port=8080\n\n! stale comment\n\n  app.name : demo\nflag\nmulti=one,\\\n    two\nescaped\\=key=v\n"
	entries := ParseResource([]byte(content), propertiesResource("/res/application.properties"), nil)

	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d: %+v", len(entries), entries)
	}

	port := entries[0]
	if port.ID != "server.port" || port.Value != "8080" || port.Type != "string" {
		t.Errorf("unexpected first entry %+v", port)
	}
	if port.Description != "The port\nto listen on" {
		t.Errorf("comments not attached: %q", port.Description)
	}
	if port.Location == nil || port.Location.Line != 3 || port.Location.Column != 1 {
		t.Errorf("unexpected location %+v", port.Location)
	}

	name := entries[1]
	if name.ID != "app.name" || name.Value != "demo" {
		t.Errorf("unexpected entry %+v", name)
	}
	if name.Description != "" {
		t.Errorf("a blank line must detach comments, got %q", name.Description)
	}
	if name.Location.Line != 7 || name.Location.Column != 3 {
		t.Errorf("indent not reflected in column: %+v", name.Location)
	}
	if got := strings.Index(content, "app.name"); name.Location.Offset != got {
		t.Errorf("offset %d, want %d", name.Location.Offset, got)
	}

	if entries[2].ID != "flag" || entries[2].Value != "" {
		t.Errorf("key without value: %+v", entries[2])
	}
	if entries[3].ID != "multi" || entries[3].Value != "one,two" {
		t.Errorf("continuation not joined: %+v", entries[3])
	}
	if entries[3].Location.Line != 9 {
		t.Errorf("continued entry should sit on its first line, got %d", entries[3].Location.Line)
	}
	if entries[4].ID != "escaped=key" {
		t.Errorf("escaped separator not honored: %q", entries[4].ID)
	}
}

func TestPropertiesParser_BOMAndCRLF(t *testing.T) {
	content := "\xef\xbb\xbfa=1\r\nb=2\r\n"
	entries := ParseResource([]byte(content), propertiesResource("x.properties"), nil)
	if len(entries) != 2 || entries[0].ID != "a" || entries[1].ID != "b" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[1].Value != "2" {
		t.Errorf("carriage return leaked into value: %q", entries[1].Value)
	}
}

func TestPropertiesParser_EmptyKeySkipsLine(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"equals", "ok=1\n=orphan\nnext=2\n", []string{"ok", "next"}},
		{"colon", "ok=1\n:x\n", []string{"ok"}},
		{"only line", "=value\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var warned atomic.Int32
			warn := func(err error, path string) {
				warned.Add(1)
				if GetValidationErrorCode(err) != ErrCodeEntrySkipped {
					t.Errorf("expected %s, got %v", ErrCodeEntrySkipped, err)
				}
				if path != "bad.properties" {
					t.Errorf("unexpected path %q", path)
				}
			}
			entries := ParseResource([]byte(tt.content), propertiesResource("bad.properties"), warn)
			if len(entries) != len(tt.want) {
				t.Fatalf("expected %v, got %+v", tt.want, entries)
			}
			for i, id := range tt.want {
				if entries[i].ID != id {
					t.Errorf("entry %d: expected %q, got %q", i, id, entries[i].ID)
				}
			}
			if warned.Load() != 1 {
				t.Errorf("expected one warning, got %d", warned.Load())
			}
		})
	}
}

func TestPropertiesParser_MalformedKey(t *testing.T) {
	var warned atomic.Int32
	warn := func(err error, path string) {
		warned.Add(1)
		if GetValidationErrorCode(err) != ErrCodeResourceMalformed {
			t.Errorf("expected %s, got %v", ErrCodeResourceMalformed, err)
		}
	}
	entries := ParseResource([]byte("ok=1\nbell\x07=2\n"), propertiesResource("bad.properties"), warn)
	if len(entries) != 0 {
		t.Errorf("a malformed resource contributes nothing, got %+v", entries)
	}
	if warned.Load() != 1 {
		t.Errorf("expected one warning, got %d", warned.Load())
	}
}

func TestValidatePropertiesKey(t *testing.T) {
	for _, key := range []string{"app.name", "server.port", "KEY_UPPER", "a-b", "名前", "with space"} {
		if err := validatePropertiesKey(key, 1); err != nil {
			t.Errorf("validatePropertiesKey(%q) failed: %v", key, err)
		}
	}
	for _, key := range []string{"", "nul\x00byte", "bell\x07", "\xff\xfe"} {
		if err := validatePropertiesKey(key, 4); err == nil {
			t.Errorf("validatePropertiesKey(%q) should fail", key)
		}
	}
}

func TestYAMLParser(t *testing.T) {
	content := `# Datasource settings
spring:
  datasource:
    # JDBC url
    url: jdbc:h2:mem:test
    pool-size: 4
  jpa.show-sql: true
servers:
  - alpha
  - beta
ratio: 0.5
empty: ~
`
	res := Resource{Path: "/res/application.yml", Format: FormatYAML}
	entries := ParseResource([]byte(content), res, nil)

	byID := make(map[string][]PropertyEntry)
	for _, e := range entries {
		byID[e.ID] = append(byID[e.ID], e)
	}

	url := byID["spring.datasource.url"]
	if len(url) != 1 {
		t.Fatalf("missing spring.datasource.url in %+v", entries)
	}
	if url[0].Value != "jdbc:h2:mem:test" || url[0].Type != "string" || url[0].Description != "JDBC url" {
		t.Errorf("unexpected url entry %+v", url[0])
	}
	if url[0].Location.Line != 5 || url[0].Location.Column != 5 {
		t.Errorf("location should point at the key: %+v", url[0].Location)
	}
	if got := strings.Index(content, "url:"); url[0].Location.Offset != got {
		t.Errorf("offset %d, want %d", url[0].Location.Offset, got)
	}

	if e := byID["spring.datasource.pool-size"]; len(e) != 1 || e[0].Type != "int" {
		t.Errorf("pool-size: %+v", e)
	}
	if e := byID["spring.jpa.show-sql"]; len(e) != 1 || e[0].Type != "bool" || e[0].Value != "true" {
		t.Errorf("dotted key not joined: %+v", e)
	}
	if e := byID["servers"]; len(e) != 2 || e[0].Value != "alpha" || e[1].Value != "beta" {
		t.Errorf("sequence items should share the parent id: %+v", e)
	}
	if e := byID["ratio"]; len(e) != 1 || e[0].Type != "float" {
		t.Errorf("ratio: %+v", e)
	}
	if e := byID["empty"]; len(e) != 1 || e[0].Type != "null" {
		t.Errorf("empty: %+v", e)
	}
}

func TestYAMLParser_MultiDocumentAndAliases(t *testing.T) {
	content := `defaults: &defaults
  timeout: 5
service:
  <<: *defaults
  name: api
---
profile: dev
`
	entries := ParseResource([]byte(content), Resource{Path: "a.yml", Format: FormatYAML}, nil)
	ids := make(map[string]bool)
	for _, e := range entries {
		ids[e.ID] = true
	}
	for _, want := range []string{"defaults.timeout", "service.timeout", "service.name", "profile"} {
		if !ids[want] {
			t.Errorf("missing %q in %v", want, ids)
		}
	}
}

func TestYAMLParser_Malformed(t *testing.T) {
	var warnings int
	entries := ParseResource([]byte("key: [unclosed\n"), Resource{Path: "bad.yml", Format: FormatYAML},
		func(error, string) { warnings++ })
	if len(entries) != 0 || warnings != 1 {
		t.Errorf("expected no entries and one warning, got %d entries / %d warnings", len(entries), warnings)
	}
}

func TestJSONParser(t *testing.T) {
	content := `{"server": {"port": 8080, "ssl": false}, "hosts": ["a", "b"], "ratio": 1.5, "name": "demo"}`
	entries := ParseResource([]byte(content), Resource{Path: "a.json", Format: FormatJSON}, nil)

	types := make(map[string]string)
	for _, e := range entries {
		types[e.ID] = e.Type
		if e.Location == nil || e.Location.Path != "a.json" {
			t.Errorf("entry %q lacks a location", e.ID)
		}
	}
	want := map[string]string{"server.port": "int", "server.ssl": "bool", "hosts": "string", "ratio": "float", "name": "string"}
	for id, typ := range want {
		if types[id] != typ {
			t.Errorf("%s: type %q, want %q", id, types[id], typ)
		}
	}
	if len(entries) != 6 {
		t.Errorf("expected 6 entries (hosts twice), got %d", len(entries))
	}

	if got := ParseResource([]byte("   "), Resource{Path: "e.json", Format: FormatJSON}, nil); len(got) != 0 {
		t.Errorf("blank JSON should be empty, got %+v", got)
	}
	if got := ParseResource([]byte("{bad"), Resource{Path: "b.json", Format: FormatJSON}, nil); len(got) != 0 {
		t.Errorf("invalid JSON should be empty, got %+v", got)
	}
}

func TestTOMLParser(t *testing.T) {
	content := "title = \"demo\"\n[server]\nport = 8080\ndebug = true\n"
	entries := ParseResource([]byte(content), Resource{Path: "a.toml", Format: FormatTOML}, nil)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", entries)
	}
	// Keys are visited in sorted order
	if entries[0].ID != "server.debug" || entries[1].ID != "server.port" || entries[2].ID != "title" {
		t.Errorf("unexpected order %+v", entries)
	}
	if entries[1].Type != "int" || entries[1].Value != "8080" {
		t.Errorf("unexpected port entry %+v", entries[1])
	}
}

type upperParser struct{}

func (upperParser) Name() string                        { return "upper" }
func (upperParser) Supports(format ResourceFormat) bool { return format == FormatUnknown }
func (upperParser) Parse(content []byte, res Resource) ([]PropertyEntry, error) {
	return []PropertyEntry{{ID: strings.ToUpper(strings.TrimSpace(string(content)))}, {ID: ""}}, nil
}

type panickyParser struct{}

func (panickyParser) Name() string                        { return "panicky" }
func (panickyParser) Supports(format ResourceFormat) bool { return format == FormatTOML }
func (panickyParser) Parse([]byte, Resource) ([]PropertyEntry, error) {
	panic("boom")
}

func TestRegisterParser(t *testing.T) {
	parserMutex.Lock()
	saved := customParsers
	customParsers = nil
	parserMutex.Unlock()
	defer func() {
		parserMutex.Lock()
		customParsers = saved
		parserMutex.Unlock()
	}()

	res := Resource{Path: "x.ini", Format: FormatUnknown}
	if got := ParseResource([]byte("key"), res, nil); len(got) != 0 {
		t.Fatalf("unknown format should yield nothing before registration, got %+v", got)
	}

	RegisterParser(nil)
	RegisterParser(upperParser{})
	got := ParseResource([]byte("key"), res, nil)
	if len(got) != 1 || got[0].ID != "KEY" {
		t.Errorf("custom parser not used or empty id kept: %+v", got)
	}

	RegisterParser(panickyParser{})
	var warned bool
	got = ParseResource([]byte("a = 1"), Resource{Path: "x.toml", Format: FormatTOML}, func(error, string) { warned = true })
	if len(got) != 0 || !warned {
		t.Errorf("a panicking parser must be contained and reported, got %+v", got)
	}
}
