// conditions_test.go: Tests for report parsing and member matching
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package conditions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agilira/go-errors"
)

const sampleReport = `{
  "positiveMatches": {
    "TraceRepositoryAutoConfiguration#traceRepository": [
      {"condition": "OnBeanCondition", "message": "@ConditionalOnMissingBean (types: TraceRepository; SearchStrategy: all) did not find any beans"}
    ],
    "DataSourceAutoConfiguration": [
      {"condition": "OnClassCondition", "message": "@ConditionalOnClass found required classes 'javax.sql.DataSource'"},
      {"condition": "OnPropertyCondition", "message": "@ConditionalOnProperty (spring.datasource.enabled) matched"}
    ],
    "DataSourceAutoConfiguration.PooledDataSourceConfiguration#dataSource": [
      {"condition": "OnBeanCondition", "message": "@ConditionalOnMissingBean (types: DataSource) did not find any beans"},
      "not an object"
    ]
  },
  "negativeMatches": {
    "TraceRepositoryAutoConfiguration#other": [
      {"condition": "OnBeanCondition", "message": "@ConditionalOnMissingBean found beans"}
    ]
  }
}`

func mustParse(t *testing.T, doc string) *Report {
	t.Helper()
	r, err := ParseReport([]byte(doc))
	if err != nil {
		t.Fatalf("ParseReport failed: %v", err)
	}
	return r
}

func TestConditions_MethodLevelMember(t *testing.T) {
	r := mustParse(t, sampleReport)

	got := r.Conditions(Ref{Scope: "TraceRepositoryAutoConfiguration", Name: "traceRepository", Annotation: "ConditionalOnMissingBean"})
	if len(got) != 1 {
		t.Fatalf("expected 1 condition, got %d: %+v", len(got), got)
	}
	if got[0].Condition != "OnBeanCondition" {
		t.Errorf("unexpected condition %q", got[0].Condition)
	}
	if got[0].Key != "TraceRepositoryAutoConfiguration#traceRepository" {
		t.Errorf("unexpected key %q", got[0].Key)
	}
}

func TestConditions_NegativeMatchesIgnored(t *testing.T) {
	r := mustParse(t, sampleReport)

	got := r.Conditions(Ref{Scope: "TraceRepositoryAutoConfiguration", Name: "other", Annotation: "ConditionalOnMissingBean"})
	if len(got) != 0 {
		t.Errorf("negative matches must not be reported, got %+v", got)
	}
}

func TestConditions_TypeLevelMemberMatchesNestedKeys(t *testing.T) {
	r := mustParse(t, sampleReport)

	// Substring matching: the nested configuration key also contains the scope
	got := r.Conditions(Ref{Scope: "DataSourceAutoConfiguration"})
	if len(got) != 3 {
		t.Fatalf("expected 3 conditions, got %d: %+v", len(got), got)
	}
	want := []string{"OnClassCondition", "OnPropertyCondition", "OnBeanCondition"}
	for i, c := range got {
		if c.Condition != want[i] {
			t.Errorf("condition %d: got %q, want %q", i, c.Condition, want[i])
		}
	}
}

func TestConditions_AnnotationFiltersMessages(t *testing.T) {
	r := mustParse(t, sampleReport)

	tests := []struct {
		annotation string
		want       int
	}{
		{"ConditionalOnClass", 1},
		{"ConditionalOnProperty", 1},
		{"ConditionalOnMissingBean", 1},
		{"ConditionalOnWebApplication", 0},
		{"", 3},
	}
	for _, tt := range tests {
		t.Run(tt.annotation, func(t *testing.T) {
			got := r.Conditions(Ref{Scope: "DataSourceAutoConfiguration", Annotation: tt.annotation})
			if len(got) != tt.want {
				t.Errorf("got %d conditions, want %d", len(got), tt.want)
			}
		})
	}
}

func TestConditions_NoMatchingScope(t *testing.T) {
	r := mustParse(t, sampleReport)
	if got := r.Conditions(Ref{Scope: "WebMvcAutoConfiguration"}); len(got) != 0 {
		t.Errorf("expected no conditions, got %+v", got)
	}
	if got := r.Conditions(Ref{}); len(got) != 0 {
		t.Errorf("empty scope must match nothing, got %+v", got)
	}
	if got := r.Conditions(nil); got != nil {
		t.Errorf("nil member must match nothing, got %+v", got)
	}
}

func TestMatchesKey(t *testing.T) {
	tests := []struct {
		name   string
		member Ref
		key    string
		want   bool
	}{
		{"type level", Ref{Scope: "Foo"}, "FooAutoConfiguration", true},
		{"method level", Ref{Scope: "Foo", Name: "bar"}, "Foo#bar", true},
		{"method missing", Ref{Scope: "Foo", Name: "baz"}, "Foo#bar", false},
		{"scope missing", Ref{Scope: "Qux", Name: "bar"}, "Foo#bar", false},
		{"empty scope", Ref{Name: "bar"}, "Foo#bar", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesKey(tt.member, tt.key); got != tt.want {
				t.Errorf("MatchesKey(%+v, %q) = %v, want %v", tt.member, tt.key, got, tt.want)
			}
		})
	}
}

func TestParseReport_Invalid(t *testing.T) {
	for _, doc := range []string{"", "   ", "{not json", "[1,2,3]", `"text"`} {
		_, err := ParseReport([]byte(doc))
		if err == nil {
			t.Errorf("expected error for %q", doc)
			continue
		}
		coder, ok := err.(errors.ErrorCoder)
		if !ok || string(coder.ErrorCode()) != ErrCodeInvalidReport {
			t.Errorf("expected %s for %q, got %v", ErrCodeInvalidReport, doc, err)
		}
	}
}

func TestParseReport_WithoutPositiveMatches(t *testing.T) {
	r := mustParse(t, `{"negativeMatches": {}}`)
	if r.HasMatches() {
		t.Error("report without positiveMatches must have no matches")
	}
	if got := r.Conditions(Ref{Scope: "Anything"}); len(got) != 0 {
		t.Errorf("expected no conditions, got %+v", got)
	}

	r = mustParse(t, `{"positiveMatches": []}`)
	if r.Len() != 0 {
		t.Errorf("non-object positiveMatches must be ignored, got %d keys", r.Len())
	}
}

func TestReport_Keys(t *testing.T) {
	r := mustParse(t, sampleReport)
	keys := r.Keys()
	if len(keys) != 3 || r.Len() != 3 {
		t.Fatalf("expected 3 keys, got %v", keys)
	}
	if keys[0] != "TraceRepositoryAutoConfiguration#traceRepository" {
		t.Errorf("keys must keep document order, got %v", keys)
	}
}

func TestLoadReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	if err := os.WriteFile(path, []byte(sampleReport), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := LoadReport(path)
	if err != nil {
		t.Fatalf("LoadReport failed: %v", err)
	}
	if !r.HasMatches() {
		t.Error("expected matches")
	}

	_, err = LoadReport(filepath.Join(dir, "missing.json"))
	coder, ok := err.(errors.ErrorCoder)
	if !ok || string(coder.ErrorCode()) != ErrCodeReadFailed {
		t.Errorf("expected %s, got %v", ErrCodeReadFailed, err)
	}
}
