// conditions.go: Matching autoconfiguration report conditions to source members
//
// A running application can publish an autoconfiguration report whose
// positiveMatches object maps "Scope#member" keys to the conditions that
// matched, e.g.
//
//	{"positiveMatches": {
//	    "TraceRepositoryAutoConfiguration#traceRepository": [
//	        {"condition": "OnBeanCondition", "message": "@ConditionalOnMissingBean (types: ...) did not find any beans"}
//	    ]
//	}}
//
// Report.Conditions returns the entries relevant to one annotated member of
// the host's source model, using plain substring matching on names.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package conditions

import (
	"bytes"
	"os"
	"strings"

	"github.com/agilira/go-errors"
	"github.com/tidwall/gjson"
)

// Error codes for report handling
const (
	ErrCodeInvalidReport = "CONDITIONS_INVALID_REPORT"
	ErrCodeReadFailed    = "CONDITIONS_READ_FAILED"
)

// Member is an annotated declaration in the host's source model. Only names
// are needed, so any AST can satisfy it.
type Member interface {
	// DeclaringScope is the simple name of the enclosing type.
	DeclaringScope() string
	// MemberName is the method name, or empty for a type-level annotation.
	MemberName() string
	// AnnotationName is the simple name of the annotation, e.g.
	// ConditionalOnMissingBean. Empty keeps every condition of a matching key.
	AnnotationName() string
}

// Ref is a plain Member value.
type Ref struct {
	Scope      string
	Name       string
	Annotation string
}

func (r Ref) DeclaringScope() string { return r.Scope }
func (r Ref) MemberName() string     { return r.Name }
func (r Ref) AnnotationName() string { return r.Annotation }

// Condition is one matched condition from the report.
type Condition struct {
	Key       string `json:"key"`
	Condition string `json:"condition"`
	Message   string `json:"message"`
}

// Report is a parsed autoconfiguration report.
type Report struct {
	positive gjson.Result
}

// ParseReport parses a report document. A document without a positiveMatches
// object is valid and matches nothing.
func ParseReport(data []byte) (*Report, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !gjson.ValidBytes(trimmed) {
		return nil, errors.New(ErrCodeInvalidReport, "report is not valid JSON")
	}
	root := gjson.ParseBytes(trimmed)
	if !root.IsObject() {
		return nil, errors.New(ErrCodeInvalidReport, "report must be a JSON object")
	}

	positive := root.Get("positiveMatches")
	if !positive.IsObject() {
		positive = gjson.Result{}
	}
	return &Report{positive: positive}, nil
}

// LoadReport reads and parses a report file.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path chosen by the caller
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeReadFailed, "failed to read report").
			WithContext("path", path)
	}
	return ParseReport(data)
}

// HasMatches reports whether the report carries any positive match.
func (r *Report) HasMatches() bool {
	return r.Len() > 0
}

// Len returns the number of positive match keys.
func (r *Report) Len() int {
	n := 0
	r.positive.ForEach(func(_, _ gjson.Result) bool {
		n++
		return true
	})
	return n
}

// Keys returns the positive match keys in document order.
func (r *Report) Keys() []string {
	var keys []string
	r.positive.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}

// Conditions returns the conditions that apply to m, in document order. It
// never returns an error; malformed entries are skipped.
func (r *Report) Conditions(m Member) []Condition {
	if m == nil || !r.positive.Exists() {
		return nil
	}

	annotation := m.AnnotationName()
	var out []Condition
	r.positive.ForEach(func(key, list gjson.Result) bool {
		k := key.String()
		if !MatchesKey(m, k) || !list.IsArray() {
			return true
		}
		list.ForEach(func(_, match gjson.Result) bool {
			if !match.IsObject() {
				return true
			}
			message := match.Get("message").String()
			if annotation != "" && !strings.Contains(message, annotation) {
				return true
			}
			out = append(out, Condition{
				Key:       k,
				Condition: match.Get("condition").String(),
				Message:   message,
			})
			return true
		})
		return true
	})
	return out
}

// MatchesKey reports whether a positive match key refers to m. A type-level
// member matches keys containing its scope name; a method-level member needs
// both its scope and member names.
func MatchesKey(m Member, key string) bool {
	scope := m.DeclaringScope()
	if scope == "" || !strings.Contains(key, scope) {
		return false
	}
	if name := m.MemberName(); name != "" {
		return strings.Contains(key, name)
	}
	return true
}
