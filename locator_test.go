// locator_test.go: Tests for resource discovery over source roots
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

// quietConfig keeps warnings out of test output.
func quietConfig() Config {
	return Config{ErrorHandler: func(error, string) {}}
}

// writeFiles creates files on fs, creating parent directories as needed.
func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func paths(resources []Resource) []string {
	out := make([]string, len(resources))
	for i, r := range resources {
		out[i] = r.Path
	}
	return out
}

func TestLocator_PriorityOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/proj/main/config/application.yml": "a: 1",
		"/proj/main/application.yaml":       "a: 2",
		"/proj/main/application.yml":        "a: 3",
		"/proj/main/application.properties": "a=4",
		"/proj/test/application.properties": "a=5",
		"/proj/main/other.properties":       "ignored=1",
		"/proj/main/application.json":       "{}",
	})

	locator := NewLocator(fs, quietConfig())
	got := paths(locator.Locate(Project{ID: "p", Roots: []string{"/proj/main", "/proj/test"}}))
	want := []string{
		"/proj/main/application.properties",
		"/proj/main/application.yml",
		"/proj/main/application.yaml",
		"/proj/main/config/application.yml",
		"/proj/test/application.properties",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLocator_RankAndFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/r1/application.yml":        "a: 1",
		"/r2/application.properties": "a=1",
	})

	resources := NewLocator(fs, quietConfig()).Locate(Project{ID: "p", Roots: []string{"/r1", "/r2"}})
	if len(resources) != 2 {
		t.Fatalf("expected 2 resources, got %+v", resources)
	}
	if resources[0].Rank != 0 || resources[0].Format != FormatYAML || resources[0].Root != "/r1" {
		t.Errorf("unexpected first resource %+v", resources[0])
	}
	if resources[1].Rank != 1 || resources[1].Format != FormatProperties {
		t.Errorf("unexpected second resource %+v", resources[1])
	}
}

func TestLocator_ProfilesAndFormats(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/r/application.properties":     "a=1",
		"/r/application-dev.properties": "a=2",
		"/r/application-prod.yml":       "a: 3",
		"/r/bootstrap.json":             "{}",
	})

	cfg := quietConfig()
	cfg.Profiles = []string{"dev", "prod"}
	got := paths(NewLocator(fs, cfg).Locate(Project{ID: "p", Roots: []string{"/r"}}))
	want := []string{"/r/application.properties", "/r/application-dev.properties", "/r/application-prod.yml"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}

	cfg = quietConfig()
	cfg.BaseNames = []string{"bootstrap"}
	cfg.Formats = []ResourceFormat{FormatJSON}
	got = paths(NewLocator(fs, cfg).Locate(Project{ID: "p", Roots: []string{"/r"}}))
	if len(got) != 1 || got[0] != "/r/bootstrap.json" {
		t.Errorf("custom base name and format not honored: %v", got)
	}
}

func TestLocator_EmptyAndMissingRoots(t *testing.T) {
	fs := afero.NewMemMapFs()
	locator := NewLocator(fs, quietConfig())

	if got := locator.Locate(Project{ID: "p"}); len(got) != 0 {
		t.Errorf("project without roots should yield nothing, got %v", got)
	}
	if got := locator.Locate(Project{ID: "p", Roots: []string{"", "/missing"}}); len(got) != 0 {
		t.Errorf("missing roots should yield nothing, got %v", got)
	}
}

func TestLocator_Candidates(t *testing.T) {
	locator := NewLocator(afero.NewMemMapFs(), quietConfig())
	candidates := locator.Candidates(Project{ID: "p", Roots: []string{"/r", "/r"}})

	// Two sub-paths times three file names, duplicates across roots dropped
	if len(candidates) != 6 {
		t.Fatalf("expected 6 candidates, got %v", paths(candidates))
	}
	if candidates[0].Path != "/r/application.properties" || candidates[3].Path != "/r/config/application.properties" {
		t.Errorf("unexpected candidate order %v", paths(candidates))
	}
}

func TestLocator_RejectsUnsafePaths(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/etc/passwd/application.properties": "a=1"})

	var rejected []string
	cfg := Config{ErrorHandler: func(err error, path string) { rejected = append(rejected, path) }}
	got := NewLocator(fs, cfg).Locate(Project{ID: "p", Roots: []string{"/etc/passwd"}})
	if len(got) != 0 {
		t.Errorf("resources under sensitive paths must be skipped, got %v", paths(got))
	}
	if len(rejected) == 0 {
		t.Error("rejections should be reported")
	}
}

func TestLocator_RootUnderDevDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/home/alice/dev/shop/src/main/resources/application.properties": "server.port=8080",
	})

	var rejected []string
	cfg := Config{ErrorHandler: func(err error, path string) { rejected = append(rejected, path) }}
	got := NewLocator(fs, cfg).Locate(Project{ID: "shop", Roots: []string{"/home/alice/dev/shop/src/main/resources"}})
	if len(got) != 1 || got[0].Path != "/home/alice/dev/shop/src/main/resources/application.properties" {
		t.Errorf("resource under a dev directory not located: %v", paths(got))
	}
	if len(rejected) != 0 {
		t.Errorf("unexpected rejections %v", rejected)
	}
}
