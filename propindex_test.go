// propindex_test.go: Tests for the Provider query facade
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
)

type providerFixture struct {
	fs       afero.Fs
	ws       *Workspace
	files    *FileFeed
	provider *Provider

	mu       sync.Mutex
	warnings []string
}

func newProviderFixture(t *testing.T) *providerFixture {
	t.Helper()
	f := &providerFixture{fs: newProjectFs(t), ws: NewWorkspace(), files: NewFileFeed()}

	provider, err := New(f.ws, Feeds{Classpath: f.ws.ClasspathFeed(), Files: f.files}, Config{
		Fs: f.fs,
		ErrorHandler: func(err error, path string) {
			f.mu.Lock()
			f.warnings = append(f.warnings, GetValidationErrorCode(err))
			f.mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.provider = provider
	t.Cleanup(func() {
		_ = provider.Close()
		f.files.Close()
		f.ws.Close()
	})

	if err := f.ws.AddProject("demo", "/proj", "/proj/main", "/proj/test"); err != nil {
		t.Fatalf("AddProject failed: %v", err)
	}
	return f
}

func (f *providerFixture) warningCodes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.warnings...)
}

const appDoc = DocumentURI("/proj/src/App.java")

func TestProvider_GetIndex(t *testing.T) {
	f := newProviderFixture(t)

	if s := f.provider.State(appDoc); s != StateAbsent {
		t.Errorf("state before first query %v", s)
	}
	snap := f.provider.GetIndex(appDoc)
	if snap.Project() != "demo" || snap.Len() != 5 {
		t.Fatalf("unexpected snapshot %q with %v", snap.Project(), snap.IDs())
	}
	if s := f.provider.State(appDoc); s != StateValid {
		t.Errorf("state after query %v", s)
	}

	// Any document of the project gets the same index
	if other := f.provider.GetIndex(DocumentURI("/proj/main/application.properties")); other != snap {
		t.Error("documents of one project should share the snapshot")
	}
	if stats := f.provider.Stats(); stats.Builds != 1 || stats.Hits != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	tests := []struct {
		name  string
		files map[string]string
		want  []string
	}{
		{
			name:  "properties",
			files: map[string]string{"/adhoc/application.properties": "some-adhoc-foo=somevalue\nsome-adhoc-bar=somevalue\n"},
			want:  []string{"some-adhoc-bar", "some-adhoc-foo"},
		},
		{
			name:  "yaml",
			files: map[string]string{"/adhoc/application.yml": "from-yaml:\n  adhoc:\n    foo: somevalue\n    bar: somevalue\n"},
			want:  []string{"from-yaml.adhoc.bar", "from-yaml.adhoc.foo"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFiles(t, fs, tt.files)
			resolver := ResolverFunc(func(Document) (Project, bool) {
				return Project{ID: "adhoc", Dir: "/adhoc", Roots: []string{"/adhoc"}}, true
			})
			provider, err := New(resolver, Feeds{}, Config{Fs: fs, ErrorHandler: quietConfig().ErrorHandler})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer provider.Close()

			got := provider.GetIndex(DocumentURI("/adhoc/App.java")).IDs()
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("position %d: got %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestProvider_RootsChangedDuringResolve(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/proj/a/application.properties": "a.x=1\n",
		"/proj/b/application.yml":        "b:\n  y: 2\n",
	})
	ws := NewWorkspace()
	defer ws.Close()
	files := NewFileFeed()
	defer files.Close()
	if err := ws.AddProject("demo", "/proj", "/proj/a"); err != nil {
		t.Fatal(err)
	}

	// The root lands after the first resolve and before the build
	var calls atomic.Int32
	resolver := ResolverFunc(func(doc Document) (Project, bool) {
		p, ok := ws.Resolve(doc)
		if calls.Add(1) == 1 {
			if err := ws.AddSourceRoot("demo", "/proj/b"); err != nil {
				t.Errorf("AddSourceRoot failed: %v", err)
			}
		}
		return p, ok
	})
	provider, err := New(resolver, Feeds{Classpath: ws.ClasspathFeed(), Files: files}, Config{Fs: fs, ErrorHandler: quietConfig().ErrorHandler})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer provider.Close()

	first := provider.GetIndex(appDoc)
	if !first.Has("a.x") || first.Has("b.y") {
		t.Errorf("first query built from the resolved roots, got %v", first.IDs())
	}
	second := provider.GetIndex(appDoc)
	if !second.Has("a.x") || !second.Has("b.y") {
		t.Errorf("second query must see the added root, got %v", second.IDs())
	}
}

func TestProvider_UnknownDocument(t *testing.T) {
	f := newProviderFixture(t)

	snap := f.provider.GetIndex(DocumentURI("/nowhere/App.java"))
	if snap == nil || !snap.IsEmpty() {
		t.Fatal("an unknown document yields an empty snapshot")
	}
	codes := f.warningCodes()
	if len(codes) != 1 || codes[0] != ErrCodeProjectNotFound {
		t.Errorf("expected a project-not-found warning, got %v", codes)
	}
	if s := f.provider.State(DocumentURI("/nowhere/App.java")); s != StateAbsent {
		t.Errorf("state %v", s)
	}
	if _, ok := f.provider.Resolve(nil); ok {
		t.Error("nil document resolved")
	}
}

func TestProvider_FollowsWorkspaceAndFiles(t *testing.T) {
	f := newProviderFixture(t)
	first := f.provider.GetIndex(appDoc)

	if err := f.ws.RemoveSourceRoot("demo", "/proj/test"); err != nil {
		t.Fatal(err)
	}
	second := f.provider.GetIndex(appDoc)
	if second == first || len(second.Lookup("app.name")) != 1 {
		t.Errorf("root removal not reflected: %v", second.IDs())
	}
	if second.Generation() != 1 {
		t.Errorf("generation %d, want 1", second.Generation())
	}

	writeFiles(t, f.fs, map[string]string{"/proj/main/application.properties": "server.port=1\n"})
	f.files.Publish(FileEvent{Path: "/proj/main/application.properties", Kind: FileModified})
	third := f.provider.GetIndex(appDoc)
	if ports := third.Lookup("server.port"); len(ports) != 2 || ports[0].Value != "1" {
		t.Errorf("file change not reflected: %+v", ports)
	}

	if err := f.ws.RemoveProject("demo"); err != nil {
		t.Fatal(err)
	}
	if s := f.provider.State(DocumentURI("/proj/main/application.properties")); s != StateAbsent {
		t.Errorf("removed project state %v", s)
	}
	if !f.provider.GetIndex(appDoc).IsEmpty() {
		t.Error("removed project still indexed")
	}
}

func TestProvider_Invalidate(t *testing.T) {
	f := newProviderFixture(t)
	first := f.provider.GetIndex(appDoc)
	f.provider.Invalidate("demo")
	if f.provider.State(appDoc) != StateStale {
		t.Error("Invalidate should mark the project stale")
	}
	if f.provider.GetIndex(appDoc) == first {
		t.Error("stale snapshot served")
	}
}

func TestProvider_CloseFallsBackToBuilds(t *testing.T) {
	f := newProviderFixture(t)
	f.provider.GetIndex(appDoc)

	if err := f.provider.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.provider.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	a := f.provider.GetIndex(appDoc)
	b := f.provider.GetIndex(appDoc)
	if a == b || a.Len() != 5 {
		t.Error("after Close every query builds afresh")
	}
	// Feeds no longer block on the closed provider
	f.files.Publish(FileEvent{Path: "/proj/main/application.properties"})
}

func TestProvider_Accessors(t *testing.T) {
	f := newProviderFixture(t)
	if f.provider.Locator() == nil || f.provider.Audit() == nil {
		t.Fatal("accessors must not return nil")
	}
	if f.provider.Audit().Enabled() {
		t.Error("audit should be off by default")
	}
	if cfg := f.provider.Config(); cfg.PollInterval != DefaultPollInterval || len(cfg.BaseNames) != 1 {
		t.Errorf("effective config lacks defaults: %+v", cfg)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil, Feeds{}, Config{}); GetValidationErrorCode(err) != ErrCodeInvalidConfig {
		t.Errorf("nil resolver: got %v", err)
	}
	_, err := New(NewWorkspace(), Feeds{}, Config{PollInterval: time.Millisecond})
	if GetValidationErrorCode(err) != ErrCodeInvalidPollInterval {
		t.Errorf("invalid config: got %v", err)
	}
}

func TestNew_AuditedProvider(t *testing.T) {
	auditFile := filepath.Join(t.TempDir(), "provider.jsonl")
	ws := NewWorkspace()
	defer ws.Close()
	files := NewFileFeed()
	defer files.Close()

	provider, err := New(ws, Feeds{Classpath: ws.ClasspathFeed(), Files: files}, Config{
		Fs:           newProjectFs(t),
		ErrorHandler: func(error, string) {},
		Audit: AuditConfig{
			Enabled:       true,
			OutputFile:    auditFile,
			MinLevel:      AuditInfo,
			BufferSize:    10,
			FlushInterval: time.Hour,
		},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = provider.Close() }()

	_ = ws.AddProject("demo", "/proj", "/proj/main")
	provider.GetIndex(appDoc)
	provider.Invalidate("demo")

	if err := provider.Audit().Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	events, err := provider.Audit().Query(AuditQuery{Component: auditComponent})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	seen := make(map[string]bool)
	for _, ev := range events {
		seen[ev.Event] = true
	}
	if !seen["index_built"] || !seen["index_invalidated"] {
		t.Errorf("expected build and invalidation events, got %v", seen)
	}
}
