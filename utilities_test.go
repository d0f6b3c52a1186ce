// utilities_test.go: Tests for LiveProvider
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// newPolledProvider returns a LiveProvider over an in-memory filesystem.
// The background poll interval is long so tests drive polls with Refresh.
func newPolledProvider(t *testing.T, fs afero.Fs) (*Workspace, *LiveProvider) {
	t.Helper()
	ws := NewWorkspace()
	t.Cleanup(ws.Close)
	lp, err := NewLiveProvider(ws, Config{
		Fs:           fs,
		PollInterval: time.Hour,
		ErrorHandler: func(error, string) {},
	})
	if err != nil {
		t.Fatalf("NewLiveProvider failed: %v", err)
	}
	t.Cleanup(func() { _ = lp.Close() })
	return ws, lp
}

func TestLiveProvider_FollowsFileChanges(t *testing.T) {
	fs := afero.NewMemMapFs()
	ws, lp := newPolledProvider(t, fs)
	doc := DocumentURI("/proj/src/App.java")

	if err := ws.AddProject("demo", "/proj", "/proj/main"); err != nil {
		t.Fatal(err)
	}
	lp.Refresh()
	if lp.WatchedPaths() != 6 {
		t.Errorf("expected 6 candidate paths, got %d", lp.WatchedPaths())
	}
	if n := lp.GetIndex(doc).Len(); n != 0 {
		t.Fatalf("expected empty index, got %d entries", n)
	}

	writeFiles(t, fs, map[string]string{"/proj/main/application.properties": "a=1\n"})
	lp.Refresh()
	if snap := lp.GetIndex(doc); snap.Len() != 1 || !snap.Has("a") {
		t.Errorf("created resource not indexed: %v", snap.IDs())
	}

	writeFiles(t, fs, map[string]string{"/proj/main/config/application.yml": "b:\n  c: 2\n"})
	lp.Refresh()
	if snap := lp.GetIndex(doc); !snap.Has("b.c") {
		t.Errorf("config/ resource not indexed: %v", snap.IDs())
	}

	if err := fs.Remove("/proj/main/application.properties"); err != nil {
		t.Fatal(err)
	}
	lp.Refresh()
	if snap := lp.GetIndex(doc); snap.Has("a") {
		t.Errorf("deleted resource still indexed: %v", snap.IDs())
	}
}

func TestLiveProvider_FollowsWorkspace(t *testing.T) {
	fs := afero.NewMemMapFs()
	ws, lp := newPolledProvider(t, fs)
	writeFiles(t, fs, map[string]string{
		"/proj/main/application.properties":  "a=1\n",
		"/proj/extra/application.properties": "x=1\n",
	})
	doc := DocumentURI("/proj/src/App.java")

	_ = ws.AddProject("demo", "/proj", "/proj/main")
	if snap := lp.GetIndex(doc); snap.Has("x") {
		t.Fatal("extra root is not registered yet")
	}

	_ = ws.AddSourceRoot("demo", "/proj/extra")
	lp.Refresh()
	if lp.WatchedPaths() != 12 {
		t.Errorf("expected 12 candidate paths, got %d", lp.WatchedPaths())
	}
	if snap := lp.GetIndex(doc); !snap.Has("x") || !snap.Has("a") {
		t.Errorf("added root not indexed: %v", snap.IDs())
	}

	_ = ws.RemoveProject("demo")
	lp.Refresh()
	if lp.WatchedPaths() != 0 {
		t.Errorf("removed project still watched: %d paths", lp.WatchedPaths())
	}
	if lp.GetIndex(doc).Len() != 0 {
		t.Error("removed project should resolve to an empty index")
	}
}

func TestLiveProvider_SharedRoots(t *testing.T) {
	fs := afero.NewMemMapFs()
	ws, lp := newPolledProvider(t, fs)

	_ = ws.AddProject("a", "/a", "/shared")
	_ = ws.AddProject("b", "/b", "/shared")
	lp.Refresh()
	if lp.WatchedPaths() != 6 {
		t.Errorf("shared candidates should be watched once, got %d", lp.WatchedPaths())
	}

	_ = ws.RemoveProject("a")
	lp.Refresh()
	if lp.WatchedPaths() != 6 {
		t.Errorf("project b still needs the shared root, got %d", lp.WatchedPaths())
	}
	_ = ws.RemoveProject("b")
	lp.Refresh()
	if lp.WatchedPaths() != 0 {
		t.Errorf("expected no watched paths, got %d", lp.WatchedPaths())
	}
}

func TestLiveProvider_WithoutFileWatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/proj/main/application.properties": "a=1\n"})
	ws := NewWorkspace()
	defer ws.Close()
	_ = ws.AddProject("demo", "/proj", "/proj/main")

	lp, err := NewLiveProvider(ws, Config{Fs: fs, FileWatch: FileWatchNone, ErrorHandler: func(error, string) {}})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lp.Close() }()

	if lp.Watcher() != nil || lp.WatchedPaths() != 0 {
		t.Error("FileWatchNone should not watch anything")
	}
	doc := DocumentURI("/proj/App.java")
	if !lp.GetIndex(doc).Has("a") {
		t.Fatal("existing project should be indexed")
	}

	writeFiles(t, fs, map[string]string{"/proj/main/application.properties": "a=1\nb=2\n"})
	lp.Refresh()
	if !lp.GetIndex(doc).Has("b") {
		t.Error("without a file feed every query should rebuild")
	}
	if lp.State(doc) != StateStale {
		t.Errorf("expected Stale, got %s", lp.State(doc))
	}
}

func TestLiveProvider_Notify(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "src", "main", "resources")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	ws := NewWorkspace()
	defer ws.Close()

	lp, err := NewLiveProvider(ws, Config{FileWatch: FileWatchNotify, ErrorHandler: func(error, string) {}})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lp.Close() }()

	_ = ws.AddProject("demo", dir, root)
	lp.Refresh()
	doc := DocumentURI(filepath.Join(dir, "src", "main", "java", "App.java"))
	if lp.GetIndex(doc).Len() != 0 {
		t.Fatal("expected an empty index")
	}

	if err := os.WriteFile(filepath.Join(root, "application.properties"), []byte("server.port=8080\n"), 0644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for !lp.GetIndex(doc).Has("server.port") {
		if time.Now().After(deadline) {
			t.Fatal("notification never reached the index")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestLiveProvider_Errors(t *testing.T) {
	if _, err := NewLiveProvider(nil, Config{}); GetValidationErrorCode(err) != ErrCodeInvalidConfig {
		t.Errorf("nil workspace: got %v", err)
	}

	ws := NewWorkspace()
	defer ws.Close()
	if _, err := NewLiveProvider(ws, Config{PollInterval: time.Millisecond}); err == nil {
		t.Error("invalid poll interval should be rejected")
	}

	lp, err := NewLiveProvider(ws, Config{Fs: afero.NewMemMapFs()})
	if err != nil {
		t.Fatal(err)
	}
	if err := lp.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := lp.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
}
