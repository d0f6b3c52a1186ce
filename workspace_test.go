// workspace_test.go: Tests for the project registry and document resolution
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"testing"
)

// collect subscribes to a classpath feed and returns a function draining
// every event delivered so far.
func collect(t *testing.T, feed *ClasspathFeed) func() []ClasspathEvent {
	t.Helper()
	sub := feed.Subscribe(64)
	t.Cleanup(sub.Close)
	return func() []ClasspathEvent {
		var out []ClasspathEvent
		for {
			select {
			case d := <-sub.Events():
				out = append(out, d.Event)
				sub.Ack(d.Seq)
			default:
				return out
			}
		}
	}
}

func TestWorkspace_AddProject(t *testing.T) {
	ws := NewWorkspace()
	defer ws.Close()
	events := collect(t, ws.ClasspathFeed())

	if err := ws.AddProject("demo", "/src/demo", "/src/demo/res", "", "/src/demo/test/../res2"); err != nil {
		t.Fatalf("AddProject failed: %v", err)
	}

	p, ok := ws.Project("demo")
	if !ok {
		t.Fatal("project not registered")
	}
	if p.Dir != "/src/demo" || len(p.Roots) != 2 || p.Roots[1] != "/src/demo/res2" {
		t.Errorf("roots not cleaned: %+v", p)
	}

	got := events()
	if len(got) != 1 || got[0].Project != "demo" || got[0].Kind != ClasspathChanged {
		t.Errorf("unexpected events %+v", got)
	}

	err := ws.AddProject("demo", "/elsewhere")
	if GetValidationErrorCode(err) != ErrCodeInvalidConfig {
		t.Errorf("duplicate project: got %v", err)
	}
	if err := ws.AddProject("", "/x"); err == nil {
		t.Error("empty id must be rejected")
	}
}

func TestWorkspace_RootUpdates(t *testing.T) {
	ws := NewWorkspace()
	defer ws.Close()
	if err := ws.AddProject("demo", "/src/demo", "/a"); err != nil {
		t.Fatal(err)
	}
	events := collect(t, ws.ClasspathFeed())

	if err := ws.AddSourceRoot("demo", "/b"); err != nil {
		t.Fatal(err)
	}
	if err := ws.AddSourceRoot("demo", "/b"); err != nil {
		t.Fatal(err)
	}
	if err := ws.SetSourceRoots("demo", "/a", "/b"); err != nil {
		t.Fatal(err)
	}
	if n := len(events()); n != 1 {
		t.Errorf("no-op updates must not publish, got %d events", n)
	}

	if err := ws.SetSourceRoots("demo", "/b", "/a"); err != nil {
		t.Fatal(err)
	}
	if err := ws.RemoveSourceRoot("demo", "/a"); err != nil {
		t.Fatal(err)
	}
	if n := len(events()); n != 2 {
		t.Errorf("reorder and removal should publish twice, got %d", n)
	}
	if p, _ := ws.Project("demo"); len(p.Roots) != 1 || p.Roots[0] != "/b" {
		t.Errorf("unexpected roots %v", p.Roots)
	}

	if err := ws.AddSourceRoot("missing", "/x"); GetValidationErrorCode(err) != ErrCodeProjectNotFound {
		t.Errorf("unknown project: got %v", err)
	}
}

func TestWorkspace_RemoveProject(t *testing.T) {
	ws := NewWorkspace()
	defer ws.Close()
	_ = ws.AddProject("demo", "/src/demo", "/a")
	events := collect(t, ws.ClasspathFeed())

	if err := ws.RemoveProject("demo"); err != nil {
		t.Fatal(err)
	}
	if _, ok := ws.Project("demo"); ok {
		t.Error("project still registered")
	}
	got := events()
	if len(got) != 1 || got[0].Kind != ClasspathRemoved {
		t.Errorf("unexpected events %+v", got)
	}
	if err := ws.RemoveProject("demo"); GetValidationErrorCode(err) != ErrCodeProjectNotFound {
		t.Errorf("second removal: got %v", err)
	}
}

func TestWorkspace_Resolve(t *testing.T) {
	ws := NewWorkspace()
	defer ws.Close()
	_ = ws.AddProject("outer", "/src", "/src/res")
	_ = ws.AddProject("inner", "/src/inner", "/src/inner/res")
	_ = ws.AddProject("shared", "", "/shared/res")

	tests := []struct {
		doc  Document
		want ProjectID
		ok   bool
	}{
		{DocumentURI("/src/inner/App.java"), "inner", true},
		{DocumentURI("file:///src/inner/res/application.properties"), "inner", true},
		{DocumentURI("/src/other/App.java"), "outer", true},
		{DocumentURI("/shared/res/application.yml"), "shared", true},
		{DocumentURI("/srcx/App.java"), "", false},
		{DocumentURI(""), "", false},
		{nil, "", false},
	}
	for _, tt := range tests {
		p, ok := ws.Resolve(tt.doc)
		if ok != tt.ok || p.ID != tt.want {
			t.Errorf("Resolve(%v) = %q/%v, want %q/%v", tt.doc, p.ID, ok, tt.want, tt.ok)
		}
	}

	projects := ws.Projects()
	if len(projects) != 3 || projects[0].ID != "inner" || projects[2].ID != "shared" {
		t.Errorf("projects not sorted: %+v", projects)
	}

	// Returned projects are copies
	projects[0].Roots[0] = "/mutated"
	if p, _ := ws.Project("inner"); p.Roots[0] != "/src/inner/res" {
		t.Error("Projects() leaked internal state")
	}
}

func TestResolverFunc(t *testing.T) {
	r := ResolverFunc(func(doc Document) (Project, bool) {
		return Project{ID: ProjectID(doc.URI())}, true
	})
	if p, ok := r.Resolve(DocumentURI("x")); !ok || p.ID != "x" {
		t.Errorf("ResolverFunc did not delegate: %+v", p)
	}
}
