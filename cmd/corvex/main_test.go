package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/corvex/corvex/internal/api"
	"github.com/corvex/corvex/internal/client"
	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/store/memory"
	"github.com/corvex/corvex/internal/workspace"
)

func testSession(t *testing.T, shell bool, in string) (*session, *bytes.Buffer) {
	t.Helper()
	ts := httptest.NewServer(api.NewServer(memory.New(), nil, nil).Handler())
	t.Cleanup(ts.Close)

	var out bytes.Buffer
	s, err := open(context.Background(), client.New(client.Config{BaseURL: ts.URL}),
		strings.NewReader(in), &out, shell, workspace.Config{})
	if err != nil {
		t.Fatal(err)
	}
	return s, &out
}

func TestCommands(t *testing.T) {
	s, out := testSession(t, false, "hello\n")
	ctx := context.Background()

	for _, line := range []string{
		"mkdir notes",
		"mkdir archive/",
		"touch notes/a.md",
		"write /notes/a.md",
		"rename notes/a.md b.md",
		"mv notes/b.md archive",
	} {
		if err := s.run(ctx, strings.Fields(line)); err != nil {
			t.Fatalf("%s: %v", line, err)
		}
	}

	out.Reset()
	if err := s.run(ctx, []string{"cat", "archive/b.md"}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello\n" {
		t.Errorf("cat = %q", out.String())
	}

	out.Reset()
	if err := s.run(ctx, []string{"ls"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{rootLabel, "notes/", "archive/", "b.md"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("ls output missing %q:\n%s", want, out.String())
		}
	}

	if err := s.run(ctx, []string{"rm", "archive"}); err != nil {
		t.Fatal(err)
	}
	if snap := s.engine.Snapshot(); len(snap.Children) != 1 || snap.Children[0].ID != "notes" {
		t.Errorf("children after rm = %+v", snap.Children)
	}
}

func TestCommandErrors(t *testing.T) {
	s, _ := testSession(t, false, "")
	ctx := context.Background()

	tests := []struct {
		line string
		want string
	}{
		{"", "usage"},
		{"frobnicate", "unknown command"},
		{"mkdir", "usage: mkdir PATH"},
		{"ls -x", "usage: ls"},
		{"new file /", "unknown command"},
		{"rm /", "permission denied"},
		{"mkdir /", "permission denied"},
		{"cat missing.md", "not found"},
	}
	for _, tt := range tests {
		err := s.run(ctx, strings.Fields(tt.line))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%q: err = %v, want %q", tt.line, err, tt.want)
		}
	}
}

func TestShellPlaceholderFlow(t *testing.T) {
	s, out := testSession(t, true, "")
	ctx := context.Background()

	if err := s.run(ctx, []string{"new", "folder", "/"}); err != nil {
		t.Fatal(err)
	}
	tempID := strings.TrimSpace(out.String())
	if !strings.HasPrefix(tempID, "/~pending/") {
		t.Fatalf("temp id = %q", tempID)
	}

	out.Reset()
	s.run(ctx, []string{"ls"})
	if !strings.Contains(out.String(), "<new folder") {
		t.Errorf("placeholder not listed:\n%s", out.String())
	}

	if err := s.run(ctx, []string{"name", tempID, "drafts"}); err != nil {
		t.Fatal(err)
	}
	if err := s.run(ctx, []string{"select", "drafts"}); err != nil {
		t.Fatal(err)
	}
	if id, ok := s.engine.Selected(); !ok || id != "drafts" {
		t.Errorf("selected = %q, %v", id, ok)
	}
}

func TestReplRunsUntilExit(t *testing.T) {
	s, out := testSession(t, true, "")
	input := "mkdir a\n\nbogus\nexit\nmkdir never\n"

	if err := repl(context.Background(), s, strings.NewReader(input), false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `error: unknown command "bogus"`) {
		t.Errorf("output = %q", out.String())
	}
	snap := s.engine.Snapshot()
	if len(snap.Children) != 1 || snap.Children[0].ID != "a" {
		t.Errorf("children = %+v", snap.Children)
	}
}

func TestRenderView(t *testing.T) {
	v := &models.ViewNode{
		Expanded: true,
		Children: []*models.ViewNode{
			{ID: "x.md", Name: "x.md", IsLeaf: true, Selected: true},
			{ID: "A", Name: "A", Children: []*models.ViewNode{
				{ID: "A/c.md", Name: "c.md", IsLeaf: true},
			}},
		},
	}

	collapsed := renderView(v, false)
	if strings.Contains(collapsed, "c.md") {
		t.Errorf("collapsed folder shows children:\n%s", collapsed)
	}
	if !strings.Contains(collapsed, "> x.md") || !strings.Contains(collapsed, "A/ …") {
		t.Errorf("unexpected rendering:\n%s", collapsed)
	}

	if all := renderView(v, true); !strings.Contains(all, "c.md") {
		t.Errorf("full rendering misses nested file:\n%s", all)
	}
}
