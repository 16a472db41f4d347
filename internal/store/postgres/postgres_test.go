package postgres

import "testing"

func TestLikeDescendants(t *testing.T) {
	tests := map[string]string{
		"A":         "A/%",
		"A/b_c":     `A/b\_c/%`,
		"100%":      `100\%/%`,
		`back\path`: `back\\path/%`,
	}
	for in, want := range tests {
		if got := likeDescendants(in); got != want {
			t.Errorf("likeDescendants(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildTreeUsesRowOrder(t *testing.T) {
	// A/x.md was moved into A after A/sub was created, so it lists last.
	root := buildTree([]row{
		{path: "A", isFolder: true},
		{path: "A/sub", isFolder: true},
		{path: "top.md"},
		{path: "A/sub/d.tex"},
		{path: "A/x.md"},
		{path: "orphan/y.md"},
	})

	if len(root.Files) != 1 || root.Files[0].ID != "top.md" {
		t.Errorf("root files = %+v", root.Files)
	}
	if len(root.Subfolders) != 1 {
		t.Fatalf("root subfolders = %+v", root.Subfolders)
	}
	a := root.Subfolders[0]
	if len(a.Files) != 1 || a.Files[0].ID != "A/x.md" {
		t.Errorf("A files = %+v", a.Files)
	}
	if len(a.Subfolders) != 1 || a.Subfolders[0].Files[0].Name != "d.tex" {
		t.Errorf("A subfolders = %+v", a.Subfolders)
	}
}
