package selection

import "testing"

func ids(list ...string) map[string]bool {
	m := make(map[string]bool)
	for _, id := range list {
		m[id] = true
	}
	return m
}

func TestSelectAndClear(t *testing.T) {
	c := New()
	if _, ok := c.Selected(); ok {
		t.Fatal("new controller should have no selection")
	}
	c.Select("A/c.md")
	if id, ok := c.Selected(); !ok || id != "A/c.md" {
		t.Errorf("Selected = %q, %v", id, ok)
	}
	c.Clear()
	if _, ok := c.Selected(); ok {
		t.Error("selection should be cleared")
	}
}

func TestOnReconciled(t *testing.T) {
	tests := []struct {
		name     string
		selected string
		snapshot map[string]bool
		created  string
		want     string
		wantOK   bool
	}{
		{"kept when present", "A/c.md", ids("", "A", "A/c.md"), "", "A/c.md", true},
		{"cleared when stale", "A/c.md", ids("", "B"), "", "", false},
		{"advanced to created", "A", ids("", "A", "A/new.md"), "A/new.md", "A/new.md", true},
		{"created missing falls back", "A", ids("", "A"), "A/new.md", "A", true},
		{"created missing and stale", "gone", ids(""), "A/new.md", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			c.Select(tt.selected)
			c.OnReconciled(tt.snapshot, tt.created)
			got, ok := c.Selected()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Selected = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRewrite(t *testing.T) {
	c := New()
	c.Select("A/sub/c.md")
	c.Expand("A")
	c.Expand("A/sub")
	c.Expand("Other")

	if !c.Rewrite("A", "B") {
		t.Error("Rewrite should report the selection moved")
	}
	if id, _ := c.Selected(); id != "B/sub/c.md" {
		t.Errorf("selection = %q, want B/sub/c.md", id)
	}
	for _, id := range []string{"B", "B/sub", "Other"} {
		if !c.IsExpanded(id) {
			t.Errorf("%q should be expanded", id)
		}
	}
	if c.IsExpanded("A") {
		t.Error("old id should not stay expanded")
	}
	if c.Rewrite("Other", "Elsewhere") {
		t.Error("unrelated rewrite should not move the selection")
	}
}

func TestExpansion(t *testing.T) {
	c := New()
	if !c.Toggle("A") || !c.IsExpanded("A") {
		t.Error("toggle should expand")
	}
	if c.Toggle("A") || c.IsExpanded("A") {
		t.Error("toggle should collapse")
	}
	c.Expand("A")
	c.Expand("B")
	c.Prune(ids("", "B"))
	if c.IsExpanded("A") || !c.IsExpanded("B") {
		t.Error("Prune kept the wrong folders")
	}
	c.Collapse("B")
	if c.IsExpanded("B") {
		t.Error("Collapse failed")
	}
}
