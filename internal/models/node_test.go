package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestFolderToNodeOrdersFilesFirst(t *testing.T) {
	f := &Folder{
		Files: []FileEntry{{ID: "x.md", Name: "x.md"}},
		Subfolders: []*Folder{{
			ID: "A", Name: "A",
			Files: []FileEntry{{ID: "A/c.md", Name: "c.md"}},
		}},
	}
	n := FolderToNode(f)
	if len(n.Children) != 2 || n.Children[0].ID != "x.md" || n.Children[1].ID != "A" {
		t.Fatalf("children = %+v", n.Children)
	}
	if !n.Children[1].IsFolder() || n.Children[1].Children[0].ID != "A/c.md" {
		t.Errorf("A = %+v", n.Children[1])
	}

	back := NodeToFolder(n)
	if len(back.Files) != 1 || len(back.Subfolders) != 1 || back.Subfolders[0].Files[0].Name != "c.md" {
		t.Errorf("NodeToFolder = %+v", back)
	}
}

func TestFolderToNodeNil(t *testing.T) {
	n := FolderToNode(nil)
	if !n.IsFolder() || n.ID != "" || n.Children == nil {
		t.Errorf("empty root = %+v", n)
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := &Node{Kind: KindFolder, Children: []*Node{{ID: "a", Name: "a", Kind: KindFolder, Children: []*Node{}}}}
	c := orig.Clone()
	c.Children[0].Name = "b"
	c.Children[0].Children = append(c.Children[0].Children, &Node{ID: "a/z"})
	if orig.Children[0].Name != "a" || len(orig.Children[0].Children) != 0 {
		t.Errorf("clone shares state with original: %+v", orig.Children[0])
	}
}

func TestKindJSON(t *testing.T) {
	data, err := json.Marshal(&Node{ID: "A", Name: "A", Kind: KindFolder})
	if err != nil {
		t.Fatal(err)
	}
	var back Node
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Kind != KindFolder {
		t.Errorf("kind = %v from %s", back.Kind, data)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{fmt.Errorf("create %q: %w", "a", ErrConflict), ErrConflict},
		{fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", ErrNotFound)), ErrNotFound},
		{errors.New("socket closed"), ErrRemoteUnavailable},
		{ErrInvalid, ErrInvalid},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
		if got := KindFromName(KindName(tt.want)); got != tt.want {
			t.Errorf("name round trip of %v = %v", tt.want, got)
		}
	}
}
