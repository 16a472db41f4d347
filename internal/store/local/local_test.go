package local

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/corvex/corvex/internal/models"
)

func newStore(t *testing.T, extensions ...string) *Store {
	t.Helper()
	s, err := New(Config{RootPath: filepath.Join(t.TempDir(), "data"), CreateDirs: true, Extensions: extensions})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty root")
	}
	if _, err := New(Config{RootPath: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("expected error for missing root without CreateDirs")
	}
}

func TestCreateAndList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.CreateFolder(ctx, "A"); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateFile(ctx, "A/b.md"); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateFile(ctx, "top.tex"); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(s.rootPath, ".DS_Store"), nil, 0644)

	root, err := s.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(root.Files) != 1 || root.Files[0].ID != "top.tex" {
		t.Errorf("root files = %+v", root.Files)
	}
	if len(root.Subfolders) != 1 {
		t.Fatalf("root subfolders = %+v", root.Subfolders)
	}
	a := root.Subfolders[0]
	if a.ID != "A" || len(a.Files) != 1 || a.Files[0].ID != "A/b.md" {
		t.Errorf("A = %+v", a)
	}
}

func TestCreateErrors(t *testing.T) {
	s := newStore(t, "md", "tex")
	ctx := context.Background()
	s.CreateFile(ctx, "x.md")

	tests := []struct {
		name string
		path string
		want error
	}{
		{"exists", "x.md", models.ErrConflict},
		{"missing parent", "A/y.md", models.ErrNotFound},
		{"parent is file", "x.md/y.md", models.ErrNotFound},
		{"extension", "notes.txt", models.ErrInvalid},
		{"hidden", ".secret.md", models.ErrInvalid},
		{"root", "", models.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.CreateFile(ctx, tt.path); !errors.Is(err, tt.want) {
				t.Errorf("CreateFile(%q) = %v, want %v", tt.path, err, tt.want)
			}
		})
	}
}

func TestExtensionFilterHidesOtherFiles(t *testing.T) {
	s := newStore(t, "md")
	os.WriteFile(filepath.Join(s.rootPath, "image.png"), []byte("x"), 0644)
	root, err := s.ListAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(root.Files) != 0 {
		t.Errorf("files = %+v", root.Files)
	}
}

func TestRenameMoveDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	s.CreateFolder(ctx, "A")
	s.CreateFolder(ctx, "B")
	s.CreateFile(ctx, "A/c.md")

	if err := s.RenameFolder(ctx, "A", "C"); err != nil {
		t.Fatal(err)
	}
	if err := s.MoveFile(ctx, "C/c.md", "B/c.md"); err != nil {
		t.Fatal(err)
	}
	if err := s.MoveFolder(ctx, "C", "C/inner"); !errors.Is(err, models.ErrInvalid) {
		t.Errorf("move into itself: %v", err)
	}
	if err := s.RenameFile(ctx, "C/c.md", "C/d.md"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("rename missing: %v", err)
	}
	if err := s.RenameFolder(ctx, "B", "C"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("rename onto existing: %v", err)
	}
	if err := s.RenameFile(ctx, "B", "D"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("rename folder as file: %v", err)
	}

	if err := s.DeleteFolder(ctx, "B"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.rootPath, "B")); !os.IsNotExist(err) {
		t.Errorf("B still on disk: %v", err)
	}
	if err := s.DeleteFile(ctx, "B/c.md"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("delete missing: %v", err)
	}
	if err := s.DeleteFolder(ctx, ""); !errors.Is(err, models.ErrPermissionDenied) {
		t.Errorf("delete root: %v", err)
	}
}

func TestContentRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	s.CreateFile(ctx, "doc.tex")

	if err := s.SaveFileContent(ctx, "doc.tex", "\\begin{document}"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetFileContent(ctx, "doc.tex")
	if err != nil || got != "\\begin{document}" {
		t.Errorf("GetFileContent = %q, %v", got, err)
	}
	if err := s.SaveFileContent(ctx, "missing.tex", "x"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("save missing: %v", err)
	}

	entries, _ := os.ReadDir(s.rootPath)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
