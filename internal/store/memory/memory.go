// Package memory provides an in-process workspace store. Entries keep the
// order in which they were created.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/tree"
)

type entry struct {
	kind     models.Kind
	children []string // child names, creation order
	content  string
}

// Store keeps the workspace in memory.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*entry
}

// New creates an empty store.
func New() *Store {
	return &Store{
		nodes: map[string]*entry{"": {kind: models.KindFolder}},
	}
}

// Type returns the backend type identifier.
func (s *Store) Type() string { return "memory" }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// ListAll returns the whole workspace.
func (s *Store) ListAll(_ context.Context) (*models.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.folder(""), nil
}

func (s *Store) folder(id string) *models.Folder {
	f := &models.Folder{ID: id, Name: tree.Name(id), Files: []models.FileEntry{}, Subfolders: []*models.Folder{}}
	for _, name := range s.nodes[id].children {
		childID := tree.Join(id, name)
		if s.nodes[childID].kind == models.KindFolder {
			f.Subfolders = append(f.Subfolders, s.folder(childID))
		} else {
			f.Files = append(f.Files, models.FileEntry{ID: childID, Name: name})
		}
	}
	return f
}

// CreateFile creates an empty file.
func (s *Store) CreateFile(_ context.Context, path string) error {
	return s.create(path, models.KindFile)
}

// CreateFolder creates an empty folder.
func (s *Store) CreateFolder(_ context.Context, path string) error {
	return s.create(path, models.KindFolder)
}

func (s *Store) create(path string, kind models.Kind) error {
	if tree.IsRoot(path) {
		return fmt.Errorf("create root: %w", models.ErrPermissionDenied)
	}
	if !tree.ValidPath(path) {
		return fmt.Errorf("create %q: %w", path, models.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[path]; ok {
		return fmt.Errorf("create %q: %w", path, models.ErrConflict)
	}
	parent := s.nodes[tree.ParentID(path)]
	if parent == nil || parent.kind != models.KindFolder {
		return fmt.Errorf("create %q: parent: %w", path, models.ErrNotFound)
	}
	s.nodes[path] = &entry{kind: kind}
	parent.children = append(parent.children, tree.Name(path))
	return nil
}

// RenameFile renames a file.
func (s *Store) RenameFile(_ context.Context, oldPath, newPath string) error {
	return s.relocate(oldPath, newPath, models.KindFile)
}

// RenameFolder renames a folder and everything below it.
func (s *Store) RenameFolder(_ context.Context, oldPath, newPath string) error {
	return s.relocate(oldPath, newPath, models.KindFolder)
}

// MoveFile moves a file to another folder.
func (s *Store) MoveFile(_ context.Context, oldPath, newPath string) error {
	return s.relocate(oldPath, newPath, models.KindFile)
}

// MoveFolder moves a folder and everything below it to another folder.
func (s *Store) MoveFolder(_ context.Context, oldPath, newPath string) error {
	return s.relocate(oldPath, newPath, models.KindFolder)
}

func (s *Store) relocate(oldPath, newPath string, kind models.Kind) error {
	if tree.IsRoot(oldPath) || tree.IsRoot(newPath) {
		return fmt.Errorf("rename root: %w", models.ErrPermissionDenied)
	}
	if !tree.ValidPath(newPath) {
		return fmt.Errorf("rename to %q: %w", newPath, models.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.nodes[oldPath]; e == nil || e.kind != kind {
		return fmt.Errorf("rename %q: %w", oldPath, models.ErrNotFound)
	}
	if oldPath == newPath {
		return nil
	}
	if tree.IsWithin(newPath, oldPath) {
		return fmt.Errorf("move %q into itself: %w", oldPath, models.ErrInvalid)
	}
	if _, ok := s.nodes[newPath]; ok {
		return fmt.Errorf("rename to %q: %w", newPath, models.ErrConflict)
	}
	newParent := s.nodes[tree.ParentID(newPath)]
	if newParent == nil || newParent.kind != models.KindFolder {
		return fmt.Errorf("rename to %q: parent: %w", newPath, models.ErrNotFound)
	}
	oldParent := s.nodes[tree.ParentID(oldPath)]

	moved := make(map[string]*entry)
	for id, e := range s.nodes {
		if tree.IsWithin(id, oldPath) {
			moved[tree.Rebase(id, oldPath, newPath)] = e
			delete(s.nodes, id)
		}
	}
	for id, e := range moved {
		s.nodes[id] = e
	}

	i := indexOf(oldParent.children, tree.Name(oldPath))
	if oldParent == newParent {
		oldParent.children[i] = tree.Name(newPath)
		return nil
	}
	oldParent.children = append(oldParent.children[:i], oldParent.children[i+1:]...)
	newParent.children = append(newParent.children, tree.Name(newPath))
	return nil
}

// DeleteFile removes a file.
func (s *Store) DeleteFile(_ context.Context, path string) error {
	return s.delete(path, models.KindFile)
}

// DeleteFolder removes a folder and its subtree.
func (s *Store) DeleteFolder(_ context.Context, path string) error {
	return s.delete(path, models.KindFolder)
}

func (s *Store) delete(path string, kind models.Kind) error {
	if tree.IsRoot(path) {
		return fmt.Errorf("delete root: %w", models.ErrPermissionDenied)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.nodes[path]; e == nil || e.kind != kind {
		return fmt.Errorf("delete %q: %w", path, models.ErrNotFound)
	}
	for id := range s.nodes {
		if tree.IsWithin(id, path) {
			delete(s.nodes, id)
		}
	}
	parent := s.nodes[tree.ParentID(path)]
	i := indexOf(parent.children, tree.Name(path))
	parent.children = append(parent.children[:i], parent.children[i+1:]...)
	return nil
}

// GetFileContent returns the text of a file.
func (s *Store) GetFileContent(_ context.Context, path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.nodes[path]
	if e == nil || e.kind != models.KindFile {
		return "", fmt.Errorf("read %q: %w", path, models.ErrNotFound)
	}
	return e.content, nil
}

// SaveFileContent replaces the text of an existing file.
func (s *Store) SaveFileContent(_ context.Context, path, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.nodes[path]
	if e == nil || e.kind != models.KindFile {
		return fmt.Errorf("write %q: %w", path, models.ErrNotFound)
	}
	e.content = text
	return nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
