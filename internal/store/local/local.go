// Package local provides a workspace store on the local filesystem. Folders
// are directories and files are regular files under a root directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/tree"
)

// Config holds local filesystem store settings.
type Config struct {
	RootPath   string
	CreateDirs bool
	// Extensions lists the allowed file extensions without the dot.
	// Empty allows any extension.
	Extensions []string
}

// Store implements the workspace store on the local filesystem.
type Store struct {
	rootPath   string
	extensions map[string]bool

	// mu serializes mutations so that existence checks and the change they
	// guard are not interleaved within this process.
	mu sync.Mutex
}

// New creates a new local filesystem store.
func New(cfg Config) (*Store, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	s := &Store{rootPath: cfg.RootPath}
	if len(cfg.Extensions) > 0 {
		s.extensions = make(map[string]bool, len(cfg.Extensions))
		for _, ext := range cfg.Extensions {
			s.extensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
		}
	}
	return s, nil
}

// Type returns "local".
func (s *Store) Type() string { return "local" }

// Close is a no-op for local stores.
func (s *Store) Close() error { return nil }

func (s *Store) fullPath(path string) string {
	return filepath.Join(s.rootPath, filepath.FromSlash(path))
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// allowed reports whether a file called name may live in the store.
func (s *Store) allowed(name string) bool {
	if s.extensions == nil {
		return true
	}
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return s.extensions[strings.ToLower(ext)]
}

// checkName validates the leaf of path for an entry of the given kind.
func (s *Store) checkName(path string, kind models.Kind) error {
	if !tree.ValidPath(path) || hidden(tree.Name(path)) {
		return fmt.Errorf("path %q: %w", path, models.ErrInvalid)
	}
	if kind == models.KindFile && !s.allowed(tree.Name(path)) {
		return fmt.Errorf("file extension of %q not allowed: %w", path, models.ErrInvalid)
	}
	return nil
}

// stat reports the kind of the entry at path, or ErrNotFound.
func (s *Store) stat(path string) (models.Kind, error) {
	info, err := os.Stat(s.fullPath(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%q: %w", path, models.ErrNotFound)
		}
		return 0, fmt.Errorf("stat %q: %w", path, err)
	}
	if info.IsDir() {
		return models.KindFolder, nil
	}
	return models.KindFile, nil
}

// expect checks that path exists with the given kind.
func (s *Store) expect(path string, kind models.Kind) error {
	got, err := s.stat(path)
	if err != nil {
		return err
	}
	if got != kind {
		return fmt.Errorf("%q is not a %s: %w", path, kind, models.ErrNotFound)
	}
	return nil
}

// ListAll walks the root directory. Hidden entries and files with
// disallowed extensions are skipped.
func (s *Store) ListAll(_ context.Context) (*models.Folder, error) {
	return s.walk("")
}

func (s *Store) walk(id string) (*models.Folder, error) {
	entries, err := os.ReadDir(s.fullPath(id))
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", id, err)
	}
	f := &models.Folder{ID: id, Name: tree.Name(id), Files: []models.FileEntry{}, Subfolders: []*models.Folder{}}
	for _, entry := range entries {
		name := entry.Name()
		if hidden(name) {
			continue
		}
		childID := tree.Join(id, name)
		if entry.IsDir() {
			sub, err := s.walk(childID)
			if err != nil {
				return nil, err
			}
			f.Subfolders = append(f.Subfolders, sub)
			continue
		}
		if s.allowed(name) {
			f.Files = append(f.Files, models.FileEntry{ID: childID, Name: name})
		}
	}
	return f, nil
}

// CreateFile creates an empty file.
func (s *Store) CreateFile(_ context.Context, path string) error {
	return s.create(path, models.KindFile)
}

// CreateFolder creates an empty directory.
func (s *Store) CreateFolder(_ context.Context, path string) error {
	return s.create(path, models.KindFolder)
}

func (s *Store) create(path string, kind models.Kind) error {
	if tree.IsRoot(path) {
		return fmt.Errorf("create root: %w", models.ErrPermissionDenied)
	}
	if err := s.checkName(path, kind); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(tree.ParentID(path), models.KindFolder); err != nil {
		return fmt.Errorf("create %q: parent: %w", path, err)
	}

	full := s.fullPath(path)
	if kind == models.KindFolder {
		if err := os.Mkdir(full, 0755); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("create %q: %w", path, models.ErrConflict)
			}
			return fmt.Errorf("create %q: %w", path, err)
		}
		return nil
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create %q: %w", path, models.ErrConflict)
		}
		return fmt.Errorf("create %q: %w", path, err)
	}
	return f.Close()
}

// RenameFile renames a file.
func (s *Store) RenameFile(_ context.Context, oldPath, newPath string) error {
	return s.relocate(oldPath, newPath, models.KindFile)
}

// RenameFolder renames a directory.
func (s *Store) RenameFolder(_ context.Context, oldPath, newPath string) error {
	return s.relocate(oldPath, newPath, models.KindFolder)
}

// MoveFile moves a file to another directory.
func (s *Store) MoveFile(_ context.Context, oldPath, newPath string) error {
	return s.relocate(oldPath, newPath, models.KindFile)
}

// MoveFolder moves a directory to another directory.
func (s *Store) MoveFolder(_ context.Context, oldPath, newPath string) error {
	return s.relocate(oldPath, newPath, models.KindFolder)
}

func (s *Store) relocate(oldPath, newPath string, kind models.Kind) error {
	if tree.IsRoot(oldPath) || tree.IsRoot(newPath) {
		return fmt.Errorf("rename root: %w", models.ErrPermissionDenied)
	}
	if err := s.checkName(newPath, kind); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(oldPath, kind); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if oldPath == newPath {
		return nil
	}
	if tree.IsWithin(newPath, oldPath) {
		return fmt.Errorf("move %q into itself: %w", oldPath, models.ErrInvalid)
	}
	if _, err := s.stat(newPath); err == nil {
		return fmt.Errorf("rename to %q: %w", newPath, models.ErrConflict)
	}
	if err := s.expect(tree.ParentID(newPath), models.KindFolder); err != nil {
		return fmt.Errorf("rename to %q: parent: %w", newPath, err)
	}
	if err := os.Rename(s.fullPath(oldPath), s.fullPath(newPath)); err != nil {
		return fmt.Errorf("rename %q -> %q: %w", oldPath, newPath, err)
	}
	return nil
}

// DeleteFile removes a file.
func (s *Store) DeleteFile(_ context.Context, path string) error {
	return s.delete(path, models.KindFile)
}

// DeleteFolder removes a directory and everything in it.
func (s *Store) DeleteFolder(_ context.Context, path string) error {
	return s.delete(path, models.KindFolder)
}

func (s *Store) delete(path string, kind models.Kind) error {
	if tree.IsRoot(path) {
		return fmt.Errorf("delete root: %w", models.ErrPermissionDenied)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(path, kind); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if kind == models.KindFolder {
		return os.RemoveAll(s.fullPath(path))
	}
	return os.Remove(s.fullPath(path))
}

// GetFileContent reads a file.
func (s *Store) GetFileContent(_ context.Context, path string) (string, error) {
	if err := s.expect(path, models.KindFile); err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	b, err := os.ReadFile(s.fullPath(path))
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return string(b), nil
}

// SaveFileContent replaces the content of an existing file atomically.
func (s *Store) SaveFileContent(_ context.Context, path, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(path, models.KindFile); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	full := s.fullPath(path)
	tmp, err := os.CreateTemp(filepath.Dir(full), ".corvex-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %q: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %q: %w", path, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %q: %w", path, err)
	}
	return nil
}
