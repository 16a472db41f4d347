// Package postgres provides a PostgreSQL-backed workspace store. Every node
// is a row keyed by its path; the root is implicit.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/corvex/corvex/internal/logging"
	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/tree"
)

const schema = `
CREATE TABLE IF NOT EXISTS workspace_nodes (
	path       TEXT PRIMARY KEY,
	parent     TEXT NOT NULL,
	name       TEXT NOT NULL,
	is_folder  BOOLEAN NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	seq        BIGSERIAL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS workspace_nodes_parent_idx ON workspace_nodes (parent);
`

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

// Config holds database settings.
type Config struct {
	DatabaseURL  string
	MaxOpenConns int
}

// Store is a PostgreSQL workspace store.
type Store struct {
	db *sql.DB
}

// New opens the database, checks the connection and creates the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the workspace table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logging.Info("workspace schema ready")
	return nil
}

// Type returns "postgres".
func (s *Store) Type() string { return "postgres" }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// likeDescendants returns a LIKE pattern matching every path below path.
func likeDescendants(path string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(path) + "/%"
}

type row struct {
	path     string
	isFolder bool
}

// ListAll loads every row in creation order.
func (s *Store) ListAll(ctx context.Context) (*models.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, is_folder FROM workspace_nodes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.path, &r.isFolder); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		all = append(all, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return buildTree(all), nil
}

// buildTree attaches rows to their parents in row order. Rows whose parent
// is missing are skipped.
func buildTree(rows []row) *models.Folder {
	root := &models.Folder{Files: []models.FileEntry{}, Subfolders: []*models.Folder{}}
	folders := map[string]*models.Folder{"": root}
	for _, r := range rows {
		if r.isFolder {
			folders[r.path] = &models.Folder{ID: r.path, Name: tree.Name(r.path), Files: []models.FileEntry{}, Subfolders: []*models.Folder{}}
		}
	}
	for _, r := range rows {
		parent, ok := folders[tree.ParentID(r.path)]
		if !ok {
			continue
		}
		if r.isFolder {
			parent.Subfolders = append(parent.Subfolders, folders[r.path])
		} else {
			parent.Files = append(parent.Files, models.FileEntry{ID: r.path, Name: tree.Name(r.path)})
		}
	}
	return root
}

// kindOf returns the kind of path within tx. The root is a folder.
func kindOf(ctx context.Context, tx *sql.Tx, path string, lock bool) (models.Kind, bool, error) {
	if tree.IsRoot(path) {
		return models.KindFolder, true, nil
	}
	query := `SELECT is_folder FROM workspace_nodes WHERE path = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var isFolder bool
	err := tx.QueryRowContext(ctx, query, path).Scan(&isFolder)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup %q: %w", path, err)
	}
	if isFolder {
		return models.KindFolder, true, nil
	}
	return models.KindFile, true, nil
}

// inTx runs fn in a transaction, committing when it returns nil.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CreateFile inserts an empty file row.
func (s *Store) CreateFile(ctx context.Context, path string) error {
	return s.create(ctx, path, models.KindFile)
}

// CreateFolder inserts a folder row.
func (s *Store) CreateFolder(ctx context.Context, path string) error {
	return s.create(ctx, path, models.KindFolder)
}

func (s *Store) create(ctx context.Context, path string, kind models.Kind) error {
	if tree.IsRoot(path) {
		return fmt.Errorf("create root: %w", models.ErrPermissionDenied)
	}
	if !tree.ValidPath(path) {
		return fmt.Errorf("create %q: %w", path, models.ErrInvalid)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		parent := tree.ParentID(path)
		if k, ok, err := kindOf(ctx, tx, parent, true); err != nil {
			return err
		} else if !ok || k != models.KindFolder {
			return fmt.Errorf("create %q: parent: %w", path, models.ErrNotFound)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO workspace_nodes (path, parent, name, is_folder) VALUES ($1, $2, $3, $4)`,
			path, parent, tree.Name(path), kind == models.KindFolder)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return fmt.Errorf("create %q: %w", path, models.ErrConflict)
			}
			return fmt.Errorf("insert %q: %w", path, err)
		}
		return nil
	})
}

// RenameFile renames a file.
func (s *Store) RenameFile(ctx context.Context, oldPath, newPath string) error {
	return s.relocate(ctx, oldPath, newPath, models.KindFile)
}

// RenameFolder renames a folder and rewrites every path below it.
func (s *Store) RenameFolder(ctx context.Context, oldPath, newPath string) error {
	return s.relocate(ctx, oldPath, newPath, models.KindFolder)
}

// MoveFile moves a file to another folder.
func (s *Store) MoveFile(ctx context.Context, oldPath, newPath string) error {
	return s.relocate(ctx, oldPath, newPath, models.KindFile)
}

// MoveFolder moves a folder to another folder.
func (s *Store) MoveFolder(ctx context.Context, oldPath, newPath string) error {
	return s.relocate(ctx, oldPath, newPath, models.KindFolder)
}

// relocate rewrites the path prefix of a node and its descendants in one
// statement. A node that changes parent gets a new sequence number so it
// lists after its new siblings.
func (s *Store) relocate(ctx context.Context, oldPath, newPath string, kind models.Kind) error {
	if tree.IsRoot(oldPath) || tree.IsRoot(newPath) {
		return fmt.Errorf("rename root: %w", models.ErrPermissionDenied)
	}
	if !tree.ValidPath(newPath) {
		return fmt.Errorf("rename to %q: %w", newPath, models.ErrInvalid)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if k, ok, err := kindOf(ctx, tx, oldPath, true); err != nil {
			return err
		} else if !ok || k != kind {
			return fmt.Errorf("rename %q: %w", oldPath, models.ErrNotFound)
		}
		if oldPath == newPath {
			return nil
		}
		if tree.IsWithin(newPath, oldPath) {
			return fmt.Errorf("move %q into itself: %w", oldPath, models.ErrInvalid)
		}
		if _, ok, err := kindOf(ctx, tx, newPath, false); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("rename to %q: %w", newPath, models.ErrConflict)
		}
		newParent := tree.ParentID(newPath)
		if k, ok, err := kindOf(ctx, tx, newParent, true); err != nil {
			return err
		} else if !ok || k != models.KindFolder {
			return fmt.Errorf("rename to %q: parent: %w", newPath, models.ErrNotFound)
		}

		reparented := newParent != tree.ParentID(oldPath)
		_, err := tx.ExecContext(ctx, `
			UPDATE workspace_nodes SET
				path = $2 || substr(path, length($1) + 1),
				parent = CASE WHEN path = $1 THEN $3 ELSE $2 || substr(parent, length($1) + 1) END,
				name = CASE WHEN path = $1 THEN $4 ELSE name END,
				seq = CASE WHEN path = $1 AND $6 THEN nextval(pg_get_serial_sequence('workspace_nodes', 'seq')) ELSE seq END,
				updated_at = NOW()
			WHERE path = $1 OR path LIKE $5`,
			oldPath, newPath, newParent, tree.Name(newPath), likeDescendants(oldPath), reparented)
		if err != nil {
			return fmt.Errorf("rename %q -> %q: %w", oldPath, newPath, err)
		}
		return nil
	})
}

// DeleteFile removes a file row.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	return s.delete(ctx, path, models.KindFile)
}

// DeleteFolder removes a folder row and every row below it.
func (s *Store) DeleteFolder(ctx context.Context, path string) error {
	return s.delete(ctx, path, models.KindFolder)
}

func (s *Store) delete(ctx context.Context, path string, kind models.Kind) error {
	if tree.IsRoot(path) {
		return fmt.Errorf("delete root: %w", models.ErrPermissionDenied)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if k, ok, err := kindOf(ctx, tx, path, true); err != nil {
			return err
		} else if !ok || k != kind {
			return fmt.Errorf("delete %q: %w", path, models.ErrNotFound)
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM workspace_nodes WHERE path = $1 OR path LIKE $2`,
			path, likeDescendants(path))
		if err != nil {
			return fmt.Errorf("delete %q: %w", path, err)
		}
		return nil
	})
}

// GetFileContent reads the content of a file row.
func (s *Store) GetFileContent(ctx context.Context, path string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM workspace_nodes WHERE path = $1 AND NOT is_folder`, path).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("read %q: %w", path, models.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return content, nil
}

// SaveFileContent updates the content of an existing file row.
func (s *Store) SaveFileContent(ctx context.Context, path, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workspace_nodes SET content = $2, updated_at = NOW() WHERE path = $1 AND NOT is_folder`,
		path, text)
	if err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	if n == 0 {
		return fmt.Errorf("write %q: %w", path, models.ErrNotFound)
	}
	return nil
}
