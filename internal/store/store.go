// Package store defines the workspace store interface served by the command
// service, and selects a backend from configuration.
package store

import (
	"context"

	"github.com/corvex/corvex/internal/models"
)

// Store persists the workspace tree. Paths are slash-separated and relative
// to the workspace root; the root itself ("") can be neither renamed nor
// deleted. Errors wrap the models sentinels:
//
//   - create fails with ErrConflict if the path exists and ErrNotFound if the
//     parent does not
//   - rename and move fail with ErrNotFound if the source is missing and
//     ErrConflict if the destination is taken
//   - delete fails with ErrNotFound if the path is missing; deleting a folder
//     removes its subtree
type Store interface {
	ListAll(ctx context.Context) (*models.Folder, error)

	CreateFile(ctx context.Context, path string) error
	CreateFolder(ctx context.Context, path string) error

	RenameFile(ctx context.Context, oldPath, newPath string) error
	RenameFolder(ctx context.Context, oldPath, newPath string) error

	MoveFile(ctx context.Context, oldPath, newPath string) error
	MoveFolder(ctx context.Context, oldPath, newPath string) error

	DeleteFile(ctx context.Context, path string) error
	DeleteFolder(ctx context.Context, path string) error

	GetFileContent(ctx context.Context, path string) (string, error)
	SaveFileContent(ctx context.Context, path, text string) error

	// Type returns the backend type identifier ("memory", "local", "s3", "postgres").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
