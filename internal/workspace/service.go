// Package workspace is the synchronization engine between the in-memory
// workspace tree and the remote command service. Mutations are applied to
// the local tree optimistically, sent to the service, and then either
// reconciled against a fresh listing or rolled back.
package workspace

import (
	"context"

	"github.com/corvex/corvex/internal/models"
)

// Service is the remote command service. Paths are node ids. Errors wrap
// the sentinels in the models package; anything else is treated as
// models.ErrRemoteUnavailable.
type Service interface {
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
}

func create(ctx context.Context, svc Service, kind models.Kind, path string) error {
	if kind == models.KindFolder {
		return svc.CreateFolder(ctx, path)
	}
	return svc.CreateFile(ctx, path)
}

func rename(ctx context.Context, svc Service, kind models.Kind, oldPath, newPath string) error {
	if kind == models.KindFolder {
		return svc.RenameFolder(ctx, oldPath, newPath)
	}
	return svc.RenameFile(ctx, oldPath, newPath)
}

func move(ctx context.Context, svc Service, kind models.Kind, oldPath, newPath string) error {
	if kind == models.KindFolder {
		return svc.MoveFolder(ctx, oldPath, newPath)
	}
	return svc.MoveFile(ctx, oldPath, newPath)
}

func remove(ctx context.Context, svc Service, kind models.Kind, path string) error {
	if kind == models.KindFolder {
		return svc.DeleteFolder(ctx, path)
	}
	return svc.DeleteFile(ctx, path)
}
