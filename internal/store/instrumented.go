package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/corvex/corvex/internal/logging"
	"github.com/corvex/corvex/internal/metrics"
	"github.com/corvex/corvex/internal/models"
)

// Instrumented wraps a Store, recording the duration and outcome of every
// call and logging failures at debug level.
type Instrumented struct {
	next Store
}

// Instrument wraps s.
func Instrument(s Store) *Instrumented {
	return &Instrumented{next: s}
}

func (i *Instrumented) record(ctx context.Context, op, path string, start time.Time, err error) {
	metrics.RecordStoreOperation(i.next.Type(), op, time.Since(start), err == nil)
	if err != nil {
		logging.WithContext(ctx).Debug("store operation failed",
			zap.String("backend", i.next.Type()),
			zap.String("op", op),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}

func (i *Instrumented) ListAll(ctx context.Context) (*models.Folder, error) {
	start := time.Now()
	f, err := i.next.ListAll(ctx)
	i.record(ctx, "list_all", "", start, err)
	return f, err
}

func (i *Instrumented) CreateFile(ctx context.Context, path string) error {
	start := time.Now()
	err := i.next.CreateFile(ctx, path)
	i.record(ctx, "create_file", path, start, err)
	return err
}

func (i *Instrumented) CreateFolder(ctx context.Context, path string) error {
	start := time.Now()
	err := i.next.CreateFolder(ctx, path)
	i.record(ctx, "create_folder", path, start, err)
	return err
}

func (i *Instrumented) RenameFile(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	err := i.next.RenameFile(ctx, oldPath, newPath)
	i.record(ctx, "rename_file", oldPath, start, err)
	return err
}

func (i *Instrumented) RenameFolder(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	err := i.next.RenameFolder(ctx, oldPath, newPath)
	i.record(ctx, "rename_folder", oldPath, start, err)
	return err
}

func (i *Instrumented) MoveFile(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	err := i.next.MoveFile(ctx, oldPath, newPath)
	i.record(ctx, "move_file", oldPath, start, err)
	return err
}

func (i *Instrumented) MoveFolder(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	err := i.next.MoveFolder(ctx, oldPath, newPath)
	i.record(ctx, "move_folder", oldPath, start, err)
	return err
}

func (i *Instrumented) DeleteFile(ctx context.Context, path string) error {
	start := time.Now()
	err := i.next.DeleteFile(ctx, path)
	i.record(ctx, "delete_file", path, start, err)
	return err
}

func (i *Instrumented) DeleteFolder(ctx context.Context, path string) error {
	start := time.Now()
	err := i.next.DeleteFolder(ctx, path)
	i.record(ctx, "delete_folder", path, start, err)
	return err
}

func (i *Instrumented) GetFileContent(ctx context.Context, path string) (string, error) {
	start := time.Now()
	text, err := i.next.GetFileContent(ctx, path)
	i.record(ctx, "get_content", path, start, err)
	return text, err
}

func (i *Instrumented) SaveFileContent(ctx context.Context, path, text string) error {
	start := time.Now()
	err := i.next.SaveFileContent(ctx, path, text)
	i.record(ctx, "save_content", path, start, err)
	return err
}

func (i *Instrumented) Type() string { return i.next.Type() }

func (i *Instrumented) Close() error { return i.next.Close() }
