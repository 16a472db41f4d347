package workspace

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/corvex/corvex/internal/metrics"
	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/pending"
	"github.com/corvex/corvex/internal/tree"
)

// reconcile replaces the tree with a fresh listing. A listing requested
// before one that was already applied is discarded. When advanceTo is in
// the new tree it becomes the selection.
func (e *Engine) reconcile(ctx context.Context, advanceTo string) *Error {
	start := time.Now()

	e.mu.Lock()
	e.fetchSeq++
	seq := e.fetchSeq
	e.mu.Unlock()

	listing, err := e.svc.ListAll(ctx)
	if err != nil {
		metrics.RecordReconcile(time.Since(start), "error")
		return newError("reconcile", "", err)
	}
	snapshot := models.FolderToNode(listing)
	snapshot.ID, snapshot.Name = "", ""

	e.mu.Lock()
	if seq < e.appliedSeq {
		applied := e.appliedSeq
		e.mu.Unlock()
		metrics.RecordReconcile(time.Since(start), "stale")
		e.log.Debug("discarding out-of-order listing",
			zap.Uint64("seq", seq),
			zap.Uint64("applied_seq", applied),
		)
		return nil
	}
	e.appliedSeq = seq

	before := e.model.Root()
	e.model.ReplaceAll(snapshot)
	dropped := e.resplice()
	e.sel.OnReconciled(e.model.IDs(), advanceTo)
	size := e.model.Len()
	if e.log.Core().Enabled(zapcore.DebugLevel) {
		if changes := tree.Changes(before, e.model.Root()); len(changes) > 0 {
			e.log.Debug("tree reconciled",
				zap.Uint64("generation", e.model.Generation()),
				zap.Strings("changes", changes),
			)
		}
	}
	e.mu.Unlock()

	if dropped > 0 {
		e.log.Info("dropped placeholders whose folder disappeared", zap.Int("count", dropped))
	}
	metrics.SetTreeSize(size)
	metrics.RecordReconcile(time.Since(start), "applied")
	e.notify()
	return nil
}

// resplice puts pending nodes back into a freshly replaced tree. Unsubmitted
// placeholders whose folder is gone are aborted; submitted nodes stay until
// their create call settles. It returns the number of aborted placeholders.
func (e *Engine) resplice() int {
	dropped := 0
	for _, entry := range e.pending.All() {
		parent := e.model.Find(entry.ParentID)
		if parent == nil || !parent.IsFolder() {
			if entry.State == pending.Unsubmitted {
				e.pending.Abort(entry.TempID)
				dropped++
			}
			continue
		}
		node := &models.Node{ID: entry.TempID, Kind: entry.Kind}
		if entry.State == pending.Submitted {
			name := tree.Name(entry.FinalID)
			id := tree.Join(entry.ParentID, name)
			if e.model.Contains(id) {
				continue
			}
			node = &models.Node{ID: id, Name: name, Kind: entry.Kind}
		}
		if entry.Kind == models.KindFolder {
			node.Children = []*models.Node{}
		}
		if _, err := e.model.InsertAt(entry.ParentID, entry.Index, node); err != nil {
			e.log.Debug("pending node not re-spliced",
				zap.String("temp_id", entry.TempID),
				zap.String("id", node.ID),
				zap.Error(err),
			)
		}
	}
	return dropped
}

// Watch reconciles whenever a change notification arrives. Notifications
// that queue up while a reconciliation runs are coalesced into one. Watch
// returns when ctx is done or changes is closed.
func (e *Engine) Watch(ctx context.Context, changes <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			closed := drain(changes)
			if err := e.reconcile(ctx, ""); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.fail(err)
			}
			if closed {
				return nil
			}
		}
	}
}

// drain empties changes without blocking and reports whether it was closed.
func drain(changes <-chan struct{}) bool {
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return true
			}
		default:
			return false
		}
	}
}
