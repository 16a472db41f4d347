package workspace

import (
	"context"

	"go.uber.org/zap"

	"github.com/corvex/corvex/internal/metrics"
	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/tree"
)

const (
	opCreate = "create"
	opRename = "rename"
	opMove   = "move"
	opDelete = "delete"
)

// Create inserts a named node under parentID and creates it remotely.
// It returns the new node's id.
func (e *Engine) Create(ctx context.Context, parentID string, kind models.Kind, name string) (string, error) {
	id := tree.Join(parentID, name)
	if !tree.ValidName(name) {
		return "", e.fail(kindError(opCreate, id, models.ErrInvalid))
	}
	if tree.IsPendingID(parentID) {
		return "", e.fail(kindError(opCreate, parentID, models.ErrNotFound))
	}

	e.mu.Lock()
	node := &models.Node{ID: id, Name: name, Kind: kind}
	if kind == models.KindFolder {
		node.Children = []*models.Node{}
	}
	if _, err := e.model.InsertAt(parentID, -1, node); err != nil {
		e.mu.Unlock()
		return "", e.fail(newError(opCreate, id, err))
	}
	gen := e.model.Generation()
	e.mu.Unlock()
	e.notify()

	if err := create(ctx, e.svc, kind, id); err != nil {
		metrics.RecordMutation(opCreate, false)
		e.rollback(ctx, opCreate, id, gen, func() error {
			_, err := e.model.RemoveByID(id)
			return err
		})
		return "", e.fail(newError(opCreate, id, err))
	}
	metrics.RecordMutation(opCreate, true)
	return id, e.settle(ctx, opCreate, id, id)
}

// SubmitPending gives a placeholder its final name and creates it remotely.
// An empty name cancels the placeholder without a remote call. A name that
// is invalid or taken leaves the placeholder editable.
func (e *Engine) SubmitPending(ctx context.Context, tempID, name string) error {
	if name == "" {
		return e.CancelEdit(tempID)
	}

	e.mu.Lock()
	entry, ok := e.pending.Get(tempID)
	if !ok {
		e.mu.Unlock()
		return e.fail(kindError(opCreate, tempID, models.ErrNotFound))
	}
	if candidate := tree.Join(entry.ParentID, name); tree.ValidName(name) && e.model.Contains(candidate) {
		e.mu.Unlock()
		return e.fail(kindError(opCreate, candidate, models.ErrConflict))
	}
	finalID, err := e.pending.Commit(tempID, name)
	if err != nil {
		e.mu.Unlock()
		return e.fail(newError(opCreate, tree.Join(entry.ParentID, name), err))
	}
	if err := e.model.SetName(tempID, finalID); err != nil {
		// The placeholder was dropped by a reconciliation.
		e.pending.Resolve(tempID)
		e.mu.Unlock()
		return e.fail(newError(opCreate, finalID, err))
	}
	gen := e.model.Generation()
	e.mu.Unlock()
	e.notify()

	err = create(ctx, e.svc, entry.Kind, finalID)

	e.mu.Lock()
	// A folder rename or move may have rebased the entry meanwhile.
	if current, ok := e.pending.Get(tempID); ok {
		finalID = current.FinalID
	}
	e.pending.Resolve(tempID)
	e.mu.Unlock()

	if err != nil {
		metrics.RecordMutation(opCreate, false)
		e.rollback(ctx, opCreate, finalID, gen, func() error {
			_, err := e.model.RemoveByID(finalID)
			return err
		})
		return e.fail(newError(opCreate, finalID, err))
	}
	metrics.RecordMutation(opCreate, true)
	return e.settle(ctx, opCreate, finalID, finalID)
}

// Rename gives id a new leaf name within the same parent. An empty or
// unchanged name is a no-op.
func (e *Engine) Rename(ctx context.Context, id, newName string) error {
	if tree.IsRoot(id) {
		return e.fail(kindError(opRename, id, models.ErrPermissionDenied))
	}
	if newName == "" || newName == tree.Name(id) {
		return nil
	}
	if tree.IsPendingID(id) || !tree.ValidName(newName) {
		return e.fail(kindError(opRename, id, models.ErrInvalid))
	}
	return e.relocate(ctx, opRename, id, tree.Join(tree.ParentID(id), newName))
}

// Move reparents id under newParentID, keeping its name. Moving a node to
// the folder it is already in is a no-op.
func (e *Engine) Move(ctx context.Context, id, newParentID string) error {
	if tree.IsRoot(id) {
		return e.fail(kindError(opMove, id, models.ErrPermissionDenied))
	}
	if tree.IsPendingID(id) {
		return e.fail(kindError(opMove, id, models.ErrInvalid))
	}
	if tree.IsPendingID(newParentID) {
		return e.fail(kindError(opMove, newParentID, models.ErrNotFound))
	}
	newID := tree.Join(newParentID, tree.Name(id))
	if newID == id {
		return nil
	}
	return e.relocate(ctx, opMove, id, newID)
}

// relocate runs the rename and move protocol: rewrite the subtree ids
// locally, ask the service, and restore the original id and position on
// failure.
func (e *Engine) relocate(ctx context.Context, op, oldID, newID string) error {
	e.mu.Lock()
	n := e.model.Find(oldID)
	if n == nil {
		e.mu.Unlock()
		return e.fail(kindError(op, oldID, models.ErrNotFound))
	}
	kind := n.Kind
	following := e.model.Following(oldID)
	if err := e.model.RenamePath(oldID, newID); err != nil {
		e.mu.Unlock()
		return e.fail(newError(op, oldID, err))
	}
	e.pending.Rebase(oldID, newID)
	e.sel.Rewrite(oldID, newID)
	gen := e.model.Generation()
	e.mu.Unlock()
	e.notify()

	var err error
	if op == opMove {
		err = move(ctx, e.svc, kind, oldID, newID)
	} else {
		err = rename(ctx, e.svc, kind, oldID, newID)
	}
	if err != nil {
		metrics.RecordMutation(op, false)
		e.rollback(ctx, op, oldID, gen, func() error {
			if err := e.model.RenamePathBefore(newID, oldID, following); err != nil {
				return err
			}
			e.pending.Rebase(newID, oldID)
			e.sel.Rewrite(newID, oldID)
			return nil
		})
		return e.fail(newError(op, oldID, err))
	}
	metrics.RecordMutation(op, true)

	advanceTo := ""
	if op == opRename {
		advanceTo = newID
	}
	return e.settle(ctx, op, newID, advanceTo)
}

// Delete removes id and its subtree. On failure the subtree is put back
// where it was.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if tree.IsRoot(id) {
		return e.fail(kindError(opDelete, id, models.ErrPermissionDenied))
	}

	e.mu.Lock()
	removed, err := e.model.RemoveByID(id)
	if err != nil {
		e.mu.Unlock()
		return e.fail(newError(opDelete, id, err))
	}
	gen := e.model.Generation()
	e.mu.Unlock()
	e.notify()

	if err := remove(ctx, e.svc, removed.Node.Kind, id); err != nil {
		metrics.RecordMutation(opDelete, false)
		e.rollback(ctx, opDelete, id, gen, func() error {
			_, err := e.model.Restore(removed)
			return err
		})
		return e.fail(newError(opDelete, id, err))
	}
	metrics.RecordMutation(opDelete, true)
	return e.settle(ctx, opDelete, id, "")
}

// rollback undoes the local patch of a failed op. The patch is only
// meaningful against the generation it was applied to: if a reconciliation
// has replaced the tree since, or undo cannot be applied, the tree is
// reconciled instead.
func (e *Engine) rollback(ctx context.Context, op, id string, gen uint64, undo func() error) {
	e.mu.Lock()
	if current := e.model.Generation(); current != gen {
		e.mu.Unlock()
		metrics.RecordRollback(op, "stale")
		e.log.Debug("discarding stale rollback",
			zap.String("op", op),
			zap.String("id", id),
			zap.Uint64("patched_generation", gen),
			zap.Uint64("current_generation", current),
		)
		e.resync(ctx, op)
		return
	}
	err := undo()
	e.mu.Unlock()
	if err != nil {
		metrics.RecordRollback(op, "reconciled")
		e.log.Debug("rollback not applicable, reconciling",
			zap.String("op", op),
			zap.String("id", id),
			zap.Error(err),
		)
		e.resync(ctx, op)
		return
	}
	metrics.RecordRollback(op, "reverted")
	e.notify()
}

// resync reconciles after a failed op. It must finish even if the
// caller's context is already canceled.
func (e *Engine) resync(ctx context.Context, op string) {
	if err := e.reconcile(context.WithoutCancel(ctx), ""); err != nil {
		e.log.Warn("reconciliation after failed operation failed",
			zap.String("op", op),
			zap.Error(err),
		)
	}
}

// settle reconciles after a confirmed mutation.
func (e *Engine) settle(ctx context.Context, op, id, advanceTo string) error {
	e.log.Debug("mutation confirmed", zap.String("op", op), zap.String("id", id))
	if err := e.reconcile(ctx, advanceTo); err != nil {
		return e.fail(err)
	}
	return nil
}
