package workspace

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/pending"
	"github.com/corvex/corvex/internal/selection"
	"github.com/corvex/corvex/internal/tree"
)

// Config holds optional engine settings.
type Config struct {
	Logger *zap.Logger

	// OnChange is called after every local change to the tree, selection or
	// expansion state. It runs without the engine lock held.
	OnChange func()

	// OnError is called with every error an intent reports.
	OnError func(error)
}

// Engine owns the workspace tree, the pending registry and the selection,
// and accepts intents from a presentation layer. All methods are safe for
// concurrent use; the lock is never held across a remote call.
type Engine struct {
	svc    Service
	log    *zap.Logger
	config Config

	mu      sync.Mutex
	model   *tree.Model
	pending *pending.Registry
	sel     *selection.Controller

	// fetchSeq numbers listings in the order they were requested;
	// appliedSeq is the newest one applied.
	fetchSeq   uint64
	appliedSeq uint64
}

// New creates an engine over svc with an empty tree. Call Load to fetch the
// initial listing.
func New(svc Service, cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		svc:     svc,
		log:     log.Named("workspace"),
		config:  cfg,
		model:   tree.NewModel(),
		pending: pending.NewRegistry(),
		sel:     selection.New(),
	}
}

func (e *Engine) notify() {
	if e.config.OnChange != nil {
		e.config.OnChange()
	}
}

// fail reports err to OnError and returns it.
func (e *Engine) fail(err *Error) error {
	e.log.Warn("operation failed",
		zap.String("op", err.Op),
		zap.String("id", err.ID),
		zap.String("kind", models.KindName(err.Kind)),
		zap.Error(err.Err),
	)
	if e.config.OnError != nil {
		e.config.OnError(err)
	}
	return err
}

// Load fetches the initial listing.
func (e *Engine) Load(ctx context.Context) error {
	return e.Refresh(ctx)
}

// Refresh reconciles the tree with the remote store on demand.
func (e *Engine) Refresh(ctx context.Context) error {
	if err := e.reconcile(ctx, ""); err != nil {
		return e.fail(err)
	}
	return nil
}

// View returns a read-only copy of the tree annotated with selection,
// expansion and pending state.
func (e *Engine) View() *models.ViewNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	selected, has := e.sel.Selected()
	var build func(n *models.Node) *models.ViewNode
	build = func(n *models.Node) *models.ViewNode {
		v := &models.ViewNode{
			ID:       n.ID,
			Name:     n.Name,
			IsLeaf:   !n.IsFolder(),
			Pending:  tree.IsPendingID(n.ID) || e.pending.InFlight(n.ID),
			Selected: has && selected == n.ID,
			Expanded: n.IsFolder() && (tree.IsRoot(n.ID) || e.sel.IsExpanded(n.ID)),
		}
		if len(n.Children) > 0 {
			v.Children = make([]*models.ViewNode, len(n.Children))
			for i, child := range n.Children {
				v.Children[i] = build(child)
			}
		}
		return v
	}
	return build(e.model.Root())
}

// Snapshot returns a deep copy of the current tree.
func (e *Engine) Snapshot() *models.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Snapshot()
}

// Selected returns the current selection.
func (e *Engine) Selected() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sel.Selected()
}

// SelectNode makes id the current selection.
func (e *Engine) SelectNode(id string) error {
	e.mu.Lock()
	if !e.model.Contains(id) {
		e.mu.Unlock()
		return e.fail(kindError("select", id, models.ErrNotFound))
	}
	e.sel.Select(id)
	e.mu.Unlock()
	e.notify()
	return nil
}

// ToggleExpanded flips the expansion of a folder and returns the new state.
func (e *Engine) ToggleExpanded(id string) (bool, error) {
	e.mu.Lock()
	n := e.model.Find(id)
	if n == nil || !n.IsFolder() {
		e.mu.Unlock()
		return false, e.fail(kindError("expand", id, models.ErrNotFound))
	}
	expanded := e.sel.Toggle(id)
	e.mu.Unlock()
	e.notify()
	return expanded, nil
}

// BeginCreate splices an unnamed placeholder into parentID at index and
// returns its temporary id. A negative or past-the-end index appends; all
// appends to one folder share a single slot.
func (e *Engine) BeginCreate(parentID string, kind models.Kind, index int) (string, error) {
	e.mu.Lock()
	parent := e.model.Find(parentID)
	if parent == nil || !parent.IsFolder() || tree.IsPendingID(parentID) {
		e.mu.Unlock()
		return "", e.fail(kindError("create", parentID, models.ErrNotFound))
	}
	if index < 0 || index >= len(parent.Children) {
		index = -1
	}
	tempID, err := e.pending.BeginCreate(parentID, kind, index)
	if err != nil {
		e.mu.Unlock()
		return "", e.fail(newError("create", parentID, err))
	}
	if _, err := e.model.InsertAt(parentID, index, &models.Node{ID: tempID, Kind: kind}); err != nil {
		e.pending.Abort(tempID)
		e.mu.Unlock()
		return "", e.fail(newError("create", parentID, err))
	}
	if !tree.IsRoot(parentID) {
		e.sel.Expand(parentID)
	}
	e.mu.Unlock()
	e.notify()
	return tempID, nil
}

// CancelEdit drops an unsubmitted placeholder without any remote call.
func (e *Engine) CancelEdit(tempID string) error {
	e.mu.Lock()
	entry, ok := e.pending.Get(tempID)
	if !ok {
		e.mu.Unlock()
		return e.fail(kindError("cancel", tempID, models.ErrNotFound))
	}
	if entry.State != pending.Unsubmitted {
		e.mu.Unlock()
		return e.fail(kindError("cancel", tempID, models.ErrConflict))
	}
	e.pending.Abort(tempID)
	if _, err := e.model.RemoveByID(tempID); err != nil {
		e.log.Debug("cancelled placeholder already gone", zap.String("temp_id", tempID), zap.Error(err))
	}
	e.mu.Unlock()
	e.notify()
	return nil
}

// SubmitName names a placeholder, creating it remotely, or renames an
// existing node. An empty name cancels the edit silently.
func (e *Engine) SubmitName(ctx context.Context, id, name string) error {
	if tree.IsPendingID(id) {
		return e.SubmitPending(ctx, id, name)
	}
	return e.Rename(ctx, id, name)
}

// RequestDelete deletes a node.
func (e *Engine) RequestDelete(ctx context.Context, id string) error {
	if tree.IsPendingID(id) {
		return e.CancelEdit(id)
	}
	return e.Delete(ctx, id)
}

// RequestMove moves a node under newParentID.
func (e *Engine) RequestMove(ctx context.Context, id, newParentID string) error {
	return e.Move(ctx, id, newParentID)
}

// OpenFile returns the content of a file for the editor.
func (e *Engine) OpenFile(ctx context.Context, id string) (string, error) {
	if err := e.checkFile("open", id); err != nil {
		return "", err
	}
	text, err := e.svc.GetFileContent(ctx, id)
	if err != nil {
		return "", e.fail(newError("open", id, err))
	}
	return text, nil
}

// SaveFile stores the content of a file.
func (e *Engine) SaveFile(ctx context.Context, id, text string) error {
	if err := e.checkFile("save", id); err != nil {
		return err
	}
	if err := e.svc.SaveFileContent(ctx, id, text); err != nil {
		return e.fail(newError("save", id, err))
	}
	return nil
}

func (e *Engine) checkFile(op, id string) error {
	e.mu.Lock()
	n := e.model.Find(id)
	e.mu.Unlock()
	if n == nil || tree.IsPendingID(id) {
		return e.fail(kindError(op, id, models.ErrNotFound))
	}
	if n.IsFolder() {
		return e.fail(kindError(op, id, models.ErrInvalid))
	}
	return nil
}
