// Package pending tracks nodes created locally that the command service has
// not confirmed yet.
package pending

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/corvex/corvex/internal/models"
	"github.com/corvex/corvex/internal/tree"
)

// State is the lifecycle stage of a pending node.
type State int

const (
	// Unsubmitted placeholders are still waiting for a name.
	Unsubmitted State = iota
	// Submitted placeholders have a final id and a create call in flight.
	Submitted
)

// Entry is a locally created node awaiting a name and a confirming create.
type Entry struct {
	TempID   string
	Kind     models.Kind
	ParentID string
	Index    int
	State    State
	FinalID  string
}

type slot struct {
	parentID string
	index    int
}

// Registry holds the unresolved pending nodes of one session. It is not
// safe for concurrent use.
type Registry struct {
	entries map[string]*Entry
	slots   map[slot]string
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		slots:   make(map[slot]string),
	}
}

// BeginCreate allocates a temp id for a new node under parentID at index.
// Only one unresolved entry may occupy a slot at a time.
func (r *Registry) BeginCreate(parentID string, kind models.Kind, index int) (string, error) {
	s := slot{parentID: parentID, index: index}
	if holder, ok := r.slots[s]; ok {
		return "", fmt.Errorf("slot %q[%d] held by %s: %w", parentID, index, holder, models.ErrConflict)
	}
	tempID := tree.PendingPrefix + ulid.Make().String()
	r.entries[tempID] = &Entry{
		TempID:   tempID,
		Kind:     kind,
		ParentID: parentID,
		Index:    index,
	}
	r.slots[s] = tempID
	r.order = append(r.order, tempID)
	return tempID, nil
}

// Commit fixes the final name of a pending node and returns its final id.
// The caller issues the create call and calls Resolve once it settles.
func (r *Registry) Commit(tempID, finalName string) (string, error) {
	e, ok := r.entries[tempID]
	if !ok {
		return "", fmt.Errorf("pending %s: %w", tempID, models.ErrNotFound)
	}
	if e.State == Submitted {
		return "", fmt.Errorf("pending %s already submitted: %w", tempID, models.ErrConflict)
	}
	if !tree.ValidName(finalName) {
		return "", fmt.Errorf("name %q: %w", finalName, models.ErrInvalid)
	}
	e.FinalID = tree.Join(e.ParentID, finalName)
	e.State = Submitted
	return e.FinalID, nil
}

// Abort drops an entry without any remote call.
func (r *Registry) Abort(tempID string) error {
	if _, ok := r.entries[tempID]; !ok {
		return fmt.Errorf("pending %s: %w", tempID, models.ErrNotFound)
	}
	r.remove(tempID)
	return nil
}

// Resolve clears an entry whose create call has settled, either way.
func (r *Registry) Resolve(tempID string) {
	r.remove(tempID)
}

func (r *Registry) remove(tempID string) {
	e, ok := r.entries[tempID]
	if !ok {
		return
	}
	delete(r.entries, tempID)
	delete(r.slots, slot{parentID: e.ParentID, index: e.Index})
	for i, id := range r.order {
		if id == tempID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get returns a copy of the entry for tempID.
func (r *Registry) Get(tempID string) (Entry, bool) {
	e, ok := r.entries[tempID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Unsubmitted returns the entries still waiting for a name, oldest first.
func (r *Registry) Unsubmitted() []Entry {
	var out []Entry
	for _, id := range r.order {
		if e := r.entries[id]; e.State == Unsubmitted {
			out = append(out, *e)
		}
	}
	return out
}

// Len returns the number of unresolved entries.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Rebase moves entries parented under oldPrefix to newPrefix after a folder
// rename or move. Submitted entries have their final id moved too.
func (r *Registry) Rebase(oldPrefix, newPrefix string) {
	for _, e := range r.entries {
		if !tree.IsWithin(e.ParentID, oldPrefix) {
			continue
		}
		delete(r.slots, slot{parentID: e.ParentID, index: e.Index})
		e.ParentID = tree.Rebase(e.ParentID, oldPrefix, newPrefix)
		if e.FinalID != "" {
			e.FinalID = tree.Join(e.ParentID, tree.Name(e.FinalID))
		}
		r.slots[slot{parentID: e.ParentID, index: e.Index}] = e.TempID
	}
}

// All returns every unresolved entry, oldest first.
func (r *Registry) All() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	return out
}

// InFlight reports whether finalID belongs to a submitted entry whose create
// call has not settled.
func (r *Registry) InFlight(finalID string) bool {
	for _, e := range r.entries {
		if e.State == Submitted && e.FinalID == finalID {
			return true
		}
	}
	return false
}
