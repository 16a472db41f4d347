// Package selection tracks which node is active and which folders are
// expanded, independently of what is rendered.
package selection

import "github.com/corvex/corvex/internal/tree"

// Controller owns the current selection and the expanded-folder set.
// It is not safe for concurrent use.
type Controller struct {
	selected string
	has      bool
	expanded map[string]bool
}

// New creates a controller with nothing selected.
func New() *Controller {
	return &Controller{expanded: make(map[string]bool)}
}

// Select makes id the current selection.
func (c *Controller) Select(id string) {
	c.selected = id
	c.has = true
}

// Selected returns the current selection.
func (c *Controller) Selected() (string, bool) {
	return c.selected, c.has
}

// Clear drops the selection.
func (c *Controller) Clear() {
	c.selected = ""
	c.has = false
}

// OnReconciled re-validates the selection against a fresh snapshot.
// A justCreatedID present in the snapshot wins; otherwise a selection that
// no longer exists is cleared.
func (c *Controller) OnReconciled(ids map[string]bool, justCreatedID string) {
	if justCreatedID != "" && ids[justCreatedID] {
		c.Select(justCreatedID)
	} else if c.has && !ids[c.selected] {
		c.Clear()
	}
	c.Prune(ids)
}

// Rewrite follows a rename or move of oldID to newID: a selection at or
// below oldID is carried to the new location, as are expanded folders.
// It reports whether the selection moved.
func (c *Controller) Rewrite(oldID, newID string) bool {
	moved := false
	if c.has && tree.IsWithin(c.selected, oldID) {
		c.selected = tree.Rebase(c.selected, oldID, newID)
		moved = true
	}
	var rebased []string
	for id := range c.expanded {
		if tree.IsWithin(id, oldID) {
			delete(c.expanded, id)
			rebased = append(rebased, tree.Rebase(id, oldID, newID))
		}
	}
	for _, id := range rebased {
		c.expanded[id] = true
	}
	return moved
}

// Expand marks a folder as expanded.
func (c *Controller) Expand(id string) {
	c.expanded[id] = true
}

// Collapse marks a folder as collapsed.
func (c *Controller) Collapse(id string) {
	delete(c.expanded, id)
}

// Toggle flips the expansion of a folder and returns the new state.
func (c *Controller) Toggle(id string) bool {
	if c.expanded[id] {
		delete(c.expanded, id)
		return false
	}
	c.expanded[id] = true
	return true
}

// IsExpanded reports whether a folder is expanded.
func (c *Controller) IsExpanded(id string) bool {
	return c.expanded[id]
}

// Prune forgets expanded folders that are not in ids.
func (c *Controller) Prune(ids map[string]bool) {
	for id := range c.expanded {
		if !ids[id] {
			delete(c.expanded, id)
		}
	}
}
