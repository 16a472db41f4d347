package tree

import (
	"fmt"

	"github.com/corvex/corvex/internal/models"
)

// OpError reports a structural operation that could not be applied.
type OpError struct {
	Op   string
	ID   string
	Kind error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.ID, e.Kind)
}

func (e *OpError) Unwrap() error {
	return e.Kind
}

// Removed describes where a node sat before RemoveByID took it out.
// Following holds the ids of the siblings after it, nearest first.
type Removed struct {
	Node      *models.Node
	ParentID  string
	Index     int
	Following []string
}

// Model is the in-memory workspace tree. It is not safe for concurrent use;
// the owner serializes access.
type Model struct {
	root       *models.Node
	generation uint64
}

// NewModel returns a model holding an empty root folder.
func NewModel() *Model {
	return &Model{root: &models.Node{Kind: models.KindFolder, Children: []*models.Node{}}}
}

// Root returns the live root. Callers must treat it as read-only.
func (m *Model) Root() *models.Node {
	return m.root
}

// Snapshot returns a deep copy of the tree.
func (m *Model) Snapshot() *models.Node {
	return m.root.Clone()
}

// Generation counts ReplaceAll calls. Patches derived from one generation
// are meaningless against another.
func (m *Model) Generation() uint64 {
	return m.generation
}

// Find returns the node with the given id, or nil.
func (m *Model) Find(id string) *models.Node {
	return FindByID(m.root, id)
}

// Contains reports whether id is in the tree.
func (m *Model) Contains(id string) bool {
	return m.Find(id) != nil
}

// IDs returns every id currently in the tree, the root included.
func (m *Model) IDs() map[string]bool {
	return Flatten(m.root)
}

// Len returns the number of nodes below the root.
func (m *Model) Len() int {
	return CountNodes(m.root) - 1
}

// Position returns the parent id and index of id.
func (m *Model) Position(id string) (string, int, error) {
	parent, idx := findParent(m.root, id)
	if parent == nil {
		return "", -1, &OpError{Op: "position", ID: id, Kind: models.ErrNotFound}
	}
	return parent.ID, idx, nil
}

// InsertAt places node under parentID at index (clamped to the child
// count) and returns the index used.
func (m *Model) InsertAt(parentID string, index int, node *models.Node) (int, error) {
	parent := m.Find(parentID)
	if parent == nil || !parent.IsFolder() {
		return -1, &OpError{Op: "insert", ID: parentID, Kind: models.ErrNotFound}
	}
	if node.Name != "" && childNamed(parent, node.Name) != nil {
		return -1, &OpError{Op: "insert", ID: node.ID, Kind: models.ErrConflict}
	}
	if index < 0 || index > len(parent.Children) {
		index = len(parent.Children)
	}
	parent.Children = append(parent.Children, nil)
	copy(parent.Children[index+1:], parent.Children[index:])
	parent.Children[index] = node
	return index, nil
}

// RemoveByID detaches the node with the given id together with its subtree.
func (m *Model) RemoveByID(id string) (Removed, error) {
	if IsRoot(id) {
		return Removed{}, &OpError{Op: "remove", ID: id, Kind: models.ErrPermissionDenied}
	}
	parent, idx := findParent(m.root, id)
	if parent == nil {
		return Removed{}, &OpError{Op: "remove", ID: id, Kind: models.ErrNotFound}
	}
	node := parent.Children[idx]
	following := siblingIDs(parent.Children[idx+1:])
	parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
	return Removed{Node: node, ParentID: parent.ID, Index: idx, Following: following}, nil
}

// Following returns the ids of the siblings after id, nearest first.
func (m *Model) Following(id string) []string {
	parent, idx := findParent(m.root, id)
	if parent == nil {
		return nil
	}
	return siblingIDs(parent.Children[idx+1:])
}

// Restore puts a removed node back in front of the nearest of its former
// following siblings that is still in the parent. With none left it goes
// last.
func (m *Model) Restore(r Removed) (int, error) {
	parent := m.Find(r.ParentID)
	if parent == nil {
		return -1, &OpError{Op: "restore", ID: r.ParentID, Kind: models.ErrNotFound}
	}
	return m.InsertAt(r.ParentID, anchorIndex(parent, r.Following), r.Node)
}

func siblingIDs(nodes []*models.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

// anchorIndex returns the index of the first of ids found among parent's
// children, or -1.
func anchorIndex(parent *models.Node, ids []string) int {
	for _, id := range ids {
		for i, child := range parent.Children {
			if child.ID == id {
				return i
			}
		}
	}
	return -1
}

// RenamePath rewrites oldID and every descendant id to live under newID.
// The node keeps its position when the parent is unchanged and is appended
// to the new parent otherwise.
func (m *Model) RenamePath(oldID, newID string) error {
	return m.RenamePathAt(oldID, newID, -1)
}

// RenamePathAt is RenamePath with an explicit target index. A negative
// index keeps the current position, or appends when the parent changes.
func (m *Model) RenamePathAt(oldID, newID string, index int) error {
	return m.renamePath(oldID, newID, func(*models.Node) int { return index })
}

// RenamePathBefore is RenamePath that places the node in front of the
// nearest of following still in the new parent, like Restore.
func (m *Model) RenamePathBefore(oldID, newID string, following []string) error {
	return m.renamePath(oldID, newID, func(parent *models.Node) int {
		return anchorIndex(parent, following)
	})
}

// renamePath detaches the node, rewrites its subtree ids and inserts it
// into the new parent at the index target picks once the node is out.
func (m *Model) renamePath(oldID, newID string, target func(parent *models.Node) int) error {
	if IsRoot(oldID) || IsRoot(newID) {
		return &OpError{Op: "rename", ID: oldID, Kind: models.ErrPermissionDenied}
	}
	oldParent, idx := findParent(m.root, oldID)
	if oldParent == nil {
		return &OpError{Op: "rename", ID: oldID, Kind: models.ErrNotFound}
	}
	node := oldParent.Children[idx]
	if IsWithin(newID, oldID) && newID != oldID {
		return &OpError{Op: "rename", ID: newID, Kind: models.ErrInvalid}
	}
	if !ValidName(Name(newID)) {
		return &OpError{Op: "rename", ID: newID, Kind: models.ErrInvalid}
	}
	newParent := m.Find(ParentID(newID))
	if newParent == nil || !newParent.IsFolder() {
		return &OpError{Op: "rename", ID: ParentID(newID), Kind: models.ErrNotFound}
	}
	if existing := childNamed(newParent, Name(newID)); existing != nil && existing != node {
		return &OpError{Op: "rename", ID: newID, Kind: models.ErrConflict}
	}

	oldParent.Children = append(oldParent.Children[:idx], oldParent.Children[idx+1:]...)
	rewriteIDs(node, oldID, newID)
	index := target(newParent)
	if index < 0 && newParent == oldParent {
		index = idx
	}
	if index < 0 || index > len(newParent.Children) {
		index = len(newParent.Children)
	}
	newParent.Children = append(newParent.Children, nil)
	copy(newParent.Children[index+1:], newParent.Children[index:])
	newParent.Children[index] = node
	return nil
}

// SetName renames a placeholder in place, giving it its final id. It is used
// when a pending node is submitted and is not a path rewrite.
func (m *Model) SetName(tempID, finalID string) error {
	parent, idx := findParent(m.root, tempID)
	if parent == nil {
		return &OpError{Op: "name", ID: tempID, Kind: models.ErrNotFound}
	}
	if existing := childNamed(parent, Name(finalID)); existing != nil {
		return &OpError{Op: "name", ID: finalID, Kind: models.ErrConflict}
	}
	node := parent.Children[idx]
	node.ID = finalID
	node.Name = Name(finalID)
	return nil
}

// ReplaceAll swaps in a new tree wholesale. The snapshot is owned by the
// model afterwards.
func (m *Model) ReplaceAll(snapshot *models.Node) {
	if snapshot == nil {
		snapshot = &models.Node{Kind: models.KindFolder, Children: []*models.Node{}}
	}
	m.root = snapshot
	m.generation++
}
