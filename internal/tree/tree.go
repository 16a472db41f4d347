// Package tree holds the in-memory workspace tree and the pure path
// functions that derive node identity from paths.
package tree

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/corvex/corvex/internal/models"
)

// FindByID resolves an id in the tree (recursive).
func FindByID(root *models.Node, id string) *models.Node {
	if root == nil {
		return nil
	}
	if root.ID == id {
		return root
	}
	pending := IsPendingID(id)
	for _, child := range root.Children {
		if !pending && !IsWithin(id, child.ID) {
			continue
		}
		if found := FindByID(child, id); found != nil {
			return found
		}
	}
	return nil
}

// findParent returns the folder holding id and the child's index in it.
func findParent(root *models.Node, id string) (*models.Node, int) {
	if root == nil {
		return nil, -1
	}
	for i, child := range root.Children {
		if child.ID == id {
			return root, i
		}
		if child.IsFolder() {
			if p, idx := findParent(child, id); p != nil {
				return p, idx
			}
		}
	}
	return nil, -1
}

// CountNodes counts all nodes in a tree.
func CountNodes(root *models.Node) int {
	if root == nil {
		return 0
	}
	count := 1
	for _, child := range root.Children {
		count += CountNodes(child)
	}
	return count
}

// childNamed returns the child of parent called name, if any.
func childNamed(parent *models.Node, name string) *models.Node {
	for _, child := range parent.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// Flatten returns the set of ids in the tree.
func Flatten(root *models.Node) map[string]bool {
	result := make(map[string]bool)
	if root == nil {
		return result
	}
	flattenRecursive(root, result)
	return result
}

func flattenRecursive(node *models.Node, result map[string]bool) {
	result[node.ID] = true
	for _, child := range node.Children {
		flattenRecursive(child, result)
	}
}

// rewriteIDs rewrites the ids of node and all of its descendants from the
// oldPrefix to newPrefix. Placeholders keep their temporary ids.
func rewriteIDs(node *models.Node, oldPrefix, newPrefix string) {
	if IsPendingID(node.ID) {
		return
	}
	node.ID = Rebase(node.ID, oldPrefix, newPrefix)
	node.Name = Name(node.ID)
	for _, child := range node.Children {
		rewriteIDs(child, oldPrefix, newPrefix)
	}
}

// Render draws the tree as indented text, one node per line. Folders end
// with a separator.
func Render(root *models.Node) string {
	var sb strings.Builder
	if root == nil {
		return ""
	}
	for _, child := range root.Children {
		renderRecursive(&sb, child, 0)
	}
	return sb.String()
}

func renderRecursive(sb *strings.Builder, node *models.Node, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(node.Name)
	if node.IsFolder() {
		sb.WriteString(Separator)
	}
	sb.WriteString("\n")
	for _, child := range node.Children {
		renderRecursive(sb, child, depth+1)
	}
}

// Changes returns a line diff between two rendered trees. Added lines are
// prefixed with "+ ", removed lines with "- ".
func Changes(before, after *models.Node) []string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(Render(before), Render(after))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []string
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			out = append(out, prefix+line)
		}
	}
	return out
}
