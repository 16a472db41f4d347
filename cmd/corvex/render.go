package main

import (
	"github.com/jedib0t/go-pretty/v6/list"

	"github.com/corvex/corvex/internal/models"
)

// rootLabel is how the workspace root is displayed.
const rootLabel = "corvex/data"

// renderView draws the tree as a connected list. With all set, collapsed
// folders are drawn open.
func renderView(root *models.ViewNode, all bool) string {
	l := list.NewWriter()
	l.SetStyle(list.StyleConnectedRounded)
	l.AppendItem(label(root))

	var walk func(n *models.ViewNode)
	walk = func(n *models.ViewNode) {
		if len(n.Children) == 0 || !(all || n.Expanded) {
			return
		}
		l.Indent()
		for _, child := range n.Children {
			l.AppendItem(label(child))
			walk(child)
		}
		l.UnIndent()
	}
	walk(root)

	return l.Render()
}

func label(n *models.ViewNode) string {
	var s string
	switch {
	case n.ID == "":
		s = rootLabel
	case n.Name == "":
		s = "<new " + kindWord(n) + " " + n.ID + ">"
	case n.IsLeaf:
		s = n.Name
	default:
		s = n.Name + "/"
		if !n.Expanded && len(n.Children) > 0 {
			s += " …"
		}
	}
	if n.Pending && n.Name != "" {
		s += " (saving)"
	}
	if n.Selected {
		s = "> " + s
	}
	return s
}

func kindWord(n *models.ViewNode) string {
	if n.IsLeaf {
		return "file"
	}
	return "folder"
}
