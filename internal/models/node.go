// Package models contains the workspace data types shared by the engine,
// the command-service client and the store backends.
package models

// Kind distinguishes files from folders.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
)

func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "file"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	*k = ParseKind(string(b))
	return nil
}

// ParseKind parses "file" or "folder". Anything else is a file.
func ParseKind(s string) Kind {
	if s == "folder" || s == "dir" {
		return KindFolder
	}
	return KindFile
}

// Node is a file or folder in the in-memory workspace tree.
// ID is the slash-separated path from the workspace root; the root folder has ID "".
type Node struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Kind     Kind    `json:"kind"`
	Children []*Node `json:"children,omitempty"`
}

// IsFolder reports whether the node can have children.
func (n *Node) IsFolder() bool {
	return n.Kind == KindFolder
}

// Clone returns a deep copy of the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{ID: n.ID, Name: n.Name, Kind: n.Kind}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// FileEntry is a file inside a Folder listing.
type FileEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Folder is the listing shape returned by the command service:
// files and subfolders are reported separately, each in store order.
type Folder struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Files      []FileEntry `json:"files"`
	Subfolders []*Folder   `json:"subfolders"`
}

// FolderToNode converts a listing into a tree. Files come first, then
// subfolders, matching how the listing is displayed.
func FolderToNode(f *Folder) *Node {
	if f == nil {
		return &Node{Kind: KindFolder, Children: []*Node{}}
	}
	n := &Node{
		ID:       f.ID,
		Name:     f.Name,
		Kind:     KindFolder,
		Children: make([]*Node, 0, len(f.Files)+len(f.Subfolders)),
	}
	for _, file := range f.Files {
		n.Children = append(n.Children, &Node{ID: file.ID, Name: file.Name, Kind: KindFile})
	}
	for _, sub := range f.Subfolders {
		n.Children = append(n.Children, FolderToNode(sub))
	}
	return n
}

// NodeToFolder is the inverse of FolderToNode. File and folder order within
// each group is preserved; interleaving between the groups is not.
func NodeToFolder(n *Node) *Folder {
	f := &Folder{ID: n.ID, Name: n.Name, Files: []FileEntry{}, Subfolders: []*Folder{}}
	for _, child := range n.Children {
		if child.IsFolder() {
			f.Subfolders = append(f.Subfolders, NodeToFolder(child))
		} else {
			f.Files = append(f.Files, FileEntry{ID: child.ID, Name: child.Name})
		}
	}
	return f
}

// ViewNode is the read-only tree handed to presentation layers.
type ViewNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	IsLeaf   bool        `json:"is_leaf"`
	Pending  bool        `json:"pending,omitempty"`
	Selected bool        `json:"selected,omitempty"`
	Expanded bool        `json:"expanded,omitempty"`
	Children []*ViewNode `json:"children,omitempty"`
}
