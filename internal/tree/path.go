package tree

import "strings"

// Separator separates path segments in node ids.
const Separator = "/"

// ParentPath returns id up to and including its last separator, or "" for a
// root-level id.
func ParentPath(id string) string {
	i := strings.LastIndex(id, Separator)
	if i < 0 {
		return ""
	}
	return id[:i+1]
}

// ParentID returns the id of the folder containing id. Root-level nodes
// belong to the root folder "".
func ParentID(id string) string {
	return strings.TrimSuffix(ParentPath(id), Separator)
}

// Name returns the leaf segment of id.
func Name(id string) string {
	i := strings.LastIndex(id, Separator)
	if i < 0 {
		return id
	}
	return id[i+1:]
}

// Join appends name to parentPath with exactly one separator between them.
// parentPath may be a folder id ("A") or a parent path ("A/").
func Join(parentPath, name string) string {
	if parentPath == "" {
		return name
	}
	return strings.TrimSuffix(parentPath, Separator) + Separator + name
}

// IsRoot reports whether id addresses the workspace root.
func IsRoot(id string) bool {
	return id == ""
}

// IsWithin reports whether id is prefix or a descendant of prefix.
func IsWithin(id, prefix string) bool {
	if prefix == "" {
		return true
	}
	return id == prefix || strings.HasPrefix(id, prefix+Separator)
}

// Rebase replaces the oldPrefix of id with newPrefix. id must be within oldPrefix.
func Rebase(id, oldPrefix, newPrefix string) string {
	if id == oldPrefix {
		return newPrefix
	}
	return Join(newPrefix, strings.TrimPrefix(id, oldPrefix+Separator))
}

// ValidName reports whether name can be used as a single path segment.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.Contains(name, Separator) && !strings.ContainsRune(name, 0)
}

// PendingPrefix marks ids of nodes that exist only locally. Real ids are
// relative to the root and never start with a separator, so the two can
// never collide.
const PendingPrefix = Separator + "~pending" + Separator

// IsPendingID reports whether id belongs to a local placeholder.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingPrefix)
}

// ValidPath reports whether id is a non-root path made only of valid names.
func ValidPath(id string) bool {
	if IsRoot(id) || IsPendingID(id) {
		return false
	}
	for _, segment := range strings.Split(id, Separator) {
		if !ValidName(segment) {
			return false
		}
	}
	return true
}
