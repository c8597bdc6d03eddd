package tree

import (
	"fmt"
	"strings"
)

// ErrNotExist is returned when a path component is missing.
type ErrNotExist struct{ Path string }

func (e *ErrNotExist) Error() string { return fmt.Sprintf("tree: %q does not exist", e.Path) }

// ErrNotDirectory is returned when a non-terminal path component is not a
// directory.
type ErrNotDirectory struct{ Path string }

func (e *ErrNotDirectory) Error() string { return fmt.Sprintf("tree: %q is not a directory", e.Path) }

// ErrPermission is returned when a mutating operation hits a directory
// whose owner-write bit is clear.
type ErrPermission struct{ Path string }

func (e *ErrPermission) Error() string { return fmt.Sprintf("tree: %q: permission denied", e.Path) }

// splitPath turns an absolute path into its non-empty components. "/" and
// "" both split to an empty slice (the root itself).
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// walk iteratively descends parts starting at node, requiring every
// intermediate component to be a directory. It is the iterative
// replacement for the original implementation's recursive creeper, and
// checks ModeDirectory consistently (the original's sweeper checks the
// wrong bit, 0x80, for this same test).
func walk(node *Inode, parts []string) (*Inode, error) {
	cur := node
	for i, part := range parts {
		if cur.Children == nil {
			return nil, &ErrNotDirectory{Path: strings.Join(parts[:i], "/")}
		}
		child, ok := cur.Children[part]
		if !ok {
			return nil, &ErrNotExist{Path: strings.Join(parts[:i+1], "/")}
		}
		if i < len(parts)-1 && !IsDir(child.Stat.Mode) {
			return nil, &ErrNotDirectory{Path: strings.Join(parts[:i+1], "/")}
		}
		cur = child
	}
	return cur, nil
}

// walkParent walks to the directory containing the final path component,
// returning that parent directory and the leaf name.
func walkParent(node *Inode, parts []string) (*Inode, string, error) {
	if len(parts) == 0 {
		return nil, "", fmt.Errorf("tree: empty path has no parent")
	}
	parent, err := walk(node, parts[:len(parts)-1])
	if err != nil {
		return nil, "", err
	}
	if !IsDir(parent.Stat.Mode) {
		return nil, "", &ErrNotDirectory{Path: strings.Join(parts[:len(parts)-1], "/")}
	}
	return parent, parts[len(parts)-1], nil
}
