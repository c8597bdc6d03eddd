package tree

import "time"

// Lookup resolves path to its Inode, the iterative equivalent of the
// original implementation's creeper.
func (t *Tree) Lookup(path string) (*Inode, error) {
	return walk(t.Root, splitPath(path))
}

// Exists reports whether path resolves to an Inode, the equivalent of the
// original implementation's peeper. Unlike Lookup it never itself returns
// an error for a missing leaf; a non-directory intermediate component still
// propagates as an error, matching peeper's own behavior.
func (t *Tree) Exists(path string) (bool, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return true, nil
	}
	_, err := walk(t.Root, parts)
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*ErrNotExist); ok {
		return false, nil
	}
	return false, err
}

// List returns the child names of the directory at path, the equivalent of
// the original implementation's lister.
func (t *Tree) List(path string) ([]string, error) {
	node, err := t.Lookup(path)
	if err != nil {
		return nil, err
	}
	if !IsDir(node.Stat.Mode) {
		return nil, &ErrNotDirectory{Path: path}
	}
	names := make([]string, 0, len(node.Children))
	for name := range node.Children {
		names = append(names, name)
	}
	return names, nil
}

// Insert attaches node as name under the directory at parentPath, creating
// any missing intermediate directories along the way (owned by uid/gid),
// the equivalent of the original implementation's seeper. It returns
// ErrPermission if any traversed or target directory's owner-write bit is
// clear.
func (t *Tree) Insert(parentPath, name string, node *Inode, uid, gid uint32, now time.Time) error {
	parts := splitPath(parentPath)
	cur := t.Root
	for i, part := range parts {
		cur.Stat.Atime = now
		if !CanWrite(cur.Stat.Mode) {
			return &ErrPermission{Path: joinParts(parts[:i])}
		}
		child, ok := cur.Children[part]
		if !ok {
			child = NewDirectory(uid, gid, now)
			cur.Children[part] = child
		} else if !IsDir(child.Stat.Mode) {
			return &ErrNotDirectory{Path: joinParts(parts[:i+1])}
		}
		cur.Stat.Mtime = now
		cur = child
	}
	cur.Stat.Atime = now
	if !CanWrite(cur.Stat.Mode) {
		return &ErrPermission{Path: parentPath}
	}
	cur.Children[name] = node
	cur.Stat.Mtime = now
	return nil
}

// Remove detaches name from the directory at parentPath and returns the
// removed Inode, the equivalent of the original implementation's sweeper,
// with the directory-bit check corrected to test ModeDirectory at every
// traversed level instead of the original's 0x80 (owner-execute) mistake.
func (t *Tree) Remove(parentPath, name string) (*Inode, error) {
	parts := splitPath(parentPath)
	cur := t.Root
	for i, part := range parts {
		child, ok := cur.Children[part]
		if !ok {
			return nil, &ErrNotExist{Path: joinParts(parts[:i+1])}
		}
		if !IsDir(child.Stat.Mode) {
			return nil, &ErrNotDirectory{Path: joinParts(parts[:i+1])}
		}
		cur = child
	}
	if !CanWrite(cur.Stat.Mode) {
		return nil, &ErrPermission{Path: parentPath}
	}
	removed, ok := cur.Children[name]
	if !ok {
		return nil, &ErrNotExist{Path: joinParts(append(append([]string{}, parts...), name))}
	}
	delete(cur.Children, name)
	cur.Stat.Mtime = time.Now()
	return removed, nil
}

func joinParts(parts []string) string {
	if len(parts) == 0 {
		return "/"
	}
	out := ""
	for _, p := range parts {
		out += "/" + p
	}
	return out
}
