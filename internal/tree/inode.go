// Package tree implements the in-memory directory tree a volume session
// walks on every path-based operation: a root Inode with string-keyed
// children, reserved per-inode metadata (stat, extended attributes, a write
// journal for regular files), and an iterative path engine in place of the
// original implementation's recursive creeper/sweeper/peeper/seeper/lister
// family.
package tree

import "time"

// Stat is the fixed HEAD metadata every Inode carries, replacing the
// original implementation's dynamic 0xFF-keyed dict with the discriminated
// struct the REDESIGN FLAGS call for.
type Stat struct {
	Mode  uint32
	Uid   uint32
	Gid   uint32
	Nlink uint32
	Size  int64
	Ctime time.Time
	Atime time.Time
	Mtime time.Time
}

// VolumeStat mirrors statvfs(2), replacing the original's 0xF8-keyed dict.
type VolumeStat struct {
	Flags   uint32
	Bsize   uint64
	Frsize  uint64
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Favail  uint64
	Namemax uint32
}

// Inode is one node in the tree: a directory (Children non-nil) or a
// regular file (Journal non-nil), never both.
type Inode struct {
	Stat     Stat
	XAttr    map[string][]byte
	Children map[string]*Inode
	Journal  map[int64][]byte
	BlobID   string
}

// NewDirectory builds an empty directory Inode owned by uid/gid.
func NewDirectory(uid, gid uint32, now time.Time) *Inode {
	return &Inode{
		Stat: Stat{
			Mode:  ModeDirectory | ModeOwnerAll | ModeGroupRead | ModeGroupWrite | ModeOtherRead,
			Uid:   uid,
			Gid:   gid,
			Nlink: 1,
			Size:  4096,
			Ctime: now,
			Atime: now,
			Mtime: now,
		},
		XAttr:    map[string][]byte{},
		Children: map[string]*Inode{},
	}
}

// NewFile builds an empty regular-file Inode owned by uid/gid.
func NewFile(uid, gid uint32, mode uint32, now time.Time) *Inode {
	return &Inode{
		Stat: Stat{
			Mode:  ModeRegular | mode,
			Uid:   uid,
			Gid:   gid,
			Nlink: 1,
			Size:  0,
			Ctime: now,
			Atime: now,
			Mtime: now,
		},
		XAttr:   map[string][]byte{},
		Journal: map[int64][]byte{},
	}
}

// Tree is the in-memory hierarchy rooted at a synthetic "/" directory.
// Callers (internal/volume) serialize access; Tree itself is not
// concurrency-safe, matching the single-writer model spec.md describes.
type Tree struct {
	Root *Inode
}

// New builds a fresh volume tree with the original implementation's
// pre-created entries: .Trash, .Trash-1000, and .hidden at the root.
func New(uid, gid uint32, now time.Time) *Tree {
	root := NewDirectory(uid, gid, now)
	root.Children[".Trash"] = NewDirectory(uid, gid, now)
	root.Children[".Trash-1000"] = NewDirectory(uid, gid, now)
	root.Children[".hidden"] = NewDirectory(uid, gid, now)
	return &Tree{Root: root}
}
