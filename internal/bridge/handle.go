package bridge

import (
	"context"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
)

// handle is the open-file object bound to one path, returned from Open and
// Create. Read/Write/Flush/Fsync all delegate straight through to the
// session, which serializes them under its own mutex. A handle carries no
// state of its own beyond the path it was opened for.
type handle struct {
	nodefs.File

	fs   *FileSystem
	path string
}

func newHandle(fs *FileSystem, path string) nodefs.File {
	return &handle{File: nodefs.NewDefaultFile(), fs: fs, path: path}
}

// Read returns up to len(dest) bytes starting at off.
func (h *handle) Read(dest []byte, off int64) (fuse.ReadResult, fuse.Status) {
	data, err := h.fs.session.Read(context.Background(), h.path, len(dest), off)
	if err != nil {
		return nil, errnoFor(err)
	}
	return fuse.ReadResultData(data), fuse.OK
}

// Write journals data at off.
func (h *handle) Write(data []byte, off int64) (uint32, fuse.Status) {
	if status := h.fs.throttle(); status != fuse.OK {
		return 0, status
	}
	n, err := h.fs.session.Write(context.Background(), h.path, data, off)
	if err != nil {
		return 0, errnoFor(err)
	}
	return uint32(n), fuse.OK
}

// Truncate resizes the file this handle refers to.
func (h *handle) Truncate(size uint64) fuse.Status {
	if status := h.fs.throttle(); status != fuse.OK {
		return status
	}
	return errnoFor(h.fs.session.Truncate(context.Background(), h.path, int64(size)))
}

// GetAttr returns the file's current stat data.
func (h *handle) GetAttr(out *fuse.Attr) fuse.Status {
	st, err := h.fs.session.GetAttr(h.path)
	if err != nil {
		return errnoFor(err)
	}
	*out = *statToAttr(st)
	return fuse.OK
}

// Flush merges the file's unflushed journal into its committed blob.
func (h *handle) Flush() fuse.Status {
	return errnoFor(h.fs.session.Flush(context.Background(), h.path))
}

// Fsync persists the whole volume, the strongest durability guarantee this
// filesystem offers per file handle.
func (h *handle) Fsync(flags int) fuse.Status {
	if err := h.fs.session.Flush(context.Background(), h.path); err != nil {
		return errnoFor(err)
	}
	return errnoFor(h.fs.session.Fsync(context.Background()))
}

// Release is a no-op: handle carries no resources beyond its path string.
func (h *handle) Release() {}
