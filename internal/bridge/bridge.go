// Package bridge adapts a volume.Session to hanwen/go-fuse/v2's pathfs
// interface: POSIX errno translation, file-handle bookkeeping, and a
// token-bucket rate limiter over mutating callbacks, grounded on the
// teacher's per-IP rate limiter
// (infrastructure/api/src/middleware/logic/ratelimit.go) applied here per
// mounted volume instead of per client address.
package bridge

import (
	"context"
	"errors"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nas-ai/sqlitefs/internal/tree"
	"github.com/nas-ai/sqlitefs/internal/volume"
)

// FileSystem adapts a *volume.Session to pathfs.FileSystem. Unimplemented
// callbacks fall through to pathfs.NewDefaultFileSystem()'s ENOSYS stubs.
type FileSystem struct {
	pathfs.FileSystem

	session *volume.Session
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// New builds a FileSystem over session. mutationsPerSec/burst size the
// token bucket guarding Create/Write/Mkdir/Rmdir/Unlink/Rename/Chmod/
// Chown/Utimens/Truncate/SetXAttr/RemoveXAttr. Read-only callbacks are never
// throttled.
func New(session *volume.Session, mutationsPerSec rate.Limit, burst int, logger *logrus.Logger) *FileSystem {
	return &FileSystem{
		FileSystem: pathfs.NewDefaultFileSystem(),
		session:    session,
		limiter:    rate.NewLimiter(mutationsPerSec, burst),
		logger:     logger,
	}
}

func (fs *FileSystem) throttle() fuse.Status {
	if fs.limiter.Allow() {
		return fuse.OK
	}
	return fuse.Status(syscall.EAGAIN)
}

// errnoFor maps the volume package's sentinel errors, and the tree
// package's typed errors that some session operations return unwrapped, to
// FUSE status codes.
func errnoFor(err error) fuse.Status {
	var notExist *tree.ErrNotExist
	var notDir *tree.ErrNotDirectory
	var denied *tree.ErrPermission
	switch {
	case err == nil:
		return fuse.OK
	case errors.Is(err, volume.ErrNotFound), errors.As(err, &notExist):
		return fuse.Status(syscall.ENOENT)
	case errors.Is(err, volume.ErrNotEmpty):
		return fuse.Status(syscall.ENOTEMPTY)
	case errors.Is(err, volume.ErrIsDirectory):
		return fuse.Status(syscall.EISDIR)
	case errors.Is(err, volume.ErrNotDirectory), errors.As(err, &notDir):
		return fuse.Status(syscall.ENOTDIR)
	case errors.Is(err, volume.ErrPermission), errors.As(err, &denied):
		return fuse.Status(syscall.EPERM)
	default:
		return fuse.Status(syscall.EIO)
	}
}

func statToAttr(st tree.Stat) *fuse.Attr {
	return &fuse.Attr{
		Mode:  st.Mode,
		Owner: fuse.Owner{Uid: st.Uid, Gid: st.Gid},
		Nlink: st.Nlink,
		Size:  uint64(st.Size),
		Atime: uint64(st.Atime.Unix()),
		Mtime: uint64(st.Mtime.Unix()),
		Ctime: uint64(st.Ctime.Unix()),
	}
}

func asPath(name string) string {
	return "/" + name
}

// GetAttr returns path's stat data.
func (fs *FileSystem) GetAttr(name string, _ *fuse.Context) (*fuse.Attr, fuse.Status) {
	st, err := fs.session.GetAttr(asPath(name))
	if err != nil {
		return nil, errnoFor(err)
	}
	return statToAttr(st), fuse.OK
}

// Access checks mode against path's owner/group/other permission bits.
func (fs *FileSystem) Access(name string, mode uint32, _ *fuse.Context) fuse.Status {
	return errnoFor(fs.session.Access(asPath(name), int(mode)))
}

// Chmod sets path's mode bits.
func (fs *FileSystem) Chmod(name string, mode uint32, _ *fuse.Context) fuse.Status {
	if status := fs.throttle(); status != fuse.OK {
		return status
	}
	return errnoFor(fs.session.Chmod(asPath(name), mode))
}

// Chown sets path's owning uid/gid.
func (fs *FileSystem) Chown(name string, uid, gid uint32, _ *fuse.Context) fuse.Status {
	if status := fs.throttle(); status != fuse.OK {
		return status
	}
	return errnoFor(fs.session.Chown(asPath(name), uid, gid))
}

// Utimens sets path's access and modification times.
func (fs *FileSystem) Utimens(name string, atime, mtime *time.Time, _ *fuse.Context) fuse.Status {
	if status := fs.throttle(); status != fuse.OK {
		return status
	}
	var a, m time.Time
	if atime != nil {
		a = *atime
	}
	if mtime != nil {
		m = *mtime
	}
	return errnoFor(fs.session.Utimens(asPath(name), a, m))
}

// Truncate resizes path to size bytes.
func (fs *FileSystem) Truncate(name string, size uint64, _ *fuse.Context) fuse.Status {
	if status := fs.throttle(); status != fuse.OK {
		return status
	}
	return errnoFor(fs.session.Truncate(context.Background(), asPath(name), int64(size)))
}

// Mkdir creates a directory at path.
func (fs *FileSystem) Mkdir(name string, mode uint32, _ *fuse.Context) fuse.Status {
	if status := fs.throttle(); status != fuse.OK {
		return status
	}
	fs.logger.WithField("path", name).Debug("bridge: mkdir")
	return errnoFor(fs.session.Mkdir(asPath(name), mode))
}

// Rmdir removes an empty directory at path.
func (fs *FileSystem) Rmdir(name string, _ *fuse.Context) fuse.Status {
	if status := fs.throttle(); status != fuse.OK {
		return status
	}
	fs.logger.WithField("path", name).Debug("bridge: rmdir")
	return errnoFor(fs.session.Rmdir(asPath(name)))
}

// Unlink removes a regular file at path.
func (fs *FileSystem) Unlink(name string, _ *fuse.Context) fuse.Status {
	if status := fs.throttle(); status != fuse.OK {
		return status
	}
	fs.logger.WithField("path", name).Debug("bridge: unlink")
	return errnoFor(fs.session.Unlink(context.Background(), asPath(name)))
}

// Rename moves oldName to newName.
func (fs *FileSystem) Rename(oldName, newName string, _ *fuse.Context) fuse.Status {
	if status := fs.throttle(); status != fuse.OK {
		return status
	}
	fs.logger.WithFields(logrus.Fields{"old": oldName, "new": newName}).Debug("bridge: rename")
	return errnoFor(fs.session.Rename(context.Background(), asPath(oldName), asPath(newName)))
}

// GetXAttr returns a named extended attribute.
func (fs *FileSystem) GetXAttr(name, attribute string, _ *fuse.Context) ([]byte, fuse.Status) {
	v, err := fs.session.GetXAttr(asPath(name), attribute)
	if err != nil {
		return nil, errnoFor(err)
	}
	if v == nil {
		return nil, fuse.Status(syscall.ENODATA)
	}
	return v, fuse.OK
}

// SetXAttr sets a named extended attribute.
func (fs *FileSystem) SetXAttr(name, attribute string, data []byte, _ int, _ *fuse.Context) fuse.Status {
	if status := fs.throttle(); status != fuse.OK {
		return status
	}
	return errnoFor(fs.session.SetXAttr(asPath(name), attribute, data))
}

// RemoveXAttr removes a named extended attribute.
func (fs *FileSystem) RemoveXAttr(name, attr string, _ *fuse.Context) fuse.Status {
	if status := fs.throttle(); status != fuse.OK {
		return status
	}
	return errnoFor(fs.session.RemoveXAttr(asPath(name), attr))
}

// OpenDir lists path's children.
func (fs *FileSystem) OpenDir(name string, _ *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	names, err := fs.session.ReadDir(asPath(name))
	if err != nil {
		return nil, errnoFor(err)
	}
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, fuse.DirEntry{Name: n})
	}
	return entries, fuse.OK
}

// Open returns a file handle bound to path for subsequent Read/Write/Flush.
func (fs *FileSystem) Open(name string, _ uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	if _, err := fs.session.GetAttr(asPath(name)); err != nil {
		return nil, errnoFor(err)
	}
	return newHandle(fs, asPath(name)), fuse.OK
}

// Create makes a new regular file at path and returns an open handle to it.
func (fs *FileSystem) Create(name string, _ uint32, mode uint32, _ *fuse.Context) (nodefs.File, fuse.Status) {
	if status := fs.throttle(); status != fuse.OK {
		return nil, status
	}
	if err := fs.session.Create(asPath(name), mode); err != nil {
		return nil, errnoFor(err)
	}
	return newHandle(fs, asPath(name)), fuse.OK
}

// StatFs reports the volume's capacity counters.
func (fs *FileSystem) StatFs(name string) *fuse.StatfsOut {
	st := fs.session.StatFS()
	return &fuse.StatfsOut{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   uint32(st.Bsize),
		NameLen: st.Namemax,
		Frsize:  uint32(st.Frsize),
	}
}
