package bridge

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/nas-ai/sqlitefs/internal/volume"
)

func newTestSession(t *testing.T) *volume.Session {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "sqlitefs-bridge-test")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	session, err := volume.Open(context.Background(), filepath.Join(tempDir, "test.db"), "vol1", []byte("hunter2"), 10*1024*1024, logger)
	if err != nil {
		t.Fatalf("volume.Open failed: %v", err)
	}
	t.Cleanup(func() { session.Close(context.Background()) })
	return session
}

func TestNewBuildsFileSystem(t *testing.T) {
	session := newTestSession(t)
	logger := logrus.New()

	fs := New(session, rate.Limit(50), 100, logger)
	if fs == nil {
		t.Fatal("New returned nil")
	}
	if fs.session != session {
		t.Error("FileSystem should hold the session it was built with")
	}
}

func TestErrnoForMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want fuse.Status
	}{
		{nil, fuse.OK},
		{volume.ErrNotFound, fuse.Status(syscall.ENOENT)},
		{volume.ErrNotEmpty, fuse.Status(syscall.ENOTEMPTY)},
		{volume.ErrIsDirectory, fuse.Status(syscall.EISDIR)},
		{volume.ErrNotDirectory, fuse.Status(syscall.ENOTDIR)},
		{volume.ErrPermission, fuse.Status(syscall.EPERM)},
	}
	for _, c := range cases {
		if got := errnoFor(c.err); got != c.want {
			t.Errorf("errnoFor(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestThrottleBlocksAfterBurstExhausted(t *testing.T) {
	session := newTestSession(t)
	logger := logrus.New()
	fs := New(session, rate.Limit(0), 1, logger)

	if status := fs.throttle(); status != fuse.OK {
		t.Fatalf("expected first call within burst to succeed, got %v", status)
	}
	if status := fs.throttle(); status != fuse.Status(syscall.EAGAIN) {
		t.Errorf("expected throttled call to return EAGAIN, got %v", status)
	}
}

func TestGetAttrAndAccessRoundtrip(t *testing.T) {
	session := newTestSession(t)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	fs := New(session, rate.Limit(50), 100, logger)

	if status := fs.Mkdir("dir", 0o755, nil); status != fuse.OK {
		t.Fatalf("Mkdir failed: %v", status)
	}

	attr, status := fs.GetAttr("dir", nil)
	if status != fuse.OK {
		t.Fatalf("GetAttr failed: %v", status)
	}
	if attr == nil {
		t.Fatal("GetAttr returned nil attr on success")
	}

	if status := fs.Access("dir", uint32(4), nil); status != fuse.OK {
		t.Errorf("expected read access to succeed, got %v", status)
	}
}

func TestOpenDirListsChildren(t *testing.T) {
	session := newTestSession(t)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	fs := New(session, rate.Limit(50), 100, logger)

	entries, status := fs.OpenDir("", nil)
	if status != fuse.OK {
		t.Fatalf("OpenDir failed: %v", status)
	}
	if len(entries) == 0 {
		t.Error("expected root to have seeded entries")
	}
}
