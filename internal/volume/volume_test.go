package volume

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nas-ai/sqlitefs/internal/tree"
	"github.com/sirupsen/logrus"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "sqlitefs-volume-test")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	session, err := Open(context.Background(), filepath.Join(tempDir, "test.db"), "vol1", []byte("hunter2"), 10*1024*1024, logger)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { session.Close(context.Background()) })
	return session
}

func TestOpenSeedsRootDirectory(t *testing.T) {
	s := newTestSession(t)
	names, err := s.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	want := map[string]bool{".": true, "..": true, ".Trash": true, ".Trash-1000": true, ".hidden": true}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected entry %q in fresh root", n)
		}
		delete(want, n)
	}
	if len(want) != 0 {
		t.Errorf("missing expected entries: %v", want)
	}
}

func TestCreateWriteReadRoundtrip(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/hello.txt", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	payload := []byte("hello, encrypted world")
	n, err := s.Write(ctx, "/hello.txt", payload, 0)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(payload) {
		t.Errorf("Write returned %d, want %d", n, len(payload))
	}

	got, err := s.Read(ctx, "/hello.txt", len(payload), 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Read mismatch: got %q, want %q", got, payload)
	}
}

func TestReadClipsToFileSize(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/f", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	payload := []byte("short")
	if _, err := s.Write(ctx, "/f", payload, 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := s.Read(ctx, "/f", 4096, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(got) != len(payload) {
		t.Errorf("Read should clip to file size %d, got %d bytes", len(payload), len(got))
	}
}

func TestReadOverlappingWritesUsesLatestData(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/f", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Write(ctx, "/f", []byte("AAAAAAAAAA"), 0); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if _, err := s.Write(ctx, "/f", []byte("BBB"), 3); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	got, err := s.Read(ctx, "/f", 10, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := []byte("AAABBBAAAA")
	if !bytes.Equal(got, want) {
		t.Errorf("overlapping read mismatch: got %q, want %q", got, want)
	}
}

func TestWriteGrowsSizeAndDebitsSpaceUnconditionally(t *testing.T) {
	// Regression: size growth and the free-space debit happen on every
	// write's len(data), even when the write falls entirely within the
	// file's existing bounds, matching the original implementation's
	// unconditional inode[0xFF]['st_size'] += len(data).
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/f", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Write(ctx, "/f", bytes.Repeat([]byte{'A'}, 1024), 0); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	before := s.StatFS()
	// 600 bytes at offset 100 lands entirely inside the 1024-byte file
	// already on disk: no growth under the old "grow only past the current
	// end" logic, but the debit must still happen unconditionally.
	overwrite := bytes.Repeat([]byte{'B'}, 600)
	if _, err := s.Write(ctx, "/f", overwrite, 100); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	after := s.StatFS()

	node, err := s.tree.Lookup("/f")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if node.Stat.Size != 1024+int64(len(overwrite)) {
		t.Errorf("expected size to grow unconditionally to %d, got %d", 1024+len(overwrite), node.Stat.Size)
	}
	if after.Bfree != before.Bfree-1 {
		t.Errorf("expected the in-bounds overwrite to debit 1 free block: before=%d after=%d", before.Bfree, after.Bfree)
	}
}

func TestReadDoesNotLeakByteJustPastWindow(t *testing.T) {
	// Regression for the corrected interval-overlap math: a journal chunk
	// starting exactly at the end of the requested window must not appear
	// in the result.
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/f", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Write(ctx, "/f", []byte("first5"), 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := s.Write(ctx, "/f", []byte("X"), 6); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := s.Read(ctx, "/f", 6, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if bytes.Contains(got, []byte("X")) {
		t.Errorf("read leaked a byte from past the requested window: %q", got)
	}
}

func TestFlushPersistsJournalToBlob(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/f", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	payload := []byte("flush me")
	if _, err := s.Write(ctx, "/f", payload, 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Flush(ctx, "/f"); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	node, err := s.tree.Lookup("/f")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(node.Journal) != 0 {
		t.Error("Flush should clear the in-memory journal")
	}

	got, err := s.Read(ctx, "/f", len(payload), 0)
	if err != nil {
		t.Fatalf("Read after Flush failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Read after Flush mismatch: got %q, want %q", got, payload)
	}
}

func TestTruncateShrinkThenReadStaysDecodable(t *testing.T) {
	// Regression: truncate must leave every journal entry DOPE-encoded so a
	// subsequent Read can still decode it.
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/f", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	payload := []byte("0123456789abcdef")
	if _, err := s.Write(ctx, "/f", payload, 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Flush(ctx, "/f"); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := s.Truncate(ctx, "/f", 8); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	got, err := s.Read(ctx, "/f", 8, 0)
	if err != nil {
		t.Fatalf("Read after Truncate failed: %v", err)
	}
	if !bytes.Equal(got, payload[:8]) {
		t.Errorf("Read after Truncate mismatch: got %q, want %q", got, payload[:8])
	}
}

func TestTruncateGrowZeroFills(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/f", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Write(ctx, "/f", []byte("abc"), 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Truncate(ctx, "/f", 6); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	got, err := s.Read(ctx, "/f", 6, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := []byte{'a', 'b', 'c', 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("grown truncate mismatch: got %v, want %v", got, want)
	}
}

func TestUnlinkRemovesFileAndCreditsSpace(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/f", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Write(ctx, "/f", bytes.Repeat([]byte{'z'}, 4096), 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Flush(ctx, "/f"); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	before := s.StatFS()
	if err := s.Unlink(ctx, "/f"); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	after := s.StatFS()
	if after.Bfree <= before.Bfree {
		t.Errorf("Unlink should credit free blocks: before=%d after=%d", before.Bfree, after.Bfree)
	}

	if _, err := s.tree.Lookup("/f"); err == nil {
		t.Error("expected /f to be gone after Unlink")
	}
}

func TestRenameMovesNodeAndCopiesBlob(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/old", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	payload := []byte("renamed data")
	if _, err := s.Write(ctx, "/old", payload, 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := s.Flush(ctx, "/old"); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if err := s.Rename(ctx, "/old", "/new"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}

	if _, err := s.tree.Lookup("/old"); err == nil {
		t.Error("expected /old to be gone after Rename")
	}
	if ok, err := s.blobs.Contains(ctx, blobKey("/new")); err != nil || !ok {
		t.Errorf("expected the flushed blob to be copied under /new's key, got ok=%v err=%v", ok, err)
	}
	got, err := s.Read(ctx, "/new", len(payload), 0)
	if err != nil {
		t.Fatalf("Read /new failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Read /new mismatch: got %q, want %q", got, payload)
	}
}

func TestRmdirRejectsNonEmptyDirectory(t *testing.T) {
	s := newTestSession(t)

	if err := s.Mkdir("/dir", 0o755); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := s.Create("/dir/file", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := s.Rmdir("/dir"); err != ErrNotEmpty {
		t.Fatalf("expected ErrNotEmpty, got %v", err)
	}
}

func TestAccessOwnerGroupOther(t *testing.T) {
	s := newTestSession(t)

	if err := s.Create("/f", 0o640); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// Owner (mount uid/gid) gets rw (mode>>6 = 6 -> read+write bits).
	if err := s.Access("/f", tree.AccessRead|tree.AccessWrite); err != nil {
		t.Errorf("expected owner read+write access, got %v", err)
	}
	if err := s.Access("/f", tree.AccessExec); err == nil {
		t.Error("expected owner exec access to be denied for mode 0640")
	}

	// Group (another owner, same gid) gets r only (mode>>3 = 4).
	if err := s.Chown("/f", s.uid+1, s.gid); err != nil {
		t.Fatalf("Chown failed: %v", err)
	}
	if err := s.Access("/f", tree.AccessRead); err != nil {
		t.Errorf("expected group read access, got %v", err)
	}
	if err := s.Access("/f", tree.AccessWrite); err == nil {
		t.Error("expected group write access to be denied for mode 0640")
	}

	// Other (another owner and gid) gets nothing.
	if err := s.Chown("/f", s.uid+1, s.gid+1); err != nil {
		t.Fatalf("Chown failed: %v", err)
	}
	if err := s.Access("/f", tree.AccessRead); err == nil {
		t.Error("expected other read access to be denied for mode 0640")
	}
}

func TestResizeGrowsPreservingUsed(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/f", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Write(ctx, "/f", bytes.Repeat([]byte{'z'}, 4096), 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	before := s.StatFS()

	if err := s.Resize(int64(before.Blocks)*512*2); err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	after := s.StatFS()
	if after.Blocks <= before.Blocks {
		t.Errorf("expected Resize to grow Blocks: before=%d after=%d", before.Blocks, after.Blocks)
	}
	if after.Blocks-after.Bfree != before.Blocks-before.Bfree {
		t.Errorf("expected used blocks to be preserved: before=%d after=%d", before.Blocks-before.Bfree, after.Blocks-after.Bfree)
	}
}

func TestResizeRejectsShrinkBelowUsed(t *testing.T) {
	s := newTestSession(t)
	ctx := context.Background()

	if err := s.Create("/f", 0o644); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Write(ctx, "/f", bytes.Repeat([]byte{'z'}, 4096), 0); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := s.Write(ctx, "/f", bytes.Repeat([]byte{'z'}, 4096), 4096); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if err := s.Resize(1); err != ErrQuotaTooSmall {
		t.Fatalf("expected ErrQuotaTooSmall, got %v", err)
	}
}
