package tree

import (
	"testing"
	"time"
)

func TestNewTreeSeedsReservedEntries(t *testing.T) {
	tr := New(1000, 1000, time.Now())

	for _, name := range []string{".Trash", ".Trash-1000", ".hidden"} {
		node, ok := tr.Root.Children[name]
		if !ok {
			t.Fatalf("expected root to contain %q", name)
		}
		if !IsDir(node.Stat.Mode) {
			t.Errorf("%q should be a directory", name)
		}
	}
}

func TestInsertAndLookup(t *testing.T) {
	now := time.Now()
	tr := New(1000, 1000, now)

	file := NewFile(1000, 1000, ModeOwnerRead|ModeOwnerWrite, now)
	if err := tr.Insert("/", "hello.txt", file, 1000, 1000, now); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := tr.Lookup("/hello.txt")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got != file {
		t.Error("Lookup returned a different node than inserted")
	}
}

func TestInsertCreatesIntermediateDirectories(t *testing.T) {
	now := time.Now()
	tr := New(1000, 1000, now)

	file := NewFile(1000, 1000, ModeOwnerRead|ModeOwnerWrite, now)
	if err := tr.Insert("/a/b/c", "leaf", file, 1000, 1000, now); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	for _, p := range []string{"/a", "/a/b", "/a/b/c"} {
		node, err := tr.Lookup(p)
		if err != nil {
			t.Fatalf("Lookup(%q) failed: %v", p, err)
		}
		if !IsDir(node.Stat.Mode) {
			t.Errorf("%q should be a directory", p)
		}
	}
}

func TestLookupMissingReturnsErrNotExist(t *testing.T) {
	tr := New(1000, 1000, time.Now())

	_, err := tr.Lookup("/nope")
	if _, ok := err.(*ErrNotExist); !ok {
		t.Fatalf("expected *ErrNotExist, got %T (%v)", err, err)
	}
}

func TestExistsDistinguishesMissingFromError(t *testing.T) {
	now := time.Now()
	tr := New(1000, 1000, now)
	file := NewFile(1000, 1000, ModeOwnerRead|ModeOwnerWrite, now)
	if err := tr.Insert("/", "leaf", file, 1000, 1000, now); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	ok, err := tr.Exists("/leaf")
	if err != nil || !ok {
		t.Fatalf("expected /leaf to exist, got ok=%v err=%v", ok, err)
	}

	ok, err = tr.Exists("/missing")
	if err != nil || ok {
		t.Fatalf("expected /missing to not exist, got ok=%v err=%v", ok, err)
	}

	// "/leaf/child" treats leaf (a file) as a non-directory intermediate,
	// which Exists still propagates as an error rather than "not found".
	_, err = tr.Exists("/leaf/child")
	if _, ok := err.(*ErrNotDirectory); !ok {
		t.Fatalf("expected *ErrNotDirectory, got %T (%v)", err, err)
	}
}

func TestListReturnsChildNames(t *testing.T) {
	now := time.Now()
	tr := New(1000, 1000, now)
	file := NewFile(1000, 1000, ModeOwnerRead|ModeOwnerWrite, now)
	if err := tr.Insert("/", "leaf", file, 1000, 1000, now); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	names, err := tr.List("/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	found := false
	for _, n := range names {
		if n == "leaf" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %v to contain %q", names, "leaf")
	}
}

func TestRemoveDetachesNode(t *testing.T) {
	now := time.Now()
	tr := New(1000, 1000, now)
	file := NewFile(1000, 1000, ModeOwnerRead|ModeOwnerWrite, now)
	if err := tr.Insert("/", "leaf", file, 1000, 1000, now); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	removed, err := tr.Remove("/", "leaf")
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed != file {
		t.Error("Remove returned a different node than was inserted")
	}

	if _, err := tr.Lookup("/leaf"); err == nil {
		t.Error("expected /leaf to be gone after Remove")
	}
}

func TestInsertRejectsReadOnlyParent(t *testing.T) {
	now := time.Now()
	tr := New(1000, 1000, now)
	tr.Root.Stat.Mode &^= ModeOwnerWrite

	file := NewFile(1000, 1000, ModeOwnerRead, now)
	err := tr.Insert("/", "leaf", file, 1000, 1000, now)
	if _, ok := err.(*ErrPermission); !ok {
		t.Fatalf("expected *ErrPermission, got %T (%v)", err, err)
	}
}

func TestIsDirIgnoresOwnerExecuteBit(t *testing.T) {
	// Regression for the corrected directory check: a regular file with its
	// owner-execute bit set (the bit the original implementation mistakenly
	// tested) must not be reported as a directory.
	mode := ModeRegular | ModeOwnerExec
	if IsDir(mode) {
		t.Error("a regular file with owner-execute set should not be IsDir")
	}
}

func TestCanWrite(t *testing.T) {
	if !CanWrite(ModeOwnerWrite) {
		t.Error("expected ModeOwnerWrite to be writable")
	}
	if CanWrite(ModeOwnerRead) {
		t.Error("expected a read-only mode to not be writable")
	}
}
