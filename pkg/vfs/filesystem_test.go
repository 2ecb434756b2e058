package vfs

import (
	"bytes"
	"fmt"
	"testing"
)

// sequenceGen returns a deterministic id generator for tests.
func sequenceGen(prefix string) IDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// collidingGen always returns the same value, exercising the retry bound.
func collidingGen(value string) IDGenerator {
	return func() string { return value }
}

func newTestFS(t *testing.T, limits Limits) *FileSystem {
	t.Helper()
	return NewFileSystem("test", "fs-test", limits, sequenceGen("ino"))
}

// checkStoredBytes asserts the storedBytes invariant: the running total
// must equal the sum of stored file lengths.
func checkStoredBytes(t *testing.T, fs *FileSystem) {
	t.Helper()
	var sum int64
	for _, f := range fs.files {
		sum += int64(len(f.data))
	}
	if fs.storedBytes != sum {
		t.Fatalf("storedBytes = %d, but files sum to %d", fs.storedBytes, sum)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := newTestFS(t, DefaultLimits())
	payload := []byte{1, 2, 3, 4, 5}

	if _, err := fs.WriteFile("/dir/file", payload, false); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	got, err := fs.ReadFile("/dir/file")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("ReadFile = %v, want %v", got, payload)
	}
	checkStoredBytes(t, fs)
}

func TestReadFileReturnsCopy(t *testing.T) {
	fs := newTestFS(t, DefaultLimits())
	if _, err := fs.WriteFile("/f", []byte{1, 2, 3}, false); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	first, _ := fs.ReadFile("/f")
	first[0] = 99
	second, _ := fs.ReadFile("/f")
	if second[0] != 1 {
		t.Error("mutating a read buffer leaked into the store")
	}
}

func TestWriteFileCopiesInput(t *testing.T) {
	fs := newTestFS(t, DefaultLimits())
	payload := []byte{1, 2, 3}
	if _, err := fs.WriteFile("/f", payload, false); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	payload[0] = 99
	got, _ := fs.ReadFile("/f")
	if got[0] != 1 {
		t.Error("mutating the caller's buffer leaked into the store")
	}
}

func TestUnlink(t *testing.T) {
	fs := newTestFS(t, DefaultLimits())
	if _, err := fs.WriteFile("/f", []byte("data"), false); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := fs.Unlink("/f"); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if _, err := fs.Stat("/f"); !IsCode(err, ErrNotFound) {
		t.Errorf("Stat after unlink: expected NotFound, got %v", err)
	}
	if _, err := fs.ReadFile("/f"); !IsCode(err, ErrNotFound) {
		t.Errorf("ReadFile after unlink: expected NotFound, got %v", err)
	}
	if err := fs.Unlink("/f"); !IsCode(err, ErrNotFound) {
		t.Errorf("second Unlink: expected NotFound, got %v", err)
	}
	checkStoredBytes(t, fs)
}

func TestMovePreservesIdentity(t *testing.T) {
	fs := newTestFS(t, DefaultLimits())
	if _, err := fs.WriteFile("/a", []byte("payload"), false); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	before, _ := fs.Stat("/a")

	if err := fs.Move("/a", "/b"); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	after, err := fs.Stat("/b")
	if err != nil {
		t.Fatalf("Stat after move failed: %v", err)
	}
	if after.Ino != before.Ino {
		t.Errorf("move changed ino: %q -> %q", before.Ino, after.Ino)
	}
	if !after.Ctime.Equal(before.Ctime) {
		t.Error("move changed ctime")
	}
	// Move deliberately does not touch mtime.
	if !after.Mtime.Equal(before.Mtime) {
		t.Error("move changed mtime")
	}
	if _, err := fs.Stat("/a"); !IsCode(err, ErrNotFound) {
		t.Errorf("Stat of old path: expected NotFound, got %v", err)
	}
	checkStoredBytes(t, fs)
}

func TestMoveReplacesDestination(t *testing.T) {
	fs := newTestFS(t, DefaultLimits())
	if _, err := fs.WriteFile("/src", []byte("abc"), false); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := fs.WriteFile("/dst", []byte("0123456789"), false); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := fs.Move("/src", "/dst"); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if fs.StoredBytes() != 3 {
		t.Errorf("StoredBytes = %d after replacing move, want 3", fs.StoredBytes())
	}
	data, _ := fs.ReadFile("/dst")
	if string(data) != "abc" {
		t.Errorf("destination holds %q, want %q", data, "abc")
	}
	checkStoredBytes(t, fs)
}

func TestMoveMissingSource(t *testing.T) {
	fs := newTestFS(t, DefaultLimits())
	if err := fs.Move("/nope", "/dst"); !IsCode(err, ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestWriteFileTruncateKeepsIno(t *testing.T) {
	fs := newTestFS(t, DefaultLimits())
	ino1, err := fs.WriteFile("/f", []byte("one"), false)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Overwrite with truncate reuses the record: same ino.
	ino2, err := fs.WriteFile("/f", []byte("two"), true)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if ino2 != ino1 {
		t.Errorf("truncate write changed ino: %q -> %q", ino1, ino2)
	}

	// Overwrite without truncate replaces the record: fresh ino.
	ino3, err := fs.WriteFile("/f", []byte("three"), false)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if ino3 == ino1 {
		t.Error("plain overwrite kept the old ino")
	}
	checkStoredBytes(t, fs)
}

func TestReaddir(t *testing.T) {
	fs := newTestFS(t, DefaultLimits())
	paths := []string{"/b", "/a/x", "/a/y/deep", "/c", "/a/z"}
	for _, p := range paths {
		if _, err := fs.WriteFile(p, []byte("x"), false); err != nil {
			t.Fatalf("WriteFile(%q) failed: %v", p, err)
		}
	}

	entries, err := fs.Readdir("/")
	if err != nil {
		t.Fatalf("Readdir failed: %v", err)
	}
	wantNames := []string{"a", "b", "c"}
	wantKinds := []NodeKind{KindDirectory, KindFile, KindFile}
	if len(entries) != len(wantNames) {
		t.Fatalf("Readdir returned %d entries, want %d: %+v", len(entries), len(wantNames), entries)
	}
	for i := range entries {
		if entries[i].Name != wantNames[i] || entries[i].Kind != wantKinds[i] {
			t.Errorf("entry %d = (%q, %s), want (%q, %s)",
				i, entries[i].Name, entries[i].Kind, wantNames[i], wantKinds[i])
		}
	}

	sub, err := fs.Readdir("/a")
	if err != nil {
		t.Fatalf("Readdir(/a) failed: %v", err)
	}
	if len(sub) != 3 {
		t.Fatalf("Readdir(/a) returned %d entries, want 3", len(sub))
	}
	if sub[0].Name != "x" || sub[1].Name != "y" || sub[2].Name != "z" {
		t.Errorf("Readdir(/a) order wrong: %+v", sub)
	}
	if sub[1].Kind != KindDirectory {
		t.Errorf("entry y should be a directory, got %s", sub[1].Kind)
	}
	if !sub[0].Writeable {
		t.Error("single-store readdir entries should be writeable")
	}
}

func TestReaddirInsertionOrderInvariant(t *testing.T) {
	paths := []string{"/m", "/a/1", "/z", "/a/2", "/b"}
	forward := newTestFS(t, DefaultLimits())
	for _, p := range paths {
		forward.WriteFile(p, []byte("x"), false)
	}
	backward := newTestFS(t, DefaultLimits())
	for i := len(paths) - 1; i >= 0; i-- {
		backward.WriteFile(paths[i], []byte("x"), false)
	}
	a, _ := forward.Readdir("/")
	b, _ := backward.Readdir("/")
	if len(a) != len(b) {
		t.Fatalf("listings differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Kind != b[i].Kind {
			t.Errorf("entry %d differs: (%q, %s) vs (%q, %s)",
				i, a[i].Name, a[i].Kind, b[i].Name, b[i].Kind)
		}
	}
}

func TestReaddirEmpty(t *testing.T) {
	fs := newTestFS(t, DefaultLimits())
	entries, err := fs.Readdir("/nothing/here")
	if err != nil {
		t.Fatalf("Readdir on empty store failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty listing, got %+v", entries)
	}
}

func TestReaddirSimilarPrefix(t *testing.T) {
	fs := newTestFS(t, DefaultLimits())
	fs.WriteFile("/a/inside", []byte("x"), false)
	fs.WriteFile("/ab", []byte("x"), false)

	entries, err := fs.Readdir("/a")
	if err != nil {
		t.Fatalf("Readdir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "inside" {
		t.Errorf("prefix scan leaked sibling entries: %+v", entries)
	}
}

func TestMaxFilesQuota(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxFiles = 1
	fs := newTestFS(t, limits)

	if _, err := fs.WriteFile("/a", []byte{1, 2, 3}, false); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if _, err := fs.WriteFile("/b", []byte{1}, false); !IsCode(err, ErrQuotaExceeded) {
		t.Fatalf("expected QuotaExceeded, got %v", err)
	}
	// The failed write must leave the store unchanged.
	entries, _ := fs.Readdir("/")
	if len(entries) != 1 || entries[0].Name != "a" {
		t.Errorf("store changed by failed write: %+v", entries)
	}
	checkStoredBytes(t, fs)

	// Replacing the existing file is not a create and still fits.
	if _, err := fs.WriteFile("/a", []byte{9}, false); err != nil {
		t.Errorf("overwrite within max_files failed: %v", err)
	}
}

func TestMaxStorageQuota(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxStorage = 10
	fs := newTestFS(t, limits)

	if _, err := fs.WriteFile("/a", make([]byte, 8), false); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := fs.WriteFile("/b", make([]byte, 3), false); !IsCode(err, ErrQuotaExceeded) {
		t.Errorf("expected QuotaExceeded, got %v", err)
	}
	// Shrinking an existing file frees budget for the delta check.
	if _, err := fs.WriteFile("/a", make([]byte, 2), true); err != nil {
		t.Fatalf("shrinking write failed: %v", err)
	}
	if _, err := fs.WriteFile("/b", make([]byte, 8), false); err != nil {
		t.Errorf("write after shrink failed: %v", err)
	}
	checkStoredBytes(t, fs)
}

func TestMaxPathQuota(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPath = 10
	fs := newTestFS(t, limits)

	if _, err := fs.WriteFile("/a/very/long/path", []byte("x"), false); !IsCode(err, ErrQuotaExceeded) {
		t.Errorf("expected QuotaExceeded, got %v", err)
	}
	if len(fs.files) != 0 {
		t.Error("failed write mutated the store")
	}
}

func TestMaxDepthQuota(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxDepth = 2
	fs := newTestFS(t, limits)

	if _, err := fs.WriteFile("/a/b", []byte("x"), false); err != nil {
		t.Fatalf("write at limit failed: %v", err)
	}
	if _, err := fs.WriteFile("/a/b/c", []byte("x"), false); !IsCode(err, ErrQuotaExceeded) {
		t.Errorf("expected QuotaExceeded, got %v", err)
	}
	if err := fs.Move("/a/b", "/a/b/c/d"); !IsCode(err, ErrQuotaExceeded) {
		t.Errorf("move past max_depth: expected QuotaExceeded, got %v", err)
	}
	checkStoredBytes(t, fs)
}

func TestInoCollisionBound(t *testing.T) {
	fs := NewFileSystem("test", "fs-test", DefaultLimits(), collidingGen("same"))
	if _, err := fs.WriteFile("/a", []byte("x"), false); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if _, err := fs.WriteFile("/b", []byte("x"), false); !IsCode(err, ErrCollision) {
		t.Errorf("expected Collision, got %v", err)
	}
}
