package cachefs

import (
	"os"
	"path/filepath"
	"testing"
)

func testFS(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAtomicAndRead(t *testing.T) {
	fs := testFS(t)

	if err := fs.WriteAtomic("docs/1-abc.json", []byte(`{"commit":"abc"}`)); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	if !fs.Exists("docs/1-abc.json") {
		t.Fatal("Exists = false after write")
	}
	data, err := fs.Read("docs/1-abc.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != `{"commit":"abc"}` {
		t.Errorf("Read = %q", data)
	}

	// No temp file leftovers.
	entries, err := os.ReadDir(filepath.Join(fs.Root(), "docs"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir entries = %d, want 1", len(entries))
	}
}

func TestWriteAtomicOverwrite(t *testing.T) {
	fs := testFS(t)

	if err := fs.WriteAtomic("e.json", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := fs.WriteAtomic("e.json", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	data, _ := fs.Read("e.json")
	if string(data) != "v2" {
		t.Errorf("Read = %q, want v2", data)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	fs := testFS(t)

	for _, p := range []string{"../outside.json", "a/../../outside.json", "/etc/passwd"} {
		if err := fs.WriteAtomic(p, []byte("x")); err == nil {
			t.Errorf("WriteAtomic(%q) succeeded, want error", p)
		}
		if _, err := fs.Read(p); err == nil {
			t.Errorf("Read(%q) succeeded, want error", p)
		}
		if fs.Exists(p) {
			t.Errorf("Exists(%q) = true", p)
		}
	}
}

func TestReadMissing(t *testing.T) {
	fs := testFS(t)
	if _, err := fs.Read("absent.json"); err == nil {
		t.Fatal("Read of missing file should error")
	}
	if fs.Exists("absent.json") {
		t.Fatal("Exists of missing file should be false")
	}
}

func TestReadDirMissingIsEmpty(t *testing.T) {
	fs := testFS(t)
	names, err := fs.ReadDir("nope")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v, want empty", names)
	}
}

func TestReadDirListsNames(t *testing.T) {
	fs := testFS(t)
	_ = fs.WriteAtomic("docs/a.json", []byte("a"))
	_ = fs.WriteAtomic("docs/b.json", []byte("b"))

	names, err := fs.ReadDir("docs")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Errorf("names = %v, want 2 entries", names)
	}
}

func TestRemoveAndRemoveAll(t *testing.T) {
	fs := testFS(t)
	_ = fs.WriteAtomic("docs/a.json", []byte("a"))
	_ = fs.WriteAtomic("assets/1/x.png", []byte("p"))

	if err := fs.Remove("docs/a.json"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if fs.Exists("docs/a.json") {
		t.Error("file still exists after Remove")
	}
	// Missing file is not an error.
	if err := fs.Remove("docs/a.json"); err != nil {
		t.Errorf("Remove of missing file: %v", err)
	}

	if err := fs.RemoveAll("assets/1"); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if fs.Exists("assets/1/x.png") {
		t.Error("file still exists after RemoveAll")
	}

	if err := fs.RemoveAll(""); err == nil {
		t.Error("RemoveAll of root should be refused")
	}
}
