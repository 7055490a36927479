package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fsys := OSFileSystem{}

	if !fsys.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}
	if fsys.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_WriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	fsys := OSFileSystem{}
	path := filepath.Join(dir, "nested", "registry.json")

	if err := WriteFileAtomic(fsys, path, []byte(`[]`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("expected %q, got %q", "[]", data)
	}
	if fsys.Exists(path + ".tmp") {
		t.Error("temporary file left behind")
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := mfs.WriteFile("/test.txt", []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := mfs.ReadFile("/test.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected %q, got %q", "hello", data)
	}

	// returned data must be a copy
	data[0] = 'j'
	again, _ := mfs.ReadFile("/test.txt")
	if string(again) != "hello" {
		t.Errorf("ReadFile result aliases stored data: %q", again)
	}
}

func TestMemoryFileSystem_ReadMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()

	_, err := mfs.ReadFile("/missing.json")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_WriteFileAtomic(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := WriteFileAtomic(mfs, "/data/registry.json", []byte("v1"), 0o644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(mfs, "/data/registry.json", []byte("v2"), 0o644); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, _ := mfs.ReadFile("/data/registry.json")
	if string(data) != "v2" {
		t.Errorf("expected v2, got %q", data)
	}
	if !mfs.Exists("/data") {
		t.Error("expected parent directory to be created")
	}
	if got := mfs.Files("/data/"); len(got) != 1 {
		t.Errorf("expected a single file, got %v", got)
	}
}

func TestMemoryFileSystem_StatAndRemove(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.MkdirAll("/a/b", 0o755)
	_ = mfs.WriteFile("/a/b/c.json", []byte("12345"), 0o600)

	info, err := mfs.Stat("/a/b/c.json")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 5 || info.IsDir() || info.Name() != "c.json" {
		t.Errorf("unexpected info: name=%s size=%d dir=%v", info.Name(), info.Size(), info.IsDir())
	}

	dirInfo, err := mfs.Stat("/a")
	if err != nil || !dirInfo.IsDir() {
		t.Errorf("expected /a to be a directory, err=%v", err)
	}

	if err := mfs.Remove("/a/b/c.json"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if mfs.Exists("/a/b/c.json") {
		t.Error("file still exists after Remove")
	}
	if err := mfs.Remove("/a/b/c.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_RenameMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.Rename("/nope", "/other"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}
