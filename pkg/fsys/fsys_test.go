package fsys

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWrite(t *testing.T) {
	fs := NewOS()
	dir := t.TempDir()
	target := filepath.Join(dir, "sub", "file.txt")

	if err := AtomicWrite(fs, target, []byte("payload"), 0644); err != nil {
		t.Fatalf("AtomicWrite() error: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !bytes.Equal(data, []byte("payload")) {
		t.Errorf("content = %q, want payload", data)
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestAtomicWriteReplaces(t *testing.T) {
	fs := NewOS()
	target := filepath.Join(t.TempDir(), "file.txt")

	if err := AtomicWrite(fs, target, []byte("old"), 0644); err != nil {
		t.Fatalf("first AtomicWrite() error: %v", err)
	}
	if err := AtomicWrite(fs, target, []byte("new"), 0644); err != nil {
		t.Fatalf("second AtomicWrite() error: %v", err)
	}

	data, _ := os.ReadFile(target)
	if string(data) != "new" {
		t.Errorf("content = %q, want new", data)
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	fs := NewOS()
	dir := t.TempDir()

	if err := AtomicWrite(fs, filepath.Join(dir, "file.txt"), []byte("x"), 0444); err != nil {
		t.Fatalf("AtomicWrite() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "file.txt" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("directory holds %v, want only file.txt", names)
	}
}

func TestExists(t *testing.T) {
	fs := NewOS()
	dir := t.TempDir()
	present := filepath.Join(dir, "present")

	if err := os.WriteFile(present, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	ok, err := Exists(fs, present)
	if err != nil || !ok {
		t.Errorf("Exists(present) = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = Exists(fs, filepath.Join(dir, "absent"))
	if err != nil || ok {
		t.Errorf("Exists(absent) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestMapWholeFile(t *testing.T) {
	fs := NewOS()
	path := filepath.Join(t.TempDir(), "data")
	content := []byte("0123456789")

	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	region, err := fs.Map(path, 0, -1)
	if err != nil {
		t.Fatalf("Map() error: %v", err)
	}
	defer region.Close()

	if !bytes.Equal(region.Bytes(), content) {
		t.Errorf("Bytes() = %q, want %q", region.Bytes(), content)
	}
}

func TestMapRange(t *testing.T) {
	fs := NewOS()
	path := filepath.Join(t.TempDir(), "data")

	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	region, err := fs.Map(path, 4, 3)
	if err != nil {
		t.Fatalf("Map() error: %v", err)
	}
	defer region.Close()

	if got := string(region.Bytes()); got != "456" {
		t.Errorf("Bytes() = %q, want 456", got)
	}
}

func TestReadAll(t *testing.T) {
	fs := NewOS()
	path := filepath.Join(t.TempDir(), "data")
	content := []byte("hello world")

	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	data, err := ReadAll(fs, path)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("ReadAll() = %q, want %q", data, content)
	}
}

func TestReadAllMissing(t *testing.T) {
	fs := NewOS()
	if _, err := ReadAll(fs, filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Error("ReadAll() on a missing file should fail")
	}
}
