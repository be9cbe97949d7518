package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gpucheck/internal/logging"
)

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "report.json")

	if err := AtomicWriteFile(path, []byte(`{"ok":true}`), DefaultFilePermissions, logging.Discard()); err != nil {
		t.Fatalf("AtomicWriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read written file: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("Expected written content, got: %s", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != DefaultFilePermissions {
		t.Errorf("Expected permissions %o, got: %o", DefaultFilePermissions, info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the target file to remain, got %d entries", len(entries))
	}
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	if err := AtomicWriteFile(path, []byte("first"), DefaultFilePermissions, nil); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("second"), DefaultFilePermissions, nil); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("Expected 'second', got: %s", data)
	}
}

func TestCloseWithError(t *testing.T) {
	called := false
	CloseWithError(func() error {
		called = true
		return errors.New("close failed")
	}, nil, "resource")

	if !called {
		t.Error("Expected closer to be called")
	}
}
