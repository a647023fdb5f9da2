package publish

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFinalizeInstallsAtTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "mlocate.db")

	p, err := New(target)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.File().WriteString("database contents"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}

	if err := p.Finalize(false, 0); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "database contents" {
		t.Fatalf("unexpected target contents: %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the installed database to remain, got %v", entries)
	}
}

func TestAbortRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "mlocate.db")

	p, err := New(target)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Abort()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files left after Abort, got %v", entries)
	}
}

func TestFinalizeSetsModeWithCheckVisibility(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "mlocate.db")

	p, err := New(target)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Finalize(true, os.Getgid()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("expected mode 0640, got %v", info.Mode().Perm())
	}
}

func TestLockOldDatabaseSucceedsOnUncontendedFile(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "mlocate.db")
	if err := os.WriteFile(old, []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p, err := New(filepath.Join(dir, "new.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Abort()
	if err := p.LockOldDatabase(old); err != nil {
		t.Fatalf("LockOldDatabase: %v", err)
	}
}
