package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-pagelift")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-pagelift" {
			t.Errorf("expected path /tmp/test-pagelift, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-pagelift")

	t.Run("OutputsPath", func(t *testing.T) {
		expected := "/tmp/test-pagelift/outputs"
		if dir.OutputsPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.OutputsPath())
		}
	})

	t.Run("ConfigPath", func(t *testing.T) {
		expected := "/tmp/test-pagelift/config.yaml"
		if dir.ConfigPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.ConfigPath())
		}
	})
}

func TestDir_EnsureExists(t *testing.T) {
	tmpDir := t.TempDir()
	plDir := filepath.Join(tmpDir, "pagelift-test")

	dir, err := New(plDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir.Exists() {
		t.Fatal("directory should not exist yet")
	}

	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}

	if !dir.Exists() {
		t.Error("directory should exist")
	}
	if _, err := os.Stat(dir.OutputsPath()); err != nil {
		t.Errorf("outputs directory missing: %v", err)
	}
	if dir.ConfigExists() {
		t.Error("config file should not exist")
	}
}
