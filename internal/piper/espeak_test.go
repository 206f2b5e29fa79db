package piper

import (
	"os"
	"path/filepath"
	"testing"
)

func makeEspeakDir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "phontab"), []byte{0}, 0644); err != nil {
		t.Fatalf("write phontab: %v", err)
	}
}

func TestResolveEspeakDataDir_Explicit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "espeak-ng-data")
	makeEspeakDir(t, dir)

	got, err := resolveEspeakDataDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != dir {
		t.Errorf("got %q, want %q", got, dir)
	}

	if _, err := resolveEspeakDataDir(t.TempDir()); err == nil {
		t.Error("directory without phontab should be rejected")
	}
}

func TestResolveEspeakDataDir_Env(t *testing.T) {
	// 环境变量指向数据目录的父目录
	parent := t.TempDir()
	dir := filepath.Join(parent, "espeak-ng-data")
	makeEspeakDir(t, dir)
	t.Setenv(espeakDataEnv, parent)

	got, err := resolveEspeakDataDir("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != dir {
		t.Errorf("got %q, want %q", got, dir)
	}

	// 环境变量直接指向数据目录
	t.Setenv(espeakDataEnv, dir)
	got, err = resolveEspeakDataDir("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != dir {
		t.Errorf("got %q, want %q", got, dir)
	}
}

func TestVersion(t *testing.T) {
	if Version() == "" {
		t.Error("Version should never be empty")
	}
}
