//go:build integration

package itest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// assets locates the repo checkout and the whisper.cpp build fetched into
// .cache for integration runs.
type assets struct {
	root         string
	whisperBin   string
	whisperModel string
}

func findRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if fi, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !fi.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found above working directory")
		}
		dir = parent
	}
}

func mustRepoRoot(t *testing.T) string {
	t.Helper()
	root, err := findRepoRoot()
	if err != nil {
		t.Fatalf("repo root: %v", err)
	}
	return root
}

func mustAssets(t *testing.T) assets {
	t.Helper()
	root := mustRepoRoot(t)
	a := assets{
		root:         root,
		whisperBin:   filepath.Join(root, ".cache", "bin", "whisper.cpp"),
		whisperModel: filepath.Join(root, ".cache", "models", "ggml-base.bin"),
	}
	for _, p := range []string{a.whisperBin, a.whisperModel} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("whisper.cpp assets are required for itest: %v", err)
		}
	}
	return a
}
