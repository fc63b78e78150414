package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samoht/gitobj/pkg/odb"
)

// resolveGitDir locates the git directory: the --git-dir flag if given,
// otherwise the nearest .git walking up from the working directory.
func resolveGitDir() (string, error) {
	if gitDir != "" {
		return filepath.Abs(gitDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := cwd
	for {
		candidate := filepath.Join(dir, ".git")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a git repository (or any parent up to mount point)")
		}
		dir = parent
	}
}

// openStore opens the object database for the resolved git directory.
func openStore() (*odb.Store, error) {
	dir, err := resolveGitDir()
	if err != nil {
		return nil, err
	}
	return odb.Open(dir)
}
