package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultDataDir returns ~/.firenet, or a temp dir when no home is available.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "firenet")
	}
	return filepath.Join(home, ".firenet")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// EnsureDir creates dir with owner-only permissions if it does not exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
