// Package fsutil provides the destructive directory operations the pipeline
// performs between stages.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// DirPerm is the permission used for every directory the pipeline creates.
const DirPerm = 0750

// RemoveTree removes path and everything below it.
// A missing path is not an error. When path is a symbolic link only the link
// is removed; its target is left untouched.
func RemoveTree(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove symlink %s: %w", path, err)
		}
		return nil
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// ResetDir removes path if present and recreates it as an empty directory.
func ResetDir(path string) error {
	if err := RemoveTree(path); err != nil {
		return err
	}
	if err := os.MkdirAll(path, DirPerm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// IsRegularFile reports whether path exists and is a regular file.
// Symbolic links are followed.
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// CountFiles returns the number of regular files directly inside dir.
func CountFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() {
			n++
		}
	}
	return n, nil
}
