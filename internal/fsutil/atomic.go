// Package fsutil holds the atomic file replacement shared by every on-disk writer.
package fsutil

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces path with data via a synced temp file and rename.
// It reports false without touching the file when the content is already identical.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return false, err
	}

	cleanup := func() {
		_ = os.Remove(tempFile.Name())
	}

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		cleanup()
		return false, err
	}
	if err := tempFile.Chmod(perm); err != nil {
		_ = tempFile.Close()
		cleanup()
		return false, err
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		cleanup()
		return false, err
	}
	if err := tempFile.Close(); err != nil {
		cleanup()
		return false, err
	}

	if err := os.Rename(tempFile.Name(), path); err != nil {
		cleanup()
		return false, err
	}

	if dirHandle, err := os.Open(dir); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}

	return true, nil
}

// RemoveIfExists deletes path and reports whether anything was removed.
func RemoveIfExists(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
