package fsys

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// AtomicWrite writes data to a file atomically by using a temporary file and
// rename. Readers see either the old content or the new content, never a
// partial state.
func AtomicWrite(fsys FS, targetPath string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(targetPath)
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmpFile, err := fsys.TempFile(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		tmpFile.Close()
		fsys.Remove(tmpPath)
	}()

	if err := writeTempFile(data, tmpFile); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	return renameTempFile(fsys, tmpPath, targetPath, mode)
}

// writeTempFile writes the provided data to the supplied temporary file,
// synchronizes it to underlying storage using fsync, and then closes the
// file.
func writeTempFile(data []byte, tmpFile File) error {
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return nil
}

// renameTempFile atomically replaces the target file with the temp file.
// It applies the correct file mode to the temporary file before renaming.
func renameTempFile(fsys FS, tmpPath, targetPath string, mode fs.FileMode) error {
	if err := fsys.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}

	if err := fsys.Rename(tmpPath, targetPath); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}

// Exists checks if a file or directory exists at the given path.
// Returns an error only for filesystem failures other than non-existence.
func Exists(fsys FS, path string) (bool, error) {
	_, err := fsys.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("check existence: %w", err)
}

// ReadAll reads a whole file through the capability.
func ReadAll(fsys FS, path string) ([]byte, error) {
	region, err := fsys.Map(path, 0, -1)
	if err != nil {
		return nil, err
	}
	defer region.Close()

	data := make([]byte, len(region.Bytes()))
	copy(data, region.Bytes())
	return data, nil
}
