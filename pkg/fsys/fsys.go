// Package fsys is the filesystem capability consumed by the object database.
// Every path the store touches goes through the FS interface so tests and
// alternative backends can substitute their own implementation. The OS
// implementation backs Map with mmap where the platform allows it.
package fsys

import (
	"io"
	"io/fs"
	"os"
)

// File is an open file handle.
type File interface {
	io.Reader
	io.ReaderAt
	io.Writer
	io.Seeker
	io.Closer

	// Name returns the path the file was opened with
	Name() string

	// Sync flushes the file to stable storage
	Sync() error
}

// Region is a read-only view of a file range, typically memory-mapped.
// Bytes stays valid until Close.
type Region interface {
	Bytes() []byte
	Close() error
}

// FS is the filesystem capability: open, write, rename, list, plus a mapper
// producing read-only regions of a file.
type FS interface {
	// Open opens a file for reading
	Open(path string) (File, error)

	// Create truncates or creates a file for writing
	Create(path string) (File, error)

	// OpenAppend opens a file for appending, creating it if absent
	OpenAppend(path string) (File, error)

	// TempFile creates a uniquely named file in dir
	TempFile(dir, pattern string) (File, error)

	// Rename atomically replaces newpath with oldpath
	Rename(oldpath, newpath string) error

	// Remove deletes a file
	Remove(path string) error

	// Stat describes a path
	Stat(path string) (fs.FileInfo, error)

	// ReadDir lists a directory
	ReadDir(path string) ([]fs.DirEntry, error)

	// MkdirAll creates a directory and any missing parents
	MkdirAll(path string, mode fs.FileMode) error

	// RemoveAll deletes a path recursively
	RemoveAll(path string) error

	// Chmod changes a file's mode
	Chmod(path string, mode fs.FileMode) error

	// Map returns a read-only region of length bytes of the file at the
	// given offset
	Map(path string, offset int64, length int) (Region, error)
}

// OS implements FS over the local filesystem.
type OS struct{}

// NewOS returns the local-filesystem implementation.
func NewOS() *OS {
	return &OS{}
}

func (*OS) Open(path string) (File, error) {
	return os.Open(path)
}

func (*OS) Create(path string) (File, error) {
	return os.Create(path)
}

func (*OS) OpenAppend(path string) (File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func (*OS) TempFile(dir, pattern string) (File, error) {
	return os.CreateTemp(dir, pattern)
}

func (*OS) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (*OS) Remove(path string) error {
	return os.Remove(path)
}

func (*OS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (*OS) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

func (*OS) MkdirAll(path string, mode fs.FileMode) error {
	return os.MkdirAll(path, mode)
}

func (*OS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (*OS) Chmod(path string, mode fs.FileMode) error {
	return os.Chmod(path, mode)
}
