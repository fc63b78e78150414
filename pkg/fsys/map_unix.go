//go:build linux || darwin

package fsys

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapRegion is a Region backed by a shared read-only mapping. The mapping
// starts at a page boundary; skip trims back to the requested offset.
type mmapRegion struct {
	mapped []byte
	skip   int
	length int
}

func (r *mmapRegion) Bytes() []byte {
	return r.mapped[r.skip : r.skip+r.length]
}

func (r *mmapRegion) Close() error {
	if r.mapped == nil {
		return nil
	}
	err := unix.Munmap(r.mapped)
	r.mapped = nil
	return err
}

// Map produces a read-only region of the file. Length -1 maps to the end of
// the file. Falls back to pread when the mapping is refused (e.g. on
// filesystems without mmap support).
func (*OS) Map(path string, offset int64, length int) (Region, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if length < 0 {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		length = int(info.Size() - offset)
	}
	if length == 0 {
		return &heapRegion{data: []byte{}}, nil
	}

	page := int64(os.Getpagesize())
	aligned := offset - offset%page
	skip := int(offset - aligned)

	mapped, err := unix.Mmap(int(f.Fd()), aligned, skip+length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return readRegion(path, offset, length)
	}
	return &mmapRegion{mapped: mapped, skip: skip, length: length}, nil
}
