package fsys

import (
	"fmt"
	"io"
	"os"
)

// heapRegion is the portable Region: the range is read into memory with
// pread. Used when mapping is unavailable or fails.
type heapRegion struct {
	data []byte
}

func (r *heapRegion) Bytes() []byte {
	return r.data
}

func (r *heapRegion) Close() error {
	r.data = nil
	return nil
}

// readRegion loads a file range with ReadAt. A length of -1 means "to the
// end of the file".
func readRegion(path string, offset int64, length int) (Region, error) {
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
	if length < 0 {
		return nil, fmt.Errorf("region out of range: offset %d", offset)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(f, offset, int64(length)), data); err != nil {
		return nil, fmt.Errorf("read region at %d+%d: %w", offset, length, err)
	}
	return &heapRegion{data: data}, nil
}
