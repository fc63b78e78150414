//go:build !linux && !darwin

package fsys

// Map produces a read-only region of the file using pread. Length -1 reads
// to the end of the file.
func (*OS) Map(path string, offset int64, length int) (Region, error) {
	return readRegion(path, offset, length)
}
