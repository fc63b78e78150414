// Package codec provides the compression capability used by the object
// database. Loose objects and pack entries are zlib streams; the codec hides
// the concrete implementation behind a small interface so the engine can be
// exercised against a different compressor.
package codec

import (
	"fmt"
	"io"
)

// Codec is the inflate/deflate capability. Implementations must be safe for
// concurrent use; decoder state is pooled internally.
type Codec interface {
	// NewReader returns an inflating stream over r. Closing the returned
	// reader recycles the decoder state.
	NewReader(r io.Reader) (io.ReadCloser, error)

	// Decompress inflates the stream in r into dst, which must be exactly
	// the expected output length. Trailing garbage in the stream is an
	// error.
	Decompress(dst []byte, r io.Reader) error

	// DecompressAll inflates the whole stream.
	DecompressAll(r io.Reader) ([]byte, error)

	// Compress deflates src to w and returns the compressed byte count.
	Compress(w io.Writer, src []byte) (int, error)

	// Level reports the configured compression level (0..9).
	Level() int
}

// countingWriter tracks bytes written through it.
type countingWriter struct {
	w io.Writer
	n int
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += n
	return n, err
}

// ensureEOF verifies a stream is exhausted after an exact-length read.
func ensureEOF(r io.Reader) error {
	var one [1]byte
	n, err := r.Read(one[:])
	if n != 0 {
		return fmt.Errorf("compressed stream longer than expected")
	}
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}
