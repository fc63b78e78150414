package codec

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// DefaultLevel matches git's default zlib setting.
const DefaultLevel = 6

// Zlib implements Codec over klauspost's zlib. Decoder and encoder state is
// pooled so hot read paths reuse their 32 KiB sliding windows instead of
// reallocating them per object.
type Zlib struct {
	level   int
	readers sync.Pool
	writers sync.Pool
}

// NewZlib creates a codec with the given compression level (0..9).
func NewZlib(level int) (*Zlib, error) {
	if level < zlib.NoCompression || level > zlib.BestCompression {
		return nil, fmt.Errorf("compression level out of range: %d", level)
	}
	return &Zlib{level: level}, nil
}

// Level reports the configured compression level.
func (z *Zlib) Level() int {
	return z.level
}

// pooledReader recycles its zlib decoder on Close.
type pooledReader struct {
	zr io.ReadCloser
	z  *Zlib
}

func (pr *pooledReader) Read(p []byte) (int, error) {
	return pr.zr.Read(p)
}

func (pr *pooledReader) Close() error {
	err := pr.zr.Close()
	pr.z.readers.Put(pr.zr)
	pr.zr = nil
	return err
}

// NewReader returns an inflating stream over r.
func (z *Zlib) NewReader(r io.Reader) (io.ReadCloser, error) {
	if v := z.readers.Get(); v != nil {
		zr := v.(io.ReadCloser)
		if err := zr.(zlib.Resetter).Reset(r, nil); err != nil {
			return nil, fmt.Errorf("reset inflater: %w", err)
		}
		return &pooledReader{zr: zr, z: z}, nil
	}

	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create inflater: %w", err)
	}
	return &pooledReader{zr: zr, z: z}, nil
}

// Decompress inflates the stream in r into dst exactly.
func (z *Zlib) Decompress(dst []byte, r io.Reader) error {
	zr, err := z.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()

	if _, err := io.ReadFull(zr, dst); err != nil {
		return fmt.Errorf("inflate %d bytes: %w", len(dst), err)
	}
	return ensureEOF(zr)
}

// DecompressAll inflates the whole stream.
func (z *Zlib) DecompressAll(r io.Reader) ([]byte, error) {
	zr, err := z.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate stream: %w", err)
	}
	return data, nil
}

// Compress deflates src to w and returns the compressed byte count.
func (z *Zlib) Compress(w io.Writer, src []byte) (int, error) {
	cw := &countingWriter{w: w}

	var zw *zlib.Writer
	if v := z.writers.Get(); v != nil {
		zw = v.(*zlib.Writer)
		zw.Reset(cw)
	} else {
		var err error
		zw, err = zlib.NewWriterLevel(cw, z.level)
		if err != nil {
			return 0, fmt.Errorf("create deflater: %w", err)
		}
	}
	defer z.writers.Put(zw)

	if _, err := zw.Write(src); err != nil {
		return cw.n, fmt.Errorf("deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("finish deflate: %w", err)
	}
	return cw.n, nil
}
