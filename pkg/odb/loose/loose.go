// Package loose implements the one-object-per-file backend. Each object is
// stored at objects/<xx>/<38 hex> as a zlib stream of its canonical bytes,
// header included.
package loose

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/samoht/gitobj/pkg/codec"
	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/fsys"
	"github.com/samoht/gitobj/pkg/gitpath"
	"github.com/samoht/gitobj/pkg/objects"
)

const pkgName = "loose"

// maxHeaderLen bounds the canonical header scan: the longest legal header is
// "commit " plus a 20-digit size and the null byte.
const maxHeaderLen = 32

// Store reads and writes loose objects below a git directory.
type Store struct {
	fs     fsys.FS
	layout gitpath.Layout
	codec  codec.Codec
}

// New creates a loose store over the given capabilities.
func New(fs fsys.FS, layout gitpath.Layout, c codec.Codec) *Store {
	return &Store{fs: fs, layout: layout, codec: c}
}

// path resolves the object file for a digest.
func (s *Store) path(h objects.Hash) (string, error) {
	p, perr := s.layout.LooseObject(h.Hex())
	if perr != nil {
		return "", err.New(pkgName, err.CodeInvalidHash, "path", perr.Error(), nil)
	}
	return p, nil
}

// Has reports whether the object exists in the loose backend.
func (s *Store) Has(h objects.Hash) bool {
	p, perr := s.path(h)
	if perr != nil {
		return false
	}
	ok, _ := fsys.Exists(s.fs, p)
	return ok
}

// List enumerates every loose object digest. The pack and info
// subdirectories of objects/ are skipped.
func (s *Store) List() ([]objects.Hash, error) {
	entries, derr := s.fs.ReadDir(s.layout.ObjectsDir())
	if derr != nil {
		if os.IsNotExist(derr) {
			return nil, nil
		}
		return nil, err.FsIo(pkgName, "list", s.layout.ObjectsDir(), derr)
	}

	var hashes []objects.Hash
	for _, entry := range entries {
		if !entry.IsDir() || len(entry.Name()) != 2 {
			continue
		}
		prefix := entry.Name()

		files, derr := s.fs.ReadDir(s.layout.LooseDir(prefix))
		if derr != nil {
			return nil, err.FsIo(pkgName, "list", s.layout.LooseDir(prefix), derr)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			h, herr := objects.HashFromHex(prefix + f.Name())
			if herr != nil {
				continue // foreign file in the fan-out directory
			}
			hashes = append(hashes, h)
		}
	}
	return hashes, nil
}

// Read decodes the object stored under the digest.
func (s *Store) Read(h objects.Hash) (objects.Object, error) {
	kind, payload, rerr := s.ReadInflated(h)
	if rerr != nil {
		return nil, rerr
	}

	obj, derr := objects.Decode(kind, payload)
	if derr != nil {
		return nil, err.New(pkgName, err.CodeDecode, "read", h.Hex(), derr)
	}
	return obj, nil
}

// ReadInflated returns the object's kind and payload without decoding it
// into a typed object.
func (s *Store) ReadInflated(h objects.Hash) (objects.Kind, []byte, error) {
	f, kind, size, zr, rerr := s.openInflated(h)
	if rerr != nil {
		return "", nil, rerr
	}
	defer f.Close()
	defer zr.Close()

	payload := make([]byte, size)
	if _, ferr := io.ReadFull(zr, payload); ferr != nil {
		return "", nil, err.New(pkgName, err.CodeInflate, "read", h.Hex(), ferr)
	}
	return kind, payload, nil
}

// ReadInflatedInto inflates the object payload into buf, which the caller
// sizes from a prior Size call (typical when the object serves as a delta
// base). Returns the kind and payload length.
func (s *Store) ReadInflatedInto(buf []byte, h objects.Hash) (objects.Kind, int, error) {
	f, kind, size, zr, rerr := s.openInflated(h)
	if rerr != nil {
		return "", 0, rerr
	}
	defer f.Close()
	defer zr.Close()

	if int64(len(buf)) < size {
		return "", 0, err.New(pkgName, err.CodeDecode, "read_into",
			fmt.Sprintf("buffer too small: %d < %d", len(buf), size), nil)
	}
	if _, ferr := io.ReadFull(zr, buf[:size]); ferr != nil {
		return "", 0, err.New(pkgName, err.CodeInflate, "read_into", h.Hex(), ferr)
	}
	return kind, int(size), nil
}

// Size returns the object's inflated payload length. Only the canonical
// header is inflated; the body is never touched.
func (s *Store) Size(h objects.Hash) (int64, error) {
	f, _, size, zr, rerr := s.openInflated(h)
	if rerr != nil {
		return 0, rerr
	}
	zr.Close()
	f.Close()
	return size, nil
}

// Kind returns the object's kind from the canonical header.
func (s *Store) Kind(h objects.Hash) (objects.Kind, error) {
	f, kind, _, zr, rerr := s.openInflated(h)
	if rerr != nil {
		return "", rerr
	}
	zr.Close()
	f.Close()
	return kind, nil
}

// Write stores an object, returning its digest and the number of compressed
// bytes written. Writing an object that already exists is a no-op.
func (s *Store) Write(obj objects.Object) (objects.Hash, int64, error) {
	canonical, serr := objects.Canonical(obj)
	if serr != nil {
		return objects.Hash{}, 0, err.New(pkgName, err.CodeDecode, "write", "serialize object", serr)
	}
	return s.writeCanonical(canonical)
}

// WriteInflated stores raw canonical content given its kind and payload.
func (s *Store) WriteInflated(kind objects.Kind, payload []byte) (objects.Hash, error) {
	var buf bytes.Buffer
	buf.Write(objects.Header(kind, int64(len(payload))))
	buf.Write(payload)

	h, _, werr := s.writeCanonical(buf.Bytes())
	return h, werr
}

func (s *Store) writeCanonical(canonical []byte) (objects.Hash, int64, error) {
	h := objects.SumCanonical(canonical)

	p, perr := s.path(h)
	if perr != nil {
		return objects.Hash{}, 0, perr
	}

	// Content addressing makes writes idempotent: same digest, same bytes.
	if ok, _ := fsys.Exists(s.fs, p); ok {
		return h, 0, nil
	}

	var compressed bytes.Buffer
	n, cerr := s.codec.Compress(&compressed, canonical)
	if cerr != nil {
		return objects.Hash{}, 0, err.New(pkgName, err.CodeDeflate, "write", h.Hex(), cerr)
	}

	if werr := fsys.AtomicWrite(s.fs, p, compressed.Bytes(), 0444); werr != nil {
		return objects.Hash{}, 0, err.FsIo(pkgName, "write", p, werr)
	}
	return h, int64(n), nil
}

// openInflated opens the object file and parses the canonical header off the
// inflating stream. On success the caller owns both the file and the stream
// positioned at the payload.
func (s *Store) openInflated(h objects.Hash) (fsys.File, objects.Kind, int64, io.ReadCloser, error) {
	p, perr := s.path(h)
	if perr != nil {
		return nil, "", 0, nil, perr
	}

	f, oerr := s.fs.Open(p)
	if oerr != nil {
		if os.IsNotExist(oerr) {
			return nil, "", 0, nil, err.New(pkgName, err.CodeNotFound, "read", h.Hex(), nil)
		}
		return nil, "", 0, nil, err.FsIo(pkgName, "open", p, oerr)
	}

	zr, zerr := s.codec.NewReader(f)
	if zerr != nil {
		f.Close()
		return nil, "", 0, nil, err.New(pkgName, err.CodeInflate, "open", h.Hex(), zerr)
	}

	kind, size, herr := readHeader(zr)
	if herr != nil {
		zr.Close()
		f.Close()
		return nil, "", 0, nil, err.New(pkgName, err.CodeDecode, "header", h.Hex(), herr)
	}
	return f, kind, size, zr, nil
}

// readHeader consumes "<kind> <size>\0" from an inflating stream, one byte
// at a time so nothing past the header is pulled through the codec.
func readHeader(r io.Reader) (objects.Kind, int64, error) {
	var header [maxHeaderLen]byte
	var one [1]byte

	for i := 0; i < maxHeaderLen; i++ {
		if _, rerr := io.ReadFull(r, one[:]); rerr != nil {
			return "", 0, fmt.Errorf("truncated object header: %w", rerr)
		}
		header[i] = one[0]
		if one[0] == objects.NullByte {
			kind, size, _, perr := objects.ParseHeader(header[:i+1])
			return kind, size, perr
		}
	}
	return "", 0, fmt.Errorf("object header longer than %d bytes", maxHeaderLen)
}
