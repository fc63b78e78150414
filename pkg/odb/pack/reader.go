package pack

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/samoht/gitobj/pkg/cache"
	"github.com/samoht/gitobj/pkg/codec"
	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/fsys"
	"github.com/samoht/gitobj/pkg/objects"
)

// BaseKey identifies a reconstructed entry in the shared base cache.
type BaseKey struct {
	Pack   objects.Hash
	Offset int64
}

// CachedBase is a reconstructed entry kept for reuse by later delta chains.
type CachedBase struct {
	Kind    objects.Kind
	Payload []byte
}

// Weigh reports a cached base's cost for the byte-budgeted cache.
func (b CachedBase) Weigh() int64 {
	return int64(len(b.Payload)) + objects.HashSize
}

// Reader serves objects out of one pack file. The file handle opens lazily
// and can be released and reopened, so handle-cache eviction never breaks a
// reader. Safe for concurrent use; reads go through pread.
type Reader struct {
	fs       fsys.FS
	packPath string
	hash     objects.Hash
	idx      *Index
	codec    codec.Codec
	arena    *Arena
	bases    *cache.Weighted[BaseKey, CachedBase]
	readBase BaseReader

	mu       sync.Mutex
	f        fsys.File
	fileSize int64
}

// NewReader creates a reader over a pack file and its index. readBase
// resolves ref-delta bases that live outside this pack; nil makes such
// entries fail with a missing-base error.
func NewReader(fs fsys.FS, packPath string, hash objects.Hash, idx *Index,
	c codec.Codec, arena *Arena, bases *cache.Weighted[BaseKey, CachedBase],
	readBase BaseReader) *Reader {
	return &Reader{
		fs:       fs,
		packPath: packPath,
		hash:     hash,
		idx:      idx,
		codec:    c,
		arena:    arena,
		bases:    bases,
		readBase: readBase,
	}
}

// Hash returns the pack digest.
func (r *Reader) Hash() objects.Hash { return r.hash }

// Index returns the pack's index.
func (r *Reader) Index() *Index { return r.idx }

// Path returns the pack file path.
func (r *Reader) Path() string { return r.packPath }

// Has reports whether the pack contains the object.
func (r *Reader) Has(h objects.Hash) (bool, error) {
	_, _, ok, lerr := r.idx.Lookup(h)
	return ok, lerr
}

// Read reconstructs and decodes an object.
func (r *Reader) Read(h objects.Hash) (objects.Object, error) {
	kind, payload, rerr := r.ReadRaw(h)
	if rerr != nil {
		return nil, rerr
	}
	obj, derr := objects.Decode(kind, payload)
	if derr != nil {
		return nil, err.New(pkgName, err.CodeDecode, "read", h.Hex(), derr)
	}
	return obj, nil
}

// ReadRaw reconstructs an object's kind and payload, following delta chains.
func (r *Reader) ReadRaw(h objects.Hash) (objects.Kind, []byte, error) {
	offset, _, ok, lerr := r.idx.Lookup(h)
	if lerr != nil {
		return "", nil, lerr
	}
	if !ok {
		return "", nil, err.New(pkgName, err.CodeNotFound, "read", h.Hex(), nil)
	}
	return r.readAt(offset, 0)
}

// ReadRawInto reconstructs an object into a caller-supplied buffer and
// returns its kind and payload length.
func (r *Reader) ReadRawInto(buf []byte, h objects.Hash) (objects.Kind, int, error) {
	offset, _, ok, lerr := r.idx.Lookup(h)
	if lerr != nil {
		return "", 0, lerr
	}
	if !ok {
		return "", 0, err.New(pkgName, err.CodeNotFound, "read_into", h.Hex(), nil)
	}

	hdr, perr := r.parseEntryAt(offset)
	if perr != nil {
		return "", 0, perr
	}

	if !hdr.kind.IsDelta() {
		if int64(len(buf)) < hdr.size {
			return "", 0, err.New(pkgName, err.CodeDecode, "read_into",
				fmt.Sprintf("buffer too small: %d < %d", len(buf), hdr.size), nil)
		}
		kind, _ := hdr.kind.ObjectKind()
		if ierr := r.inflateAt(hdr.dataOffset, buf[:hdr.size]); ierr != nil {
			return "", 0, ierr
		}
		return kind, int(hdr.size), nil
	}

	kind, basePayload, delta, release, derr := r.deltaParts(offset, hdr)
	if derr != nil {
		return "", 0, derr
	}
	defer release()

	n, aerr := applyDeltaInto(buf, basePayload, delta)
	if aerr != nil {
		return "", 0, err.New(pkgName, err.CodePackDecode, "read_into",
			fmt.Sprintf("entry at %d", offset), aerr)
	}
	return kind, n, nil
}

// Size returns the object's reconstructed payload length. Plain entries
// answer from the header; deltas answer from the instruction stream's
// result-size varint, never a full reconstruction.
func (r *Reader) Size(h objects.Hash) (int64, error) {
	offset, _, ok, lerr := r.idx.Lookup(h)
	if lerr != nil {
		return 0, lerr
	}
	if !ok {
		return 0, err.New(pkgName, err.CodeNotFound, "size", h.Hex(), nil)
	}

	hdr, perr := r.parseEntryAt(offset)
	if perr != nil {
		return 0, perr
	}
	if !hdr.kind.IsDelta() {
		return hdr.size, nil
	}

	zr, f, zerr := r.inflatingAt(hdr.dataOffset)
	if zerr != nil {
		return 0, zerr
	}
	defer f()
	_, resultSize, serr := readDeltaSizesFrom(zr)
	if serr != nil {
		return 0, err.New(pkgName, err.CodePackDecode, "size",
			fmt.Sprintf("entry at %d", offset), serr)
	}
	return resultSize, nil
}

// Kind returns the object's kind, walking delta chains without
// reconstructing payloads.
func (r *Reader) Kind(h objects.Hash) (objects.Kind, error) {
	offset, _, ok, lerr := r.idx.Lookup(h)
	if lerr != nil {
		return "", lerr
	}
	if !ok {
		return "", err.New(pkgName, err.CodeNotFound, "kind", h.Hex(), nil)
	}

	for depth := 0; ; depth++ {
		if depth > maxDeltaDepth {
			return "", r.cycleErr("kind", offset)
		}

		hdr, perr := r.parseEntryAt(offset)
		if perr != nil {
			return "", perr
		}

		switch hdr.kind {
		case KindOfsDelta:
			offset = hdr.baseOffset
		case KindRefDelta:
			if baseOff, _, found, berr := r.idx.Lookup(hdr.baseHash); berr != nil {
				return "", berr
			} else if found {
				offset = baseOff
				continue
			}
			if r.readBase != nil {
				if kind, _, berr := r.readBase(hdr.baseHash); berr == nil {
					return kind, nil
				}
			}
			return "", r.missingBaseErr("kind", offset, hdr.baseHash)
		default:
			kind, valid := hdr.kind.ObjectKind()
			if !valid {
				return "", err.New(pkgName, err.CodePackDecode, "kind",
					fmt.Sprintf("entry at %d: invalid kind %d", offset, byte(hdr.kind)), nil)
			}
			return kind, nil
		}
	}
}

// Close releases the file handle. The reader reopens it on the next read.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f != nil {
		cerr := r.f.Close()
		r.f = nil
		return cerr
	}
	return nil
}

// entryHeader is a parsed in-pack entry header.
type entryHeader struct {
	kind       EntryKind
	size       int64
	baseOffset int64
	baseHash   objects.Hash
	dataOffset int64
}

// readAt reconstructs the entry at offset. Intermediate bases land in the
// shared cache; the top of a chain does not, the caller's own cache covers
// that.
func (r *Reader) readAt(offset int64, depth int) (objects.Kind, []byte, error) {
	if depth > maxDeltaDepth {
		return "", nil, r.cycleErr("read", offset)
	}

	key := BaseKey{Pack: r.hash, Offset: offset}
	if got, ok := r.bases.Get(key); ok {
		return got.Kind, got.Payload, nil
	}

	hdr, perr := r.parseEntryAt(offset)
	if perr != nil {
		return "", nil, perr
	}

	var kind objects.Kind
	var payload []byte

	if !hdr.kind.IsDelta() {
		k, valid := hdr.kind.ObjectKind()
		if !valid {
			return "", nil, err.New(pkgName, err.CodePackDecode, "read",
				fmt.Sprintf("entry at %d: invalid kind %d", offset, byte(hdr.kind)), nil)
		}
		payload = make([]byte, hdr.size)
		if ierr := r.inflateAt(hdr.dataOffset, payload); ierr != nil {
			return "", nil, ierr
		}
		kind = k
	} else {
		var basePayload []byte
		var berr error
		switch hdr.kind {
		case KindOfsDelta:
			if hdr.baseOffset < HeaderLen || hdr.baseOffset >= offset {
				return "", nil, err.New(pkgName, err.CodePackDecode, "read",
					fmt.Sprintf("ofs-delta at %d: bad base offset %d", offset, hdr.baseOffset), nil)
			}
			kind, basePayload, berr = r.readAt(hdr.baseOffset, depth+1)
		case KindRefDelta:
			kind, basePayload, berr = r.refBase(hdr, offset, depth)
		}
		if berr != nil {
			return "", nil, berr
		}

		delta, release := r.arena.Get(r.hash, int(hdr.size))
		ierr := r.inflateAt(hdr.dataOffset, delta)
		if ierr != nil {
			release()
			return "", nil, ierr
		}
		payload, berr = applyDelta(basePayload, delta)
		release()
		if berr != nil {
			return "", nil, err.New(pkgName, err.CodePackDecode, "read",
				fmt.Sprintf("entry at %d", offset), berr)
		}
	}

	if depth > 0 {
		r.bases.Add(key, CachedBase{Kind: kind, Payload: payload})
	}
	return kind, payload, nil
}

// refBase resolves a ref-delta base: same pack first, then the out-of-pack
// fallback.
func (r *Reader) refBase(hdr entryHeader, offset int64, depth int) (objects.Kind, []byte, error) {
	if baseOff, _, found, lerr := r.idx.Lookup(hdr.baseHash); lerr != nil {
		return "", nil, lerr
	} else if found {
		return r.readAt(baseOff, depth+1)
	}
	if r.readBase != nil {
		if kind, payload, berr := r.readBase(hdr.baseHash); berr == nil {
			return kind, payload, nil
		}
	}
	return "", nil, r.missingBaseErr("read", offset, hdr.baseHash)
}

// deltaParts gathers everything needed to apply a delta entry: the resolved
// base and the inflated instruction stream in an arena buffer. The caller
// must invoke release. A delta result's kind is its base's kind.
func (r *Reader) deltaParts(offset int64, hdr entryHeader) (kind objects.Kind,
	basePayload, delta []byte, release func(), derr error) {
	noop := func() {}

	switch hdr.kind {
	case KindOfsDelta:
		if hdr.baseOffset < HeaderLen || hdr.baseOffset >= offset {
			return "", nil, nil, noop, err.New(pkgName, err.CodePackDecode, "read",
				fmt.Sprintf("ofs-delta at %d: bad base offset %d", offset, hdr.baseOffset), nil)
		}
		kind, basePayload, derr = r.readAt(hdr.baseOffset, 1)
	case KindRefDelta:
		kind, basePayload, derr = r.refBase(hdr, offset, 0)
	}
	if derr != nil {
		return "", nil, nil, noop, derr
	}

	delta, release = r.arena.Get(r.hash, int(hdr.size))
	if ierr := r.inflateAt(hdr.dataOffset, delta); ierr != nil {
		release()
		return "", nil, nil, noop, ierr
	}
	return kind, basePayload, delta, release, nil
}

// file opens the pack lazily. Reads use pread through the ReaderAt, so one
// handle serves concurrent readers.
func (r *Reader) file() (fsys.File, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		f, oerr := r.fs.Open(r.packPath)
		if oerr != nil {
			return nil, 0, err.FsIo(pkgName, "open_pack", r.packPath, oerr)
		}
		info, serr := r.fs.Stat(r.packPath)
		if serr != nil {
			f.Close()
			return nil, 0, err.FsIo(pkgName, "open_pack", r.packPath, serr)
		}
		r.f = f
		r.fileSize = info.Size()
	}
	return r.f, r.fileSize, nil
}

// parseEntryAt reads an entry header, counting consumed bytes so the start
// of the compressed data is known exactly.
func (r *Reader) parseEntryAt(offset int64) (entryHeader, error) {
	f, fileSize, ferr := r.file()
	if ferr != nil {
		return entryHeader{}, ferr
	}
	if offset < HeaderLen || offset >= fileSize-objects.HashSize {
		return entryHeader{}, err.New(pkgName, err.CodePackDecode, "read",
			fmt.Sprintf("offset %d outside pack body", offset), nil)
	}

	bc := &byteCounter{r: io.NewSectionReader(f, offset, fileSize-offset)}
	kind, size, herr := readEntryHeader(bc)
	if herr != nil {
		return entryHeader{}, err.New(pkgName, err.CodePackDecode, "read",
			fmt.Sprintf("entry at %d", offset), herr)
	}

	hdr := entryHeader{kind: kind, size: size}
	switch kind {
	case KindOfsDelta:
		dist, derr := readOfsDistance(bc)
		if derr != nil {
			return entryHeader{}, err.New(pkgName, err.CodePackDecode, "read",
				fmt.Sprintf("entry at %d", offset), derr)
		}
		hdr.baseOffset = offset - dist
	case KindRefDelta:
		var base [objects.HashSize]byte
		if _, rerr := io.ReadFull(bc, base[:]); rerr != nil {
			return entryHeader{}, err.New(pkgName, err.CodePackDecode, "read",
				fmt.Sprintf("ref-delta at %d: truncated base digest", offset), rerr)
		}
		hdr.baseHash = hashFrom(base[:])
	}

	hdr.dataOffset = offset + bc.n
	return hdr, nil
}

// inflateAt fills dst from the zlib stream starting at off.
func (r *Reader) inflateAt(off int64, dst []byte) error {
	f, fileSize, ferr := r.file()
	if ferr != nil {
		return ferr
	}

	br := bufio.NewReader(io.NewSectionReader(f, off, fileSize-off))
	if derr := r.codec.Decompress(dst, br); derr != nil {
		return err.New(pkgName, err.CodeInflate, "read",
			fmt.Sprintf("stream at %d", off), derr)
	}
	return nil
}

// inflatingAt opens an inflating stream at off. The returned func closes it.
func (r *Reader) inflatingAt(off int64) (io.Reader, func(), error) {
	f, fileSize, ferr := r.file()
	if ferr != nil {
		return nil, nil, ferr
	}

	br := bufio.NewReader(io.NewSectionReader(f, off, fileSize-off))
	zr, zerr := r.codec.NewReader(br)
	if zerr != nil {
		return nil, nil, err.New(pkgName, err.CodeInflate, "read",
			fmt.Sprintf("stream at %d", off), zerr)
	}
	return zr, func() { zr.Close() }, nil
}

func (r *Reader) cycleErr(op string, offset int64) error {
	return err.New(pkgName, err.CodePackDecode, op,
		fmt.Sprintf("delta chain at %d exceeds depth %d", offset, maxDeltaDepth), nil)
}

func (r *Reader) missingBaseErr(op string, offset int64, base objects.Hash) error {
	return err.New(pkgName, err.CodePackDecode, op,
		fmt.Sprintf("ref-delta at %d: missing base %s", offset, base.Hex()), nil).
		WithContext("missing_base", base.Hex())
}

// byteCounter reads one byte at a time and tracks how many were consumed.
type byteCounter struct {
	r io.Reader
	n int64
}

func (b *byteCounter) ReadByte() (byte, error) {
	var one [1]byte
	if _, rerr := io.ReadFull(b.r, one[:]); rerr != nil {
		return 0, rerr
	}
	b.n++
	return one[0], nil
}

func (b *byteCounter) Read(p []byte) (int, error) {
	n, rerr := b.r.Read(p)
	b.n += int64(n)
	return n, rerr
}
