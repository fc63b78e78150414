package pack

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/samoht/gitobj/pkg/codec"
	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/objects"
)

// Entry describes one pack entry discovered by Scan. Hash is zero until a
// resolve pass reconstructs the object.
type Entry struct {
	// Hash is the object digest, filled by ResolveHashes.
	Hash objects.Hash

	// Offset is the entry's position from the start of the pack.
	Offset int64

	// DataOffset is where the zlib stream begins, past the entry header.
	DataOffset int64

	// Kind is the on-disk entry kind, deltas included.
	Kind EntryKind

	// Size is the inflated length: the payload for a plain entry, the
	// instruction stream for a delta.
	Size int64

	// BaseOffset is the absolute base position for an ofs-delta entry.
	BaseOffset int64

	// BaseHash is the base digest for a ref-delta entry.
	BaseHash objects.Hash

	// CRC covers the entry's raw bytes, header through compressed data.
	CRC uint32
}

// Info is the structural summary of a scanned pack.
type Info struct {
	// Count is the entry count from the pack header.
	Count uint32

	// Entries holds every entry in offset order.
	Entries []*Entry

	// PackHash is the trailing digest, verified against the content.
	PackHash objects.Hash

	byOffset map[int64]*Entry
}

// EntryAt returns the entry starting at the given offset.
func (info *Info) EntryAt(offset int64) (*Entry, bool) {
	e, ok := info.byOffset[offset]
	return e, ok
}

// Scan walks a complete pack in one pass: header, every entry's header and
// compressed extent, and the trailing digest. It records structure only; no
// object hashes are computed. The zlib streams are inflated to measure their
// compressed extents and check their declared sizes.
func Scan(data []byte, c codec.Codec) (*Info, error) {
	if len(data) < HeaderLen+objects.HashSize {
		return nil, err.New(pkgName, err.CodePackDecode, "scan",
			fmt.Sprintf("pack too short: %d bytes", len(data)), nil)
	}
	if string(data[:4]) != Signature {
		return nil, err.New(pkgName, err.CodePackDecode, "scan", "bad pack signature", nil)
	}
	if v := binary.BigEndian.Uint32(data[4:8]); v != Version {
		return nil, err.New(pkgName, err.CodePackDecode, "scan",
			fmt.Sprintf("unsupported pack version %d", v), nil)
	}

	trailerAt := int64(len(data) - objects.HashSize)
	sum := sha1.Sum(data[:trailerAt])
	if !bytes.Equal(sum[:], data[trailerAt:]) {
		return nil, err.New(pkgName, err.CodePackDecode, "scan", "pack checksum mismatch", nil)
	}

	info := &Info{
		Count:    binary.BigEndian.Uint32(data[8:12]),
		PackHash: hashFrom(data[trailerAt:]),
		byOffset: make(map[int64]*Entry),
	}

	pos := int64(HeaderLen)
	for i := uint32(0); i < info.Count; i++ {
		if pos >= trailerAt {
			return nil, err.New(pkgName, err.CodePackDecode, "scan",
				fmt.Sprintf("pack truncated after %d of %d entries", i, info.Count), nil)
		}

		entry, next, serr := scanEntry(data[:trailerAt], pos, c)
		if serr != nil {
			return nil, serr
		}

		if entry.Kind == KindOfsDelta {
			if _, ok := info.byOffset[entry.BaseOffset]; !ok {
				return nil, err.New(pkgName, err.CodePackDecode, "scan",
					fmt.Sprintf("ofs-delta at %d: base offset %d is not an entry boundary",
						entry.Offset, entry.BaseOffset), nil)
			}
		}

		info.Entries = append(info.Entries, entry)
		info.byOffset[entry.Offset] = entry
		pos = next
	}

	if pos != trailerAt {
		return nil, err.New(pkgName, err.CodePackDecode, "scan",
			fmt.Sprintf("%d trailing bytes after last entry", trailerAt-pos), nil)
	}
	return info, nil
}

// scanEntry parses one entry starting at pos and returns it with the offset
// of the next entry. The compressed extent is discovered by inflating through
// a byte-granular reader, which stops exactly at the stream's end.
func scanEntry(data []byte, pos int64, c codec.Codec) (*Entry, int64, error) {
	entry := &Entry{Offset: pos}

	br := bytes.NewReader(data[pos:])
	kind, size, herr := readEntryHeader(br)
	if herr != nil {
		return nil, 0, err.New(pkgName, err.CodePackDecode, "scan",
			fmt.Sprintf("entry at %d", pos), herr)
	}
	entry.Kind = kind
	entry.Size = size

	switch kind {
	case KindCommit, KindTree, KindBlob, KindTag:
	case KindOfsDelta:
		dist, derr := readOfsDistance(br)
		if derr != nil {
			return nil, 0, err.New(pkgName, err.CodePackDecode, "scan",
				fmt.Sprintf("entry at %d", pos), derr)
		}
		entry.BaseOffset = pos - dist
		if dist <= 0 || entry.BaseOffset < HeaderLen {
			return nil, 0, err.New(pkgName, err.CodePackDecode, "scan",
				fmt.Sprintf("ofs-delta at %d: distance %d points before the first entry", pos, dist), nil)
		}
	case KindRefDelta:
		var base [objects.HashSize]byte
		if _, rerr := io.ReadFull(br, base[:]); rerr != nil {
			return nil, 0, err.New(pkgName, err.CodePackDecode, "scan",
				fmt.Sprintf("ref-delta at %d: truncated base digest", pos), rerr)
		}
		entry.BaseHash = hashFrom(base[:])
	default:
		return nil, 0, err.New(pkgName, err.CodePackDecode, "scan",
			fmt.Sprintf("entry at %d: invalid kind %d", pos, byte(kind)), nil)
	}

	entry.DataOffset = pos + int64(len(data[pos:])-br.Len())

	zr, zerr := c.NewReader(br)
	if zerr != nil {
		return nil, 0, err.New(pkgName, err.CodeInflate, "scan",
			fmt.Sprintf("entry at %d", pos), zerr)
	}
	inflated, cerr := io.Copy(io.Discard, zr)
	zr.Close()
	if cerr != nil {
		return nil, 0, err.New(pkgName, err.CodeInflate, "scan",
			fmt.Sprintf("entry at %d", pos), cerr)
	}
	if inflated != size {
		return nil, 0, err.New(pkgName, err.CodePackDecode, "scan",
			fmt.Sprintf("entry at %d: header says %d bytes, stream has %d", pos, size, inflated), nil)
	}

	// br reads bytewise, so its position after zlib EOF is the exact end of
	// the compressed stream.
	next := pos + int64(len(data[pos:])-br.Len())
	entry.CRC = crc32.ChecksumIEEE(data[pos:next])
	return entry, next, nil
}

// BaseReader resolves an out-of-pack delta base by digest.
type BaseReader func(objects.Hash) (objects.Kind, []byte, error)

// ResolveHashes computes the object digest of every scanned entry by
// reconstructing each one. The pack has no digest of its own yet, so delta
// instruction streams inflate through the arena's shared scratch buffer.
// Ref-delta bases absent from the pack are fetched through readBase; a nil
// readBase makes such entries fail. Ref-delta entries whose base appears
// later in the pack are retried once the base's digest is known, so
// resolution runs to a fix point.
func ResolveHashes(data []byte, info *Info, c codec.Codec, arena *Arena, readBase BaseReader) error {
	r := &hashResolver{
		data:     data,
		info:     info,
		codec:    c,
		arena:    arena,
		readBase: readBase,
		byHash:   make(map[objects.Hash]*Entry, len(info.Entries)),
		cache:    make(map[int64]resolved),
	}

	pending := info.Entries
	for len(pending) > 0 {
		var stuck []*Entry
		var firstErr error

		for _, entry := range pending {
			kind, payload, rerr := r.materialize(entry, 0)
			if rerr != nil {
				if isMissingBase(rerr) {
					stuck = append(stuck, entry)
					if firstErr == nil {
						firstErr = rerr
					}
					continue
				}
				return rerr
			}
			entry.Hash = objects.ComputeHash(kind, payload)
			r.byHash[entry.Hash] = entry
		}

		if len(stuck) == len(pending) {
			return firstErr
		}
		pending = stuck
	}
	return nil
}

// isMissingBase reports whether an error is a missing ref-delta base, as
// opposed to structural corruption.
func isMissingBase(e error) bool {
	var be *err.Error
	return errors.As(e, &be) && be.GetContext("missing_base") != nil
}

type resolved struct {
	kind    objects.Kind
	payload []byte
}

type hashResolver struct {
	data     []byte
	info     *Info
	codec    codec.Codec
	arena    *Arena
	readBase BaseReader
	byHash   map[objects.Hash]*Entry
	cache    map[int64]resolved
}

func (r *hashResolver) materialize(entry *Entry, depth int) (objects.Kind, []byte, error) {
	if depth > maxDeltaDepth {
		return "", nil, err.New(pkgName, err.CodePackDecode, "resolve",
			fmt.Sprintf("delta chain at %d exceeds depth %d", entry.Offset, maxDeltaDepth), nil)
	}
	if got, ok := r.cache[entry.Offset]; ok {
		return got.kind, got.payload, nil
	}

	var kind objects.Kind
	var payload []byte
	switch entry.Kind {
	case KindOfsDelta:
		base, ok := r.info.byOffset[entry.BaseOffset]
		if !ok {
			return "", nil, err.New(pkgName, err.CodePackDecode, "resolve",
				fmt.Sprintf("ofs-delta at %d: no entry at base offset %d", entry.Offset, entry.BaseOffset), nil)
		}
		baseKind, basePayload, berr := r.materialize(base, depth+1)
		if berr != nil {
			return "", nil, berr
		}
		applied, aerr := r.applyScratch(entry, basePayload)
		if aerr != nil {
			return "", nil, err.New(pkgName, err.CodePackDecode, "resolve",
				fmt.Sprintf("ofs-delta at %d", entry.Offset), aerr)
		}
		kind, payload = baseKind, applied

	case KindRefDelta:
		baseKind, basePayload, berr := r.refBase(entry, depth)
		if berr != nil {
			return "", nil, berr
		}
		applied, aerr := r.applyScratch(entry, basePayload)
		if aerr != nil {
			return "", nil, err.New(pkgName, err.CodePackDecode, "resolve",
				fmt.Sprintf("ref-delta at %d", entry.Offset), aerr)
		}
		kind, payload = baseKind, applied

	default:
		raw, ierr := r.inflate(entry)
		if ierr != nil {
			return "", nil, ierr
		}
		k, ok := entry.Kind.ObjectKind()
		if !ok {
			return "", nil, err.New(pkgName, err.CodePackDecode, "resolve",
				fmt.Sprintf("entry at %d: invalid kind %d", entry.Offset, byte(entry.Kind)), nil)
		}
		kind, payload = k, raw
	}

	r.cache[entry.Offset] = resolved{kind: kind, payload: payload}
	return kind, payload, nil
}

// applyScratch inflates a delta's instruction stream into the shared scratch
// buffer and applies it against the base. The stream is dead once applied,
// so nothing allocated here outlives the call. The base must already be
// materialized; the scratch buffer's lock does not nest.
func (r *hashResolver) applyScratch(entry *Entry, basePayload []byte) ([]byte, error) {
	scratch, release := r.arena.GetUnrecorded(int(entry.Size))
	defer release()

	if derr := r.codec.Decompress(scratch, bytes.NewReader(r.data[entry.DataOffset:])); derr != nil {
		return nil, err.New(pkgName, err.CodeInflate, "resolve",
			fmt.Sprintf("entry at %d", entry.Offset), derr)
	}
	return applyDelta(basePayload, scratch)
}

func (r *hashResolver) refBase(entry *Entry, depth int) (objects.Kind, []byte, error) {
	if base, ok := r.byHash[entry.BaseHash]; ok {
		return r.materialize(base, depth+1)
	}
	if r.readBase != nil {
		kind, payload, berr := r.readBase(entry.BaseHash)
		if berr == nil {
			return kind, payload, nil
		}
	}
	return "", nil, err.New(pkgName, err.CodePackDecode, "resolve",
		fmt.Sprintf("ref-delta at %d: missing base %s", entry.Offset, entry.BaseHash.Hex()), nil).
		WithContext("missing_base", entry.BaseHash.Hex())
}

func (r *hashResolver) inflate(entry *Entry) ([]byte, error) {
	buf := make([]byte, entry.Size)
	if derr := r.codec.Decompress(buf, bytes.NewReader(r.data[entry.DataOffset:])); derr != nil {
		return nil, err.New(pkgName, err.CodeInflate, "resolve",
			fmt.Sprintf("entry at %d", entry.Offset), derr)
	}
	return buf, nil
}
