package pack

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"sort"

	"github.com/samoht/gitobj/pkg/codec"
	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/objects"
)

const (
	// DefaultWindow is the planner's candidate window per object.
	DefaultWindow = 10

	// DefaultDepth caps planned delta chains. Kept well under the read
	// side's reconstruction limit.
	DefaultDepth = 10
)

// InputObject is one object handed to the writer.
type InputObject struct {
	Hash    objects.Hash
	Kind    objects.Kind
	Payload []byte
}

// WrittenEntry reports how one object landed in the produced pack.
type WrittenEntry struct {
	Hash   objects.Hash
	Offset int64
	Kind   EntryKind

	// BaseHash is set for delta entries; for an ofs-delta it is
	// informational, the wire carries the offset distance.
	BaseHash objects.Hash

	CRC uint32
}

// Writer produces a pack v2 from a set of objects, delta-compressing
// against a sliding window of earlier candidates. The output is
// deterministic for a given input set and configuration.
type Writer struct {
	Codec codec.Codec

	// Window is how many prior same-kind objects each object is diffed
	// against. Zero means the default.
	Window int

	// Depth caps delta chain length. Zero means the default.
	Depth int

	// AllowThin permits ref-delta entries against BaseCandidates, which
	// are not themselves written. The resulting pack cannot be read
	// standalone.
	AllowThin bool

	// BaseCandidates are external delta bases, considered only when
	// AllowThin is set.
	BaseCandidates []InputObject
}

// plannedEntry is one object with its chosen encoding.
type plannedEntry struct {
	obj   InputObject
	delta []byte // nil for a plain entry

	base     *plannedEntry // in-pack base
	thinBase objects.Hash  // external base, AllowThin only
	depth    int

	offset int64
}

// WritePack plans and streams a pack to out, returning the pack digest and
// a record per written object in pack order.
func (w *Writer) WritePack(out io.Writer, inputs []InputObject) (objects.Hash, []WrittenEntry, error) {
	for _, in := range inputs {
		if _, kerr := entryKindOf(in.Kind); kerr != nil {
			return objects.Hash{}, nil, err.New(pkgName, err.CodeDeltaPlan, "write_pack",
				in.Hash.Hex(), kerr)
		}
	}

	planned := w.plan(inputs)

	hasher := sha1.New()
	tee := io.MultiWriter(out, hasher)

	var header [HeaderLen]byte
	copy(header[:4], Signature)
	binary.BigEndian.PutUint32(header[4:8], Version)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(planned)))
	if _, werr := tee.Write(header[:]); werr != nil {
		return objects.Hash{}, nil, err.FsIo(pkgName, "write_pack", "", werr)
	}

	offset := int64(HeaderLen)
	written := make([]WrittenEntry, 0, len(planned))
	var entryBuf bytes.Buffer

	for _, p := range planned {
		p.offset = offset
		entryBuf.Reset()

		kind, eerr := w.encodeEntry(&entryBuf, p)
		if eerr != nil {
			return objects.Hash{}, nil, eerr
		}

		raw := entryBuf.Bytes()
		if _, werr := tee.Write(raw); werr != nil {
			return objects.Hash{}, nil, err.FsIo(pkgName, "write_pack", "", werr)
		}

		rec := WrittenEntry{
			Hash:   p.obj.Hash,
			Offset: offset,
			Kind:   kind,
			CRC:    crc32.ChecksumIEEE(raw),
		}
		if p.base != nil {
			rec.BaseHash = p.base.obj.Hash
		} else if !p.thinBase.IsZero() {
			rec.BaseHash = p.thinBase
		}
		written = append(written, rec)
		offset += int64(len(raw))
	}

	sum := hasher.Sum(nil)
	if _, werr := out.Write(sum); werr != nil {
		return objects.Hash{}, nil, err.FsIo(pkgName, "write_pack", "", werr)
	}
	return hashFrom(sum), written, nil
}

// encodeEntry serializes one planned entry: header, delta preamble, zlib
// body.
func (w *Writer) encodeEntry(buf *bytes.Buffer, p *plannedEntry) (EntryKind, error) {
	var kind EntryKind
	var body []byte

	switch {
	case p.delta == nil:
		k, _ := entryKindOf(p.obj.Kind)
		kind = k
		body = p.obj.Payload
	case p.base != nil:
		kind = KindOfsDelta
		body = p.delta
	default:
		kind = KindRefDelta
		body = p.delta
	}

	hdr := appendEntryHeader(nil, kind, int64(len(body)))
	if kind == KindOfsDelta {
		hdr = appendOfsDistance(hdr, p.offset-p.base.offset)
	} else if kind == KindRefDelta {
		hdr = append(hdr, p.thinBase[:]...)
	}
	buf.Write(hdr)

	if _, cerr := w.Codec.Compress(buf, body); cerr != nil {
		return 0, err.New(pkgName, err.CodeDeflate, "write_pack", p.obj.Hash.Hex(), cerr)
	}
	return kind, nil
}

// plan orders the objects and picks a delta encoding for each. Commits and
// tags go first for locality of history walks, then trees largest first,
// then blobs largest first. Each object is diffed against a window of prior
// same-kind entries; the smallest delta wins if it actually saves bytes.
// Equal delta sizes prefer the smaller base payload, then the earlier
// candidate.
func (w *Writer) plan(inputs []InputObject) []*plannedEntry {
	window := w.Window
	if window <= 0 {
		window = DefaultWindow
	}
	depth := w.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}

	ordered := orderForPack(inputs)
	planned := make([]*plannedEntry, 0, len(ordered))
	recent := make(map[objects.Kind][]*plannedEntry)

	for _, in := range ordered {
		p := &plannedEntry{obj: in}

		candidates := recent[in.Kind]
		if len(candidates) > window {
			candidates = candidates[len(candidates)-window:]
		}

		for _, cand := range candidates {
			if cand.depth+1 > depth {
				continue
			}
			d := createDelta(cand.obj.Payload, in.Payload)
			if len(d) >= len(in.Payload) {
				continue
			}
			if p.delta == nil || len(d) < len(p.delta) ||
				(len(d) == len(p.delta) && len(cand.obj.Payload) < len(p.base.obj.Payload)) {
				p.delta = d
				p.base = cand
				p.depth = cand.depth + 1
			}
		}

		if p.delta == nil && w.AllowThin {
			w.planThin(p)
		}

		planned = append(planned, p)
		recent[in.Kind] = append(recent[in.Kind], p)
	}
	return planned
}

// planThin tries the external base candidates for an object that found no
// in-pack base.
func (w *Writer) planThin(p *plannedEntry) {
	baseLen := 0
	for _, cand := range w.BaseCandidates {
		if cand.Kind != p.obj.Kind {
			continue
		}
		d := createDelta(cand.Payload, p.obj.Payload)
		if len(d) >= len(p.obj.Payload) {
			continue
		}
		if p.delta == nil || len(d) < len(p.delta) ||
			(len(d) == len(p.delta) && len(cand.Payload) < baseLen) {
			p.delta = d
			p.base = nil
			p.thinBase = cand.Hash
			p.depth = 1
			baseLen = len(cand.Payload)
		}
	}
}

// orderForPack sorts objects into pack layout order. Within a kind, larger
// payloads come first so they become delta bases, with the digest breaking
// ties.
func orderForPack(inputs []InputObject) []InputObject {
	ordered := make([]InputObject, len(inputs))
	copy(ordered, inputs)

	rank := func(k objects.Kind) int {
		switch k {
		case objects.CommitKind:
			return 0
		case objects.TagKind:
			return 1
		case objects.TreeKind:
			return 2
		default:
			return 3
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := rank(ordered[i].Kind), rank(ordered[j].Kind)
		if ri != rj {
			return ri < rj
		}
		if len(ordered[i].Payload) != len(ordered[j].Payload) {
			return len(ordered[i].Payload) > len(ordered[j].Payload)
		}
		return ordered[i].Hash.Compare(ordered[j].Hash) < 0
	})
	return ordered
}

// Verify rescans a finished pack against its index file: entry structure,
// per-entry CRCs, and the two digests must all line up.
func Verify(data []byte, ix *Index, c codec.Codec) error {
	info, serr := Scan(data, c)
	if serr != nil {
		return serr
	}

	packHash, herr := ix.PackHash()
	if herr != nil {
		return herr
	}
	if packHash != info.PackHash {
		return err.New(pkgName, err.CodeIndexDecode, "verify",
			fmt.Sprintf("index is for pack %s, file is %s", packHash.Hex(), info.PackHash.Hex()), nil)
	}

	entries, eerr := ix.Entries()
	if eerr != nil {
		return eerr
	}
	if len(entries) != len(info.Entries) {
		return err.New(pkgName, err.CodeIndexDecode, "verify",
			fmt.Sprintf("index has %d entries, pack has %d", len(entries), len(info.Entries)), nil)
	}
	for _, ie := range entries {
		pe, ok := info.EntryAt(ie.Offset)
		if !ok {
			return err.New(pkgName, err.CodeIndexDecode, "verify",
				fmt.Sprintf("index offset %d is not an entry boundary", ie.Offset), nil)
		}
		if pe.CRC != ie.CRC {
			return err.New(pkgName, err.CodeIndexDecode, "verify",
				fmt.Sprintf("crc mismatch at offset %d", ie.Offset), nil)
		}
	}
	return nil
}
