// Package pack implements the many-objects-per-file backend: the pack v2
// wire format, the idx v2 sidecar, delta reconstruction, single-pass stream
// scanning, pack writing with delta planning, and the multi-pack engine that
// aggregates them.
package pack

import (
	"fmt"
	"io"

	"github.com/samoht/gitobj/pkg/objects"
)

const (
	// Signature opens every pack file.
	Signature = "PACK"

	// Version is the only pack version supported.
	Version = 2

	// HeaderLen is the fixed pack header length: signature, version,
	// object count.
	HeaderLen = 12

	// maxDeltaDepth caps delta chain reconstruction. A chain deeper than
	// this is treated as a cycle.
	maxDeltaDepth = 50
)

const pkgName = "pack"

// EntryKind is the on-disk type tag of a pack entry: the four object kinds
// plus the two delta encodings.
type EntryKind byte

const (
	KindCommit   EntryKind = 1
	KindTree     EntryKind = 2
	KindBlob     EntryKind = 3
	KindTag      EntryKind = 4
	KindOfsDelta EntryKind = 6
	KindRefDelta EntryKind = 7
)

// String implements the Stringer interface.
func (k EntryKind) String() string {
	switch k {
	case KindCommit:
		return "commit"
	case KindTree:
		return "tree"
	case KindBlob:
		return "blob"
	case KindTag:
		return "tag"
	case KindOfsDelta:
		return "ofs-delta"
	case KindRefDelta:
		return "ref-delta"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// IsDelta reports whether the entry is delta-encoded.
func (k EntryKind) IsDelta() bool {
	return k == KindOfsDelta || k == KindRefDelta
}

// ObjectKind maps a non-delta entry kind to the object variant.
func (k EntryKind) ObjectKind() (objects.Kind, bool) {
	switch k {
	case KindCommit:
		return objects.CommitKind, true
	case KindTree:
		return objects.TreeKind, true
	case KindBlob:
		return objects.BlobKind, true
	case KindTag:
		return objects.TagKind, true
	default:
		return "", false
	}
}

// entryKindOf maps an object variant to its pack entry kind.
func entryKindOf(kind objects.Kind) (EntryKind, error) {
	switch kind {
	case objects.CommitKind:
		return KindCommit, nil
	case objects.TreeKind:
		return KindTree, nil
	case objects.BlobKind:
		return KindBlob, nil
	case objects.TagKind:
		return KindTag, nil
	default:
		return 0, fmt.Errorf("object kind %q has no pack encoding", kind)
	}
}

// hashFrom copies a 20-byte slice into a digest. Callers guarantee the
// length.
func hashFrom(b []byte) objects.Hash {
	var h objects.Hash
	copy(h[:], b)
	return h
}

// readEntryHeader decodes the variable-length entry header: three type bits
// and the inflated size in 7-bit groups, low bits first.
func readEntryHeader(r io.ByteReader) (EntryKind, int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("entry header: %w", err)
	}

	kind := EntryKind((b >> 4) & 0x07)
	size := int64(b & 0x0f)
	shift := uint(4)

	for b&0x80 != 0 {
		if shift > 62 {
			return 0, 0, fmt.Errorf("entry header size overflow")
		}
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("entry header: %w", err)
		}
		size |= int64(b&0x7f) << shift
		shift += 7
	}

	return kind, size, nil
}

// appendEntryHeader encodes an entry header.
func appendEntryHeader(dst []byte, kind EntryKind, size int64) []byte {
	b := byte(kind)<<4 | byte(size&0x0f)
	size >>= 4
	for size != 0 {
		dst = append(dst, b|0x80)
		b = byte(size & 0x7f)
		size >>= 7
	}
	return append(dst, b)
}

// readOfsDistance decodes the base distance of an ofs-delta entry. The
// encoding is big-endian 7-bit groups with an off-by-one per continuation so
// small distances stay short.
func readOfsDistance(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("ofs-delta distance: %w", err)
	}

	dist := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("ofs-delta distance: %w", err)
		}
		dist = ((dist + 1) << 7) | int64(b&0x7f)
		if dist < 0 {
			return 0, fmt.Errorf("ofs-delta distance overflow")
		}
	}
	return dist, nil
}

// appendOfsDistance encodes an ofs-delta base distance.
func appendOfsDistance(dst []byte, dist int64) []byte {
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(dist & 0x7f)
	dist >>= 7
	for dist > 0 {
		dist--
		i--
		tmp[i] = 0x80 | byte(dist&0x7f)
		dist >>= 7
	}
	return append(dst, tmp[i:]...)
}
