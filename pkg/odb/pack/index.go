package pack

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/fsys"
	"github.com/samoht/gitobj/pkg/objects"
)

// idx v2 layout constants.
var idxMagic = []byte{0xff, 0x74, 0x4f, 0x63}

const (
	idxVersion   = 2
	idxHeaderLen = 8
	fanoutLen    = 256 * 4

	// largeOffsetFlag marks a 32-bit offset slot that spills into the
	// 64-bit table.
	largeOffsetFlag = 0x80000000

	// maxSmallOffset is the largest pack offset representable without a
	// spill slot.
	maxSmallOffset = 0x7fffffff
)

// IndexEntry is one record of a pack index: a digest, its pack offset, and
// the CRC of its raw pack bytes.
type IndexEntry struct {
	Hash   objects.Hash
	Offset int64
	CRC    uint32
}

// Index reads an idx v2 file. The file is mapped lazily on first use and can
// be released and remapped, so an evicted handle heals on the next lookup.
// Safe for concurrent use.
type Index struct {
	fs   fsys.FS
	path string

	mu     sync.Mutex
	region fsys.Region
	data   []byte
	fanout [256]uint32
	count  int

	namesAt int
	crcsAt  int
	offsAt  int
	spillAt int

	packHash objects.Hash
	idxHash  objects.Hash
}

// OpenIndex creates a lazy index over the given file. The file is not
// touched until the first lookup.
func OpenIndex(fs fsys.FS, path string) *Index {
	return &Index{fs: fs, path: path}
}

// ensure maps and validates the file. Callers hold ix.mu.
func (ix *Index) ensure() error {
	if ix.data != nil {
		return nil
	}

	region, merr := ix.fs.Map(ix.path, 0, -1)
	if merr != nil {
		return err.FsIo(pkgName, "open_index", ix.path, merr)
	}
	data := region.Bytes()

	fail := func(msg string) error {
		region.Close()
		return err.New(pkgName, err.CodeIndexDecode, "open_index", msg, nil).
			WithContext("path", ix.path)
	}

	if len(data) < idxHeaderLen+fanoutLen+2*objects.HashSize {
		return fail(fmt.Sprintf("index too short: %d bytes", len(data)))
	}
	if !bytes.Equal(data[:4], idxMagic) {
		return fail("bad index magic")
	}
	if v := binary.BigEndian.Uint32(data[4:8]); v != idxVersion {
		return fail(fmt.Sprintf("unsupported index version %d", v))
	}

	var fanout [256]uint32
	for i := 0; i < 256; i++ {
		fanout[i] = binary.BigEndian.Uint32(data[idxHeaderLen+4*i:])
		if i > 0 && fanout[i] < fanout[i-1] {
			return fail("fan-out table is not monotonic")
		}
	}
	count := int(fanout[255])

	namesAt := idxHeaderLen + fanoutLen
	crcsAt := namesAt + count*objects.HashSize
	offsAt := crcsAt + count*4
	spillAt := offsAt + count*4

	// The spill table length is whatever sits between the 32-bit offsets
	// and the two trailing digests.
	tail := len(data) - 2*objects.HashSize
	if tail < spillAt || (tail-spillAt)%8 != 0 {
		return fail("index length inconsistent with entry count")
	}

	sum := sha1.Sum(data[:len(data)-objects.HashSize])
	if !bytes.Equal(sum[:], data[len(data)-objects.HashSize:]) {
		return fail("index checksum mismatch")
	}

	ix.region = region
	ix.data = data
	ix.fanout = fanout
	ix.count = count
	ix.namesAt = namesAt
	ix.crcsAt = crcsAt
	ix.offsAt = offsAt
	ix.spillAt = spillAt
	ix.packHash = hashFrom(data[tail : tail+objects.HashSize])
	ix.idxHash = hashFrom(data[tail+objects.HashSize:])
	return nil
}

// Count returns the number of indexed objects.
func (ix *Index) Count() (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if e := ix.ensure(); e != nil {
		return 0, e
	}
	return ix.count, nil
}

// PackHash returns the digest of the pack this index describes.
func (ix *Index) PackHash() (objects.Hash, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if e := ix.ensure(); e != nil {
		return objects.Hash{}, e
	}
	return ix.packHash, nil
}

// Lookup finds an object's pack offset and CRC. The fan-out table narrows
// the search to one bucket, then a binary search over the sorted digests.
func (ix *Index) Lookup(h objects.Hash) (offset int64, crc uint32, ok bool, lerr error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if e := ix.ensure(); e != nil {
		return 0, 0, false, e
	}

	bucket := int(h[0])
	lo := 0
	if bucket > 0 {
		lo = int(ix.fanout[bucket-1])
	}
	hi := int(ix.fanout[bucket])

	i := lo + sort.Search(hi-lo, func(i int) bool {
		at := ix.namesAt + (lo+i)*objects.HashSize
		return bytes.Compare(ix.data[at:at+objects.HashSize], h[:]) >= 0
	})
	if i >= hi {
		return 0, 0, false, nil
	}
	at := ix.namesAt + i*objects.HashSize
	if !bytes.Equal(ix.data[at:at+objects.HashSize], h[:]) {
		return 0, 0, false, nil
	}

	off, oerr := ix.offsetAt(i)
	if oerr != nil {
		return 0, 0, false, oerr
	}
	return off, binary.BigEndian.Uint32(ix.data[ix.crcsAt+4*i:]), true, nil
}

// Entries returns every record in digest order.
func (ix *Index) Entries() ([]IndexEntry, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if e := ix.ensure(); e != nil {
		return nil, e
	}

	entries := make([]IndexEntry, ix.count)
	for i := 0; i < ix.count; i++ {
		at := ix.namesAt + i*objects.HashSize
		off, oerr := ix.offsetAt(i)
		if oerr != nil {
			return nil, oerr
		}
		entries[i] = IndexEntry{
			Hash:   hashFrom(ix.data[at : at+objects.HashSize]),
			Offset: off,
			CRC:    binary.BigEndian.Uint32(ix.data[ix.crcsAt+4*i:]),
		}
	}
	return entries, nil
}

// offsetAt decodes the i-th offset slot, following a spill into the 64-bit
// table when the high bit is set. Callers hold ix.mu with the file mapped.
func (ix *Index) offsetAt(i int) (int64, error) {
	slot := binary.BigEndian.Uint32(ix.data[ix.offsAt+4*i:])
	if slot&largeOffsetFlag == 0 {
		return int64(slot), nil
	}

	spill := int(slot &^ largeOffsetFlag)
	at := ix.spillAt + 8*spill
	if at+8 > len(ix.data)-2*objects.HashSize {
		return 0, err.New(pkgName, err.CodeIndexDecode, "lookup",
			fmt.Sprintf("spill slot %d outside the 64-bit offset table", spill), nil).
			WithContext("path", ix.path)
	}
	off := binary.BigEndian.Uint64(ix.data[at:])
	if off > 1<<62 {
		return 0, err.New(pkgName, err.CodeIndexDecode, "lookup",
			fmt.Sprintf("implausible 64-bit offset %d", off), nil).
			WithContext("path", ix.path)
	}
	return int64(off), nil
}

// Release unmaps the file. The next use remaps it.
func (ix *Index) Release() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.region != nil {
		ix.region.Close()
		ix.region = nil
		ix.data = nil
	}
}

// Close releases the mapping. The index must not be used afterwards.
func (ix *Index) Close() error {
	ix.Release()
	return nil
}

// BuildIndex serializes an idx v2 for a scanned and hash-resolved pack.
// Offsets past the 31-bit range spill into the trailing 64-bit table.
func BuildIndex(info *Info) ([]byte, error) {
	entries := make([]*Entry, len(info.Entries))
	copy(entries, info.Entries)
	for _, e := range entries {
		if e.Hash.IsZero() {
			return nil, err.New(pkgName, err.CodeIndexEncode, "build_index",
				fmt.Sprintf("entry at %d has no resolved digest", e.Offset), nil)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Hash.Compare(entries[j].Hash) < 0
	})

	var buf bytes.Buffer
	buf.Write(idxMagic)
	writeU32(&buf, idxVersion)

	var fanout [256]uint32
	for _, e := range entries {
		fanout[e.Hash[0]]++
	}
	var cum uint32
	for i := 0; i < 256; i++ {
		cum += fanout[i]
		writeU32(&buf, cum)
	}

	for _, e := range entries {
		buf.Write(e.Hash[:])
	}
	for _, e := range entries {
		writeU32(&buf, e.CRC)
	}

	var spill []int64
	for _, e := range entries {
		if e.Offset <= maxSmallOffset {
			writeU32(&buf, uint32(e.Offset))
			continue
		}
		writeU32(&buf, largeOffsetFlag|uint32(len(spill)))
		spill = append(spill, e.Offset)
	}
	for _, off := range spill {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(off))
		buf.Write(b[:])
	}

	buf.Write(info.PackHash[:])
	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
