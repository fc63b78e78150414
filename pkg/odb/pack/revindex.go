package pack

import (
	"sort"

	"github.com/samoht/gitobj/pkg/objects"
)

// RevIndex maps pack offsets back to digests. It is derived from an index in
// one pass and answers offset lookups by binary search, which the reader
// needs when a delta chain lands on an offset and the values cache is keyed
// by digest.
type RevIndex struct {
	entries []IndexEntry // sorted by offset
}

// NewRevIndex builds a reverse index from an index's records.
func NewRevIndex(ix *Index) (*RevIndex, error) {
	entries, e := ix.Entries()
	if e != nil {
		return nil, e
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Offset < entries[j].Offset
	})
	return &RevIndex{entries: entries}, nil
}

// HashAt returns the digest of the entry starting at offset.
func (rv *RevIndex) HashAt(offset int64) (objects.Hash, bool) {
	i := sort.Search(len(rv.entries), func(i int) bool {
		return rv.entries[i].Offset >= offset
	})
	if i < len(rv.entries) && rv.entries[i].Offset == offset {
		return rv.entries[i].Hash, true
	}
	return objects.Hash{}, false
}

// Count returns the number of entries.
func (rv *RevIndex) Count() int {
	return len(rv.entries)
}
