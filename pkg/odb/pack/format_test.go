package pack

import (
	"bytes"
	"testing"

	"github.com/samoht/gitobj/pkg/objects"
)

func TestEntryKindString(t *testing.T) {
	tests := []struct {
		kind EntryKind
		want string
	}{
		{KindCommit, "commit"},
		{KindTree, "tree"},
		{KindBlob, "blob"},
		{KindTag, "tag"},
		{KindOfsDelta, "ofs-delta"},
		{KindRefDelta, "ref-delta"},
		{EntryKind(5), "unknown(5)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EntryKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestEntryKindIsDelta(t *testing.T) {
	for _, k := range []EntryKind{KindCommit, KindTree, KindBlob, KindTag} {
		if k.IsDelta() {
			t.Errorf("%v.IsDelta() = true, want false", k)
		}
	}
	for _, k := range []EntryKind{KindOfsDelta, KindRefDelta} {
		if !k.IsDelta() {
			t.Errorf("%v.IsDelta() = false, want true", k)
		}
	}
}

func TestEntryKindObjectKind(t *testing.T) {
	tests := []struct {
		entry EntryKind
		want  objects.Kind
	}{
		{KindCommit, objects.CommitKind},
		{KindTree, objects.TreeKind},
		{KindBlob, objects.BlobKind},
		{KindTag, objects.TagKind},
	}
	for _, tt := range tests {
		got, ok := tt.entry.ObjectKind()
		if !ok || got != tt.want {
			t.Errorf("%v.ObjectKind() = (%v, %v), want (%v, true)", tt.entry, got, ok, tt.want)
		}
	}
	if _, ok := KindOfsDelta.ObjectKind(); ok {
		t.Error("ofs-delta should not map to an object kind")
	}
}

func TestEntryHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		kind EntryKind
		size int64
	}{
		{name: "zero size", kind: KindBlob, size: 0},
		{name: "fits the first byte", kind: KindCommit, size: 15},
		{name: "needs one continuation", kind: KindTree, size: 16},
		{name: "medium", kind: KindBlob, size: 12345},
		{name: "large", kind: KindBlob, size: 1 << 32},
		{name: "ofs delta", kind: KindOfsDelta, size: 300},
		{name: "ref delta", kind: KindRefDelta, size: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := appendEntryHeader(nil, tt.kind, tt.size)

			kind, size, err := readEntryHeader(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("readEntryHeader() error: %v", err)
			}
			if kind != tt.kind || size != tt.size {
				t.Errorf("round trip = (%v, %d), want (%v, %d)", kind, size, tt.kind, tt.size)
			}
		})
	}
}

func TestReadEntryHeaderTruncated(t *testing.T) {
	encoded := appendEntryHeader(nil, KindBlob, 1<<20)
	if _, _, err := readEntryHeader(bytes.NewReader(encoded[:1])); err == nil {
		t.Error("readEntryHeader() on a truncated header should fail")
	}
}

func TestOfsDistanceRoundTrip(t *testing.T) {
	// 127 and 128 straddle the one-byte boundary; the off-by-one encoding
	// makes 2^7+2^14 style values the interesting cases.
	distances := []int64{1, 42, 127, 128, 129, 255, 256, 16383, 16384, 1 << 20, 1 << 31}

	for _, dist := range distances {
		encoded := appendOfsDistance(nil, dist)

		got, err := readOfsDistance(bytes.NewReader(encoded))
		if err != nil {
			t.Fatalf("readOfsDistance(%d) error: %v", dist, err)
		}
		if got != dist {
			t.Errorf("distance %d round-tripped to %d (encoding %x)", dist, got, encoded)
		}
	}
}

func TestOfsDistanceEncodingLength(t *testing.T) {
	if n := len(appendOfsDistance(nil, 127)); n != 1 {
		t.Errorf("distance 127 encoded in %d bytes, want 1", n)
	}
	if n := len(appendOfsDistance(nil, 128)); n != 2 {
		t.Errorf("distance 128 encoded in %d bytes, want 2", n)
	}
}

func TestReadOfsDistanceTruncated(t *testing.T) {
	encoded := appendOfsDistance(nil, 1<<20)
	if _, err := readOfsDistance(bytes.NewReader(encoded[:1])); err == nil {
		t.Error("readOfsDistance() on a truncated encoding should fail")
	}
}
