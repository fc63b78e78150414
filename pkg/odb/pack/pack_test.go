package pack

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"testing"
	"time"

	"github.com/samoht/gitobj/pkg/codec"
	"github.com/samoht/gitobj/pkg/objects"
)

// Shared fixtures for the pack tests: a codec, an object set with enough
// overlap that the planner produces deltas, and a hand-rolled pack builder
// for wire shapes the writer never emits.

func testCodec(t *testing.T) codec.Codec {
	t.Helper()
	z, err := codec.NewZlib(codec.DefaultLevel)
	if err != nil {
		t.Fatalf("NewZlib() error: %v", err)
	}
	return z
}

func inputOf(t *testing.T, kind objects.Kind, payload []byte) InputObject {
	t.Helper()
	return InputObject{
		Hash:    objects.ComputeHash(kind, payload),
		Kind:    kind,
		Payload: payload,
	}
}

// testInputs builds a mixed object set: three blobs sharing a large common
// body so the planner finds deltas, a tree over one of them, a commit and a
// tag.
func testInputs(t *testing.T) []InputObject {
	t.Helper()

	body := bytes.Repeat([]byte("a line of file content that repeats\n"), 200)
	blobA := append([]byte(nil), body...)
	blobB := append(append([]byte(nil), body...), []byte("appended tail\n")...)
	blobC := append([]byte("prepended head\n"), body...)

	blobIn := inputOf(t, objects.BlobKind, blobA)

	entry, err := objects.NewTreeEntry(objects.ModeRegular, "file.txt", blobIn.Hash)
	if err != nil {
		t.Fatalf("NewTreeEntry() error: %v", err)
	}
	tree := objects.NewTree([]objects.TreeEntry{entry})
	treePayload, _ := tree.Payload()
	treeIn := inputOf(t, objects.TreeKind, treePayload)

	sig := objects.NewSignature("Ada", "ada@example.com", time.Unix(1700000000, 0).UTC())
	commit := &objects.Commit{Tree: treeIn.Hash, Author: sig, Committer: sig, Message: "first\n"}
	commitPayload, err := commit.Payload()
	if err != nil {
		t.Fatalf("commit Payload() error: %v", err)
	}
	commitIn := inputOf(t, objects.CommitKind, commitPayload)

	tag := objects.NewTag(commitIn.Hash, objects.CommitKind, "v1", sig, "release\n")
	tagPayload, err := tag.Payload()
	if err != nil {
		t.Fatalf("tag Payload() error: %v", err)
	}

	return []InputObject{
		blobIn,
		inputOf(t, objects.BlobKind, blobB),
		inputOf(t, objects.BlobKind, blobC),
		treeIn,
		commitIn,
		inputOf(t, objects.TagKind, tagPayload),
	}
}

// writeTestPack streams the inputs through the writer and returns the pack
// bytes.
func writeTestPack(t *testing.T, w *Writer, inputs []InputObject) ([]byte, objects.Hash, []WrittenEntry) {
	t.Helper()

	var buf bytes.Buffer
	packHash, written, err := w.WritePack(&buf, inputs)
	if err != nil {
		t.Fatalf("WritePack() error: %v", err)
	}
	return buf.Bytes(), packHash, written
}

// packBuilder assembles a pack byte by byte for shapes the writer does not
// produce, forward ref-deltas in particular.
type packBuilder struct {
	t     *testing.T
	c     codec.Codec
	buf   bytes.Buffer
	count uint32
}

func newPackBuilder(t *testing.T, c codec.Codec, count uint32) *packBuilder {
	t.Helper()
	b := &packBuilder{t: t, c: c, count: count}

	var header [HeaderLen]byte
	copy(header[:4], Signature)
	binary.BigEndian.PutUint32(header[4:8], Version)
	binary.BigEndian.PutUint32(header[8:12], count)
	b.buf.Write(header[:])
	return b
}

// add appends one entry and returns its offset. preamble carries the
// ofs-distance or base digest for delta kinds.
func (b *packBuilder) add(kind EntryKind, preamble, body []byte) int64 {
	b.t.Helper()
	offset := int64(b.buf.Len())

	b.buf.Write(appendEntryHeader(nil, kind, int64(len(body))))
	b.buf.Write(preamble)
	if _, err := b.c.Compress(&b.buf, body); err != nil {
		b.t.Fatalf("compress entry body: %v", err)
	}
	return offset
}

func (b *packBuilder) finish() []byte {
	sum := sha1.Sum(b.buf.Bytes())
	b.buf.Write(sum[:])
	return b.buf.Bytes()
}

// indexFor scans, resolves and serializes the idx sidecar for pack bytes.
func indexFor(t *testing.T, data []byte, c codec.Codec, readBase BaseReader) (*Info, []byte) {
	t.Helper()

	info, err := Scan(data, c)
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if err := ResolveHashes(data, info, c, NewArena(0), readBase); err != nil {
		t.Fatalf("ResolveHashes() error: %v", err)
	}
	idx, err := BuildIndex(info)
	if err != nil {
		t.Fatalf("BuildIndex() error: %v", err)
	}
	return info, idx
}
