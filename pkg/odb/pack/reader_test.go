package pack

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/samoht/gitobj/pkg/cache"
	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/fsys"
	"github.com/samoht/gitobj/pkg/objects"
)

// setupReader writes the pack and its index to disk and opens a reader over
// them.
func setupReader(t *testing.T, data []byte, idxBytes []byte, packHash objects.Hash, readBase BaseReader) *Reader {
	t.Helper()
	dir := t.TempDir()

	packPath := filepath.Join(dir, "pack-test.pack")
	idxPath := filepath.Join(dir, "pack-test.idx")
	if werr := os.WriteFile(packPath, data, 0444); werr != nil {
		t.Fatal(werr)
	}
	if werr := os.WriteFile(idxPath, idxBytes, 0444); werr != nil {
		t.Fatal(werr)
	}

	fs := fsys.NewOS()
	bases, berr := cache.NewWeighted[BaseKey](cache.DefaultByteBudget, func(b CachedBase) int64 {
		return b.Weigh()
	})
	if berr != nil {
		t.Fatal(berr)
	}
	return NewReader(fs, packPath, packHash, OpenIndex(fs, idxPath),
		testCodec(t), NewArena(0), bases, readBase)
}

func TestReaderRoundTrip(t *testing.T) {
	c := testCodec(t)
	inputs := testInputs(t)
	data, packHash, _ := writeTestPack(t, &Writer{Codec: c}, inputs)
	_, idxBytes := indexFor(t, data, c, nil)

	r := setupReader(t, data, idxBytes, packHash, nil)
	defer r.Close()

	for _, in := range inputs {
		ok, herr := r.Has(in.Hash)
		if herr != nil || !ok {
			t.Fatalf("Has(%s) = (%v, %v), want (true, nil)", in.Hash, ok, herr)
		}

		kind, payload, rerr := r.ReadRaw(in.Hash)
		if rerr != nil {
			t.Fatalf("ReadRaw(%s) error: %v", in.Hash, rerr)
		}
		if kind != in.Kind {
			t.Errorf("ReadRaw(%s) kind = %v, want %v", in.Hash, kind, in.Kind)
		}
		if !bytes.Equal(payload, in.Payload) {
			t.Errorf("ReadRaw(%s) payload mismatch", in.Hash)
		}

		size, serr := r.Size(in.Hash)
		if serr != nil {
			t.Fatalf("Size(%s) error: %v", in.Hash, serr)
		}
		if size != int64(len(in.Payload)) {
			t.Errorf("Size(%s) = %d, want %d", in.Hash, size, len(in.Payload))
		}

		gotKind, kerr := r.Kind(in.Hash)
		if kerr != nil {
			t.Fatalf("Kind(%s) error: %v", in.Hash, kerr)
		}
		if gotKind != in.Kind {
			t.Errorf("Kind(%s) = %v, want %v", in.Hash, gotKind, in.Kind)
		}
	}
}

func TestReaderRead(t *testing.T) {
	c := testCodec(t)
	inputs := testInputs(t)
	data, packHash, _ := writeTestPack(t, &Writer{Codec: c}, inputs)
	_, idxBytes := indexFor(t, data, c, nil)

	r := setupReader(t, data, idxBytes, packHash, nil)
	defer r.Close()

	for _, in := range inputs {
		obj, rerr := r.Read(in.Hash)
		if rerr != nil {
			t.Fatalf("Read(%s) error: %v", in.Hash, rerr)
		}
		h, herr := obj.Hash()
		if herr != nil {
			t.Fatalf("decoded object Hash() error: %v", herr)
		}
		if h != in.Hash {
			t.Errorf("decoded object digest = %s, want %s", h, in.Hash)
		}
	}
}

func TestReaderReadRawInto(t *testing.T) {
	c := testCodec(t)
	inputs := testInputs(t)
	data, packHash, _ := writeTestPack(t, &Writer{Codec: c}, inputs)
	_, idxBytes := indexFor(t, data, c, nil)

	r := setupReader(t, data, idxBytes, packHash, nil)
	defer r.Close()

	for _, in := range inputs {
		buf := make([]byte, len(in.Payload)+32)
		kind, n, rerr := r.ReadRawInto(buf, in.Hash)
		if rerr != nil {
			t.Fatalf("ReadRawInto(%s) error: %v", in.Hash, rerr)
		}
		if kind != in.Kind || n != len(in.Payload) {
			t.Errorf("ReadRawInto(%s) = (%v, %d), want (%v, %d)", in.Hash, kind, n, in.Kind, len(in.Payload))
		}
		if !bytes.Equal(buf[:n], in.Payload) {
			t.Errorf("ReadRawInto(%s) payload mismatch", in.Hash)
		}
	}
}

func TestReaderMissingObject(t *testing.T) {
	c := testCodec(t)
	data, packHash, _ := writeTestPack(t, &Writer{Codec: c}, testInputs(t))
	_, idxBytes := indexFor(t, data, c, nil)

	r := setupReader(t, data, idxBytes, packHash, nil)
	defer r.Close()

	var absent objects.Hash
	absent[0] = 0x99
	_, _, rerr := r.ReadRaw(absent)
	if rerr == nil {
		t.Fatal("ReadRaw() on an absent digest should fail")
	}
	if !err.IsCode(rerr, err.CodeNotFound) {
		t.Errorf("ReadRaw() error code = %v, want NOT_FOUND", err.GetCode(rerr))
	}
}

// Close only drops the OS handle; the reader reopens it on the next read.
func TestReaderReopensAfterClose(t *testing.T) {
	c := testCodec(t)
	inputs := testInputs(t)
	data, packHash, _ := writeTestPack(t, &Writer{Codec: c}, inputs)
	_, idxBytes := indexFor(t, data, c, nil)

	r := setupReader(t, data, idxBytes, packHash, nil)

	if _, _, rerr := r.ReadRaw(inputs[0].Hash); rerr != nil {
		t.Fatalf("first ReadRaw() error: %v", rerr)
	}
	if cerr := r.Close(); cerr != nil {
		t.Fatalf("Close() error: %v", cerr)
	}
	if _, _, rerr := r.ReadRaw(inputs[0].Hash); rerr != nil {
		t.Fatalf("ReadRaw() after Close error: %v", rerr)
	}
	r.Close()
}

// A thin pack's ref-delta resolves through the out-of-pack base reader for
// every read-side operation.
func TestReaderThinPack(t *testing.T) {
	c := testCodec(t)

	basePayload := bytes.Repeat([]byte("external base content shared with the target\n"), 80)
	targetPayload := append(append([]byte(nil), basePayload...), []byte("local tail\n")...)
	base := inputOf(t, objects.BlobKind, basePayload)
	target := inputOf(t, objects.BlobKind, targetPayload)

	w := &Writer{Codec: c, AllowThin: true, BaseCandidates: []InputObject{base}}
	data, packHash, written := writeTestPack(t, w, []InputObject{target})

	if written[0].Kind != KindRefDelta || written[0].BaseHash != base.Hash {
		t.Fatalf("thin pack entry = (%v, base %s), want (ref-delta, %s)",
			written[0].Kind, written[0].BaseHash, base.Hash)
	}

	readBase := func(h objects.Hash) (objects.Kind, []byte, error) {
		if h != base.Hash {
			return "", nil, err.New("test", err.CodeNotFound, "base", h.Hex(), nil)
		}
		return objects.BlobKind, basePayload, nil
	}
	_, idxBytes := indexFor(t, data, c, readBase)

	r := setupReader(t, data, idxBytes, packHash, readBase)
	defer r.Close()

	kind, payload, rerr := r.ReadRaw(target.Hash)
	if rerr != nil {
		t.Fatalf("ReadRaw() error: %v", rerr)
	}
	if kind != objects.BlobKind || !bytes.Equal(payload, targetPayload) {
		t.Error("thin pack target did not reconstruct against the external base")
	}

	if size, serr := r.Size(target.Hash); serr != nil || size != int64(len(targetPayload)) {
		t.Errorf("Size() = (%d, %v), want (%d, nil)", size, serr, len(targetPayload))
	}
	if gotKind, kerr := r.Kind(target.Hash); kerr != nil || gotKind != objects.BlobKind {
		t.Errorf("Kind() = (%v, %v), want (blob, nil)", gotKind, kerr)
	}
}

// Without the external reader the same thin pack fails with a missing-base
// error rather than corruption.
func TestReaderThinPackMissingBase(t *testing.T) {
	c := testCodec(t)

	basePayload := bytes.Repeat([]byte("external base content\n"), 80)
	targetPayload := append(append([]byte(nil), basePayload...), []byte("tail\n")...)
	base := inputOf(t, objects.BlobKind, basePayload)
	target := inputOf(t, objects.BlobKind, targetPayload)

	w := &Writer{Codec: c, AllowThin: true, BaseCandidates: []InputObject{base}}
	data, packHash, _ := writeTestPack(t, w, []InputObject{target})

	readBase := func(h objects.Hash) (objects.Kind, []byte, error) {
		return objects.BlobKind, basePayload, nil
	}
	_, idxBytes := indexFor(t, data, c, readBase)

	r := setupReader(t, data, idxBytes, packHash, nil)
	defer r.Close()

	_, _, rerr := r.ReadRaw(target.Hash)
	if rerr == nil {
		t.Fatal("ReadRaw() without a base reader should fail")
	}
	var be *err.Error
	if !errors.As(rerr, &be) || be.GetContext("missing_base") == nil {
		t.Errorf("error does not carry the missing_base context: %v", rerr)
	}
}
