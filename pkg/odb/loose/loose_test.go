package loose

import (
	"bytes"
	"os"
	"testing"

	"github.com/samoht/gitobj/pkg/codec"
	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/fsys"
	"github.com/samoht/gitobj/pkg/gitpath"
	"github.com/samoht/gitobj/pkg/objects"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	layout, lerr := gitpath.NewLayout(t.TempDir())
	if lerr != nil {
		t.Fatalf("NewLayout() error: %v", lerr)
	}
	z, zerr := codec.NewZlib(codec.DefaultLevel)
	if zerr != nil {
		t.Fatalf("NewZlib() error: %v", zerr)
	}
	return New(fsys.NewOS(), layout, z)
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := setupStore(t)
	blob := objects.NewBlob([]byte("hello\n"))

	h, n, werr := s.Write(blob)
	if werr != nil {
		t.Fatalf("Write() error: %v", werr)
	}
	if h.Hex() != "ce013625030ba8dba906f756967f9e9ca394464a" {
		t.Errorf("Write() digest = %s, want ce013625030ba8dba906f756967f9e9ca394464a", h.Hex())
	}
	if n <= 0 {
		t.Errorf("Write() compressed %d bytes, want > 0", n)
	}

	obj, rerr := s.Read(h)
	if rerr != nil {
		t.Fatalf("Read() error: %v", rerr)
	}
	payload, _ := obj.Payload()
	if !bytes.Equal(payload, []byte("hello\n")) {
		t.Errorf("Read() payload = %q, want hello\\n", payload)
	}
}

func TestWriteIdempotent(t *testing.T) {
	s := setupStore(t)
	blob := objects.NewBlob([]byte("same bytes"))

	h1, _, _ := s.Write(blob)
	h2, n, werr := s.Write(blob)
	if werr != nil {
		t.Fatalf("second Write() error: %v", werr)
	}
	if h1 != h2 {
		t.Errorf("digests differ across writes: %s vs %s", h1, h2)
	}
	if n != 0 {
		t.Errorf("second Write() wrote %d bytes, want 0 for existing object", n)
	}
}

func TestObjectFileIsReadOnly(t *testing.T) {
	s := setupStore(t)
	h, _, _ := s.Write(objects.NewBlob([]byte("x")))

	p, perr := s.layout.LooseObject(h.Hex())
	if perr != nil {
		t.Fatal(perr)
	}
	info, serr := os.Stat(p)
	if serr != nil {
		t.Fatalf("Stat() error: %v", serr)
	}
	if info.Mode().Perm() != 0444 {
		t.Errorf("mode = %v, want 0444", info.Mode().Perm())
	}
}

func TestHas(t *testing.T) {
	s := setupStore(t)
	h, _, _ := s.Write(objects.NewBlob([]byte("present")))

	if !s.Has(h) {
		t.Error("Has() should report a written object")
	}
	var absent objects.Hash
	absent[0] = 0xff
	if s.Has(absent) {
		t.Error("Has() should not report an unwritten digest")
	}
}

func TestReadMissing(t *testing.T) {
	s := setupStore(t)
	var absent objects.Hash
	absent[0] = 0xff

	_, rerr := s.Read(absent)
	if rerr == nil {
		t.Fatal("Read() on a missing object should fail")
	}
	if !err.IsCode(rerr, err.CodeNotFound) {
		t.Errorf("Read() error code = %v, want NOT_FOUND", err.GetCode(rerr))
	}
}

func TestSizeAndKindWithoutFullRead(t *testing.T) {
	s := setupStore(t)
	payload := bytes.Repeat([]byte("a"), 4096)
	h, _, _ := s.Write(objects.NewBlob(payload))

	size, serr := s.Size(h)
	if serr != nil {
		t.Fatalf("Size() error: %v", serr)
	}
	if size != 4096 {
		t.Errorf("Size() = %d, want 4096", size)
	}

	kind, kerr := s.Kind(h)
	if kerr != nil {
		t.Fatalf("Kind() error: %v", kerr)
	}
	if kind != objects.BlobKind {
		t.Errorf("Kind() = %v, want blob", kind)
	}
}

func TestReadInflated(t *testing.T) {
	s := setupStore(t)
	tree := objects.NewTree(nil)
	h, _, _ := s.Write(tree)

	kind, payload, rerr := s.ReadInflated(h)
	if rerr != nil {
		t.Fatalf("ReadInflated() error: %v", rerr)
	}
	if kind != objects.TreeKind {
		t.Errorf("kind = %v, want tree", kind)
	}
	if len(payload) != 0 {
		t.Errorf("payload = %d bytes, want 0", len(payload))
	}
}

func TestReadInflatedInto(t *testing.T) {
	s := setupStore(t)
	h, _, _ := s.Write(objects.NewBlob([]byte("hello\n")))

	buf := make([]byte, 16)
	kind, n, rerr := s.ReadInflatedInto(buf, h)
	if rerr != nil {
		t.Fatalf("ReadInflatedInto() error: %v", rerr)
	}
	if kind != objects.BlobKind || n != 6 {
		t.Errorf("ReadInflatedInto() = (%v, %d), want (blob, 6)", kind, n)
	}
	if !bytes.Equal(buf[:n], []byte("hello\n")) {
		t.Errorf("buffer = %q, want hello\\n", buf[:n])
	}

	short := make([]byte, 2)
	if _, _, rerr := s.ReadInflatedInto(short, h); rerr == nil {
		t.Error("ReadInflatedInto() with a short buffer should fail")
	}
}

func TestWriteInflated(t *testing.T) {
	s := setupStore(t)

	h, werr := s.WriteInflated(objects.BlobKind, []byte("hello\n"))
	if werr != nil {
		t.Fatalf("WriteInflated() error: %v", werr)
	}
	if h.Hex() != "ce013625030ba8dba906f756967f9e9ca394464a" {
		t.Errorf("WriteInflated() digest = %s, want the hello blob digest", h.Hex())
	}
}

func TestList(t *testing.T) {
	s := setupStore(t)

	if hashes, lerr := s.List(); lerr != nil || len(hashes) != 0 {
		t.Fatalf("List() on empty store = (%v, %v), want ([], nil)", hashes, lerr)
	}

	want := map[objects.Hash]bool{}
	for _, content := range []string{"one", "two", "three"} {
		h, _, werr := s.Write(objects.NewBlob([]byte(content)))
		if werr != nil {
			t.Fatalf("Write(%q) error: %v", content, werr)
		}
		want[h] = true
	}

	hashes, lerr := s.List()
	if lerr != nil {
		t.Fatalf("List() error: %v", lerr)
	}
	if len(hashes) != len(want) {
		t.Fatalf("List() returned %d digests, want %d", len(hashes), len(want))
	}
	for _, h := range hashes {
		if !want[h] {
			t.Errorf("List() returned unexpected digest %s", h)
		}
	}
}

func TestReadCorruptObject(t *testing.T) {
	s := setupStore(t)
	h, _, _ := s.Write(objects.NewBlob([]byte("victim")))

	p, _ := s.layout.LooseObject(h.Hex())
	if cerr := os.Chmod(p, 0644); cerr != nil {
		t.Fatal(cerr)
	}
	if werr := os.WriteFile(p, []byte("not a zlib stream"), 0644); werr != nil {
		t.Fatal(werr)
	}

	if _, rerr := s.Read(h); rerr == nil {
		t.Error("Read() on corrupt bytes should fail")
	}
}
