package refs

import (
	"os"
	"testing"

	"github.com/samoht/gitobj/pkg/common/err"
)

func TestReadPackedCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "peeled line first", content: "^ce013625030ba8dba906f756967f9e9ca394464a\n"},
		{name: "bad peeled digest", content: "ce013625030ba8dba906f756967f9e9ca394464a refs/tags/v1\n^zzzz\n"},
		{name: "missing name", content: "ce013625030ba8dba906f756967f9e9ca394464a\n"},
		{name: "bad digest", content: "nothex refs/heads/master\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, layout := setupStore(t)
			if werr := os.WriteFile(layout.PackedRefs(), []byte(tt.content), 0644); werr != nil {
				t.Fatal(werr)
			}

			_, rerr := s.readPacked()
			if rerr == nil {
				t.Fatal("readPacked() accepted a corrupt table")
			}
			if !err.IsCode(rerr, err.CodeDecode) {
				t.Errorf("readPacked() error code = %v, want DECODE", err.GetCode(rerr))
			}
		})
	}
}

func TestReadPackedSkipsCommentsAndBlanks(t *testing.T) {
	s, layout := setupStore(t)
	content := packedHeader +
		"\n" +
		"# trailing comment\n" +
		"ce013625030ba8dba906f756967f9e9ca394464a refs/heads/master\n"
	if werr := os.WriteFile(layout.PackedRefs(), []byte(content), 0644); werr != nil {
		t.Fatal(werr)
	}

	refs, rerr := s.readPacked()
	if rerr != nil {
		t.Fatalf("readPacked() error: %v", rerr)
	}
	if len(refs) != 1 || refs[0].name != "refs/heads/master" {
		t.Errorf("readPacked() = %+v, want one record for refs/heads/master", refs)
	}
}

func TestWritePackedSortsByName(t *testing.T) {
	s, layout := setupStore(t)
	hA := testHash(t, "ce013625030ba8dba906f756967f9e9ca394464a")
	hB := testHash(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391")

	input := []packedRef{
		{name: "refs/tags/v2", hash: hB},
		{name: "refs/heads/master", hash: hA},
	}
	if werr := s.writePacked(input); werr != nil {
		t.Fatalf("writePacked() error: %v", werr)
	}

	data, rerr := os.ReadFile(layout.PackedRefs())
	if rerr != nil {
		t.Fatal(rerr)
	}
	want := packedHeader +
		hA.Hex() + " refs/heads/master\n" +
		hB.Hex() + " refs/tags/v2\n"
	if string(data) != want {
		t.Errorf("packed-refs content = %q, want %q", data, want)
	}
}
