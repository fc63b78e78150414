package objects

import (
	"strings"
	"testing"
)

func TestTagRoundTrip(t *testing.T) {
	target := testHashMust("ce013625030ba8dba906f756967f9e9ca394464a")
	tag := NewTag(target, CommitKind, "v1.0.0", testSignature(), "release\n")

	payload, err := tag.Payload()
	if err != nil {
		t.Fatalf("Payload() error: %v", err)
	}

	decoded, err := DecodeTag(payload)
	if err != nil {
		t.Fatalf("DecodeTag() error: %v", err)
	}

	if decoded.Object != target {
		t.Errorf("Object = %s, want %s", decoded.Object, target)
	}
	if decoded.TargetKind != CommitKind {
		t.Errorf("TargetKind = %v, want commit", decoded.TargetKind)
	}
	if decoded.Name != "v1.0.0" {
		t.Errorf("Name = %q, want v1.0.0", decoded.Name)
	}
	if decoded.Message != "release\n" {
		t.Errorf("Message = %q, want %q", decoded.Message, "release\n")
	}

	h1, _ := tag.Hash()
	h2, _ := decoded.Hash()
	if h1 != h2 {
		t.Errorf("round trip changed the digest: %s vs %s", h1, h2)
	}
}

func TestTagWithoutTagger(t *testing.T) {
	payload := "object ce013625030ba8dba906f756967f9e9ca394464a\n" +
		"type blob\n" +
		"tag raw\n" +
		"\nmsg"

	tag, err := DecodeTag([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeTag() error: %v", err)
	}

	out, err := tag.Payload()
	if err != nil {
		t.Fatalf("Payload() error: %v", err)
	}
	if strings.Contains(string(out), "tagger ") {
		t.Errorf("payload should not contain a tagger line: %q", out)
	}
	if string(out) != payload {
		t.Errorf("taggerless tag did not round trip:\ngot  %q\nwant %q", out, payload)
	}
}

func TestTagValidate(t *testing.T) {
	tests := []struct {
		name string
		tag  *Tag
	}{
		{
			name: "zero object",
			tag:  &Tag{TargetKind: CommitKind, Name: "v1"},
		},
		{
			name: "bad target kind",
			tag:  &Tag{Object: testHashMust("ce013625030ba8dba906f756967f9e9ca394464a"), TargetKind: "glob", Name: "v1"},
		},
		{
			name: "empty name",
			tag:  &Tag{Object: testHashMust("ce013625030ba8dba906f756967f9e9ca394464a"), TargetKind: CommitKind},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.tag.Validate(); err == nil {
				t.Errorf("Validate() expected error for %s", tt.name)
			}
		})
	}
}
