package objects

import (
	"testing"
	"time"
)

func TestSignatureFormat(t *testing.T) {
	sig := NewSignature("Ada Lovelace", "ada@example.com", time.Unix(1700000000, 0).UTC())
	want := "Ada Lovelace <ada@example.com> 1700000000 +0000"
	if got := sig.Format(); got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestParseSignature(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantName  string
		wantEmail string
		wantUnix  int64
		wantErr   bool
	}{
		{
			name:      "plain",
			input:     "Ada Lovelace <ada@example.com> 1700000000 +0000",
			wantName:  "Ada Lovelace",
			wantEmail: "ada@example.com",
			wantUnix:  1700000000,
		},
		{
			name:      "negative zone",
			input:     "Bob <bob@example.com> 1600000000 -0530",
			wantName:  "Bob",
			wantEmail: "bob@example.com",
			wantUnix:  1600000000,
		},
		{
			name:      "angle brackets in name",
			input:     "Weird <Name> <weird@example.com> 1700000000 +0000",
			wantName:  "Weird <Name>",
			wantEmail: "weird@example.com",
			wantUnix:  1700000000,
		},
		{name: "missing email", input: "Ada 1700000000 +0000", wantErr: true},
		{name: "missing timestamp", input: "Ada <ada@example.com>", wantErr: true},
		{name: "bad seconds", input: "Ada <ada@example.com> soon +0000", wantErr: true},
		{name: "bad zone", input: "Ada <ada@example.com> 1700000000 UTC", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := ParseSignature(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSignature(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSignature(%q) unexpected error: %v", tt.input, err)
			}
			if sig.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", sig.Name, tt.wantName)
			}
			if sig.Email != tt.wantEmail {
				t.Errorf("Email = %q, want %q", sig.Email, tt.wantEmail)
			}
			if sig.When.Unix() != tt.wantUnix {
				t.Errorf("When.Unix() = %d, want %d", sig.When.Unix(), tt.wantUnix)
			}
		})
	}
}

func TestSignatureFormatParseRoundTrip(t *testing.T) {
	sig := NewSignature("Ada", "ada@example.com", time.Unix(1700000000, 0).In(time.FixedZone("+0200", 2*3600)))
	parsed, err := ParseSignature(sig.Format())
	if err != nil {
		t.Fatalf("ParseSignature() error: %v", err)
	}
	if parsed.Format() != sig.Format() {
		t.Errorf("round trip changed the line: %q vs %q", parsed.Format(), sig.Format())
	}
}
