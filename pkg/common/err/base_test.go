package err

import (
	"errors"
	"io"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "full",
			err:  New("loose", CodeNotFound, "read", "abc123", nil),
			want: "[loose][NOT_FOUND]: read: abc123",
		},
		{
			name: "wrapped",
			err:  New("pack", CodeInflate, "scan", "entry body", io.ErrUnexpectedEOF),
			want: "[pack][INFLATE]: scan: entry body: unexpected EOF",
		},
		{
			name: "no message",
			err:  New("refs", CodeFsIo, "write", "", nil),
			want: "[refs][FS_IO]: write",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	underlying := errors.New("disk on fire")
	wrapped := New("loose", CodeFsIo, "write", "", underlying)

	if !errors.Is(wrapped, underlying) {
		t.Error("errors.Is() does not reach the wrapped error")
	}
	if wrapped.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", wrapped.Unwrap(), underlying)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	a := New("loose", CodeNotFound, "read", "x", nil)
	b := New("pack", CodeNotFound, "lookup", "y", nil)
	c := New("pack", CodeDecode, "scan", "z", nil)

	if !errors.Is(a, b) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(a, c) {
		t.Error("errors with different codes should not match")
	}
}

func TestIsCode(t *testing.T) {
	coded := New("loose", CodeNotFound, "read", "x", nil)

	if !IsCode(coded, CodeNotFound) {
		t.Error("IsCode() missed the error's own code")
	}
	if IsCode(coded, CodeDecode) {
		t.Error("IsCode() matched the wrong code")
	}
	if IsCode(errors.New("plain"), CodeNotFound) {
		t.Error("IsCode() matched a plain error")
	}

	// IsCode reads the outermost Error; a coded wrapper shadows the inner
	// code, while errors.Is still matches by code anywhere in the chain.
	rewrapped := WrapWithCode(coded, "odb", CodeDecode, "read")
	if !IsCode(rewrapped, CodeDecode) {
		t.Error("IsCode() should report the outermost code")
	}
	if !errors.Is(rewrapped, New("", CodeNotFound, "", "", nil)) {
		t.Error("errors.Is() should match the inner code through the chain")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "pkg", "op") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if WrapWithCode(nil, "pkg", CodeDecode, "op") != nil {
		t.Error("WrapWithCode(nil) should be nil")
	}
}

func TestContext(t *testing.T) {
	e := New("pack", CodePackDecode, "resolve", "base missing", nil).
		WithContext("missing_base", "abc123").
		WithContext("offset", int64(12))

	if got := e.GetContext("missing_base"); got != "abc123" {
		t.Errorf("GetContext(missing_base) = %v, want abc123", got)
	}
	if got := e.GetContext("offset"); got != int64(12) {
		t.Errorf("GetContext(offset) = %v, want 12", got)
	}
	if e.GetContext("absent") != nil {
		t.Error("GetContext() of an unset key should be nil")
	}
}

func TestFsIo(t *testing.T) {
	e := FsIo("refs", "write", "/tmp/refs/heads/master", io.ErrClosedPipe)

	if e.Code != CodeFsIo {
		t.Errorf("FsIo() code = %q, want %q", e.Code, CodeFsIo)
	}
	if got := e.GetContext("path"); got != "/tmp/refs/heads/master" {
		t.Errorf("FsIo() path context = %v", got)
	}
	if !errors.Is(e, io.ErrClosedPipe) {
		t.Error("FsIo() does not wrap the underlying error")
	}
}
