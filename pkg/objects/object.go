package objects

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Kind identifies one of the four object variants.
type Kind string

const (
	BlobKind   Kind = "blob"
	TreeKind   Kind = "tree"
	CommitKind Kind = "commit"
	TagKind    Kind = "tag"
)

const (
	NullByte  = byte(0)
	SpaceByte = byte(' ')
)

// String implements the Stringer interface.
func (k Kind) String() string {
	return string(k)
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case BlobKind, TreeKind, CommitKind, TagKind:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown object kind: %q", s)
	}
}

// Object is an immutable content-addressed record of one of four kinds.
// The digest is computed over the canonical bytes: "<kind> <len>\0<payload>".
type Object interface {
	// Kind returns the object variant
	Kind() Kind

	// Payload returns the canonical payload without the header
	Payload() ([]byte, error)

	// Hash returns the digest of the canonical bytes
	Hash() (Hash, error)

	// Size returns the payload length in bytes
	Size() (int64, error)

	// Serialize writes the canonical bytes (header plus payload)
	Serialize(w io.Writer) error
}

// Header builds the canonical object header "<kind> <size>\0".
func Header(kind Kind, size int64) []byte {
	return []byte(string(kind) + " " + strconv.FormatInt(size, 10) + "\x00")
}

// ParseHeader splits canonical bytes into (kind, payload size, payload
// offset). The header is "<kind> <size>\0".
func ParseHeader(data []byte) (Kind, int64, int, error) {
	nullIndex := bytes.IndexByte(data, NullByte)
	if nullIndex == -1 {
		return "", 0, 0, fmt.Errorf("invalid object header: missing null byte")
	}

	spaceIndex := bytes.IndexByte(data[:nullIndex], SpaceByte)
	if spaceIndex == -1 {
		return "", 0, 0, fmt.Errorf("invalid object header: missing space")
	}

	kind, err := ParseKind(string(data[:spaceIndex]))
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid object header: %w", err)
	}

	size, err := strconv.ParseInt(string(data[spaceIndex+1:nullIndex]), 10, 64)
	if err != nil || size < 0 {
		return "", 0, 0, fmt.Errorf("invalid size in object header: %q", data[spaceIndex+1:nullIndex])
	}

	return kind, size, nullIndex + 1, nil
}

// Decode builds the typed object for a kind from its payload bytes.
func Decode(kind Kind, payload []byte) (Object, error) {
	switch kind {
	case BlobKind:
		return NewBlob(payload), nil
	case TreeKind:
		return DecodeTree(payload)
	case CommitKind:
		return DecodeCommit(payload)
	case TagKind:
		return DecodeTag(payload)
	default:
		return nil, fmt.Errorf("unknown object kind: %q", kind)
	}
}

// Parse decodes an object from its canonical bytes (header plus payload).
func Parse(canonical []byte) (Object, error) {
	kind, size, start, err := ParseHeader(canonical)
	if err != nil {
		return nil, err
	}

	payload := canonical[start:]
	if int64(len(payload)) != size {
		return nil, fmt.Errorf("object size mismatch: header says %d, payload has %d", size, len(payload))
	}

	return Decode(kind, payload)
}

// Canonical serializes an object to its canonical bytes.
func Canonical(o Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := o.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// serialize writes the canonical form given a kind and payload; the concrete
// object types share it.
func serialize(w io.Writer, kind Kind, payload []byte) error {
	if _, err := w.Write(Header(kind, int64(len(payload)))); err != nil {
		return fmt.Errorf("write %s header: %w", kind, err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write %s payload: %w", kind, err)
	}
	return nil
}
