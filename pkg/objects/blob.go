package objects

import (
	"fmt"
	"io"
)

// Blob is an opaque file payload. It carries no structure of its own; the
// digest covers the canonical header plus the raw bytes.
type Blob struct {
	data []byte
	sha  *Hash
}

// NewBlob creates a blob over the given bytes. The slice is not copied;
// callers must not mutate it afterwards.
func NewBlob(data []byte) *Blob {
	return &Blob{data: data}
}

// Kind returns the object variant.
func (b *Blob) Kind() Kind {
	return BlobKind
}

// Payload returns the blob bytes.
func (b *Blob) Payload() ([]byte, error) {
	return b.data, nil
}

// Hash returns the digest of the canonical bytes.
func (b *Blob) Hash() (Hash, error) {
	if b.sha != nil {
		return *b.sha, nil
	}
	sha := ComputeHash(BlobKind, b.data)
	b.sha = &sha
	return sha, nil
}

// Size returns the payload length in bytes.
func (b *Blob) Size() (int64, error) {
	return int64(len(b.data)), nil
}

// Serialize writes the canonical bytes.
func (b *Blob) Serialize(w io.Writer) error {
	return serialize(w, BlobKind, b.data)
}

// String returns a human-readable representation.
func (b *Blob) String() string {
	h, _ := b.Hash()
	return fmt.Sprintf("Blob{hash: %s, size: %d}", h.Short(), len(b.data))
}
