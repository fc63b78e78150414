package objects

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// HashSize is the width of an object digest in bytes.
	HashSize = 20

	// HexSize is the width of an object digest in hex characters.
	HexSize = HashSize * 2
)

// Hash is the fixed-width content identifier of an object: the SHA-1 of its
// canonical byte representation. The zero value addresses nothing.
type Hash [HashSize]byte

// ZeroHash is the all-zero digest, used for uninitialized references.
var ZeroHash Hash

// HashFromHex parses a 40-character hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	if len(s) != HexSize {
		return h, fmt.Errorf("digest must be %d hex characters, got %d", HexSize, len(s))
	}
	raw, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return h, fmt.Errorf("digest must contain only hex characters: %w", err)
	}
	copy(h[:], raw)
	return h, nil
}

// HashFromBytes builds a Hash from a 20-byte slice.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("digest must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Hex returns the digest as a 40-character hex string.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements the Stringer interface.
func (h Hash) String() string {
	return h.Hex()
}

// Short returns the abbreviated 7-character form of the digest.
func (h Hash) Short() string {
	return h.Hex()[:7]
}

// IsZero returns true if this is the zero digest.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Compare orders two digests bytewise. It returns -1, 0 or 1.
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// SumCanonical digests canonical bytes: "<kind> <len>\0" followed by the
// payload.
func SumCanonical(data []byte) Hash {
	return Hash(sha1.Sum(data))
}

// ComputeHash digests an object's kind and payload without building the
// canonical buffer twice.
func ComputeHash(kind Kind, payload []byte) Hash {
	d := sha1.New()
	d.Write(Header(kind, int64(len(payload))))
	d.Write(payload)
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}
