package objects

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Entry modes as stored on disk. Git writes directory modes without a
// leading zero.
const (
	ModeDir        = "40000"
	ModeRegular    = "100644"
	ModeExecutable = "100755"
	ModeSymlink    = "120000"
	ModeSubmodule  = "160000"
)

// TreeEntry is a single entry in a tree: mode, name and the digest of the
// referenced object.
//
// Serialized format: "<mode> <name>\0" followed by the 20-byte raw digest.
type TreeEntry struct {
	Mode string
	Name string
	Hash Hash
}

// NewTreeEntry creates a validated tree entry.
func NewTreeEntry(mode, name string, hash Hash) (TreeEntry, error) {
	if err := validateMode(mode); err != nil {
		return TreeEntry{}, err
	}
	if err := validateEntryName(name); err != nil {
		return TreeEntry{}, err
	}
	return TreeEntry{Mode: mode, Name: name, Hash: hash}, nil
}

// IsDir returns true if the entry points at a subtree.
func (e TreeEntry) IsDir() bool {
	return e.Mode == ModeDir || e.Mode == "040000"
}

// sortKey orders entries the way git does: byte order by name, with
// directories compared as if their name had a trailing slash. This keeps
// digests deterministic across implementations.
func (e TreeEntry) sortKey() string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

// Tree is a directory snapshot: a sorted list of entries.
//
// Payload layout, one entry after another with no separators:
//
//	<mode> SPACE <name> NULL <20-byte digest>
type Tree struct {
	entries []TreeEntry
	sha     *Hash
}

// NewTree creates a tree from entries, sorting them canonically.
func NewTree(entries []TreeEntry) *Tree {
	t := &Tree{entries: append([]TreeEntry(nil), entries...)}
	t.sortEntries()
	return t
}

// DecodeTree parses a tree payload (without header).
func DecodeTree(payload []byte) (*Tree, error) {
	var entries []TreeEntry
	offset := 0

	for offset < len(payload) {
		spaceIndex := bytes.IndexByte(payload[offset:], SpaceByte)
		if spaceIndex == -1 {
			return nil, fmt.Errorf("invalid tree entry at offset %d: missing space", offset)
		}
		spaceIndex += offset

		nullIndex := bytes.IndexByte(payload[spaceIndex+1:], NullByte)
		if nullIndex == -1 {
			return nil, fmt.Errorf("invalid tree entry at offset %d: missing null byte", offset)
		}
		nullIndex += spaceIndex + 1

		end := nullIndex + 1 + HashSize
		if end > len(payload) {
			return nil, fmt.Errorf("invalid tree entry at offset %d: truncated digest", offset)
		}

		hash, err := HashFromBytes(payload[nullIndex+1 : end])
		if err != nil {
			return nil, err
		}

		entry, err := NewTreeEntry(string(payload[offset:spaceIndex]), string(payload[spaceIndex+1:nullIndex]), hash)
		if err != nil {
			return nil, fmt.Errorf("invalid tree entry at offset %d: %w", offset, err)
		}

		entries = append(entries, entry)
		offset = end
	}

	return &Tree{entries: entries}, nil
}

// Kind returns the object variant.
func (t *Tree) Kind() Kind {
	return TreeKind
}

// Entries returns a copy of the entries to prevent external modification.
func (t *Tree) Entries() []TreeEntry {
	return append([]TreeEntry(nil), t.entries...)
}

// IsEmpty returns true if the tree has no entries.
func (t *Tree) IsEmpty() bool {
	return len(t.entries) == 0
}

// Payload serializes the entries.
func (t *Tree) Payload() ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range t.entries {
		buf.WriteString(e.Mode)
		buf.WriteByte(SpaceByte)
		buf.WriteString(e.Name)
		buf.WriteByte(NullByte)
		buf.Write(e.Hash[:])
	}
	return buf.Bytes(), nil
}

// Hash returns the digest of the canonical bytes.
func (t *Tree) Hash() (Hash, error) {
	if t.sha != nil {
		return *t.sha, nil
	}
	payload, err := t.Payload()
	if err != nil {
		return Hash{}, err
	}
	sha := ComputeHash(TreeKind, payload)
	t.sha = &sha
	return sha, nil
}

// Size returns the payload length in bytes.
func (t *Tree) Size() (int64, error) {
	payload, err := t.Payload()
	if err != nil {
		return 0, err
	}
	return int64(len(payload)), nil
}

// Serialize writes the canonical bytes.
func (t *Tree) Serialize(w io.Writer) error {
	payload, err := t.Payload()
	if err != nil {
		return err
	}
	return serialize(w, TreeKind, payload)
}

// String returns a human-readable representation.
func (t *Tree) String() string {
	h, _ := t.Hash()
	return fmt.Sprintf("Tree{hash: %s, entries: %d}", h.Short(), len(t.entries))
}

func (t *Tree) sortEntries() {
	sort.Slice(t.entries, func(i, j int) bool {
		return t.entries[i].sortKey() < t.entries[j].sortKey()
	})
}

func validateMode(mode string) error {
	switch mode {
	case ModeDir, "040000", ModeRegular, ModeExecutable, ModeSymlink, ModeSubmodule:
		return nil
	default:
		return fmt.Errorf("unknown tree entry mode: %q", mode)
	}
}

func validateEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("tree entry name cannot be empty")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("tree entry name cannot be %q", name)
	}
	if strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("invalid characters in tree entry name: %q", name)
	}
	return nil
}
