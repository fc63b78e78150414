package gitpath

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Standard entry names inside the git directory.
const (
	HeadFile       = "HEAD"
	PackedRefsFile = "packed-refs"
	RefsDirName    = "refs"
	ObjectsDirName = "objects"
	InfoDirName    = "info"
	PackDirName    = "pack"
	TmpDirName     = "tmp"
)

// Layout is the absolute path of a git directory and derives every path the
// object database touches. It is pure path arithmetic; nothing here goes to
// the filesystem.
//
// Persisted layout:
//
//	HEAD                         symbolic or direct ref
//	packed-refs                  optional side table of references
//	refs/                        nested directory of reference files
//	objects/<xx>/<38hex>         loose objects
//	objects/pack/pack-<h>.pack   pack files
//	objects/pack/pack-<h>.idx    pack indices
//	objects/info/                reserved
//	tmp/                         scratch for ingestion and atomic writes
type Layout string

// NewLayout creates a Layout rooted at the given git directory.
// The path is made absolute.
func NewLayout(root string) (Layout, error) {
	if root == "" {
		return "", fmt.Errorf("git directory path cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve git directory: %w", err)
	}
	return Layout(abs), nil
}

// Root returns the git directory path.
func (l Layout) Root() string {
	return string(l)
}

// Head returns the path of the HEAD file.
func (l Layout) Head() string {
	return filepath.Join(string(l), HeadFile)
}

// PackedRefs returns the path of the packed-refs side file.
func (l Layout) PackedRefs() string {
	return filepath.Join(string(l), PackedRefsFile)
}

// RefsDir returns the path of the refs/ directory.
func (l Layout) RefsDir() string {
	return filepath.Join(string(l), RefsDirName)
}

// Ref returns the per-file path of a reference. HEAD maps to the top-level
// HEAD file; every other name is resolved below the git directory, so
// "refs/heads/master" lands in refs/heads/master.
func (l Layout) Ref(name string) string {
	if name == HeadFile {
		return l.Head()
	}
	return filepath.Join(string(l), filepath.FromSlash(name))
}

// ObjectsDir returns the path of the objects/ directory.
func (l Layout) ObjectsDir() string {
	return filepath.Join(string(l), ObjectsDirName)
}

// InfoDir returns the path of the reserved objects/info/ directory.
func (l Layout) InfoDir() string {
	return filepath.Join(l.ObjectsDir(), InfoDirName)
}

// LooseDir returns the fan-out directory for a two-hex-character prefix.
func (l Layout) LooseDir(prefix string) string {
	return filepath.Join(l.ObjectsDir(), prefix)
}

// LooseObject returns the file path of a loose object given its full hex
// digest: objects/<first two chars>/<remaining 38>.
func (l Layout) LooseObject(hexDigest string) (string, error) {
	if len(hexDigest) != 40 {
		return "", fmt.Errorf("digest must be 40 hex characters, got %d", len(hexDigest))
	}
	return filepath.Join(l.ObjectsDir(), hexDigest[:2], hexDigest[2:]), nil
}

// PackDir returns the path of the objects/pack/ directory.
func (l Layout) PackDir() string {
	return filepath.Join(l.ObjectsDir(), PackDirName)
}

// PackFile returns the path of a pack file named by its trailing digest.
func (l Layout) PackFile(hexDigest string) string {
	return filepath.Join(l.PackDir(), "pack-"+hexDigest+".pack")
}

// IndexFile returns the path of the index sidecar for a pack digest.
func (l Layout) IndexFile(hexDigest string) string {
	return filepath.Join(l.PackDir(), "pack-"+hexDigest+".idx")
}

// TmpDir returns the scratch directory used for ingestion and atomic writes.
func (l Layout) TmpDir() string {
	return filepath.Join(string(l), TmpDirName)
}

// PackName extracts the hex digest from a pack or index file name.
// Returns false when the name does not follow the pack-<40 hex>.<ext> shape.
func PackName(filename string) (string, bool) {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if ext != ".pack" && ext != ".idx" {
		return "", false
	}
	stem := strings.TrimSuffix(base, ext)
	if !strings.HasPrefix(stem, "pack-") {
		return "", false
	}
	digest := strings.TrimPrefix(stem, "pack-")
	if len(digest) != 40 {
		return "", false
	}
	for _, c := range digest {
		if !isHexChar(c) {
			return "", false
		}
	}
	return digest, true
}

func isHexChar(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
}
