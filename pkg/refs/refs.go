// Package refs implements the reference store: one file per loose reference
// under the git directory, shadowed by an optional packed-refs side table.
// A loose file always wins over a packed record of the same name.
package refs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/fsys"
	"github.com/samoht/gitobj/pkg/gitpath"
	"github.com/samoht/gitobj/pkg/objects"
)

const pkgName = "refs"

const (
	// DefaultBranch is where HEAD points in a fresh store.
	DefaultBranch = "refs/heads/master"

	// symrefPrefix marks a symbolic reference file.
	symrefPrefix = "ref: "

	// maxSymrefHops bounds symbolic reference chains during resolution.
	maxSymrefHops = 10
)

// Value is the content of a reference: a direct object digest, or a
// symbolic target naming another reference.
type Value struct {
	Hash   objects.Hash
	Target string
}

// IsSymbolic reports whether the value names another reference.
func (v Value) IsSymbolic() bool {
	return v.Target != ""
}

// Direct makes a direct reference value.
func Direct(h objects.Hash) Value {
	return Value{Hash: h}
}

// Symbolic makes a symbolic reference value.
func Symbolic(target string) Value {
	return Value{Target: target}
}

// Store reads and writes references below a git directory. Safe for
// concurrent use; mutations serialize on an internal lock.
type Store struct {
	fs     fsys.FS
	layout gitpath.Layout

	mu sync.Mutex
}

// New creates a reference store over the given capabilities.
func New(fs fsys.FS, layout gitpath.Layout) *Store {
	return &Store{fs: fs, layout: layout}
}

// Init creates the reference skeleton: refs/heads, refs/tags, and a HEAD
// pointing at the default branch. An existing HEAD is left alone.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dir := range []string{
		filepath.Join(s.layout.RefsDir(), "heads"),
		filepath.Join(s.layout.RefsDir(), "tags"),
	} {
		if derr := s.fs.MkdirAll(dir, 0755); derr != nil {
			return err.FsIo(pkgName, "init", dir, derr)
		}
	}

	if ok, _ := fsys.Exists(s.fs, s.layout.Head()); ok {
		return nil
	}
	head := []byte(symrefPrefix + DefaultBranch + "\n")
	if werr := fsys.AtomicWrite(s.fs, s.layout.Head(), head, 0644); werr != nil {
		return err.FsIo(pkgName, "init", s.layout.Head(), werr)
	}
	return nil
}

// Has reports whether a reference exists, loose or packed.
func (s *Store) Has(name string) (bool, error) {
	if verr := ValidateName(name); verr != nil {
		return false, s.invalid("has", verr)
	}

	if ok, _ := fsys.Exists(s.fs, s.layout.Ref(name)); ok {
		return true, nil
	}
	_, found, perr := s.lookupPacked(name)
	return found, perr
}

// Read returns a reference's value without following symbolic targets. The
// loose file shadows any packed record.
func (s *Store) Read(name string) (Value, error) {
	if verr := ValidateName(name); verr != nil {
		return Value{}, s.invalid("read", verr)
	}

	data, rerr := fsys.ReadAll(s.fs, s.layout.Ref(name))
	if rerr == nil {
		return parseValue(name, data)
	}
	if !errors.Is(rerr, fs.ErrNotExist) {
		return Value{}, err.FsIo(pkgName, "read", s.layout.Ref(name), rerr)
	}

	if packed, found, perr := s.lookupPacked(name); perr != nil {
		return Value{}, perr
	} else if found {
		return Direct(packed.hash), nil
	}
	return Value{}, err.New(pkgName, err.CodeNotFound, "read", name, nil)
}

// Resolve follows symbolic references until a digest is reached. Chains
// longer than the hop limit are rejected.
func (s *Store) Resolve(name string) (objects.Hash, error) {
	current := name
	for hop := 0; hop <= maxSymrefHops; hop++ {
		v, rerr := s.Read(current)
		if rerr != nil {
			return objects.Hash{}, rerr
		}
		if !v.IsSymbolic() {
			return v.Hash, nil
		}
		current = v.Target
	}
	return objects.Hash{}, err.New(pkgName, err.CodeInvalidReference, "resolve",
		fmt.Sprintf("%s: more than %d symbolic hops", name, maxSymrefHops), nil)
}

// Write stores a reference value as a loose file. A packed record of the
// same name is dropped from the table, since the loose file supersedes it.
func (s *Store) Write(name string, v Value) error {
	if verr := ValidateName(name); verr != nil {
		return s.invalid("write", verr)
	}

	var content string
	switch {
	case v.IsSymbolic():
		if verr := ValidateName(v.Target); verr != nil {
			return s.invalid("write", verr)
		}
		content = symrefPrefix + v.Target + "\n"
	case v.Hash.IsZero():
		return err.New(pkgName, err.CodeInvalidReference, "write",
			fmt.Sprintf("%s: refusing to write the zero digest", name), nil)
	default:
		content = v.Hash.Hex() + "\n"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if werr := fsys.AtomicWrite(s.fs, s.layout.Ref(name), []byte(content), 0644); werr != nil {
		return err.FsIo(pkgName, "write", s.layout.Ref(name), werr)
	}
	_, derr := s.dropPacked(name)
	return derr
}

// Remove deletes a reference from both the loose tree and the packed table.
func (s *Store) Remove(name string) error {
	if verr := ValidateName(name); verr != nil {
		return s.invalid("remove", verr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	if rerr := s.fs.Remove(s.layout.Ref(name)); rerr == nil {
		removed = true
	} else if !os.IsNotExist(rerr) {
		return err.FsIo(pkgName, "remove", s.layout.Ref(name), rerr)
	}

	dropped, derr := s.dropPacked(name)
	if derr != nil {
		return derr
	}

	if !removed && !dropped {
		return err.New(pkgName, err.CodeNotFound, "remove", name, nil)
	}
	return nil
}

// dropPacked rewrites the packed table without the named reference. Caller
// holds the lock.
func (s *Store) dropPacked(name string) (bool, error) {
	packed, perr := s.readPacked()
	if perr != nil {
		return false, perr
	}
	kept := packed[:0]
	for _, r := range packed {
		if r.name == name {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == len(packed) {
		return false, nil
	}
	return true, s.writePacked(kept)
}

// List returns every reference name, loose and packed, sorted. HEAD is not
// included.
func (s *Store) List() ([]string, error) {
	names := make(map[string]struct{})

	packed, perr := s.readPacked()
	if perr != nil {
		return nil, perr
	}
	for _, r := range packed {
		names[r.name] = struct{}{}
	}

	if werr := s.walkLoose(s.layout.RefsDir(), gitpath.RefsDirName, names); werr != nil {
		return nil, werr
	}

	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// Graph resolves every reference concurrently and returns the name-to-digest
// table. Dangling symbolic references are skipped rather than failing the
// whole walk.
func (s *Store) Graph(ctx context.Context) (map[string]objects.Hash, error) {
	names, lerr := s.List()
	if lerr != nil {
		return nil, lerr
	}

	var mu sync.Mutex
	graph := make(map[string]objects.Hash, len(names))

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			h, rerr := s.Resolve(name)
			if rerr != nil {
				if err.IsCode(rerr, err.CodeNotFound) {
					return nil
				}
				return rerr
			}
			mu.Lock()
			graph[name] = h
			mu.Unlock()
			return nil
		})
	}
	if gerr := g.Wait(); gerr != nil {
		return nil, gerr
	}
	return graph, nil
}

// Normalize resolves a reference value against a prebuilt graph, following
// symbolic targets through the table instead of the filesystem.
func Normalize(graph map[string]objects.Hash, v Value) (objects.Hash, error) {
	for hop := 0; hop <= maxSymrefHops; hop++ {
		if !v.IsSymbolic() {
			return v.Hash, nil
		}
		h, ok := graph[v.Target]
		if !ok {
			return objects.Hash{}, err.New(pkgName, err.CodeNotFound, "normalize", v.Target, nil)
		}
		v = Direct(h)
	}
	return objects.Hash{}, err.New(pkgName, err.CodeInvalidReference, "normalize",
		fmt.Sprintf("more than %d symbolic hops", maxSymrefHops), nil)
}

// Pack migrates every loose direct reference into the packed table and
// removes the loose files. Symbolic references stay loose.
func (s *Store) Pack() error {
	names, lerr := s.List()
	if lerr != nil {
		return lerr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	packed, perr := s.readPacked()
	if perr != nil {
		return perr
	}
	byName := make(map[string]int, len(packed))
	for i, r := range packed {
		byName[r.name] = i
	}

	var toRemove []string
	for _, name := range names {
		data, rerr := fsys.ReadAll(s.fs, s.layout.Ref(name))
		if rerr != nil {
			continue // packed-only
		}
		v, verr := parseValue(name, data)
		if verr != nil || v.IsSymbolic() {
			continue
		}
		if i, ok := byName[name]; ok {
			packed[i].hash = v.Hash
			packed[i].peeled = objects.Hash{}
		} else {
			byName[name] = len(packed)
			packed = append(packed, packedRef{name: name, hash: v.Hash})
		}
		toRemove = append(toRemove, name)
	}

	if werr := s.writePacked(packed); werr != nil {
		return werr
	}
	for _, name := range toRemove {
		s.fs.Remove(s.layout.Ref(name))
	}
	return nil
}

// walkLoose recurses through a refs directory collecting slash-separated
// reference names.
func (s *Store) walkLoose(dir, prefix string, names map[string]struct{}) error {
	entries, derr := s.fs.ReadDir(dir)
	if derr != nil {
		if os.IsNotExist(derr) {
			return nil
		}
		return err.FsIo(pkgName, "list", dir, derr)
	}

	for _, entry := range entries {
		name := prefix + "/" + entry.Name()
		if entry.IsDir() {
			if werr := s.walkLoose(filepath.Join(dir, entry.Name()), name, names); werr != nil {
				return werr
			}
			continue
		}
		if strings.HasSuffix(entry.Name(), ".lock") {
			continue
		}
		names[name] = struct{}{}
	}
	return nil
}

// parseValue interprets a loose reference file.
func parseValue(name string, data []byte) (Value, error) {
	content := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(content, symrefPrefix); ok {
		return Symbolic(strings.TrimSpace(target)), nil
	}

	h, herr := objects.HashFromHex(content)
	if herr != nil {
		return Value{}, err.New(pkgName, err.CodeDecode, "read",
			fmt.Sprintf("%s: not a digest or symbolic target", name), herr)
	}
	return Direct(h), nil
}

func (s *Store) invalid(op string, cause error) error {
	return err.New(pkgName, err.CodeInvalidReference, op, cause.Error(), nil)
}
