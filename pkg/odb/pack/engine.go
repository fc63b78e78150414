package pack

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/samoht/gitobj/pkg/cache"
	"github.com/samoht/gitobj/pkg/codec"
	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/common/logger"
	"github.com/samoht/gitobj/pkg/fsys"
	"github.com/samoht/gitobj/pkg/gitpath"
	"github.com/samoht/gitobj/pkg/objects"
)

// EngineConfig tunes the engine's caches.
type EngineConfig struct {
	// HandleCap bounds hot pack, index, and reverse-index handles. Zero
	// means the default.
	HandleCap int

	// BaseBudget bounds the delta-base cache in bytes. Zero means the
	// default.
	BaseBudget int64

	// ArenaBuffers bounds per-pack scratch buffers. Zero means the
	// default.
	ArenaBuffers int
}

// Engine aggregates every registered pack behind one read surface. Lookups
// try packs most-recently-added first; handle caches bound how many packs
// keep OS resources open at once, and eviction only releases resources, a
// registered pack heals on its next use.
type Engine struct {
	fs     fsys.FS
	layout gitpath.Layout
	codec  codec.Codec
	arena  *Arena
	bases  *cache.Weighted[BaseKey, CachedBase]
	log    *slog.Logger

	// external resolves ref-delta bases outside every pack, typically the
	// loose backend.
	external BaseReader

	mu    sync.RWMutex
	packs map[objects.Hash]*Reader
	order []objects.Hash // most recently registered first

	idxHot *lru.Cache[objects.Hash, *Index]
	pakHot *lru.Cache[objects.Hash, *Reader]
	revHot *lru.Cache[objects.Hash, *RevIndex]
}

// NewEngine creates an engine over the pack directory of a layout. No packs
// are registered; call Scan or Add.
func NewEngine(fs fsys.FS, layout gitpath.Layout, c codec.Codec, cfg EngineConfig) (*Engine, error) {
	budget := cfg.BaseBudget
	if budget <= 0 {
		budget = cache.DefaultByteBudget
	}

	bases, berr := cache.NewWeighted[BaseKey](budget, func(b CachedBase) int64 {
		return b.Weigh()
	})
	if berr != nil {
		return nil, err.Wrap(berr, pkgName, "new_engine")
	}

	idxHot, ierr := cache.NewHandles(cfg.HandleCap, func(_ objects.Hash, ix *Index) {
		ix.Release()
	})
	if ierr != nil {
		return nil, err.Wrap(ierr, pkgName, "new_engine")
	}
	pakHot, perr := cache.NewHandles(cfg.HandleCap, func(_ objects.Hash, r *Reader) {
		r.Close()
	})
	if perr != nil {
		return nil, err.Wrap(perr, pkgName, "new_engine")
	}
	revHot, rerr := cache.NewHandles[objects.Hash, *RevIndex](cfg.HandleCap, nil)
	if rerr != nil {
		return nil, err.Wrap(rerr, pkgName, "new_engine")
	}

	return &Engine{
		fs:     fs,
		layout: layout,
		codec:  c,
		arena:  NewArena(cfg.ArenaBuffers),
		bases:  bases,
		log:    logger.With("component", "pack-engine"),
		packs:  make(map[objects.Hash]*Reader),
		idxHot: idxHot,
		pakHot: pakHot,
		revHot: revHot,
	}, nil
}

// SetExternalBases installs the resolver for ref-delta bases that live in no
// registered pack.
func (e *Engine) SetExternalBases(fn BaseReader) {
	e.mu.Lock()
	e.external = fn
	e.mu.Unlock()
}

// Scan walks the pack directory and registers every pack that has both
// files and is not yet known.
func (e *Engine) Scan() error {
	entries, derr := e.fs.ReadDir(e.layout.PackDir())
	if derr != nil {
		if ok, _ := fsys.Exists(e.fs, e.layout.PackDir()); !ok {
			return nil
		}
		return err.FsIo(pkgName, "scan_dir", e.layout.PackDir(), derr)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".idx") {
			continue
		}
		digest, ok := gitpath.PackName(entry.Name())
		if !ok {
			continue
		}

		h, herr := objects.HashFromHex(digest)
		if herr != nil {
			continue
		}
		if e.isRegistered(h) {
			continue
		}
		if ok, _ := fsys.Exists(e.fs, e.layout.PackFile(digest)); !ok {
			e.log.Warn("pack index without pack file", "digest", digest)
			continue
		}

		if _, aerr := e.Add(e.layout.PackFile(digest), e.layout.IndexFile(digest)); aerr != nil {
			return aerr
		}
	}
	return nil
}

// Add registers a pack from its two on-disk files. The index's recorded
// pack digest must match the pack file's trailer; a mismatched pair is
// rejected and nothing is registered.
func (e *Engine) Add(packPath, idxPath string) (objects.Hash, error) {
	ix := OpenIndex(e.fs, idxPath)
	packHash, herr := ix.PackHash()
	if herr != nil {
		return objects.Hash{}, herr
	}

	trailer, terr := e.packTrailer(packPath)
	if terr != nil {
		ix.Close()
		return objects.Hash{}, terr
	}
	if trailer != packHash {
		ix.Close()
		return objects.Hash{}, err.New(pkgName, err.CodeIndexDecode, "add",
			fmt.Sprintf("index records pack %s, file trailer is %s", packHash.Hex(), trailer.Hex()), nil).
			WithContext("path", idxPath)
	}

	reader := NewReader(e.fs, packPath, packHash, ix, e.codec, e.arena, e.bases,
		e.baseResolver(packHash))

	e.mu.Lock()
	if _, dup := e.packs[packHash]; dup {
		e.mu.Unlock()
		ix.Close()
		return packHash, nil
	}
	e.packs[packHash] = reader
	e.order = append([]objects.Hash{packHash}, e.order...)
	e.mu.Unlock()

	e.log.Debug("registered pack", "digest", packHash.Hex())
	return packHash, nil
}

// Remove unregisters a pack and releases its resources. The files are left
// on disk for the caller to delete.
func (e *Engine) Remove(h objects.Hash) {
	e.mu.Lock()
	reader, ok := e.packs[h]
	if ok {
		delete(e.packs, h)
		for i, ph := range e.order {
			if ph == h {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()

	if ok {
		e.idxHot.Remove(h)
		e.pakHot.Remove(h)
		e.revHot.Remove(h)
		reader.Index().Close()
		reader.Close()
		e.arena.Drop(h)
	}
}

// Packs returns the registered pack digests, most recently added first.
func (e *Engine) Packs() []objects.Hash {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]objects.Hash, len(e.order))
	copy(out, e.order)
	return out
}

// Has reports whether any registered pack contains the object.
func (e *Engine) Has(h objects.Hash) (bool, error) {
	r, _, ferr := e.find(h)
	if ferr != nil {
		return false, ferr
	}
	return r != nil, nil
}

// Read reconstructs and decodes an object from whichever pack holds it.
func (e *Engine) Read(h objects.Hash) (objects.Object, error) {
	r, rerr := e.mustFind(h, "read")
	if rerr != nil {
		return nil, rerr
	}
	return r.Read(h)
}

// ReadRaw reconstructs an object's kind and payload.
func (e *Engine) ReadRaw(h objects.Hash) (objects.Kind, []byte, error) {
	r, rerr := e.mustFind(h, "read")
	if rerr != nil {
		return "", nil, rerr
	}
	return r.ReadRaw(h)
}

// ReadRawInto reconstructs an object into a caller-supplied buffer.
func (e *Engine) ReadRawInto(buf []byte, h objects.Hash) (objects.Kind, int, error) {
	r, rerr := e.mustFind(h, "read_into")
	if rerr != nil {
		return "", 0, rerr
	}
	return r.ReadRawInto(buf, h)
}

// Size returns an object's payload length without reconstructing it.
func (e *Engine) Size(h objects.Hash) (int64, error) {
	r, rerr := e.mustFind(h, "size")
	if rerr != nil {
		return 0, rerr
	}
	return r.Size(h)
}

// Kind returns an object's kind without reconstructing it.
func (e *Engine) Kind(h objects.Hash) (objects.Kind, error) {
	r, rerr := e.mustFind(h, "kind")
	if rerr != nil {
		return "", rerr
	}
	return r.Kind(h)
}

// List unions the digests of every registered pack. Indexes are read
// concurrently; duplicates across packs collapse.
func (e *Engine) List() ([]objects.Hash, error) {
	e.mu.RLock()
	readers := make([]*Reader, 0, len(e.packs))
	for _, r := range e.packs {
		readers = append(readers, r)
	}
	e.mu.RUnlock()

	var mu sync.Mutex
	seen := make(map[objects.Hash]struct{})

	var g errgroup.Group
	for _, r := range readers {
		g.Go(func() error {
			entries, eerr := r.Index().Entries()
			if eerr != nil {
				return eerr
			}
			mu.Lock()
			for _, ie := range entries {
				seen[ie.Hash] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if gerr := g.Wait(); gerr != nil {
		return nil, gerr
	}

	out := make([]objects.Hash, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out, nil
}

// RevIndexOf returns the reverse index for a pack, building and caching it
// on first use.
func (e *Engine) RevIndexOf(h objects.Hash) (*RevIndex, error) {
	if rv, ok := e.revHot.Get(h); ok {
		return rv, nil
	}

	e.mu.RLock()
	reader, ok := e.packs[h]
	e.mu.RUnlock()
	if !ok {
		return nil, err.New(pkgName, err.CodeNotFound, "revindex", h.Hex(), nil)
	}

	rv, rerr := NewRevIndex(reader.Index())
	if rerr != nil {
		return nil, rerr
	}
	e.revHot.Add(h, rv)
	return rv, nil
}

// Reader returns the registered reader for a pack digest.
func (e *Engine) Reader(h objects.Hash) (*Reader, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.packs[h]
	return r, ok
}

// ClearCaches drops the delta-base cache and releases hot handles.
func (e *Engine) ClearCaches() {
	e.bases.Purge()
	e.idxHot.Purge()
	e.pakHot.Purge()
	e.revHot.Purge()
}

// Close unregisters every pack and releases all resources.
func (e *Engine) Close() error {
	for _, h := range e.Packs() {
		e.Remove(h)
	}
	e.ClearCaches()
	return nil
}

// find locates the pack holding an object, touching the handle caches.
func (e *Engine) find(h objects.Hash) (*Reader, objects.Hash, error) {
	e.mu.RLock()
	order := e.order
	readers := make([]*Reader, len(order))
	for i, ph := range order {
		readers[i] = e.packs[ph]
	}
	e.mu.RUnlock()

	for i, r := range readers {
		ok, lerr := r.Has(h)
		if lerr != nil {
			return nil, objects.Hash{}, lerr
		}
		if ok {
			e.touch(order[i], r)
			return r, order[i], nil
		}
	}
	return nil, objects.Hash{}, nil
}

func (e *Engine) mustFind(h objects.Hash, op string) (*Reader, error) {
	r, _, ferr := e.find(h)
	if ferr != nil {
		return nil, ferr
	}
	if r == nil {
		return nil, err.New(pkgName, err.CodeNotFound, op, h.Hex(), nil)
	}
	return r, nil
}

// touch marks a pack hot. Evicted handles release OS resources; both the
// index and the reader reopen lazily if used again.
func (e *Engine) touch(h objects.Hash, r *Reader) {
	e.idxHot.Add(h, r.Index())
	e.pakHot.Add(h, r)
}

// isRegistered reports whether a pack digest is already known.
func (e *Engine) isRegistered(h objects.Hash) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.packs[h]
	return ok
}

// baseResolver builds the out-of-pack ref-delta fallback for one reader:
// the external resolver first, then every other registered pack.
func (e *Engine) baseResolver(origin objects.Hash) BaseReader {
	return func(h objects.Hash) (objects.Kind, []byte, error) {
		e.mu.RLock()
		external := e.external
		others := make([]*Reader, 0, len(e.packs))
		for ph, r := range e.packs {
			if ph != origin {
				others = append(others, r)
			}
		}
		e.mu.RUnlock()

		if external != nil {
			if kind, payload, berr := external(h); berr == nil {
				return kind, payload, nil
			}
		}
		for _, r := range others {
			if ok, _ := r.Has(h); ok {
				return r.ReadRaw(h)
			}
		}
		return "", nil, err.New(pkgName, err.CodeNotFound, "base", h.Hex(), nil)
	}
}

// packTrailer reads the trailing digest of a pack file.
func (e *Engine) packTrailer(packPath string) (objects.Hash, error) {
	info, serr := e.fs.Stat(packPath)
	if serr != nil {
		return objects.Hash{}, err.FsIo(pkgName, "add", packPath, serr)
	}
	if info.Size() < HeaderLen+objects.HashSize {
		return objects.Hash{}, err.New(pkgName, err.CodePackDecode, "add",
			fmt.Sprintf("pack too short: %d bytes", info.Size()), nil).
			WithContext("path", packPath)
	}

	region, merr := e.fs.Map(packPath, info.Size()-objects.HashSize, objects.HashSize)
	if merr != nil {
		return objects.Hash{}, err.FsIo(pkgName, "add", packPath, merr)
	}
	defer region.Close()
	return hashFrom(region.Bytes()), nil
}
