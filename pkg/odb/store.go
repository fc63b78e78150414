// Package odb is the object database façade: one handle combining the loose
// backend, the pack engine, the reference store, and the value caches.
// Reads route cache first, then packs, then loose; writes land loose and
// move into packs only through ingestion or repacking.
package odb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/samoht/gitobj/pkg/cache"
	"github.com/samoht/gitobj/pkg/codec"
	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/common/logger"
	"github.com/samoht/gitobj/pkg/fsys"
	"github.com/samoht/gitobj/pkg/gitpath"
	"github.com/samoht/gitobj/pkg/objects"
	"github.com/samoht/gitobj/pkg/odb/loose"
	"github.com/samoht/gitobj/pkg/odb/pack"
	"github.com/samoht/gitobj/pkg/refs"
)

const pkgName = "odb"

// Entry pairs a digest with its decoded object.
type Entry struct {
	Hash   objects.Hash
	Object objects.Object
}

// Store is the object database rooted at a git directory.
type Store struct {
	fs     fsys.FS
	layout gitpath.Layout
	codec  codec.Codec
	cfg    *config
	log    *slog.Logger

	loose  *loose.Store
	refs   *refs.Store
	values *cache.Weighted[objects.Hash, cachedValue]

	mu     sync.RWMutex
	engine *pack.Engine
}

type cachedValue struct {
	obj  objects.Object
	size int64
}

// Open opens (and if needed initializes) the object database below gitDir.
func Open(gitDir string, opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.codec == nil {
		z, zerr := codec.NewZlib(cfg.level)
		if zerr != nil {
			return nil, err.Wrap(zerr, pkgName, "open")
		}
		cfg.codec = z
	}

	layout, lerr := gitpath.NewLayout(gitDir)
	if lerr != nil {
		return nil, err.Wrap(lerr, pkgName, "open")
	}

	s := &Store{
		fs:     cfg.fs,
		layout: layout,
		codec:  cfg.codec,
		cfg:    cfg,
		log:    logger.With("component", "odb"),
	}
	s.loose = loose.New(cfg.fs, layout, cfg.codec)
	s.refs = refs.New(cfg.fs, layout)

	values, verr := cache.NewWeighted[objects.Hash](cfg.cacheBytes, func(v cachedValue) int64 {
		return v.size + objects.HashSize
	})
	if verr != nil {
		return nil, err.Wrap(verr, pkgName, "open")
	}
	s.values = values

	if ierr := s.initSkeleton(); ierr != nil {
		return nil, ierr
	}

	engine, eerr := s.newEngine()
	if eerr != nil {
		return nil, eerr
	}
	s.engine = engine
	return s, nil
}

// Close releases the pack engine's resources.
func (s *Store) Close() error {
	return s.packs().Close()
}

// Refs returns the reference store.
func (s *Store) Refs() *refs.Store {
	return s.refs
}

// Layout returns the path layout of the git directory.
func (s *Store) Layout() gitpath.Layout {
	return s.layout
}

// Packs returns the registered pack digests.
func (s *Store) Packs() []objects.Hash {
	return s.packs().Packs()
}

// Has reports whether the object exists in any backend.
func (s *Store) Has(h objects.Hash) (bool, error) {
	if _, ok := s.values.Get(h); ok {
		return true, nil
	}
	if ok, perr := s.packs().Has(h); perr != nil {
		return false, perr
	} else if ok {
		return true, nil
	}
	return s.loose.Has(h), nil
}

// Read returns the decoded object under the digest: value cache, then
// packs, then loose, filling the cache on a miss.
func (s *Store) Read(h objects.Hash) (objects.Object, error) {
	if v, ok := s.values.Get(h); ok {
		return v.obj, nil
	}

	kind, payload, rerr := s.ReadInflated(h)
	if rerr != nil {
		return nil, rerr
	}
	obj, derr := objects.Decode(kind, payload)
	if derr != nil {
		return nil, err.New(pkgName, err.CodeDecode, "read", h.Hex(), derr)
	}

	s.values.Add(h, cachedValue{obj: obj, size: int64(len(payload))})
	return obj, nil
}

// ReadInflated returns an object's kind and payload without decoding.
func (s *Store) ReadInflated(h objects.Hash) (objects.Kind, []byte, error) {
	kind, payload, perr := s.packs().ReadRaw(h)
	if perr == nil {
		return kind, payload, nil
	}
	if !err.IsCode(perr, err.CodeNotFound) {
		return "", nil, perr
	}
	return s.loose.ReadInflated(h)
}

// Size returns an object's payload length without materializing it.
func (s *Store) Size(h objects.Hash) (int64, error) {
	if v, ok := s.values.Get(h); ok {
		return v.size, nil
	}

	n, perr := s.packs().Size(h)
	if perr == nil {
		return n, nil
	}
	if !err.IsCode(perr, err.CodeNotFound) {
		return 0, perr
	}
	return s.loose.Size(h)
}

// Kind returns an object's kind without materializing it.
func (s *Store) Kind(h objects.Hash) (objects.Kind, error) {
	if v, ok := s.values.Get(h); ok {
		return v.obj.Kind(), nil
	}

	kind, perr := s.packs().Kind(h)
	if perr == nil {
		return kind, nil
	}
	if !err.IsCode(perr, err.CodeNotFound) {
		return "", perr
	}
	return s.loose.Kind(h)
}

// Write stores an object loose, returning its digest and the compressed
// byte count. Idempotent for equal content.
func (s *Store) Write(obj objects.Object) (objects.Hash, int64, error) {
	h, n, werr := s.loose.Write(obj)
	if werr != nil {
		return objects.Hash{}, 0, werr
	}

	if size, serr := obj.Size(); serr == nil {
		s.values.Add(h, cachedValue{obj: obj, size: size})
	}
	return h, n, nil
}

// WriteInflated stores raw canonical content given its kind and payload.
func (s *Store) WriteInflated(kind objects.Kind, payload []byte) (objects.Hash, error) {
	return s.loose.WriteInflated(kind, payload)
}

// List returns every object digest across both backends, sorted and
// de-duplicated.
func (s *Store) List() ([]objects.Hash, error) {
	packed, perr := s.packs().List()
	if perr != nil {
		return nil, perr
	}
	unpacked, lerr := s.loose.List()
	if lerr != nil {
		return nil, lerr
	}

	seen := make(map[objects.Hash]struct{}, len(packed)+len(unpacked))
	for _, h := range packed {
		seen[h] = struct{}{}
	}
	for _, h := range unpacked {
		seen[h] = struct{}{}
	}

	out := make([]objects.Hash, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out, nil
}

// Contents decodes every object in the store, reading concurrently.
func (s *Store) Contents(ctx context.Context) ([]Entry, error) {
	hashes, lerr := s.List()
	if lerr != nil {
		return nil, lerr
	}

	entries := make([]Entry, len(hashes))
	g, ctx := errgroup.WithContext(ctx)
	for i, h := range hashes {
		g.Go(func() error {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			obj, rerr := s.Read(h)
			if rerr != nil {
				return rerr
			}
			entries[i] = Entry{Hash: h, Object: obj}
			return nil
		})
	}
	if gerr := g.Wait(); gerr != nil {
		return nil, gerr
	}
	return entries, nil
}

// IngestPack streams a complete pack into the store and registers it.
func (s *Store) IngestPack(ctx context.Context, r io.Reader) (objects.Hash, uint32, error) {
	return s.packs().Ingest(ctx, r, s.cfg.stallLimit)
}

// MakePack writes the given objects as a pack stream to out, delta-planned
// with the given window and depth. Object payloads are read from the store.
func (s *Store) MakePack(out io.Writer, hashes []objects.Hash, window, depth int) (objects.Hash, []pack.WrittenEntry, error) {
	inputs := make([]pack.InputObject, 0, len(hashes))
	for _, h := range hashes {
		kind, payload, rerr := s.ReadInflated(h)
		if rerr != nil {
			return objects.Hash{}, nil, rerr
		}
		inputs = append(inputs, pack.InputObject{Hash: h, Kind: kind, Payload: payload})
	}

	w := &pack.Writer{Codec: s.codec, Window: window, Depth: depth}
	return w.WritePack(out, inputs)
}

// Repack gathers every live object into one new pack, ingests it, and
// removes the packs it supersedes. Loose objects are left in place.
func (s *Store) Repack(ctx context.Context, window, depth int) (objects.Hash, error) {
	hashes, lerr := s.List()
	if lerr != nil {
		return objects.Hash{}, lerr
	}
	if len(hashes) == 0 {
		return objects.Hash{}, err.New(pkgName, err.CodeNotFound, "repack", "store is empty", nil)
	}

	before := s.packs().Packs()

	pr, pw := io.Pipe()
	done := make(chan struct{})
	var packHash objects.Hash
	var writeErr error
	go func() {
		defer close(done)
		packHash, _, writeErr = s.MakePack(pw, hashes, window, depth)
		pw.CloseWithError(writeErr)
	}()

	ingested, _, ierr := s.IngestPack(ctx, pr)
	pr.Close()
	<-done
	if writeErr != nil {
		return objects.Hash{}, writeErr
	}
	if ierr != nil {
		return objects.Hash{}, ierr
	}
	if ingested != packHash {
		return objects.Hash{}, err.New(pkgName, err.CodePackDecode, "repack",
			fmt.Sprintf("ingested %s but wrote %s", ingested.Hex(), packHash.Hex()), nil)
	}

	for _, old := range before {
		if old == ingested {
			continue
		}
		s.packs().Remove(old)
		s.fs.Remove(s.layout.PackFile(old.Hex()))
		s.fs.Remove(s.layout.IndexFile(old.Hex()))
	}

	s.log.Info("repacked", "objects", len(hashes), "pack", ingested.Hex(), "superseded", len(before))
	return ingested, nil
}

// PackObjectCount returns how many objects a registered pack holds.
func (s *Store) PackObjectCount(h objects.Hash) (int, error) {
	r, ok := s.packs().Reader(h)
	if !ok {
		return 0, err.New(pkgName, err.CodeNotFound, "pack_count", h.Hex(), nil)
	}
	return r.Index().Count()
}

// VerifyPack rescans a registered pack against its index: structure,
// per-entry CRCs, both trailing digests, and the offset-to-digest mapping
// seen through the reverse index.
func (s *Store) VerifyPack(h objects.Hash) error {
	r, ok := s.packs().Reader(h)
	if !ok {
		return err.New(pkgName, err.CodeNotFound, "verify_pack", h.Hex(), nil)
	}

	region, merr := s.fs.Map(r.Path(), 0, -1)
	if merr != nil {
		return err.FsIo(pkgName, "verify_pack", r.Path(), merr)
	}
	defer region.Close()

	if verr := pack.Verify(region.Bytes(), r.Index(), s.codec); verr != nil {
		return verr
	}

	// Delta reads resolve offsets through the reverse index, so every index
	// record must map back to its own digest. Duplicated offsets in the
	// index survive the CRC pass but not this one.
	rv, rerr := s.packs().RevIndexOf(h)
	if rerr != nil {
		return rerr
	}
	entries, eerr := r.Index().Entries()
	if eerr != nil {
		return eerr
	}
	for _, ie := range entries {
		got, ok := rv.HashAt(ie.Offset)
		if !ok || got != ie.Hash {
			return err.New(pkgName, err.CodeIndexDecode, "verify_pack",
				fmt.Sprintf("offset %d resolves to %s, index lists %s", ie.Offset, got.Hex(), ie.Hash.Hex()), nil)
		}
	}
	return nil
}

// ClearCaches drops the value cache and the engine's caches and hot
// handles.
func (s *Store) ClearCaches() {
	s.values.Purge()
	s.packs().ClearCaches()
}

// Reset wipes the store back to a fresh state: all objects, packs, and
// references are removed and the skeleton is recreated.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine.Close()
	s.values.Purge()

	for _, p := range []string{
		s.layout.ObjectsDir(),
		s.layout.RefsDir(),
		s.layout.TmpDir(),
		s.layout.Head(),
		s.layout.PackedRefs(),
	} {
		if rerr := s.fs.RemoveAll(p); rerr != nil {
			return err.FsIo(pkgName, "reset", p, rerr)
		}
	}

	if ierr := s.initSkeleton(); ierr != nil {
		return ierr
	}
	engine, eerr := s.newEngine()
	if eerr != nil {
		return eerr
	}
	s.engine = engine
	return nil
}

// packs returns the current engine under the reset lock.
func (s *Store) packs() *pack.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// initSkeleton creates the directory layout and HEAD.
func (s *Store) initSkeleton() error {
	for _, dir := range []string{
		s.layout.ObjectsDir(),
		s.layout.PackDir(),
		s.layout.InfoDir(),
		s.layout.TmpDir(),
	} {
		if derr := s.fs.MkdirAll(dir, 0755); derr != nil {
			return err.FsIo(pkgName, "init", dir, derr)
		}
	}
	return s.refs.Init()
}

// newEngine builds a pack engine wired to the loose backend for out-of-pack
// delta bases, and scans the pack directory.
func (s *Store) newEngine() (*pack.Engine, error) {
	engine, eerr := pack.NewEngine(s.fs, s.layout, s.codec, pack.EngineConfig{
		HandleCap:    s.cfg.cacheEntries,
		BaseBudget:   s.cfg.cacheBytes,
		ArenaBuffers: s.cfg.arenaBuffers,
	})
	if eerr != nil {
		return nil, eerr
	}
	engine.SetExternalBases(func(h objects.Hash) (objects.Kind, []byte, error) {
		return s.loose.ReadInflated(h)
	})
	if serr := engine.Scan(); serr != nil {
		engine.Close()
		return nil, serr
	}
	return engine, nil
}
