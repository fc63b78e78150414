package pack

import (
	"sync"

	"github.com/samoht/gitobj/pkg/objects"
)

// DefaultArenaBuffers is the per-pack cap on concurrently outstanding
// scratch buffers.
const DefaultArenaBuffers = 4

// Arena hands out scratch buffers for delta reconstruction. Each pack gets a
// small pool of grow-only buffers; a request beyond the pool cap blocks
// until a buffer is released, which bounds peak scratch memory per pack.
// Requests with no pack affinity share one global buffer behind a mutex.
type Arena struct {
	mu      sync.Mutex
	pools   map[objects.Hash]*bufferPool
	perPack int

	globalMu  sync.Mutex
	globalBuf []byte
}

// NewArena creates an arena allowing perPack outstanding buffers per pack.
// Zero or negative means the default.
func NewArena(perPack int) *Arena {
	if perPack <= 0 {
		perPack = DefaultArenaBuffers
	}
	return &Arena{
		pools:   make(map[objects.Hash]*bufferPool),
		perPack: perPack,
	}
}

// Get returns a buffer of length n affine to the given pack, and a release
// function that must be called exactly once. Blocks while the pack's pool is
// exhausted.
func (a *Arena) Get(pack objects.Hash, n int) ([]byte, func()) {
	a.mu.Lock()
	pool, ok := a.pools[pack]
	if !ok {
		pool = newBufferPool(a.perPack)
		a.pools[pack] = pool
	}
	a.mu.Unlock()

	return pool.get(n)
}

// GetUnrecorded returns the shared scratch buffer sized to n. The buffer is
// exclusive until the release function runs, so unaffiliated requests
// serialize rather than allocate.
func (a *Arena) GetUnrecorded(n int) ([]byte, func()) {
	a.globalMu.Lock()
	if cap(a.globalBuf) < n {
		a.globalBuf = make([]byte, n)
	}
	return a.globalBuf[:n], a.globalMu.Unlock
}

// Drop releases every buffer held for a pack, typically after the pack is
// removed.
func (a *Arena) Drop(pack objects.Hash) {
	a.mu.Lock()
	delete(a.pools, pack)
	a.mu.Unlock()
}

// bufferPool is a counted pool of grow-only byte slices. Buffers keep their
// capacity across uses, so each settles at the largest size it has served.
type bufferPool struct {
	mu          sync.Mutex
	cond        *sync.Cond
	free        [][]byte
	outstanding int
	limit       int
}

func newBufferPool(limit int) *bufferPool {
	p := &bufferPool{limit: limit}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *bufferPool) get(n int) ([]byte, func()) {
	p.mu.Lock()
	for len(p.free) == 0 && p.outstanding >= p.limit {
		p.cond.Wait()
	}

	var buf []byte
	if len(p.free) > 0 {
		buf = p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
	}
	p.outstanding++
	p.mu.Unlock()

	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]

	release := func() {
		p.mu.Lock()
		p.free = append(p.free, buf[:cap(buf)])
		p.outstanding--
		p.cond.Signal()
		p.mu.Unlock()
	}
	return buf, release
}
