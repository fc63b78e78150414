package odb

import (
	"github.com/samoht/gitobj/pkg/cache"
	"github.com/samoht/gitobj/pkg/codec"
	"github.com/samoht/gitobj/pkg/fsys"
	"github.com/samoht/gitobj/pkg/odb/pack"
)

// config collects the tunables of Open.
type config struct {
	fs           fsys.FS
	codec        codec.Codec
	cacheBytes   int64
	cacheEntries int
	stallLimit   int
	level        int
	arenaBuffers int
}

// Option configures a store at Open time.
type Option func(*config)

// WithFilesystem substitutes the filesystem capability.
func WithFilesystem(fs fsys.FS) Option {
	return func(c *config) { c.fs = fs }
}

// WithCodec substitutes the compression codec. Overrides
// WithCompressionLevel.
func WithCodec(cd codec.Codec) Option {
	return func(c *config) { c.codec = cd }
}

// WithCacheBytes sets the byte budget of each value cache.
func WithCacheBytes(n int64) Option {
	return func(c *config) { c.cacheBytes = n }
}

// WithCacheEntries sets how many pack, index, and reverse-index handles stay
// hot.
func WithCacheEntries(n int) Option {
	return func(c *config) { c.cacheEntries = n }
}

// WithStallLimit sets how many consecutive zero-progress reads an ingest
// stream may make.
func WithStallLimit(n int) Option {
	return func(c *config) { c.stallLimit = n }
}

// WithCompressionLevel sets the deflate level (0..9) of the default codec.
func WithCompressionLevel(level int) Option {
	return func(c *config) { c.level = level }
}

// WithArenaBuffers sets the per-pack cap on outstanding reconstruction
// buffers.
func WithArenaBuffers(n int) Option {
	return func(c *config) { c.arenaBuffers = n }
}

func defaultConfig() *config {
	return &config{
		fs:           fsys.NewOS(),
		cacheBytes:   cache.DefaultByteBudget,
		cacheEntries: cache.DefaultHandleCap,
		stallLimit:   pack.DefaultStallLimit,
		level:        codec.DefaultLevel,
	}
}
