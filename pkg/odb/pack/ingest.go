package pack

import (
	"context"
	"fmt"
	"io"

	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/fsys"
	"github.com/samoht/gitobj/pkg/objects"
)

// DefaultStallLimit is how many consecutive zero-progress reads an ingest
// stream may make before it is abandoned.
const DefaultStallLimit = 50

const ingestChunk = 64 << 10

// Ingest streams a complete pack into the store: spool to a temp file,
// scan, resolve every object digest, build the index sidecar, then move
// both files into the pack directory and register the pack. A failure at
// any step leaves the store exactly as it was; only the index-then-pack
// rename pair publishes anything.
func (e *Engine) Ingest(ctx context.Context, r io.Reader, stallLimit int) (objects.Hash, uint32, error) {
	if stallLimit <= 0 {
		stallLimit = DefaultStallLimit
	}

	tmpPath, serr := e.spool(ctx, r, stallLimit)
	if serr != nil {
		return objects.Hash{}, 0, serr
	}
	defer e.fs.Remove(tmpPath) // no-op once renamed away

	region, merr := e.fs.Map(tmpPath, 0, -1)
	if merr != nil {
		return objects.Hash{}, 0, err.FsIo(pkgName, "ingest", tmpPath, merr)
	}

	info, ierr := e.indexSpooled(region.Bytes())
	region.Close()
	if ierr != nil {
		return objects.Hash{}, 0, ierr
	}

	hex := info.PackHash.Hex()
	packPath := e.layout.PackFile(hex)
	idxPath := e.layout.IndexFile(hex)

	idxBytes, berr := BuildIndex(info)
	if berr != nil {
		return objects.Hash{}, 0, berr
	}

	// Index first: a pack file is only ever visible with its sidecar
	// already in place.
	if werr := fsys.AtomicWrite(e.fs, idxPath, idxBytes, 0444); werr != nil {
		return objects.Hash{}, 0, err.FsIo(pkgName, "ingest", idxPath, werr)
	}
	if cerr := e.fs.Chmod(tmpPath, 0444); cerr != nil {
		e.fs.Remove(idxPath)
		return objects.Hash{}, 0, err.FsIo(pkgName, "ingest", tmpPath, cerr)
	}
	if rerr := e.fs.Rename(tmpPath, packPath); rerr != nil {
		e.fs.Remove(idxPath)
		return objects.Hash{}, 0, err.FsIo(pkgName, "ingest", packPath, rerr)
	}

	if _, aerr := e.Add(packPath, idxPath); aerr != nil {
		return objects.Hash{}, 0, aerr
	}

	e.log.Info("ingested pack", "digest", hex, "objects", info.Count)
	return info.PackHash, info.Count, nil
}

// indexSpooled scans a spooled pack and resolves every entry digest.
// Ref-delta bases outside the incoming pack resolve through the loose
// backend and the packs already registered.
func (e *Engine) indexSpooled(data []byte) (*Info, error) {
	info, serr := Scan(data, e.codec)
	if serr != nil {
		return nil, serr
	}
	if rerr := ResolveHashes(data, info, e.codec, e.arena, e.baseResolver(objects.Hash{})); rerr != nil {
		return nil, rerr
	}
	return info, nil
}

// spool copies the stream to a temp file under the layout's scratch
// directory, watching for cancellation and for a stalled upstream. The temp
// file is removed on failure.
func (e *Engine) spool(ctx context.Context, r io.Reader, stallLimit int) (string, error) {
	if derr := e.fs.MkdirAll(e.layout.TmpDir(), 0755); derr != nil {
		return "", err.FsIo(pkgName, "ingest", e.layout.TmpDir(), derr)
	}
	if derr := e.fs.MkdirAll(e.layout.PackDir(), 0755); derr != nil {
		return "", err.FsIo(pkgName, "ingest", e.layout.PackDir(), derr)
	}

	tmp, terr := e.fs.TempFile(e.layout.TmpDir(), "ingest-*.pack")
	if terr != nil {
		return "", err.FsIo(pkgName, "ingest", e.layout.TmpDir(), terr)
	}
	tmpPath := tmp.Name()

	abort := func(aerr error) (string, error) {
		tmp.Close()
		e.fs.Remove(tmpPath)
		return "", aerr
	}

	buf := make([]byte, ingestChunk)
	stalls := 0
	for {
		if cerr := ctx.Err(); cerr != nil {
			return abort(err.Wrap(cerr, pkgName, "ingest"))
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			stalls = 0
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				return abort(err.FsIo(pkgName, "ingest", tmpPath, werr))
			}
		} else if rerr == nil {
			stalls++
			if stalls >= stallLimit {
				return abort(err.New(pkgName, err.CodeStalled, "ingest",
					fmt.Sprintf("stream made no progress over %d reads", stalls), nil))
			}
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return abort(err.New(pkgName, err.CodeFsIo, "ingest", "read stream", rerr))
		}
	}

	if serr := tmp.Sync(); serr != nil {
		return abort(err.FsIo(pkgName, "ingest", tmpPath, serr))
	}
	if cerr := tmp.Close(); cerr != nil {
		e.fs.Remove(tmpPath)
		return "", err.FsIo(pkgName, "ingest", tmpPath, cerr)
	}
	return tmpPath, nil
}
