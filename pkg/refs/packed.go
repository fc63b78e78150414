package refs

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/samoht/gitobj/pkg/common/err"
	"github.com/samoht/gitobj/pkg/fsys"
	"github.com/samoht/gitobj/pkg/objects"
)

// packedHeader is written at the top of every packed-refs file we produce.
const packedHeader = "# pack-refs with: peeled fully-peeled sorted \n"

// packedRef is one record of the packed-refs side file. Peeled carries the
// target of an annotated tag, preserved from "^" continuation lines.
type packedRef struct {
	name   string
	hash   objects.Hash
	peeled objects.Hash
}

// readPacked parses the packed-refs file. A missing file is an empty table.
func (s *Store) readPacked() ([]packedRef, error) {
	f, oerr := s.fs.Open(s.layout.PackedRefs())
	if oerr != nil {
		if os.IsNotExist(oerr) {
			return nil, nil
		}
		return nil, err.FsIo(pkgName, "read_packed", s.layout.PackedRefs(), oerr)
	}
	defer f.Close()

	var refs []packedRef
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
			continue

		case strings.HasPrefix(line, "^"):
			if len(refs) == 0 {
				return nil, s.packedCorrupt("peeled line before any reference")
			}
			h, herr := objects.HashFromHex(strings.TrimSpace(line[1:]))
			if herr != nil {
				return nil, s.packedCorrupt("bad peeled digest")
			}
			refs[len(refs)-1].peeled = h

		default:
			hex, name, ok := strings.Cut(line, " ")
			if !ok {
				return nil, s.packedCorrupt(fmt.Sprintf("malformed line %q", line))
			}
			h, herr := objects.HashFromHex(hex)
			if herr != nil {
				return nil, s.packedCorrupt(fmt.Sprintf("bad digest for %q", name))
			}
			refs = append(refs, packedRef{name: name, hash: h})
		}
	}
	if serr := scanner.Err(); serr != nil {
		return nil, err.FsIo(pkgName, "read_packed", s.layout.PackedRefs(), serr)
	}
	return refs, nil
}

// writePacked rewrites the packed-refs file atomically, sorted by name,
// peeled lines preserved.
func (s *Store) writePacked(refs []packedRef) error {
	sort.Slice(refs, func(i, j int) bool { return refs[i].name < refs[j].name })

	var buf bytes.Buffer
	buf.WriteString(packedHeader)
	for _, r := range refs {
		fmt.Fprintf(&buf, "%s %s\n", r.hash.Hex(), r.name)
		if !r.peeled.IsZero() {
			fmt.Fprintf(&buf, "^%s\n", r.peeled.Hex())
		}
	}

	if werr := fsys.AtomicWrite(s.fs, s.layout.PackedRefs(), buf.Bytes(), 0644); werr != nil {
		return err.FsIo(pkgName, "write_packed", s.layout.PackedRefs(), werr)
	}
	return nil
}

// lookupPacked finds a name in the packed table.
func (s *Store) lookupPacked(name string) (packedRef, bool, error) {
	refs, rerr := s.readPacked()
	if rerr != nil {
		return packedRef{}, false, rerr
	}
	for _, r := range refs {
		if r.name == name {
			return r, true, nil
		}
	}
	return packedRef{}, false, nil
}

func (s *Store) packedCorrupt(msg string) error {
	return err.New(pkgName, err.CodeDecode, "read_packed", msg, nil).
		WithContext("path", s.layout.PackedRefs())
}
