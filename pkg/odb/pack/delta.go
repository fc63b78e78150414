package pack

import (
	"fmt"
	"io"
)

// Delta instruction stream: two size varints, then COPY and INSERT ops.
const (
	copyFlag = 0x80

	// A COPY op with all size bits clear means the implied maximum.
	copyImpliedSize = 0x10000

	maxInsert = 0x7f
	maxCopy   = 0xffff

	// deltaBlockSize is the granularity of the base fingerprint table used
	// by createDelta.
	deltaBlockSize = 16
)

// readDeltaVarint decodes a little-endian 7-bit-group varint at pos.
func readDeltaVarint(delta []byte, pos int) (int64, int, error) {
	var v int64
	var shift uint
	for {
		if pos >= len(delta) {
			return 0, 0, fmt.Errorf("truncated delta varint")
		}
		b := delta[pos]
		pos++
		v |= int64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, pos, nil
		}
		shift += 7
		if shift > 62 {
			return 0, 0, fmt.Errorf("delta varint overflow")
		}
	}
}

// appendDeltaVarint encodes a little-endian 7-bit-group varint.
func appendDeltaVarint(dst []byte, v int64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// deltaSizes reads the base-size and result-size varints that open every
// delta stream.
func deltaSizes(delta []byte) (baseSize, resultSize int64, pos int, err error) {
	baseSize, pos, err = readDeltaVarint(delta, 0)
	if err != nil {
		return 0, 0, 0, err
	}
	resultSize, pos, err = readDeltaVarint(delta, pos)
	if err != nil {
		return 0, 0, 0, err
	}
	return baseSize, resultSize, pos, nil
}

// readDeltaSizesFrom reads the two opening varints off a stream one byte at a
// time, so nothing past them is inflated.
func readDeltaSizesFrom(r io.Reader) (baseSize, resultSize int64, err error) {
	read := func() (int64, error) {
		var v int64
		var shift uint
		var one [1]byte
		for {
			if _, rerr := io.ReadFull(r, one[:]); rerr != nil {
				return 0, fmt.Errorf("truncated delta varint: %w", rerr)
			}
			v |= int64(one[0]&0x7f) << shift
			if one[0]&0x80 == 0 {
				return v, nil
			}
			shift += 7
			if shift > 62 {
				return 0, fmt.Errorf("delta varint overflow")
			}
		}
	}

	if baseSize, err = read(); err != nil {
		return 0, 0, err
	}
	if resultSize, err = read(); err != nil {
		return 0, 0, err
	}
	return baseSize, resultSize, nil
}

// applyDelta reconstructs the target from a base and a delta instruction
// stream.
func applyDelta(base, delta []byte) ([]byte, error) {
	baseSize, resultSize, pos, err := deltaSizes(delta)
	if err != nil {
		return nil, err
	}
	if baseSize != int64(len(base)) {
		return nil, fmt.Errorf("delta base size %d, have %d bytes", baseSize, len(base))
	}

	result := make([]byte, resultSize)
	n, err := applyDeltaOps(result, base, delta, pos)
	if err != nil {
		return nil, err
	}
	if int64(n) != resultSize {
		return nil, fmt.Errorf("delta produced %d bytes, header says %d", n, resultSize)
	}
	return result, nil
}

// applyDeltaInto is applyDelta writing into a caller-supplied buffer. It
// returns the result length.
func applyDeltaInto(dst, base, delta []byte) (int, error) {
	baseSize, resultSize, pos, err := deltaSizes(delta)
	if err != nil {
		return 0, err
	}
	if baseSize != int64(len(base)) {
		return 0, fmt.Errorf("delta base size %d, have %d bytes", baseSize, len(base))
	}
	if int64(len(dst)) < resultSize {
		return 0, fmt.Errorf("delta result buffer too small: %d < %d", len(dst), resultSize)
	}

	n, err := applyDeltaOps(dst[:resultSize], base, delta, pos)
	if err != nil {
		return 0, err
	}
	if int64(n) != resultSize {
		return 0, fmt.Errorf("delta produced %d bytes, header says %d", n, resultSize)
	}
	return n, nil
}

// applyDeltaOps executes the instruction stream starting at pos, writing into
// result. Every COPY and INSERT is bounds-checked against the base, the
// stream, and the result before a byte moves.
func applyDeltaOps(result, base, delta []byte, pos int) (int, error) {
	written := 0
	for pos < len(delta) {
		cmd := delta[pos]
		pos++

		switch {
		case cmd&copyFlag != 0:
			var off, size int
			for i := 0; i < 4; i++ {
				if cmd&(1<<i) != 0 {
					if pos >= len(delta) {
						return 0, fmt.Errorf("truncated copy op")
					}
					off |= int(delta[pos]) << (8 * i)
					pos++
				}
			}
			for i := 0; i < 3; i++ {
				if cmd&(0x10<<i) != 0 {
					if pos >= len(delta) {
						return 0, fmt.Errorf("truncated copy op")
					}
					size |= int(delta[pos]) << (8 * i)
					pos++
				}
			}
			if size == 0 {
				size = copyImpliedSize
			}
			if off < 0 || size < 0 || off+size > len(base) {
				return 0, fmt.Errorf("copy op [%d, %d) outside base of %d bytes", off, off+size, len(base))
			}
			if written+size > len(result) {
				return 0, fmt.Errorf("copy op overflows result")
			}
			copy(result[written:], base[off:off+size])
			written += size

		case cmd != 0:
			size := int(cmd)
			if pos+size > len(delta) {
				return 0, fmt.Errorf("truncated insert op")
			}
			if written+size > len(result) {
				return 0, fmt.Errorf("insert op overflows result")
			}
			copy(result[written:], delta[pos:pos+size])
			pos += size
			written += size

		default:
			return 0, fmt.Errorf("reserved delta opcode 0x00")
		}
	}
	return written, nil
}

// createDelta builds a delta stream turning base into target. The planner
// fingerprints the base at fixed block granularity and greedily extends
// matches, so identical runs become COPY ops and everything else becomes
// INSERT ops. The output is deterministic for a given pair.
func createDelta(base, target []byte) []byte {
	delta := appendDeltaVarint(nil, int64(len(base)))
	delta = appendDeltaVarint(delta, int64(len(target)))

	index := fingerprintBase(base)

	var pending []byte
	flush := func() {
		for len(pending) > 0 {
			n := len(pending)
			if n > maxInsert {
				n = maxInsert
			}
			delta = append(delta, byte(n))
			delta = append(delta, pending[:n]...)
			pending = pending[n:]
		}
	}

	i := 0
	for i < len(target) {
		off, length := bestMatch(base, target, i, index)
		if length < deltaBlockSize {
			pending = append(pending, target[i])
			i++
			continue
		}

		flush()
		delta = appendCopies(delta, off, length)
		i += length
	}
	flush()

	return delta
}

// fingerprintBase hashes every aligned block of the base. Offsets are kept
// per fingerprint; collisions are resolved by byte comparison at match time.
func fingerprintBase(base []byte) map[uint64][]int {
	index := make(map[uint64][]int, len(base)/deltaBlockSize+1)
	for off := 0; off+deltaBlockSize <= len(base); off += deltaBlockSize {
		fp := fingerprint(base[off : off+deltaBlockSize])
		index[fp] = append(index[fp], off)
	}
	return index
}

// fingerprint is an FNV-1a over one block.
func fingerprint(block []byte) uint64 {
	h := uint64(14695981039346656037)
	for _, b := range block {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

// bestMatch finds the longest base run matching target[i:]. Candidate lists
// are scanned in offset order, so equal-length matches resolve to the
// earliest base offset and the output stays deterministic.
func bestMatch(base, target []byte, i int, index map[uint64][]int) (off, length int) {
	if i+deltaBlockSize > len(target) {
		return 0, 0
	}

	candidates, ok := index[fingerprint(target[i:i+deltaBlockSize])]
	if !ok {
		return 0, 0
	}

	for _, cand := range candidates {
		n := matchLen(base[cand:], target[i:])
		if n > length {
			off, length = cand, n
		}
	}
	return off, length
}

func matchLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// appendCopies emits COPY ops for a base run, splitting runs longer than a
// single op can express.
func appendCopies(dst []byte, off, length int) []byte {
	for length > 0 {
		n := length
		if n > maxCopy {
			n = maxCopy
		}

		op := byte(copyFlag)
		var params []byte
		for i := 0; i < 4; i++ {
			if b := byte(off >> (8 * i)); b != 0 {
				op |= 1 << i
				params = append(params, b)
			}
		}
		for i := 0; i < 3; i++ {
			if b := byte(n >> (8 * i)); b != 0 {
				op |= 0x10 << i
				params = append(params, b)
			}
		}

		dst = append(dst, op)
		dst = append(dst, params...)
		off += n
		length -= n
	}
	return dst
}
