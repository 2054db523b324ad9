// Package delta implements the git pack delta codec's encoding half:
// producing a COPY/INSERT instruction stream that turns a base byte
// string into a target one. The decoding half lives in
// packfile.getObjectAt, which applies the instructions this package
// produces.
package delta

import "golang.org/x/xerrors"

// blockSize is the granularity at which the base is fingerprinted.
// Matches shorter than this are never found; this trades a bit of
// compression for an O(n) encoder.
const blockSize = 16

// maxInsertRun is the largest literal run a single INSERT instruction
// can carry (the instruction's own byte is both the opcode and the
// length, and bit 7 is reserved to mean COPY).
const maxInsertRun = 127

// maxCopyLen is the largest single COPY instruction's length field can
// express (a 3-byte little-endian size; 0 is reserved to mean the
// maximum, 0x10000, per the copy-instruction's own encoding rule).
const maxCopyLen = 0x10000

// ErrNoDelta is returned when the best delta found would not be
// smaller than the target object itself, and the caller should store
// the target whole instead.
var ErrNoDelta = xerrors.New("no delta smaller than target")

// Encode returns a delta turning base into target, as understood by
// the pack delta decoder: a varint base size, a varint target size,
// then a stream of COPY/INSERT instructions. ErrNoDelta is returned
// when the result would not be smaller than target.
func Encode(base, target []byte) ([]byte, error) {
	out := make([]byte, 0, len(target)/2)
	out = appendSize(out, len(base))
	out = appendSize(out, len(target))

	index := newBlockIndex(base)

	var insertRun []byte
	flushInsert := func() {
		for len(insertRun) > 0 {
			n := len(insertRun)
			if n > maxInsertRun {
				n = maxInsertRun
			}
			out = append(out, byte(n))
			out = append(out, insertRun[:n]...)
			insertRun = insertRun[n:]
		}
	}

	pos := 0
	for pos < len(target) {
		matchOffset, matchLen := index.bestMatch(target[pos:])
		if matchLen < blockSize {
			insertRun = append(insertRun, target[pos])
			pos++
			continue
		}
		flushInsert()
		remaining := matchLen
		for remaining > 0 {
			n := remaining
			if n > maxCopyLen {
				n = maxCopyLen
			}
			out = appendCopy(out, matchOffset, n)
			matchOffset += n
			remaining -= n
		}
		pos += matchLen
	}
	flushInsert()

	if len(out) >= len(target) {
		return nil, ErrNoDelta
	}
	return out, nil
}

func appendSize(out []byte, size int) []byte {
	c := size & 0x7f
	size >>= 7
	for size != 0 {
		out = append(out, byte(c|0x80))
		c = size & 0x7f
		size >>= 7
	}
	return append(out, byte(c))
}

// appendCopy encodes a COPY instruction: the high bit marks it as a
// copy, the low 7 bits are a presence bitmap selecting which offset
// and length bytes are actually emitted (a zero byte is omitted and
// implied to be 0 on decode).
func appendCopy(out []byte, offset, length int) []byte {
	code := byte(0x80)
	var payload []byte

	if offset&0xff != 0 {
		payload = append(payload, byte(offset))
		code |= 0x01
	}
	if offset&0xff00 != 0 {
		payload = append(payload, byte(offset>>8))
		code |= 0x02
	}
	if offset&0xff0000 != 0 {
		payload = append(payload, byte(offset>>16))
		code |= 0x04
	}
	if offset&0xff000000 != 0 {
		payload = append(payload, byte(offset>>24))
		code |= 0x08
	}

	encLen := length
	if encLen == maxCopyLen {
		encLen = 0
	}
	if encLen&0xff != 0 {
		payload = append(payload, byte(encLen))
		code |= 0x10
	}
	if encLen&0xff00 != 0 {
		payload = append(payload, byte(encLen>>8))
		code |= 0x20
	}
	if encLen&0xff0000 != 0 {
		payload = append(payload, byte(encLen>>16))
		code |= 0x40
	}

	out = append(out, code)
	return append(out, payload...)
}
