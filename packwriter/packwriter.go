// Package packwriter writes git packfiles: a header, a stream of
// whole or delta-compressed object entries, and a trailing checksum,
// optionally alongside the (hash, crc32, offset) triples needed to
// build a v2 pack index over the result.
package packwriter

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1" //nolint:gosec // packs are checksummed with SHA-1 by format, not for security
	"encoding/binary"
	"hash/crc32"
	"io"

	"golang.org/x/xerrors"

	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/packfile/delta"
)

const (
	packMagic   = "PACK"
	packVersion = 2

	// DefaultWindow is how many same-type predecessors are considered
	// as delta bases for each object, absent an explicit Options.Window.
	DefaultWindow = 5
	// MaxWindow bounds how large a caller may configure the window.
	MaxWindow = 10
	// MaxDeltaDepth caps how many delta hops a chain may accumulate,
	// mirroring the reader's own defence against pathological chains.
	MaxDeltaDepth = 50
)

// Source is a single object to be packed, in whatever order the
// caller collected them (typically a reachability walk, base objects
// before the objects that delta against them).
type Source struct {
	ID      oid.Oid
	Type    object.Type
	Content []byte
}

// Options configures delta search.
type Options struct {
	// Window is the number of preceding same-type objects considered
	// as delta bases for each object. 0 means DefaultWindow.
	Window int
}

// Entry records where and how an object ended up in the output, for
// callers building a pack index alongside it.
type Entry struct {
	ID     oid.Oid
	CRC32  uint32
	Offset uint64
}

type windowEntry struct {
	content []byte
	offset  uint64
	depth   int
}

// Write streams objects into w as a v2 packfile. Each object is
// tried against up to Options.Window same-type predecessors for a
// smaller delta encoding (§4.5); the smaller of the resulting delta
// and the whole object, post-compression, wins, subject to
// MaxDeltaDepth. It returns one Entry per object, in output order,
// and the pack's own trailing SHA-1 checksum.
func Write(w io.Writer, objects []Source, opts Options) ([]Entry, oid.Oid, error) {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if window > MaxWindow {
		window = MaxWindow
	}

	h := sha1.New() //nolint:gosec
	cw := &checksummingWriter{w: io.MultiWriter(w, h)}

	if err := writeHeader(cw, len(objects)); err != nil {
		return nil, oid.Null, err
	}

	entries := make([]Entry, 0, len(objects))
	windows := map[object.Type][]windowEntry{}

	for _, src := range objects {
		offset := cw.n
		crc, depth, err := writeObject(cw, src, windows[src.Type], offset, window)
		if err != nil {
			return nil, oid.Null, xerrors.Errorf("could not write object %s: %w", src.ID, err)
		}
		entries = append(entries, Entry{ID: src.ID, CRC32: crc, Offset: offset})

		wins := windows[src.Type]
		wins = append(wins, windowEntry{content: src.Content, offset: offset, depth: depth})
		if len(wins) > window {
			wins = wins[len(wins)-window:]
		}
		windows[src.Type] = wins
	}

	sum := h.Sum(nil)
	if _, err := w.Write(sum); err != nil {
		return nil, oid.Null, xerrors.Errorf("could not write pack checksum: %w", err)
	}

	var id oid.Oid
	copy(id[:], sum)
	return entries, id, nil
}

func writeHeader(w io.Writer, count int) error {
	var buf bytes.Buffer
	buf.WriteString(packMagic)
	if err := binary.Write(&buf, binary.BigEndian, uint32(packVersion)); err != nil {
		return xerrors.Errorf("could not encode pack version: %w", err)
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(count)); err != nil {
		return xerrors.Errorf("could not encode object count: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// writeObject picks the smaller of a delta against the current
// window and the whole object, writes the chosen entry, and returns
// the CRC32 of the bytes actually written (header + compressed
// payload) and the resulting delta depth (0 for a whole object).
func writeObject(w *checksummingWriter, src Source, window []windowEntry, offset uint64, maxWindow int) (crc uint32, depth int, err error) {
	bestDelta, bestBase, bestDepth := bestDeltaFor(src.Content, window)

	compressedWhole, err := deflate(src.Content)
	if err != nil {
		return 0, 0, err
	}

	useDelta := bestDelta != nil
	var compressedDelta []byte
	if useDelta {
		compressedDelta, err = deflate(bestDelta)
		if err != nil {
			return 0, 0, err
		}
		if len(compressedDelta) >= len(compressedWhole) {
			useDelta = false
		}
	}

	crcw := &crc32Writer{w: w, table: crc32.IEEETable}

	if !useDelta {
		header := encodeObjectHeader(src.Type, len(src.Content))
		if _, err := crcw.Write(header); err != nil {
			return 0, 0, err
		}
		if _, err := crcw.Write(compressedWhole); err != nil {
			return 0, 0, err
		}
		return crcw.sum, 0, nil
	}

	header := encodeObjectHeader(object.ObjectDeltaOFS, len(bestDelta))
	if _, err := crcw.Write(header); err != nil {
		return 0, 0, err
	}
	if _, err := crcw.Write(encodeOfsDelta(offset - bestBase.offset)); err != nil {
		return 0, 0, err
	}
	if _, err := crcw.Write(compressedDelta); err != nil {
		return 0, 0, err
	}
	return crcw.sum, bestDepth + 1, nil
}

// bestDeltaFor returns the smallest delta found against window,
// along with the base it was taken against and the base's own depth.
// A base whose depth has already reached MaxDeltaDepth-1 is skipped,
// since chaining off it would exceed the budget.
func bestDeltaFor(content []byte, window []windowEntry) (best []byte, base windowEntry, depth int) {
	for _, candidate := range window {
		if candidate.depth+1 >= MaxDeltaDepth {
			continue
		}
		d, err := delta.Encode(candidate.content, content)
		if err != nil {
			continue
		}
		if best == nil || len(d) < len(best) {
			best = d
			base = candidate
			depth = candidate.depth
		}
	}
	return best, base, depth
}

func deflate(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(content); err != nil {
		return nil, xerrors.Errorf("could not deflate object: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, xerrors.Errorf("could not flush deflate stream: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeObjectHeader writes the leading type+size varint: low 4 bits
// of size and the type in bits 4-6 of the first byte, MSB-continued
// 7-bit chunks of the remaining size bits after that. Mirrors
// packfile.readSize's decode exactly.
func encodeObjectHeader(typ object.Type, size int) []byte {
	b0 := byte(size&0x0f) | byte(typ)<<4
	size >>= 4

	out := []byte{0}
	if size > 0 {
		b0 |= 0x80
	}
	out[0] = b0

	for size > 0 {
		b := byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// encodeOfsDelta encodes an OFS_DELTA base offset: big-endian 7-bit
// chunks where every chunk but the last represents (byte value + 1),
// mirroring packfile.readDeltaOffset's decode.
func encodeOfsDelta(offset uint64) []byte {
	digits := []byte{byte(offset & 0x7f)}
	offset >>= 7
	for offset > 0 {
		offset--
		digits = append(digits, byte(offset&0x7f))
		offset >>= 7
	}

	out := make([]byte, len(digits))
	for i, d := range digits {
		pos := len(digits) - 1 - i
		if i == 0 {
			out[pos] = d
			continue
		}
		out[pos] = d | 0x80
	}
	return out
}

// checksummingWriter tracks the number of bytes written so entry
// offsets can be recorded as they're produced.
type checksummingWriter struct {
	w io.Writer
	n uint64
}

func (cw *checksummingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n)
	return n, err
}

// crc32Writer accumulates the IEEE CRC32 of everything written
// through it, for the pack index's per-object CRC32 table.
type crc32Writer struct {
	w     io.Writer
	table *crc32.Table
	sum   uint32
}

func (c *crc32Writer) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.sum = crc32.Update(c.sum, c.table, p[:n])
	}
	return n, err
}
