package packfile

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"golang.org/x/xerrors"
)

// BaseResolver looks up the content of an object that isn't found at
// an earlier offset in the pack being indexed: a REF_DELTA base
// already installed in another pack or in loose storage.
type BaseResolver func(id oid.Oid) (*object.Object, error)

// IndexEntry is one object resolved while building an index: its
// final (post-delta) id, the byte offset its entry starts at in the
// pack, and the CRC32 of its still-packed (header+compressed) bytes.
type IndexEntry struct {
	ID     oid.Oid
	Offset uint64
	CRC32  uint32
}

// resolved is an already-decoded object kept around so later entries
// in the same pack can delta against it without re-reading the pack.
type resolved struct {
	content []byte
	typ     object.Type
}

// BuildIndex performs the single linear pass over a just-received,
// not-yet-indexed pack that pack installation requires: for each
// entry it records (offset, crc32), resolving OFS_DELTA/REF_DELTA
// chains to the entry's final sha1. OFS_DELTA bases are always an
// earlier offset in the same stream; REF_DELTA bases are looked up
// first among objects already decoded in this pass, falling back to
// resolveBase (which may be nil if the pack is known self-contained)
// for a base installed elsewhere.
//
// r must be positioned at the start of the pack (the 12-byte header)
// and support seeking, since entries are read in stream order but
// their exact length is only known once the one entry has been
// decompressed.
func BuildIndex(r io.ReadSeeker, resolveBase BaseResolver) ([]IndexEntry, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, xerrors.Errorf("could not read pack header: %w", err)
	}
	if !bytes.Equal(header[0:4], packMagic()) {
		return nil, xerrors.Errorf("invalid header: %w", ErrInvalidMagic)
	}
	if !bytes.Equal(header[4:8], packVersion()) {
		return nil, xerrors.Errorf("invalid header: %w", ErrInvalidVersion)
	}
	count := binary.BigEndian.Uint32(header[8:12])

	entries := make([]IndexEntry, 0, count)
	byOffset := make(map[uint64]resolved, count)
	byID := make(map[oid.Oid]resolved, count)

	offset := uint64(headerSize)
	for i := uint32(0); i < count; i++ {
		objType, content, baseID, baseOffsetRel, next, err := readPackEntry(r, offset)
		if err != nil {
			return nil, xerrors.Errorf("could not read pack entry %d at offset %d: %w", i, offset, err)
		}

		crc, err := entryCRC32(r, offset, next)
		if err != nil {
			return nil, xerrors.Errorf("could not checksum pack entry %d: %w", i, err)
		}

		var final []byte
		var finalType object.Type
		switch objType { //nolint:exhaustive // only the 2 delta types need resolving
		case object.ObjectDeltaOFS:
			baseAbsOffset := offset - baseOffsetRel
			base, ok := byOffset[baseAbsOffset]
			if !ok {
				return nil, xerrors.Errorf("ofs-delta at offset %d references unseen base at offset %d", offset, baseAbsOffset)
			}
			final, err = resolveDeltaContent(content, base.content)
			finalType = base.typ
		case object.ObjectDeltaRef:
			base, ok := byID[baseID]
			if !ok {
				if resolveBase == nil {
					return nil, xerrors.Errorf("ref-delta at offset %d needs base %s, not found in this pack: %w", offset, baseID, ErrObjectNotFound)
				}
				baseObj, rerr := resolveBase(baseID)
				if rerr != nil {
					return nil, xerrors.Errorf("could not resolve ref-delta base %s: %w", baseID, rerr)
				}
				base = resolved{content: baseObj.Bytes(), typ: baseObj.Type()}
			}
			final, err = resolveDeltaContent(content, base.content)
			finalType = base.typ
		default:
			final, finalType = content, objType
		}
		if err != nil {
			return nil, xerrors.Errorf("could not resolve entry at offset %d: %w", offset, err)
		}

		id := object.New(finalType, final).ID()
		byOffset[offset] = resolved{content: final, typ: finalType}
		byID[id] = resolved{content: final, typ: finalType}
		entries = append(entries, IndexEntry{ID: id, Offset: offset, CRC32: crc})

		offset = next
	}

	return entries, nil
}

// resolveDeltaContent strips a delta's source/target size header and
// replays its COPY/INSERT instructions against base.
func resolveDeltaContent(delta, base []byte) ([]byte, error) {
	sourceSize, sourceSizeLen, err := readSize(delta)
	if err != nil {
		return nil, xerrors.Errorf("could not read delta source size: %w", err)
	}
	if int(sourceSize) != len(base) {
		return nil, xerrors.Errorf("base object size mismatch: expected %d, got %d", len(base), sourceSize)
	}
	_, targetSizeLen, err := readSize(delta[sourceSizeLen:])
	if err != nil {
		return nil, xerrors.Errorf("could not read delta target size: %w", err)
	}
	return applyDeltaInstructions(delta[sourceSizeLen+targetSizeLen:], base)
}

// countingReader tracks how many bytes have been pulled from r, so
// readPackEntry can recover the exact end of a compressed entry even
// though it reads through a buffered reader that pulls ahead.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// readPackEntry decodes the entry starting at offset: its type+size
// header, an OFS_DELTA/REF_DELTA base reference if present, and its
// zlib-compressed content. next is the offset the following entry
// starts at, recovered from how many bytes the wrapping bufio.Reader
// actually consumed (its own internal read-ahead backed out via
// Buffered()) rather than from any index, since none exists yet.
func readPackEntry(r io.ReadSeeker, offset uint64) (objType object.Type, content []byte, baseID oid.Oid, baseOffsetRel uint64, next uint64, err error) {
	if _, err = r.Seek(int64(offset), io.SeekStart); err != nil {
		return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not seek to offset %d: %w", offset, err)
	}
	counting := &countingReader{r: r}
	buf := bufio.NewReader(counting)

	metadata, err := buf.Peek(10)
	if err != nil {
		return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not peek object metadata: %w", err)
	}

	objType = object.Type((metadata[0] & 0b_0111_0000) >> 4)
	if !objType.IsValid() {
		return 0, nil, oid.Null, 0, 0, xerrors.Errorf("unknown object type %d", objType)
	}

	objectSize := uint64(metadata[0] & 0b_0000_1111)
	metadataSize := 1
	if isMSBSet(metadata[0]) {
		size, byteRead, serr := readSize(metadata[1:])
		if serr != nil {
			return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not read object size: %w", serr)
		}
		metadataSize += byteRead
		objectSize |= size << 4
	}
	if _, err = buf.Discard(metadataSize); err != nil {
		return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not skip metadata: %w", err)
	}

	baseID = oid.Null
	switch objType { //nolint:exhaustive // only the 2 delta types carry a base reference
	case object.ObjectDeltaRef:
		baseSHA := make([]byte, oid.Size)
		if _, err = io.ReadFull(buf, baseSHA); err != nil {
			return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not read base object sha: %w", err)
		}
		baseID, err = oid.FromRawBytes(baseSHA)
		if err != nil {
			return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not parse base object sha %x: %w", baseSHA, err)
		}
	case object.ObjectDeltaOFS:
		offsetParts, perr := buf.Peek(9)
		if perr != nil {
			return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not peek base object offset: %w", perr)
		}
		rel, bytesRead, derr := readDeltaOffset(offsetParts)
		if derr != nil {
			return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not read base object offset: %w", derr)
		}
		baseOffsetRel = rel
		if _, err = buf.Discard(bytesRead); err != nil {
			return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not skip the offset: %w", err)
		}
	}

	zlibR, err := zlib.NewReader(buf)
	if err != nil {
		return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not get zlib reader: %w", err)
	}
	var data bytes.Buffer
	_, copyErr := io.Copy(&data, zlibR)
	closeErr := zlibR.Close()
	if copyErr != nil {
		return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not decompress object: %w", copyErr)
	}
	if closeErr != nil {
		return 0, nil, oid.Null, 0, 0, xerrors.Errorf("could not close zlib reader: %w", closeErr)
	}
	if data.Len() != int(objectSize) {
		return 0, nil, oid.Null, 0, 0, xerrors.Errorf("object size mismatch: expected %d, got %d", objectSize, data.Len())
	}

	next = offset + uint64(counting.n) - uint64(buf.Buffered())
	return objType, data.Bytes(), baseID, baseOffsetRel, next, nil
}

// entryCRC32 computes the checksum of the still-packed bytes
// (type+size header, optional base reference, compressed content)
// spanning [start, end) exactly as a pack index records it.
func entryCRC32(r io.ReadSeeker, start, end uint64) (uint32, error) {
	if _, err := r.Seek(int64(start), io.SeekStart); err != nil {
		return 0, xerrors.Errorf("could not seek to offset %d: %w", start, err)
	}
	raw := make([]byte, end-start)
	if _, err := io.ReadFull(r, raw); err != nil {
		return 0, xerrors.Errorf("could not read entry bytes: %w", err)
	}
	return crc32.ChecksumIEEE(raw), nil
}
