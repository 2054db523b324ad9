package packfile

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"strings"
	"sync"

	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// Pack represents an opened packfile plus its parsed index.
//
// Header: 12 bytes — magic, version, object count.
// Content: every object, zlib compressed, each preceded by a
// variable-length type+size header; OFS_DELTA/REF_DELTA entries
// additionally carry a base reference before the zlib stream.
// Footer: 20-byte SHA-1 of everything before it.
// https://git-scm.com/docs/pack-format
type Pack struct {
	r       afero.File
	idxFile afero.File
	idx     *Index
	header  [headerSize]byte
	id      oid.Oid

	mu sync.Mutex
}

// Open loads the packfile at filePath (its sibling .idx is expected
// next to it, with the same basename) and returns a Pack ready to
// serve GetObject. The pack must be closed with Close().
func Open(fs afero.Fs, filePath string) (pack *Pack, err error) {
	f, err := fs.Open(filePath)
	if err != nil {
		return nil, xerrors.Errorf("could not open %s: %w", filePath, err)
	}
	defer func() {
		if err != nil {
			f.Close() //nolint:errcheck // it already failed
		}
	}()

	p := &Pack{r: f}

	if _, err = f.ReadAt(p.header[:], 0); err != nil {
		return nil, xerrors.Errorf("could read header of packfile: %w", err)
	}
	if !bytes.Equal(p.header[0:4], packMagic()) {
		return nil, xerrors.Errorf("invalid header: %w", ErrInvalidMagic)
	}
	if !bytes.Equal(p.header[4:8], packVersion()) {
		return nil, xerrors.Errorf("invalid header: %w", ErrInvalidVersion)
	}

	indexFilePath := strings.TrimSuffix(filePath, ExtPackfile) + ExtIndex
	p.idxFile, err = fs.Open(indexFilePath)
	if err != nil {
		return nil, xerrors.Errorf("could not open %s: %w", indexFilePath, err)
	}
	defer func() {
		if err != nil {
			p.idxFile.Close() //nolint:errcheck // it already failed
		}
	}()
	p.idx, err = NewIndex(bufio.NewReader(p.idxFile))
	if err != nil {
		return nil, xerrors.Errorf("could not create index for %s: %w", indexFilePath, err)
	}

	return p, nil
}

// getRawObjectAt returns the raw object located at offset, along
// with its delta base reference if the object is a delta.
func (pck *Pack) getRawObjectAt(id oid.Oid, objectOffset uint64) (o *object.Object, deltaBaseSHA oid.Oid, deltaBaseOffset uint64, err error) {
	if _, err = pck.r.Seek(int64(objectOffset), io.SeekStart); err != nil {
		return nil, oid.Null, 0, xerrors.Errorf("could not seek to object offset %d: %w", objectOffset, err)
	}
	buf := bufio.NewReader(pck.r)

	// The leading byte packs a MSB continuation flag, a 3-bit type,
	// and the low 4 bits of the size; each continuation byte packs a
	// MSB flag and 7 more size bits. 10 bytes covers the worst case
	// (a 64-bit size plus the leading type byte).
	metadata, err := buf.Peek(10)
	if err != nil {
		return nil, oid.Null, 0, xerrors.Errorf("could not peek object metadata: %w", err)
	}

	objectType := object.Type((metadata[0] & 0b_0111_0000) >> 4)
	if !objectType.IsValid() {
		return nil, oid.Null, 0, xerrors.Errorf("unknown object type %d", objectType)
	}

	objectSize := uint64(metadata[0] & 0b_0000_1111)
	metadataSize := 1

	if isMSBSet(metadata[0]) {
		size, byteRead, err := readSize(metadata[1:])
		if err != nil {
			return nil, oid.Null, 0, xerrors.Errorf("could not read object size: %w", err)
		}
		metadataSize += byteRead
		objectSize |= size << 4
	}

	if _, err = buf.Discard(metadataSize); err != nil {
		return nil, oid.Null, 0, xerrors.Errorf("could not skip metadata: %w", err)
	}

	var baseObjectOffset uint64
	var baseObjectOid oid.Oid
	switch objectType { //nolint:exhaustive // only the 2 delta types have a special treatment
	case object.ObjectDeltaRef:
		baseSHA := make([]byte, oid.Size)
		if _, err = io.ReadFull(buf, baseSHA); err != nil {
			return nil, oid.Null, 0, xerrors.Errorf("could not read base object sha: %w", err)
		}
		baseObjectOid, err = oid.FromRawBytes(baseSHA)
		if err != nil {
			return nil, oid.Null, 0, xerrors.Errorf("could not parse base object sha %x: %w", baseSHA, err)
		}
	case object.ObjectDeltaOFS:
		// The offset is stored on at most 8 septets, so 9 bytes covers
		// the worst case (one extra byte for the 7-bits-per-byte packing).
		offsetParts, err := buf.Peek(9)
		if err != nil {
			return nil, oid.Null, 0, xerrors.Errorf("could not peek base object offset: %w", err)
		}
		offset, bytesRead, err := readDeltaOffset(offsetParts)
		if err != nil {
			return nil, oid.Null, 0, xerrors.Errorf("could not read base object offset: %w", err)
		}
		baseObjectOffset = objectOffset - offset

		if _, err = buf.Discard(bytesRead); err != nil {
			return nil, oid.Null, 0, xerrors.Errorf("could not skip the offset: %w", err)
		}
	}

	zlibR, err := zlib.NewReader(buf)
	if err != nil {
		return nil, oid.Null, 0, xerrors.Errorf("could not get zlib reader: %w", err)
	}
	defer func() {
		closeErr := zlibR.Close()
		if err == nil {
			err = closeErr
		}
	}()

	var objectData bytes.Buffer
	if _, err = io.Copy(&objectData, zlibR); err != nil {
		return nil, oid.Null, 0, xerrors.Errorf("could not decompress object: %w", err)
	}

	if objectData.Len() != int(objectSize) {
		return nil, oid.Null, 0, xerrors.Errorf("object size mismatch: expected %d, got %d", objectSize, objectData.Len())
	}
	return object.NewWithID(id, objectType, objectData.Bytes()), baseObjectOid, baseObjectOffset, nil
}

// getObjectAt resolves the object at offset, applying delta
// instructions against the base object if it is a delta entry. depth
// is the number of delta hops already followed to reach this entry;
// a chain of more than maxDeltaChainDepth hops is rejected.
func (pck *Pack) getObjectAt(id oid.Oid, objectOffset uint64, depth int) (*object.Object, error) {
	const maxDeltaChainDepth = 50
	if depth > maxDeltaChainDepth {
		return nil, xerrors.Errorf("delta chain at offset %d is longer than %d hops", objectOffset, maxDeltaChainDepth)
	}
	o, baseOid, baseOffset, err := pck.getRawObjectAt(id, objectOffset)
	if err != nil {
		return nil, err
	}

	if o.Type() != object.ObjectDeltaRef && o.Type() != object.ObjectDeltaOFS {
		return o, nil
	}

	if baseOid != oid.Null {
		baseOffset, err = pck.idx.ObjectOffset(baseOid)
		if err != nil {
			return nil, xerrors.Errorf("could not get base object %s: %w", baseOid.String(), err)
		}
	}
	base, err := pck.getObjectAt(baseOid, baseOffset, depth+1)
	if err != nil {
		return nil, xerrors.Errorf("could not get base object at offset %d: %w", baseOffset, err)
	}

	delta := o.Bytes()
	sourceSize, sourceSizeLen, err := readSize(delta)
	if err != nil {
		return nil, xerrors.Errorf("could not read delta source size: %w", err)
	}
	if int(sourceSize) != base.Size() {
		return nil, xerrors.Errorf("base object size mismatch: expected %d, got %d", base.Size(), sourceSize)
	}
	_, targetSizeLen, err := readSize(delta[sourceSizeLen:])
	if err != nil {
		return nil, xerrors.Errorf("could not read delta target size: %w", err)
	}
	instructions := delta[sourceSizeLen+targetSizeLen:]
	baseContent := base.Bytes()

	out, err := applyDeltaInstructions(instructions, baseContent)
	if err != nil {
		return nil, xerrors.Errorf("could not apply delta instructions: %w", err)
	}
	return object.NewWithID(id, base.Type(), out), nil
}

// applyDeltaInstructions replays a delta's COPY/INSERT stream
// against base and returns the reconstructed content.
func applyDeltaInstructions(instructions []byte, base []byte) ([]byte, error) {
	var out bytes.Buffer

	for i := 0; i < len(instructions); i++ {
		instr := instructions[i]

		if isMSBSet(instr) {
			// COPY: bits 0-3 mark which of the (up to 4) little-endian
			// offset bytes follow; bits 4-6 mark which of the (up to 3)
			// little-endian length bytes follow.
			offsetInfo := uint(instr & 0b_0000_1111)
			offsetBytes := make([]byte, 4)
			byteRead := 0
			for j := uint(0); j < 4; j++ {
				if (offsetInfo>>j)&1 == 1 {
					if i+1+byteRead >= len(instructions) {
						return nil, xerrors.Errorf("copy instruction truncated: %w", ErrIntOverflow)
					}
					offsetBytes[j] = instructions[i+1+byteRead]
					byteRead++
				}
			}
			offset := binary.LittleEndian.Uint32(offsetBytes)
			i += byteRead

			copyLenInfo := uint((instr & 0b_0111_0000) >> 4)
			copyLenBytes := make([]byte, 4)
			byteRead = 0
			for j := uint(0); j < 3; j++ {
				if (copyLenInfo>>j)&1 == 1 {
					if i+1+byteRead >= len(instructions) {
						return nil, xerrors.Errorf("copy instruction truncated: %w", ErrIntOverflow)
					}
					copyLenBytes[j] = instructions[i+1+byteRead]
					byteRead++
				}
			}
			copyLen := binary.LittleEndian.Uint32(copyLenBytes)
			if copyLen == 0 {
				copyLen = 0x10000
			}
			i += byteRead
			if int(offset+copyLen) > len(base) {
				return nil, xerrors.Errorf("copy instruction out of bounds: %w", ErrIntOverflow)
			}
			out.Write(base[offset : offset+copyLen])
			continue
		}

		// INSERT: instr itself is the number of literal bytes that follow.
		start := i + 1
		end := start + int(instr)
		if end > len(instructions) {
			return nil, xerrors.Errorf("insert instruction truncated: %w", ErrIntOverflow)
		}
		out.Write(instructions[start:end])
		i += int(instr)
	}

	return out.Bytes(), nil
}

// GetObject returns the fully-resolved object with the given id.
func (pck *Pack) GetObject(id oid.Oid) (*object.Object, error) {
	pck.mu.Lock()
	defer pck.mu.Unlock()

	objectOffset, err := pck.idx.ObjectOffset(id)
	if err != nil {
		return nil, err
	}
	return pck.getObjectAt(id, objectOffset, 0)
}

// HasObject reports whether id is present in this pack's index.
func (pck *Pack) HasObject(id oid.Oid) (bool, error) {
	pck.mu.Lock()
	defer pck.mu.Unlock()

	_, err := pck.idx.ObjectOffset(id)
	if err != nil {
		if xerrors.Is(err, ErrObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ObjectCRC32 returns the packed-representation CRC32 recorded for
// id in the pack index.
func (pck *Pack) ObjectCRC32(id oid.Oid) (uint32, error) {
	return pck.idx.ObjectCRC32(id)
}

// ObjectCount returns the number of objects stored in the packfile.
func (pck *Pack) ObjectCount() uint32 {
	return binary.BigEndian.Uint32(pck.header[8:])
}

// ID returns the trailing SHA-1 checksum of the packfile.
func (pck *Pack) ID() (oid.Oid, error) {
	pck.mu.Lock()
	defer pck.mu.Unlock()

	if pck.id != oid.Null {
		return pck.id, nil
	}

	raw := make([]byte, oid.Size)
	offset, err := pck.r.Seek(-int64(oid.Size), io.SeekEnd)
	if err != nil {
		return oid.Null, xerrors.Errorf("could not seek to the trailing id: %w", err)
	}
	if _, err = pck.r.ReadAt(raw, offset); err != nil {
		return oid.Null, xerrors.Errorf("could not read the trailing id: %w", err)
	}
	pck.id, err = oid.FromRawBytes(raw)
	if err != nil {
		return oid.Null, xerrors.Errorf("invalid trailing id: %w", err)
	}
	return pck.id, nil
}

// Close releases the pack and index file handles.
func (pck *Pack) Close() error {
	pck.mu.Lock()
	defer pck.mu.Unlock()

	packErr := pck.r.Close()
	idxErr := pck.idxFile.Close()
	if packErr != nil {
		return packErr
	}
	return idxErr
}
