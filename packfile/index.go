package packfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"sync"

	"github.com/puregit/git/internal/readutil"
	"github.com/puregit/git/oid"
	"golang.org/x/xerrors"
)

const (
	fanoutSize      = 256
	fanoutEntrySize = 4
	crc32EntrySize  = 4
	offsetEntrySize = 4
)

// Index represents a parsed pack .idx (v2) file.
//
// Layout: 8-byte header, 256-entry fanout table (cumulative counts,
// 4 bytes each), a sorted table of N 20-byte SHA-1s, an N-entry
// CRC32 table (4 bytes each), an N-entry offset table (4 bytes each,
// MSB set to indicate an index into the optional 8-byte large-offset
// table), the large-offset table, and a 40-byte trailer (pack SHA-1,
// index SHA-1).
// https://git-scm.com/docs/pack-format
type Index struct {
	mu sync.Mutex

	r readutil.BufferedReader

	offsets map[oid.Oid]uint64
	crc32s  map[oid.Oid]uint32

	parseError error
	parsed     bool
}

// NewIndex returns an Index that lazily parses r on first lookup.
func NewIndex(r readutil.BufferedReader) (*Index, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, xerrors.Errorf("could not read index header: %w", err)
	}
	if !bytes.Equal(header[0:4], indexMagic()) {
		return nil, xerrors.Errorf("invalid index header: %w", ErrInvalidMagic)
	}
	if !bytes.Equal(header[4:8], indexVersion()) {
		return nil, xerrors.Errorf("invalid index header: %w", ErrInvalidVersion)
	}
	return &Index{r: r}, nil
}

// ObjectOffset returns the byte offset of id within its packfile.
// ErrObjectNotFound is returned when the id isn't in this index.
func (idx *Index) ObjectOffset(id oid.Oid) (uint64, error) {
	if err := idx.parse(); err != nil {
		return 0, xerrors.Errorf("could not parse index: %w", err)
	}
	offset, ok := idx.offsets[id]
	if !ok {
		return 0, ErrObjectNotFound
	}
	return offset, nil
}

// ObjectCRC32 returns the recorded CRC32 checksum of id's packed
// (still-compressed) representation.
func (idx *Index) ObjectCRC32(id oid.Oid) (uint32, error) {
	if err := idx.parse(); err != nil {
		return 0, xerrors.Errorf("could not parse index: %w", err)
	}
	crc, ok := idx.crc32s[id]
	if !ok {
		return 0, ErrObjectNotFound
	}
	return crc, nil
}

func (idx *Index) parse() (err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.parsed {
		return nil
	}
	if idx.parseError != nil {
		return idx.parseError
	}
	defer func() {
		if err != nil {
			idx.parseError = err
		}
	}()

	bufInt32 := make([]byte, 4)
	bufInt64 := make([]byte, 8)
	bufOid := make([]byte, oid.Size)

	// Fanout: we only need the cumulative count at 0xff to get the
	// total object count.
	if _, err = idx.r.Discard(255 * fanoutEntrySize); err != nil {
		return xerrors.Errorf("could not skip to the last fanout entry: %w", err)
	}
	if _, err = io.ReadFull(idx.r, bufInt32); err != nil {
		return xerrors.Errorf("could not read object count: %w", err)
	}
	objectCount := int(binary.BigEndian.Uint32(bufInt32))

	ids := make([]oid.Oid, 0, objectCount)
	for i := 0; i < objectCount; i++ {
		if _, err = io.ReadFull(idx.r, bufOid); err != nil {
			return xerrors.Errorf("could not read oid %d: %w", i, err)
		}
		id, err := oid.FromRawBytes(bufOid)
		if err != nil {
			return xerrors.Errorf("invalid oid at entry %d: %w", i, err)
		}
		ids = append(ids, id)
	}

	idx.crc32s = make(map[oid.Oid]uint32, objectCount)
	for _, id := range ids {
		if _, err = io.ReadFull(idx.r, bufInt32); err != nil {
			return xerrors.Errorf("could not read crc32 for %s: %w", id, err)
		}
		idx.crc32s[id] = binary.BigEndian.Uint32(bufInt32)
	}

	// Offset table: entries whose MSB is set point into the
	// large-offset table instead of encoding the offset directly. We
	// have to finish the sequential offset table before we can jump
	// to large offsets, so collect those for a second pass.
	type largeOffsetEntry struct {
		id             oid.Oid
		relativeOffset uint64
	}
	var large []largeOffsetEntry

	idx.offsets = make(map[oid.Oid]uint64, objectCount)
	for _, id := range ids {
		if _, err = io.ReadFull(idx.r, bufInt32); err != nil {
			return xerrors.Errorf("could not read offset for %s: %w", id, err)
		}
		entry := binary.BigEndian.Uint32(bufInt32)
		if entry&0x80000000 != 0 {
			large = append(large, largeOffsetEntry{id: id, relativeOffset: uint64(entry &^ 0x80000000)})
			continue
		}
		idx.offsets[id] = uint64(entry)
	}

	if len(large) > 0 {
		sort.Slice(large, func(i, j int) bool { return large[i].relativeOffset < large[j].relativeOffset })
		for _, e := range large {
			if _, err = io.ReadFull(idx.r, bufInt64); err != nil {
				return xerrors.Errorf("could not read large offset for %s: %w", e.id, err)
			}
			idx.offsets[e.id] = binary.BigEndian.Uint64(bufInt64)
		}
	}

	idx.parsed = true
	return nil
}
