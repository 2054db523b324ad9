package packfile

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // git's pack index checksum is sha1 by format, not by choice
	"encoding/binary"
	"io"
	"sort"

	"github.com/puregit/git/oid"
	"golang.org/x/xerrors"
)

// WriteIndex encodes entries as a v2 pack index, mirroring the layout
// Index.parse reads: header, 256-entry fanout, sorted sha1 table,
// crc32 table, offset table (entries past 2^31-1 are stored as an
// index, MSB set, into the large-offset table that follows), and a
// trailer of the pack's own checksum plus this index's.
func WriteIndex(w io.Writer, entries []IndexEntry, packChecksum oid.Oid) error {
	sorted := make([]IndexEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.Compare(sorted[j].ID) < 0 })

	var body bytes.Buffer
	body.Write(indexMagic())
	body.Write(indexVersion())

	var fanout [fanoutSize]uint32
	for _, e := range sorted {
		fanout[e.ID[0]]++
	}
	for i := 1; i < fanoutSize; i++ {
		fanout[i] += fanout[i-1]
	}
	buf4 := make([]byte, fanoutEntrySize)
	for _, count := range fanout {
		binary.BigEndian.PutUint32(buf4, count)
		body.Write(buf4)
	}

	for _, e := range sorted {
		body.Write(e.ID[:])
	}

	for _, e := range sorted {
		binary.BigEndian.PutUint32(buf4, e.CRC32)
		body.Write(buf4)
	}

	const largeOffsetThreshold = 1 << 31
	var large []uint64
	for _, e := range sorted {
		if e.Offset >= largeOffsetThreshold {
			binary.BigEndian.PutUint32(buf4, uint32(len(large))|0x80000000)
			large = append(large, e.Offset)
		} else {
			binary.BigEndian.PutUint32(buf4, uint32(e.Offset))
		}
		body.Write(buf4)
	}

	buf8 := make([]byte, 8)
	for _, offset := range large {
		binary.BigEndian.PutUint64(buf8, offset)
		body.Write(buf8)
	}

	body.Write(packChecksum[:])

	indexChecksum := sha1.Sum(body.Bytes()) //nolint:gosec // pack index trailer format mandates sha1
	body.Write(indexChecksum[:])

	if _, err := w.Write(body.Bytes()); err != nil {
		return xerrors.Errorf("could not write pack index: %w", err)
	}
	return nil
}
