package index

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // checksum only, not a security boundary
	"encoding/binary"
	"io"
	"sort"

	"golang.org/x/xerrors"

	"github.com/puregit/git/oid"
)

// Index is a parsed staging area: every entry plus any trailing
// extension blocks this package doesn't understand, kept opaque so a
// read-then-write round trip doesn't silently drop them.
type Index struct {
	Entries    []*Entry
	Extensions []byte
}

// New returns an empty Index.
func New() *Index {
	return &Index{}
}

// Add stages or replaces an entry, keeping Entries sorted.
func (idx *Index) Add(e *Entry) {
	for i, existing := range idx.Entries {
		if existing.Path == e.Path && existing.Stage == e.Stage {
			idx.Entries[i] = e
			return
		}
	}
	idx.Entries = append(idx.Entries, e)
	sort.Slice(idx.Entries, func(i, j int) bool { return idx.Entries[i].less(idx.Entries[j]) })
}

// Remove unstages every stage of path. It reports whether anything
// was removed.
func (idx *Index) Remove(path string) bool {
	kept := idx.Entries[:0]
	removed := false
	for _, e := range idx.Entries {
		if e.Path == path {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	idx.Entries = kept
	return removed
}

// Get returns the stage-0 entry for path. ErrEntryNotFound if unstaged.
func (idx *Index) Get(path string) (*Entry, error) {
	for _, e := range idx.Entries {
		if e.Path == path && e.Stage == 0 {
			return e, nil
		}
	}
	return nil, ErrEntryNotFound
}

// Parse reads a full index file (including its trailing checksum)
// from r.
func Parse(r io.Reader) (*Index, error) {
	all, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Errorf("could not read index: %w", err)
	}
	if len(all) < headerSize+trailerSize {
		return nil, xerrors.Errorf("index too short: %w", ErrInvalidMagic)
	}

	body, trailer := all[:len(all)-trailerSize], all[len(all)-trailerSize:]
	sum := sha1.Sum(body) //nolint:gosec
	if !bytes.Equal(sum[:], trailer) {
		return nil, ErrChecksumMismatch
	}

	if !bytes.Equal(body[0:4], magic()) {
		return nil, xerrors.Errorf("invalid index header: %w", ErrInvalidMagic)
	}
	version := binary.BigEndian.Uint32(body[4:8])
	if version != fileVersion {
		return nil, xerrors.Errorf("index version %d: %w", version, ErrInvalidVersion)
	}
	count := int(binary.BigEndian.Uint32(body[8:12]))

	idx := &Index{Entries: make([]*Entry, 0, count)}
	pos := headerSize
	for i := 0; i < count; i++ {
		e, consumed, err := parseEntry(body[pos:])
		if err != nil {
			return nil, xerrors.Errorf("could not parse entry %d: %w", i, err)
		}
		idx.Entries = append(idx.Entries, e)
		pos += consumed
	}

	idx.Extensions = append([]byte{}, body[pos:]...)
	return idx, nil
}

func parseEntry(data []byte) (*Entry, int, error) {
	if len(data) < entryBaseSize {
		return nil, 0, xerrors.Errorf("truncated entry")
	}
	e := &Entry{
		CTimeSec:  binary.BigEndian.Uint32(data[0:4]),
		CTimeNsec: binary.BigEndian.Uint32(data[4:8]),
		MTimeSec:  binary.BigEndian.Uint32(data[8:12]),
		MTimeNsec: binary.BigEndian.Uint32(data[12:16]),
		Dev:       binary.BigEndian.Uint32(data[16:20]),
		Ino:       binary.BigEndian.Uint32(data[20:24]),
		Mode:      Mode(binary.BigEndian.Uint32(data[24:28])),
		UID:       binary.BigEndian.Uint32(data[28:32]),
		GID:       binary.BigEndian.Uint32(data[32:36]),
		Size:      binary.BigEndian.Uint32(data[36:40]),
	}
	id, err := oid.FromRawBytes(data[40:60])
	if err != nil {
		return nil, 0, xerrors.Errorf("invalid entry sha: %w", err)
	}
	e.ID = id

	flags := binary.BigEndian.Uint16(data[60:62])
	e.Stage = uint8((flags >> stageShift) & 0x3)
	nameLen := int(flags & nameLenMask)

	rest := data[entryBaseSize:]
	var path []byte
	if nameLen < nameLenMask {
		if len(rest) < nameLen {
			return nil, 0, xerrors.Errorf("truncated entry path")
		}
		path = rest[:nameLen]
	} else {
		// Longer than 12 bits can express: the name is NUL-terminated
		// instead of length-prefixed.
		i := bytes.IndexByte(rest, 0)
		if i < 0 {
			return nil, 0, xerrors.Errorf("unterminated long entry path")
		}
		path = rest[:i]
		nameLen = i
	}
	e.Path = string(path)

	total := entryBaseSize + nameLen
	padded := ((total + 8) / 8) * 8
	return e, padded, nil
}

// Write serializes idx, including a fresh trailing checksum.
func Write(idx *Index) ([]byte, error) {
	sorted := append([]*Entry{}, idx.Entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].less(sorted[j]) })

	var out bytes.Buffer
	out.Write(magic())
	writeUint32(&out, fileVersion)
	writeUint32(&out, uint32(len(sorted)))

	for _, e := range sorted {
		if err := writeEntry(&out, e); err != nil {
			return nil, err
		}
	}
	out.Write(idx.Extensions)

	sum := sha1.Sum(out.Bytes()) //nolint:gosec
	out.Write(sum[:])
	return out.Bytes(), nil
}

func writeEntry(out *bytes.Buffer, e *Entry) error {
	if e.Stage > 3 {
		return xerrors.Errorf("invalid stage %d for %s", e.Stage, e.Path)
	}

	writeUint32(out, e.CTimeSec)
	writeUint32(out, e.CTimeNsec)
	writeUint32(out, e.MTimeSec)
	writeUint32(out, e.MTimeNsec)
	writeUint32(out, e.Dev)
	writeUint32(out, e.Ino)
	writeUint32(out, uint32(e.Mode))
	writeUint32(out, e.UID)
	writeUint32(out, e.GID)
	writeUint32(out, e.Size)
	out.Write(e.ID.Bytes())

	nameLen := len(e.Path)
	flagNameLen := nameLen
	if flagNameLen > nameLenMask {
		flagNameLen = nameLenMask
	}
	flags := uint16(e.Stage)<<stageShift | uint16(flagNameLen)
	writeUint16(out, flags)

	out.WriteString(e.Path)

	total := entryBaseSize + nameLen
	padded := ((total + 8) / 8) * 8
	padding := padded - total
	for i := 0; i < padding; i++ {
		out.WriteByte(0)
	}
	return nil
}

func writeUint32(out *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	out.Write(buf[:])
}

func writeUint16(out *bytes.Buffer, v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	out.Write(buf[:])
}
