package commitgraph

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // checksum only, not a security boundary
	"encoding/binary"
	"io"
	"sort"
	"sync"

	"golang.org/x/xerrors"

	"github.com/puregit/git/oid"
)

// Graph is a parsed commit-graph file, offering O(1) parent,
// generation, and timestamp lookup by binary search inside the
// fanout bucket once parsed.
type Graph struct {
	mu sync.Mutex

	r io.Reader

	fanout       [fanoutSize]uint32
	ids          []oid.Oid
	records      [][entrySize]byte
	extraParents []byte

	parseError error
	parsed     bool
}

// New returns a Graph that lazily parses r (the full file content,
// including its trailing checksum) on first lookup.
func New(r io.Reader) *Graph {
	return &Graph{r: r}
}

// Generation returns id's generation number.
func (g *Graph) Generation(id oid.Oid) (uint32, error) {
	rec, err := g.record(id)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(rec[16:20]), nil
}

// CommitterTime returns id's recorded committer timestamp (Unix
// seconds).
func (g *Graph) CommitterTime(id oid.Oid) (int64, error) {
	rec, err := g.record(id)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint32(rec[20:24])), nil
}

// Parents returns id's parent ids, resolving the extra-parents chunk
// for octopus merges.
func (g *Graph) Parents(id oid.Oid) ([]oid.Oid, error) {
	rec, err := g.record(id)
	if err != nil {
		return nil, err
	}

	parent1 := binary.BigEndian.Uint32(rec[4:8])
	parent2 := binary.BigEndian.Uint32(rec[8:12])

	var parents []oid.Oid
	if parent1 != sentinelNone {
		parents = append(parents, g.ids[parent1])
	}
	switch parent2 {
	case sentinelNone:
		// no second parent
	case sentinelOctopus:
		extraOffset := binary.BigEndian.Uint32(rec[12:16])
		more, err := g.readExtraParents(extraOffset)
		if err != nil {
			return nil, err
		}
		parents = append(parents, more...)
	default:
		parents = append(parents, g.ids[parent2])
	}
	return parents, nil
}

// Contains reports whether id is present in the graph.
func (g *Graph) Contains(id oid.Oid) (bool, error) {
	if err := g.parse(); err != nil {
		return false, err
	}
	_, found := g.search(id)
	return found, nil
}

func (g *Graph) readExtraParents(offset uint32) ([]oid.Oid, error) {
	data := g.extraParents[offset:]
	var parents []oid.Oid
	for {
		if len(data) < 4 {
			return nil, xerrors.Errorf("truncated extra-parents chunk")
		}
		v := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		last := v&0x80000000 != 0
		idx := v &^ 0x80000000
		if idx != sentinelNone {
			if int(idx) >= len(g.ids) {
				return nil, xerrors.Errorf("extra-parent index %d out of range", idx)
			}
			parents = append(parents, g.ids[idx])
		}
		if last {
			break
		}
	}
	return parents, nil
}

func (g *Graph) record(id oid.Oid) ([entrySize]byte, error) {
	if err := g.parse(); err != nil {
		return [entrySize]byte{}, err
	}
	i, found := g.search(id)
	if !found {
		return [entrySize]byte{}, ErrCommitNotFound
	}
	return g.records[i], nil
}

// search binary-searches for id within its fanout bucket.
func (g *Graph) search(id oid.Oid) (int, bool) {
	b := id.Bytes()[0]
	lo := 0
	if b > 0 {
		lo = int(g.fanout[b-1])
	}
	hi := int(g.fanout[b])

	bucket := g.ids[lo:hi]
	i := sort.Search(len(bucket), func(i int) bool {
		return bucket[i].Compare(id) >= 0
	})
	if i < len(bucket) && bucket[i] == id {
		return lo + i, true
	}
	return 0, false
}

func (g *Graph) parse() (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.parsed {
		return nil
	}
	if g.parseError != nil {
		return g.parseError
	}
	defer func() {
		if err != nil {
			g.parseError = err
		}
	}()

	all, err := io.ReadAll(g.r)
	if err != nil {
		return xerrors.Errorf("could not read commit-graph: %w", err)
	}
	if len(all) < headerSize+trailerSize {
		return xerrors.Errorf("commit-graph too short: %w", ErrInvalidMagic)
	}

	body, trailer := all[:len(all)-trailerSize], all[len(all)-trailerSize:]
	sum := sha1.Sum(body) //nolint:gosec
	if !bytes.Equal(sum[:], trailer) {
		return ErrChecksumMismatch
	}

	if !bytes.Equal(body[0:4], magic()) {
		return xerrors.Errorf("invalid commit-graph header: %w", ErrInvalidMagic)
	}
	if !bytes.Equal(body[4:8], fileVersion()) {
		return xerrors.Errorf("invalid commit-graph header: %w", ErrInvalidVersion)
	}
	count := int(binary.BigEndian.Uint32(body[8:12]))

	pos := headerSize
	for i := 0; i < fanoutSize; i++ {
		g.fanout[i] = binary.BigEndian.Uint32(body[pos : pos+4])
		pos += 4
	}
	if int(g.fanout[fanoutSize-1]) != count {
		return xerrors.Errorf("fanout total %d does not match commit count %d", g.fanout[fanoutSize-1], count)
	}

	g.ids = make([]oid.Oid, count)
	for i := 0; i < count; i++ {
		id, err := oid.FromRawBytes(body[pos : pos+oid.Size])
		if err != nil {
			return xerrors.Errorf("invalid oid at entry %d: %w", i, err)
		}
		g.ids[i] = id
		pos += oid.Size
	}

	g.records = make([][entrySize]byte, count)
	for i := 0; i < count; i++ {
		var rec [entrySize]byte
		copy(rec[:], body[pos:pos+entrySize])
		g.records[i] = rec
		pos += entrySize
	}

	g.extraParents = body[pos:]
	g.parsed = true
	return nil
}
