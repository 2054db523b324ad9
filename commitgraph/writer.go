package commitgraph

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // checksum only, not a security boundary
	"encoding/binary"
	"sort"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/puregit/git/lockfile"
	"github.com/puregit/git/oid"
)

// CommitHeader is the slice of a commit object Build actually needs:
// its parents and committer timestamp, without decoding the tree,
// message, or signature.
type CommitHeader struct {
	ParentIDs     []oid.Oid
	CommitterTime int64
}

// HeaderReader reads a single commit's header fields. Implementations
// typically read only the object's header bytes, stopping at the
// blank-line boundary, rather than inflating the whole commit.
type HeaderReader func(id oid.Oid) (CommitHeader, error)

// Build walks the commit ancestry reachable from startIDs and returns
// the serialized commit-graph file content. Callers resolve refs down
// to starting commit ids themselves; Build does not peel annotated
// tags.
func Build(startIDs []oid.Oid, read HeaderReader) ([]byte, error) {
	headers := map[oid.Oid]CommitHeader{}

	queue := append([]oid.Oid{}, startIDs...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := headers[id]; seen {
			continue
		}
		h, err := read(id)
		if err != nil {
			return nil, xerrors.Errorf("could not read commit %s: %w", id, err)
		}
		headers[id] = h
		queue = append(queue, h.ParentIDs...)
	}

	ids := make([]oid.Oid, 0, len(headers))
	for id := range headers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	index := make(map[oid.Oid]uint32, len(ids))
	for i, id := range ids {
		index[id] = uint32(i)
	}

	generations := computeGenerations(ids, headers, index)

	var extraParents bytes.Buffer
	records := make([][entrySize]byte, len(ids))
	for i, id := range ids {
		h := headers[id]
		var rec [entrySize]byte
		binary.BigEndian.PutUint32(rec[0:4], sentinelNone) // root-tree slot, unused

		parent1 := sentinelNone
		parent2 := sentinelNone
		extraOffset := sentinelNone

		switch len(h.ParentIDs) {
		case 0:
			// both sentinels already set
		case 1:
			parent1 = index[h.ParentIDs[0]]
		default:
			parent1 = index[h.ParentIDs[0]]
			if len(h.ParentIDs) == 2 {
				parent2 = index[h.ParentIDs[1]]
			} else {
				parent2 = sentinelOctopus
				extraOffset = uint32(extraParents.Len())
				for j := 1; j < len(h.ParentIDs); j++ {
					v := index[h.ParentIDs[j]]
					if j == len(h.ParentIDs)-1 {
						v |= 0x80000000
					}
					var buf [4]byte
					binary.BigEndian.PutUint32(buf[:], v)
					extraParents.Write(buf[:])
				}
			}
		}

		binary.BigEndian.PutUint32(rec[4:8], parent1)
		binary.BigEndian.PutUint32(rec[8:12], parent2)
		binary.BigEndian.PutUint32(rec[12:16], extraOffset)
		binary.BigEndian.PutUint32(rec[16:20], generations[id])
		binary.BigEndian.PutUint32(rec[20:24], uint32(h.CommitterTime))
		// rec[24:36] stays zeroed (reserved).
		records[i] = rec
	}

	var out bytes.Buffer
	out.Write(magic())
	out.Write(fileVersion())
	writeUint32(&out, uint32(len(ids)))
	writeUint32(&out, uint32(headerSize+fanoutSize*fanoutEntrySize+len(ids)*oid.Size+len(ids)*entrySize))

	fanout := make([]uint32, fanoutSize)
	for _, id := range ids {
		fanout[id.Bytes()[0]]++
	}
	var cumulative uint32
	for i := range fanout {
		cumulative += fanout[i]
		fanout[i] = cumulative
	}
	for _, count := range fanout {
		writeUint32(&out, count)
	}

	for _, id := range ids {
		out.Write(id.Bytes())
	}
	for _, rec := range records {
		out.Write(rec[:])
	}
	out.Write(extraParents.Bytes())

	sum := sha1.Sum(out.Bytes()) //nolint:gosec
	out.Write(sum[:])

	return out.Bytes(), nil
}

// WriteFile builds and atomically persists the commit-graph at path.
func WriteFile(fs afero.Fs, path string, startIDs []oid.Oid, read HeaderReader) error {
	data, err := Build(startIDs, read)
	if err != nil {
		return err
	}
	return lockfile.WriteFile(fs, path, data)
}

func writeUint32(out *bytes.Buffer, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	out.Write(buf[:])
}

// computeGenerations assigns each commit a generation number via
// Kahn's algorithm: a commit's generation is one more than the
// largest generation among its parents present in the set, or 1 if
// it has none present (either a root, or all its parents lie outside
// the set being graphed).
func computeGenerations(ids []oid.Oid, headers map[oid.Oid]CommitHeader, index map[oid.Oid]uint32) map[oid.Oid]uint32 {
	generations := make(map[oid.Oid]uint32, len(ids))

	inDegree := make(map[oid.Oid]int, len(ids))
	children := make(map[oid.Oid][]oid.Oid, len(ids))
	for _, id := range ids {
		for _, p := range headers[id].ParentIDs {
			if _, inSet := index[p]; !inSet {
				continue
			}
			inDegree[id]++
			children[p] = append(children[p], id)
		}
	}

	var ready []oid.Oid
	for _, id := range ids {
		if inDegree[id] == 0 {
			ready = append(ready, id)
			generations[id] = 1
		}
	}

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		for _, child := range children[id] {
			if generations[id]+1 > generations[child] {
				generations[child] = generations[id] + 1
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	return generations
}
