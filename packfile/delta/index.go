package delta

import "encoding/binary"

// blockIndex maps the fingerprint of every blockSize-byte block of a
// base buffer to the block's starting offsets, so the encoder can
// find candidate matches for a target position in O(1) amortized
// instead of scanning the whole base.
type blockIndex struct {
	base    []byte
	buckets map[uint32][]int
}

func newBlockIndex(base []byte) *blockIndex {
	idx := &blockIndex{
		base:    base,
		buckets: make(map[uint32][]int),
	}
	for i := 0; i+blockSize <= len(base); i++ {
		h := fingerprint(base[i : i+4])
		idx.buckets[h] = append(idx.buckets[h], i)
	}
	return idx
}

// fingerprint hashes the first 4 bytes of a candidate block. Using
// only the first 4 bytes as the bucket key (rather than hashing the
// full blockSize window) keeps insertion O(n) while still giving a
// cheap pre-filter before the byte-for-byte verification in
// bestMatch.
func fingerprint(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// bestMatch finds the longest run in idx.base that matches a prefix
// of target, starting at any of the candidate offsets sharing
// target's leading 4-byte fingerprint. Returns length 0 if target
// is shorter than 4 bytes or no candidate shares its fingerprint;
// otherwise the longest length found is returned even when it is
// below blockSize, and the caller decides whether it is usable.
func (idx *blockIndex) bestMatch(target []byte) (offset, length int) {
	if len(target) < 4 {
		return 0, 0
	}
	h := fingerprint(target[:4])
	bestLen := 0
	bestOffset := 0
	for _, candidate := range idx.buckets[h] {
		l := matchLength(idx.base[candidate:], target)
		if l > bestLen {
			bestLen = l
			bestOffset = candidate
		}
	}
	return bestOffset, bestLen
}

func matchLength(base, target []byte) int {
	n := len(base)
	if len(target) < n {
		n = len(target)
	}
	i := 0
	for i < n && base[i] == target[i] {
		i++
	}
	return i
}
