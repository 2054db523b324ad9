// Package commitgraph implements the commit-graph sidecar: a binary
// cache of parent links, commit generation numbers, and committer
// timestamps, letting reachability walks avoid inflating every commit
// object along the way.
package commitgraph

import "golang.org/x/xerrors"

const (
	fanoutSize      = 256
	fanoutEntrySize = 4

	// headerSize is magic(4) + version(4) + commit count(4) +
	// extra-parents chunk offset(4).
	headerSize = 16

	// entrySize is the fixed-width per-commit record: root-tree slot
	// (4, unused), parent1 index (4), parent2 index (4),
	// extra-parents offset (4), generation (4), committer time (4),
	// 12 reserved bytes.
	entrySize = 36

	// trailerSize is the SHA-1 checksum over everything preceding it.
	trailerSize = 20

	// maxTagHops is a depth limit for peeling annotated tags down to a
	// commit. Nothing in this package peels tags (Build takes commit
	// ids), so the constant is not referenced.
	maxTagHops = 10
)

// sentinelNone marks a parent slot, or the extra-parents offset for a
// regular commit, as absent.
const sentinelNone uint32 = 0xFFFFFFFF

// sentinelOctopus marks parent2 when a commit has more than two
// parents; the real list then lives in the extra-parents chunk at the
// record's extra-parents offset.
const sentinelOctopus uint32 = 0xFFFFFFFE

func magic() []byte       { return []byte{'P', 'C', 'G', 'R'} }
func fileVersion() []byte { return []byte{0, 0, 0, 1} }

var (
	// ErrInvalidMagic is returned when a file's magic bytes don't match.
	ErrInvalidMagic = xerrors.New("invalid magic")
	// ErrInvalidVersion is returned when a file declares an unsupported version.
	ErrInvalidVersion = xerrors.New("invalid version")
	// ErrChecksumMismatch is returned when the trailing checksum
	// doesn't match the file's actual content.
	ErrChecksumMismatch = xerrors.New("commit-graph checksum mismatch")
	// ErrCommitNotFound is returned when a commit id isn't present in
	// the graph.
	ErrCommitNotFound = xerrors.New("commit not found in graph")
)
