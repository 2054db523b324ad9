// Package index implements git's staging area binary format (the
// ".git/index" a.k.a. "dircache" file): the sorted list of
// (path, stage, stat metadata, blob sha) tuples that bridges the
// working tree and the next commit.
//
// This package implements the version-2 on-disk layout only: no
// split-index, no sparse-checkout extended flags, no name-compression
// (those are version-4 features the original engine this was
// distilled from left as a TODO and were never implemented).
// https://git-scm.com/docs/index-format
package index

import "golang.org/x/xerrors"

const (
	// headerSize is magic(4) + version(4) + entry count(4).
	headerSize = 12

	// fileVersion is the only on-disk version this package produces
	// or accepts.
	fileVersion = 2

	// entryBaseSize is every fixed-width field of an entry, before its
	// variable-length path: ctime(8) + mtime(8) + dev(4) + ino(4) +
	// mode(4) + uid(4) + gid(4) + size(4) + sha(20) + flags(2).
	entryBaseSize = 62

	// trailerSize is the SHA-1 checksum over everything preceding it.
	trailerSize = 20

	// stageShift and nameLenMask carve up the 16-bit flags field: top 2
	// bits are the merge stage, next bit is the (always-0, v2) extended
	// flag, remaining 12 bits are min(len(path), 0xFFF).
	stageShift  = 12
	nameLenMask = 0x0FFF
)

// Mode is a staged entry's file mode, as git constrains it: a 4-bit
// object type plus (for regular files) UNIX permission bits.
type Mode uint32

// The file modes git's index format allows. Any other regular-file
// permission bits (e.g. 0644 with group-write) are invalid.
const (
	ModeRegular    Mode = 0o100644
	ModeExecutable Mode = 0o100755
	ModeSymlink    Mode = 0o120000
	ModeGitlink    Mode = 0o160000 // submodule
)

func magic() []byte { return []byte{'D', 'I', 'R', 'C'} }

var (
	// ErrInvalidMagic is returned when a file's magic bytes don't match.
	ErrInvalidMagic = xerrors.New("invalid index magic")
	// ErrInvalidVersion is returned when a file declares an unsupported version.
	ErrInvalidVersion = xerrors.New("unsupported index version")
	// ErrChecksumMismatch is returned when the trailing checksum
	// doesn't match the file's actual content.
	ErrChecksumMismatch = xerrors.New("index checksum mismatch")
	// ErrEntryNotFound is returned when a path/stage isn't staged.
	ErrEntryNotFound = xerrors.New("index entry not found")
)
