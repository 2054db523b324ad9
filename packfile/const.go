// Package packfile implements reading of git packfiles (the
// concatenated, optionally delta-compressed object store shipped
// during clone/fetch/push) and their v2 index sidecars.
package packfile

import (
	"github.com/puregit/git/oid"
	"golang.org/x/xerrors"
)

const (
	// ExtPackfile is the file extension used for packfiles.
	ExtPackfile = ".pack"
	// ExtIndex is the file extension used for pack index files.
	ExtIndex = ".idx"

	// headerSize is the 12-byte packfile header: 4-byte magic,
	// 4-byte version, 4-byte object count.
	headerSize = 12
)

func packMagic() []byte    { return []byte{'P', 'A', 'C', 'K'} }
func packVersion() []byte  { return []byte{0, 0, 0, 2} }
func indexMagic() []byte   { return []byte{0xff, 't', 'O', 'c'} }
func indexVersion() []byte { return []byte{0, 0, 0, 2} }

var (
	// ErrIntOverflow is returned when a varint-encoded size or offset
	// would not fit in 64 bits.
	ErrIntOverflow = xerrors.New("int64 overflow")
	// ErrInvalidMagic is returned when a file's magic bytes don't match.
	ErrInvalidMagic = xerrors.New("invalid magic")
	// ErrInvalidVersion is returned when a file declares an unsupported version.
	ErrInvalidVersion = xerrors.New("invalid version")
	// ErrObjectNotFound is returned when an object id isn't present in
	// a pack's index.
	ErrObjectNotFound = xerrors.New("object not found")
)

// OidWalkFunc is applied to every object id found while walking a
// pack or a loose object store.
type OidWalkFunc func(id oid.Oid) error
