package index

import "github.com/puregit/git/oid"

// Entry is a single staged path: its last-known stat metadata, the
// blob it points at, and its merge stage (0 for a normally-staged
// path, 1-3 for the base/ours/theirs sides of an unresolved conflict).
type Entry struct {
	CTimeSec, CTimeNsec uint32
	MTimeSec, MTimeNsec uint32
	Dev, Ino            uint32
	Mode                Mode
	UID, GID            uint32
	Size                uint32
	ID                  oid.Oid
	Stage               uint8
	Path                string
}

// less orders entries the way the on-disk format requires: by path,
// then by stage for duplicate paths (an unresolved conflict stages
// the same path 3 times).
func (e *Entry) less(other *Entry) bool {
	if e.Path != other.Path {
		return e.Path < other.Path
	}
	return e.Stage < other.Stage
}
