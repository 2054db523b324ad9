package object

import (
	"bytes"
	"sort"
	"strconv"

	"github.com/puregit/git/internal/readutil"
	"github.com/puregit/git/oid"
	"golang.org/x/xerrors"
)

// TreeObjectMode represents the mode of an entry inside a tree.
// Non-standard modes (like 0o100664) are not supported.
type TreeObjectMode int32

const (
	// ModeFile is the mode used for a regular file.
	ModeFile TreeObjectMode = 0o100644
	// ModeExecutable is the mode used for an executable file.
	ModeExecutable TreeObjectMode = 0o100755
	// ModeDirectory is the mode used for a sub-tree.
	ModeDirectory TreeObjectMode = 0o040000
	// ModeSymLink is the mode used for a symbolic link.
	ModeSymLink TreeObjectMode = 0o120000
	// ModeGitLink is the mode used for a submodule (commit in another repo).
	ModeGitLink TreeObjectMode = 0o160000
)

// IsValid reports whether m is one of the supported modes.
func (m TreeObjectMode) IsValid() bool {
	switch m {
	case ModeFile, ModeExecutable, ModeDirectory, ModeSymLink, ModeGitLink:
		return true
	default:
		return false
	}
}

// ObjectType returns the kind of object an entry with this mode points to.
func (m TreeObjectMode) ObjectType() Type {
	switch m {
	case ModeDirectory:
		return TypeTree
	case ModeGitLink:
		return TypeCommit
	case ModeExecutable, ModeFile, ModeSymLink:
		return TypeBlob
	default:
		return TypeBlob
	}
}

// Tree represents a git tree object: an ordered list of named entries,
// each pointing at a blob, another tree, or a gitlink.
type Tree struct {
	rawObject *Object
	// entries is kept immutable and always in git's sort order.
	entries []TreeEntry
}

// TreeEntry represents a single entry of a tree.
type TreeEntry struct {
	Path string
	ID   oid.Oid
	Mode TreeObjectMode
}

// sortKey returns the name used to order an entry. Trees sort as if
// their name had a trailing "/", so "foo.go" sorts before the
// directory "foo" even though "foo" < "foo.go" as plain strings.
func (e TreeEntry) sortKey() string {
	if e.Mode == ModeDirectory {
		return e.Path + "/"
	}
	return e.Path
}

// sortEntries orders entries in place using git's tree sort order.
func sortEntries(entries []TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].sortKey() < entries[j].sortKey()
	})
}

// NewTree returns a new tree containing the given entries, sorted
// into git's canonical tree order.
func NewTree(entries []TreeEntry) *Tree {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sortEntries(sorted)

	t := &Tree{
		entries: sorted,
	}
	t.rawObject = t.buildObject()
	return t
}

// NewTreeFromObject parses a tree from its raw object.
//
// A tree is a sequence of entries, each with the format:
//
//	{octal_mode} {path_name}\0{20-byte sha}
func NewTreeFromObject(o *Object) (*Tree, error) {
	if o.Type() != TypeTree {
		return nil, xerrors.Errorf("type %s is not a tree: %w", o.typ, ErrObjectInvalid)
	}

	entries := []TreeEntry{}

	objData := o.Bytes()
	if len(objData) > 0 {
		offset := 0
		for i := 1; ; i++ {
			entry := TreeEntry{}
			data := readutil.ReadTo(objData[offset:], ' ')
			if len(data) == 0 {
				return nil, xerrors.Errorf("could not retrieve the mode of entry %d: %w", i, ErrTreeInvalid)
			}
			offset += len(data) + 1
			mode, err := strconv.ParseInt(string(data), 8, 32)
			if err != nil {
				return nil, xerrors.Errorf("could not parse mode of entry %d: %s: %w", i, err.Error(), ErrTreeInvalid)
			}
			entry.Mode = TreeObjectMode(mode)

			data = readutil.ReadTo(objData[offset:], 0)
			if len(data) == 0 {
				return nil, xerrors.Errorf("could not retrieve the path of entry %d: %w", i, ErrTreeInvalid)
			}
			offset += len(data) + 1
			entry.Path = string(data)

			if offset+oid.Size > len(objData) {
				return nil, xerrors.Errorf("not enough space to retrieve the ID of entry %d: %w", i, ErrTreeInvalid)
			}
			entry.ID, err = oid.FromRawBytes(objData[offset : offset+oid.Size])
			if err != nil {
				return nil, xerrors.Errorf("invalid SHA for entry %d (%s): %w", i, err.Error(), ErrTreeInvalid)
			}
			offset += oid.Size

			entries = append(entries, entry)
			if len(objData) == offset {
				break
			}
		}
	}
	return &Tree{
		rawObject: o,
		entries:   entries,
	}, nil
}

// Entries returns a copy of the tree's entries, in git's sort order.
func (t *Tree) Entries() []TreeEntry {
	out := make([]TreeEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// ID returns the tree object's id.
func (t *Tree) ID() oid.Oid {
	return t.rawObject.ID()
}

// ToObject returns the underlying Object.
func (t *Tree) ToObject() *Object {
	if t.rawObject != nil {
		return t.rawObject
	}
	t.rawObject = t.buildObject()
	return t.rawObject
}

func (t *Tree) buildObject() *Object {
	buf := new(bytes.Buffer)
	for _, e := range t.entries {
		buf.WriteString(strconv.FormatInt(int64(e.Mode), 8))
		buf.WriteByte(' ')
		buf.WriteString(e.Path)
		buf.WriteByte(0)
		buf.Write(e.ID.Bytes())
	}
	return New(TypeTree, buf.Bytes())
}
