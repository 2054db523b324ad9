// Package refstore implements git references: the named pointers
// (branches, tags, HEAD) that resolve, directly or symbolically, to
// an object id.
package refstore

import (
	"bytes"
	"strings"

	"github.com/puregit/git/oid"
	"golang.org/x/xerrors"
)

// Well-known reference names.
const (
	// Head points at the current branch, or directly at a commit when
	// the repository is in detached-HEAD state.
	Head = "HEAD"
	// OrigHead is a backup of HEAD set before destructive commands
	// such as rebase or merge.
	OrigHead = "ORIG_HEAD"
	// MergeHead points at the commit being merged into the current
	// branch.
	MergeHead = "MERGE_HEAD"
	// CherryPickHead points at the commit being cherry-picked.
	CherryPickHead = "CHERRY_PICK_HEAD"
	// Master is the default branch name when none is specified.
	Master = "master"
)

var (
	// ErrRefNotFound is returned when a reference does not exist.
	ErrRefNotFound = xerrors.New("reference not found")
	// ErrRefExists is returned when a reference should not exist but does.
	ErrRefExists = xerrors.New("reference already exists")
	// ErrRefNameInvalid is returned when a reference name fails validation.
	ErrRefNameInvalid = xerrors.New("reference name is not valid")
	// ErrRefInvalid is returned when a reference's content is malformed.
	ErrRefInvalid = xerrors.New("reference is not valid")
	// ErrPackedRefInvalid is returned when packed-refs cannot be parsed.
	ErrPackedRefInvalid = xerrors.New("packed-refs file is invalid")
	// ErrUnknownRefType is returned for a reference of unrecognized type.
	ErrUnknownRefType = xerrors.New("unknown reference type")
)

// Type distinguishes a direct (oid) reference from a symbolic one.
type Type int8

const (
	// OidRef targets an object id directly.
	OidRef Type = 1
	// SymbolicRef targets another reference by name.
	SymbolicRef Type = 2
)

// Reference represents a git reference: a name bound either to an
// object id or, symbolically, to another reference's name.
// https://git-scm.com/book/en/v2/Git-Internals-Git-References
type Reference struct {
	name   string
	target string
	id     oid.Oid
	typ    Type
}

// NewReference returns a new direct reference pointing at target.
func NewReference(name string, target oid.Oid) *Reference {
	return &Reference{
		typ:  OidRef,
		name: name,
		id:   target,
	}
}

// NewSymbolicReference returns a new reference that points at another
// reference by name (e.g. HEAD pointing at refs/heads/main).
func NewSymbolicReference(name, target string) *Reference {
	return &Reference{
		typ:    SymbolicRef,
		name:   name,
		target: target,
	}
}

// Name returns the reference's full name, e.g. "refs/heads/main".
func (ref *Reference) Name() string {
	return ref.name
}

// Target returns the object id targeted by the reference. For a
// symbolic reference this is only populated once the chain has been
// resolved by ResolveReference.
func (ref *Reference) Target() oid.Oid {
	return ref.id
}

// Type returns the reference's type.
func (ref *Reference) Type() Type {
	return ref.typ
}

// SymbolicTarget returns the name targeted by a symbolic reference.
func (ref *Reference) SymbolicTarget() string {
	return ref.target
}

// Lookup is a callback that returns the raw stored content of a
// reference by name. It is injected so reference resolution stays
// independent of any specific storage backend.
type Lookup func(name string) ([]byte, error)

// ResolveReference follows a reference, recursively dereferencing
// symbolic links, until it finds the id it ultimately points at.
func ResolveReference(name string, finder Lookup) (*Reference, error) {
	return resolveRefs(name, finder, map[string]struct{}{})
}

func resolveRefs(name string, finder Lookup, visited map[string]struct{}) (*Reference, error) {
	// Guard against cycles, e.g. refs/heads/a -> refs/heads/b -> refs/heads/a,
	// and against chains of more than maxSymbolicDepth symbolic hops.
	const maxSymbolicDepth = 10
	if _, ok := visited[name]; ok {
		return nil, xerrors.Errorf("circular symbolic reference: %w", ErrRefInvalid)
	}
	if len(visited) > maxSymbolicDepth {
		return nil, xerrors.Errorf("symbolic reference chain deeper than %d: %w", maxSymbolicDepth, ErrRefInvalid)
	}
	visited[name] = struct{}{}

	if !IsRefNameValid(name) {
		return nil, xerrors.Errorf(`ref "%s": %w`, name, ErrRefNameInvalid)
	}

	data, err := finder(name)
	if err != nil {
		return nil, err
	}
	data = bytes.Trim(data, " \n")

	// We expect at least "ref: " (5 chars) followed by a target name.
	if len(data) < 6 {
		return nil, ErrRefInvalid
	}

	if string(data[0:5]) == "ref: " {
		symbolicTarget := string(data[5:])
		ref, err := resolveRefs(symbolicTarget, finder, visited)
		if err != nil {
			return nil, err
		}
		return &Reference{
			typ:    SymbolicRef,
			name:   name,
			id:     ref.id,
			target: symbolicTarget,
		}, nil
	}

	id, err := oid.FromHexChars(data)
	if err != nil {
		return nil, ErrRefInvalid
	}
	return &Reference{
		typ:  OidRef,
		name: name,
		id:   id,
	}, nil
}

// IsRefNameValid reports whether name is a syntactically valid
// reference name. https://stackoverflow.com/a/12093994/382879
func IsRefNameValid(name string) bool {
	if name == "" || name == "/" || name[len(name)-1] == '/' || name[len(name)-1] == '.' {
		return false
	}

	for i, c := range name {
		if c < 32 || c == 127 {
			return false
		}
		if c == '*' || c == '?' || c == '!' || c == '^' {
			return false
		}
		if c == ' ' || c == '[' || c == '\\' || c == ':' {
			return false
		}
		if i < len(name)-1 {
			substr := name[i : i+2]
			if substr == "@{" || substr == ".." {
				return false
			}
		}
	}

	segments := strings.Split(name, "/")
	for _, s := range segments {
		if s == "" || s[0] == '.' || s[len(s)-1] == '.' || strings.HasSuffix(s, ".lock") {
			return false
		}
	}

	return true
}
