package refstore

import (
	"strconv"
	"strings"

	"github.com/puregit/git/oid"
	"golang.org/x/xerrors"
)

// ErrRevisionInvalid is returned when a revision expression cannot be
// parsed, or resolves past the root of history.
var ErrRevisionInvalid = xerrors.New("revision is not valid")

// ParentsFunc returns the list of parent ids for a commit id, in
// order (first-parent first). It is injected so revision resolution
// stays independent of any specific object store.
type ParentsFunc func(id oid.Oid) ([]oid.Oid, error)

// NameResolver resolves a bare name (branch, tag, HEAD, or a short or
// full hex id) to an object id.
type NameResolver func(name string) (oid.Oid, error)

// op is a single suffix operation applied left-to-right:
// kind '~' walks first-parent count times; kind '^' with count==0
// means "first parent"; kind '^' with count>0 selects the Nth parent
// (1-based).
type op struct {
	kind  byte
	count int
}

// ResolveRevision resolves a revision expression such as "HEAD~3",
// "main^^", or "feature~2^" to an object id.
//
// The base name (before the first "~" or "^") is resolved via
// resolveName; each suffix operation then walks parents via parents.
func ResolveRevision(spec string, resolveName NameResolver, parents ParentsFunc) (oid.Oid, error) {
	base, ops, err := parseRevSpec(spec)
	if err != nil {
		return oid.Null, err
	}

	id, err := resolveName(base)
	if err != nil {
		return oid.Null, err
	}

	for _, o := range ops {
		ps, err := parents(id)
		if err != nil {
			return oid.Null, err
		}

		switch o.kind {
		case '~':
			for i := 0; i < o.count; i++ {
				if len(ps) == 0 {
					return oid.Null, xerrors.Errorf("%s: no parent at depth %d: %w", spec, i+1, ErrRevisionInvalid)
				}
				id = ps[0]
				if i < o.count-1 {
					ps, err = parents(id)
					if err != nil {
						return oid.Null, err
					}
				}
			}
		case '^':
			n := o.count
			if n == 0 {
				n = 1
			}
			if n > len(ps) {
				return oid.Null, xerrors.Errorf("%s: no parent number %d: %w", spec, n, ErrRevisionInvalid)
			}
			id = ps[n-1]
		}
	}

	return id, nil
}

// parseRevSpec splits a revision expression into its base name and
// the ordered list of suffix operations.
func parseRevSpec(spec string) (base string, ops []op, err error) {
	i := strings.IndexAny(spec, "~^")
	if i < 0 {
		return spec, nil, nil
	}
	base = spec[:i]
	if base == "" {
		return "", nil, xerrors.Errorf("%s: missing base name: %w", spec, ErrRevisionInvalid)
	}

	rest := spec[i:]
	for len(rest) > 0 {
		kind := rest[0]
		if kind != '~' && kind != '^' {
			return "", nil, xerrors.Errorf("%s: unexpected %q: %w", spec, kind, ErrRevisionInvalid)
		}
		rest = rest[1:]

		digits := 0
		for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
			digits++
		}
		count := 0
		if digits > 0 {
			count, err = strconv.Atoi(rest[:digits])
			if err != nil {
				return "", nil, xerrors.Errorf("%s: invalid count: %w", spec, ErrRevisionInvalid)
			}
			rest = rest[digits:]
		} else if kind == '~' {
			count = 1
		}

		ops = append(ops, op{kind: kind, count: count})
	}

	return base, ops, nil
}
