// Package object implements the four git object kinds (blob, tree,
// commit, tag) as a tagged union sharing a common canonical
// serialisation and content-addressed id.
package object

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"strconv"
	"sync"

	"github.com/puregit/git/internal/errutil"
	"github.com/puregit/git/internal/readutil"
	"github.com/puregit/git/oid"
	"golang.org/x/xerrors"
)

// Errors returned while building or parsing objects.
var (
	ErrObjectUnknown = xerrors.New("invalid object type")
	ErrObjectInvalid = xerrors.New("invalid object")
	ErrTreeInvalid   = xerrors.New("invalid tree")
	ErrCommitInvalid = xerrors.New("invalid commit")
	ErrTagInvalid    = xerrors.New("invalid tag")
)

// Type represents the kind of an object, as stored in its header and
// in a packfile entry.
type Type int8

// The object kinds understood by the engine. 5 is reserved by the
// pack format for future use and is never produced here.
const (
	TypeCommit     Type = 1
	TypeTree       Type = 2
	TypeBlob       Type = 3
	TypeTag        Type = 4
	ObjectDeltaOFS Type = 6
	ObjectDeltaRef Type = 7
)

func (t Type) String() string {
	switch t {
	case TypeCommit:
		return "commit"
	case TypeTree:
		return "tree"
	case TypeBlob:
		return "blob"
	case TypeTag:
		return "tag"
	case ObjectDeltaOFS:
		return "ofs-delta"
	case ObjectDeltaRef:
		return "ref-delta"
	default:
		panic(fmt.Sprintf("unknown object type %d", t))
	}
}

// IsValid reports whether t is one of the known object kinds.
func (t Type) IsValid() bool {
	switch t {
	case TypeCommit, TypeTree, TypeBlob, TypeTag, ObjectDeltaOFS, ObjectDeltaRef:
		return true
	default:
		return false
	}
}

// NewTypeFromString parses a type's textual name, as found in a
// loose-object header or a tag's "type" line.
func NewTypeFromString(t string) (Type, error) {
	switch t {
	case "commit":
		return TypeCommit, nil
	case "tree":
		return TypeTree, nil
	case "blob":
		return TypeBlob, nil
	case "tag":
		return TypeTag, nil
	default:
		return 0, ErrObjectUnknown
	}
}

// Object is a git object: a typed byte string whose id is the SHA-1
// of its canonical "type len\x00content" serialisation.
// https://git-scm.com/book/en/v2/Git-Internals-Git-Objects
type Object struct {
	id      oid.Oid
	typ     Type
	content []byte

	idProcessing sync.Once
}

// New creates a new object of the given type from raw content.
func New(typ Type, content []byte) *Object {
	o := &Object{
		typ:     typ,
		content: content,
	}
	o.id, _ = o.build()
	return o
}

// NewWithID creates an object whose id is already known (e.g. read
// back from a packfile, where the id comes from the pack index
// rather than from re-hashing the content).
func NewWithID(id oid.Oid, typ Type, content []byte) *Object {
	o := &Object{
		id:      id,
		typ:     typ,
		content: content,
	}
	o.idProcessing.Do(func() {})
	return o
}

// ID returns the object's id, computing it lazily from the content
// on first access.
func (o *Object) ID() oid.Oid {
	o.idProcessing.Do(func() {
		o.id, _ = o.build()
	})
	return o.id
}

// Size returns the size, in bytes, of the object's content.
func (o *Object) Size() int {
	return len(o.content)
}

// Type returns the object's kind.
func (o *Object) Type() Type {
	return o.typ
}

// Bytes returns the object's raw content (without the "type len\x00"
// header).
func (o *Object) Bytes() []byte {
	return o.content
}

func (o *Object) build() (id oid.Oid, data []byte) {
	w := new(bytes.Buffer)
	w.WriteString(o.Type().String())
	w.WriteByte(' ')
	w.WriteString(strconv.Itoa(o.Size()))
	w.WriteByte(0)
	w.Write(o.Bytes())

	data = w.Bytes()
	id = oid.FromContent(data)
	return id, data
}

// Compress returns the object's zlib-compressed canonical form, as
// stored in a loose object file.
func (o *Object) Compress() (data []byte, err error) {
	_, fileContent := o.build()

	compressed := new(bytes.Buffer)
	zw := zlib.NewWriter(compressed)
	defer errutil.Close(zw, &err)

	if _, err = zw.Write(fileContent); err != nil {
		return nil, xerrors.Errorf("could not zlib the object: %w", err)
	}
	return compressed.Bytes(), nil
}

// AsBlob reinterprets the object as a Blob.
func (o *Object) AsBlob() *Blob {
	return NewBlob(o)
}

// AsTree reinterprets the object as a Tree.
func (o *Object) AsTree() (*Tree, error) {
	return NewTreeFromObject(o)
}

// AsCommit reinterprets the object as a Commit.
//
// A commit has the following format:
//
//	tree {sha}
//	parent {sha}
//	author {name} <{email}> {seconds} {tz}
//	committer {name} <{email}> {seconds} {tz}
//	gpgsig -----BEGIN PGP SIGNATURE-----
//	 {armored signature, continued on following lines}
//	 -----END PGP SIGNATURE-----
//	{blank line}
//	{message}
//
// parent may appear 0, 1 (regular commit) or 2+ times (merge
// commit); gpgsig is optional.
func (o *Object) AsCommit() (*Commit, error) {
	if o.typ != TypeCommit {
		return nil, xerrors.Errorf("type %s is not a commit: %w", o.typ, ErrObjectInvalid)
	}
	c := &Commit{
		id:        o.ID(),
		rawObject: o,
	}
	offset := 0
	objData := o.Bytes()
	for {
		line := readutil.ReadTo(objData[offset:], '\n')
		offset += len(line) + 1

		if len(line) == 0 && offset == 1 {
			return nil, xerrors.Errorf("could not find commit first line: %w", ErrCommitInvalid)
		}

		if len(line) == 0 {
			c.message = string(objData[offset:])
			break
		}

		kv := bytes.SplitN(line, []byte{' '}, 2)
		switch string(kv[0]) {
		case "tree":
			id, err := oid.FromHexChars(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse tree id %#v: %w", kv[1], err)
			}
			c.treeID = id
		case "parent":
			id, err := oid.FromHexChars(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse parent id %#v: %w", kv[1], err)
			}
			c.parentIDs = append(c.parentIDs, id)
		case "author":
			sig, err := NewSignatureFromBytes(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse author signature %q: %w", kv[1], err)
			}
			c.author = sig
		case "committer":
			sig, err := NewSignatureFromBytes(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse committer signature %q: %w", kv[1], err)
			}
			c.committer = sig
		case "gpgsig":
			begin := string(kv[1]) + "\n"
			const end = "-----END PGP SIGNATURE-----"
			i := bytes.Index(objData[offset:], []byte(end))
			if i < 0 {
				return nil, xerrors.Errorf("unterminated gpgsig: %w", ErrCommitInvalid)
			}
			c.gpgSig = begin + string(objData[offset:offset+i]) + end
			offset += len(end) + i + 1
		}
	}
	if c.treeID.IsZero() {
		return nil, xerrors.Errorf("commit has no tree: %w", ErrCommitInvalid)
	}
	if c.author.IsZero() {
		return nil, xerrors.Errorf("commit has no author: %w", ErrCommitInvalid)
	}

	return c, nil
}

// AsTag reinterprets the object as an annotated Tag.
//
// A tag has the following format:
//
//	object {sha}
//	type {target kind}
//	tag {name}
//	tagger {name} <{email}> {seconds} {tz}
//	gpgsig -----BEGIN PGP SIGNATURE-----
//	 {armored signature}
//	 -----END PGP SIGNATURE-----
//	{blank line}
//	{message}
func (o *Object) AsTag() (*Tag, error) {
	if o.typ != TypeTag {
		return nil, xerrors.Errorf("type %s is not a tag: %w", o.typ, ErrObjectInvalid)
	}
	t := &Tag{
		id:        o.ID(),
		rawObject: o,
	}
	offset := 0
	objData := o.Bytes()
	for {
		line := readutil.ReadTo(objData[offset:], '\n')
		offset += len(line) + 1

		if len(line) == 0 && offset == 1 {
			return nil, xerrors.Errorf("could not find tag first line: %w", ErrTagInvalid)
		}

		if len(line) == 0 {
			t.message = string(objData[offset:])
			break
		}

		kv := bytes.SplitN(line, []byte{' '}, 2)
		switch string(kv[0]) {
		case "object":
			id, err := oid.FromHexChars(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse target id %#v: %w", kv[1], err)
			}
			t.target = id
		case "type":
			typ, err := NewTypeFromString(string(kv[1]))
			if err != nil {
				return nil, xerrors.Errorf("object type %s: %w", kv[1], err)
			}
			t.typ = typ
		case "tagger":
			sig, err := NewSignatureFromBytes(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse tagger signature %q: %w", kv[1], err)
			}
			t.tagger = sig
		case "tag":
			t.tag = string(kv[1])
		case "gpgsig":
			begin := string(kv[1]) + "\n"
			const end = "-----END PGP SIGNATURE-----"
			i := bytes.Index(objData[offset:], []byte(end))
			if i < 0 {
				return nil, xerrors.Errorf("unterminated gpgsig: %w", ErrTagInvalid)
			}
			t.gpgSig = begin + string(objData[offset:offset+i]) + end
			offset += len(end) + i + 1
		}
	}

	return t, nil
}
