package object

import (
	"bytes"

	"github.com/puregit/git/internal/readutil"
	"github.com/puregit/git/oid"
	"golang.org/x/xerrors"
)

// TagParams holds the data needed to create an annotated Tag.
type TagParams struct {
	Target    *Object
	Name      string
	Tagger    Signature
	Message   string
	OptGPGSig string
}

// Tag represents an annotated tag object.
type Tag struct {
	rawObject *Object

	tagger  Signature
	tag     string
	message string

	gpgSig string

	id     oid.Oid
	target oid.Oid

	typ Type
}

// NewTag creates a new annotated Tag pointing at p.Target.
func NewTag(p *TagParams) *Tag {
	t := &Tag{
		target:  p.Target.ID(),
		typ:     p.Target.Type(),
		tag:     p.Name,
		tagger:  p.Tagger,
		message: p.Message,
		gpgSig:  p.OptGPGSig,
	}
	t.rawObject = t.buildObject()
	t.id = t.rawObject.ID()
	return t
}

// NewTagFromObject parses an annotated tag from its raw object.
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
//
// gpgsig is optional.
func NewTagFromObject(o *Object) (*Tag, error) {
	if o.typ != TypeTag {
		return nil, xerrors.Errorf("type %s is not a tag: %w", o.typ, ErrObjectInvalid)
	}
	t := &Tag{
		id:        o.ID(),
		rawObject: o,
	}
	offset := 0
	objData := o.Bytes()
	var err error
	for {
		line := readutil.ReadTo(objData[offset:], '\n')
		offset += len(line) + 1

		if len(line) == 0 && offset == 1 {
			return nil, xerrors.Errorf("could not find tag first line: %w", ErrTagInvalid)
		}
		if len(line) == 0 {
			if offset < len(objData) {
				t.message = string(objData[offset:])
			}
			break
		}

		kv := bytes.SplitN(line, []byte{' '}, 2)
		switch string(kv[0]) {
		case "object":
			t.target, err = oid.FromHexChars(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse target id %#v: %w", kv[1], err)
			}
		case "type":
			t.typ, err = NewTypeFromString(string(kv[1]))
			if err != nil {
				return nil, xerrors.Errorf("invalid object type %s: %w", kv[1], err)
			}
		case "tagger":
			t.tagger, err = NewSignatureFromBytes(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse tagger %q: %w", kv[1], err)
			}
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

	if t.tagger.IsZero() {
		return nil, xerrors.Errorf("tag has no tagger: %w", ErrTagInvalid)
	}
	if t.target.IsZero() {
		return nil, xerrors.Errorf("tag has no target: %w", ErrTagInvalid)
	}
	if !t.typ.IsValid() {
		return nil, xerrors.Errorf("tag has no type: %w", ErrTagInvalid)
	}

	return t, nil
}

// ID returns the tag object's id.
func (t *Tag) ID() oid.Oid {
	return t.id
}

// Target returns the id of the object the tag points at.
func (t *Tag) Target() oid.Oid {
	return t.target
}

// Type returns the kind of the targeted object.
func (t *Tag) Type() Type {
	return t.typ
}

// Name returns the tag's name.
func (t *Tag) Name() string {
	return t.tag
}

// Tagger returns the signature of the person who created the tag.
func (t *Tag) Tagger() Signature {
	return t.tagger
}

// Message returns the tag's message.
func (t *Tag) Message() string {
	return t.message
}

// GPGSig returns the tag's GPG signature, if any.
func (t *Tag) GPGSig() string {
	return t.gpgSig
}

// ToObject returns the underlying Object.
func (t *Tag) ToObject() *Object {
	if t.rawObject != nil {
		return t.rawObject
	}
	t.rawObject = t.buildObject()
	return t.rawObject
}

func (t *Tag) buildObject() *Object {
	buf := new(bytes.Buffer)
	buf.WriteString("object ")
	buf.WriteString(t.target.String())
	buf.WriteByte('\n')

	buf.WriteString("type ")
	buf.WriteString(t.typ.String())
	buf.WriteByte('\n')

	buf.WriteString("tag ")
	buf.WriteString(t.tag)
	buf.WriteByte('\n')

	buf.WriteString("tagger ")
	buf.WriteString(t.tagger.String())
	buf.WriteByte('\n')

	if t.gpgSig != "" {
		buf.WriteString("gpgsig ")
		buf.WriteString(t.gpgSig)
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.WriteString(t.message)
	return New(TypeTag, buf.Bytes())
}
