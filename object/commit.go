package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/puregit/git/internal/readutil"
	"github.com/puregit/git/oid"
	"golang.org/x/xerrors"
)

// ErrSignatureInvalid is returned when an author/committer/tagger
// signature could not be parsed.
var ErrSignatureInvalid = xerrors.New("signature is invalid")

// Signature represents the author or committer of a commit (or the
// tagger of an annotated tag): a name, email, and timestamp.
type Signature struct {
	Time  time.Time
	Name  string
	Email string
}

// String returns the canonical on-disk representation of the signature:
// "Name <email> seconds tz".
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.Time.Unix(), s.Time.Format("-0700"))
}

// IsZero reports whether the signature has its zero value.
func (s Signature) IsZero() bool {
	return s.Time.IsZero() && s.Name == "" && s.Email == ""
}

// NewSignature builds a signature for name/email stamped with the
// current time.
func NewSignature(name, email string) Signature {
	return Signature{
		Name:  name,
		Email: email,
		Time:  time.Now(),
	}
}

// NewSignatureFromBytes parses a signature in the form:
//
//	User Name <user.email@domain.tld> timestamp timezone
func NewSignatureFromBytes(b []byte) (Signature, error) {
	sig := Signature{}

	data := readutil.ReadTo(b, '<')
	if len(data) == 0 {
		if len(b) == 0 {
			return sig, xerrors.Errorf("couldn't retrieve the name: %w", ErrSignatureInvalid)
		}
		return sig, xerrors.Errorf("signature stopped after the name: %w", ErrSignatureInvalid)
	}
	sig.Name = strings.TrimSpace(string(data))
	offset := len(data) + 1
	if offset >= len(b) {
		if offset == len(b) {
			return sig, xerrors.Errorf("couldn't retrieve the email: %w", ErrSignatureInvalid)
		}
		return sig, xerrors.Errorf("signature stopped after the name: %w", ErrSignatureInvalid)
	}

	data = readutil.ReadTo(b[offset:], '>')
	if len(data) == 0 {
		return sig, xerrors.Errorf("couldn't retrieve the email: %w", ErrSignatureInvalid)
	}
	sig.Email = string(data)
	offset += len(data) + 2 // skip "> "
	if offset >= len(b) {
		return sig, xerrors.Errorf("signature stopped after the email: %w", ErrSignatureInvalid)
	}

	timestamp := readutil.ReadTo(b[offset:], ' ')
	if len(timestamp) == 0 {
		return sig, xerrors.Errorf("couldn't retrieve the timestamp: %w", ErrSignatureInvalid)
	}
	offset += len(timestamp) + 1
	if offset >= len(b) {
		return sig, xerrors.Errorf("signature stopped after the timestamp: %w", ErrSignatureInvalid)
	}

	t, err := strconv.ParseInt(string(timestamp), 10, 64)
	if err != nil {
		return sig, xerrors.Errorf("invalid timestamp %s: %w", timestamp, err)
	}
	sig.Time = time.Unix(t, 0)

	timezone := b[offset:]
	tz, err := time.Parse("-0700", string(timezone))
	if err != nil {
		return sig, xerrors.Errorf("invalid timezone format %s: %w", timezone, err)
	}
	sig.Time = sig.Time.In(tz.Location())
	return sig, nil
}

// CommitOptions holds the optional fields used to build a Commit.
type CommitOptions struct {
	Message string
	GPGSig  string
	// Committer defaults to the author when left zero.
	Committer Signature
	ParentIDs []oid.Oid
}

// Commit represents a commit object.
type Commit struct {
	id        oid.Oid
	rawObject *Object

	author    Signature
	committer Signature

	gpgSig  string
	message string

	parentIDs []oid.Oid
	treeID    oid.Oid
}

// NewCommit creates a new Commit. The provided tree and parent ids
// are not checked for existence.
func NewCommit(treeID oid.Oid, author Signature, opts *CommitOptions) *Commit {
	c := &Commit{
		treeID:    treeID,
		author:    author,
		committer: opts.Committer,
		message:   opts.Message,
		parentIDs: opts.ParentIDs,
		gpgSig:    opts.GPGSig,
	}
	if c.committer.IsZero() {
		c.committer = author
	}
	c.rawObject = c.buildObject()
	c.id = c.rawObject.ID()
	return c
}

// NewCommitFromObject parses a commit from its raw object.
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
// parent may appear 0, 1 (regular commit), or 2+ times (merge
// commit); gpgsig is optional.
func NewCommitFromObject(o *Object) (*Commit, error) {
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
			if offset < len(objData) {
				c.message = string(objData[offset:])
			}
			break
		}

		kv := bytes.SplitN(line, []byte{' '}, 2)
		var err error
		switch string(kv[0]) {
		case "tree":
			c.treeID, err = oid.FromHexChars(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse tree id %#v: %w", kv[1], err)
			}
		case "parent":
			id, err := oid.FromHexChars(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse parent id %#v: %w", kv[1], err)
			}
			c.parentIDs = append(c.parentIDs, id)
		case "author":
			c.author, err = NewSignatureFromBytes(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse author signature %q: %w", kv[1], err)
			}
		case "committer":
			c.committer, err = NewSignatureFromBytes(kv[1])
			if err != nil {
				return nil, xerrors.Errorf("could not parse committer signature %q: %w", kv[1], err)
			}
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

// ID returns the commit object's id.
func (c *Commit) ID() oid.Oid {
	return c.id
}

// Author returns the signature of the person who made the changes.
func (c *Commit) Author() Signature {
	return c.author
}

// Committer returns the signature of the person who created the commit.
func (c *Commit) Committer() Signature {
	return c.committer
}

// Message returns the commit's message.
func (c *Commit) Message() string {
	return c.message
}

// ParentIDs returns the commit's parent ids, if any.
//   - the first commit of an orphan branch has 0 parents
//   - a regular commit has 1 parent
//   - a merge commit has 2 or more parents
func (c *Commit) ParentIDs() []oid.Oid {
	out := make([]oid.Oid, len(c.parentIDs))
	copy(out, c.parentIDs)
	return out
}

// TreeID returns the id of the commit's root tree.
func (c *Commit) TreeID() oid.Oid {
	return c.treeID
}

// GPGSig returns the commit's GPG signature, if any.
func (c *Commit) GPGSig() string {
	return c.gpgSig
}

// ToObject returns the underlying Object.
func (c *Commit) ToObject() *Object {
	if c.rawObject != nil {
		return c.rawObject
	}
	c.rawObject = c.buildObject()
	return c.rawObject
}

func (c *Commit) buildObject() *Object {
	buf := new(bytes.Buffer)
	buf.WriteString("tree ")
	buf.WriteString(c.treeID.String())
	buf.WriteByte('\n')

	for _, p := range c.parentIDs {
		buf.WriteString("parent ")
		buf.WriteString(p.String())
		buf.WriteByte('\n')
	}

	buf.WriteString("author ")
	buf.WriteString(c.Author().String())
	buf.WriteByte('\n')

	buf.WriteString("committer ")
	buf.WriteString(c.Committer().String())
	buf.WriteByte('\n')

	if c.gpgSig != "" {
		buf.WriteString("gpgsig ")
		buf.WriteString(c.gpgSig)
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.WriteString(c.message)
	return New(TypeCommit, buf.Bytes())
}
