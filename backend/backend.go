// Package backend contains interfaces and implementations to store
// and retrieve data from the object database.
package backend

import (
	"io"

	"golang.org/x/xerrors"

	"github.com/puregit/git/commitgraph"
	"github.com/puregit/git/index"
	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/packfile"
	"github.com/puregit/git/refstore"
)

// ErrCommitGraphNotFound is returned by CommitGraph when no
// commit-graph sidecar has been written yet.
var ErrCommitGraphNotFound = xerrors.New("commit-graph not found")

// This line generates a mock of the interfaces using gomock
// (https://github.com/golang/mock). To regenerate the mocks, you'll need
// gomock and mockgen installed, then run `go generate github.com/puregit/git/backend`
//
//go:generate mockgen -package mockpackfile -destination ../internal/mocks/mockbackend/backend.go github.com/puregit/git/backend Backend

// Backend represents an object that can store and retrieve data
// from and to the object database.
type Backend interface {
	// Close frees the resources held by the backend.
	Close() error

	// Init initializes a repository's on-disk layout.
	Init() error

	// Reference returns a stored reference from its name.
	Reference(name string) (*refstore.Reference, error)
	// WriteReference writes the given reference to the db. If the
	// reference already exists it will be overwritten.
	WriteReference(ref *refstore.Reference) error
	// WriteReferenceSafe writes the given reference to the db.
	// ErrRefExists is returned if the reference already exists.
	WriteReferenceSafe(ref *refstore.Reference) error
	// WalkReferences runs the provided method on all the references.
	WalkReferences(f RefWalkFunc) error

	// Object returns the object that has the given id.
	Object(oid.Oid) (*object.Object, error)
	// HasObject returns whether an object exists in the odb.
	HasObject(oid.Oid) (bool, error)
	// WriteObject adds an object to the odb.
	WriteObject(*object.Object) (oid.Oid, error)
	// WalkPackedObjectIDs runs the provided method on all the packed object ids.
	WalkPackedObjectIDs(f packfile.OidWalkFunc) error
	// WalkLooseObjectIDs runs the provided method on all the loose object ids.
	WalkLooseObjectIDs(f packfile.OidWalkFunc) error

	// AddPack installs a just-received, trailer-verified pack (r must
	// be seeked to its start) into the object database: it indexes
	// the pack in a single pass, writes both files under objects/pack,
	// and makes every object it contains immediately available to
	// Object/HasObject. It returns the pack's own id (its trailing
	// checksum) and how many objects it contains.
	AddPack(r io.ReadSeeker) (id oid.Oid, objectCount int, err error)

	// CommitGraph returns the parsed commit-graph sidecar.
	// ErrCommitGraphNotFound is returned when none has been written yet.
	CommitGraph() (*commitgraph.Graph, error)
	// WriteCommitGraph persists an already-encoded commit-graph sidecar,
	// as returned by commitgraph.Build.
	WriteCommitGraph(data []byte) error

	// Index returns the parsed staging index, or an empty Index when
	// none has been written yet.
	Index() (*index.Index, error)
	// WriteIndex persists the staging index.
	WriteIndex(idx *index.Index) error
}

// RefWalkFunc represents a function that will be applied on all
// references found by WalkReferences.
type RefWalkFunc = func(ref *refstore.Reference) error

// WalkStop is a fake error used to tell a Walk method to stop early.
var WalkStop = xerrors.New("stop walking") //nolint // the linter expects all errors to start with Err, but here we're faking an error so that rule doesn't apply
