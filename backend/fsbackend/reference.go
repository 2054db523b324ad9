package fsbackend

import (
	"golang.org/x/xerrors"

	"github.com/puregit/git/backend"
	"github.com/puregit/git/refstore"
)

// Reference returns a stored reference from its name. ErrRefNotFound
// is returned if it doesn't exist. This method can be called
// concurrently.
func (b *Backend) Reference(name string) (*refstore.Reference, error) {
	return b.refs.Resolve(name)
}

// WriteReference writes the given reference to disk. If the
// reference already exists it will be overwritten.
func (b *Backend) WriteReference(ref *refstore.Reference) error {
	return b.refs.Update(ref)
}

// WriteReferenceSafe writes the given reference to disk.
// ErrRefExists is returned if the reference already exists.
func (b *Backend) WriteReferenceSafe(ref *refstore.Reference) error {
	return b.refs.Create(ref)
}

// WalkReferences runs f on every stored reference.
func (b *Backend) WalkReferences(f backend.RefWalkFunc) error {
	err := b.refs.Walk("", func(ref *refstore.Reference) error {
		return f(ref)
	})
	if err != nil && xerrors.Is(err, backend.WalkStop) {
		return nil
	}
	return err
}
