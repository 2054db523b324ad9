package fsbackend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/backend"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/refstore"
)

func TestReference_Direct(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	id := oid.FromContent([]byte("some commit"))
	ref := refstore.NewReference("refs/heads/main", id)
	require.NoError(t, b.WriteReference(ref))

	got, err := b.Reference("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, id, got.Target())
}

func TestReference_Symbolic(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	id := oid.FromContent([]byte("head commit"))
	require.NoError(t, b.WriteReference(refstore.NewReference("refs/heads/main", id)))

	got, err := b.Reference("HEAD")
	require.NoError(t, err)
	assert.Equal(t, id, got.Target())
}

func TestWriteReferenceSafe_FailsIfExists(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	id := oid.FromContent([]byte("one"))
	ref := refstore.NewReference("refs/heads/feature", id)
	require.NoError(t, b.WriteReferenceSafe(ref))

	err := b.WriteReferenceSafe(refstore.NewReference("refs/heads/feature", oid.FromContent([]byte("two"))))
	require.ErrorIs(t, err, refstore.ErrRefExists)
}

func TestWalkReferences(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	names := []string{"refs/heads/main", "refs/heads/dev", "refs/tags/v1"}
	for _, n := range names {
		require.NoError(t, b.WriteReference(refstore.NewReference(n, oid.FromContent([]byte(n)))))
	}

	seen := map[string]struct{}{}
	err := b.WalkReferences(func(ref *refstore.Reference) error {
		seen[ref.Name()] = struct{}{}
		return nil
	})
	require.NoError(t, err)
	for _, n := range names {
		assert.Contains(t, seen, n)
	}
}

func TestWalkReferences_StopsEarly(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	for _, n := range []string{"refs/heads/a", "refs/heads/b"} {
		require.NoError(t, b.WriteReference(refstore.NewReference(n, oid.FromContent([]byte(n)))))
	}

	count := 0
	err := b.WalkReferences(func(ref *refstore.Reference) error {
		count++
		return backend.WalkStop
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
