package fsbackend_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/puregit/git/backend/fsbackend"
	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/packfile"
)

func newBackend(t *testing.T) (*fsbackend.Backend, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	b, err := fsbackend.New(fs, "/repo")
	require.NoError(t, err)
	require.NoError(t, b.Init())
	t.Cleanup(func() { require.NoError(t, b.Close()) })
	return b, fs
}

func TestWriteObjectAndObject(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	o := object.New(object.TypeBlob, []byte("hello world"))
	id, err := b.WriteObject(o)
	require.NoError(t, err)
	assert.Equal(t, o.ID(), id)

	got, err := b.Object(id)
	require.NoError(t, err)
	assert.Equal(t, object.TypeBlob, got.Type())
	assert.Equal(t, []byte("hello world"), got.Bytes())
}

func TestWriteObject_TwiceIsNoop(t *testing.T) {
	t.Parallel()

	b, fs := newBackend(t)

	o := object.New(object.TypeBlob, []byte("content"))
	id1, err := b.WriteObject(o)
	require.NoError(t, err)

	sha := id1.String()
	p := "/repo/objects/" + sha[:2] + "/" + sha[2:]
	info1, err := fs.Stat(p)
	require.NoError(t, err)

	id2, err := b.WriteObject(o)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	info2, err := fs.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime())
}

func TestObject_NotFound(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	_, err := b.Object(oid.FromContent([]byte("does not exist")))
	require.Error(t, err)
}

func TestHasObject(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	o := object.New(object.TypeBlob, []byte("exists"))
	id, err := b.WriteObject(o)
	require.NoError(t, err)

	found, err := b.HasObject(id)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = b.HasObject(oid.FromContent([]byte("missing")))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWalkLooseObjectIDs(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	ids := map[oid.Oid]struct{}{}
	for _, content := range []string{"one", "two", "three"} {
		id, err := b.WriteObject(object.New(object.TypeBlob, []byte(content)))
		require.NoError(t, err)
		ids[id] = struct{}{}
	}

	seen := map[oid.Oid]struct{}{}
	err := b.WalkLooseObjectIDs(func(id oid.Oid) error {
		seen[id] = struct{}{}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ids, seen)
}

func TestWalkLooseObjectIDs_StopsOnCallbackError(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	for _, content := range []string{"one", "two"} {
		_, err := b.WriteObject(object.New(object.TypeBlob, []byte(content)))
		require.NoError(t, err)
	}

	count := 0
	err := b.WalkLooseObjectIDs(func(id oid.Oid) error {
		count++
		return xerrors.New("stop walking")
	})
	require.Error(t, err)
	assert.Equal(t, 1, count)
}

func TestWalkPackedObjectIDs_NoPacks(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	err := b.WalkPackedObjectIDs(func(id oid.Oid) error {
		t.Fatal("no packfiles should be loaded")
		return nil
	})
	require.NoError(t, err)
}

func TestObject_NotFoundMeansPackfileErrIsPropagated(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	_, err := b.Object(oid.Null)
	require.Error(t, err)
	assert.False(t, xerrors.Is(err, packfile.ErrIntOverflow))
}
