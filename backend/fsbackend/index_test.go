package fsbackend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/index"
	"github.com/puregit/git/oid"
)

func TestIndex_EmptyBeforeFirstWrite(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	idx, err := b.Index()
	require.NoError(t, err)
	assert.Empty(t, idx.Entries)
}

func TestWriteIndexThenIndex_RoundTrips(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	idx := index.New()
	idx.Add(&index.Entry{
		Path: "main.go",
		ID:   idFor("2222222222222222222222222222222222222222"),
		Mode: index.ModeRegular,
		Size: 42,
	})
	require.NoError(t, b.WriteIndex(idx))

	got, err := b.Index()
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "main.go", got.Entries[0].Path)

	e, err := got.Get("main.go")
	require.NoError(t, err)
	assert.Equal(t, oid.Oid(idFor("2222222222222222222222222222222222222222")), e.ID)
}
