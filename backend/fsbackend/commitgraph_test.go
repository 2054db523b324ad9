package fsbackend_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/puregit/git/backend"
	"github.com/puregit/git/commitgraph"
	"github.com/puregit/git/oid"
)

func TestCommitGraph_NotFoundBeforeFirstWrite(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	_, err := b.CommitGraph()
	assert.True(t, xerrors.Is(err, backend.ErrCommitGraphNotFound))
}

func TestWriteCommitGraphThenCommitGraph_RoundTrips(t *testing.T) {
	t.Parallel()

	b, _ := newBackend(t)

	root := idFor("1111111111111111111111111111111111111111")
	headers := map[oid.Oid]commitgraph.CommitHeader{
		root: {CommitterTime: 1000},
	}
	data, err := commitgraph.Build([]oid.Oid{root}, func(id oid.Oid) (commitgraph.CommitHeader, error) {
		return headers[id], nil
	})
	require.NoError(t, err)

	require.NoError(t, b.WriteCommitGraph(data))

	graph, err := b.CommitGraph()
	require.NoError(t, err)

	gen, err := graph.Generation(root)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), gen)
}

func idFor(hex string) oid.Oid {
	id, err := oid.FromHex(hex)
	if err != nil {
		panic(err)
	}
	return id
}
