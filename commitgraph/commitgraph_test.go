package commitgraph_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/commitgraph"
	"github.com/puregit/git/oid"
)

func id(s string) oid.Oid {
	return oid.FromContent([]byte(s))
}

// linear history: root -> a -> b -> head, plus an octopus merge
// "merge" with three parents (a, b, head) to exercise the
// extra-parents chunk.
func fixture() map[oid.Oid]commitgraph.CommitHeader {
	root := id("root")
	a := id("a")
	b := id("b")
	head := id("head")
	merge := id("merge")

	return map[oid.Oid]commitgraph.CommitHeader{
		root:  {ParentIDs: nil, CommitterTime: 1000},
		a:     {ParentIDs: []oid.Oid{root}, CommitterTime: 1001},
		b:     {ParentIDs: []oid.Oid{a}, CommitterTime: 1002},
		head:  {ParentIDs: []oid.Oid{b}, CommitterTime: 1003},
		merge: {ParentIDs: []oid.Oid{a, b, head}, CommitterTime: 1004},
	}
}

func TestBuildAndRead(t *testing.T) {
	t.Parallel()

	headers := fixture()
	merge := id("merge")

	data, err := commitgraph.Build([]oid.Oid{merge}, func(i oid.Oid) (commitgraph.CommitHeader, error) {
		return headers[i], nil
	})
	require.NoError(t, err)

	g := commitgraph.New(bytes.NewReader(data))

	for i, h := range headers {
		gen, err := g.Generation(i)
		require.NoError(t, err)
		assert.Greater(t, gen, uint32(0))

		ts, err := g.CommitterTime(i)
		require.NoError(t, err)
		assert.Equal(t, h.CommitterTime, ts)

		parents, err := g.Parents(i)
		require.NoError(t, err)
		assert.ElementsMatch(t, h.ParentIDs, parents)
	}
}

func TestGenerationIncreasesAlongHistory(t *testing.T) {
	t.Parallel()

	headers := fixture()
	merge := id("merge")

	data, err := commitgraph.Build([]oid.Oid{merge}, func(i oid.Oid) (commitgraph.CommitHeader, error) {
		return headers[i], nil
	})
	require.NoError(t, err)

	g := commitgraph.New(bytes.NewReader(data))

	root, a, b, head := id("root"), id("a"), id("b"), id("head")

	genRoot, err := g.Generation(root)
	require.NoError(t, err)
	genA, err := g.Generation(a)
	require.NoError(t, err)
	genB, err := g.Generation(b)
	require.NoError(t, err)
	genHead, err := g.Generation(head)
	require.NoError(t, err)
	genMerge, err := g.Generation(merge)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), genRoot)
	assert.Less(t, genRoot, genA)
	assert.Less(t, genA, genB)
	assert.Less(t, genB, genHead)
	assert.Greater(t, genMerge, genHead)
}

func TestCommitNotFound(t *testing.T) {
	t.Parallel()

	headers := fixture()
	root := id("root")

	data, err := commitgraph.Build([]oid.Oid{root}, func(i oid.Oid) (commitgraph.CommitHeader, error) {
		return headers[i], nil
	})
	require.NoError(t, err)

	g := commitgraph.New(bytes.NewReader(data))

	found, err := g.Contains(id("root"))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = g.Contains(id("not in graph"))
	require.NoError(t, err)
	assert.False(t, found)

	_, err = g.Generation(id("not in graph"))
	assert.ErrorIs(t, err, commitgraph.ErrCommitNotFound)
}

func TestChecksumMismatch(t *testing.T) {
	t.Parallel()

	headers := fixture()
	root := id("root")

	data, err := commitgraph.Build([]oid.Oid{root}, func(i oid.Oid) (commitgraph.CommitHeader, error) {
		return headers[i], nil
	})
	require.NoError(t, err)

	data[len(data)-1] ^= 0xff

	g := commitgraph.New(bytes.NewReader(data))
	_, err = g.Contains(root)
	assert.ErrorIs(t, err, commitgraph.ErrChecksumMismatch)
}
