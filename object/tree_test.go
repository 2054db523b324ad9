package object_test

import (
	"testing"

	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blobID(t *testing.T, b byte) oid.Oid {
	t.Helper()
	var id oid.Oid
	id[0] = b
	return id
}

func TestNewTree_SortsEntriesGitStyle(t *testing.T) {
	t.Parallel()

	// "foo.go" must sort before the directory "foo", because a
	// directory compares as if its name had a trailing "/".
	tree := object.NewTree([]object.TreeEntry{
		{Path: "foo", Mode: object.ModeDirectory, ID: blobID(t, 1)},
		{Path: "foo.go", Mode: object.ModeFile, ID: blobID(t, 2)},
		{Path: "bar", Mode: object.ModeFile, ID: blobID(t, 3)},
	})

	entries := tree.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "bar", entries[0].Path)
	assert.Equal(t, "foo.go", entries[1].Path)
	assert.Equal(t, "foo", entries[2].Path)
}

func TestTree_RoundTrip(t *testing.T) {
	t.Parallel()

	entries := []object.TreeEntry{
		{Path: "README.md", Mode: object.ModeFile, ID: blobID(t, 0xaa)},
		{Path: "src", Mode: object.ModeDirectory, ID: blobID(t, 0xbb)},
	}
	tree := object.NewTree(entries)

	o := tree.ToObject()
	require.Equal(t, object.TypeTree, o.Type())

	reparsed, err := object.NewTreeFromObject(o)
	require.NoError(t, err)
	assert.Equal(t, tree.Entries(), reparsed.Entries())
	assert.Equal(t, tree.ID(), reparsed.ID())
}

func TestTree_Entries_AreImmutable(t *testing.T) {
	t.Parallel()

	tree := object.NewTree([]object.TreeEntry{
		{Path: "blob", Mode: object.ModeFile, ID: blobID(t, 0x03)},
	})

	entries := tree.Entries()
	entries[0].ID[0] = 0xe5
	entries[0].Path = "nope"

	assert.Equal(t, byte(0x03), tree.Entries()[0].ID[0])
	assert.Equal(t, "blob", tree.Entries()[0].Path)
}

func TestTreeObjectMode_ObjectType(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		mode     object.TreeObjectMode
		expected object.Type
	}{
		{mode: 0o644, expected: object.TypeBlob},
		{mode: object.ModeFile, expected: object.TypeBlob},
		{mode: object.ModeExecutable, expected: object.TypeBlob},
		{mode: object.ModeSymLink, expected: object.TypeBlob},
		{mode: object.ModeDirectory, expected: object.TypeTree},
		{mode: object.ModeGitLink, expected: object.TypeCommit},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, tc.mode.ObjectType())
	}
}

func TestTreeObjectMode_IsValid(t *testing.T) {
	t.Parallel()

	assert.False(t, object.TreeObjectMode(0o644).IsValid())
	assert.True(t, object.ModeFile.IsValid())
	assert.True(t, object.TreeObjectMode(0o100755).IsValid())
}
