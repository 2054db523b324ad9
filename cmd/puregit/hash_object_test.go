package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/oid"
	"github.com/puregit/git/repository"
)

func TestHashObjectCmd(t *testing.T) {
	t.Parallel()

	t.Run("prints the id of a blob without writing it", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		file := filepath.Join(dir, "content.txt")
		require.NoError(t, os.WriteFile(file, []byte("hello\n"), 0o644))

		out := &bytes.Buffer{}
		require.NoError(t, hashObjectCmd(out, &globalFlags{}, file, "blob", false))

		wantID := oid.FromContent([]byte("blob 6\x00hello\n"))
		assert.Equal(t, wantID.String()+"\n", out.String())
	})

	t.Run("writes the blob to the repository's object database when -w is set", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		_, err := repository.InitRepositoryWithOptions(dir, repository.InitOptions{})
		require.NoError(t, err)

		file := filepath.Join(dir, "content.txt")
		require.NoError(t, os.WriteFile(file, []byte("hello\n"), 0o644))

		out := &bytes.Buffer{}
		require.NoError(t, hashObjectCmd(out, &globalFlags{C: dir}, file, "blob", true))

		r, err := repository.OpenRepository(dir)
		require.NoError(t, err)
		defer r.Close() //nolint:errcheck // test cleanup

		id, err := oid.FromHex(trimNewline(out.String()))
		require.NoError(t, err)
		has, err := r.HasObject(id)
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("rejects an unsupported type", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		file := filepath.Join(dir, "content.txt")
		require.NoError(t, os.WriteFile(file, []byte("hello\n"), 0o644))

		err := hashObjectCmd(&bytes.Buffer{}, &globalFlags{}, file, "bogus", false)
		require.Error(t, err)
	})
}

func trimNewline(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\n' {
		return s[:len(s)-1]
	}
	return s
}
