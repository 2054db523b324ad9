package transport_test

import (
	"crypto/sha1" //nolint:gosec // matching the pack trailer's own hash
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/transport"
)

func packWithTrailer(body []byte) []byte {
	sum := sha1.Sum(body) //nolint:gosec
	return append(append([]byte{}, body...), sum[:]...)
}

func TestPackReceiver_RoundTripSingleWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	recv, err := transport.NewPackReceiver(fs, "/tmp")
	require.NoError(t, err)

	pack := packWithTrailer([]byte("PACK\x00\x00\x00\x02some pack bytes"))
	n, err := recv.Write(pack)
	require.NoError(t, err)
	assert.Equal(t, len(pack), n)
	assert.Equal(t, int64(len(pack)), recv.Written())

	require.NoError(t, recv.Finish())

	readBack, err := io.ReadAll(recv.File())
	require.NoError(t, err)
	assert.Equal(t, pack, readBack)
}

func TestPackReceiver_RoundTripChunkedWrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	recv, err := transport.NewPackReceiver(fs, "/tmp")
	require.NoError(t, err)

	pack := packWithTrailer([]byte("PACK\x00\x00\x00\x05" + string(make([]byte, 100))))
	for i := 0; i < len(pack); i += 7 {
		end := i + 7
		if end > len(pack) {
			end = len(pack)
		}
		_, err := recv.Write(pack[i:end])
		require.NoError(t, err)
	}

	require.NoError(t, recv.Finish())
}

func TestPackReceiver_TrailerMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	recv, err := transport.NewPackReceiver(fs, "/tmp")
	require.NoError(t, err)

	pack := packWithTrailer([]byte("PACK body"))
	pack[len(pack)-1] ^= 0xFF // corrupt the trailer

	_, err = recv.Write(pack)
	require.NoError(t, err)

	err = recv.Finish()
	require.ErrorIs(t, err, transport.ErrTrailerMismatch)
}

func TestPackReceiver_TooShort(t *testing.T) {
	fs := afero.NewMemMapFs()
	recv, err := transport.NewPackReceiver(fs, "/tmp")
	require.NoError(t, err)

	_, err = recv.Write([]byte("short"))
	require.NoError(t, err)

	err = recv.Finish()
	require.ErrorIs(t, err, transport.ErrTrailerMismatch)
}

func TestPackReceiver_ReadAtFromMirror(t *testing.T) {
	fs := afero.NewMemMapFs()
	recv, err := transport.NewPackReceiver(fs, "/tmp")
	require.NoError(t, err)

	pack := packWithTrailer([]byte("0123456789"))
	_, err = recv.Write(pack)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := recv.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, pack[2:6], buf)
}

func TestPackReceiver_Remove(t *testing.T) {
	fs := afero.NewMemMapFs()
	recv, err := transport.NewPackReceiver(fs, "/tmp")
	require.NoError(t, err)

	path := recv.Path()
	require.NoError(t, recv.Remove())

	exists, err := afero.Exists(fs, path)
	require.NoError(t, err)
	assert.False(t, exists)
}
