package sideband_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/transport/pktline"
	"github.com/puregit/git/transport/sideband"
)

func writePacked(t *testing.T, w io.Writer, band sideband.Band, payload []byte) {
	t.Helper()
	require.NoError(t, pktline.WritePacket(w, band.WithPayload(payload)))
}

func TestDemuxer_PackDataOnly(t *testing.T) {
	t.Parallel()

	expected := []byte("abcdefghijklmnopqrstuvwxyz")

	var buf bytes.Buffer
	writePacked(t, &buf, sideband.PackData, expected[0:8])
	writePacked(t, &buf, sideband.ProgressMessage, []byte("FOO\n"))
	writePacked(t, &buf, sideband.PackData, expected[8:16])
	writePacked(t, &buf, sideband.PackData, expected[16:26])
	require.NoError(t, pktline.WriteFlush(&buf))

	d := sideband.NewDemuxer(&buf)
	content := make([]byte, 26)
	n, err := io.ReadFull(d, content)
	require.NoError(t, err)
	assert.Equal(t, 26, n)
	assert.Equal(t, expected, content)
}

func TestDemuxer_ProgressForwarded(t *testing.T) {
	t.Parallel()

	expected := []byte("abcdefghijklmnopqrstuvwxyz")

	var buf bytes.Buffer
	writePacked(t, &buf, sideband.PackData, expected[0:8])
	writePacked(t, &buf, sideband.ProgressMessage, []byte("FOO\n"))
	writePacked(t, &buf, sideband.PackData, expected[8:26])
	require.NoError(t, pktline.WriteFlush(&buf))

	var progress bytes.Buffer
	d := sideband.NewDemuxer(&buf)
	d.Progress = &progress

	content := make([]byte, 26)
	n, err := io.ReadFull(d, content)
	require.NoError(t, err)
	assert.Equal(t, 26, n)
	assert.Equal(t, expected, content)
	assert.Equal(t, "FOO\n", progress.String())
}

func TestDemuxer_ErrorChannelSurfacesRemoteError(t *testing.T) {
	t.Parallel()

	expected := []byte("abcdefgh")

	var buf bytes.Buffer
	writePacked(t, &buf, sideband.PackData, expected)
	writePacked(t, &buf, sideband.ErrorMessage, []byte("disk quota exceeded\n"))
	require.NoError(t, pktline.WriteFlush(&buf))

	d := sideband.NewDemuxer(&buf)
	content := make([]byte, 26)
	n, err := io.ReadFull(d, content)
	assert.Equal(t, 8, n)

	var remoteErr *sideband.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, remoteErr.Message, "disk quota exceeded")
}

func TestDemuxer_UnknownChannel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, pktline.WritePacket(&buf, []byte{9, 'x'}))
	require.NoError(t, pktline.WriteFlush(&buf))

	d := sideband.NewDemuxer(&buf)
	_, err := d.Read(make([]byte, 1))
	assert.ErrorIs(t, err, sideband.ErrUnknownChannel)
}

func TestDemuxer_PendingCarriesAcrossReads(t *testing.T) {
	t.Parallel()

	expected := []byte("abcdefghijklmnopqrstuvwxyz")

	var buf bytes.Buffer
	writePacked(t, &buf, sideband.PackData, expected[0:8])
	writePacked(t, &buf, sideband.PackData, expected[8:16])
	writePacked(t, &buf, sideband.PackData, expected[16:26])
	require.NoError(t, pktline.WriteFlush(&buf))

	d := sideband.NewDemuxer(&buf)
	content := make([]byte, 13)
	n, err := io.ReadFull(d, content)
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, expected[0:13], content)

	n, err = d.Read(content)
	require.NoError(t, err)
	assert.Equal(t, 13, n)
	assert.Equal(t, expected[13:26], content)
}
