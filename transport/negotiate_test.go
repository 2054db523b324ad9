package transport_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/oid"
	"github.com/puregit/git/transport"
	"github.com/puregit/git/transport/pktline"
)

func TestBuildUploadPackRequest_CapsOnFirstWantOnly(t *testing.T) {
	a := oidFromHex(t, "1111111111111111111111111111111111111111")
	b := oidFromHex(t, "2222222222222222222222222222222222222222")
	have := oidFromHex(t, "3333333333333333333333333333333333333333")

	body := transport.BuildUploadPackRequest([]oid.Oid{a, b}, []oid.Oid{have}, []string{"ofs-delta", "side-band-64k"})

	s := pktline.NewScanner(bytes.NewReader(body))

	require.True(t, s.Scan())
	assert.Equal(t, "want "+a.String()+" ofs-delta side-band-64k\n", string(s.Bytes()))

	require.True(t, s.Scan())
	assert.Equal(t, "want "+b.String()+"\n", string(s.Bytes()))

	require.False(t, s.Scan())
	assert.True(t, s.Flush())

	s = pktline.NewScanner(s.Remainder())
	require.True(t, s.Scan())
	assert.Equal(t, "have "+have.String()+"\n", string(s.Bytes()))

	require.True(t, s.Scan())
	assert.Equal(t, "done\n", string(s.Bytes()))
}

func TestBuildReceivePackHeader_CapsOnFirstCommandOnly(t *testing.T) {
	old := oid.Null
	newID := oidFromHex(t, "4444444444444444444444444444444444444444")
	commands := []transport.Command{
		{Name: "refs/heads/main", Old: old, New: newID},
	}

	body := transport.BuildReceivePackHeader(commands, []string{"report-status"})

	s := pktline.NewScanner(bytes.NewReader(body))
	require.True(t, s.Scan())
	assert.Equal(t, old.String()+" "+newID.String()+" refs/heads/main\x00report-status\n", string(s.Bytes()))

	require.False(t, s.Scan())
	assert.True(t, s.Flush())
}

func TestParseReportStatus_AllOK(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteString(&buf, "unpack ok\n"))
	require.NoError(t, pktline.WriteString(&buf, "ok refs/heads/main\n"))
	require.NoError(t, pktline.WriteFlush(&buf))

	status, err := transport.ParseReportStatus(&buf)
	require.NoError(t, err)
	assert.True(t, status.UnpackOK)
	assert.Equal(t, []string{"refs/heads/main"}, status.OKRefs)
	assert.Empty(t, status.CommandErrors)
}

func TestParseReportStatus_RejectedCommand(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteString(&buf, "unpack ok\n"))
	require.NoError(t, pktline.WriteString(&buf, "ng refs/heads/main non-fast-forward\n"))
	require.NoError(t, pktline.WriteFlush(&buf))

	status, err := transport.ParseReportStatus(&buf)
	require.NoError(t, err)
	assert.True(t, status.UnpackOK)
	assert.Empty(t, status.OKRefs)
	assert.Equal(t, "non-fast-forward", status.CommandErrors["refs/heads/main"])
}

func TestParseReportStatus_UnpackFailed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteString(&buf, "unpack index-pack failed\n"))
	require.NoError(t, pktline.WriteFlush(&buf))

	status, err := transport.ParseReportStatus(&buf)
	require.NoError(t, err)
	assert.False(t, status.UnpackOK)
	assert.Equal(t, "index-pack failed", status.UnpackError)
}
