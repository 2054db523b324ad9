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

func oidFromHex(t *testing.T, hexStr string) oid.Oid {
	t.Helper()
	id, err := oid.FromHex(hexStr)
	require.NoError(t, err)
	return id
}

func TestParseRefAdvertisement_ParsesRefsAndCapabilities(t *testing.T) {
	head := "1111111111111111111111111111111111111111"
	main := "2222222222222222222222222222222222222222"

	var buf bytes.Buffer
	require.NoError(t, pktline.WriteString(&buf, head+" HEAD\x00ofs-delta side-band-64k symref=HEAD:refs/heads/main\n"))
	require.NoError(t, pktline.WriteString(&buf, main+" refs/heads/main\n"))
	require.NoError(t, pktline.WriteFlush(&buf))

	adv, err := transport.ParseRefAdvertisement(&buf)
	require.NoError(t, err)

	assert.Equal(t, oidFromHex(t, head), adv.Refs["HEAD"])
	assert.Equal(t, oidFromHex(t, main), adv.Refs["refs/heads/main"])
	assert.True(t, adv.Capabilities.Supports(transport.CapOfsDelta))
	assert.Equal(t, "refs/heads/main", adv.Symrefs["HEAD"])
}

func TestParseRefAdvertisement_EmptyRepoSentinel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteString(&buf, "0000000000000000000000000000000000000000 capabilities^{}\x00ofs-delta\n"))
	require.NoError(t, pktline.WriteFlush(&buf))

	adv, err := transport.ParseRefAdvertisement(&buf)
	require.NoError(t, err)
	assert.Empty(t, adv.Refs)
	assert.True(t, adv.Capabilities.Supports(transport.CapOfsDelta))
}

func TestParseRefAdvertisement_SkipsServiceCommentLine(t *testing.T) {
	id := "3333333333333333333333333333333333333333"
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteString(&buf, "# service=git-upload-pack\n"))
	require.NoError(t, pktline.WriteString(&buf, id+" refs/heads/main\x00report-status\n"))
	require.NoError(t, pktline.WriteFlush(&buf))

	adv, err := transport.ParseRefAdvertisement(&buf)
	require.NoError(t, err)
	assert.Equal(t, oidFromHex(t, id), adv.Refs["refs/heads/main"])
}

func TestParseRefAdvertisement_MalformedLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteString(&buf, "not-a-valid-line\n"))
	require.NoError(t, pktline.WriteFlush(&buf))

	_, err := transport.ParseRefAdvertisement(&buf)
	assert.Error(t, err)
}
