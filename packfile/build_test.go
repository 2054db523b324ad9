package packfile_test

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1" //nolint:gosec // matching the pack trailer format under test
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/packfile"
	"github.com/puregit/git/packfile/delta"
	"github.com/puregit/git/packwriter"
)

func TestBuildIndex_ResolvesWholeAndOfsDeltaObjects(t *testing.T) {
	base := object.New(object.TypeBlob, []byte("package packfile implements reading of git packfiles"))
	target := object.New(object.TypeBlob, []byte("package packfile implements reading of git packfiles and their indexes"))

	var pack bytes.Buffer
	written, packChecksum, err := packwriter.Write(&pack, []packwriter.Source{
		{ID: base.ID(), Type: base.Type(), Content: base.Bytes()},
		{ID: target.ID(), Type: target.Type(), Content: target.Bytes()},
	}, packwriter.Options{})
	require.NoError(t, err)
	require.NotEqual(t, oid.Null, packChecksum)

	entries, err := packfile.BuildIndex(bytes.NewReader(pack.Bytes()), nil)
	require.NoError(t, err)
	require.Len(t, entries, len(written))

	byID := make(map[oid.Oid]packfile.IndexEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	for _, w := range written {
		got, ok := byID[w.ID]
		require.True(t, ok, "missing entry for %s", w.ID)
		assert.Equal(t, w.Offset, got.Offset)
		assert.Equal(t, w.CRC32, got.CRC32)
	}
}

func TestBuildIndex_RefDeltaResolvesAgainstExternalBase(t *testing.T) {
	baseObj := object.New(object.TypeBlob, []byte("hello, packfile!"))
	targetObj := object.New(object.TypeBlob, []byte("hello, packfile!!"))

	baseID := baseObj.ID()

	d, err := delta.Encode(baseObj.Bytes(), targetObj.Bytes())
	require.NoError(t, err)
	require.Less(t, len(d), 16, "test delta must fit in a single-byte size header")

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	_, err = zw.Write(d)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var pack bytes.Buffer
	pack.WriteString("PACK")
	require.NoError(t, binary.Write(&pack, binary.BigEndian, uint32(2)))
	require.NoError(t, binary.Write(&pack, binary.BigEndian, uint32(1)))

	entryStart := pack.Len()
	header := byte(len(d)&0x0f) | byte(object.ObjectDeltaRef)<<4
	pack.WriteByte(header)
	pack.Write(baseID[:])
	pack.Write(compressed.Bytes())
	entryEnd := pack.Len()

	trailer := sha1.Sum(pack.Bytes()) //nolint:gosec
	pack.Write(trailer[:])

	resolveBase := func(id oid.Oid) (*object.Object, error) {
		if id == baseID {
			return baseObj, nil
		}
		return nil, oid.ErrInvalidOid
	}

	entries, err := packfile.BuildIndex(bytes.NewReader(pack.Bytes()), resolveBase)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, targetObj.ID(), entries[0].ID)
	assert.Equal(t, uint64(entryStart), entries[0].Offset)
	assert.Equal(t, crc32.ChecksumIEEE(pack.Bytes()[entryStart:entryEnd]), entries[0].CRC32)
}

func TestBuildIndex_RefDeltaMissingBaseErrors(t *testing.T) {
	missingBase := oid.FromContent([]byte("blob 16\x00hello, packfile!"))
	targetObj := object.New(object.TypeBlob, []byte("hello, packfile!!"))
	d, err := delta.Encode([]byte("hello, packfile!"), targetObj.Bytes())
	require.NoError(t, err)
	require.Less(t, len(d), 16)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	_, err = zw.Write(d)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	var pack bytes.Buffer
	pack.WriteString("PACK")
	require.NoError(t, binary.Write(&pack, binary.BigEndian, uint32(2)))
	require.NoError(t, binary.Write(&pack, binary.BigEndian, uint32(1)))
	header := byte(len(d)&0x0f) | byte(object.ObjectDeltaRef)<<4
	pack.WriteByte(header)
	pack.Write(missingBase[:])
	pack.Write(compressed.Bytes())
	trailer := sha1.Sum(pack.Bytes()) //nolint:gosec
	pack.Write(trailer[:])

	_, err = packfile.BuildIndex(bytes.NewReader(pack.Bytes()), nil)
	assert.Error(t, err)
}
