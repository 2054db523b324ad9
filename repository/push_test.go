package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/oid"
	"github.com/puregit/git/refstore"
)

func TestPush_NewBranch_UpdatesRemoteAndLocalTracking(t *testing.T) {
	t.Parallel()

	local, _ := newRepo(t)
	commitID := seedCommit(t, local, "refs/heads/main", oid.Null)

	remote, _ := newRepo(t)
	tr := &fakeTransport{remote: remote}

	status, err := local.Push(context.Background(), "origin", "main", tr)
	require.NoError(t, err)
	assert.True(t, status.UnpackOK)
	assert.Contains(t, status.OKRefs, "refs/heads/main")

	remoteRef, err := remote.Reference("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, commitID, remoteRef.Target())

	_, err = remote.Object(commitID)
	require.NoError(t, err)

	trackingRef, err := local.Reference("refs/remotes/origin/main")
	require.NoError(t, err)
	assert.Equal(t, commitID, trackingRef.Target())
}

func TestPush_AlreadyUpToDate_SkipsNetworkRoundTrip(t *testing.T) {
	t.Parallel()

	local, _ := newRepo(t)
	commitID := seedCommit(t, local, "refs/heads/main", oid.Null)

	remote, _ := newRepo(t)
	require.NoError(t, remote.WriteReference(refstore.NewReference("refs/heads/main", commitID)))

	tr := &fakeTransport{remote: remote}
	status, err := local.Push(context.Background(), "origin", "main", tr)
	require.NoError(t, err)
	assert.True(t, status.UnpackOK)
	assert.Equal(t, []string{"refs/heads/main"}, status.OKRefs)
}
