package repository_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/packwriter"
	"github.com/puregit/git/refstore"
	"github.com/puregit/git/repository"
	"github.com/puregit/git/transport"
)

// fakeTransport implements transport.Transport directly against an
// in-memory "remote" Repository, so fetch/push orchestration can be
// exercised without going through a real network adapter.
type fakeTransport struct {
	remote     *repository.Repository
	headBranch string // e.g. "refs/heads/main"; "" advertises no HEAD symref
}

var _ transport.Transport = (*fakeTransport)(nil)

func (f *fakeTransport) Endpoint() *transport.Endpoint { return &transport.Endpoint{Protocol: "fake"} }
func (f *fakeTransport) Close() error                  { return nil }

func (f *fakeTransport) AdvertiseRefs(_ context.Context, _ transport.Service) (*transport.RefAdvertisement, error) {
	adv := &transport.RefAdvertisement{Refs: map[string]oid.Oid{}, Symrefs: map[string]string{}}
	err := f.remote.Backend().WalkReferences(func(ref *refstore.Reference) error {
		if ref.Type() == refstore.OidRef {
			adv.Refs[ref.Name()] = ref.Target()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if f.headBranch != "" {
		adv.Symrefs["HEAD"] = f.headBranch
	}
	return adv, nil
}

func (f *fakeTransport) UploadPack(_ context.Context, req *transport.UploadPackRequest) (*transport.UploadPackResponse, error) {
	known := map[oid.Oid]bool{}
	for _, h := range req.Haves {
		collectReachable(f.remote, h, known, nil)
	}
	var sources []packwriter.Source
	for _, w := range req.Wants {
		collectReachable(f.remote, w, known, &sources)
	}

	var buf bytes.Buffer
	if _, _, err := packwriter.Write(&buf, sources, packwriter.Options{}); err != nil {
		return nil, err
	}
	return &transport.UploadPackResponse{Negotiation: "NAK", Pack: &buf}, nil
}

func (f *fakeTransport) ReceivePack(_ context.Context, req *transport.ReceivePackRequest) (*transport.ReportStatus, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(req.Pack); err != nil {
		return nil, err
	}
	if buf.Len() > 0 {
		if _, _, err := f.remote.Backend().AddPack(bytes.NewReader(buf.Bytes())); err != nil {
			return nil, err
		}
	}

	status := &transport.ReportStatus{UnpackOK: true, CommandErrors: map[string]string{}}
	for _, cmd := range req.Commands {
		if err := f.remote.WriteReference(refstore.NewReference(cmd.Name, cmd.New)); err != nil {
			return nil, err
		}
		status.OKRefs = append(status.OKRefs, cmd.Name)
	}
	return status, nil
}

// collectReachable walks every object reachable from id in remote,
// skipping anything already in visited (marking everything it visits
// into it), appending a packwriter.Source per newly visited object to
// out when out is non-nil.
func collectReachable(remote *repository.Repository, id oid.Oid, visited map[oid.Oid]bool, out *[]packwriter.Source) {
	if id.IsZero() || visited[id] {
		return
	}
	visited[id] = true

	o, err := remote.Object(id)
	if err != nil {
		return
	}
	if out != nil {
		*out = append(*out, packwriter.Source{ID: id, Type: o.Type(), Content: o.Bytes()})
	}

	switch o.Type() {
	case object.TypeCommit:
		c, err := o.AsCommit()
		if err != nil {
			return
		}
		collectReachable(remote, c.TreeID(), visited, out)
		for _, p := range c.ParentIDs() {
			collectReachable(remote, p, visited, out)
		}
	case object.TypeTree:
		t, err := o.AsTree()
		if err != nil {
			return
		}
		for _, e := range t.Entries() {
			if e.Mode == object.ModeGitLink {
				continue
			}
			collectReachable(remote, e.ID, visited, out)
		}
	}
}

func seedCommit(t *testing.T, r *repository.Repository, branch string, parent oid.Oid) oid.Oid {
	t.Helper()

	tree := object.NewTree(nil)
	treeID, err := r.WriteObject(tree.ToObject())
	require.NoError(t, err)

	opts := &object.CommitOptions{}
	if !parent.IsZero() {
		opts.ParentIDs = []oid.Oid{parent}
	}
	c := object.NewCommit(treeID, object.NewSignature("A", "a@example.com"), opts)
	id, err := r.WriteObject(c.ToObject())
	require.NoError(t, err)

	require.NoError(t, r.WriteReference(refstore.NewReference(branch, id)))
	return id
}

func TestFetch_InstallsObjectsAndUpdatesTrackingRefs(t *testing.T) {
	t.Parallel()

	remote, _ := newRepo(t)
	commitID := seedCommit(t, remote, "refs/heads/main", oid.Null)
	require.NoError(t, remote.WriteReference(refstore.NewSymbolicReference(refstore.Head, "refs/heads/main")))

	local, _ := newRepo(t)
	tr := &fakeTransport{remote: remote, headBranch: "refs/heads/main"}

	result, err := local.Fetch(context.Background(), "origin", tr)
	require.NoError(t, err)
	assert.Positive(t, result.ReceivedObjects)
	assert.Equal(t, commitID, result.UpdatedRefs["refs/remotes/origin/main"])

	got, err := local.Object(commitID)
	require.NoError(t, err)
	assert.Equal(t, object.TypeCommit, got.Type())

	ref, err := local.Reference("refs/remotes/origin/main")
	require.NoError(t, err)
	assert.Equal(t, commitID, ref.Target())
}

func TestFetch_Idempotent_SecondFetchInstallsNothing(t *testing.T) {
	t.Parallel()

	remote, _ := newRepo(t)
	commitID := seedCommit(t, remote, "refs/heads/main", oid.Null)

	local, _ := newRepo(t)
	tr := &fakeTransport{remote: remote, headBranch: "refs/heads/main"}

	_, err := local.Fetch(context.Background(), "origin", tr)
	require.NoError(t, err)

	result, err := local.Fetch(context.Background(), "origin", tr)
	require.NoError(t, err)
	assert.Zero(t, result.ReceivedObjects)
	assert.Empty(t, result.UpdatedRefs)

	ref, err := local.Reference("refs/remotes/origin/main")
	require.NoError(t, err)
	assert.Equal(t, commitID, ref.Target())
}
