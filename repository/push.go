package repository

import (
	"bytes"
	"context"

	"golang.org/x/xerrors"

	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/packwriter"
	"github.com/puregit/git/refstore"
	"github.com/puregit/git/transport"
)

// Push sends the local refs/heads/<branch> to remoteName over tr
// (§4.11): it advertises against git-receive-pack to learn the
// remote's current refs, builds a pack of every object reachable
// from the local branch tip but not from any ref the remote already
// has, and sends both as a single receive-pack request. On a
// successful unpack the local refs/remotes/<remoteName>/<branch> is
// updated to match the pushed commit.
func (r *Repository) Push(ctx context.Context, remoteName, branch string, tr transport.Transport) (*transport.ReportStatus, error) {
	refName := "refs/heads/" + branch
	local, err := r.backend.Reference(refName)
	if err != nil {
		return nil, xerrors.Errorf("could not resolve %s: %w", refName, err)
	}
	newID := local.Target()

	adv, err := tr.AdvertiseRefs(ctx, transport.ReceivePackService)
	if err != nil {
		return nil, xerrors.Errorf("could not read ref advertisement: %w", err)
	}
	oldID := adv.Refs[refName] // oid.Null for a ref the remote doesn't have yet

	if oldID == newID {
		return &transport.ReportStatus{UnpackOK: true, OKRefs: []string{refName}}, nil
	}

	known := map[oid.Oid]bool{}
	for _, id := range adv.Refs {
		if err := r.walkReachable(id, known, nil); err != nil {
			return nil, xerrors.Errorf("could not walk remote history: %w", err)
		}
	}

	var sources []packwriter.Source
	visited := map[oid.Oid]bool{}
	for id := range known {
		visited[id] = true // already known to the remote, never send
	}
	err = r.walkReachable(newID, visited, func(id oid.Oid, o *object.Object) {
		sources = append(sources, packwriter.Source{ID: id, Type: o.Type(), Content: o.Bytes()})
	})
	if err != nil {
		return nil, xerrors.Errorf("could not walk %s: %w", refName, err)
	}

	var pack bytes.Buffer
	if _, _, err := packwriter.Write(&pack, sources, packwriter.Options{}); err != nil {
		return nil, xerrors.Errorf("could not build pack: %w", err)
	}

	cmd := transport.Command{Name: refName, Old: oldID, New: newID}
	status, err := tr.ReceivePack(ctx, &transport.ReceivePackRequest{
		Commands: []transport.Command{cmd},
		Pack:     &pack,
	})
	if err != nil {
		return nil, xerrors.Errorf("could not push: %w", err)
	}

	if status.UnpackOK {
		for _, ok := range status.OKRefs {
			if ok != refName {
				continue
			}
			trackingName := "refs/remotes/" + remoteName + "/" + branch
			if err := r.backend.WriteReference(refstore.NewReference(trackingName, newID)); err != nil {
				return status, xerrors.Errorf("could not update %s: %w", trackingName, err)
			}
		}
	}

	return status, nil
}

// walkReachable walks every object reachable from id (a commit, tree,
// blob, or tag), skipping anything already in visited and marking
// everything it visits in it. collect, when non-nil, is invoked once
// per newly visited object. A commit or tree id this repository
// doesn't have is treated as a dead end rather than an error, since
// that's expected for the remote's own history during push.
func (r *Repository) walkReachable(id oid.Oid, visited map[oid.Oid]bool, collect func(oid.Oid, *object.Object)) error {
	if id.IsZero() || visited[id] {
		return nil
	}
	visited[id] = true

	o, err := r.backend.Object(id)
	if err != nil {
		return nil
	}
	if collect != nil {
		collect(id, o)
	}

	switch o.Type() {
	case object.TypeCommit:
		c, err := o.AsCommit()
		if err != nil {
			return nil
		}
		if err := r.walkReachable(c.TreeID(), visited, collect); err != nil {
			return err
		}
		for _, p := range c.ParentIDs() {
			if err := r.walkReachable(p, visited, collect); err != nil {
				return err
			}
		}
	case object.TypeTree:
		t, err := o.AsTree()
		if err != nil {
			return nil
		}
		for _, e := range t.Entries() {
			if e.Mode == object.ModeGitLink {
				continue // submodule commit, not part of this repository's object graph
			}
			if err := r.walkReachable(e.ID, visited, collect); err != nil {
				return err
			}
		}
	case object.TypeTag:
		tg, err := o.AsTag()
		if err == nil {
			if err := r.walkReachable(tg.Target(), visited, collect); err != nil {
				return err
			}
		}
	}
	return nil
}
