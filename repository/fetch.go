package repository

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/puregit/git/internal/gitpath"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/refstore"
	"github.com/puregit/git/transport"
)

// MaxFetchHaves bounds how many local commit ids are offered during
// fetch negotiation, walking first-parent from each local tip.
const MaxFetchHaves = 256

// FetchResult summarizes what a fetch changed.
type FetchResult struct {
	// UpdatedRefs maps each refs/remotes/<remote>/<branch> that moved
	// to its new target.
	UpdatedRefs map[string]oid.Oid
	// ReceivedObjects is how many objects landed in a newly installed
	// pack. It is 0 when every advertised branch was already present
	// locally, in which case fetching installs no pack at all.
	ReceivedObjects int
}

// Fetch retrieves every branch remoteName advertises under
// refs/heads/ over tr and brings this repository's view of it up to
// date (§4.11): refs/remotes/<remoteName>/<branch> is updated for
// each one, FETCH_HEAD is rewritten to describe the fetch, and
// whatever objects those branches need that aren't already present
// are pulled down and installed as a single new pack. Fetching twice
// in a row against an unchanged remote installs no pack and leaves
// every ref untouched.
func (r *Repository) Fetch(ctx context.Context, remoteName string, tr transport.Transport) (*FetchResult, error) {
	adv, err := tr.AdvertiseRefs(ctx, transport.UploadPackService)
	if err != nil {
		return nil, xerrors.Errorf("could not read ref advertisement: %w", err)
	}

	var branches []string
	for name := range adv.Refs {
		if strings.HasPrefix(name, "refs/heads/") {
			branches = append(branches, name)
		}
	}
	sort.Strings(branches)

	var wants []oid.Oid
	for _, name := range branches {
		id := adv.Refs[name]
		has, err := r.backend.HasObject(id)
		if err != nil {
			return nil, xerrors.Errorf("could not check for %s: %w", id, err)
		}
		if !has {
			wants = append(wants, id)
		}
	}

	result := &FetchResult{UpdatedRefs: map[string]oid.Oid{}}
	if len(wants) > 0 {
		n, err := r.receivePack(ctx, tr, wants)
		if err != nil {
			return nil, err
		}
		result.ReceivedObjects = n
	}

	for _, name := range branches {
		branch := strings.TrimPrefix(name, "refs/heads/")
		trackingName := "refs/remotes/" + remoteName + "/" + branch
		id := adv.Refs[name]

		current, err := r.backend.Reference(trackingName)
		if err == nil && current.Target() == id {
			continue
		}
		if err := r.backend.WriteReference(refstore.NewReference(trackingName, id)); err != nil {
			return nil, xerrors.Errorf("could not update %s: %w", trackingName, err)
		}
		result.UpdatedRefs[trackingName] = id
	}

	defaultBranch, _ := strings.CutPrefix(adv.Symrefs["HEAD"], "refs/heads/")
	if err := r.writeFetchHead(branches, adv, remoteName, defaultBranch); err != nil {
		return nil, xerrors.Errorf("could not write FETCH_HEAD: %w", err)
	}

	return result, nil
}

// receivePack negotiates wants/haves over tr, streams the resulting
// pack to a temp file, verifies its trailer, and installs it.
func (r *Repository) receivePack(ctx context.Context, tr transport.Transport, wants []oid.Oid) (int, error) {
	haves, err := r.localHaves(MaxFetchHaves)
	if err != nil {
		return 0, xerrors.Errorf("could not collect local haves: %w", err)
	}

	resp, err := tr.UploadPack(ctx, &transport.UploadPackRequest{Wants: wants, Haves: haves})
	if err != nil {
		return 0, xerrors.Errorf("could not fetch pack: %w", err)
	}

	fs := r.cfg.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	recv, err := transport.NewPackReceiver(fs, filepath.Join(r.cfg.GitDirPath, gitpath.ObjectsPackPath))
	if err != nil {
		return 0, xerrors.Errorf("could not create pack receiver: %w", err)
	}
	defer recv.Remove() //nolint:errcheck // best-effort cleanup of the temp file

	if _, err := io.Copy(recv, resp.Pack); err != nil {
		return 0, xerrors.Errorf("could not receive pack: %w", err)
	}
	if err := recv.Finish(); err != nil {
		return 0, xerrors.Errorf("could not verify received pack: %w", err)
	}

	_, count, err := r.backend.AddPack(recv.File())
	if err != nil {
		return 0, xerrors.Errorf("could not install received pack: %w", err)
	}
	return count, nil
}

// localHaves collects up to max commit ids reachable from this
// repository's own refs, walking first-parent from each tip so the
// negotiation stays cheap on deep histories.
func (r *Repository) localHaves(max int) ([]oid.Oid, error) {
	var tips []oid.Oid
	err := r.backend.WalkReferences(func(ref *refstore.Reference) error {
		if ref.Type() != refstore.OidRef {
			return nil
		}
		tips = append(tips, ref.Target())
		return nil
	})
	if err != nil {
		return nil, err
	}

	seen := map[oid.Oid]bool{}
	var haves []oid.Oid
	for _, tip := range tips {
		if len(haves) >= max {
			break
		}
		id := tip
		for !id.IsZero() && len(haves) < max {
			if seen[id] {
				break
			}
			seen[id] = true
			haves = append(haves, id)

			parents, err := r.parents(id)
			if err != nil || len(parents) == 0 {
				break
			}
			id = parents[0]
		}
	}
	return haves, nil
}

// writeFetchHead rewrites FETCH_HEAD as a newline-delimited list of
// "<hash>\t<not-for-merge?>\t<ref description>" lines: the remote's
// default branch (its advertised HEAD symref target) is marked for
// merge, every other fetched branch is marked not-for-merge, matching
// what `git fetch` without an explicit refspec leaves behind.
func (r *Repository) writeFetchHead(branches []string, adv *transport.RefAdvertisement, remoteName, defaultBranch string) error {
	var buf strings.Builder
	for _, name := range branches {
		branch := strings.TrimPrefix(name, "refs/heads/")
		notForMerge := "not-for-merge"
		if branch == defaultBranch {
			notForMerge = ""
		}
		fmt.Fprintf(&buf, "%s\t%s\tbranch '%s' of %s\n", adv.Refs[name], notForMerge, branch, remoteName)
	}

	fs := r.cfg.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return afero.WriteFile(fs, filepath.Join(r.cfg.GitDirPath, gitpath.FetchHeadPath), []byte(buf.String()), 0o644)
}
