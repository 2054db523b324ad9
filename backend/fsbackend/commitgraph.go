package fsbackend

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/puregit/git/backend"
	"github.com/puregit/git/commitgraph"
	"github.com/puregit/git/internal/gitpath"
	"github.com/puregit/git/lockfile"
)

// CommitGraph returns the parsed commit-graph sidecar.
// backend.ErrCommitGraphNotFound is returned when none has been
// written yet.
func (b *Backend) CommitGraph() (*commitgraph.Graph, error) {
	data, err := afero.ReadFile(b.fs, b.path(gitpath.CommitGraphPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, backend.ErrCommitGraphNotFound
		}
		return nil, xerrors.Errorf("could not read commit-graph: %w", err)
	}
	return commitgraph.New(bytes.NewReader(data)), nil
}

// WriteCommitGraph persists an already-encoded commit-graph sidecar,
// as returned by commitgraph.Build.
func (b *Backend) WriteCommitGraph(data []byte) error {
	path := b.path(gitpath.CommitGraphPath)
	if err := b.fs.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return xerrors.Errorf("could not create commit-graph directory: %w", err)
	}
	if err := lockfile.WriteFile(b.fs, path, data); err != nil {
		return xerrors.Errorf("could not persist commit-graph: %w", err)
	}
	return nil
}
