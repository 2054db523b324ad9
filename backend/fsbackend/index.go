package fsbackend

import (
	"bytes"
	"os"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/puregit/git/index"
	"github.com/puregit/git/internal/gitpath"
	"github.com/puregit/git/lockfile"
)

// Index returns the parsed staging index. A fresh, empty Index is
// returned when none has been written yet, matching how a repository
// behaves before its first `add`.
func (b *Backend) Index() (*index.Index, error) {
	data, err := afero.ReadFile(b.fs, b.path(gitpath.IndexPath))
	if err != nil {
		if os.IsNotExist(err) {
			return index.New(), nil
		}
		return nil, xerrors.Errorf("could not read index: %w", err)
	}
	idx, err := index.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Errorf("could not parse index: %w", err)
	}
	return idx, nil
}

// WriteIndex persists the staging index.
func (b *Backend) WriteIndex(idx *index.Index) error {
	data, err := index.Write(idx)
	if err != nil {
		return xerrors.Errorf("could not encode index: %w", err)
	}
	if err := lockfile.WriteFile(b.fs, b.path(gitpath.IndexPath), data); err != nil {
		return xerrors.Errorf("could not persist index: %w", err)
	}
	return nil
}
