// Package fsbackend contains an implementation of the backend.Backend
// interface for the filesystem.
package fsbackend

import (
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/puregit/git/backend"
	"github.com/puregit/git/internal/cache"
	"github.com/puregit/git/internal/gitpath"
	"github.com/puregit/git/internal/syncutil"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/packfile"
	"github.com/puregit/git/refstore"
)

// we make sure the struct implements the interface
var _ backend.Backend = (*Backend)(nil)

// defaultLooseMutexCount is the number of stripes used to lock
// concurrent access to individual loose objects.
const defaultLooseMutexCount = 64

// defaultCacheSize caps how many decoded objects are kept in memory.
const defaultCacheSize = 4096

// Backend is a Backend implementation that uses the filesystem to
// store data, the way a real .git directory does: loose objects
// under objects/, packfiles under objects/pack/, and references
// delegated to refstore.Store.
type Backend struct {
	fs   afero.Fs
	root string

	refs *refstore.Store

	objectMu     *syncutil.NamedMutex
	cache        *cache.LRU
	looseObjects sync.Map // oid.Oid -> struct{}
	packMu       sync.Mutex
	packfiles    map[oid.Oid]*packfile.Pack
}

// New returns a new filesystem-backed Backend rooted at dotGitPath.
func New(fs afero.Fs, dotGitPath string) (*Backend, error) {
	b := &Backend{
		fs:        fs,
		root:      dotGitPath,
		refs:      refstore.NewStore(fs, dotGitPath),
		objectMu:  syncutil.NewNamedMutex(defaultLooseMutexCount),
		cache:     cache.NewLRU(defaultCacheSize),
		packfiles: map[oid.Oid]*packfile.Pack{},
	}

	if err := b.loadLooseObjects(); err != nil {
		return nil, xerrors.Errorf("could not load loose objects: %w", err)
	}
	if err := b.loadPacks(); err != nil {
		return nil, xerrors.Errorf("could not load packfiles: %w", err)
	}
	return b, nil
}

// Close releases the resources (open packfiles) held by the backend.
func (b *Backend) Close() error {
	var firstErr error
	for _, pack := range b.packfiles {
		if err := pack.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Init initializes a repository's on-disk layout. Calling this on an
// existing repository is safe: it only adds what's missing.
func (b *Backend) Init() error {
	dirs := []string{
		gitpath.ObjectsPath,
		gitpath.RefsTagsPath,
		gitpath.RefsHeadsPath,
		gitpath.ObjectsInfoPath,
		gitpath.ObjectsPackPath,
	}
	for _, d := range dirs {
		if err := b.fs.MkdirAll(b.path(d), 0o750); err != nil {
			return xerrors.Errorf("could not create directory %s: %w", d, err)
		}
	}

	files := []struct {
		path    string
		content []byte
	}{
		{
			path:    gitpath.DescriptionPath,
			content: []byte("Unnamed repository; edit this file 'description' to name the repository.\n"),
		},
	}
	for _, f := range files {
		exists, err := afero.Exists(b.fs, b.path(f.path))
		if err != nil {
			return xerrors.Errorf("could not check file %s: %w", f.path, err)
		}
		if exists {
			continue
		}
		if err := afero.WriteFile(b.fs, b.path(f.path), f.content, 0o644); err != nil {
			return xerrors.Errorf("could not create file %s: %w", f.path, err)
		}
	}

	cfgExists, err := afero.Exists(b.fs, b.path(gitpath.ConfigPath))
	if err != nil {
		return xerrors.Errorf("could not check the config file: %w", err)
	}
	if !cfgExists {
		if err := b.setDefaultCfg(); err != nil {
			return xerrors.Errorf("could not set the default config: %w", err)
		}
	}

	head := refstore.NewSymbolicReference(refstore.Head, "refs/heads/main")
	if err := b.WriteReferenceSafe(head); err != nil && !xerrors.Is(err, refstore.ErrRefExists) {
		return xerrors.Errorf("could not write HEAD: %w", err)
	}

	return nil
}

func (b *Backend) path(rel string) string {
	return filepath.Join(b.root, rel)
}
