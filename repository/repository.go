// Package repository ties together the object store, reference
// store, commit-graph and index sidecars, and on-disk configuration
// into a single entry point: the thing a caller opens or initializes
// to start working with a repository.
package repository

import (
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/puregit/git/backend"
	"github.com/puregit/git/backend/fsbackend"
	"github.com/puregit/git/commitgraph"
	"github.com/puregit/git/env"
	"github.com/puregit/git/ginternals/config"
	"github.com/puregit/git/index"
	"github.com/puregit/git/internal/gitpath"
	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/refstore"
)

// Errors returned while initializing or opening a repository.
var (
	ErrRepositoryNotExist           = xerrors.New("repository does not exist")
	ErrRepositoryExists             = xerrors.New("repository already exists")
	ErrRepositoryUnsupportedVersion = xerrors.New("repository format version is not supported")
)

// supportedRepoFormatVersion is the only core.repositoryformatversion
// this engine understands, matching the teacher's own constraint.
const supportedRepoFormatVersion = 0

// Repository is a git repository: a .git directory (or, for a bare
// repository, the directory itself) plus, optionally, a working tree.
type Repository struct {
	cfg     *config.Config
	backend backend.Backend
	wt      afero.Fs
}

// InitOptions customizes InitRepositoryWithOptions.
type InitOptions struct {
	// IsBare creates a repository with no working tree: repoPath
	// itself becomes the git directory instead of repoPath/.git.
	IsBare bool
	// FS is the filesystem the git directory is created on. Defaults
	// to the real OS filesystem.
	FS afero.Fs
	// WorkTreeFS is the filesystem the working tree lives on. Defaults
	// to FS. Unused when IsBare is set.
	WorkTreeFS afero.Fs
}

// OpenOptions customizes OpenRepositoryWithOptions.
type OpenOptions struct {
	// IsBare states that repoPath is itself the git directory rather
	// than a working tree containing one.
	IsBare bool
	// FS is the filesystem the git directory is read from. Defaults
	// to the real OS filesystem.
	FS afero.Fs
	// WorkTreeFS is the filesystem the working tree lives on. Defaults
	// to FS. Unused when IsBare is set.
	WorkTreeFS afero.Fs
}

// InitRepository initializes a new repository at repoPath, creating
// its .git directory (https://git-scm.com/book/en/v2/Git-Internals-Plumbing-and-Porcelain).
func InitRepository(repoPath string) (*Repository, error) {
	return InitRepositoryWithOptions(repoPath, InitOptions{})
}

// InitRepositoryWithOptions initializes a new repository at repoPath
// with explicit options.
func InitRepositoryWithOptions(repoPath string, opts InitOptions) (*Repository, error) {
	fs := opts.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	absRepoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, xerrors.Errorf("could not resolve repository path: %w", err)
	}

	gitDirPath := absRepoPath
	if !opts.IsBare {
		gitDirPath = filepath.Join(absRepoPath, gitpath.DotGitPath)
	}

	cfg, err := config.LoadConfig(env.NewFromOs(), config.LoadConfigOptions{
		FS:               fs,
		WorkingDirectory: absRepoPath,
		GitDirPath:       gitDirPath,
		IsBare:           opts.IsBare,
		SkipGitDirLookUp: true,
	})
	if err != nil {
		return nil, xerrors.Errorf("could not build repository config: %w", err)
	}

	b, err := fsbackend.New(fs, cfg.GitDirPath)
	if err != nil {
		return nil, xerrors.Errorf("could not open backend: %w", err)
	}

	if _, err := b.Reference(refstore.Head); err == nil {
		_ = b.Close()
		return nil, ErrRepositoryExists
	}

	if err := b.Init(); err != nil {
		_ = b.Close()
		return nil, xerrors.Errorf("could not initialize repository: %w", err)
	}

	r := &Repository{
		cfg:     cfg,
		backend: b,
	}
	if !opts.IsBare {
		r.wt = opts.WorkTreeFS
		if r.wt == nil {
			r.wt = fs
		}
		if err := r.wt.MkdirAll(cfg.WorkTreePath, 0o750); err != nil {
			_ = b.Close()
			return nil, xerrors.Errorf("could not create working tree: %w", err)
		}
	}

	return r, nil
}

// OpenRepository opens an existing repository rooted at or above
// repoPath, discovering its .git directory the way `git` itself does
// when repoPath isn't one already.
func OpenRepository(repoPath string) (*Repository, error) {
	return OpenRepositoryWithOptions(repoPath, OpenOptions{})
}

// OpenRepositoryWithOptions opens an existing repository with
// explicit options.
func OpenRepositoryWithOptions(repoPath string, opts OpenOptions) (*Repository, error) {
	fs := opts.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	loadOpts := config.LoadConfigOptions{
		FS:               fs,
		WorkingDirectory: repoPath,
		IsBare:           opts.IsBare,
	}
	if opts.IsBare {
		loadOpts.GitDirPath = repoPath
		loadOpts.SkipGitDirLookUp = true
	}

	cfg, err := config.LoadConfig(env.NewFromOs(), loadOpts)
	if err != nil {
		return nil, xerrors.Errorf("could not build repository config: %w", err)
	}

	b, err := fsbackend.New(fs, cfg.GitDirPath)
	if err != nil {
		return nil, xerrors.Errorf("could not open backend: %w", err)
	}

	// There's no direct way to ask the backend "does a repository
	// exist here", so we use HEAD's presence as the marker: every
	// valid repository has one.
	if _, err := b.Reference(refstore.Head); err != nil {
		_ = b.Close()
		return nil, ErrRepositoryNotExist
	}

	if version, ok := cfg.RepoFormatVersion(); ok && version != supportedRepoFormatVersion {
		_ = b.Close()
		return nil, ErrRepositoryUnsupportedVersion
	}

	r := &Repository{
		cfg:     cfg,
		backend: b,
	}
	if !opts.IsBare {
		r.wt = opts.WorkTreeFS
		if r.wt == nil {
			r.wt = fs
		}
	}

	return r, nil
}

// Close releases the resources (open packfiles, etc.) held by the
// repository.
func (r *Repository) Close() error {
	return r.backend.Close()
}

// IsBare reports whether the repository has no working tree.
func (r *Repository) IsBare() bool {
	return r.wt == nil
}

// GitDirPath returns the absolute path to the git directory.
func (r *Repository) GitDirPath() string {
	return r.cfg.GitDirPath
}

// WorkTreePath returns the absolute path to the working tree, or ""
// for a bare repository.
func (r *Repository) WorkTreePath() string {
	if r.IsBare() {
		return ""
	}
	return r.cfg.WorkTreePath
}

// Config returns the repository's layered configuration.
func (r *Repository) Config() *config.Config {
	return r.cfg
}

// Backend returns the underlying storage backend, for callers that
// need lower-level access than Repository exposes directly.
func (r *Repository) Backend() backend.Backend {
	return r.backend
}

// Object returns the object with the given id.
func (r *Repository) Object(id oid.Oid) (*object.Object, error) {
	return r.backend.Object(id)
}

// HasObject reports whether an object exists in the object database.
func (r *Repository) HasObject(id oid.Oid) (bool, error) {
	return r.backend.HasObject(id)
}

// WriteObject adds an object to the object database and returns its id.
func (r *Repository) WriteObject(o *object.Object) (oid.Oid, error) {
	return r.backend.WriteObject(o)
}

// Reference returns a stored reference, fully resolved, from its name.
func (r *Repository) Reference(name string) (*refstore.Reference, error) {
	return r.backend.Reference(name)
}

// WriteReference writes (or overwrites) a reference.
func (r *Repository) WriteReference(ref *refstore.Reference) error {
	return r.backend.WriteReference(ref)
}

// Head returns the commit id that HEAD currently resolves to.
func (r *Repository) Head() (oid.Oid, error) {
	ref, err := r.backend.Reference(refstore.Head)
	if err != nil {
		return oid.Null, xerrors.Errorf("could not resolve HEAD: %w", err)
	}
	return ref.Target(), nil
}

// Resolve resolves a revision expression ("HEAD", "main~2", a full
// 40-char hex id, …) to an object id, walking parents through the
// commit-graph when available and falling back to the commit objects
// themselves otherwise. Abbreviated hex ids are not resolved: a name
// shorter than 40 hex digits is only looked up as a reference.
func (r *Repository) Resolve(spec string) (oid.Oid, error) {
	return refstore.ResolveRevision(spec, r.resolveName, r.parents)
}

func (r *Repository) resolveName(name string) (oid.Oid, error) {
	if id, err := oid.FromHex(name); err == nil {
		return id, nil
	}

	candidates := []string{name}
	if refstore.IsRefNameValid("refs/heads/" + name) {
		candidates = append(candidates,
			"refs/heads/"+name,
			"refs/tags/"+name,
			"refs/remotes/"+name,
		)
	}
	var lastErr error
	for _, candidate := range candidates {
		ref, err := r.backend.Reference(candidate)
		if err == nil {
			return ref.Target(), nil
		}
		lastErr = err
	}
	return oid.Null, xerrors.Errorf("could not resolve %q: %w", name, lastErr)
}

func (r *Repository) parents(id oid.Oid) ([]oid.Oid, error) {
	graph, err := r.backend.CommitGraph()
	if err == nil {
		if parents, gerr := graph.Parents(id); gerr == nil {
			return parents, nil
		}
	} else if !xerrors.Is(err, backend.ErrCommitGraphNotFound) {
		return nil, xerrors.Errorf("could not read commit-graph: %w", err)
	}

	o, err := r.backend.Object(id)
	if err != nil {
		return nil, xerrors.Errorf("could not load commit %s: %w", id, err)
	}
	c, err := o.AsCommit()
	if err != nil {
		return nil, xerrors.Errorf("%s is not a commit: %w", id, err)
	}
	return c.ParentIDs(), nil
}

// CommitGraph returns the parsed commit-graph sidecar, rebuilding it
// is the caller's responsibility (via RebuildCommitGraph).
func (r *Repository) CommitGraph() (*commitgraph.Graph, error) {
	return r.backend.CommitGraph()
}

// RebuildCommitGraph walks every reachable commit from the given tips
// and writes a fresh commit-graph sidecar covering them.
func (r *Repository) RebuildCommitGraph(tips []oid.Oid) error {
	data, err := commitgraph.Build(tips, func(id oid.Oid) (commitgraph.CommitHeader, error) {
		o, err := r.backend.Object(id)
		if err != nil {
			return commitgraph.CommitHeader{}, xerrors.Errorf("could not load commit %s: %w", id, err)
		}
		c, err := o.AsCommit()
		if err != nil {
			return commitgraph.CommitHeader{}, xerrors.Errorf("%s is not a commit: %w", id, err)
		}
		return commitgraph.CommitHeader{
			ParentIDs:     c.ParentIDs(),
			CommitterTime: c.Committer().Time.Unix(),
		}, nil
	})
	if err != nil {
		return xerrors.Errorf("could not build commit-graph: %w", err)
	}
	return r.backend.WriteCommitGraph(data)
}

// Index returns the parsed staging index.
func (r *Repository) Index() (*index.Index, error) {
	return r.backend.Index()
}

// WriteIndex persists the staging index.
func (r *Repository) WriteIndex(idx *index.Index) error {
	return r.backend.WriteIndex(idx)
}
