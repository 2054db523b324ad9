package refstore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/puregit/git/internal/gitpath"
	"github.com/puregit/git/lockfile"
	"github.com/puregit/git/oid"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// Store resolves, reads, and atomically updates references stored as
// loose files under a git directory, falling back to the
// packed-refs file.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore returns a Store rooted at the given .git directory.
func NewStore(fs afero.Fs, gitDirPath string) *Store {
	return &Store{fs: fs, root: gitDirPath}
}

// systemPath turns a ref name into an OS path under the git dir.
func (s *Store) systemPath(name string) string {
	if os.PathSeparator == '/' {
		return filepath.Join(s.root, name)
	}
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Resolve follows name (direct or symbolic, to depth 10 via the
// cycle-guarded resolver) down to the object id it ultimately points at.
func (s *Store) Resolve(name string) (*Reference, error) {
	var packed map[string]string

	finder := func(name string) ([]byte, error) {
		data, err := afero.ReadFile(s.fs, s.systemPath(name))
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, xerrors.Errorf("could not read reference content: %w", err)
			}
			if packed == nil {
				packed, err = s.parsePackedRefs()
				if err != nil {
					return nil, xerrors.Errorf("couldn't load packed-refs: %w", err)
				}
			}
			sha, ok := packed[name]
			if !ok {
				return nil, xerrors.Errorf(`ref "%s": %w`, name, ErrRefNotFound)
			}
			return []byte(sha), nil
		}
		return data, nil
	}
	return ResolveReference(name, finder)
}

// Get reads a single ref without following symbolic links: a loose
// "ref: <target>" file yields a symbolic Reference, a "<sha>" file or
// a packed-refs entry a direct one.
func (s *Store) Get(name string) (*Reference, error) {
	data, err := afero.ReadFile(s.fs, s.systemPath(name))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, xerrors.Errorf("could not read reference content: %w", err)
		}
		packed, perr := s.parsePackedRefs()
		if perr != nil {
			return nil, xerrors.Errorf("couldn't load packed-refs: %w", perr)
		}
		sha, ok := packed[name]
		if !ok {
			return nil, xerrors.Errorf(`ref "%s": %w`, name, ErrRefNotFound)
		}
		id, err := oid.FromHex(sha)
		if err != nil {
			return nil, xerrors.Errorf("invalid packed ref %s: %w", name, ErrPackedRefInvalid)
		}
		return NewReference(name, id), nil
	}

	data = []byte(strings.TrimRight(string(data), " \n"))
	if strings.HasPrefix(string(data), "ref: ") {
		return NewSymbolicReference(name, string(data[5:])), nil
	}
	id, err := oid.FromHex(string(data))
	if err != nil {
		return nil, xerrors.Errorf("invalid reference content for %s: %w", name, ErrRefInvalid)
	}
	return NewReference(name, id), nil
}

// Exists reports whether name is stored, loose or packed.
func (s *Store) Exists(name string) (bool, error) {
	_, err := s.Get(name)
	if err != nil {
		if xerrors.Is(err, ErrRefNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Update atomically writes ref to disk, overwriting any existing value.
func (s *Store) Update(ref *Reference) error {
	return s.write(ref, false)
}

// Create atomically writes ref to disk, failing with ErrRefExists if
// it is already present (loose or packed).
func (s *Store) Create(ref *Reference) error {
	return s.write(ref, true)
}

func (s *Store) write(ref *Reference, failIfExists bool) error {
	if !IsRefNameValid(ref.Name()) {
		return ErrRefNameInvalid
	}

	if failIfExists {
		exists, err := s.Exists(ref.Name())
		if err != nil {
			return err
		}
		if exists {
			return ErrRefExists
		}
	}

	var content string
	switch ref.Type() {
	case SymbolicRef:
		content = fmt.Sprintf("ref: %s\n", ref.SymbolicTarget())
	case OidRef:
		content = fmt.Sprintf("%s\n", ref.Target().String())
	default:
		return xerrors.Errorf("reference type %d: %w", ref.Type(), ErrUnknownRefType)
	}

	path := s.systemPath(ref.Name())
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return xerrors.Errorf("could not create directories for %s: %w", ref.Name(), err)
	}
	if err := lockfile.WriteFile(s.fs, path, []byte(content)); err != nil {
		return xerrors.Errorf("could not persist reference to disk: %w", err)
	}
	return nil
}

// Delete removes a loose reference. It does not touch packed-refs:
// per §9's decision, packed-refs is read-only here and never compacted.
func (s *Store) Delete(name string) error {
	err := s.fs.Remove(s.systemPath(name))
	if err != nil && os.IsNotExist(err) {
		return ErrRefNotFound
	}
	return err
}

// WalkFunc is applied to every reference found by Walk.
type WalkFunc func(ref *Reference) error

// Walk calls f for every reference (loose, then packed) whose name
// has the given prefix. An empty prefix walks everything.
func (s *Store) Walk(prefix string, f WalkFunc) error {
	seen := map[string]struct{}{}

	walkDir := filepath.Join(s.root, gitpath.RefsPath)
	err := afero.Walk(s.fs, walkDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		ref, err := s.Get(name)
		if err != nil {
			return err
		}
		seen[name] = struct{}{}
		return f(ref)
	})
	if err != nil {
		return err
	}

	packed, err := s.parsePackedRefs()
	if err != nil {
		return err
	}
	for name, sha := range packed {
		if _, ok := seen[name]; ok {
			continue
		}
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		id, err := oid.FromHex(sha)
		if err != nil {
			return xerrors.Errorf("invalid packed ref %s: %w", name, ErrPackedRefInvalid)
		}
		if err := f(NewReference(name, id)); err != nil {
			return err
		}
	}
	return nil
}

// parsePackedRefs parses the packed-refs file into a refName -> hex
// sha map. https://git-scm.com/docs/git-pack-refs
func (s *Store) parsePackedRefs() (refs map[string]string, err error) {
	refs = map[string]string{}
	f, err := s.fs.Open(filepath.Join(s.root, gitpath.PackedRefsPath))
	if err != nil {
		if os.IsNotExist(err) {
			return refs, nil
		}
		return nil, xerrors.Errorf("could not open %s: %w", gitpath.PackedRefsPath, err)
	}
	defer func() {
		closeErr := f.Close()
		if err == nil {
			err = closeErr
		}
	}()

	sc := bufio.NewScanner(f)
	for i := 1; sc.Scan(); i++ {
		line := sc.Text()
		// skip empty lines, comments, and the annotated-tag peel marker
		if line == "" || line[0] == '#' || line[0] == '^' {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			return nil, xerrors.Errorf("unexpected data on line %d: %w", i, ErrPackedRefInvalid)
		}
		refs[parts[1]] = parts[0]
	}
	if sc.Err() != nil {
		return nil, xerrors.Errorf("could not parse %s: %w", gitpath.PackedRefsPath, sc.Err())
	}
	return refs, nil
}
