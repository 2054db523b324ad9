package fsbackend

import (
	"compress/zlib"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/puregit/git/backend"
	"github.com/puregit/git/internal/errutil"
	"github.com/puregit/git/internal/gitpath"
	"github.com/puregit/git/internal/readutil"
	"github.com/puregit/git/lockfile"
	"github.com/puregit/git/object"
	"github.com/puregit/git/oid"
	"github.com/puregit/git/packfile"
)

// Object returns the object that has the given id. This method can
// be called concurrently.
func (b *Backend) Object(id oid.Oid) (*object.Object, error) {
	key := id.Bytes()
	b.objectMu.Lock(key)
	defer b.objectMu.Unlock(key)

	return b.objectUnsafe(id)
}

// objectUnsafe looks an object up, packs first, then loose: a
// repository that has repacked its history keeps most reads fast by
// avoiding the loose-object stat before falling back to it, unlike
// the loose-first order of a plain object store.
func (b *Backend) objectUnsafe(id oid.Oid) (*object.Object, error) {
	if b.cache != nil {
		if cachedO, found := b.cache.Get(id); found {
			if o, valid := cachedO.(*object.Object); valid {
				return o, nil
			}
		}
	}

	o, err := b.objectFromPackfile(id)
	if err == nil {
		if b.cache != nil {
			b.cache.Add(id, o)
		}
		return o, nil
	}
	if !xerrors.Is(err, packfile.ErrObjectNotFound) {
		return nil, xerrors.Errorf("failed looking for packed object: %w", err)
	}

	o, err = b.looseObject(id)
	if err != nil {
		return nil, err
	}
	if b.cache != nil {
		b.cache.Add(id, o)
	}
	return o, nil
}

// looseObjectPath returns the absolute path of a loose object:
// .git/objects/first_2_chars_of_sha/remaining_chars_of_sha
func (b *Backend) looseObjectPath(sha string) string {
	return filepath.Join(b.root, gitpath.ObjectsPath, sha[:2], sha[2:])
}

// looseObject reads and decodes a single loose object file: zlib
// wrapping "type len\x00content".
func (b *Backend) looseObject(id oid.Oid) (o *object.Object, err error) {
	if _, exists := b.looseObjects.Load(id); !exists {
		return nil, os.ErrNotExist
	}

	strOid := id.String()
	p := b.looseObjectPath(strOid)
	f, err := b.fs.Open(p)
	if err != nil {
		return nil, xerrors.Errorf("could not get object %s at path %s: %w", strOid, p, err)
	}
	defer errutil.Close(f, &err)

	zlibReader, err := zlib.NewReader(f)
	if err != nil {
		return nil, xerrors.Errorf("could not decompress object %s at path %s: %w", strOid, p, err)
	}
	defer errutil.Close(zlibReader, &err)

	buff, err := io.ReadAll(zlibReader)
	if err != nil {
		return nil, xerrors.Errorf("could not read object %s at path %s: %w", strOid, p, err)
	}

	pointerPos := 0

	typ := readutil.ReadTo(buff, ' ')
	if typ == nil {
		return nil, xerrors.Errorf("could not find object type for %s at path %s", strOid, p)
	}
	oType, err := object.NewTypeFromString(string(typ))
	if err != nil {
		return nil, xerrors.Errorf("unsupported type %s for object %s at path %s: %w", string(typ), strOid, p, object.ErrObjectInvalid)
	}
	pointerPos += len(typ) + 1 // + 1 for the space

	size := readutil.ReadTo(buff[pointerPos:], 0)
	if size == nil {
		return nil, xerrors.Errorf("could not find object size for %s at path %s", strOid, p)
	}
	oSize, err := strconv.Atoi(string(size))
	if err != nil {
		return nil, xerrors.Errorf("invalid size %s for object %s at path %s: %w", size, strOid, p, err)
	}
	pointerPos += len(size) + 1 // + 1 for the NUL
	oContent := buff[pointerPos:]

	if len(oContent) != oSize {
		return nil, xerrors.Errorf("object marked as size %d, but has %d at path %s", oSize, len(oContent), p)
	}

	return object.NewWithID(id, oType, oContent), nil
}

// loadPacks opens every packfile under objects/pack.
func (b *Backend) loadPacks() error {
	p := filepath.Join(b.root, gitpath.ObjectsPackPath)
	return afero.Walk(b.fs, p, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			//nolint:nilerr // an empty repo has no objects/pack directory yet
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Ext(info.Name()) != packfile.ExtPackfile {
			return nil
		}

		pack, err := packfile.Open(b.fs, path)
		if err != nil {
			return xerrors.Errorf("could not parse packfile at %s: %w", path, err)
		}
		id, err := pack.ID()
		if err != nil {
			return xerrors.Errorf("could not get id of packfile at %s: %w", path, err)
		}
		b.packfiles[id] = pack
		return nil
	})
}

// objectFromPackfile looks for id across every loaded packfile.
func (b *Backend) objectFromPackfile(id oid.Oid) (*object.Object, error) {
	for _, pack := range b.packfiles {
		o, err := pack.GetObject(id)
		if err == nil {
			return o, nil
		}
		if xerrors.Is(err, packfile.ErrObjectNotFound) {
			continue
		}
		return nil, err
	}
	return nil, packfile.ErrObjectNotFound
}

// AddPack installs a just-received, trailer-verified pack (r seeked
// to its start) into the object database: it indexes the pack in a
// single pass, writes both files under objects/pack, and registers
// the result so its objects are immediately visible to Object and
// HasObject without reopening the backend.
func (b *Backend) AddPack(r io.ReadSeeker) (oid.Oid, int, error) {
	entries, err := packfile.BuildIndex(r, b.Object)
	if err != nil {
		return oid.Null, 0, xerrors.Errorf("could not index incoming pack: %w", err)
	}

	if _, err := r.Seek(-int64(oid.Size), io.SeekEnd); err != nil {
		return oid.Null, 0, xerrors.Errorf("could not seek to pack trailer: %w", err)
	}
	trailer := make([]byte, oid.Size)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return oid.Null, 0, xerrors.Errorf("could not read pack trailer: %w", err)
	}
	packID, err := oid.FromRawBytes(trailer)
	if err != nil {
		return oid.Null, 0, xerrors.Errorf("invalid pack trailer: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return oid.Null, 0, xerrors.Errorf("could not rewind pack: %w", err)
	}

	packDir := filepath.Join(b.root, gitpath.ObjectsPackPath)
	if err := b.fs.MkdirAll(packDir, 0o750); err != nil {
		return oid.Null, 0, xerrors.Errorf("could not create %s: %w", packDir, err)
	}
	base := "pack-" + packID.String()
	packPath := filepath.Join(packDir, base+packfile.ExtPackfile)
	idxPath := filepath.Join(packDir, base+packfile.ExtIndex)

	packFile, err := lockfile.Create(b.fs, packPath)
	if err != nil {
		return oid.Null, 0, xerrors.Errorf("could not create %s: %w", packPath, err)
	}
	if _, err := io.Copy(packFile, r); err != nil {
		packFile.Rollback() //nolint:errcheck // it already failed
		return oid.Null, 0, xerrors.Errorf("could not write %s: %w", packPath, err)
	}
	if err := packFile.Commit(); err != nil {
		return oid.Null, 0, xerrors.Errorf("could not commit %s: %w", packPath, err)
	}

	idxFile, err := lockfile.Create(b.fs, idxPath)
	if err != nil {
		return oid.Null, 0, xerrors.Errorf("could not create %s: %w", idxPath, err)
	}
	if err := packfile.WriteIndex(idxFile, entries, packID); err != nil {
		idxFile.Rollback() //nolint:errcheck // it already failed
		return oid.Null, 0, xerrors.Errorf("could not write %s: %w", idxPath, err)
	}
	if err := idxFile.Commit(); err != nil {
		return oid.Null, 0, xerrors.Errorf("could not commit %s: %w", idxPath, err)
	}

	pack, err := packfile.Open(b.fs, packPath)
	if err != nil {
		return oid.Null, 0, xerrors.Errorf("could not reopen installed pack: %w", err)
	}

	b.packMu.Lock()
	b.packfiles[packID] = pack
	b.packMu.Unlock()

	return packID, len(entries), nil
}

// HasObject returns whether an object exists in the odb. This method
// can be called concurrently.
func (b *Backend) HasObject(id oid.Oid) (bool, error) {
	key := id.Bytes()
	b.objectMu.Lock(key)
	defer b.objectMu.Unlock(key)

	return b.hasObjectUnsafe(id)
}

func (b *Backend) hasObjectUnsafe(id oid.Oid) (bool, error) {
	_, err := b.objectUnsafe(id)
	if err == nil {
		return true, nil
	}
	if xerrors.Is(err, packfile.ErrObjectNotFound) || xerrors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, xerrors.Errorf("could not get object: %w", err)
}

// WriteObject adds an object to the odb as a loose object. This
// method can be called concurrently.
func (b *Backend) WriteObject(o *object.Object) (oid.Oid, error) {
	data, err := o.Compress()
	if err != nil {
		return oid.Null, xerrors.Errorf("could not compress object: %w", err)
	}

	id := o.ID()
	key := id.Bytes()
	b.objectMu.Lock(key)
	defer b.objectMu.Unlock(key)

	found, err := b.hasObjectUnsafe(id)
	if err != nil {
		return oid.Null, xerrors.Errorf("could not check if object (%s) already exists: %w", id.String(), err)
	}
	if found {
		return id, nil
	}

	sha := id.String()
	p := b.looseObjectPath(sha)

	dest := filepath.Dir(p)
	if err = b.fs.MkdirAll(dest, 0o755); err != nil {
		return oid.Null, xerrors.Errorf("could not create the destination directory %s: %w", dest, err)
	}

	// Git objects are read-only once written.
	if err = afero.WriteFile(b.fs, p, data, 0o444); err != nil {
		return oid.Null, xerrors.Errorf("could not persist object %s at path %s: %w", sha, p, err)
	}

	b.looseObjects.Store(id, struct{}{})
	if b.cache != nil {
		b.cache.Add(id, o)
	}
	return id, nil
}

// WalkPackedObjectIDs runs f on every object id of every loaded packfile.
func (b *Backend) WalkPackedObjectIDs(f packfile.OidWalkFunc) error {
	for _, pack := range b.packfiles {
		if err := pack.Walk(f); err != nil {
			return err
		}
	}
	return nil
}

// loadLooseObjects records (without decoding) every loose object id
// present on disk, so subsequent lookups can skip a failed stat.
func (b *Backend) loadLooseObjects() error {
	p := filepath.Join(b.root, gitpath.ObjectsPath)
	return afero.Walk(b.fs, p, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			//nolint:nilerr // an empty repo has no objects directory yet
			return nil
		}
		if path == p {
			return nil
		}

		if info.IsDir() {
			if !b.isLooseObjectDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		prefix := filepath.Base(filepath.Dir(path))
		if !b.isLooseObjectDir(prefix) {
			return filepath.SkipDir
		}
		if filepath.Ext(info.Name()) != "" {
			return filepath.SkipDir
		}

		sha := prefix + info.Name()
		id, err := oid.FromHex(sha)
		if err != nil {
			return xerrors.Errorf("could not get oid from %s: %w", sha, err)
		}
		b.looseObjects.Store(id, struct{}{})
		return nil
	})
}

// isLooseObjectDir reports whether name is a valid loose-object
// fanout directory ("00".."ff").
func (b *Backend) isLooseObjectDir(name string) bool {
	if len(name) != 2 {
		return false
	}
	dirNum, err := strconv.ParseInt(name, 16, 64)
	return err == nil && dirNum >= 0x00 && dirNum <= 0xff
}

// WalkLooseObjectIDs runs f on every loose object id.
func (b *Backend) WalkLooseObjectIDs(f packfile.OidWalkFunc) (err error) {
	b.looseObjects.Range(func(key, value interface{}) bool {
		err = f(key.(oid.Oid))
		if err != nil {
			if xerrors.Is(err, backend.WalkStop) {
				err = nil
			}
			return false
		}
		return true
	})
	return err
}
