// Package lockfile implements git's atomic update-by-rename
// convention: a writer creates "<path>.lock" exclusively, writes the
// new content, then renames it over path. A reader never observes a
// partially-written file, and two concurrent writers never interleave.
package lockfile

import (
	"os"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// ErrLocked is returned when a lockfile already exists for the target
// path, meaning another writer is in progress.
var ErrLocked = xerrors.New("unable to obtain lock: file already locked")

// Lockfile represents an in-progress atomic write to path.
type Lockfile struct {
	fs       afero.Fs
	path     string
	lockPath string
	file     afero.File
	done     bool
}

// Create acquires the lock for path by exclusively creating
// "<path>.lock". It returns ErrLocked if the lockfile already exists.
func Create(fs afero.Fs, path string) (*Lockfile, error) {
	lockPath := path + ".lock"

	f, err := fs.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, xerrors.Errorf("could not create lockfile %s: %w", lockPath, err)
	}

	return &Lockfile{
		fs:       fs,
		path:     path,
		lockPath: lockPath,
		file:     f,
	}, nil
}

// Write writes data to the lockfile. It may be called multiple times
// before Commit.
func (l *Lockfile) Write(data []byte) (int, error) {
	return l.file.Write(data)
}

// Commit flushes the lockfile to disk and atomically renames it over
// the target path, releasing the lock.
func (l *Lockfile) Commit() (err error) {
	if l.done {
		return nil
	}
	l.done = true

	if syncer, ok := l.file.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			_ = l.file.Close()
			_ = l.fs.Remove(l.lockPath)
			return xerrors.Errorf("could not sync lockfile %s: %w", l.lockPath, err)
		}
	}
	if err := l.file.Close(); err != nil {
		_ = l.fs.Remove(l.lockPath)
		return xerrors.Errorf("could not close lockfile %s: %w", l.lockPath, err)
	}
	if err := l.fs.Rename(l.lockPath, l.path); err != nil {
		_ = l.fs.Remove(l.lockPath)
		return xerrors.Errorf("could not commit lockfile %s: %w", l.lockPath, err)
	}
	return nil
}

// Rollback discards the lockfile without touching the target path.
// It is a no-op if Commit already ran.
func (l *Lockfile) Rollback() error {
	if l.done {
		return nil
	}
	l.done = true
	_ = l.file.Close()
	return l.fs.Remove(l.lockPath)
}

// WriteFile is a convenience helper that atomically replaces path
// with data using a lockfile.
func WriteFile(fs afero.Fs, path string, data []byte) (err error) {
	lf, err := Create(fs, path)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = lf.Rollback()
		}
	}()

	if _, err = lf.Write(data); err != nil {
		return xerrors.Errorf("could not write lockfile content: %w", err)
	}
	return lf.Commit()
}
