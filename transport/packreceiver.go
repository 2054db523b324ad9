package transport

import (
	"crypto/sha1" //nolint:gosec // pack trailers are SHA-1 by design
	"hash"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// DefaultMirrorSize is the default size of the in-memory window
// PackReceiver keeps over the most recently written bytes.
const DefaultMirrorSize = 32 << 20 // 32 MiB

// ErrTrailerMismatch is returned when a received pack's trailing
// checksum doesn't match the SHA-1 accumulated while writing it.
var ErrTrailerMismatch = xerrors.New("pack trailer checksum mismatch")

// PackReceiver streams incoming pack bytes straight to a temp file
// instead of buffering the whole pack in memory: it keeps a running
// SHA-1 over every byte written so the trailing 20-byte checksum can
// be verified without a second pass over the file, and mirrors the
// tail of what it has written in a bounded in-memory ring so an
// index builder examining small base-offset deltas can usually read
// the base straight out of memory rather than seeking the file.
type PackReceiver struct {
	fs   afero.Fs
	file afero.File
	path string
	sum  hash.Hash

	// held is the tail of the bytes written so far, not yet folded
	// into sum, because it might still turn out to be the trailing
	// checksum rather than pack content: at most oidSize bytes.
	held []byte

	written int64

	mirror     []byte // ring buffer, logically the last len(mirror) bytes written
	mirrorSize int
	mirrorAt   int  // write cursor within mirror
	mirrorFull bool // whether the ring has wrapped at least once
}

// NewPackReceiver creates a temp file under dir (via afero.TempFile)
// to receive pack bytes, mirroring up to DefaultMirrorSize of the
// most recent bytes in memory.
func NewPackReceiver(fs afero.Fs, dir string) (*PackReceiver, error) {
	return newPackReceiver(fs, dir, DefaultMirrorSize)
}

// newPackReceiver is NewPackReceiver with an explicit mirror size;
// mirrorSize <= 0 selects DefaultMirrorSize.
func newPackReceiver(fs afero.Fs, dir string, mirrorSize int) (*PackReceiver, error) {
	if mirrorSize <= 0 {
		mirrorSize = DefaultMirrorSize
	}
	f, err := afero.TempFile(fs, dir, "incoming-*.pack")
	if err != nil {
		return nil, xerrors.Errorf("could not create pack temp file: %w", err)
	}
	return &PackReceiver{
		fs:         fs,
		file:       f,
		path:       f.Name(),
		sum:        sha1.New(), //nolint:gosec
		mirror:     make([]byte, mirrorSize),
		mirrorSize: mirrorSize,
	}, nil
}

// Write implements io.Writer: it appends p to the temp file, folds
// everything but the trailing oidSize bytes into the running
// checksum (those bytes might still turn out to be the trailer
// itself), and copies the data into the mirror ring.
func (p *PackReceiver) Write(data []byte) (int, error) {
	n, err := p.file.Write(data)
	if err != nil {
		return n, xerrors.Errorf("could not write pack bytes: %w", err)
	}
	p.written += int64(n)
	p.fillMirror(data[:n])

	combined := append(p.held, data[:n]...)
	if len(combined) <= oidSize {
		p.held = combined
		return n, nil
	}
	hashable := combined[:len(combined)-oidSize]
	p.sum.Write(hashable) //nolint:errcheck // hash.Hash.Write never errors
	p.held = append([]byte(nil), combined[len(combined)-oidSize:]...)
	return n, nil
}

// fillMirror copies data into the ring buffer, wrapping as needed.
func (p *PackReceiver) fillMirror(data []byte) {
	if len(data) >= p.mirrorSize {
		copy(p.mirror, data[len(data)-p.mirrorSize:])
		p.mirrorAt = 0
		p.mirrorFull = true
		return
	}
	for len(data) > 0 {
		n := copy(p.mirror[p.mirrorAt:], data)
		data = data[n:]
		p.mirrorAt += n
		if p.mirrorAt == p.mirrorSize {
			p.mirrorAt = 0
			p.mirrorFull = true
		}
	}
}

// ReadAt reads len(b) bytes starting at absolute offset off in the
// pack written so far, satisfying it from the in-memory mirror when
// the requested range still falls within its window, and falling
// back to a seek against the temp file otherwise.
func (p *PackReceiver) ReadAt(b []byte, off int64) (int, error) {
	mirrorStart := p.written - int64(p.mirrorLen())
	if off >= mirrorStart && off+int64(len(b)) <= p.written {
		start := (p.mirrorAt - p.mirrorLen() + int(off-mirrorStart)) % p.mirrorSize
		if start < 0 {
			start += p.mirrorSize
		}
		for i := range b {
			b[i] = p.mirror[(start+i)%p.mirrorSize]
		}
		return len(b), nil
	}
	return p.file.ReadAt(b, off)
}

func (p *PackReceiver) mirrorLen() int {
	if p.mirrorFull {
		return p.mirrorSize
	}
	return p.mirrorAt
}

// Written returns the number of pack bytes accepted so far.
func (p *PackReceiver) Written() int64 {
	return p.written
}

// Finish verifies that the last 20 bytes written (still held back in
// p.held, never hashed) match the SHA-1 accumulated over every byte
// preceding them, without re-reading the file, then seeks the temp
// file back to the start so it can be handed off for indexing.
func (p *PackReceiver) Finish() error {
	if p.written < oidSize || len(p.held) != oidSize {
		return xerrors.Errorf("pack too short (%d bytes): %w", p.written, ErrTrailerMismatch)
	}
	sum := p.sum.Sum(nil)
	for i := range sum {
		if sum[i] != p.held[i] {
			return ErrTrailerMismatch
		}
	}
	_, err := p.file.Seek(0, io.SeekStart)
	return err
}

// File returns the underlying temp file, positioned at the start
// once Finish has succeeded.
func (p *PackReceiver) File() afero.File {
	return p.file
}

// Path returns the temp file's path.
func (p *PackReceiver) Path() string {
	return p.path
}

// Close closes the underlying temp file without removing it.
func (p *PackReceiver) Close() error {
	return p.file.Close()
}

// Remove closes and deletes the underlying temp file.
func (p *PackReceiver) Remove() error {
	_ = p.file.Close()
	return p.fs.Remove(p.path)
}

const oidSize = 20
