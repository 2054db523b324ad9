// Package sideband implements git's side-band-64k multiplexing: the
// pack data stream sent in response to upload-pack is split across
// three channels (pack data, progress text, fatal error) inside a
// single pkt-line stream. Grounded on the public surface of go-git's
// plumbing/protocol/packp/sideband package (its demux_test.go, since
// the retrieved snapshot only carries that package's tests); the
// Demuxer type, its Progress field, and its pending-buffer carry-over
// behavior across short reads are reconstructed to match what those
// tests assert.
package sideband

import (
	"io"

	"golang.org/x/xerrors"

	"github.com/puregit/git/transport/pktline"
)

// Band identifies which of the three side-band channels a packet
// belongs to.
type Band byte

// The three channels side-band-64k multiplexes onto one stream.
const (
	PackData        Band = 1
	ProgressMessage Band = 2
	ErrorMessage    Band = 3
)

// WithPayload prefixes payload with this band's channel byte, ready
// to hand to pktline.WritePacket.
func (b Band) WithPayload(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, byte(b))
	return append(out, payload...)
}

// ErrUnknownChannel is returned when a packet's first byte isn't one
// of the three known channels.
var ErrUnknownChannel = xerrors.New("unknown side-band channel")

// RemoteError wraps a channel-3 message: the server reported a fatal
// error instead of more pack data.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Message
}

// Demuxer reads a side-band-multiplexed pkt-line stream and exposes
// just the pack-data channel through Read; progress-channel messages
// are copied to Progress as they arrive (if set), and an error-channel
// message is surfaced as the error from Read.
type Demuxer struct {
	Progress io.Writer

	scanner *pktline.Scanner
	pending []byte
	// stashed holds an error already observed from the underlying
	// stream but not yet reported, because a Read call satisfied some
	// bytes out of `pending` before hitting it; it surfaces on the
	// following call instead of truncating the current one early.
	stashed error
}

// NewDemuxer wraps r, a pkt-line stream whose packets are prefixed
// with a Band byte.
func NewDemuxer(r io.Reader) *Demuxer {
	return &Demuxer{scanner: pktline.NewScanner(r)}
}

// Read implements io.Reader over the pack-data channel only, filling
// p as full as the stream immediately allows (not just one packet's
// worth) so a caller doing a single bounded Read - rather than
// io.ReadFull - still gets everything currently available.
func (d *Demuxer) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		if len(d.pending) == 0 {
			if err := d.fill(); err != nil {
				if total > 0 {
					d.stashed = err
					return total, nil
				}
				return 0, err
			}
			if len(d.pending) == 0 {
				// fill consumed a progress packet with nothing left
				// to read yet; loop back to the scanner.
				continue
			}
		}
		n := copy(p[total:], d.pending)
		d.pending = d.pending[n:]
		total += n
	}
	return total, nil
}

// fill reads and classifies one packet: pack data is stored in
// d.pending, a progress message is forwarded, and an error-channel
// packet, flush, EOF or read error is returned as an error.
func (d *Demuxer) fill() error {
	if d.stashed != nil {
		err := d.stashed
		d.stashed = nil
		return err
	}
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	pkt := d.scanner.Bytes()
	if len(pkt) == 0 {
		return nil
	}
	band, payload := Band(pkt[0]), pkt[1:]
	switch band {
	case PackData:
		d.pending = payload
		return nil
	case ProgressMessage:
		if d.Progress != nil {
			if _, err := d.Progress.Write(payload); err != nil {
				return xerrors.Errorf("could not write progress: %w", err)
			}
		}
		return nil
	case ErrorMessage:
		return &RemoteError{Message: string(payload)}
	default:
		return xerrors.Errorf("channel %d: %w", band, ErrUnknownChannel)
	}
}
