// Package pktline implements git's pkt-line framing: every protocol
// message is a 4-byte ASCII hex length (inclusive of those 4 bytes)
// followed by payload, with length 0000 used as a flush marker.
// Grounded on go-git's plumbing/format/pktline package, adapted from
// its free functions into a small Writer/Scanner pair that mirrors
// bufio.Scanner's read loop.
package pktline

import (
	"bufio"
	"io"

	"golang.org/x/xerrors"
)

// MaxPayloadSize is the largest payload a single pkt-line may carry,
// per the pack protocol's side-band-64k limit.
const MaxPayloadSize = 65516

const lenSize = 4

// FlushPkt is the literal bytes of a flush packet.
var FlushPkt = []byte("0000")

// ErrInvalidLength is returned when a packet's length header doesn't
// parse as 4 hex digits, or claims a length shorter than the header
// itself.
var ErrInvalidLength = xerrors.New("invalid pkt-line length")

// ErrPayloadTooLong is returned when WritePacket is asked to frame
// more than MaxPayloadSize bytes.
var ErrPayloadTooLong = xerrors.New("pkt-line payload too long")

// WritePacket frames and writes a single payload packet.
func WritePacket(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return ErrPayloadTooLong
	}
	length := len(payload) + lenSize
	if _, err := w.Write(asciiHex16(length)); err != nil {
		return xerrors.Errorf("could not write pkt-line length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return xerrors.Errorf("could not write pkt-line payload: %w", err)
	}
	return nil
}

// WriteString is WritePacket for a string payload.
func WriteString(w io.Writer, s string) error {
	return WritePacket(w, []byte(s))
}

// WriteFlush writes a flush packet.
func WriteFlush(w io.Writer) error {
	if _, err := w.Write(FlushPkt); err != nil {
		return xerrors.Errorf("could not write flush pkt-line: %w", err)
	}
	return nil
}

func asciiHex16(n int) []byte {
	var buf [lenSize]byte
	const hexDigits = "0123456789abcdef"
	for i := lenSize - 1; i >= 0; i-- {
		buf[i] = hexDigits[n&0xf]
		n >>= 4
	}
	return buf[:]
}

// Scanner reads a sequence of pkt-line packets, the way bufio.Scanner
// reads a sequence of tokens: call Scan in a loop, inspect Bytes/Flush
// after each true return, and Err once Scan returns false.
type Scanner struct {
	r     *bufio.Reader
	buf   []byte
	eof   bool
	flush bool
	err   error
}

// NewScanner wraps r for sequential pkt-line reads.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, MaxPayloadSize+lenSize)}
}

// Scan reads the next packet. It returns false at a flush packet, at
// EOF, or on error; callers distinguish a flush from EOF by checking
// Flush / Err.
func (s *Scanner) Scan() bool {
	if s.err != nil || s.eof {
		return false
	}

	var lenBuf [lenSize]byte
	if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
		if xerrors.Is(err, io.EOF) {
			s.eof = true
			return false
		}
		s.err = xerrors.Errorf("could not read pkt-line length: %w", err)
		return false
	}

	length, err := parseLength(lenBuf[:])
	if err != nil {
		s.err = err
		return false
	}
	if length == 0 {
		s.buf = nil
		s.eof = true
		s.flush = true
		return false
	}

	payloadLen := length - lenSize
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		s.err = xerrors.Errorf("could not read pkt-line payload: %w", err)
		return false
	}
	s.buf = payload
	return true
}

// Flush reports whether Scan stopped because it read a flush packet
// (as opposed to EOF or an error).
func (s *Scanner) Flush() bool {
	return s.flush && s.err == nil
}

// Bytes returns the payload most recently read by Scan.
func (s *Scanner) Bytes() []byte {
	return s.buf
}

// Err returns the first non-EOF error Scan encountered, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Remainder returns the buffered reader backing the Scanner, letting
// a caller that has stopped calling Scan hand off whatever comes
// next in the stream (e.g. a side-band-multiplexed pack) without
// losing bytes the Scanner has already buffered ahead.
func (s *Scanner) Remainder() io.Reader {
	return s.r
}

func parseLength(hexBytes []byte) (int, error) {
	var length int
	for _, c := range hexBytes {
		v, ok := hexVal(c)
		if !ok {
			return 0, xerrors.Errorf("%q: %w", hexBytes, ErrInvalidLength)
		}
		length = length<<4 | v
	}
	if length != 0 && length < lenSize {
		return 0, xerrors.Errorf("length %d: %w", length, ErrInvalidLength)
	}
	return length, nil
}

func hexVal(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}
