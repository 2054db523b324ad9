package transport

import (
	"io"
	"strings"

	"golang.org/x/xerrors"

	"github.com/puregit/git/oid"
	"github.com/puregit/git/transport/pktline"
)

// RefAdvertisement is the server's response to an upload-pack or
// receive-pack handshake: every ref it has, the capabilities it
// supports, and any symbolic-ref hints (chiefly HEAD).
type RefAdvertisement struct {
	Capabilities *CapabilityList
	Refs         map[string]oid.Oid
	Symrefs      map[string]string
}

// noSuchRefMarker is the sentinel advertisement a server with no refs
// at all sends: "0000000000000000000000000000000000000000 capabilities^{}".
const noSuchRefMarker = "capabilities^{}"

// ParseRefAdvertisement reads pkt-lines up to the terminating flush,
// parsing the first line's trailing NUL-separated capability list and
// every following "<oid> <refname>" line.
func ParseRefAdvertisement(r io.Reader) (*RefAdvertisement, error) {
	return ParseRefAdvertisementFrom(pktline.NewScanner(r))
}

// ParseRefAdvertisementFrom is ParseRefAdvertisement over a Scanner
// the caller already owns, so it can keep reading from s.Remainder()
// afterwards (e.g. the want/have negotiation that follows over the
// same connection) without losing whatever the Scanner already
// buffered ahead of the terminating flush.
func ParseRefAdvertisementFrom(s *pktline.Scanner) (*RefAdvertisement, error) {
	adv := &RefAdvertisement{
		Refs:    map[string]oid.Oid{},
		Symrefs: map[string]string{},
	}

	first := true
	for s.Scan() {
		line := strings.TrimSuffix(string(s.Bytes()), "\n")
		if line == "" {
			continue
		}
		// A service-announcement line ("# service=git-upload-pack")
		// precedes the actual advertisement over HTTP; skip it.
		if strings.HasPrefix(line, "#") {
			continue
		}

		if first {
			first = false
			var caps string
			line, caps, _ = strings.Cut(line, "\x00")
			adv.Capabilities = ParseCapabilities(caps)
		}

		hash, name, ok := strings.Cut(line, " ")
		if !ok {
			return nil, xerrors.Errorf("malformed ref advertisement line %q", line)
		}
		if name == noSuchRefMarker {
			continue
		}

		id, err := oid.FromHex(hash)
		if err != nil {
			return nil, xerrors.Errorf("invalid ref advertisement oid %q: %w", hash, err)
		}
		adv.Refs[name] = id
	}
	if err := s.Err(); err != nil {
		return nil, xerrors.Errorf("could not read ref advertisement: %w", err)
	}

	for _, value := range adv.Capabilities.RepeatedValues("symref") {
		from, to, ok := strings.Cut(value, ":")
		if ok {
			adv.Symrefs[from] = to
		}
	}

	return adv, nil
}
