package repository

import (
	"context"
	"net/http"

	"github.com/puregit/git/transport"
	"github.com/puregit/git/transport/gittransport"
	"github.com/puregit/git/transport/httptransport"
	"github.com/puregit/git/transport/sshtransport"
)

// OpenTransport dials the transport.Transport matching rawURL's
// scheme: smart-HTTP for http(s)://, a spawned SSH session (with
// ssh-agent and known_hosts defaults) for ssh:// and scp-like
// remotes, and a bare TCP connection for git://. Callers that need
// authentication beyond those defaults should construct the adapter
// directly instead of going through this helper.
func OpenTransport(ctx context.Context, rawURL string) (transport.Transport, error) {
	ep, err := transport.ParseEndpoint(rawURL)
	if err != nil {
		return nil, err
	}

	switch ep.Protocol {
	case "http", "https":
		return httptransport.New(ep, http.DefaultClient, nil), nil
	case "git":
		return gittransport.New(ep), nil
	case "ssh":
		return sshtransport.New(ctx, ep, nil)
	default:
		return nil, transport.ErrUnsupportedProtocol
	}
}
