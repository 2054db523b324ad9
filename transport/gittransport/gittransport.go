// Package gittransport implements transport.Transport over the plain
// git:// protocol: a bare TCP connection on which the client sends one
// pkt-line naming the service and repository path before the server
// starts talking upload-pack/receive-pack as normal. There is no
// authentication or encryption at this layer, matching git's own
// warning that git:// is for read-only, trusted-network access.
// Grounded on go-git's plumbing/transport/git package and the wire
// format its plumbing/protocol/packp.GitProtoRequest encodes.
package gittransport

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/puregit/git/transport"
	"github.com/puregit/git/transport/pktline"
	"github.com/puregit/git/transport/sideband"
)

// DefaultPort is the port git-daemon listens on when an endpoint
// doesn't name one.
const DefaultPort = 9418

// Transport is a transport.Transport that speaks the plain git://
// protocol over a freshly dialed TCP connection per call, matching
// how git itself never keeps a git:// connection open across fetches.
type Transport struct {
	endpoint *transport.Endpoint
	dialer   net.Dialer
}

var _ transport.Transport = (*Transport)(nil)

// New returns a transport for ep. Dialing happens lazily, once per
// AdvertiseRefs/UploadPack/ReceivePack call.
func New(ep *transport.Endpoint) *Transport {
	return &Transport{endpoint: ep}
}

// Endpoint implements transport.Transport.
func (t *Transport) Endpoint() *transport.Endpoint {
	return t.endpoint
}

// Close implements transport.Transport; there is no persistent
// connection to release since each call dials its own.
func (t *Transport) Close() error {
	return nil
}

func (t *Transport) hostWithPort() string {
	if t.endpoint.Port != 0 {
		return net.JoinHostPort(t.endpoint.Host, strconv.Itoa(t.endpoint.Port))
	}
	return net.JoinHostPort(t.endpoint.Host, strconv.Itoa(DefaultPort))
}

// connect dials the endpoint and sends the service-request pkt-line:
// "<service> <path>\0host=<host>\0".
func (t *Transport) connect(ctx context.Context, svc transport.Service) (net.Conn, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", t.hostWithPort())
	if err != nil {
		return nil, xerrors.Errorf("could not dial %s: %w", t.hostWithPort(), err)
	}

	line := string(svc) + " " + t.endpoint.Path + "\x00host=" + t.endpoint.Host + "\x00"
	if err := pktline.WriteString(conn, line); err != nil {
		conn.Close() //nolint:errcheck
		return nil, xerrors.Errorf("could not send %s request: %w", svc, err)
	}
	return conn, nil
}

// AdvertiseRefs implements transport.Transport.
func (t *Transport) AdvertiseRefs(ctx context.Context, svc transport.Service) (*transport.RefAdvertisement, error) {
	conn, err := t.connect(ctx, svc)
	if err != nil {
		return nil, err
	}
	defer conn.Close() //nolint:errcheck

	return transport.ParseRefAdvertisement(conn)
}

// UploadPack implements transport.Transport.
func (t *Transport) UploadPack(ctx context.Context, req *transport.UploadPackRequest) (*transport.UploadPackResponse, error) {
	conn, err := t.connect(ctx, transport.UploadPackService)
	if err != nil {
		return nil, err
	}

	s := pktline.NewScanner(conn)
	if _, err := transport.ParseRefAdvertisementFrom(s); err != nil {
		conn.Close() //nolint:errcheck
		return nil, xerrors.Errorf("could not read ref advertisement: %w", err)
	}

	body := transport.BuildUploadPackRequest(req.Wants, req.Haves, transport.ClientCapabilities(req.Progress != nil))
	if _, err := conn.Write(body); err != nil {
		conn.Close() //nolint:errcheck
		return nil, xerrors.Errorf("could not send want/have negotiation: %w", err)
	}

	// As with the ssh and http adapters, Scan permanently stops at the
	// advertisement's flush, so the negotiation line that follows over
	// the same connection needs a fresh Scanner over s.Remainder()
	// rather than a new one built on conn directly.
	negotiationScanner := pktline.NewScanner(s.Remainder())
	if !negotiationScanner.Scan() {
		conn.Close() //nolint:errcheck
		return nil, xerrors.Errorf("upload-pack response ended before a negotiation line: %w", negotiationScanner.Err())
	}
	negotiation := strings.TrimSuffix(string(negotiationScanner.Bytes()), "\n")

	demux := sideband.NewDemuxer(negotiationScanner.Remainder())
	demux.Progress = req.Progress

	return &transport.UploadPackResponse{
		Negotiation: negotiation,
		Pack:        &closingReader{Reader: demux, closer: conn},
	}, nil
}

// ReceivePack implements transport.Transport.
func (t *Transport) ReceivePack(ctx context.Context, req *transport.ReceivePackRequest) (*transport.ReportStatus, error) {
	conn, err := t.connect(ctx, transport.ReceivePackService)
	if err != nil {
		return nil, err
	}
	defer conn.Close() //nolint:errcheck

	s := pktline.NewScanner(conn)
	if _, err := transport.ParseRefAdvertisementFrom(s); err != nil {
		return nil, xerrors.Errorf("could not read ref advertisement: %w", err)
	}

	header := transport.BuildReceivePackHeader(req.Commands, transport.ClientCapabilities(req.Progress != nil))
	if _, err := conn.Write(header); err != nil {
		return nil, xerrors.Errorf("could not send push commands: %w", err)
	}
	if req.Pack != nil {
		if _, err := io.Copy(conn, req.Pack); err != nil {
			return nil, xerrors.Errorf("could not send pack: %w", err)
		}
	}
	// Half-close the write side so a server that waits for EOF to know
	// the pack is complete can proceed; the report-status read below
	// only needs the read half, which stays open.
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}

	return transport.ParseReportStatus(s.Remainder())
}

// closingReader wraps an io.Reader so closing it also closes the
// underlying TCP connection once the caller is done with the pack.
type closingReader struct {
	io.Reader
	closer io.Closer
}

func (c *closingReader) Close() error {
	return c.closer.Close()
}
