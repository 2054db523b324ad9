// Package httptransport implements transport.Transport over the
// smart-HTTP git protocol: a GET against info/refs to discover what
// the server has, then a POST against git-upload-pack or
// git-receive-pack to perform a fetch or push. Grounded on go-git's
// plumbing/transport/http package (its header conventions, status
// code mapping, and GET/POST request shapes), adapted onto this
// repository's own transport.Transport interface and its own
// pktline/sideband/negotiate plumbing rather than go-git's
// session/connection machinery.
package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/xerrors"

	"github.com/puregit/git/transport"
	"github.com/puregit/git/transport/pktline"
	"github.com/puregit/git/transport/sideband"
)

const infoRefsPath = "/info/refs"

// ErrUnexpectedStatus is returned when the server answers with a
// status code this client doesn't otherwise map to a specific error.
var ErrUnexpectedStatus = xerrors.New("unexpected http status")

// ErrAuthenticationRequired maps a 401 response.
var ErrAuthenticationRequired = xerrors.New("authentication required")

// ErrAuthorizationFailed maps a 403 response.
var ErrAuthorizationFailed = xerrors.New("authorization failed")

// ErrRepositoryNotFound maps a 404 response.
var ErrRepositoryNotFound = xerrors.New("repository not found")

// AuthMethod sets credentials on an outgoing request.
type AuthMethod interface {
	SetAuth(r *http.Request)
}

// BasicAuth is HTTP basic authentication, the scheme most git hosts
// accept for both passwords and personal access tokens.
type BasicAuth struct {
	Username, Password string
}

// SetAuth implements AuthMethod.
func (a *BasicAuth) SetAuth(r *http.Request) {
	if a == nil {
		return
	}
	r.SetBasicAuth(a.Username, a.Password)
}

// Transport is a transport.Transport backed by net/http.
type Transport struct {
	endpoint *transport.Endpoint
	client   *http.Client
	auth     AuthMethod
}

var _ transport.Transport = (*Transport)(nil)

// New creates an HTTP(S) transport for ep. If client is nil,
// http.DefaultClient is used.
func New(ep *transport.Endpoint, client *http.Client, auth AuthMethod) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{endpoint: ep, client: client, auth: auth}
}

// Endpoint implements transport.Transport.
func (t *Transport) Endpoint() *transport.Endpoint {
	return t.endpoint
}

// Close implements transport.Transport; the HTTP transport holds no
// persistent connection to release.
func (t *Transport) Close() error {
	return nil
}

func (t *Transport) applyHeaders(req *http.Request, svc transport.Service, accept bool) {
	req.Header.Set("User-Agent", "puregit/1.0")
	if accept {
		req.Header.Set("Accept", fmt.Sprintf("application/x-%s-result", svc))
		req.Header.Set("Content-Type", fmt.Sprintf("application/x-%s-request", svc))
	}
	if t.auth != nil {
		t.auth.SetAuth(req)
	}
}

func (t *Transport) do(req *http.Request) (*http.Response, error) {
	res, err := t.client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("http request failed: %w", err)
	}
	if res.StatusCode >= http.StatusOK && res.StatusCode < http.StatusMultipleChoices {
		return res, nil
	}
	defer res.Body.Close() //nolint:errcheck

	switch res.StatusCode {
	case http.StatusUnauthorized:
		return nil, ErrAuthenticationRequired
	case http.StatusForbidden:
		return nil, ErrAuthorizationFailed
	case http.StatusNotFound:
		return nil, ErrRepositoryNotFound
	default:
		body, _ := io.ReadAll(res.Body)
		return nil, xerrors.Errorf("status %d: %s: %w", res.StatusCode, string(body), ErrUnexpectedStatus)
	}
}

// AdvertiseRefs implements transport.Transport.
func (t *Transport) AdvertiseRefs(ctx context.Context, svc transport.Service) (*transport.RefAdvertisement, error) {
	url := t.endpoint.String() + infoRefsPath + "?service=" + string(svc)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, xerrors.Errorf("could not build info/refs request: %w", err)
	}
	t.applyHeaders(req, svc, false)

	res, err := t.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close() //nolint:errcheck

	return transport.ParseRefAdvertisement(res.Body)
}

// UploadPack implements transport.Transport.
func (t *Transport) UploadPack(ctx context.Context, req *transport.UploadPackRequest) (*transport.UploadPackResponse, error) {
	body := transport.BuildUploadPackRequest(req.Wants, req.Haves, transport.ClientCapabilities(req.Progress != nil))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.endpoint.String()+"/"+string(transport.UploadPackService), bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Errorf("could not build upload-pack request: %w", err)
	}
	t.applyHeaders(httpReq, transport.UploadPackService, true)

	res, err := t.do(httpReq)
	if err != nil {
		return nil, err
	}

	line, rest, err := readNegotiationLine(res.Body)
	if err != nil {
		res.Body.Close() //nolint:errcheck
		return nil, err
	}

	demux := sideband.NewDemuxer(rest)
	demux.Progress = req.Progress

	return &transport.UploadPackResponse{
		Negotiation: line,
		Pack:        &closingReader{Reader: demux, closer: res.Body},
	}, nil
}

// ReceivePack implements transport.Transport.
func (t *Transport) ReceivePack(ctx context.Context, req *transport.ReceivePackRequest) (*transport.ReportStatus, error) {
	header := transport.BuildReceivePackHeader(req.Commands, transport.ClientCapabilities(req.Progress != nil))

	var body bytes.Buffer
	body.Write(header)
	if req.Pack != nil {
		if _, err := io.Copy(&body, req.Pack); err != nil {
			return nil, xerrors.Errorf("could not buffer push body: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.endpoint.String()+"/"+string(transport.ReceivePackService), &body)
	if err != nil {
		return nil, xerrors.Errorf("could not build receive-pack request: %w", err)
	}
	t.applyHeaders(httpReq, transport.ReceivePackService, true)

	res, err := t.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close() //nolint:errcheck

	return transport.ParseReportStatus(res.Body)
}

// readNegotiationLine reads the server's first upload-pack response
// pkt-line ("NAK\n" or "ACK <oid>...\n") and returns it alongside a
// reader continuing over whatever follows: the side-band-multiplexed
// pack stream, still pkt-line framed, which the caller hands to a
// sideband.Demuxer. Using the Scanner's own buffered reader as that
// continuation (rather than the raw body) preserves any bytes it
// already read ahead of the negotiation line.
func readNegotiationLine(r io.Reader) (string, io.Reader, error) {
	s := pktline.NewScanner(r)
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return "", nil, xerrors.Errorf("could not read negotiation line: %w", err)
		}
		return "", nil, xerrors.Errorf("upload-pack response ended before a negotiation line: %w", io.ErrUnexpectedEOF)
	}
	return strings.TrimSuffix(string(s.Bytes()), "\n"), s.Remainder(), nil
}

// closingReader wraps an io.Reader so closing it also closes the
// underlying HTTP response body once the caller is done with the
// pack stream.
type closingReader struct {
	io.Reader
	closer io.Closer
}

func (c *closingReader) Close() error {
	return c.closer.Close()
}
