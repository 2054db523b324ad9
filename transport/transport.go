// Package transport implements the git wire protocol shared by the
// smart-HTTP, SSH, and plain-git adapters: endpoint parsing, pkt-line
// capability and ref-advertisement handling, fetch/push negotiation,
// side-band demultiplexing, and a streaming pack receiver. Adapters
// under httptransport, sshtransport, and gittransport each implement
// Transport by spawning or dialing the right upload-pack/receive-pack
// service and handing its stdio (or response body) to this package's
// shared negotiation logic.
package transport

import (
	"context"
	"io"

	"github.com/puregit/git/oid"
)

// Service names the two git network services an endpoint exposes.
type Service string

// The two services git's smart protocol speaks over any transport.
const (
	UploadPackService  Service = "git-upload-pack"
	ReceivePackService Service = "git-receive-pack"
)

// UploadPackRequest is everything a fetch needs to send once the ref
// advertisement has been read: the objects wanted, the objects
// already held locally, and an optional sink for progress text.
type UploadPackRequest struct {
	Wants    []oid.Oid
	Haves    []oid.Oid
	Progress io.Writer
}

// UploadPackResponse is a fetch's result: the pack bytes (already
// demultiplexed off the side-band, when the server used it) and the
// negotiation status line it led with (e.g. "NAK" or "ACK <oid>").
type UploadPackResponse struct {
	Negotiation string
	Pack        io.Reader
}

// ReceivePackRequest is everything a push needs to send: the ref
// updates to apply and the packfile bytes containing any new objects
// they require.
type ReceivePackRequest struct {
	Commands []Command
	Pack     io.Reader
	Progress io.Writer
}

// Transport is the interface every concrete adapter (smart-HTTP, SSH,
// plain git://) implements: discover what a remote has, then either
// pull a pack from it or push one to it.
type Transport interface {
	// Endpoint returns the remote this Transport talks to.
	Endpoint() *Endpoint

	// AdvertiseRefs opens a connection to svc and reads back its ref
	// advertisement without performing a fetch or push.
	AdvertiseRefs(ctx context.Context, svc Service) (*RefAdvertisement, error)

	// UploadPack performs a fetch: it negotiates wants/haves against
	// the server and returns the resulting pack stream.
	UploadPack(ctx context.Context, req *UploadPackRequest) (*UploadPackResponse, error)

	// ReceivePack performs a push: it sends the given ref commands
	// and pack bytes, and returns the server's report-status.
	ReceivePack(ctx context.Context, req *ReceivePackRequest) (*ReportStatus, error)

	// Close releases any resources (open connections, subprocesses)
	// held by the transport.
	Close() error
}
