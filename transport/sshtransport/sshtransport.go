// Package sshtransport implements transport.Transport by spawning
// git-upload-pack/git-receive-pack over an SSH session, the way the
// git command itself does against a bare ssh:// or scp-like remote.
// Grounded on go-git's plumbing/transport/ssh package: per-host
// resolution through kevinburke/ssh_config, host key verification
// through skeema/knownhosts, and agent-based auth through
// xanzy/ssh-agent are all carried over from there.
package sshtransport

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
	"github.com/skeema/knownhosts"
	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"
	"golang.org/x/xerrors"

	"github.com/puregit/git/transport"
	"github.com/puregit/git/transport/pktline"
	"github.com/puregit/git/transport/sideband"
)

// DefaultPort is the port git assumes when an SSH endpoint doesn't
// name one, and ssh_config has no Port override for the host either.
const DefaultPort = 22

// sshConfig is the subset of ssh_config's API this package depends
// on, so a test can substitute a fake without touching real files.
type sshConfig interface {
	Get(alias, key string) string
}

// DefaultSSHConfig resolves Hostname/Port overrides from the user's
// ssh_config files (~/.ssh/config and /etc/ssh/ssh_config). Set to
// nil to ignore ssh_config entirely.
var DefaultSSHConfig sshConfig = ssh_config.DefaultUserSettings

// Transport is a transport.Transport that spawns the git service
// commands over an SSH connection.
type Transport struct {
	endpoint *transport.Endpoint
	config   *ssh.ClientConfig
	client   *ssh.Client
}

var _ transport.Transport = (*Transport)(nil)

// New dials ep over SSH using config. If config.Auth is unset, it is
// filled in from an ssh-agent connection (the same default go-git's
// ssh transport uses), and if config.HostKeyCallback is unset, it is
// filled in from the user's known_hosts files.
func New(ctx context.Context, ep *transport.Endpoint, config *ssh.ClientConfig) (*Transport, error) {
	if config == nil {
		config = &ssh.ClientConfig{}
	}
	if config.User == "" {
		config.User = ep.User
	}
	if config.User == "" {
		config.User = "git"
	}

	var agentConn net.Conn
	if len(config.Auth) == 0 {
		auth, conn, err := agentAuth()
		if err != nil {
			return nil, xerrors.Errorf("no explicit auth and no ssh-agent available: %w", err)
		}
		config.Auth = []ssh.AuthMethod{auth}
		agentConn = conn
	}
	if agentConn != nil {
		defer agentConn.Close() //nolint:errcheck
	}

	if config.HostKeyCallback == nil {
		files, err := defaultKnownHostsFiles()
		if err != nil {
			return nil, xerrors.Errorf("could not resolve known_hosts files: %w", err)
		}
		db, err := knownhosts.NewDB(files...)
		if err != nil {
			return nil, xerrors.Errorf("could not load known_hosts: %w", err)
		}
		config.HostKeyCallback = db.HostKeyCallback()
		config.HostKeyAlgorithms = db.HostKeyAlgorithms(hostWithPort(ep))
	}

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", hostWithPort(ep))
	if err != nil {
		return nil, xerrors.Errorf("could not dial %s: %w", hostWithPort(ep), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, hostWithPort(ep), config)
	if err != nil {
		return nil, xerrors.Errorf("ssh handshake failed: %w", err)
	}

	return &Transport{endpoint: ep, config: config, client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

// defaultKnownHostsFiles resolves which known_hosts files to load,
// honoring SSH_KNOWN_HOSTS (colon-separated) and otherwise falling
// back to the two files ssh itself checks, keeping only the ones
// that actually exist.
func defaultKnownHostsFiles() ([]string, error) {
	var candidates []string
	if env := os.Getenv("SSH_KNOWN_HOSTS"); env != "" {
		candidates = filepath.SplitList(env)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, xerrors.Errorf("could not resolve home directory: %w", err)
		}
		candidates = []string{
			filepath.Join(home, ".ssh", "known_hosts"),
			"/etc/ssh/ssh_known_hosts",
		}
	}

	var files []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, xerrors.New("no known_hosts file found; set SSH_KNOWN_HOSTS")
	}
	return files, nil
}

func agentAuth() (ssh.AuthMethod, net.Conn, error) {
	agentClient, conn, err := sshagent.New()
	if err != nil {
		return nil, nil, xerrors.Errorf("could not connect to ssh-agent: %w", err)
	}
	return ssh.PublicKeysCallback(agentClient.Signers), conn, nil
}

// hostWithPort resolves the host:port to dial, preferring an
// ssh_config override over the endpoint's own Host/Port.
func hostWithPort(ep *transport.Endpoint) string {
	host, port := ep.Host, ep.Port
	if DefaultSSHConfig != nil {
		if h := DefaultSSHConfig.Get(ep.Host, "Hostname"); h != "" {
			host = h
		}
		if p := DefaultSSHConfig.Get(ep.Host, "Port"); p != "" {
			if n, err := strconv.Atoi(p); err == nil {
				port = n
			}
		}
	}
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Endpoint implements transport.Transport.
func (t *Transport) Endpoint() *transport.Endpoint {
	return t.endpoint
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	return t.client.Close()
}

func (t *Transport) runService(ctx context.Context, svc transport.Service) (*ssh.Session, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return nil, xerrors.Errorf("could not open ssh session: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = session.Close()
	}()
	cmd := string(svc) + " '" + t.endpoint.Path + "'"
	if err := session.Start(cmd); err != nil {
		_ = session.Close()
		return nil, xerrors.Errorf("could not start %s: %w", svc, err)
	}
	return session, nil
}

// AdvertiseRefs implements transport.Transport: it starts the
// service, reads the ref advertisement, and closes the session
// immediately rather than continuing into a fetch or push.
func (t *Transport) AdvertiseRefs(ctx context.Context, svc transport.Service) (*transport.RefAdvertisement, error) {
	session, err := t.runService(ctx, svc)
	if err != nil {
		return nil, err
	}
	defer session.Close() //nolint:errcheck

	out, err := session.StdoutPipe()
	if err != nil {
		return nil, xerrors.Errorf("could not open stdout pipe: %w", err)
	}
	return transport.ParseRefAdvertisement(out)
}

// UploadPack implements transport.Transport.
func (t *Transport) UploadPack(ctx context.Context, req *transport.UploadPackRequest) (*transport.UploadPackResponse, error) {
	session, err := t.runService(ctx, transport.UploadPackService)
	if err != nil {
		return nil, err
	}

	out, err := session.StdoutPipe()
	if err != nil {
		session.Close() //nolint:errcheck
		return nil, xerrors.Errorf("could not open stdout pipe: %w", err)
	}
	in, err := session.StdinPipe()
	if err != nil {
		session.Close() //nolint:errcheck
		return nil, xerrors.Errorf("could not open stdin pipe: %w", err)
	}

	s := pktline.NewScanner(out)
	if _, err := transport.ParseRefAdvertisementFrom(s); err != nil {
		session.Close() //nolint:errcheck
		return nil, xerrors.Errorf("could not read ref advertisement: %w", err)
	}

	body := transport.BuildUploadPackRequest(req.Wants, req.Haves, transport.ClientCapabilities(req.Progress != nil))
	if _, err := in.Write(body); err != nil {
		session.Close() //nolint:errcheck
		return nil, xerrors.Errorf("could not send want/have negotiation: %w", err)
	}

	// A fresh Scanner over s's remainder, rather than reusing s itself:
	// Scan permanently stops once it hits the advertisement's
	// terminating flush, so continuing into the next flush-delimited
	// section needs a new Scanner wrapping whatever s had buffered
	// ahead of that flush.
	negotiationScanner := pktline.NewScanner(s.Remainder())
	if !negotiationScanner.Scan() {
		session.Close() //nolint:errcheck
		return nil, xerrors.Errorf("upload-pack response ended before a negotiation line: %w", negotiationScanner.Err())
	}
	negotiation := strings.TrimSuffix(string(negotiationScanner.Bytes()), "\n")

	demux := sideband.NewDemuxer(negotiationScanner.Remainder())
	demux.Progress = req.Progress

	return &transport.UploadPackResponse{
		Negotiation: negotiation,
		Pack:        &sessionReader{Demuxer: demux, session: session},
	}, nil
}

// ReceivePack implements transport.Transport.
func (t *Transport) ReceivePack(ctx context.Context, req *transport.ReceivePackRequest) (*transport.ReportStatus, error) {
	session, err := t.runService(ctx, transport.ReceivePackService)
	if err != nil {
		return nil, err
	}
	defer session.Close() //nolint:errcheck

	out, err := session.StdoutPipe()
	if err != nil {
		return nil, xerrors.Errorf("could not open stdout pipe: %w", err)
	}
	in, err := session.StdinPipe()
	if err != nil {
		return nil, xerrors.Errorf("could not open stdin pipe: %w", err)
	}

	s := pktline.NewScanner(out)
	if _, err := transport.ParseRefAdvertisementFrom(s); err != nil {
		return nil, xerrors.Errorf("could not read ref advertisement: %w", err)
	}

	header := transport.BuildReceivePackHeader(req.Commands, transport.ClientCapabilities(req.Progress != nil))
	if _, err := in.Write(header); err != nil {
		return nil, xerrors.Errorf("could not send push commands: %w", err)
	}
	if req.Pack != nil {
		if _, err := io.Copy(in, req.Pack); err != nil {
			return nil, xerrors.Errorf("could not send pack: %w", err)
		}
	}
	if err := in.Close(); err != nil {
		return nil, xerrors.Errorf("could not close stdin: %w", err)
	}

	return transport.ParseReportStatus(s.Remainder())
}

// sessionReader closes its ssh.Session once the caller is done
// reading the pack, freeing the connection the way closing an HTTP
// response body does for httptransport.
type sessionReader struct {
	*sideband.Demuxer
	session *ssh.Session
}

func (r *sessionReader) Close() error {
	return r.session.Close()
}
