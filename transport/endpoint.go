package transport

import (
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Endpoint is a parsed remote URL: enough to pick an adapter
// (http/https/ssh/git) and address the repository on it.
type Endpoint struct {
	Protocol string
	User     string
	Host     string
	Port     int
	Path     string
}

// ErrUnsupportedProtocol is returned when a URL's scheme doesn't map
// to one of the three adapters this package supports.
var ErrUnsupportedProtocol = xerrors.New("unsupported transport protocol")

// ParseEndpoint parses an http(s)://, ssh://, git://, or scp-like
// (user@host:path) remote URL.
func ParseEndpoint(raw string) (*Endpoint, error) {
	if ep, ok := parseSCPLike(raw); ok {
		return ep, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, xerrors.Errorf("could not parse endpoint %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https", "ssh", "git":
	default:
		return nil, xerrors.Errorf("%q: %w", u.Scheme, ErrUnsupportedProtocol)
	}

	ep := &Endpoint{
		Protocol: u.Scheme,
		Host:     u.Hostname(),
		Path:     u.Path,
	}
	if u.User != nil {
		ep.User = u.User.Username()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, xerrors.Errorf("invalid port %q: %w", p, err)
		}
		ep.Port = port
	}
	return ep, nil
}

// parseSCPLike recognizes git's scp-style shorthand, [user@]host:path,
// which url.Parse can't: a bare host:path has no scheme to dispatch
// on. It's only attempted when raw contains no "://", since that's
// how git itself tells the two shapes apart.
func parseSCPLike(raw string) (*Endpoint, bool) {
	if strings.Contains(raw, "://") {
		return nil, false
	}
	at := strings.Index(raw, "@")
	colon := strings.Index(raw, ":")
	if colon < 0 || (at >= 0 && colon < at) {
		return nil, false
	}

	ep := &Endpoint{Protocol: "ssh"}
	hostPart := raw[:colon]
	ep.Path = raw[colon+1:]

	if at >= 0 {
		ep.User = hostPart[:at]
		ep.Host = hostPart[at+1:]
	} else {
		ep.Host = hostPart
	}
	return ep, true
}

// String renders the endpoint back to a URL-shaped string, mainly for
// logging.
func (e *Endpoint) String() string {
	var sb strings.Builder
	sb.WriteString(e.Protocol)
	sb.WriteString("://")
	if e.User != "" {
		sb.WriteString(e.User)
		sb.WriteByte('@')
	}
	sb.WriteString(e.Host)
	if e.Port != 0 {
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(e.Port))
	}
	sb.WriteString(e.Path)
	return sb.String()
}
