package transport

import "strings"

// Capabilities the client retains and echoes back in its first
// want/push-command line, per SPEC_FULL.md's transport section.
const (
	CapOfsDelta      = "ofs-delta"
	CapSideband64k   = "side-band-64k"
	CapReportStatus  = "report-status"
	CapNoProgress    = "no-progress"
	CapMultiAckDelay = "multi_ack_detailed"
)

// ClientCapabilities builds the capability set this client offers for
// a fetch or push, omitting no-progress when progress is wanted.
func ClientCapabilities(interactive bool) []string {
	caps := []string{CapOfsDelta, CapSideband64k, CapMultiAckDelay, CapReportStatus}
	if !interactive {
		caps = append(caps, CapNoProgress)
	}
	return caps
}

// CapabilityList is a parsed, order-preserving set of capability
// tokens (some carry a "=value" suffix, e.g. "agent=git/2.40"; a few,
// like "symref", can repeat with different values).
type CapabilityList struct {
	tokens []string // raw "key" or "key=value" tokens, in advertised order
	values map[string]string
}

// ParseCapabilities splits a space-separated capability string from a
// ref advertisement's first line.
func ParseCapabilities(s string) *CapabilityList {
	caps := &CapabilityList{values: map[string]string{}}
	for _, tok := range strings.Fields(s) {
		caps.tokens = append(caps.tokens, tok)
		key, value, _ := strings.Cut(tok, "=")
		if _, seen := caps.values[key]; !seen {
			caps.values[key] = value
		}
	}
	return caps
}

// RepeatedValues returns the value half of every token whose key
// matches name, in advertised order - for capabilities like "symref"
// that the server may send more than once.
func (c *CapabilityList) RepeatedValues(name string) []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, tok := range c.tokens {
		key, value, ok := strings.Cut(tok, "=")
		if ok && key == name {
			out = append(out, value)
		}
	}
	return out
}

// Supports reports whether the server advertised the named
// capability.
func (c *CapabilityList) Supports(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.values[name]
	return ok
}

// Value returns a valued capability's payload (e.g. "agent").
func (c *CapabilityList) Value(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.values[name]
	return v, ok
}
