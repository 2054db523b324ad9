package transport

import (
	"bytes"
	"io"
	"strings"

	"github.com/puregit/git/oid"
	"github.com/puregit/git/transport/pktline"
)

// Command is a single ref update a push sends to the server: Old is
// the oid the client believes the ref currently points at (oid.Null
// for a new ref), New is the oid to set it to (oid.Null to delete).
type Command struct {
	Name string
	Old  oid.Oid
	New  oid.Oid
}

// BuildUploadPackRequest builds the want/have/done negotiation body
// for a fetch: one "want" line per wanted oid (capabilities riding on
// the first), a flush, up to len(haves) "have" lines, then "done".
func BuildUploadPackRequest(wants, haves []oid.Oid, caps []string) []byte {
	var buf bytes.Buffer
	for i, id := range wants {
		line := "want " + id.String()
		if i == 0 && len(caps) > 0 {
			line += " " + strings.Join(caps, " ")
		}
		_ = pktline.WriteString(&buf, line+"\n")
	}
	_ = pktline.WriteFlush(&buf)
	for _, id := range haves {
		_ = pktline.WriteString(&buf, "have "+id.String()+"\n")
	}
	_ = pktline.WriteString(&buf, "done\n")
	return buf.Bytes()
}

// BuildReceivePackHeader builds the pkt-line command list a push
// sends before the packfile: one "<old> <new> <refname>" line per
// command (capabilities riding on the first), flush-terminated.
func BuildReceivePackHeader(commands []Command, caps []string) []byte {
	var buf bytes.Buffer
	for i, cmd := range commands {
		line := cmd.Old.String() + " " + cmd.New.String() + " " + cmd.Name
		if i == 0 && len(caps) > 0 {
			line += "\x00" + strings.Join(caps, " ")
		}
		_ = pktline.WriteString(&buf, line+"\n")
	}
	_ = pktline.WriteFlush(&buf)
	return buf.Bytes()
}

// ReportStatus is the parsed response to a push: whether the server
// unpacked the incoming pack cleanly, and the per-command outcome.
type ReportStatus struct {
	UnpackOK      bool
	UnpackError   string
	OKRefs        []string
	CommandErrors map[string]string // refname -> reason, only for "ng" results
}

// ParseReportStatus reads a report-status response: "unpack ok" or
// "unpack <err>", then one "ok <ref>" / "ng <ref> <reason>" line per
// pushed command, flush-terminated.
func ParseReportStatus(r io.Reader) (*ReportStatus, error) {
	status := &ReportStatus{CommandErrors: map[string]string{}}
	s := pktline.NewScanner(r)
	first := true
	for s.Scan() {
		line := strings.TrimSuffix(string(s.Bytes()), "\n")
		if first {
			first = false
			if line == "unpack ok" {
				status.UnpackOK = true
			} else {
				status.UnpackError = strings.TrimPrefix(line, "unpack ")
			}
			continue
		}
		if ref, ok := strings.CutPrefix(line, "ok "); ok {
			status.OKRefs = append(status.OKRefs, ref)
			continue
		}
		if rest, ok := strings.CutPrefix(line, "ng "); ok {
			ref, reason, _ := strings.Cut(rest, " ")
			status.CommandErrors[ref] = reason
		}
	}
	return status, s.Err()
}
