// Package logging configures the structured, field-tagged logging
// used around the engine's long-running operations (pack installs,
// commit-graph rebuilds, smart-transport round trips) instead of bare
// fmt.Println/log calls. Built on github.com/sirupsen/logrus.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// std is the package-level logger every New call derives an Entry
// from, so a single Configure call affects every component's logger.
var std = logrus.New()

func init() {
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	std.SetOutput(os.Stderr)
	std.SetLevel(logrus.InfoLevel)
}

// Options configures the package-level logger.
type Options struct {
	// Level is one of logrus's level names ("debug", "info", "warn",
	// "error"); an unrecognized or empty value leaves the current
	// level untouched.
	Level string
	// JSON switches the output formatter to structured JSON, for
	// environments that ingest logs rather than display them.
	JSON bool
	// Output redirects where log lines are written; defaults to
	// os.Stderr.
	Output io.Writer
}

// Configure applies opts to the package-level logger. It's meant to be
// called once, early, from cmd/puregit before any component logger is
// used.
func Configure(opts Options) error {
	if opts.Level != "" {
		level, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return err
		}
		std.SetLevel(level)
	}
	if opts.JSON {
		std.SetFormatter(&logrus.JSONFormatter{})
	}
	if opts.Output != nil {
		std.SetOutput(opts.Output)
	}
	return nil
}

// New returns a logger entry tagged with component, the way each
// package (packwriter, commitgraph, transport) identifies its log
// lines: e.g. logging.New("packwriter").WithField("pack", hash).
func New(component string) *logrus.Entry {
	return std.WithField("component", component)
}
