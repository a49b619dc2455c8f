// Package logging wires up the process-wide slog backend and hands out one
// named subsystem logger per component, mirroring how the decred tools in
// the retrieval pack (vhcwallet, vhcd) split logging by subsystem tag.
package logging

import (
	"io"
	"os"

	"github.com/decred/slog"
)

var backend = slog.NewBackend(os.Stdout)

// SetOutput redirects all subsystem loggers created from this point forward.
// Existing loggers keep writing to the backend they were created against, so
// callers should invoke SetOutput before Logger.
func SetOutput(w io.Writer) {
	backend = slog.NewBackend(w)
}

// Logger returns a named subsystem logger at the default level (Info).
// Conventional two-to-ten letter tags are used throughout, e.g. "TXPL" for
// the transaction pool, "CNSW" for the consensus worker.
func Logger(tag string) slog.Logger {
	l := backend.Logger(tag)
	l.SetLevel(slog.LevelInfo)
	return l
}

// SetLevels applies lvl to every logger passed in. Used by cmd/devvd to
// honor the --debuglevel flag.
func SetLevels(lvl slog.Level, loggers ...slog.Logger) {
	for _, l := range loggers {
		l.SetLevel(lvl)
	}
}

// ParseLevel maps the usual textual level names to slog.Level, falling back
// to slog.LevelInfo for anything unrecognized.
func ParseLevel(name string) slog.Level {
	if lvl, ok := slog.LevelFromString(name); ok {
		return lvl
	}
	return slog.LevelInfo
}
