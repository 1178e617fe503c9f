// Package logging configures the process-wide zerolog logger. Case logging
// is metadata-only throughout the repo: case ids, statuses, counts and
// artifact keys are fine, raw field values and vault contents are not.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger. Level accepts the usual zerolog
// names; unknown values fall back to info. When pretty is set, output goes
// through the console writer for local runs.
func Setup(level string, pretty bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	log.Logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// CaseLogger returns a logger bound to one case id. Every pipeline stage
// logs through one of these so a case's lifecycle can be grepped by id.
func CaseLogger(caseID string) zerolog.Logger {
	return log.With().Str("case", caseID).Logger()
}
