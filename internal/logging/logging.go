// Package logging wires up zerolog exactly as the teacher repo's
// cmd/service/main.go setupLogger does: level parsed from config, a
// console writer in development, structured JSON otherwise. Every log
// line is stamped with a per-process run id (google/uuid), mirroring the
// teacher's middleware/requestid.go correlation pattern for a system
// that has no HTTP requests to hang a request id off of.
package logging

import (
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/gassaver/internal/config"
)

// New builds a zerolog.Logger per cfg.
func New(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var base zerolog.Logger
	if cfg.Format == "console" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	return base.With().Str("run_id", uuid.New().String()).Logger()
}
