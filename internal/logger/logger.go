// Package logger configures the process-wide zerolog logger.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init replaces the global logger with a console writer tagged with the
// service name. Call once from main before anything logs.
func Init(service string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Get returns the global logger annotated with the caller location.
func Get() zerolog.Logger {
	return log.With().Caller().Logger()
}
