package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.elastic.co/ecszerolog"
)

// NewLogger returns a zerolog Logger.
// APP_ENV=dev (or development) uses a human-friendly console writer.
// format "ecs" emits Elastic Common Schema JSON regardless of env.
func NewLogger(env, format string) zerolog.Logger {
	return newLogger(os.Stdout, env, format)
}

func newLogger(w io.Writer, env, format string) zerolog.Logger {
	if format == "ecs" {
		return ecszerolog.New(w)
	}
	if env == "dev" || env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}
