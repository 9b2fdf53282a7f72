package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const logTimeFormat = time.DateTime

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: logTimeFormat,
	}
}

// InitLogger configures the process logger; debug lowers the level so the
// engine's per-transfer detail becomes visible.
func InitLogger(debug bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger()
}

// GetLogger returns the process logger tagged with an engine component name
// (session, chunked, batch, ...).
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// SetLogOutput redirects all logging to w, keeping the console format.
func SetLogOutput(w io.Writer) {
	log.Logger = zerolog.New(consoleWriter(w)).With().Timestamp().Logger()
}
