package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger: JSON when format is "json",
// console output otherwise.
func Setup(level, format string) {
	log.Logger = New(os.Stdout, format)
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// New builds a logger writing to w.
func New(w io.Writer, format string) zerolog.Logger {
	if strings.EqualFold(format, "json") {
		zerolog.TimeFieldFormat = time.RFC3339
		return zerolog.New(w).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

// ParseLevel falls back to info on bad input.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
