// Package logging builds the zerolog loggers shared by the harness binaries
// and the fixture app.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a JSON logger writing to stderr.
func New(debug bool) zerolog.Logger {
	return zerolog.New(os.Stderr).Level(level(debug)).With().Timestamp().Logger()
}

// NewConsole returns a human-readable logger tagged with tag.
func NewConsole(debug bool, tag string) zerolog.Logger {
	return newConsole(os.Stdout, debug, tag, false)
}

// Discard returns a logger that drops everything.
func Discard() zerolog.Logger {
	return zerolog.Nop()
}

func newConsole(w io.Writer, debug bool, tag string, noColor bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05.0000",
		NoColor:    noColor,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			"s",
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"s"},
	}
	return zerolog.New(output).
		Level(level(debug)).
		With().
		Timestamp().
		Str("s", tag).
		Logger()
}

func level(debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
