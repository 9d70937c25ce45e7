// Package logging builds the structured loggers injected into lupa components.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Options configures a logger
type Options struct {
	Verbose bool      // debug level
	JSON    bool      // JSON lines instead of human-readable text
	Prefix  string    // component name shown before the message
	Writer  io.Writer // defaults to stderr
}

// New creates a logger that writes to stderr unless another writer is given
func New(opts Options) *log.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	level := log.InfoLevel
	if opts.Verbose {
		level = log.DebugLevel
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Prefix:          opts.Prefix,
	})
	if opts.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDiscard returns l, or a discarding logger when l is nil
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
