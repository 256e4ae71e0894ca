// Package logging builds the prefixed *log.Logger instances used across
// encryptic. Output goes to stderr, or to a size-rotated file when one is
// configured.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the log destination.
type Options struct {
	// File enables rotating file output. Empty logs to stderr.
	File string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Verbose copies file output to stderr as well.
	Verbose bool

	// Quiet discards everything. It wins over the other options.
	Quiet bool
}

// Output is a shared log destination.
type Output struct {
	w      io.Writer
	rotate *lumberjack.Logger
}

// Open creates the destination described by opts.
func Open(opts Options) (*Output, error) {
	if opts.Quiet {
		return &Output{w: io.Discard}, nil
	}
	if opts.File == "" {
		return &Output{w: os.Stderr}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
		return nil, err
	}

	rotate := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	out := &Output{w: rotate, rotate: rotate}
	if opts.Verbose {
		out.w = io.MultiWriter(os.Stderr, rotate)
	}
	return out, nil
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer {
	return o.w
}

// Logger returns a logger writing "[prefix] " lines.
func (o *Output) Logger(prefix string) *log.Logger {
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}
	return log.New(o.w, prefix, log.LstdFlags)
}

// Close flushes and closes the log file, if any.
func (o *Output) Close() error {
	if o.rotate == nil {
		return nil
	}
	return o.rotate.Close()
}
