// Package logging builds the component loggers used across inkshelf.
//
// Every component gets a standard *log.Logger with a bracketed prefix. When a
// log file is configured, output goes to stderr and to a size-rotated file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where log output goes.
type Options struct {
	// File is the rotated log file; empty disables file logging.
	File string

	// MaxSizeMB is the size at which the file rotates (default: 10).
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (default: 3).
	MaxBackups int

	// Quiet drops the stderr copy.
	Quiet bool
}

// Sink is the shared destination for component loggers.
type Sink struct {
	w    io.Writer
	file *lumberjack.Logger
}

// Open creates a sink for opts.
func Open(opts Options) (*Sink, error) {
	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}

	s := &Sink{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		if opts.MaxSizeMB <= 0 {
			opts.MaxSizeMB = 10
		}
		if opts.MaxBackups <= 0 {
			opts.MaxBackups = 3
		}
		s.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, s.file)
	}

	switch len(writers) {
	case 0:
		s.w = io.Discard
	case 1:
		s.w = writers[0]
	default:
		s.w = io.MultiWriter(writers...)
	}
	return s, nil
}

// Logger returns a logger prefixed with "[component] ".
func (s *Sink) Logger(component string) *log.Logger {
	return New(s.w, component)
}

// Writer returns the underlying destination.
func (s *Sink) Writer() io.Writer {
	return s.w
}

// Close closes the log file, if any.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// New returns a logger writing to w with a "[component] " prefix.
func New(w io.Writer, component string) *log.Logger {
	prefix := ""
	if component != "" {
		prefix = "[" + component + "] "
	}
	return log.New(w, prefix, log.LstdFlags)
}
