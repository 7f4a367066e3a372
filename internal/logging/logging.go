// Package logging
// Author: momentics <momentics@gmail.com>
//
// Logger construction shared by the binaries. Library packages take a
// logrus.FieldLogger and default to Discard.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a logger writing to stderr. format is "text" or "json".
func New(level, format string) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if err := SetLevel(l, level); err != nil {
		return nil, err
	}
	if err := SetFormat(l, format); err != nil {
		return nil, err
	}
	return l, nil
}

// SetLevel parses and applies level; an empty level means info.
func SetLevel(l *logrus.Logger, level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)
	return nil
}

// SetFormat switches between the text and JSON formatters.
func SetFormat(l *logrus.Logger, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
