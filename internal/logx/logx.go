// Package logx configures the process-wide logrus logger.
package logx

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options mirrors the log section of the config file.
type Options struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "json" or "text"
}

// New builds a logger writing to w. An empty or unknown level falls back to info.
func New(opts Options, w io.Writer) *logrus.Logger {
	if w == nil {
		w = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(w)

	lvl, err := logrus.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(opts.Format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
