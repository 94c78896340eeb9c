// Package logging wraps logrus with the field conventions used throughout
// the engine: entries carry a "phase" field (Phase) and, where tagged with
// WithKind, an error-taxonomy "kind" field, streamed to stderr with
// timestamps (see spec §7, "User-visible behavior"). Callers log selected
// events only; not every phase transition or job state change is logged.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/config"
)

// Logger wraps logrus.Logger.
type Logger struct {
	*logrus.Logger
}

// New builds a Logger from LoggingConfig, always writing to stderr.
func New(cfg config.LoggingConfig) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetOutput(os.Stderr)

	return &Logger{Logger: l}
}

// NewDefault builds a Logger with sane defaults, for callers (tests, small
// tools) that do not have a full config.Config available.
func NewDefault() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text"})
}

// Phase returns a log entry tagged with the Realizer/Job-Handler phase name.
func (l *Logger) Phase(phase string) *logrus.Entry {
	return l.WithField("phase", phase)
}

// WithKind tags an existing log entry with an error-taxonomy kind (see
// internal/errs), so phase and kind fields can be chained:
// log.Phase("realize").WithField("kind", kind) or logging.WithKind(entry, kind).
func WithKind(entry *logrus.Entry, kind string) *logrus.Entry {
	return entry.WithField("kind", kind)
}
