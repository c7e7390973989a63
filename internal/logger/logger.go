// Package logger provides structured logging for pylambda.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus logger with a fixed set of base fields
type Logger struct {
	log    *logrus.Logger
	fields logrus.Fields
}

// Entry accumulates fields for a single log line
type Entry struct {
	level logrus.Level
	entry *logrus.Entry
}

// New creates a new logger writing to output (stderr when nil).
// Unknown levels fall back to info.
func New(level string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stderr
	}

	log := logrus.New()
	log.SetOutput(output)

	logLevel, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	log.SetFormatter(&logrus.TextFormatter{
		ForceColors:      isTerminal(output),
		DisableColors:    !isTerminal(output),
		DisableTimestamp: true,
		PadLevelText:     true,
	})

	return &Logger{log: log, fields: logrus.Fields{}}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return New("panic", io.Discard)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// With returns a child logger that adds the component field to every entry
func (l *Logger) With(component string) *Logger {
	fields := make(logrus.Fields, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields["component"] = component
	return &Logger{log: l.log, fields: fields}
}

// Writer returns the underlying output, used to stream subprocess output
func (l *Logger) Writer() io.Writer {
	return l.log.Out
}

// IsDebug reports whether debug entries are emitted
func (l *Logger) IsDebug() bool {
	return l.log.IsLevelEnabled(logrus.DebugLevel)
}

func (l *Logger) newEntry(level logrus.Level) *Entry {
	return &Entry{level: level, entry: l.log.WithFields(l.fields)}
}

// Debug starts a debug entry
func (l *Logger) Debug() *Entry {
	return l.newEntry(logrus.DebugLevel)
}

// Info starts an info entry
func (l *Logger) Info() *Entry {
	return l.newEntry(logrus.InfoLevel)
}

// Warn starts a warning entry
func (l *Logger) Warn() *Entry {
	return l.newEntry(logrus.WarnLevel)
}

// Error starts an error entry
func (l *Logger) Error() *Entry {
	return l.newEntry(logrus.ErrorLevel)
}

// Str adds a string field
func (e *Entry) Str(key, value string) *Entry {
	e.entry = e.entry.WithField(key, value)
	return e
}

// Strs adds a string slice field
func (e *Entry) Strs(key string, values []string) *Entry {
	e.entry = e.entry.WithField(key, strings.Join(values, ","))
	return e
}

// Int adds an int field
func (e *Entry) Int(key string, value int) *Entry {
	e.entry = e.entry.WithField(key, value)
	return e
}

// Int64 adds an int64 field
func (e *Entry) Int64(key string, value int64) *Entry {
	e.entry = e.entry.WithField(key, value)
	return e
}

// Bool adds a bool field
func (e *Entry) Bool(key string, value bool) *Entry {
	e.entry = e.entry.WithField(key, value)
	return e
}

// Err adds an error field
func (e *Entry) Err(err error) *Entry {
	if err != nil {
		e.entry = e.entry.WithError(err)
	}
	return e
}

// Dur adds a duration field in milliseconds
func (e *Entry) Dur(key string, duration time.Duration) *Entry {
	ms := float64(duration.Microseconds()) / 1000.0
	e.entry = e.entry.WithField(key, ms)
	return e
}

// Msg logs the message with accumulated fields
func (e *Entry) Msg(msg string) {
	e.entry.Log(e.level, msg)
}

// Msgf logs a formatted message with accumulated fields
func (e *Entry) Msgf(format string, args ...interface{}) {
	e.entry.Log(e.level, fmt.Sprintf(format, args...))
}
