// Package log provides loggers for graph builders and runtimes.
package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DebugEnv is the environment variable that enables debug logging.
const DebugEnv = "GRAPH_DEBUG"

var debug bool

// Logger is a global interface for graph loggers.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
}

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv(DebugEnv))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Silent returns a logger that discards everything.
func Silent() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return l
}

// With returns a logger with the provided fields attached if the logger
// supports structured fields.
func With(l Logger, fields map[string]interface{}) Logger {
	if fl, ok := l.(logrus.FieldLogger); ok {
		return fl.WithFields(logrus.Fields(fields))
	}
	return l
}
