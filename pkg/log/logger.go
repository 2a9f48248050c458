package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logrus instance. It is usable before Init with
// logrus defaults so that packages can log from tests.
var Logger = logrus.New()

// Init configures the shared logger. Unknown levels fall back to info and
// unknown formats fall back to JSON.
func Init(level, format string) {
	Configure(Logger, os.Stdout, level, format)
}

// Configure applies output, level and formatter settings to l.
func Configure(l *logrus.Logger, out io.Writer, level, format string) {
	l.SetOutput(out)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	l.SetLevel(logLevel)
}

// WithComponent returns an entry tagged with the owning component name.
func WithComponent(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}

// Convenience functions
func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	Logger.Fatalf(format, args...)
}
