package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Format represents the logging output format
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Global logger instance
var defaultLogger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(textFormatter())
	return l
}

func textFormatter() logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	}
}

// SetFormat sets the logging format globally
func SetFormat(format Format) {
	switch format {
	case FormatJSON:
		defaultLogger.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	default:
		defaultLogger.SetFormatter(textFormatter())
	}
}

// SetLevel sets the minimum level by name (debug, info, warn, error)
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	defaultLogger.SetLevel(lvl)
	return nil
}

// SetWriter sets the output writer
func SetWriter(w io.Writer) {
	defaultLogger.SetOutput(w)
}

// For returns a logger entry tagged with the given component
func For(component string) *logrus.Entry {
	return defaultLogger.WithField("component", component)
}

// Info logs an info message
func Info(component, message string, data logrus.Fields) {
	For(component).WithFields(data).Info(message)
}

// ProbeResult logs a probe outcome at debug level
func ProbeResult(target string, sequence uint32, latencyMs *float64, errMsg *string) {
	entry := For("Probe").WithFields(logrus.Fields{
		"target":   target,
		"sequence": sequence,
	})
	if latencyMs != nil {
		entry.WithField("latency_ms", *latencyMs).Debugf("%s: %.2fms", target, *latencyMs)
		return
	}
	reason := ""
	if errMsg != nil {
		reason = *errMsg
	}
	entry.WithField("error", reason).Debugf("%s: FAILED - %s", target, reason)
}

// Error logs an error message
func Error(component, message string, err error) {
	entry := For(component)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(message)
}
