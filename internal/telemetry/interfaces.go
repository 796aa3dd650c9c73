package telemetry

import (
	"log"

	"github.com/sirupsen/logrus"

	"webmap/server/logging"
)

// Logger exposes the logging capabilities required by server components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// WrapLogrus adapts a logrus logger or entry to the Logger interface. Lines
// are emitted at info level.
func WrapLogrus(logger logrus.FieldLogger) Logger {
	return &logrusAdapter{logger: logger}
}

type logrusAdapter struct {
	logger logrus.FieldLogger
}

func (l *logrusAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Infof(format, args...)
}

// StandardLogger exposes a *log.Logger writing into logrus, for libraries
// that only accept the standard logger.
func (l *logrusAdapter) StandardLogger() *log.Logger {
	if l == nil || l.logger == nil {
		return nil
	}
	if base, ok := l.logger.(*logrus.Logger); ok {
		return log.New(base.WriterLevel(logrus.WarnLevel), "", 0)
	}
	if entry, ok := l.logger.(*logrus.Entry); ok {
		return log.New(entry.WriterLevel(logrus.WarnLevel), "", 0)
	}
	return nil
}

// Nop discards every line.
func Nop() Logger {
	return LoggerFunc(func(string, ...any) {})
}

// Metrics exposes the telemetry methods required by server components.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics adapts the logging router metrics into the Metrics interface.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}
