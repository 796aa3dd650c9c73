package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"webmap/server/logging"
)

// ConsoleSink renders events as logrus entries.
type ConsoleSink struct {
	logger *logrus.Logger
}

// NewConsoleSink writes through the provided logrus logger. A nil logger gets
// a text logger on w.
func NewConsoleSink(logger *logrus.Logger, w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	if logger == nil {
		logger = logrus.New()
		if w != nil {
			logger.SetOutput(w)
		}
		logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:      cfg.UseColor,
			DisableColors:    !cfg.UseColor,
			FullTimestamp:    true,
			DisableSorting:   false,
			QuoteEmptyFields: true,
		})
		logger.SetLevel(logrus.DebugLevel)
	}
	return &ConsoleSink{logger: logger}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	fields := logrus.Fields{
		"actor": formatEntity(event.Actor),
	}
	if event.Category != "" {
		fields["category"] = event.Category
	}
	if event.Subject != nil {
		fields["subject"] = formatEntity(*event.Subject)
	}
	if payload := formatPayload(event.Payload); payload != "" {
		fields["payload"] = payload
	}
	for k, v := range event.Fields {
		if _, exists := fields[k]; !exists {
			fields[k] = v
		}
	}
	entry := s.logger.WithFields(fields).WithTime(event.Time)
	msg := string(event.Type)
	switch event.Severity {
	case logging.SeverityDebug:
		entry.Debug(msg)
	case logging.SeverityWarn:
		entry.Warn(msg)
	case logging.SeverityError:
		entry.Error(msg)
	default:
		entry.Info(msg)
	}
	return nil
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}
