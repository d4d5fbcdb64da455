package adapters

import (
	"correio-ftp/internal/features/client/ports"

	"go.uber.org/zap"
)

// LogSink writes driver events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a new LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// OnEvent implements ports.EventSink.
func (s *LogSink) OnEvent(kind ports.EventKind, text string) {
	field := zap.String("event", kind.String())
	switch kind {
	case ports.EventError:
		s.logger.Error(text, field)
	case ports.EventWarn:
		s.logger.Warn(text, field)
	case ports.EventSent, ports.EventReceived:
		s.logger.Debug(text, field)
	default:
		s.logger.Info(text, field)
	}
}
