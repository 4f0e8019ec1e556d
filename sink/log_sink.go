package sink

import (
	"context"
	"log/slog"

	"ocr-lab/domain/event"
)

// LogSink writes the lifecycle stream to the structured logger. It is the
// minimal always-on observer of a recognition pipeline.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Consume(_ context.Context, e event.Event) error {
	switch e.Type {
	case event.Failed:
		s.log.Error("Processing failed", "correlation_id", e.CorrelationID, "payload", e.Payload)
	case event.Warning:
		s.log.Warn("Processing warning", "correlation_id", e.CorrelationID, "payload", e.Payload)
	case event.Completed:
		if p, ok := e.Payload.(event.CompletedPayload); ok {
			s.log.Info("Processing completed",
				"correlation_id", e.CorrelationID,
				"engine", p.Engine,
				"confidence", p.Confidence,
				"score", p.Score,
				"duration_ms", p.Duration.Milliseconds(),
			)
			return nil
		}
		s.log.Info("Processing completed", "correlation_id", e.CorrelationID)
	default:
		s.log.Debug("Processing event", "type", e.Type, "correlation_id", e.CorrelationID)
	}
	return nil
}
