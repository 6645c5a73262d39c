package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/progress"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.String("conversation_key", evt.ConversationKey),
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		if evt.Source != "" {
			fields = append(fields, zap.String("source", evt.Source))
		}
		if evt.Chunks > 0 {
			fields = append(fields, zap.Int("chunks", evt.Chunks))
		}
		if evt.Locator != "" {
			fields = append(fields, zap.String("locator", evt.Locator))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Stage == progress.StageJobError {
			s.logger.Warn("job progress", append(fields, zap.String("error", evt.Note))...)
			continue
		}
		s.logger.Info("job progress", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
