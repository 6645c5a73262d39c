package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/progress"
)

// Notifier publishes a JSON payload with attributes.
type Notifier interface {
	Publish(ctx context.Context, payload any, attrs map[string]string) (string, error)
}

// PubSubSink forwards terminal events so other services learn when a note is ready.
type PubSubSink struct {
	notifier Notifier
	logger   *zap.Logger
}

// NewPubSubSink builds a PubSubSink.
func NewPubSubSink(n Notifier, logger *zap.Logger) *PubSubSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubSink{notifier: n, logger: logger}
}

// Consume publishes JOB_DONE, JOB_ERROR and JOB_CANCELLED events.
func (s *PubSubSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.notifier == nil {
		return nil
	}
	for _, evt := range batch {
		if !evt.Terminal() {
			continue
		}
		attrs := map[string]string{
			"stage":            string(evt.Stage),
			"job_id":           evt.JobID,
			"conversation_key": evt.ConversationKey,
		}
		id, err := s.notifier.Publish(ctx, evt, attrs)
		if err != nil {
			return fmt.Errorf("publish %s for job %s: %w", evt.Stage, evt.JobID, err)
		}
		s.logger.Debug("published job notification", zap.String("job_id", evt.JobID), zap.String("message_id", id))
	}
	return nil
}

// Close implements progress.Sink.
func (s *PubSubSink) Close(context.Context) error {
	return nil
}
