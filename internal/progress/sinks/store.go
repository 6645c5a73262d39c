package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/progress"
	"github.com/JakeFAU/websum/internal/store"
)

// StoreSink records job transitions in a store.HistoryRepository.
type StoreSink struct {
	repo   store.HistoryRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.HistoryRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies each event in order and stops at the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if err := s.apply(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) apply(ctx context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageJobQueued:
		rec := store.JobRecord{
			ID:              evt.JobID,
			ConversationKey: evt.ConversationKey,
			URL:             evt.URL,
			State:           "queued",
			SubmittedAt:     evt.TS,
		}
		if err := s.repo.RecordQueued(ctx, rec); err != nil {
			return fmt.Errorf("record queued job: %w", err)
		}
	case progress.StageJobStart:
		if err := s.repo.MarkRunning(ctx, evt.JobID, evt.TS); err != nil {
			return fmt.Errorf("mark job running: %w", err)
		}
	case progress.StageAcquired:
		if err := s.repo.MarkAcquired(ctx, evt.JobID, evt.Source); err != nil {
			return fmt.Errorf("mark job acquired: %w", err)
		}
	case progress.StageJobDone:
		return s.complete(ctx, evt, "succeeded", optional(evt.Locator), nil)
	case progress.StageJobError:
		return s.complete(ctx, evt, "failed", nil, optional(evt.Note))
	case progress.StageJobCancelled:
		return s.complete(ctx, evt, "cancelled", nil, nil)
	}
	return nil
}

func (s *StoreSink) complete(ctx context.Context, evt progress.Event, state string, locator, note *string) error {
	if err := s.repo.Complete(ctx, evt.JobID, evt.TS, state, locator, note); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Close implements progress.Sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
