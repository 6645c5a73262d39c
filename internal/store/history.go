package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("job record not found")

// JobRecord is one row of job history. Page content is never stored.
type JobRecord struct {
	ID              string
	ConversationKey string
	URL             string
	State           string
	SubmittedAt     time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	Source          *string
	Locator         *string
	ErrorMessage    *string
}

// HistoryRepository persists job lifecycle transitions.
type HistoryRepository interface {
	// RecordQueued inserts a job in the queued state; repeated calls are no-ops.
	RecordQueued(ctx context.Context, rec JobRecord) error
	MarkRunning(ctx context.Context, jobID string, at time.Time) error
	// MarkAcquired records which acquisition path produced the document.
	MarkAcquired(ctx context.Context, jobID, source string) error
	// Complete stores the terminal state with an optional locator or error.
	Complete(ctx context.Context, jobID string, at time.Time, state string, locator, errMsg *string) error
	Get(ctx context.Context, jobID string) (JobRecord, error)
}
