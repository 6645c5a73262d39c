// Package memory provides an in-process job history for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/websum/internal/store"
)

// HistoryStore implements store.HistoryRepository with a map.
type HistoryStore struct {
	mu   sync.RWMutex
	jobs map[string]store.JobRecord
}

// NewHistoryStore constructs an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{jobs: make(map[string]store.JobRecord)}
}

// RecordQueued stores rec unless the id already exists.
func (s *HistoryStore) RecordQueued(_ context.Context, rec store.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[rec.ID]; exists {
		return nil
	}
	if rec.State == "" {
		rec.State = "queued"
	}
	s.jobs[rec.ID] = rec
	return nil
}

// MarkRunning sets the running state and start time.
func (s *HistoryStore) MarkRunning(_ context.Context, jobID string, at time.Time) error {
	return s.update(jobID, func(rec *store.JobRecord) {
		rec.State = "running"
		if rec.StartedAt == nil {
			rec.StartedAt = pointerTime(at)
		}
	})
}

// MarkAcquired records the acquisition source.
func (s *HistoryStore) MarkAcquired(_ context.Context, jobID, source string) error {
	return s.update(jobID, func(rec *store.JobRecord) {
		rec.Source = &source
	})
}

// Complete stores the terminal state.
func (s *HistoryStore) Complete(_ context.Context, jobID string, at time.Time, state string, locator, errMsg *string) error {
	return s.update(jobID, func(rec *store.JobRecord) {
		rec.State = state
		rec.FinishedAt = pointerTime(at)
		rec.Locator = copyString(locator)
		rec.ErrorMessage = copyString(errMsg)
	})
}

// Get returns a copy of the record.
func (s *HistoryStore) Get(_ context.Context, jobID string) (store.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return store.JobRecord{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *HistoryStore) update(jobID string, apply func(*store.JobRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	apply(&rec)
	s.jobs[jobID] = rec
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
