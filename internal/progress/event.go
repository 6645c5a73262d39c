package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage names a lifecycle milestone.
type Stage string

// Supported stages.
const (
	StageJobQueued    Stage = "JOB_QUEUED"
	StageJobStart     Stage = "JOB_START"
	StageAcquired     Stage = "ACQUIRED"
	StageChunked      Stage = "CHUNKED"
	StageSummarized   Stage = "SUMMARIZED"
	StagePublished    Stage = "PUBLISHED"
	StageJobDone      Stage = "JOB_DONE"
	StageJobError     Stage = "JOB_ERROR"
	StageJobCancelled Stage = "JOB_CANCELLED"
)

// Event is one milestone of one job.
type Event struct {
	JobID           string    `json:"job_id"`
	ConversationKey string    `json:"conversation_key,omitempty"`
	TS              time.Time `json:"ts"`
	Stage           Stage     `json:"stage"`
	URL             string    `json:"url,omitempty"`
	// Source is the acquisition path of an ACQUIRED event.
	Source string `json:"source,omitempty"`
	// Chunks is the chunk count of a CHUNKED event.
	Chunks  int           `json:"chunks,omitempty"`
	Locator string        `json:"locator,omitempty"`
	Dur     time.Duration `json:"duration_ns,omitempty"`
	// Note carries the user-safe error text of a JOB_ERROR event.
	Note string `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobQueued, StageJobStart, StageSummarized, StagePublished,
		StageJobDone, StageJobError, StageJobCancelled:
	case StageAcquired:
		if e.Source == "" {
			return errors.New("acquired event requires source")
		}
	case StageChunked:
		if e.Chunks <= 0 {
			return errors.New("chunked event requires a positive chunk count")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// Terminal reports whether the event ends a job.
func (e Event) Terminal() bool {
	switch e.Stage {
	case StageJobDone, StageJobError, StageJobCancelled:
		return true
	default:
		return false
	}
}
