package websum

import "time"

// JobState captures lifecycle transitions for a summarization job.
type JobState string

// Supported job states.
const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// IsTerminal reports whether no further transitions can occur.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobSucceeded, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is one URL submitted on behalf of a conversation.
type Job struct {
	ID              string    `json:"job_id"`
	ConversationKey string    `json:"conversation_key"`
	URL             string    `json:"url"`
	State           JobState  `json:"state"`
	SubmittedAt     time.Time `json:"submitted_at"`
	StartedAt       time.Time `json:"started_at,omitzero"`
	FinishedAt      time.Time `json:"finished_at,omitzero"`
	Error           string    `json:"error,omitempty"`
	Locator         string    `json:"locator,omitempty"`
}
