package websum

import (
	"errors"
	"fmt"
)

// ErrorKind classifies acquisition failures.
type ErrorKind string

// Acquisition failure kinds.
const (
	KindNetwork       ErrorKind = "network"
	KindTimeout       ErrorKind = "timeout"
	KindUnsupported   ErrorKind = "unsupported"
	KindAuthMissing   ErrorKind = "auth_missing"
	KindRenderFailure ErrorKind = "render_failure"
)

// AcquisitionError reports why a page could not be acquired. Cause is safe to
// show to end users; Err keeps the underlying error for logs.
type AcquisitionError struct {
	Kind  ErrorKind
	Cause string
	Err   error
}

func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Cause, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// NewAcquisitionError builds an AcquisitionError of the given kind.
func NewAcquisitionError(kind ErrorKind, cause string, err error) *AcquisitionError {
	return &AcquisitionError{Kind: kind, Cause: cause, Err: err}
}

// NetworkError reports a transport-level failure.
func NetworkError(cause string, err error) *AcquisitionError {
	return NewAcquisitionError(KindNetwork, cause, err)
}

// TimeoutError reports an attempt that exceeded its deadline.
func TimeoutError(cause string, err error) *AcquisitionError {
	return NewAcquisitionError(KindTimeout, cause, err)
}

// UnsupportedError reports a URL or content type no strategy can handle.
func UnsupportedError(cause string, err error) *AcquisitionError {
	return NewAcquisitionError(KindUnsupported, cause, err)
}

// AuthMissingError reports content that needs credentials we do not have.
func AuthMissingError(cause string, err error) *AcquisitionError {
	return NewAcquisitionError(KindAuthMissing, cause, err)
}

// RenderFailureError reports a failure while processing a rendered page.
func RenderFailureError(cause string, err error) *AcquisitionError {
	return NewAcquisitionError(KindRenderFailure, cause, err)
}

// KindOf returns the kind of the first AcquisitionError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) {
		return acqErr.Kind, true
	}
	return "", false
}

// QueueScope tells which capacity ceiling rejected a submission.
type QueueScope string

// Queue scopes.
const (
	ScopeGlobal QueueScope = "global"
	ScopePerKey QueueScope = "per_key"
)

var (
	// ErrQueueFull matches rejections caused by the global queue ceiling.
	ErrQueueFull = &QueueFullError{Scope: ScopeGlobal}
	// ErrKeyQueueFull matches rejections caused by a per-conversation ceiling.
	ErrKeyQueueFull = &QueueFullError{Scope: ScopePerKey}
	// ErrJobCancelled is returned by pipelines that stopped on a cancellation flag.
	ErrJobCancelled = errors.New("job cancelled")
	// ErrJobNotFound is returned for unknown or evicted job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrSchedulerClosed is returned by Submit after shutdown began.
	ErrSchedulerClosed = errors.New("scheduler closed")
)

// QueueFullError is returned by Submit when a capacity ceiling is reached.
type QueueFullError struct {
	Scope QueueScope
	Limit int
}

func (e *QueueFullError) Error() string {
	if e.Scope == ScopePerKey {
		return fmt.Sprintf("conversation queue is full (limit %d)", e.Limit)
	}
	return fmt.Sprintf("global queue is full (limit %d)", e.Limit)
}

// Is matches any QueueFullError with the same scope.
func (e *QueueFullError) Is(target error) bool {
	t, ok := target.(*QueueFullError)
	return ok && t.Scope == e.Scope
}

// UserMessage renders err as a short cause without wrapped internals.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var acqErr *AcquisitionError
	if errors.As(err, &acqErr) {
		return fmt.Sprintf("%s: %s", acqErr.Kind, acqErr.Cause)
	}
	var qErr *QueueFullError
	if errors.As(err, &qErr) {
		return qErr.Error()
	}
	if errors.Is(err, ErrJobCancelled) {
		return ErrJobCancelled.Error()
	}
	return "processing failed: " + firstSegment(err.Error())
}

// firstSegment keeps the outermost message of a "a: b: c" wrapped error.
func firstSegment(msg string) string {
	for i := 0; i+1 < len(msg); i++ {
		if msg[i] == ':' && msg[i+1] == ' ' {
			return msg[:i]
		}
	}
	return msg
}
