package websum

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfThroughWrapping(t *testing.T) {
	t.Parallel()

	base := TimeoutError("navigation exceeded 45s", errors.New("context deadline exceeded"))
	wrapped := fmt.Errorf("acquire: %w", base)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, KindTimeout, kind)

	_, ok = KindOf(errors.New("plain"))
	require.False(t, ok)
}

func TestQueueFullErrorMatchesScope(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("submit: %w", &QueueFullError{Scope: ScopePerKey, Limit: 3})
	require.ErrorIs(t, err, ErrKeyQueueFull)
	require.NotErrorIs(t, err, ErrQueueFull)
}

func TestUserMessageRedactsInternals(t *testing.T) {
	t.Parallel()

	acq := NetworkError("navigation failed", errors.New("dial tcp 10.0.0.1:443: i/o timeout"))
	require.Equal(t, "network: navigation failed", UserMessage(fmt.Errorf("acquire: %w", acq)))
	require.Equal(t, "processing failed: publish note", UserMessage(errors.New("publish note: 502 from upstream")))
	require.Equal(t, "job cancelled", UserMessage(ErrJobCancelled))
	require.Empty(t, UserMessage(nil))
}

func TestJobStateTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, JobQueued.IsTerminal())
	require.False(t, JobRunning.IsTerminal())
	require.True(t, JobSucceeded.IsTerminal())
	require.True(t, JobFailed.IsTerminal())
	require.True(t, JobCancelled.IsTerminal())
}
