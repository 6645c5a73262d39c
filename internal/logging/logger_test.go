package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Parallel()

	for _, dev := range []bool{true, false} {
		logger, err := New(dev)
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Info("logger ready")
		_ = logger.Sync()
	}
}

func TestForJob(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	ForJob(zap.New(core), "job-1", "chat", "https://example.com").Info("hello")
	ForJob(zap.New(core), "job-2", "", "").Info("bare")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, map[string]any{
		"job_id":           "job-1",
		"conversation_key": "chat",
		"url":              "https://example.com",
	}, entries[0].ContextMap())
	require.Equal(t, map[string]any{"job_id": "job-2"}, entries[1].ContextMap())

	ForJob(nil, "x", "", "").Info("dropped")
}
