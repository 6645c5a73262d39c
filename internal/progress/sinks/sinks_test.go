package sinks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/websum/internal/progress"
	"github.com/JakeFAU/websum/internal/store"
)

var ts = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func lifecycle(id string, last progress.Event) []progress.Event {
	return []progress.Event{
		{JobID: id, ConversationKey: "chat-1", TS: ts, Stage: progress.StageJobQueued, URL: "https://example.com"},
		{JobID: id, TS: ts.Add(time.Second), Stage: progress.StageJobStart},
		{JobID: id, TS: ts.Add(2 * time.Second), Stage: progress.StageAcquired, Source: "headless"},
		{JobID: id, TS: ts.Add(3 * time.Second), Stage: progress.StageChunked, Chunks: 3},
		last,
	}
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	batch := lifecycle("job-1", progress.Event{JobID: "job-1", TS: ts, Stage: progress.StageJobError, Note: "boom"})

	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, len(batch))
	last := entries[len(entries)-1]
	require.Equal(t, zap.WarnLevel, last.Level)
	require.Equal(t, "boom", last.ContextMap()["error"])
	require.Equal(t, "headless", entries[2].ContextMap()["source"])
}

func TestPrometheusSink(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Consume(ctx, lifecycle("a", progress.Event{JobID: "a", TS: ts, Stage: progress.StageJobDone, Dur: 4 * time.Second})))
	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{JobID: "b", TS: ts, Stage: progress.StageJobStart},
		{JobID: "b", TS: ts, Stage: progress.StageJobStart},
	}))

	require.InDelta(t, 1, testutil.ToFloat64(sink.jobsQueued), 0)
	require.InDelta(t, 3, testutil.ToFloat64(sink.jobsStarted), 0)
	require.InDelta(t, 1, testutil.ToFloat64(sink.jobsRunning), 0)
	require.InDelta(t, 1, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("succeeded")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(sink.acquired.WithLabelValues("headless")), 0)

	require.NoError(t, sink.Consume(ctx, []progress.Event{
		{JobID: "b", TS: ts, Stage: progress.StageJobCancelled},
		{JobID: "b", TS: ts, Stage: progress.StageJobCancelled},
	}))
	require.InDelta(t, 0, testutil.ToFloat64(sink.jobsRunning), 0)
	require.InDelta(t, 2, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("cancelled")), 0)

	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

type call struct {
	op      string
	id      string
	state   string
	source  string
	locator *string
	errMsg  *string
}

type fakeRepo struct {
	mu    sync.Mutex
	calls []call
	fail  error
}

func (f *fakeRepo) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.fail
}

func (f *fakeRepo) RecordQueued(_ context.Context, rec store.JobRecord) error {
	return f.record(call{op: "queued", id: rec.ID, state: rec.State})
}

func (f *fakeRepo) MarkRunning(_ context.Context, id string, _ time.Time) error {
	return f.record(call{op: "running", id: id})
}

func (f *fakeRepo) MarkAcquired(_ context.Context, id, source string) error {
	return f.record(call{op: "acquired", id: id, source: source})
}

func (f *fakeRepo) Complete(_ context.Context, id string, _ time.Time, state string, locator, errMsg *string) error {
	return f.record(call{op: "complete", id: id, state: state, locator: locator, errMsg: errMsg})
}

func (f *fakeRepo) Get(context.Context, string) (store.JobRecord, error) {
	return store.JobRecord{}, store.ErrNotFound
}

func TestStoreSinkTransitions(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	sink := NewStoreSink(repo, nil)
	batch := lifecycle("job-1", progress.Event{JobID: "job-1", TS: ts, Stage: progress.StageJobDone, Locator: "memory://1"})

	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Len(t, repo.calls, 4)
	require.Equal(t, "queued", repo.calls[0].op)
	require.Equal(t, "queued", repo.calls[0].state)
	require.Equal(t, "running", repo.calls[1].op)
	require.Equal(t, "headless", repo.calls[2].source)
	done := repo.calls[3]
	require.Equal(t, "succeeded", done.state)
	require.NotNil(t, done.locator)
	require.Equal(t, "memory://1", *done.locator)
	require.Nil(t, done.errMsg)
}

func TestStoreSinkFailureAndCancel(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	sink := NewStoreSink(repo, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "x", TS: ts, Stage: progress.StageJobError, Note: "unreachable"},
		{JobID: "y", TS: ts, Stage: progress.StageJobCancelled},
	}))
	require.Equal(t, "failed", repo.calls[0].state)
	require.Equal(t, "unreachable", *repo.calls[0].errMsg)
	require.Nil(t, repo.calls[0].locator)
	require.Equal(t, "cancelled", repo.calls[1].state)
	require.Nil(t, repo.calls[1].errMsg)

	repo.fail = errors.New("db down")
	err := sink.Consume(context.Background(), []progress.Event{
		{JobID: "z", TS: ts, Stage: progress.StageJobStart},
		{JobID: "z", TS: ts, Stage: progress.StageJobDone},
	})
	require.ErrorContains(t, err, "db down")
	require.Len(t, repo.calls, 3)

	require.NoError(t, NewStoreSink(nil, nil).Consume(context.Background(), []progress.Event{{JobID: "n"}}))
}

type fakeNotifier struct {
	payloads []any
	attrs    []map[string]string
	err      error
}

func (f *fakeNotifier) Publish(_ context.Context, payload any, attrs map[string]string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, payload)
	f.attrs = append(f.attrs, attrs)
	return "msg-1", nil
}

func TestPubSubSinkPublishesTerminalEvents(t *testing.T) {
	t.Parallel()

	n := &fakeNotifier{}
	sink := NewPubSubSink(n, nil)
	batch := lifecycle("job-1", progress.Event{JobID: "job-1", ConversationKey: "chat-1", TS: ts, Stage: progress.StageJobDone, Locator: "gs://b/o.md"})

	require.NoError(t, sink.Consume(context.Background(), batch))
	require.Len(t, n.payloads, 1)
	evt, ok := n.payloads[0].(progress.Event)
	require.True(t, ok)
	require.Equal(t, "gs://b/o.md", evt.Locator)
	require.Equal(t, map[string]string{
		"stage":            "JOB_DONE",
		"job_id":           "job-1",
		"conversation_key": "chat-1",
	}, n.attrs[0])

	n.err = errors.New("topic gone")
	err := sink.Consume(context.Background(), []progress.Event{{JobID: "j", TS: ts, Stage: progress.StageJobError}})
	require.ErrorContains(t, err, "topic gone")
}
