package progress

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageJobQueued))
	hub.Emit(sampleEvent(StageJobStart))
	require.Eventually(t, func() bool {
		b := sink.Batches()
		return len(b) == 1 && len(b[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageJobStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubEmitNonBlockingWhenFull(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageJobStart))
	hub.Emit(sampleEvent(StageJobStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(2), hub.Dropped())
}

func TestHubFlushOnCloseAndIgnoresLateEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageJobStart))
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	hub.Emit(sampleEvent(StageJobDone))

	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	require.True(t, sink.closed)
}

func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{MaxBatchWait: time.Minute}, sink)

	hub.Emit(Event{Stage: StageJobStart})
	hub.Emit(Event{JobID: "j", Stage: StageAcquired})
	hub.Emit(Event{JobID: "j", Stage: "BOGUS"})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	require.NoError(t, Event{JobID: "j", TS: now, Stage: StageChunked, Chunks: 3}.Validate())
	require.Error(t, Event{JobID: "j", TS: now, Stage: StageChunked}.Validate())
	require.NoError(t, Event{JobID: "j", TS: now, Stage: StageAcquired, Source: "headless"}.Validate())
	require.Error(t, Event{JobID: "j", TS: now, Stage: StageJobDone, Dur: -time.Second}.Validate())
	require.Error(t, Event{TS: now, Stage: StageJobDone}.Validate())

	require.True(t, Event{Stage: StageJobCancelled}.Terminal())
	require.False(t, Event{Stage: StagePublished}.Terminal())
}

func ExampleHub_Emit() {
	var total int
	hub := NewHub(Config{MaxBatchEvents: 1, MaxBatchWait: time.Second},
		SinkFunc(func(_ context.Context, batch []Event) error {
			total += len(batch)
			return nil
		}))

	hub.Emit(Event{JobID: "job-1", TS: time.Unix(0, 0), Stage: StageJobQueued})
	hub.Emit(Event{JobID: "job-1", TS: time.Unix(1, 0), Stage: StageChunked, Chunks: 4})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", total)
	// Output:
	// events forwarded: 2
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	return Event{
		JobID: "0190b6a0-0000-7000-8000-000000000001",
		TS:    time.Now(),
		Stage: stage,
		URL:   "https://example.com",
	}
}
