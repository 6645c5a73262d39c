package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websum/internal/clock/system"
	"github.com/JakeFAU/websum/internal/progress"
	"github.com/JakeFAU/websum/internal/websum"
)

// gatedRunner blocks each job until its URL's gate is released.
type gatedRunner struct {
	mu      sync.Mutex
	gates   map[string]chan struct{}
	started []string
	results map[string]error
}

func newGatedRunner(urls ...string) *gatedRunner {
	r := &gatedRunner{gates: make(map[string]chan struct{}), results: make(map[string]error)}
	for _, u := range urls {
		r.gates[u] = make(chan struct{})
	}
	return r
}

func (r *gatedRunner) Run(ctx context.Context, job websum.Job, cancelled func() bool) (string, error) {
	r.mu.Lock()
	r.started = append(r.started, job.URL)
	gate := r.gates[job.URL]
	res := r.results[job.URL]
	r.mu.Unlock()
	if gate != nil {
		for {
			select {
			case <-gate:
				return "loc:" + job.URL, res
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Millisecond):
				if cancelled() {
					return "", websum.ErrJobCancelled
				}
			}
		}
	}
	return "loc:" + job.URL, res
}

func (r *gatedRunner) release(url string) {
	close(r.gates[url])
}

func (r *gatedRunner) startedURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Emit(evt progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) stages(jobID string) []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Stage
	for _, e := range r.events {
		if e.JobID == jobID {
			out = append(out, e.Stage)
		}
	}
	return out
}

func start(t *testing.T, s *Scheduler) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("scheduler did not stop")
		}
	}
}

func waitState(t *testing.T, s *Scheduler, id string, want websum.JobState) websum.Job {
	t.Helper()
	var job websum.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = s.Status(id)
		return err == nil && job.State == want
	}, 2*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func TestPerKeyOrdering(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner("a1", "a2", "b1")
	s, err := New(Config{Concurrency: 3, MaxQueued: 10, MaxQueuedPerKey: 5}, runner)
	require.NoError(t, err)

	a1, err := s.Submit("a", "a1")
	require.NoError(t, err)
	a2, err := s.Submit("a", "a2")
	require.NoError(t, err)
	b1, err := s.Submit("b", "b1")
	require.NoError(t, err)

	stop := start(t, s)
	defer stop()

	waitState(t, s, a1, websum.JobRunning)
	waitState(t, s, b1, websum.JobRunning)
	time.Sleep(30 * time.Millisecond)
	second, err := s.Status(a2)
	require.NoError(t, err)
	require.Equal(t, websum.JobQueued, second.State, "later job for the key must wait")
	require.Equal(t, QueueStatus{
		MaxConcurrent: 3, MaxQueued: 10, MaxQueuedPerKey: 5,
		GlobalPending: 1, GlobalRunning: 2, KeyPending: 1, KeyRunning: 1,
	}, s.QueueStatus("a"))

	runner.release("a1")
	first := waitState(t, s, a1, websum.JobSucceeded)
	require.Equal(t, "loc:a1", first.Locator)
	waitState(t, s, a2, websum.JobRunning)
	started := runner.startedURLs()
	require.Len(t, started, 3)
	require.ElementsMatch(t, []string{"a1", "b1"}, started[:2])
	require.Equal(t, "a2", started[2])

	runner.release("a2")
	runner.release("b1")
	waitState(t, s, a2, websum.JobSucceeded)
	waitState(t, s, b1, websum.JobSucceeded)
}

func TestConcurrencyCeiling(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner("x", "y")
	s, err := New(Config{Concurrency: 1, MaxQueued: 10, MaxQueuedPerKey: 5}, runner)
	require.NoError(t, err)
	x, _ := s.Submit("k1", "x")
	y, _ := s.Submit("k2", "y")

	stop := start(t, s)
	defer stop()

	waitState(t, s, x, websum.JobRunning)
	time.Sleep(20 * time.Millisecond)
	job, _ := s.Status(y)
	require.Equal(t, websum.JobQueued, job.State)

	runner.release("x")
	runner.release("y")
	waitState(t, s, y, websum.JobSucceeded)
}

func TestSubmitRejections(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Concurrency: 1, MaxQueued: 2, MaxQueuedPerKey: 1}, newGatedRunner())
	require.NoError(t, err)

	_, err = s.Submit("a", "u1")
	require.NoError(t, err)

	_, err = s.Submit("a", "u2")
	require.ErrorIs(t, err, websum.ErrKeyQueueFull)
	var qErr *websum.QueueFullError
	require.ErrorAs(t, err, &qErr)
	require.Equal(t, 1, qErr.Limit)

	_, err = s.Submit("b", "u3")
	require.NoError(t, err)

	_, err = s.Submit("c", "u4")
	require.ErrorIs(t, err, websum.ErrQueueFull)
	require.NotErrorIs(t, err, websum.ErrKeyQueueFull)
}

func TestGlobalCeilingCheckedFirst(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Concurrency: 1, MaxQueued: 1, MaxQueuedPerKey: 1}, newGatedRunner())
	require.NoError(t, err)
	_, err = s.Submit("a", "u1")
	require.NoError(t, err)
	_, err = s.Submit("a", "u2")
	require.ErrorIs(t, err, websum.ErrQueueFull)
}

func TestCancelQueuedJob(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner("first", "second")
	rec := &recorder{}
	s, err := New(Config{Concurrency: 1, MaxQueued: 5, MaxQueuedPerKey: 5}, runner, WithEmitter(rec))
	require.NoError(t, err)

	first, _ := s.Submit("k", "first")
	second, _ := s.Submit("k", "second")
	require.True(t, s.Cancel(second))
	require.False(t, s.Cancel(second), "terminal jobs cannot be cancelled again")
	require.False(t, s.Cancel("unknown"))

	job, err := s.Status(second)
	require.NoError(t, err)
	require.Equal(t, websum.JobCancelled, job.State)
	require.Equal(t, 1, s.QueueStatus("k").KeyPending)

	stop := start(t, s)
	defer stop()
	runner.release("first")
	waitState(t, s, first, websum.JobSucceeded)
	require.Equal(t, []string{"first"}, runner.startedURLs())
	require.Equal(t, []progress.Stage{progress.StageJobQueued, progress.StageJobCancelled}, rec.stages(second))
}

func TestCancelRunningJob(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner("slow")
	rec := &recorder{}
	s, err := New(Config{Concurrency: 1, MaxQueued: 5, MaxQueuedPerKey: 5}, runner, WithEmitter(rec))
	require.NoError(t, err)
	id, _ := s.Submit("k", "slow")

	stop := start(t, s)
	defer stop()

	waitState(t, s, id, websum.JobRunning)
	require.True(t, s.Cancel(id))
	job := waitState(t, s, id, websum.JobCancelled)
	require.Empty(t, job.Error)
	require.Equal(t, 0, s.QueueStatus("k").GlobalRunning)
	require.Eventually(t, func() bool {
		st := rec.stages(id)
		return len(st) == 3 && st[2] == progress.StageJobCancelled
	}, time.Second, 5*time.Millisecond)
}

func TestFailureIsRedacted(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner()
	runner.results["bad"] = websum.TimeoutError("page load exceeded deadline", errors.New("chromedp: secret internal detail"))
	runner.results["worse"] = errors.New("publish note: github: 500 token=abc")
	rec := &recorder{}
	s, err := New(Config{Concurrency: 2, MaxQueued: 5, MaxQueuedPerKey: 5}, runner, WithEmitter(rec))
	require.NoError(t, err)

	bad, _ := s.Submit("k1", "bad")
	worse, _ := s.Submit("k2", "worse")
	stop := start(t, s)
	defer stop()

	job := waitState(t, s, bad, websum.JobFailed)
	require.Equal(t, "timeout: page load exceeded deadline", job.Error)
	require.NotContains(t, job.Error, "secret")

	job = waitState(t, s, worse, websum.JobFailed)
	require.Equal(t, "processing failed: publish note", job.Error)
	require.Eventually(t, func() bool {
		st := rec.stages(worse)
		return len(st) == 3 && st[2] == progress.StageJobError
	}, time.Second, 5*time.Millisecond)
}

func TestRunnerPanicFailsJob(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Concurrency: 1, MaxQueued: 5, MaxQueuedPerKey: 5},
		RunnerFunc(func(context.Context, websum.Job, func() bool) (string, error) {
			panic("boom")
		}))
	require.NoError(t, err)
	id, _ := s.Submit("k", "u")
	next, _ := s.Submit("k", "v")
	stop := start(t, s)
	defer stop()

	waitState(t, s, id, websum.JobFailed)
	waitState(t, s, next, websum.JobFailed)
}

func TestForgetAndRetention(t *testing.T) {
	t.Parallel()

	clk := system.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := New(Config{Concurrency: 1, MaxQueued: 5, MaxQueuedPerKey: 5, Retention: time.Minute}, newGatedRunner(), WithClock(clk))
	require.NoError(t, err)

	queued, _ := s.Submit("k", "a")
	require.False(t, s.Forget(queued), "non-terminal jobs are kept")
	require.True(t, s.Cancel(queued))
	require.True(t, s.Forget(queued))
	_, err = s.Status(queued)
	require.ErrorIs(t, err, websum.ErrJobNotFound)

	other, _ := s.Submit("k", "b")
	require.True(t, s.Cancel(other))
	clk.Advance(59 * time.Second)
	_, err = s.Status(other)
	require.NoError(t, err)
	clk.Advance(time.Second)
	_, err = s.Status(other)
	require.ErrorIs(t, err, websum.ErrJobNotFound)
}

func TestShutdownCancelsQueuedJobs(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner("running", "waiting")
	s, err := New(Config{Concurrency: 1, MaxQueued: 5, MaxQueuedPerKey: 5}, runner)
	require.NoError(t, err)
	running, _ := s.Submit("k", "running")
	waiting, _ := s.Submit("k", "waiting")

	stop := start(t, s)
	waitState(t, s, running, websum.JobRunning)
	stop()

	job, err := s.Status(running)
	require.NoError(t, err)
	require.Equal(t, websum.JobCancelled, job.State)
	job, err = s.Status(waiting)
	require.NoError(t, err)
	require.Equal(t, websum.JobCancelled, job.State)

	_, err = s.Submit("k", "late")
	require.ErrorIs(t, err, websum.ErrSchedulerClosed)
	require.Error(t, s.Run(context.Background()))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	runner := newGatedRunner()
	for _, cfg := range []Config{
		{Concurrency: 0, MaxQueued: 1, MaxQueuedPerKey: 1},
		{Concurrency: 1, MaxQueued: 0, MaxQueuedPerKey: 1},
		{Concurrency: 1, MaxQueued: 1, MaxQueuedPerKey: 0},
		{Concurrency: 1, MaxQueued: 1, MaxQueuedPerKey: 1, Retention: -time.Second},
	} {
		_, err := New(cfg, runner)
		require.Error(t, err)
	}
	_, err := New(Config{Concurrency: 1, MaxQueued: 1, MaxQueuedPerKey: 1}, nil)
	require.Error(t, err)
}
