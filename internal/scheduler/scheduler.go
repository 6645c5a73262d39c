// Package scheduler runs summarization jobs on a bounded worker pool while
// keeping jobs of one conversation strictly ordered.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/logging"
	"github.com/JakeFAU/websum/internal/metrics"
	"github.com/JakeFAU/websum/internal/progress"
	"github.com/JakeFAU/websum/internal/websum"
)

// DefaultRetention is how long terminal jobs stay queryable when nobody forgets them.
const DefaultRetention = time.Hour

// Config holds the capacity ceilings.
type Config struct {
	Concurrency     int           `mapstructure:"concurrency"`
	MaxQueued       int           `mapstructure:"max_queued"`
	MaxQueuedPerKey int           `mapstructure:"max_queued_per_key"`
	Retention       time.Duration `mapstructure:"retention"`
}

// Validate ensures every ceiling is positive.
func (c Config) Validate() error {
	switch {
	case c.Concurrency <= 0:
		return errors.New("concurrency must be > 0")
	case c.MaxQueued <= 0:
		return errors.New("max queued must be > 0")
	case c.MaxQueuedPerKey <= 0:
		return errors.New("max queued per key must be > 0")
	case c.Retention < 0:
		return errors.New("retention must be >= 0")
	}
	return nil
}

// Runner drives one job end to end and returns the published locator.
// cancelled reports whether Cancel was called for the job.
type Runner interface {
	Run(ctx context.Context, job websum.Job, cancelled func() bool) (string, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job websum.Job, cancelled func() bool) (string, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, job websum.Job, cancelled func() bool) (string, error) {
	return f(ctx, job, cancelled)
}

// QueueStatus is a snapshot of the capacities and occupancy seen by one conversation.
type QueueStatus struct {
	MaxConcurrent   int `json:"max_concurrent"`
	MaxQueued       int `json:"max_queued"`
	MaxQueuedPerKey int `json:"max_queued_per_key"`
	GlobalPending   int `json:"global_pending"`
	GlobalRunning   int `json:"global_running"`
	KeyPending      int `json:"key_pending"`
	KeyRunning      int `json:"key_running"`
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(c websum.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(g websum.IDGenerator) Option {
	return func(s *Scheduler) { s.ids = g }
}

// WithEmitter routes lifecycle events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(s *Scheduler) { s.events = e }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

type entry struct {
	job       websum.Job
	cancelled atomic.Bool
	stop      context.CancelFunc
}

// Scheduler owns every job from submission until it is forgotten or evicted.
// All queue and counter mutations happen under mu.
type Scheduler struct {
	cfg    Config
	runner Runner
	clock  websum.Clock
	ids    websum.IDGenerator
	events progress.Emitter
	logger *zap.Logger

	mu        sync.Mutex
	wake      *sync.Cond
	jobs      map[string]*entry
	queue     []*entry
	pending   map[string]int
	active    map[string]string
	running   int
	finished  []*entry
	stopping  bool
	closed    bool
	runCalled bool
}

// New validates cfg and builds a Scheduler. Call Run to start processing.
func New(cfg Config, runner Runner, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler config: %w", err)
	}
	if runner == nil {
		return nil, errors.New("scheduler runner is required")
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}
	s := &Scheduler{
		cfg:     cfg,
		runner:  runner,
		clock:   systemClock{},
		ids:     seqIDs{},
		events:  progress.Discard,
		logger:  zap.NewNop(),
		jobs:    make(map[string]*entry),
		pending: make(map[string]int),
		active:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.wake = sync.NewCond(&s.mu)
	return s, nil
}

// Submit enqueues url for key without blocking. The global ceiling is checked
// before the per-key ceiling.
func (s *Scheduler) Submit(key, rawURL string) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("submit job: %w", err)
	}
	now := s.clock.Now()

	s.mu.Lock()
	if s.closed || s.stopping {
		s.mu.Unlock()
		return "", websum.ErrSchedulerClosed
	}
	s.evictLocked(now)
	if len(s.queue) >= s.cfg.MaxQueued {
		s.mu.Unlock()
		return "", &websum.QueueFullError{Scope: websum.ScopeGlobal, Limit: s.cfg.MaxQueued}
	}
	if s.pending[key] >= s.cfg.MaxQueuedPerKey {
		s.mu.Unlock()
		return "", &websum.QueueFullError{Scope: websum.ScopePerKey, Limit: s.cfg.MaxQueuedPerKey}
	}
	e := &entry{job: websum.Job{
		ID:              id,
		ConversationKey: key,
		URL:             rawURL,
		State:           websum.JobQueued,
		SubmittedAt:     now,
	}}
	s.jobs[id] = e
	s.queue = append(s.queue, e)
	s.pending[key]++
	s.depthLocked()
	s.wake.Signal()
	s.mu.Unlock()

	s.events.Emit(progress.Event{JobID: id, ConversationKey: key, TS: now, Stage: progress.StageJobQueued, URL: rawURL})
	s.logger.Info("job queued", zap.String("job_id", id), zap.String("conversation_key", key), zap.String("url", rawURL))
	return id, nil
}

// Status returns a snapshot of the job.
func (s *Scheduler) Status(id string) (websum.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(s.clock.Now())
	e, ok := s.jobs[id]
	if !ok {
		return websum.Job{}, websum.ErrJobNotFound
	}
	return e.job, nil
}

// Cancel removes a queued job or flags a running one. It reports false for
// terminal and unknown jobs.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok || e.job.State.IsTerminal() {
		s.mu.Unlock()
		return false
	}
	if e.job.State == websum.JobRunning {
		e.cancelled.Store(true)
		stop := e.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.logger.Info("running job flagged for cancellation", zap.String("job_id", id))
		return true
	}
	s.removeQueuedLocked(e)
	now := s.clock.Now()
	s.finishLocked(e, websum.JobCancelled, now, "", "")
	evt := progress.Event{JobID: id, ConversationKey: e.job.ConversationKey, TS: now, Stage: progress.StageJobCancelled, URL: e.job.URL}
	s.mu.Unlock()

	s.events.Emit(evt)
	s.logger.Info("queued job cancelled", zap.String("job_id", id))
	return true
}

// QueueStatus reports capacities plus global and per-key occupancy.
func (s *Scheduler) QueueStatus(key string) QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := QueueStatus{
		MaxConcurrent:   s.cfg.Concurrency,
		MaxQueued:       s.cfg.MaxQueued,
		MaxQueuedPerKey: s.cfg.MaxQueuedPerKey,
		GlobalPending:   len(s.queue),
		GlobalRunning:   s.running,
		KeyPending:      s.pending[key],
	}
	if _, ok := s.active[key]; ok {
		st.KeyRunning = 1
	}
	return st
}

// Forget evicts a terminal job. It reports whether the job was removed.
func (s *Scheduler) Forget(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok || !e.job.State.IsTerminal() {
		return false
	}
	delete(s.jobs, id)
	return true
}

// Run starts the worker pool and blocks until ctx ends and in-flight jobs
// return. Jobs still queued at that point are cancelled and further
// submissions fail with ErrSchedulerClosed.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.runCalled {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.runCalled = true
	s.mu.Unlock()

	stopWake := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.stopping = true
		s.wake.Broadcast()
		s.mu.Unlock()
	})
	defer stopWake()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.work(ctx, worker)
		}(i)
	}
	wg.Wait()
	s.shutdown()
	return nil
}

func (s *Scheduler) work(ctx context.Context, worker int) {
	logger := s.logger.With(zap.Int("worker", worker))
	for {
		e, jobCtx, ok := s.next(ctx)
		if !ok {
			return
		}
		s.execute(jobCtx, e, logger)
	}
}

// next blocks until an eligible job exists or the scheduler stops.
func (s *Scheduler) next(ctx context.Context) (*entry, context.Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.stopping {
			return nil, nil, false
		}
		if e := s.takeLocked(); e != nil {
			jobCtx, stop := context.WithCancel(ctx)
			e.stop = stop
			return e, jobCtx, true
		}
		s.wake.Wait()
	}
}

// takeLocked pops the oldest queued job whose key has nothing running.
func (s *Scheduler) takeLocked() *entry {
	for i, e := range s.queue {
		key := e.job.ConversationKey
		if _, busy := s.active[key]; busy {
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		s.decPendingLocked(key)
		s.active[key] = e.job.ID
		s.running++
		e.job.State = websum.JobRunning
		e.job.StartedAt = s.clock.Now()
		s.depthLocked()
		return e
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, e *entry, logger *zap.Logger) {
	job := e.job
	logger = logging.ForJob(logger, job.ID, job.ConversationKey, "")
	s.events.Emit(progress.Event{JobID: job.ID, ConversationKey: job.ConversationKey, TS: job.StartedAt, Stage: progress.StageJobStart, URL: job.URL})
	logger.Info("job started", zap.String("url", job.URL))

	locator, err := s.safeRun(ctx, job, e.cancelled.Load)
	interrupted := ctx.Err() != nil
	e.stop()

	now := s.clock.Now()
	evt := progress.Event{JobID: job.ID, ConversationKey: job.ConversationKey, TS: now, URL: job.URL, Dur: now.Sub(job.StartedAt)}
	var state websum.JobState
	var msg string
	switch {
	case err == nil:
		state = websum.JobSucceeded
		evt.Stage = progress.StageJobDone
		evt.Locator = locator
		logger.Info("job succeeded", zap.String("locator", locator), zap.Duration("dur", evt.Dur))
	case e.cancelled.Load() || errors.Is(err, websum.ErrJobCancelled) || interrupted:
		state = websum.JobCancelled
		evt.Stage = progress.StageJobCancelled
		logger.Info("job cancelled", zap.Error(err))
	default:
		state = websum.JobFailed
		msg = websum.UserMessage(err)
		evt.Stage = progress.StageJobError
		evt.Note = msg
		logger.Warn("job failed", zap.Error(err))
	}
	if evt.Dur < 0 {
		evt.Dur = 0
	}

	s.mu.Lock()
	delete(s.active, job.ConversationKey)
	s.running--
	s.finishLocked(e, state, now, msg, locator)
	s.depthLocked()
	s.wake.Broadcast()
	s.mu.Unlock()

	s.events.Emit(evt)
}

func (s *Scheduler) safeRun(ctx context.Context, job websum.Job, cancelled func() bool) (locator string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return s.runner.Run(ctx, job, cancelled)
}

func (s *Scheduler) finishLocked(e *entry, state websum.JobState, at time.Time, msg, locator string) {
	e.job.State = state
	e.job.FinishedAt = at
	e.job.Error = msg
	e.job.Locator = locator
	s.finished = append(s.finished, e)
	metrics.ObserveJob(string(state))
}

func (s *Scheduler) removeQueuedLocked(target *entry) {
	for i, e := range s.queue {
		if e == target {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.decPendingLocked(e.job.ConversationKey)
			s.depthLocked()
			return
		}
	}
}

func (s *Scheduler) decPendingLocked(key string) {
	if s.pending[key] <= 1 {
		delete(s.pending, key)
		return
	}
	s.pending[key]--
}

// evictLocked drops terminal jobs older than the retention window.
func (s *Scheduler) evictLocked(now time.Time) {
	cut := 0
	for cut < len(s.finished) && now.Sub(s.finished[cut].job.FinishedAt) >= s.cfg.Retention {
		e := s.finished[cut]
		if cur, ok := s.jobs[e.job.ID]; ok && cur == e {
			delete(s.jobs, e.job.ID)
		}
		cut++
	}
	if cut > 0 {
		s.finished = append(s.finished[:0], s.finished[cut:]...)
	}
}

func (s *Scheduler) depthLocked() {
	metrics.SetQueueDepth(len(s.queue), s.running)
}

func (s *Scheduler) shutdown() {
	now := s.clock.Now()
	s.mu.Lock()
	s.closed = true
	leftover := s.queue
	s.queue = nil
	var events []progress.Event
	for _, e := range leftover {
		s.decPendingLocked(e.job.ConversationKey)
		s.finishLocked(e, websum.JobCancelled, now, "", "")
		events = append(events, progress.Event{
			JobID: e.job.ID, ConversationKey: e.job.ConversationKey, TS: now,
			Stage: progress.StageJobCancelled, URL: e.job.URL, Note: "scheduler stopped",
		})
	}
	s.depthLocked()
	s.mu.Unlock()

	for _, evt := range events {
		s.events.Emit(evt)
	}
	if len(events) > 0 {
		s.logger.Info("cancelled queued jobs at shutdown", zap.Int("count", len(events)))
	}
}
