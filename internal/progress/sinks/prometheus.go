package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/websum/internal/progress"
)

// PrometheusSink exports job lifecycle metrics.
type PrometheusSink struct {
	jobsQueued    prometheus.Counter
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec
	acquired      *prometheus.CounterVec
	chunks        prometheus.Histogram

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against reg (the default registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "websum_progress_jobs_queued_total",
			Help: "Jobs accepted into the queue.",
		}),
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "websum_progress_jobs_started_total",
			Help: "Jobs that started running.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "websum_progress_jobs_completed_total",
			Help: "Jobs reaching a terminal state, by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "websum_progress_jobs_running",
			Help: "Jobs currently running.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "websum_progress_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		acquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "websum_progress_acquired_total",
			Help: "Documents acquired, by acquisition source.",
		}, []string{"source"}),
		chunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "websum_progress_chunks",
			Help:    "Chunks per chunked document.",
			Buckets: []float64{2, 3, 5, 8, 13, 21},
		}),
		tracker: newJobTracker(),
	}
	for _, c := range []prometheus.Collector{
		s.jobsQueued, s.jobsStarted, s.jobsCompleted, s.jobsRunning, s.jobRuntime, s.acquired, s.chunks,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobQueued:
			s.jobsQueued.Inc()
		case progress.StageJobStart:
			s.jobsStarted.Inc()
			if s.tracker.start(evt.JobID) {
				s.jobsRunning.Inc()
			}
		case progress.StageAcquired:
			s.acquired.WithLabelValues(evt.Source).Inc()
		case progress.StageChunked:
			s.chunks.Observe(float64(evt.Chunks))
		case progress.StageJobDone:
			s.finish(evt, "succeeded")
		case progress.StageJobError:
			s.finish(evt, "failed")
		case progress.StageJobCancelled:
			s.finish(evt, "cancelled")
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.jobsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// jobTracker keeps the running gauge consistent when events repeat.
type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
