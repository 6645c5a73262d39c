// Package server builds the websum application graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/api"
	"github.com/JakeFAU/websum/internal/clock/system"
	"github.com/JakeFAU/websum/internal/config"
	"github.com/JakeFAU/websum/internal/hash/sha256"
	"github.com/JakeFAU/websum/internal/id/uuid"
	"github.com/JakeFAU/websum/internal/progress"
	progresssinks "github.com/JakeFAU/websum/internal/progress/sinks"
	gcspublisher "github.com/JakeFAU/websum/internal/publisher/gcs"
	pubsubpublisher "github.com/JakeFAU/websum/internal/publisher/pubsub"
	"github.com/JakeFAU/websum/internal/scheduler"
	memorystorage "github.com/JakeFAU/websum/internal/storage/memory"
	pgstore "github.com/JakeFAU/websum/internal/storage/postgres"
	"github.com/JakeFAU/websum/internal/store"
	"github.com/JakeFAU/websum/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg         *config.Config
	logger      *zap.Logger
	apiServer   *api.Server
	sched       *scheduler.Scheduler
	acquisition *Acquisition
	progressHub *progress.Hub
	notifier    *pubsubpublisher.Publisher
	gcs         *gcspublisher.Publisher
	history     store.HistoryRepository
	pgHistory   *pgstore.HistoryStore
	registerer  prometheus.Registerer
}

// Option customises Build.
type Option func(*App)

// WithRegisterer registers progress collectors somewhere other than the
// default Prometheus registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// Build creates the application's dependencies. The caller owns logger.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger, registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(app)
	}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
		}
	}()

	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("publisher", cfg.Publisher.Kind),
		zap.String("summarizer", cfg.Summarizer.Provider),
	)

	if err = app.setupHistory(ctx); err != nil {
		return nil, err
	}
	if err = app.setupNotifier(ctx); err != nil {
		return nil, err
	}
	if err = app.setupProgress(); err != nil {
		return nil, err
	}

	app.acquisition, err = BuildAcquisition(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	summarizer, err := NewSummarizer(cfg.Summarizer, logger.Named("summarizer"))
	if err != nil {
		return nil, err
	}
	clock := system.New()
	publisher, gcs, err := NewPublisher(ctx, cfg.Publisher, clock, logger.Named("publisher"))
	if err != nil {
		return nil, err
	}
	app.gcs = gcs

	pipeline, err := worker.New(worker.Deps{
		Acquirer:   app.acquisition.Acquirer,
		Splitter:   NewSplitter(cfg.Chunker, logger),
		Summarizer: summarizer,
		Publisher:  publisher,
		Hasher:     sha256.New(),
		Clock:      clock,
		Events:     app.emitter(),
	}, worker.Config{
		MaxTokens:       cfg.Chunker.MaxTokens,
		SkipBelowChars:  cfg.Summarizer.SkipBelowChars,
		IncludeOriginal: cfg.Summarizer.IncludeOriginal,
	}, logger.Named("worker"))
	if err != nil {
		return nil, fmt.Errorf("pipeline init failed: %w", err)
	}

	app.sched, err = scheduler.New(scheduler.Config{
		Concurrency:     cfg.Scheduler.Concurrency,
		MaxQueued:       cfg.Scheduler.MaxQueued,
		MaxQueuedPerKey: cfg.Scheduler.MaxQueuedPerKey,
		Retention:       cfg.Scheduler.Retention,
	}, pipeline,
		scheduler.WithClock(clock),
		scheduler.WithIDGenerator(uuid.New()),
		scheduler.WithEmitter(app.emitter()),
		scheduler.WithLogger(logger.Named("scheduler")),
	)
	if err != nil {
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}

	apiOpts := []api.Option{api.WithHistory(app.history)}
	if app.pgHistory != nil {
		apiOpts = append(apiOpts, api.WithReadinessCheck("db", app.pgHistory.Ping))
	}
	app.apiServer = api.NewServer(app.sched, *cfg, logger.Named("api"), apiOpts...)
	return app, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Scheduler exposes the job scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.sched
}

// Run starts the scheduler and HTTP server and blocks until ctx is cancelled
// or the listener fails.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	schedDone := make(chan error, 1)
	go func() {
		a.logger.Info("scheduler started", zap.Int("concurrency", a.cfg.Scheduler.Concurrency))
		schedDone <- a.sched.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case err := <-schedDone:
		if err != nil {
			a.logger.Warn("scheduler stopped with error", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		a.logger.Warn("scheduler did not drain before shutdown timeout")
	}

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 30 * time.Second
}

func (a *App) emitter() progress.Emitter {
	if a.progressHub == nil {
		return progress.Discard
	}
	return a.progressHub
}

// closeInfrastructure releases resources in reverse dependency order; the
// progress hub flushes before the sinks' clients go away.
func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.acquisition != nil {
		a.acquisition.Close()
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgHistory != nil {
		a.pgHistory.Close()
	}
}

func (a *App) setupHistory(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("no database DSN configured, keeping job history in memory")
		a.history = memorystorage.NewHistoryStore()
		return nil
	}
	pg, err := pgstore.NewHistoryStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("history store init failed: %w", err)
	}
	a.pgHistory = pg
	a.history = pg
	if a.cfg.DB.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("history store migrate failed: %w", err)
		}
	}
	a.logger.Info("history store initialized", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) setupNotifier(ctx context.Context) error {
	if !a.cfg.PubSub.Enabled {
		a.logger.Debug("pubsub notifications disabled")
		return nil
	}
	n, err := pubsubpublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		return fmt.Errorf("pubsub init failed: %w", err)
	}
	a.notifier = n
	a.logger.Info("pubsub notifier initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

func (a *App) setupProgress() error {
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(a.history, a.logger.Named("progress_store")),
	}
	promSink, err := progresssinks.NewPrometheusSink(a.registerer)
	if err != nil {
		return fmt.Errorf("progress metrics init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)
	if a.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	if a.notifier != nil {
		sinkList = append(sinkList, progresssinks.NewPubSubSink(a.notifier, a.logger.Named("progress_pubsub")))
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		SinkTimeout:    a.cfg.Progress.SinkTimeout,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}
