package headless

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/artifact"
	"github.com/JakeFAU/websum/internal/extract"
	"github.com/JakeFAU/websum/internal/metrics"
	"github.com/JakeFAU/websum/internal/strategy"
	"github.com/JakeFAU/websum/internal/websum"
)

// DefaultTimeout bounds an acquisition when the descriptor sets none.
const DefaultTimeout = 45 * time.Second

// Source is the Document.Source value of headless acquisitions.
const Source = "headless"

// HostLimiter paces navigations per host.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	DefaultTimeout time.Duration
	Screenshot     bool
}

// Engine runs the Match, Setup, Process, Extract and Build stages for one URL.
type Engine struct {
	browser  Browser
	registry *strategy.Registry
	cfg      EngineConfig
	limiter  HostLimiter
	logger   *zap.Logger
}

// NewEngine wires an engine. limiter and logger may be nil.
func NewEngine(browser Browser, registry *strategy.Registry, cfg EngineConfig, limiter HostLimiter, logger *zap.Logger) *Engine {
	if registry == nil {
		registry = strategy.NewRegistry()
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{browser: browser, registry: registry, cfg: cfg, limiter: limiter, logger: logger}
}

// Acquire renders rawURL and builds a Document from it.
func (e *Engine) Acquire(ctx context.Context, rawURL string) (websum.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return websum.Document{}, websum.UnsupportedError("only http and https URLs can be rendered", err)
	}
	desc := e.registry.Match(rawURL)
	logger := e.logger.With(zap.String("url", rawURL), zap.String("strategy", desc.Name))

	start := time.Now()
	doc, err := e.acquire(ctx, rawURL, desc, logger)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if kind, ok := websum.KindOf(err); ok {
			outcome = string(kind)
		}
		logger.Warn("headless acquisition failed", zap.Error(err))
	}
	metrics.ObserveAcquisition(Source, desc.Name, outcome, time.Since(start))
	return doc, err
}

func (e *Engine) acquire(ctx context.Context, rawURL string, desc strategy.Descriptor, logger *zap.Logger) (doc websum.Document, err error) {
	if e.limiter != nil {
		if werr := e.limiter.Wait(ctx, rawURL); werr != nil {
			return websum.Document{}, classify(ctx, stageSetup, werr)
		}
	}

	sess, err := e.browser.Open(ctx)
	if err != nil {
		return websum.Document{}, classify(ctx, stageSetup, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Debug("close session", zap.Error(cerr))
		}
	}()

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(sess.Context(), timeout)
	defer cancel()

	// Hooks run inside this call, so their panics must not escape the session scope.
	defer func() {
		if r := recover(); r != nil {
			err = websum.RenderFailureError("strategy hook panicked", fmt.Errorf("panic: %v", r))
			doc = websum.Document{}
		}
	}()

	if err := sess.Navigate(runCtx, rawURL); err != nil {
		return websum.Document{}, classify(runCtx, stageNavigate, err)
	}
	if status := sess.Status(); status >= 400 {
		return websum.Document{}, websum.NetworkError(fmt.Sprintf("document returned HTTP %d", status), &StatusError{Code: status})
	}
	wait := desc.WaitSelector
	if wait == "" {
		wait = "body"
	}
	if err := sess.WaitReady(runCtx, wait); err != nil {
		return websum.Document{}, classify(runCtx, stageWait, err)
	}

	if desc.PreProcess != nil {
		if err := desc.PreProcess(runCtx, sess); err != nil {
			return websum.Document{}, classify(runCtx, stageProcess, err)
		}
	} else if err := strategy.DefaultPreProcess(runCtx, sess, desc.AutoScroll); err != nil {
		if runCtx.Err() != nil {
			return websum.Document{}, classify(runCtx, stageProcess, err)
		}
		logger.Debug("default pre-processing failed", zap.Error(err))
	}

	var payload any
	if desc.Extract != nil {
		if payload, err = desc.Extract(runCtx, sess); err != nil {
			return websum.Document{}, classify(runCtx, stageExtract, err)
		}
	}

	html, err := sess.OuterHTML(runCtx)
	if err != nil {
		return websum.Document{}, classify(runCtx, stageExtract, err)
	}
	finalURL, err := sess.Location(runCtx)
	if err != nil || finalURL == "" {
		finalURL = rawURL
	}

	var shot []byte
	if e.cfg.Screenshot {
		shot = e.screenshot(ctx, runCtx, sess, logger)
	}

	in := strategy.BuildInput{RequestedURL: rawURL, FinalURL: finalURL, HTML: html, Payload: payload}
	if desc.Build != nil {
		doc, err = desc.Build(in)
	} else {
		doc, err = extract.Generic(rawURL, finalURL, html)
	}
	if err != nil {
		return websum.Document{}, classify(runCtx, stageBuild, err)
	}
	if doc.RequestedURL == "" {
		doc.RequestedURL = rawURL
	}
	if doc.FinalURL == "" {
		doc.FinalURL = finalURL
	}
	doc.Source = Source
	doc.Screenshot = shot
	return doc, nil
}

// screenshot is best effort: a failure leaves the document without an image.
func (e *Engine) screenshot(parent, runCtx context.Context, sess Session, logger *zap.Logger) []byte {
	set, ok := artifact.FromContext(parent)
	if !ok {
		set = artifact.NewSet("")
		defer func() {
			if err := set.Cleanup(); err != nil {
				logger.Debug("cleanup screenshot", zap.Error(err))
			}
		}()
	}
	path, err := set.TempPath("websum-shot-*.png")
	if err != nil {
		logger.Debug("screenshot temp file", zap.Error(err))
		return nil
	}
	if err := sess.Screenshot(runCtx, path); err != nil {
		logger.Debug("screenshot failed", zap.Error(err))
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug("read screenshot", zap.Error(err))
		return nil
	}
	return data
}

type stage string

const (
	stageSetup    stage = "setup"
	stageNavigate stage = "navigate"
	stageWait     stage = "wait"
	stageProcess  stage = "process"
	stageExtract  stage = "extract"
	stageBuild    stage = "build"
)

// StatusError carries the HTTP status of a failed main document.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Code)
}

func classify(ctx context.Context, st stage, err error) error {
	var acqErr *websum.AcquisitionError
	if errors.As(err, &acqErr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return websum.TimeoutError(fmt.Sprintf("%s timed out", st), err)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return websum.RenderFailureError(fmt.Sprintf("%s cancelled", st), errors.Join(err, context.Canceled))
	case st == stageNavigate:
		return websum.NetworkError("navigation failed", err)
	default:
		return websum.RenderFailureError(fmt.Sprintf("%s failed", st), err)
	}
}
