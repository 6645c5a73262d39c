// Package router picks the acquisition path for a URL: a specialized API
// handler, the headless engine, and a remote renderer when the result is thin.
package router

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/artifact"
	"github.com/JakeFAU/websum/internal/metrics"
	"github.com/JakeFAU/websum/internal/websum"
)

// DefaultMinContentLength is the escalation threshold in runes.
const DefaultMinContentLength = 200

// Route is a specialized handler consulted before the headless engine.
type Route struct {
	Name    string
	Match   func(*url.URL) bool
	Handler websum.Acquirer
}

// Config tunes escalation.
type Config struct {
	// MinContentLength is the trimmed markdown length below which the remote
	// renderer is tried. Zero selects the default; negative disables escalation.
	MinContentLength int
	// EscalateOnError also sends hard primary failures to the remote renderer.
	EscalateOnError bool
	// ArtifactDir holds temporary files such as screenshots.
	ArtifactDir string
}

// Router implements websum.Acquirer.
type Router struct {
	routes  []Route
	primary websum.Acquirer
	remote  websum.RemoteRenderer
	cfg     Config
	logger  *zap.Logger
}

// New builds a Router. remote may be nil when no fallback is configured.
func New(primary websum.Acquirer, remote websum.RemoteRenderer, cfg Config, logger *zap.Logger, routes ...Route) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinContentLength == 0 {
		cfg.MinContentLength = DefaultMinContentLength
	}
	kept := make([]Route, 0, len(routes))
	for _, rt := range routes {
		if rt.Match != nil && rt.Handler != nil {
			kept = append(kept, rt)
		}
	}
	return &Router{routes: kept, primary: primary, remote: remote, cfg: cfg, logger: logger}
}

// ShouldEscalate reports whether a primary document is too thin to keep
// without asking the remote renderer.
func ShouldEscalate(doc websum.Document, minChars int, remoteConfigured bool) bool {
	if !remoteConfigured || minChars <= 0 {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(doc.Markdown)) < minChars
}

// Acquire returns a Document for rawURL. Temporary artifacts created during
// the call are removed before it returns.
func (r *Router) Acquire(ctx context.Context, rawURL string) (websum.Document, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return websum.Document{}, websum.UnsupportedError("url must be an absolute http or https address", err)
	}
	rawURL = u.String()
	logger := r.logger.With(zap.String("url", rawURL))

	set := artifact.NewSet(r.cfg.ArtifactDir)
	defer func() {
		if cerr := set.Cleanup(); cerr != nil {
			logger.Warn("artifact cleanup failed", zap.Error(cerr))
		}
	}()
	ctx = artifact.WithSet(ctx, set)

	for _, rt := range r.routes {
		if !rt.Match(u) {
			continue
		}
		logger.Info("using specialized handler", zap.String("route", rt.Name))
		start := time.Now()
		doc, err := rt.Handler.Acquire(ctx, rawURL)
		metrics.ObserveAcquisition("specialized", rt.Name, outcome(err), time.Since(start))
		return doc, err
	}

	if r.primary == nil {
		return websum.Document{}, websum.UnsupportedError("no acquisition strategy configured", nil)
	}
	doc, err := r.primary.Acquire(ctx, rawURL)
	remoteConfigured := r.remote != nil

	if err != nil {
		if !r.cfg.EscalateOnError || !remoteConfigured || ctx.Err() != nil {
			return websum.Document{}, err
		}
		logger.Info("primary acquisition failed, escalating", zap.Error(err))
		if rdoc, ok := r.escalate(ctx, rawURL, logger); ok {
			return rdoc, nil
		}
		return websum.Document{}, err
	}

	if !ShouldEscalate(doc, r.minChars(), remoteConfigured) {
		return doc, nil
	}
	logger.Info("content below threshold, escalating",
		zap.Int("runes", utf8.RuneCountInString(strings.TrimSpace(doc.Markdown))),
		zap.Int("min", r.minChars()))
	if rdoc, ok := r.escalate(ctx, rawURL, logger); ok {
		return rdoc, nil
	}
	return doc, nil
}

// escalate never fails the job: a remote error just keeps the primary result.
func (r *Router) escalate(ctx context.Context, rawURL string, logger *zap.Logger) (websum.Document, bool) {
	start := time.Now()
	doc, err := r.remote.Render(ctx, rawURL)
	metrics.ObserveAcquisition("remote", r.remote.Name(), outcome(err), time.Since(start))
	if err != nil {
		metrics.ObserveEscalation("failed")
		logger.Warn("remote renderer failed", zap.String("renderer", r.remote.Name()), zap.Error(err))
		return websum.Document{}, false
	}
	if strings.TrimSpace(doc.Markdown) == "" {
		metrics.ObserveEscalation("empty")
		logger.Info("remote renderer returned empty content", zap.String("renderer", r.remote.Name()))
		return websum.Document{}, false
	}
	metrics.ObserveEscalation("used")
	if doc.RequestedURL == "" {
		doc.RequestedURL = rawURL
	}
	return doc, true
}

func (r *Router) minChars() int {
	return r.cfg.MinContentLength
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := websum.KindOf(err); ok {
		return string(kind)
	}
	return "error"
}
