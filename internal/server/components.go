package server

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/chunker"
	"github.com/JakeFAU/websum/internal/config"
	githubfetcher "github.com/JakeFAU/websum/internal/fetcher/github"
	"github.com/JakeFAU/websum/internal/fetcher/headless"
	"github.com/JakeFAU/websum/internal/fetcher/remote"
	"github.com/JakeFAU/websum/internal/policy/ratelimit"
	gcspublisher "github.com/JakeFAU/websum/internal/publisher/gcs"
	githubpublisher "github.com/JakeFAU/websum/internal/publisher/github"
	localpublisher "github.com/JakeFAU/websum/internal/publisher/local"
	memorypublisher "github.com/JakeFAU/websum/internal/publisher/memory"
	"github.com/JakeFAU/websum/internal/router"
	"github.com/JakeFAU/websum/internal/strategy"
	"github.com/JakeFAU/websum/internal/summarizer"
	"github.com/JakeFAU/websum/internal/websum"
)

// Acquisition is the fetch router plus the browser it owns.
type Acquisition struct {
	Acquirer websum.Acquirer
	browser  *headless.Chrome
}

// Close shuts the browser down.
func (a *Acquisition) Close() {
	if a != nil && a.browser != nil {
		a.browser.Close()
	}
}

// BuildAcquisition wires the specialized routes, the headless engine and the
// remote fallback chain behind one router.
func BuildAcquisition(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Acquisition, error) {
	hc := cfg.Acquisition.Headless
	browser, err := headless.NewChromedp(headless.Config{
		MaxParallel: hc.MaxParallel,
		UserAgent:   hc.UserAgent,
		ExecPath:    hc.ExecPath,
		NoSandbox:   hc.NoSandbox,
	})
	if err != nil {
		return nil, fmt.Errorf("headless browser init failed: %w", err)
	}

	hosts := make(map[string]ratelimit.HostRate, len(cfg.Acquisition.Rate.Hosts))
	for host, hr := range cfg.Acquisition.Rate.Hosts {
		hosts[host] = ratelimit.HostRate{RPS: hr.RPS, Burst: hr.Burst}
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Acquisition.Rate.DefaultRPS,
		DefaultBurst: cfg.Acquisition.Rate.DefaultBurst,
		Hosts:        hosts,
	})

	registry := strategy.NewRegistry(strategy.Builtins()...)
	engine := headless.NewEngine(browser, registry, headless.EngineConfig{
		DefaultTimeout: hc.DefaultTimeout,
		Screenshot:     cfg.Acquisition.Screenshot,
	}, limiter, logger.Named("headless"))
	logger.Info("headless engine ready",
		zap.Int("max_parallel", hc.MaxParallel),
		zap.Strings("strategies", registry.Names()),
	)

	var routes []router.Route
	if cfg.GitHub.Enabled {
		gh, err := githubfetcher.New(ctx, githubfetcher.Config{
			Token:       cfg.GitHub.Token,
			BaseURL:     cfg.GitHub.BaseURL,
			MaxComments: cfg.GitHub.MaxComments,
		}, logger.Named("github"))
		if err != nil {
			browser.Close()
			return nil, fmt.Errorf("github fetcher init failed: %w", err)
		}
		routes = append(routes, router.Route{Name: "github", Match: gh.Match, Handler: gh})
	}

	fallback, err := buildRemote(cfg.Remote, logger)
	if err != nil {
		browser.Close()
		return nil, err
	}

	r := router.New(engine, fallback, router.Config{
		MinContentLength: cfg.Acquisition.MinContentLength,
		EscalateOnError:  cfg.Acquisition.EscalateOnError,
		ArtifactDir:      cfg.Acquisition.ArtifactDir,
	}, logger.Named("router"), routes...)
	return &Acquisition{Acquirer: r, browser: browser}, nil
}

// buildRemote returns nil when no renderer is enabled so the router never
// escalates.
func buildRemote(cfg config.RemoteConfig, logger *zap.Logger) (websum.RemoteRenderer, error) {
	var renderers []websum.RemoteRenderer
	if cfg.Mirror.Enabled {
		renderers = append(renderers, remote.NewMirror(remote.MirrorConfig{
			Endpoint:  cfg.Mirror.Endpoint,
			APIKey:    cfg.Mirror.APIKey,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
		}, logger.Named("mirror")))
	}
	if cfg.Firecrawl.Enabled {
		fc, err := remote.NewFirecrawl(remote.FirecrawlConfig{
			Endpoint:  cfg.Firecrawl.Endpoint,
			APIKey:    cfg.Firecrawl.APIKey,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
		}, logger.Named("firecrawl"))
		if err != nil {
			return nil, fmt.Errorf("firecrawl init failed: %w", err)
		}
		renderers = append(renderers, fc)
	}
	if len(renderers) == 0 {
		logger.Info("no remote renderer configured")
		return nil, nil
	}
	chain := remote.NewChain(logger.Named("remote"), renderers...)
	logger.Info("remote fallback ready", zap.String("chain", chain.Name()))
	return chain, nil
}

// NewSplitter prefers tiktoken counts and falls back to the rune estimator
// when the encoding cannot be loaded.
func NewSplitter(cfg config.ChunkerConfig, logger *zap.Logger) *chunker.Splitter {
	if !cfg.UseTiktoken {
		return chunker.New(nil)
	}
	est, err := chunker.NewTiktokenEstimator(cfg.Encoding)
	if err != nil {
		logger.Warn("tiktoken unavailable, estimating tokens from runes", zap.Error(err))
		return chunker.New(nil)
	}
	return chunker.New(est)
}

// NewSummarizer builds the configured provider.
func NewSummarizer(cfg config.SummarizerConfig, logger *zap.Logger) (websum.Summarizer, error) {
	switch cfg.Provider {
	case config.ProviderStatic:
		logger.Warn("using static summarizer; notes will contain page excerpts only")
		return summarizer.Static{}, nil
	case config.ProviderOpenAI:
		s, err := summarizer.NewOpenAI(summarizer.Config{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			Timeout:      cfg.Timeout,
			SystemPrompt: cfg.SystemPrompt,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("summarizer init failed: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider %q", cfg.Provider)
	}
}

// NewPublisher builds the configured note sink. The GCS publisher is also
// returned so the caller can close its client.
func NewPublisher(
	ctx context.Context,
	cfg config.PublisherConfig,
	clock websum.Clock,
	logger *zap.Logger,
) (websum.Publisher, *gcspublisher.Publisher, error) {
	switch cfg.Kind {
	case config.PublisherMemory:
		return memorypublisher.New(), nil, nil
	case config.PublisherLocal:
		p, err := localpublisher.New(localpublisher.Config{BaseDir: cfg.Local.BaseDir}, clock, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("local publisher init failed: %w", err)
		}
		return p, nil, nil
	case config.PublisherGitHub:
		p, err := githubpublisher.New(ctx, githubpublisher.Config{
			Token:   cfg.GitHub.Token,
			BaseURL: cfg.GitHub.BaseURL,
			Repo:    cfg.GitHub.Repo,
			Branch:  cfg.GitHub.Branch,
			Dir:     cfg.GitHub.Dir,
		}, clock, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("github publisher init failed: %w", err)
		}
		return p, nil, nil
	case config.PublisherGCS:
		p, err := gcspublisher.New(ctx, gcspublisher.Config{
			Bucket: cfg.GCS.Bucket,
			Prefix: cfg.GCS.Prefix,
		}, clock, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs publisher init failed: %w", err)
		}
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unknown publisher kind %q", cfg.Kind)
	}
}
