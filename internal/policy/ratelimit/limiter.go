// Package ratelimit implements a per-host token bucket used to pace browser navigations.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/websum/internal/metrics"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	overrides    map[string]HostRate
	defaultRate  rate.Limit
	defaultBurst int
}

// HostRate overrides the default budget for one host.
type HostRate struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	Hosts        map[string]HostRate
}

// New creates a new Limiter. A non-positive rate disables throttling.
func New(cfg Config) *Limiter {
	overrides := make(map[string]HostRate, len(cfg.Hosts))
	for host, hr := range cfg.Hosts {
		overrides[normalizeHost(host)] = hr
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		overrides:    overrides,
		defaultRate:  toLimit(cfg.DefaultRPS),
		defaultBurst: toBurst(cfg.DefaultBurst),
	}
}

// Wait blocks until a token is available for the URL's host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = normalizeHost(u.Hostname())
	}
	limiter := l.limiterFor(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate tokens are not worth a histogram sample.
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, d)
	}
	return nil
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[host]; ok {
		return lim
	}
	r, burst := l.defaultRate, l.defaultBurst
	if hr, ok := l.overrides[host]; ok {
		r, burst = toLimit(hr.RPS), toBurst(hr.Burst)
	}
	lim := rate.NewLimiter(r, burst)
	l.limiters[host] = lim
	return lim
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func toBurst(burst int) int {
	if burst <= 0 {
		return 1
	}
	return burst
}
