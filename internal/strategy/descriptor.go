// Package strategy holds per-domain acquisition policies for the headless
// engine. The registry is populated at start-up and read-only afterwards.
package strategy

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/websum/internal/websum"
)

// Page is the subset of browser operations available to strategy hooks.
type Page interface {
	// Evaluate runs a script and decodes its (awaited) result into res.
	Evaluate(ctx context.Context, script string, res any) error
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	// Remove deletes every element matching any selector.
	Remove(ctx context.Context, selectors ...string) error
	AttributeValue(ctx context.Context, selector, name string) (string, bool, error)
	OuterHTML(ctx context.Context) (string, error)
	Location(ctx context.Context) (string, error)
}

// BuildInput is what a build hook receives after extraction.
type BuildInput struct {
	RequestedURL string
	FinalURL     string
	HTML         string
	Payload      any
}

// Descriptor describes how pages matching Match are acquired. Nil hooks select
// the engine defaults.
type Descriptor struct {
	Name         string
	Match        func(u *url.URL) bool
	Timeout      time.Duration
	WaitSelector string
	AutoScroll   bool
	PreProcess   func(ctx context.Context, p Page) error
	Extract      func(ctx context.Context, p Page) (any, error)
	Build        func(in BuildInput) (websum.Document, error)
}

// HostMatcher matches the given hosts and any of their subdomains.
func HostMatcher(hosts ...string) func(*url.URL) bool {
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		normalized = append(normalized, strings.ToLower(strings.TrimPrefix(h, "www.")))
	}
	return func(u *url.URL) bool {
		if u == nil {
			return false
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		for _, h := range normalized {
			if host == h || strings.HasSuffix(host, "."+h) {
				return true
			}
		}
		return false
	}
}
