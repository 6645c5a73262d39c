// Package remote implements remote rendering services used as a fallback when
// the headless browser produced too little content.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/websum/internal/websum"
)

const defaultTimeout = 60 * time.Second

// collectorConfig is shared by every renderer.
type collectorConfig struct {
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// response is what a single collector run captured.
type response struct {
	status   int
	body     []byte
	headers  http.Header
	finalURL string
}

type collectorRunner struct {
	cfg  collectorConfig
	base *colly.Collector
}

func newCollectorRunner(cfg collectorConfig) *collectorRunner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(transport)
	return &collectorRunner{cfg: cfg, base: c}
}

// build clones the base collector for one request. Its HTTP requests are
// bound to ctx so cancellation aborts them in flight.
func (r *collectorRunner) build(ctx context.Context, headers http.Header, resp *response, fetchErr *error) *colly.Collector {
	collector := r.base.Clone()
	collector.Context = ctx
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	if r.cfg.UserAgent != "" {
		collector.UserAgent = r.cfg.UserAgent
	}
	collector.SetRequestTimeout(r.cfg.Timeout)
	configureHooks(collector, headers, resp, fetchErr)
	return collector
}

func configureHooks(hooks collectorHooks, headers http.Header, resp *response, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*resp = response{
			status:   r.StatusCode,
			body:     append([]byte(nil), r.Body...),
			finalURL: r.Request.URL.String(),
		}
		if r.Headers != nil {
			resp.headers = r.Headers.Clone()
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		*fetchErr = &statusError{status: status, err: err}
	})
}

// get performs a GET through a fresh collector.
func (r *collectorRunner) get(ctx context.Context, url string, headers http.Header) (response, error) {
	var (
		resp     response
		fetchErr error
	)
	collector := r.build(ctx, headers, &resp, &fetchErr)
	err := run(ctx, func() error { return collector.Visit(url) }, &fetchErr)
	return resp, err
}

// post sends body through a fresh collector.
func (r *collectorRunner) post(ctx context.Context, url string, body io.Reader, headers http.Header) (response, error) {
	var (
		resp     response
		fetchErr error
	)
	collector := r.build(ctx, headers, &resp, &fetchErr)
	err := run(ctx, func() error {
		return collector.Request(http.MethodPost, url, body, nil, nil)
	}, &fetchErr)
	return resp, err
}

func run(ctx context.Context, visit func() error, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()

	select {
	case <-ctx.Done():
		// The request shares ctx, so the visit unwinds promptly; wait for it
		// so no callback writes the response after we return.
		<-done
		return fmt.Errorf("remote fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("remote response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("remote visit failed: %w", err)
		}
		return nil
	}
}

type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("status %d: %v", e.status, e.err)
	}
	return e.err.Error()
}

func (e *statusError) Unwrap() error { return e.err }

// classify maps a transport failure onto the acquisition taxonomy.
func classify(name string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		switch se.status {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusPaymentRequired:
			return websum.AuthMissingError(name+" rejected the credentials", err)
		}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return websum.TimeoutError(name+" timed out", err)
	}
	return websum.NetworkError(name+" request failed", err)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
