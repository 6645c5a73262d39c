package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/extract"
	"github.com/JakeFAU/websum/internal/websum"
)

// DefaultFirecrawlEndpoint is the hosted Firecrawl API.
const DefaultFirecrawlEndpoint = "https://api.firecrawl.dev"

// Cached scrapes up to two days old are acceptable.
const firecrawlMaxAge = 2 * 24 * time.Hour

// FirecrawlConfig configures a Firecrawl renderer.
type FirecrawlConfig struct {
	Endpoint  string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Firecrawl renders pages through the Firecrawl scrape API.
type Firecrawl struct {
	endpoint string
	apiKey   string
	runner   *collectorRunner
	logger   *zap.Logger
}

// NewFirecrawl builds a Firecrawl renderer. An API key is required.
func NewFirecrawl(cfg FirecrawlConfig, logger *zap.Logger) (*Firecrawl, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("firecrawl api key is required")
	}
	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultFirecrawlEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Firecrawl{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		runner: newCollectorRunner(collectorConfig{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		}),
		logger: logger,
	}, nil
}

// Name implements websum.RemoteRenderer.
func (f *Firecrawl) Name() string { return "firecrawl" }

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
	MaxAge  int64    `json:"maxAge,omitempty"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Markdown string `json:"markdown"`
		HTML     string `json:"html"`
		RawHTML  string `json:"rawHtml"`
		Metadata struct {
			Title     string `json:"title"`
			URL       string `json:"url"`
			SourceURL string `json:"sourceURL"`
		} `json:"metadata"`
	} `json:"data"`
}

// Render implements websum.RemoteRenderer.
func (f *Firecrawl) Render(ctx context.Context, rawURL string) (websum.Document, error) {
	payload, err := json.Marshal(scrapeRequest{
		URL:     rawURL,
		Formats: []string{"markdown", "html"},
		MaxAge:  firecrawlMaxAge.Milliseconds(),
	})
	if err != nil {
		return websum.Document{}, fmt.Errorf("encode scrape request: %w", err)
	}
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Authorization", "Bearer "+f.apiKey)
	f.logger.Info("rendering through firecrawl", zap.String("url", rawURL))

	resp, err := f.runner.post(ctx, f.endpoint+"/v1/scrape", bytes.NewReader(payload), headers)
	if err != nil {
		return websum.Document{}, classify(f.Name(), err)
	}

	var out scrapeResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return websum.Document{}, websum.RenderFailureError("firecrawl returned invalid json", err)
	}
	if !out.Success {
		return websum.Document{}, websum.RenderFailureError("firecrawl scrape failed: "+out.Error, nil)
	}

	finalURL := out.Data.Metadata.URL
	if finalURL == "" {
		finalURL = out.Data.Metadata.SourceURL
	}
	doc := extract.FromMarkdown(rawURL, finalURL, out.Data.Metadata.Title, out.Data.Markdown)
	doc.ExtractedMarkup = out.Data.HTML
	switch {
	case out.Data.RawHTML != "":
		doc.RawMarkup = out.Data.RawHTML
	case out.Data.HTML != "":
		doc.RawMarkup = out.Data.HTML
	}
	doc.Source = "remote:" + f.Name()
	return doc, nil
}
