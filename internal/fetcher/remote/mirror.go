package remote

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/extract"
	"github.com/JakeFAU/websum/internal/websum"
)

// DefaultMirrorEndpoint is a public reader service that renders any URL.
const DefaultMirrorEndpoint = "https://r.jina.ai/"

// MirrorConfig configures a Mirror.
type MirrorConfig struct {
	Endpoint  string
	APIKey    string
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Mirror fetches {Endpoint}{url} from a reader service that returns markdown
// (or occasionally HTML).
type Mirror struct {
	endpoint string
	apiKey   string
	runner   *collectorRunner
	logger   *zap.Logger
}

// NewMirror builds a Mirror renderer.
func NewMirror(cfg MirrorConfig, logger *zap.Logger) *Mirror {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultMirrorEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		runner: newCollectorRunner(collectorConfig{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		}),
		logger: logger,
	}
}

// Name implements websum.RemoteRenderer.
func (m *Mirror) Name() string { return "mirror" }

// Render implements websum.RemoteRenderer.
func (m *Mirror) Render(ctx context.Context, rawURL string) (websum.Document, error) {
	headers := http.Header{}
	headers.Set("Accept", "text/plain, text/markdown;q=0.9, text/html;q=0.8")
	if m.apiKey != "" {
		headers.Set("Authorization", "Bearer "+m.apiKey)
	}
	m.logger.Info("rendering through mirror", zap.String("url", rawURL))

	resp, err := m.runner.get(ctx, m.endpoint+rawURL, headers)
	if err != nil {
		return websum.Document{}, classify(m.Name(), err)
	}
	body := string(resp.body)

	if looksLikeHTML(body) {
		doc, err := extract.Generic(rawURL, rawURL, body)
		if err != nil {
			return websum.Document{}, websum.RenderFailureError("mirror returned unparsable html", err)
		}
		doc.Source = "remote:" + m.Name()
		return doc, nil
	}

	title, finalURL, markdown := parseReaderText(body)
	if finalURL == "" {
		finalURL = rawURL
	}
	doc := extract.FromMarkdown(rawURL, finalURL, title, markdown)
	doc.RawMarkup = body
	doc.Source = "remote:" + m.Name()
	return doc, nil
}

func looksLikeHTML(body string) bool {
	head := strings.ToLower(strings.TrimSpace(body))
	if len(head) > 256 {
		head = head[:256]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

// parseReaderText splits the reader service's "Title:" / "URL Source:" preamble
// from the "Markdown Content:" body. Bodies without the preamble pass through.
func parseReaderText(body string) (title, source, markdown string) {
	const marker = "Markdown Content:"
	idx := strings.Index(body, marker)
	if idx < 0 {
		return "", "", strings.TrimSpace(body)
	}
	for _, line := range strings.Split(body[:idx], "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Title:"):
			title = strings.TrimSpace(strings.TrimPrefix(line, "Title:"))
		case strings.HasPrefix(line, "URL Source:"):
			source = strings.TrimSpace(strings.TrimPrefix(line, "URL Source:"))
		}
	}
	return title, source, strings.TrimSpace(body[idx+len(marker):])
}
