// Package gcs writes notes to a Google Cloud Storage bucket.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/websum/internal/publisher"
	"github.com/JakeFAU/websum/internal/websum"
)

const (
	markdownContentType   = "text/markdown; charset=utf-8"
	screenshotContentType = "image/jpeg"
)

// Config names the bucket and an optional object prefix.
type Config struct {
	Bucket string
	Prefix string
}

// Publisher implements websum.Publisher on a GCS bucket.
type Publisher struct {
	client     *storage.Client
	ownsClient bool
	bucket     string
	prefix     string
	clock      websum.Clock
	logger     *zap.Logger
}

// New creates a client using Application Default Credentials (or opts) and
// fails fast when the bucket is not reachable.
func New(ctx context.Context, cfg Config, clock websum.Clock, logger *zap.Logger, opts ...option.ClientOption) (*Publisher, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	p, err := NewWithClient(client, cfg, clock, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			p.logger.Warn("close gcs client after bucket check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", cfg.Bucket, err)
	}
	p.ownsClient = true
	return p, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of it.
func NewWithClient(client *storage.Client, cfg Config, clock websum.Clock, logger *zap.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, clock: clock, logger: logger}, nil
}

// Publish uploads the note and, when present, its screenshot. It returns the
// note's gs:// URI.
func (p *Publisher) Publish(ctx context.Context, markdown string, meta websum.NoteMetadata) (string, error) {
	name := publisher.NotePath(p.prefix, meta, p.clock.Now())
	if err := p.put(ctx, name, markdownContentType, []byte(markdown)); err != nil {
		return "", err
	}
	if len(meta.Screenshot) > 0 {
		shot := publisher.ScreenshotPath(name)
		if err := p.put(ctx, shot, screenshotContentType, meta.Screenshot); err != nil {
			p.logger.Warn("screenshot upload failed", zap.String("job_id", meta.JobID), zap.String("object", shot), zap.Error(err))
		}
	}
	uri := fmt.Sprintf("gs://%s/%s", p.bucket, name)
	p.logger.Info("note uploaded", zap.String("job_id", meta.JobID), zap.String("uri", uri))
	return uri, nil
}

func (p *Publisher) put(ctx context.Context, name, contentType string, data []byte) error {
	w := p.client.Bucket(p.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return fmt.Errorf("write gcs object %s: %w (close writer: %v)", name, err, closeErr)
		}
		return fmt.Errorf("write gcs object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer for %s: %w", name, err)
	}
	return nil
}

// Close releases the client when New created it.
func (p *Publisher) Close() error {
	if p == nil || !p.ownsClient {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
