package remote

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/websum"
)

// Chain tries renderers in order and returns the first document with content.
type Chain struct {
	renderers []websum.RemoteRenderer
	logger    *zap.Logger
}

// NewChain builds a Chain. Nil renderers are skipped.
func NewChain(logger *zap.Logger, renderers ...websum.RemoteRenderer) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]websum.RemoteRenderer, 0, len(renderers))
	for _, r := range renderers {
		if r != nil {
			kept = append(kept, r)
		}
	}
	return &Chain{renderers: kept, logger: logger}
}

// Len reports how many renderers are configured.
func (c *Chain) Len() int { return len(c.renderers) }

// Name implements websum.RemoteRenderer.
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.renderers))
	for _, r := range c.renderers {
		names = append(names, r.Name())
	}
	return strings.Join(names, "+")
}

// Render implements websum.RemoteRenderer.
func (c *Chain) Render(ctx context.Context, rawURL string) (websum.Document, error) {
	var errs []error
	for _, r := range c.renderers {
		doc, err := r.Render(ctx, rawURL)
		if err != nil {
			c.logger.Warn("remote renderer failed", zap.String("renderer", r.Name()), zap.String("url", rawURL), zap.Error(err))
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if strings.TrimSpace(doc.Markdown) != "" {
			return doc, nil
		}
		c.logger.Info("remote renderer returned no content", zap.String("renderer", r.Name()), zap.String("url", rawURL))
	}
	if len(errs) > 0 {
		return websum.Document{}, errors.Join(errs...)
	}
	return websum.Document{}, websum.RenderFailureError("no remote renderer produced content", nil)
}
