// Package local writes notes to the filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/publisher"
	"github.com/JakeFAU/websum/internal/websum"
)

// Config captures the base directory for notes.
type Config struct {
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Publisher implements websum.Publisher on a local directory.
type Publisher struct {
	baseDir string
	clock   websum.Clock
	logger  *zap.Logger
}

// New creates the base directory when missing and verifies it is writable.
func New(cfg Config, clock websum.Clock, logger *zap.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, errors.New("base directory is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory %s is not a directory", cfg.BaseDir)
	}

	probe := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("remove writable probe: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{baseDir: cfg.BaseDir, clock: clock, logger: logger}, nil
}

// Publish writes the note (and screenshot, if any) and returns a file:// URI.
func (p *Publisher) Publish(_ context.Context, markdown string, meta websum.NoteMetadata) (string, error) {
	rel := publisher.NotePath("", meta, p.clock.Now())
	full, err := p.write(rel, []byte(markdown))
	if err != nil {
		return "", err
	}
	if len(meta.Screenshot) > 0 {
		if _, err := p.write(publisher.ScreenshotPath(rel), meta.Screenshot); err != nil {
			p.logger.Warn("screenshot write failed", zap.String("job_id", meta.JobID), zap.Error(err))
		}
	}
	p.logger.Info("note written", zap.String("job_id", meta.JobID), zap.String("path", full))
	return "file://" + full, nil
}

func (p *Publisher) write(rel string, data []byte) (string, error) {
	base := filepath.Clean(p.baseDir)
	full := filepath.Clean(filepath.Join(base, rel))
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes base directory", rel)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", full, err)
	}
	return full, nil
}
