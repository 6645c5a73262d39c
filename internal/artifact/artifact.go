// Package artifact tracks temporary files created while acquiring a page so
// they can be removed on every exit path.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Set collects temporary paths. The zero value is ready to use.
type Set struct {
	mu    sync.Mutex
	dir   string
	paths []string
}

// NewSet returns a Set creating files under dir (os.TempDir when empty).
func NewSet(dir string) *Set {
	return &Set{dir: dir}
}

// TempPath reserves a new temporary file path matching pattern. The file is
// created empty so the name stays unique until Cleanup.
func (s *Set) TempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close temp artifact: %w", err)
	}
	s.Track(name)
	return name, nil
}

// Track registers an existing path for removal.
func (s *Set) Track(path string) {
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
}

// Paths returns the tracked paths.
func (s *Set) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Cleanup removes every tracked path. Missing files are not errors.
func (s *Set) Cleanup() error {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove artifact %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

type setKey struct{}

// WithSet attaches s to ctx.
func WithSet(ctx context.Context, s *Set) context.Context {
	return context.WithValue(ctx, setKey{}, s)
}

// FromContext returns the Set attached to ctx, if any.
func FromContext(ctx context.Context) (*Set, bool) {
	s, ok := ctx.Value(setKey{}).(*Set)
	return s, ok && s != nil
}
