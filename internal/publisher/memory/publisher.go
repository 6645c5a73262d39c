// Package memory keeps published notes in memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/websum/internal/websum"
)

// Note is one recorded publish call.
type Note struct {
	Locator  string
	Markdown string
	Meta     websum.NoteMetadata
}

// Publisher records notes and can be told to fail.
type Publisher struct {
	mu    sync.RWMutex
	notes []Note
	err   error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes subsequent Publish calls return err. nil restores success.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Publish records the note and returns a "memory://N" locator.
func (p *Publisher) Publish(_ context.Context, markdown string, meta websum.NoteMetadata) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	loc := fmt.Sprintf("memory://%d", len(p.notes)+1)
	p.notes = append(p.notes, Note{Locator: loc, Markdown: markdown, Meta: meta})
	return loc, nil
}

// Notes returns a copy of the recorded notes.
func (p *Publisher) Notes() []Note {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Note, len(p.notes))
	copy(out, p.notes)
	return out
}
