package websum

import (
	"context"
	"time"
)

// Acquirer turns a URL into a Document.
type Acquirer interface {
	Acquire(ctx context.Context, url string) (Document, error)
}

// RemoteRenderer is a secondary acquisition provider used when primary output is too short.
type RemoteRenderer interface {
	Name() string
	Render(ctx context.Context, url string) (Document, error)
}

// Summarizer condenses text; it may be called once per chunk.
type Summarizer interface {
	Summarize(ctx context.Context, text string, hints SummaryHints) (string, error)
}

// Publisher stores a finished note and returns its locator.
type Publisher interface {
	Publish(ctx context.Context, markdown string, meta NoteMetadata) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator returns unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher hashes content.
type Hasher interface {
	Hash(data []byte) string
}
