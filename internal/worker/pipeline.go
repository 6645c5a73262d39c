// Package worker runs one summarization job end to end: acquire, chunk,
// summarize, assemble the note and publish it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/chunker"
	"github.com/JakeFAU/websum/internal/logging"
	"github.com/JakeFAU/websum/internal/metrics"
	"github.com/JakeFAU/websum/internal/progress"
	"github.com/JakeFAU/websum/internal/websum"
)

// Defaults applied by New.
const (
	DefaultMaxTokens      = 4000
	DefaultSkipBelowChars = 1
)

const (
	emptyPagePlaceholder     = "_No readable content was extracted from this page._"
	emptySummaryPlaceholder  = "_The summarizer returned no output for this page._"
	fallbackTitleForUntitled = "Untitled page"
)

// Config tunes summarization.
type Config struct {
	// MaxTokens is the per-call chunk budget.
	MaxTokens int `mapstructure:"max_tokens"`
	// SkipBelowChars skips summarization for pages shorter than this many characters.
	SkipBelowChars int `mapstructure:"skip_below_chars"`
	// IncludeOriginal appends the page markdown below the summary.
	IncludeOriginal bool `mapstructure:"include_original"`
}

// Splitter estimates and chunks markdown.
type Splitter interface {
	Estimate(text string) int
	Split(text string, maxTokens int) []chunker.Chunk
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Acquirer   websum.Acquirer
	Splitter   Splitter
	Summarizer websum.Summarizer
	Publisher  websum.Publisher
	Hasher     websum.Hasher
	Clock      websum.Clock
	Events     progress.Emitter
}

// Pipeline implements scheduler.Runner.
type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and applies config defaults.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Acquirer == nil:
		return nil, errors.New("pipeline requires an acquirer")
	case deps.Summarizer == nil:
		return nil, errors.New("pipeline requires a summarizer")
	case deps.Publisher == nil:
		return nil, errors.New("pipeline requires a publisher")
	case deps.Hasher == nil:
		return nil, errors.New("pipeline requires a hasher")
	case deps.Clock == nil:
		return nil, errors.New("pipeline requires a clock")
	}
	if deps.Splitter == nil {
		deps.Splitter = chunker.New(nil)
	}
	if deps.Events == nil {
		deps.Events = progress.Discard
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.SkipBelowChars < 0 {
		cfg.SkipBelowChars = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger}, nil
}

type summary struct {
	title   string
	content string
}

// Run processes job and returns the publisher's locator. It returns
// websum.ErrJobCancelled when cancelled reports true at a checkpoint.
func (p *Pipeline) Run(ctx context.Context, job websum.Job, cancelled func() bool) (string, error) {
	if cancelled == nil {
		cancelled = func() bool { return false }
	}
	logger := logging.ForJob(p.logger, job.ID, job.ConversationKey, job.URL)
	if cancelled() {
		return "", websum.ErrJobCancelled
	}

	doc, err := p.deps.Acquirer.Acquire(ctx, job.URL)
	if err != nil {
		return "", fmt.Errorf("acquire: %w", err)
	}
	if doc.Source == "" {
		doc.Source = "unknown"
	}
	p.emit(job, progress.Event{Stage: progress.StageAcquired, Source: doc.Source})
	logger.Debug("document acquired", zap.String("source", doc.Source), zap.Int("markdown_chars", utf8.RuneCountInString(doc.Markdown)))

	if cancelled() {
		return "", websum.ErrJobCancelled
	}
	sum, err := p.summarize(ctx, job, doc, cancelled)
	if err != nil {
		return "", err
	}
	p.emit(job, progress.Event{Stage: progress.StageSummarized})

	if cancelled() {
		return "", websum.ErrJobCancelled
	}
	note := Note{
		Front:   NewFrontMatter(pageURL(doc, job), doc.Title, p.deps.Hasher.Hash([]byte(doc.Markdown)), p.deps.Clock.Now()),
		AITitle: sum.title,
		Summary: sum.content,
	}
	if p.cfg.IncludeOriginal {
		note.Original = doc.Markdown
	}
	markdown, err := note.Render()
	if err != nil {
		return "", fmt.Errorf("render note: %w", err)
	}

	locator, err := p.deps.Publisher.Publish(ctx, markdown, websum.NoteMetadata{
		JobID:           job.ID,
		ConversationKey: job.ConversationKey,
		Source:          doc.Source,
		URL:             pageURL(doc, job),
		Title:           doc.Title,
		AITitle:         sum.title,
		Screenshot:      doc.Screenshot,
	})
	if err != nil {
		return "", fmt.Errorf("publish note: %w", err)
	}
	p.emit(job, progress.Event{Stage: progress.StagePublished, Locator: locator})
	logger.Info("note published", zap.String("locator", locator))
	return locator, nil
}

func (p *Pipeline) summarize(ctx context.Context, job websum.Job, doc websum.Document, cancelled func() bool) (summary, error) {
	text := strings.TrimSpace(doc.Markdown)
	title := pageTitle(doc)
	if utf8.RuneCountInString(text) < p.cfg.SkipBelowChars || text == "" {
		return summary{title: title, content: emptyPagePlaceholder}, nil
	}

	hints := websum.SummaryHints{Title: doc.Title, URL: pageURL(doc, job)}
	if p.deps.Splitter.Estimate(text) <= p.cfg.MaxTokens {
		p.emit(job, progress.Event{Stage: progress.StageChunked, Chunks: 1})
		metrics.ObserveChunks(1)
		raw, err := p.call(ctx, text, hints)
		if err != nil {
			return summary{}, err
		}
		return finish(title, []string{raw}), nil
	}

	chunks := p.deps.Splitter.Split(text, p.cfg.MaxTokens)
	p.emit(job, progress.Event{Stage: progress.StageChunked, Chunks: len(chunks)})
	metrics.ObserveChunks(len(chunks))
	raws := make([]string, 0, len(chunks))
	for i, c := range chunks {
		if cancelled() {
			return summary{}, websum.ErrJobCancelled
		}
		h := hints
		h.Index, h.Total = i+1, len(chunks)
		raw, err := p.call(ctx, c.Text, h)
		if err != nil {
			return summary{}, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		raws = append(raws, raw)
	}
	return finish(title, raws), nil
}

func (p *Pipeline) call(ctx context.Context, text string, hints websum.SummaryHints) (string, error) {
	raw, err := p.deps.Summarizer.Summarize(ctx, text, hints)
	metrics.ObserveSummarize(err)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return raw, nil
}

// finish picks the AI title from the first non-empty summary and merges the bodies.
func finish(pageTitle string, raws []string) summary {
	var (
		title string
		parts []string
	)
	for _, raw := range raws {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		t, body := splitSummary(raw)
		if title == "" {
			title = t
		}
		parts = append(parts, body)
	}
	if len(parts) == 0 {
		return summary{title: pageTitle, content: emptySummaryPlaceholder}
	}
	if title == "" {
		title = pageTitle
	}
	return summary{title: title, content: mergeParts(parts)}
}

func (p *Pipeline) emit(job websum.Job, evt progress.Event) {
	evt.JobID = job.ID
	evt.ConversationKey = job.ConversationKey
	evt.URL = job.URL
	evt.TS = p.deps.Clock.Now()
	p.deps.Events.Emit(evt)
}

func pageURL(doc websum.Document, job websum.Job) string {
	switch {
	case doc.FinalURL != "":
		return doc.FinalURL
	case doc.RequestedURL != "":
		return doc.RequestedURL
	default:
		return job.URL
	}
}

func pageTitle(doc websum.Document) string {
	if t := strings.TrimSpace(doc.Title); t != "" {
		return t
	}
	if doc.FinalURL != "" {
		return doc.FinalURL
	}
	return fallbackTitleForUntitled
}
