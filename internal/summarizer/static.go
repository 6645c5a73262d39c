package summarizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/websum/internal/websum"
)

// Static is a deterministic Summarizer for dry runs: it echoes the page title
// and the first MaxChars characters of the input.
type Static struct {
	MaxChars int
}

// Summarize implements websum.Summarizer.
func (s Static) Summarize(_ context.Context, text string, hints websum.SummaryHints) (string, error) {
	limit := s.MaxChars
	if limit <= 0 {
		limit = 500
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit]) + "…"
	}
	title := hints.Title
	if title == "" {
		title = hints.URL
	}
	if hints.Total > 0 {
		title = fmt.Sprintf("%s (%d/%d)", title, hints.Index, hints.Total)
	}
	return title + "\n\n" + text, nil
}
