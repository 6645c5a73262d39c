// Package publisher holds helpers shared by the note publishers.
package publisher

import (
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/JakeFAU/websum/internal/websum"
)

const (
	// TimestampLayout prefixes note file names and commit messages.
	TimestampLayout = "20060102-150405"
	maxTitleRunes   = 60
)

// SafeTitle keeps letters, digits, '-' and '_' and maps everything else to '-',
// truncated to 60 runes. An empty result becomes "note".
func SafeTitle(title string) string {
	var b strings.Builder
	n := 0
	for _, r := range title {
		if n == maxTitleRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
		n++
	}
	if b.Len() == 0 {
		return "note"
	}
	return b.String()
}

// NoteTitle picks the page title, falling back to the generated one.
func NoteTitle(meta websum.NoteMetadata) string {
	if strings.TrimSpace(meta.Title) != "" {
		return meta.Title
	}
	return meta.AITitle
}

// NotePath returns "{dir}/{YYYYmmdd-HHMMSS}-{safe title}.md" (without dir when empty).
func NotePath(dir string, meta websum.NoteMetadata, now time.Time) string {
	name := now.Format(TimestampLayout) + "-" + SafeTitle(NoteTitle(meta)) + ".md"
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}

// ScreenshotPath places a screenshot next to its note.
func ScreenshotPath(notePath string) string {
	return strings.TrimSuffix(notePath, ".md") + ".jpg"
}

// CommitMessage formats the message used when a note is committed.
func CommitMessage(source string, now time.Time) string {
	if source == "" {
		source = "unknown"
	}
	return "Add note from " + source + " at " + now.Format(TimestampLayout)
}
