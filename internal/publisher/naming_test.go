package publisher

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websum/internal/websum"
)

func TestSafeTitle(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Hello, World!":          "Hello--World-",
		"":                       "note",
		"snake_case-ok":          "snake_case-ok",
		"网页 标题":                  "网页-标题",
		strings.Repeat("a", 100): strings.Repeat("a", 60),
	}
	for in, want := range cases {
		require.Equal(t, want, SafeTitle(in), in)
	}
}

func TestNotePath(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	meta := websum.NoteMetadata{Title: "Go Release Notes", AITitle: "ignored"}
	require.Equal(t, "notes/20260506-070809-Go-Release-Notes.md", NotePath("/notes/", meta, now))
	require.Equal(t, "20260506-070809-Summary.md", NotePath("", websum.NoteMetadata{AITitle: "Summary"}, now))
	require.Equal(t, "a/20260506-070809-x.jpg", ScreenshotPath("a/20260506-070809-x.md"))
	require.Equal(t, "Add note from headless at 20260506-070809", CommitMessage("headless", now))
}
