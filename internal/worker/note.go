package worker

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FrontMatter is the YAML header of every note.
type FrontMatter struct {
	Source        string `yaml:"source"`
	CreatedAt     string `yaml:"created_at"`
	Title         string `yaml:"title"`
	ContentSHA256 string `yaml:"content_sha256"`
}

// Note is the assembled markdown document handed to a publisher.
type Note struct {
	Front    FrontMatter
	AITitle  string
	Summary  string
	Original string
}

// NewFrontMatter fills the header fields from a page.
func NewFrontMatter(sourceURL, title, contentHash string, created time.Time) FrontMatter {
	return FrontMatter{
		Source:        sourceURL,
		CreatedAt:     created.UTC().Format(time.RFC3339),
		Title:         title,
		ContentSHA256: contentHash,
	}
}

// Render writes the front matter, the AI title as H1, the summary, and the
// original page markdown when present.
func (n Note) Render() (string, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n.Front); err != nil {
		return "", fmt.Errorf("encode front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode front matter: %w", err)
	}
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# %s\n\n", n.AITitle)
	buf.WriteString(strings.TrimSpace(n.Summary))
	buf.WriteString("\n")
	if original := strings.TrimSpace(n.Original); original != "" {
		buf.WriteString("\n---\n\n## Original\n\n")
		buf.WriteString(original)
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

// ParseFrontMatter reads the YAML header back from a rendered note.
func ParseFrontMatter(note string) (FrontMatter, error) {
	var fm FrontMatter
	rest, ok := strings.CutPrefix(note, "---\n")
	if !ok {
		return fm, fmt.Errorf("note has no front matter")
	}
	header, _, ok := strings.Cut(rest, "\n---\n")
	if !ok {
		return fm, fmt.Errorf("front matter is not terminated")
	}
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, fmt.Errorf("decode front matter: %w", err)
	}
	return fm, nil
}

// splitSummary treats the first non-empty line as the title and the rest as the body.
func splitSummary(raw string) (title, body string) {
	raw = strings.TrimSpace(raw)
	first, rest, _ := strings.Cut(raw, "\n")
	title = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(first), "#"))
	return title, strings.TrimSpace(rest)
}

// mergeParts joins per-chunk summaries; multiple parts get "## Part N" headings
// separated by horizontal rules.
func mergeParts(parts []string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	sections := make([]string, len(parts))
	for i, p := range parts {
		sections[i] = fmt.Sprintf("## Part %d\n\n%s", i+1, p)
	}
	return strings.Join(sections, "\n\n---\n\n")
}
