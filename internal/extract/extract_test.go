package extract

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const articleHTML = `<!doctype html>
<html><head><title>Example Article</title></head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Example Article</h1>
<p>Lazy loading is a strategy that delays the loading of resources until they are needed.
It is used heavily by modern single page applications and news sites alike, which is
why acquisition needs to scroll before extracting anything meaningful from the page.</p>
<p>Read the <a href="/docs/intro">introduction</a> or look at the <img src="img/diagram.png" alt="diagram"> diagram.
The rest of this paragraph is filler so that the content scoring has enough text to work with,
because readability implementations ignore very short candidates.</p>
</article>
<footer>copyright</footer>
</body></html>`

func TestGenericProducesMarkdownWithAbsoluteLinks(t *testing.T) {
	t.Parallel()

	doc, err := Generic("https://example.com/posts/1", "https://example.com/posts/1", articleHTML)
	require.NoError(t, err)
	require.Equal(t, "Example Article", doc.Title)
	require.Contains(t, doc.Markdown, "https://example.com/docs/intro")
	require.Contains(t, doc.Markdown, "Lazy loading is a strategy")
	require.NotContains(t, doc.Markdown, "copyright")
	require.Contains(t, doc.PlainText, "delays the loading of resources")
	require.Equal(t, articleHTML, doc.RawMarkup)
	require.NotEmpty(t, doc.ExtractedMarkup)
}

func TestGenericDefaultsFinalURL(t *testing.T) {
	t.Parallel()

	doc, err := Generic("https://example.com/a", "", articleHTML)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a", doc.FinalURL)
}

func TestAbsolutizeLinks(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.com/blog/post")
	require.NoError(t, err)

	out, err := AbsolutizeLinks(`<p><a href="../about">a</a> <a href="#top">top</a> `+
		`<a href="mailto:x@y.z">m</a> <img src="/i.png"> <a href="https://other.org/x">o</a></p>`, base)
	require.NoError(t, err)
	require.Contains(t, out, `href="https://example.com/about"`)
	require.Contains(t, out, `href="#top"`)
	require.Contains(t, out, `href="mailto:x@y.z"`)
	require.Contains(t, out, `src="https://example.com/i.png"`)
	require.Contains(t, out, `href="https://other.org/x"`)
}

func TestToMarkdownGitHubFlavoured(t *testing.T) {
	t.Parallel()

	out, err := ToMarkdown(`<h2>Title</h2><p>one</p><del>gone</del><table><tr><th>a</th></tr><tr><td>1</td></tr></table>`, "example.com")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "## Title"), out)
	require.Contains(t, out, "gone")
	require.Contains(t, out, "|")
}

func TestFromMarkdownTitle(t *testing.T) {
	t.Parallel()

	doc := FromMarkdown("https://example.com", "", "", "intro\n\n\n\n# Heading One\n\nbody   \n")
	require.Equal(t, "Heading One", doc.Title)
	require.Equal(t, "intro\n\n# Heading One\n\nbody", doc.Markdown)
	require.Equal(t, "https://example.com", doc.FinalURL)
}
