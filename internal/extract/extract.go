// Package extract turns rendered HTML into a normalized Document: main content
// isolation, absolute links and markdown conversion.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/JakeFAU/websum/internal/websum"
)

var (
	excessiveLines = regexp.MustCompile(`\n{3,}`)
	trailingSpace  = regexp.MustCompile(`[ \t]+\n`)
)

// noiseSelectors are dropped before the fallback main-content selection.
const noiseSelectors = "script, style, noscript, template, iframe, svg, nav, footer, header, aside, form"

// Generic applies readability-style extraction to rendered HTML.
func Generic(requestedURL, finalURL, rawHTML string) (websum.Document, error) {
	if finalURL == "" {
		finalURL = requestedURL
	}
	base, err := url.Parse(finalURL)
	if err != nil {
		return websum.Document{}, fmt.Errorf("parse final url: %w", err)
	}

	page, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return websum.Document{}, fmt.Errorf("parse html: %w", err)
	}

	title, contentHTML, text := mainContent(rawHTML, base)
	if title == "" {
		title = pageTitle(page)
	}

	contentHTML, err = AbsolutizeLinks(contentHTML, base)
	if err != nil {
		return websum.Document{}, err
	}
	markdown, err := ToMarkdown(contentHTML, base.Host)
	if err != nil {
		return websum.Document{}, err
	}
	if title == "" {
		title = markdownTitle(markdown)
	}
	if title == "" {
		title = finalURL
	}

	return websum.Document{
		RequestedURL:    requestedURL,
		FinalURL:        finalURL,
		Title:           title,
		PlainText:       normalizeText(text),
		Markdown:        markdown,
		RawMarkup:       rawHTML,
		ExtractedMarkup: contentHTML,
	}, nil
}

// FromMarkdown wraps markdown returned by a remote reader service.
func FromMarkdown(requestedURL, finalURL, title, markdown string) websum.Document {
	if finalURL == "" {
		finalURL = requestedURL
	}
	markdown = CleanMarkdown(markdown)
	if title == "" {
		title = markdownTitle(markdown)
	}
	if title == "" {
		title = finalURL
	}
	return websum.Document{
		RequestedURL: requestedURL,
		FinalURL:     finalURL,
		Title:        title,
		PlainText:    markdown,
		Markdown:     markdown,
		RawMarkup:    markdown,
	}
}

func mainContent(rawHTML string, base *url.URL) (string, string, string) {
	article, err := readability.FromReader(strings.NewReader(rawHTML), base)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.Title), article.Content, article.TextContent
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", "", ""
	}
	doc.Find(noiseSelectors).Remove()
	sel := doc.Find("article").First()
	if sel.Length() == 0 {
		sel = doc.Find("main").First()
	}
	if sel.Length() == 0 {
		sel = doc.Find("body").First()
	}
	html, err := sel.Html()
	if err != nil {
		return "", "", ""
	}
	return "", html, sel.Text()
}

// AbsolutizeLinks rewrites relative href/src attributes against base.
func AbsolutizeLinks(fragment string, base *url.URL) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse fragment: %w", err)
	}
	for _, attr := range []string{"href", "src"} {
		doc.Find("[" + attr + "]").Each(func(_ int, s *goquery.Selection) {
			val, _ := s.Attr(attr)
			if abs, ok := resolve(base, val); ok {
				s.SetAttr(attr, abs)
			}
		})
	}
	out, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render fragment: %w", err)
	}
	return out, nil
}

func resolve(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"javascript:", "mailto:", "data:", "tel:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return "", false
	}
	return base.ResolveReference(u).String(), true
}

// ToMarkdown converts HTML to GitHub-flavoured markdown.
func ToMarkdown(html, domain string) (string, error) {
	converter := md.NewConverter(domain, true, nil)
	converter.Use(plugin.GitHubFlavored())
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return CleanMarkdown(out), nil
}

// CleanMarkdown trims trailing spaces and collapses runs of blank lines.
func CleanMarkdown(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = excessiveLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func pageTitle(page *goquery.Document) string {
	if t := strings.TrimSpace(page.Find("title").First().Text()); t != "" {
		return t
	}
	if content, ok := page.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(content) != "" {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(page.Find("h1").First().Text())
}

func markdownTitle(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
