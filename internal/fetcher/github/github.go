// Package github acquires GitHub gists, files, issues, pull requests and
// repository READMEs through the REST API instead of a browser.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	gh "github.com/google/go-github/v80/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/JakeFAU/websum/internal/websum"
)

// Source is the Document.Source value for this fetcher.
const Source = "github"

const defaultMaxComments = 10

// Config configures the fetcher. Token is optional; anonymous access is rate limited.
type Config struct {
	Token       string
	BaseURL     string
	MaxComments int
}

// Fetcher implements websum.Acquirer for github.com and gist.github.com URLs.
type Fetcher struct {
	client      *gh.Client
	maxComments int
	logger      *zap.Logger
}

// New builds a Fetcher with an oauth2 static token source when a token is set.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Fetcher, error) {
	var httpClient *http.Client
	if cfg.Token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}
	client := gh.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = base
	}
	return NewWithClient(client, cfg.MaxComments, logger), nil
}

// NewWithClient wraps an existing go-github client.
func NewWithClient(client *gh.Client, maxComments int, logger *zap.Logger) *Fetcher {
	if maxComments <= 0 {
		maxComments = defaultMaxComments
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, maxComments: maxComments, logger: logger}
}

type routeKind int

const (
	routeNone routeKind = iota
	routeGist
	routeBlob
	routeIssue
	routeRepo
)

type target struct {
	kind   routeKind
	owner  string
	repo   string
	ref    string
	path   string
	number int
	gistID string
}

// reserved first path segments that are not repository owners.
var reserved = map[string]bool{
	"settings": true, "orgs": true, "marketplace": true, "explore": true, "topics": true,
	"notifications": true, "login": true, "features": true, "sponsors": true, "search": true,
}

func parse(u *url.URL) target {
	if u == nil {
		return target{}
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })

	switch host {
	case "gist.github.com":
		// gist.github.com/<id> or gist.github.com/<user>/<id>[/revisions|/raw/...]
		switch len(parts) {
		case 0:
			return target{}
		case 1:
			return target{kind: routeGist, gistID: parts[0]}
		default:
			return target{kind: routeGist, gistID: parts[1]}
		}
	case "github.com":
	default:
		return target{}
	}

	if len(parts) < 2 || reserved[parts[0]] {
		return target{}
	}
	t := target{owner: parts[0], repo: strings.TrimSuffix(parts[1], ".git")}
	if len(parts) == 2 {
		t.kind = routeRepo
		return t
	}
	switch parts[2] {
	case "blob":
		if len(parts) < 5 {
			return target{}
		}
		t.kind, t.ref, t.path = routeBlob, parts[3], strings.Join(parts[4:], "/")
	case "issues", "pull":
		if len(parts) < 4 {
			return target{}
		}
		n, err := strconv.Atoi(parts[3])
		if err != nil || n <= 0 {
			return target{}
		}
		t.kind, t.number = routeIssue, n
	case "tree":
		t.kind = routeRepo
	default:
		return target{}
	}
	return t
}

// Match reports whether u is a GitHub URL this fetcher understands.
func (f *Fetcher) Match(u *url.URL) bool {
	return parse(u).kind != routeNone
}

// Acquire fetches rawURL through the GitHub API.
func (f *Fetcher) Acquire(ctx context.Context, rawURL string) (websum.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return websum.Document{}, websum.UnsupportedError("invalid url", err)
	}
	t := parse(u)
	f.logger.Debug("github acquisition", zap.String("url", rawURL), zap.String("owner", t.owner), zap.String("repo", t.repo))

	var doc websum.Document
	switch t.kind {
	case routeGist:
		doc, err = f.gist(ctx, t)
	case routeBlob:
		doc, err = f.blob(ctx, t)
	case routeIssue:
		doc, err = f.issue(ctx, t)
	case routeRepo:
		doc, err = f.readme(ctx, t)
	default:
		return websum.Document{}, websum.UnsupportedError("not a supported github url", nil)
	}
	if err != nil {
		return websum.Document{}, err
	}
	doc.RequestedURL = rawURL
	doc.FinalURL = rawURL
	doc.PlainText = doc.Markdown
	doc.Source = Source
	return doc, nil
}

func (f *Fetcher) gist(ctx context.Context, t target) (websum.Document, error) {
	gist, resp, err := f.client.Gists.Get(ctx, t.gistID)
	if err != nil {
		return websum.Document{}, mapError(ctx, "get gist", resp, err)
	}
	names := make([]string, 0, len(gist.Files))
	for name := range gist.Files {
		names = append(names, string(name))
	}
	sort.Strings(names)

	var b strings.Builder
	title := gist.GetDescription()
	if title == "" && len(names) > 0 {
		title = names[0]
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if owner := gist.GetOwner().GetLogin(); owner != "" {
		fmt.Fprintf(&b, "Gist by @%s\n\n", owner)
	}
	for _, name := range names {
		file := gist.Files[gh.GistFilename(name)]
		lang := strings.ToLower(file.GetLanguage())
		if lang == "" {
			lang = languageFor(name)
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", name, fence(lang, file.GetContent()))
	}
	return websum.Document{Title: title, Markdown: strings.TrimSpace(b.String())}, nil
}

func (f *Fetcher) blob(ctx context.Context, t target) (websum.Document, error) {
	file, _, resp, err := f.client.Repositories.GetContents(ctx, t.owner, t.repo, t.path,
		&gh.RepositoryContentGetOptions{Ref: t.ref})
	if err != nil {
		return websum.Document{}, mapError(ctx, "get contents", resp, err)
	}
	if file == nil {
		return websum.Document{}, websum.UnsupportedError("path is a directory", nil)
	}
	content, err := file.GetContent()
	if err != nil {
		return websum.Document{}, websum.RenderFailureError("decode file contents", err)
	}
	title := fmt.Sprintf("%s/%s: %s", t.owner, t.repo, t.path)
	// Markdown files are already readable; fencing them would hide their structure.
	body := content
	if lang := languageFor(t.path); lang != "markdown" {
		body = fence(lang, content)
	}
	md := fmt.Sprintf("# %s\n\n%s", title, body)
	return websum.Document{Title: title, Markdown: md}, nil
}

func (f *Fetcher) issue(ctx context.Context, t target) (websum.Document, error) {
	issue, resp, err := f.client.Issues.Get(ctx, t.owner, t.repo, t.number)
	if err != nil {
		return websum.Document{}, mapError(ctx, "get issue", resp, err)
	}
	comments, resp, err := f.client.Issues.ListComments(ctx, t.owner, t.repo, t.number,
		&gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: f.maxComments}})
	if err != nil {
		return websum.Document{}, mapError(ctx, "list comments", resp, err)
	}

	kind := "Issue"
	if issue.IsPullRequest() {
		kind = "Pull request"
	}
	title := fmt.Sprintf("%s #%d: %s", kind, t.number, issue.GetTitle())

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Repository:** %s/%s · **State:** %s · **Author:** @%s\n\n",
		t.owner, t.repo, issue.GetState(), issue.GetUser().GetLogin())
	if body := strings.TrimSpace(issue.GetBody()); body != "" {
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	if len(comments) > f.maxComments {
		comments = comments[:f.maxComments]
	}
	if len(comments) > 0 {
		b.WriteString("## Comments\n\n")
		for _, c := range comments {
			fmt.Fprintf(&b, "### @%s (%s)\n\n%s\n\n",
				c.GetUser().GetLogin(), c.GetCreatedAt().Format("2006-01-02"), strings.TrimSpace(c.GetBody()))
		}
	}
	return websum.Document{Title: title, Markdown: strings.TrimSpace(b.String())}, nil
}

func (f *Fetcher) readme(ctx context.Context, t target) (websum.Document, error) {
	repo, resp, err := f.client.Repositories.Get(ctx, t.owner, t.repo)
	if err != nil {
		return websum.Document{}, mapError(ctx, "get repository", resp, err)
	}
	readme, resp, err := f.client.Repositories.GetReadme(ctx, t.owner, t.repo, nil)
	if err != nil {
		return websum.Document{}, mapError(ctx, "get readme", resp, err)
	}
	content, err := readme.GetContent()
	if err != nil {
		return websum.Document{}, websum.RenderFailureError("decode readme", err)
	}

	title := repo.GetFullName()
	if title == "" {
		title = t.owner + "/" + t.repo
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if desc := repo.GetDescription(); desc != "" {
		fmt.Fprintf(&b, "> %s\n\n", desc)
	}
	fmt.Fprintf(&b, "Stars: %d · Language: %s\n\n", repo.GetStargazersCount(), repo.GetLanguage())
	b.WriteString(strings.TrimSpace(content))
	return websum.Document{Title: title, Markdown: b.String()}, nil
}

func mapError(ctx context.Context, op string, resp *gh.Response, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return websum.TimeoutError(op+" timed out", err)
	}
	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	var errResp *gh.ErrorResponse
	if status == 0 && errors.As(err, &errResp) && errResp.Response != nil {
		status = errResp.Response.StatusCode
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return websum.AuthMissingError(op+": github credentials missing or insufficient", err)
	case status == http.StatusNotFound:
		return websum.UnsupportedError(op+": not found or private", err)
	default:
		return websum.NetworkError(op+" failed", err)
	}
}

func fence(lang, content string) string {
	marker := "```"
	for strings.Contains(content, marker) {
		marker += "`"
	}
	return fmt.Sprintf("%s%s\n%s\n%s", marker, lang, strings.TrimRight(content, "\n"), marker)
}

var extLanguages = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".mjs": "javascript", ".ts": "typescript",
	".tsx": "tsx", ".jsx": "jsx", ".rs": "rust", ".java": "java", ".kt": "kotlin", ".rb": "ruby",
	".c": "c", ".h": "c", ".cc": "cpp", ".cpp": "cpp", ".hpp": "cpp", ".cs": "csharp",
	".swift": "swift", ".php": "php", ".sh": "bash", ".bash": "bash", ".zsh": "zsh",
	".sql": "sql", ".json": "json", ".yaml": "yaml", ".yml": "yaml", ".toml": "toml",
	".xml": "xml", ".html": "html", ".css": "css", ".md": "markdown", ".lua": "lua",
	".scala": "scala", ".hs": "haskell", ".ex": "elixir", ".dockerfile": "dockerfile",
}

func languageFor(name string) string {
	base := strings.ToLower(path.Base(name))
	if base == "dockerfile" {
		return "dockerfile"
	}
	if base == "makefile" {
		return "makefile"
	}
	return extLanguages[path.Ext(base)]
}
