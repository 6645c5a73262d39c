// Package github commits notes to a repository through the contents API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v80/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/JakeFAU/websum/internal/publisher"
	"github.com/JakeFAU/websum/internal/websum"
)

// Config selects the target repository. Repo is "owner/name".
type Config struct {
	Token   string
	BaseURL string
	Repo    string
	Branch  string
	Dir     string
}

// Publisher implements websum.Publisher by creating one file per note.
type Publisher struct {
	client *gh.Client
	owner  string
	repo   string
	branch string
	dir    string
	clock  websum.Clock
	logger *zap.Logger
}

// New authenticates with cfg.Token and returns a Publisher.
func New(ctx context.Context, cfg Config, clock websum.Clock, logger *zap.Logger) (*Publisher, error) {
	if cfg.Token == "" {
		return nil, errors.New("github publisher requires a token")
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	client := gh.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = base
	}
	return NewWithClient(client, cfg, clock, logger)
}

// NewWithClient wraps an existing go-github client.
func NewWithClient(client *gh.Client, cfg Config, clock websum.Clock, logger *zap.Logger) (*Publisher, error) {
	owner, repo, ok := strings.Cut(cfg.Repo, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return nil, fmt.Errorf("github repo %q must be owner/name", cfg.Repo)
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	return &Publisher{
		client: client,
		owner:  owner,
		repo:   repo,
		branch: branch,
		dir:    cfg.Dir,
		clock:  clock,
		logger: logger,
	}, nil
}

// Publish creates the note file and returns its HTML URL, or the repository path
// when the API response omits one. Screenshots are not committed.
func (p *Publisher) Publish(ctx context.Context, markdown string, meta websum.NoteMetadata) (string, error) {
	now := p.clock.Now()
	filePath := publisher.NotePath(p.dir, meta, now)
	origin := meta.URL
	if origin == "" {
		origin = meta.Source
	}
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(publisher.CommitMessage(origin, now)),
		Content: []byte(markdown),
		Branch:  gh.Ptr(p.branch),
	}
	res, resp, err := p.client.Repositories.CreateFile(ctx, p.owner, p.repo, filePath, opts)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return "", fmt.Errorf("create %s in %s/%s (status %d): %w", filePath, p.owner, p.repo, status, err)
	}
	if resp != nil && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create %s: unexpected status %d", filePath, resp.StatusCode)
	}
	sha := ""
	locator := fmt.Sprintf("github://%s/%s/%s", p.owner, p.repo, filePath)
	if res != nil {
		sha = res.Commit.GetSHA()
		if html := res.GetContent().GetHTMLURL(); html != "" {
			locator = html
		}
	}
	p.logger.Info("note committed",
		zap.String("job_id", meta.JobID),
		zap.String("path", filePath),
		zap.String("commit", sha),
	)
	return locator, nil
}
