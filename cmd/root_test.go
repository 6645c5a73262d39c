package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/websum/internal/config"
	"github.com/JakeFAU/websum/internal/websum"
)

func fakeLoader(cfg config.Config) envLoader {
	return func(string) (*env, error) {
		return &env{cfg: cfg, logger: zap.NewNop()}, nil
	}
}

func run(t *testing.T, load envLoader, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(load)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestChunkCommandReadsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "page.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nFirst paragraph.\n"), 0o600))
	cfg := config.Config{Chunker: config.ChunkerConfig{MaxTokens: 1000, UseTiktoken: true}}

	out, err := run(t, fakeLoader(cfg), "", "chunk", "--runes", path)

	require.NoError(t, err)
	require.Contains(t, out, "<!-- chunk 1/1 ")
	require.Contains(t, out, "First paragraph.")
}

func TestChunkCommandReadsStdinAndHonoursBudget(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := range 6 {
		b.WriteString("## Section ")
		b.WriteString(string(rune('A' + i)))
		b.WriteString("\n\n")
		b.WriteString(strings.Repeat("words and more words ", 20))
		b.WriteString("\n\n")
	}
	cfg := config.Config{Chunker: config.ChunkerConfig{MaxTokens: 4000}}

	out, err := run(t, fakeLoader(cfg), b.String(), "chunk", "--max-tokens", "150", "-")

	require.NoError(t, err)
	require.Greater(t, strings.Count(out, "<!-- chunk "), 1)
	require.Contains(t, out, "Section F")
}

func TestChunkCommandMissingFile(t *testing.T) {
	t.Parallel()

	_, err := run(t, fakeLoader(config.Config{Chunker: config.ChunkerConfig{MaxTokens: 10}}), "",
		"chunk", filepath.Join(t.TempDir(), "nope.md"))
	require.ErrorContains(t, err, "nope.md")
}

func TestLoaderErrorsStopSubcommands(t *testing.T) {
	t.Parallel()

	failing := func(string) (*env, error) { return nil, errors.New("bad config") }
	_, err := run(t, failing, "", "chunk", "-")
	require.ErrorContains(t, err, "bad config")
}

func TestConfigFlagReachesLoader(t *testing.T) {
	t.Parallel()

	var got string
	load := func(path string) (*env, error) {
		got = path
		return &env{cfg: config.Config{Chunker: config.ChunkerConfig{MaxTokens: 10}}, logger: zap.NewNop()}, nil
	}
	_, err := run(t, load, "x", "--config", "/tmp/websum.yaml", "chunk", "-")
	require.NoError(t, err)
	require.Equal(t, "/tmp/websum.yaml", got)
}

func TestFetchRequiresOneURL(t *testing.T) {
	t.Parallel()

	_, err := run(t, fakeLoader(config.Config{}), "", "fetch")
	require.Error(t, err)
}

func TestWriteDocument(t *testing.T) {
	t.Parallel()

	doc := websum.Document{
		RequestedURL: "https://example.com",
		FinalURL:     "https://example.com/",
		Title:        "Example",
		Source:       "headless",
		Markdown:     "Body text.",
	}

	var md bytes.Buffer
	require.NoError(t, writeDocument(&md, doc, false))
	require.Equal(t, "# Example\n\nBody text.\n", md.String())

	var js bytes.Buffer
	require.NoError(t, writeDocument(&js, doc, true))
	var out fetchOutput
	require.NoError(t, json.Unmarshal(js.Bytes(), &out))
	require.Equal(t, "headless", out.Source)
	require.Equal(t, "https://example.com/", out.FinalURL)
}

func TestResolveEnvWithoutLoad(t *testing.T) {
	t.Parallel()

	_, err := resolveEnv(context.Background())
	require.Error(t, err)
}
