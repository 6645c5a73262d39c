package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websum/internal/websum"
)

func newTestFetcher(t *testing.T, mux *http.ServeMux) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	f, err := New(context.Background(), Config{BaseURL: srv.URL, Token: "secret", MaxComments: 2}, nil)
	require.NoError(t, err)
	return f
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestMatch(t *testing.T) {
	t.Parallel()

	f := NewWithClient(nil, 0, nil)
	cases := map[string]bool{
		"https://gist.github.com/alice/abc123":                true,
		"https://gist.github.com/abc123":                      true,
		"https://github.com/golang/go":                        true,
		"https://github.com/golang/go/tree/master/src":        true,
		"https://github.com/golang/go/blob/master/src/fmt.go": true,
		"https://github.com/golang/go/issues/123":             true,
		"https://github.com/golang/go/pull/456":               true,
		"https://github.com/golang/go/issues/abc":             false,
		"https://github.com/golang":                           false,
		"https://github.com/settings/profile":                 false,
		"https://github.com/golang/go/actions":                false,
		"https://example.com/golang/go":                       false,
		"https://github.com/golang/go/blob/master":            false,
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		require.Equal(t, want, f.Match(u), raw)
	}
}

func TestAcquireGist(t *testing.T) {
	t.Parallel()

	var auth atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/gists/abc123", func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"id":"abc123","description":"Handy scripts","owner":{"login":"alice"},
			"files":{"b.py":{"filename":"b.py","language":"Python","content":"print(1)"},
			"a.go":{"filename":"a.go","content":"package main"}}}`)
	})
	f := newTestFetcher(t, mux)

	doc, err := f.Acquire(context.Background(), "https://gist.github.com/alice/abc123")
	require.NoError(t, err)
	require.Equal(t, "Handy scripts", doc.Title)
	require.Equal(t, Source, doc.Source)
	require.Contains(t, doc.Markdown, "```go\npackage main\n```")
	require.Contains(t, doc.Markdown, "```python\nprint(1)\n```")
	require.Less(t, strings.Index(doc.Markdown, "a.go"), strings.Index(doc.Markdown, "b.py"))
	require.Equal(t, "Bearer secret", auth.Load())
}

func TestParseGistID(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://gist.github.com/abc123":                    "abc123",
		"https://gist.github.com/alice/abc123":              "abc123",
		"https://gist.github.com/alice/abc123/revisions":    "abc123",
		"https://gist.github.com/alice/abc123/raw/f00/a.go": "abc123",
		"https://gist.github.com/alice/abc123#file-a-go":    "abc123",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		got := parse(u)
		require.Equal(t, routeGist, got.kind, raw)
		require.Equal(t, want, got.gistID, raw)
	}
}

func TestAcquireBlob(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/golang/go/contents/src/fmt/print.go", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ref") != "master" {
			http.Error(w, `{"message":"bad ref"}`, http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","name":"print.go","path":"src/fmt/print.go","content":%q}`,
			b64("package fmt\n\nfunc Println() {}\n"))
	})
	f := newTestFetcher(t, mux)

	doc, err := f.Acquire(context.Background(), "https://github.com/golang/go/blob/master/src/fmt/print.go")
	require.NoError(t, err)
	require.Equal(t, "golang/go: src/fmt/print.go", doc.Title)
	require.Contains(t, doc.Markdown, "```go\npackage fmt")
}

func TestAcquireIssueCapsComments(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/issues/7", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"number":7,"title":"Crash on start","state":"open","body":"It crashes.",
			"user":{"login":"bob"},"pull_request":{"url":"https://api.github.com/repos/o/r/pulls/7"}}`)
	})
	mux.HandleFunc("/repos/o/r/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("per_page") != "2" {
			http.Error(w, `{"message":"bad page size"}`, http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `[
			{"body":"first","user":{"login":"c1"},"created_at":"2024-01-02T03:04:05Z"},
			{"body":"second","user":{"login":"c2"},"created_at":"2024-01-03T03:04:05Z"},
			{"body":"third","user":{"login":"c3"},"created_at":"2024-01-04T03:04:05Z"}]`)
	})
	f := newTestFetcher(t, mux)

	doc, err := f.Acquire(context.Background(), "https://github.com/o/r/pull/7")
	require.NoError(t, err)
	require.Equal(t, "Pull request #7: Crash on start", doc.Title)
	require.Contains(t, doc.Markdown, "It crashes.")
	require.Contains(t, doc.Markdown, "### @c1 (2024-01-02)")
	require.Contains(t, doc.Markdown, "second")
	require.NotContains(t, doc.Markdown, "third")
}

func TestAcquireRepoReadme(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"full_name":"o/r","description":"A tool","stargazers_count":42,"language":"Go"}`)
	})
	mux.HandleFunc("/repos/o/r/readme", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","content":%q}`, b64("# r\n\nUsage notes."))
	})
	f := newTestFetcher(t, mux)

	doc, err := f.Acquire(context.Background(), "https://github.com/o/r/tree/main/docs")
	require.NoError(t, err)
	require.Equal(t, "o/r", doc.Title)
	require.Contains(t, doc.Markdown, "> A tool")
	require.Contains(t, doc.Markdown, "Usage notes.")
}

func TestAcquireErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   websum.ErrorKind
	}{
		{http.StatusUnauthorized, websum.KindAuthMissing},
		{http.StatusForbidden, websum.KindAuthMissing},
		{http.StatusNotFound, websum.KindUnsupported},
		{http.StatusBadGateway, websum.KindNetwork},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()

			mux := http.NewServeMux()
			mux.HandleFunc("/repos/o/r", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, `{"message":"nope"}`)
			})
			f := newTestFetcher(t, mux)

			_, err := f.Acquire(context.Background(), "https://github.com/o/r")
			kind, ok := websum.KindOf(err)
			require.True(t, ok)
			require.Equal(t, tc.want, kind)
		})
	}
}

func TestAcquireUnsupportedURL(t *testing.T) {
	t.Parallel()

	f := NewWithClient(nil, 0, nil)
	_, err := f.Acquire(context.Background(), "https://github.com/settings")
	kind, _ := websum.KindOf(err)
	require.Equal(t, websum.KindUnsupported, kind)
}

func TestFenceGrowsPastEmbeddedBackticks(t *testing.T) {
	t.Parallel()

	out := fence("markdown", "```go\nx\n```")
	require.Contains(t, out, "````markdown\n")
	require.Equal(t, "go", languageFor("cmd/main.go"))
	require.Equal(t, "dockerfile", languageFor("Dockerfile"))
	require.Empty(t, languageFor("LICENSE"))
}
