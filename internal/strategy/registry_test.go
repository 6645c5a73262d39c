package strategy

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryFirstMatchWins(t *testing.T) {
	t.Parallel()

	r := NewRegistry(
		Descriptor{Name: "first", Match: HostMatcher("example.com")},
		Descriptor{Name: "second", Match: HostMatcher("example.com", "example.org")},
	)
	require.Equal(t, "first", r.Match("https://example.com/a").Name)
	require.Equal(t, "first", r.Match("https://blog.example.com/a").Name)
	require.Equal(t, "second", r.Match("https://www.example.org").Name)
	require.Equal(t, []string{"first", "second"}, r.Names())
}

func TestRegistryFallsBackToDefault(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Builtins()...)
	d := r.Match("https://news.ycombinator.com/item?id=1")
	require.Equal(t, DefaultName, d.Name)
	require.True(t, d.AutoScroll)
	require.Nil(t, d.PreProcess)

	require.Equal(t, DefaultName, r.Match("::not a url").Name)
}

func TestRegistryIgnoresDescriptorWithoutMatcher(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Descriptor{Name: "broken"})
	require.Empty(t, r.Names())
}

func TestBuiltinsMatchHosts(t *testing.T) {
	t.Parallel()

	r := NewRegistry(Builtins()...)
	cases := map[string]string{
		"https://x.com/jack/status/20":           "twitter",
		"https://mobile.twitter.com/jack":        "twitter",
		"https://t.me/durov/123":                 "telegram",
		"https://huggingface.co/spaces/org/demo": "huggingface",
		"https://org-demo.hf.space/":             "huggingface",
		"https://nottwitter.com/":                DefaultName,
	}
	for raw, want := range cases {
		require.Equal(t, want, r.Match(raw).Name, raw)
	}
	require.False(t, r.Match("https://x.com/a").AutoScroll)
}

func TestHostMatcherNil(t *testing.T) {
	t.Parallel()

	require.False(t, HostMatcher("example.com")(nil))
	u, err := url.Parse("https://EXAMPLE.com")
	require.NoError(t, err)
	require.True(t, HostMatcher("www.example.com")(u))
}

type fakePage struct {
	scripts   []string
	removed   []string
	navigated []string
	waited    []string
	attrs     map[string]string
	evalErr   error
	evalFunc  func(script string, res any)
}

func (p *fakePage) Evaluate(_ context.Context, script string, res any) error {
	p.scripts = append(p.scripts, script)
	if p.evalErr != nil {
		return p.evalErr
	}
	if p.evalFunc != nil {
		p.evalFunc(script, res)
	}
	return nil
}

func (p *fakePage) Navigate(_ context.Context, u string) error {
	p.navigated = append(p.navigated, u)
	return nil
}

func (p *fakePage) WaitReady(_ context.Context, sel string) error {
	p.waited = append(p.waited, sel)
	return nil
}

func (p *fakePage) Click(context.Context, string) error { return nil }

func (p *fakePage) Remove(_ context.Context, selectors ...string) error {
	p.removed = append(p.removed, selectors...)
	return nil
}

func (p *fakePage) AttributeValue(_ context.Context, sel, name string) (string, bool, error) {
	v, ok := p.attrs[sel+"@"+name]
	return v, ok, nil
}

func (p *fakePage) OuterHTML(context.Context) (string, error) { return "<html></html>", nil }

func (p *fakePage) Location(context.Context) (string, error) { return "", nil }

func TestDefaultPreProcess(t *testing.T) {
	t.Parallel()

	p := &fakePage{}
	require.NoError(t, DefaultPreProcess(context.Background(), p, true))
	require.Len(t, p.scripts, 2)
	require.Contains(t, p.scripts[0], "scrollBy")
	require.Contains(t, p.scripts[1], "#onetrust-banner-sdk")

	p = &fakePage{}
	require.NoError(t, DefaultPreProcess(context.Background(), p, false))
	require.Len(t, p.scripts, 1)

	p = &fakePage{evalErr: errors.New("boom")}
	require.ErrorContains(t, DefaultPreProcess(context.Background(), p, true), "auto scroll")
}

func TestHuggingFaceFollowsIframe(t *testing.T) {
	t.Parallel()

	p := &fakePage{attrs: map[string]string{"iframe.space-iframe@src": "https://org-demo.hf.space"}}
	require.NoError(t, HuggingFace().PreProcess(context.Background(), p))
	require.Equal(t, []string{"https://org-demo.hf.space"}, p.navigated)
	require.Equal(t, []string{"body"}, p.waited)

	p = &fakePage{}
	require.NoError(t, HuggingFace().PreProcess(context.Background(), p))
	require.Empty(t, p.navigated)
	require.Len(t, p.scripts, 1)
}

func TestTwitterHooks(t *testing.T) {
	t.Parallel()

	d := Twitter()
	p := &fakePage{evalFunc: func(_ string, res any) {
		out := res.(**Tweet)
		*out = &Tweet{Author: "Jack", Handle: "jack", Text: "just setting up my twttr"}
	}}
	require.NoError(t, d.PreProcess(context.Background(), p))
	require.Contains(t, p.removed, `[data-testid="LoginBottomBar"]`)

	payload, err := d.Extract(context.Background(), p)
	require.NoError(t, err)
	tweet, ok := payload.(*Tweet)
	require.True(t, ok)
	require.Equal(t, "jack", tweet.Handle)
}

func TestBuildTweet(t *testing.T) {
	t.Parallel()

	tweet := &Tweet{
		Author:    "Ada",
		Handle:    "ada",
		Text:      strings.Repeat("word ", 15) + "\nsecond line",
		CreatedAt: "2024-01-02T03:04:05.000Z",
		Images:    []string{"https://pbs.twimg.com/media/1.jpg"},
		Likes:     "12",
		Quote:     &Tweet{Author: "Bob", Handle: "bob", Text: "quoted"},
	}
	doc, err := BuildTweet(BuildInput{
		RequestedURL: "https://x.com/ada/status/1",
		FinalURL:     "https://x.com/ada/status/1",
		HTML:         "<html></html>",
		Payload:      tweet,
	})
	require.NoError(t, err)
	require.Equal(t, "Ada (@ada): "+strings.Repeat("word ", 10)+"...", doc.Title)
	require.Contains(t, doc.Markdown, "> second line")
	require.Contains(t, doc.Markdown, "![image](https://pbs.twimg.com/media/1.jpg)")
	require.Contains(t, doc.Markdown, "Likes: 12")
	require.Contains(t, doc.Markdown, "**Quoted tweet**")
	require.Contains(t, doc.Markdown, "> quoted")
	require.True(t, strings.HasSuffix(doc.Markdown, "[View original](https://x.com/ada/status/1)"))
}

func TestBuildTweetWithoutPayloadUsesGenericExtraction(t *testing.T) {
	t.Parallel()

	doc, err := BuildTweet(BuildInput{
		RequestedURL: "https://x.com/ada/status/1",
		HTML:         "<html><head><title>X</title></head><body><p>hello there</p></body></html>",
	})
	require.NoError(t, err)
	require.Equal(t, "https://x.com/ada/status/1", doc.FinalURL)
	require.Contains(t, doc.Markdown, "hello there")
}
