package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JakeFAU/websum/internal/extract"
	"github.com/JakeFAU/websum/internal/websum"
)

// Builtins returns the descriptors registered by default, in priority order.
func Builtins() []Descriptor {
	return []Descriptor{Twitter(), Telegram(), HuggingFace()}
}

var twitterNoise = []string{
	`[data-testid="BottomBar"]`,
	`[data-testid="LoginBottomBar"]`,
	`[data-testid="sheetDialog"]`,
	"#credential_picker_container",
	`iframe[src*="accounts.google.com"]`,
	`[data-testid="mask"]`,
	`div[role="dialog"]`,
}

// Twitter handles twitter.com and x.com status pages.
func Twitter() Descriptor {
	return Descriptor{
		Name:         "twitter",
		Match:        HostMatcher("twitter.com", "x.com"),
		Timeout:      40 * time.Second,
		WaitSelector: `[data-testid="tweetText"]`,
		AutoScroll:   false,
		PreProcess: func(ctx context.Context, p Page) error {
			return p.Remove(ctx, twitterNoise...)
		},
		Extract: func(ctx context.Context, p Page) (any, error) {
			var tweet *Tweet
			if err := p.Evaluate(ctx, tweetScript, &tweet); err != nil {
				return nil, fmt.Errorf("extract tweet: %w", err)
			}
			return tweet, nil
		},
		Build: BuildTweet,
	}
}

// Tweet is the structured payload extracted from a status page.
type Tweet struct {
	Author    string   `json:"author"`
	Handle    string   `json:"handle"`
	Text      string   `json:"text"`
	CreatedAt string   `json:"created_at"`
	Images    []string `json:"images"`
	Videos    []string `json:"videos"`
	Replies   string   `json:"replies"`
	Retweets  string   `json:"retweets"`
	Likes     string   `json:"likes"`
	Quote     *Tweet   `json:"quote"`
}

const tweetScript = `(() => {
  const art = document.querySelector('article[data-testid="tweet"]');
  if (!art) return null;
  const read = (root) => {
    let author = '', handle = '';
    const nameEl = root.querySelector('[data-testid="User-Name"]');
    if (nameEl) {
      const spans = Array.from(nameEl.querySelectorAll('span')).map(s => (s.innerText || '').trim()).filter(Boolean);
      author = spans[0] || '';
      handle = (spans.find(s => s.startsWith('@')) || '').replace(/^@/, '');
    }
    const textEl = root.querySelector('[data-testid="tweetText"]');
    const timeEl = root.querySelector('time');
    const stat = (id) => { const el = root.querySelector('[data-testid="' + id + '"]'); return el ? (el.innerText || '').trim() : ''; };
    return {
      author, handle,
      text: textEl ? textEl.innerText : '',
      created_at: timeEl ? (timeEl.getAttribute('datetime') || '') : '',
      images: Array.from(root.querySelectorAll('[data-testid="tweetPhoto"] img')).map(i => i.src),
      videos: Array.from(root.querySelectorAll('video')).map(v => v.poster || v.src).filter(Boolean),
      replies: stat('reply'), retweets: stat('retweet'), likes: stat('like'),
    };
  };
  const tweet = read(art);
  const quoted = art.querySelector('div[role="link"] [data-testid="tweetText"]');
  if (quoted) { tweet.quote = read(quoted.closest('div[role="link"]')); }
  return tweet;
})()`

// BuildTweet renders a Tweet payload as a quote-style document, falling back
// to generic extraction when nothing was extracted.
func BuildTweet(in BuildInput) (websum.Document, error) {
	tweet, _ := in.Payload.(*Tweet)
	if tweet == nil || strings.TrimSpace(tweet.Text) == "" {
		return extract.Generic(in.RequestedURL, in.FinalURL, in.HTML)
	}
	finalURL := in.FinalURL
	if finalURL == "" {
		finalURL = in.RequestedURL
	}

	var b strings.Builder
	writeTweet(&b, tweet)
	if tweet.Quote != nil && strings.TrimSpace(tweet.Quote.Text) != "" {
		b.WriteString("\n**Quoted tweet**\n\n")
		writeTweet(&b, tweet.Quote)
	}
	fmt.Fprintf(&b, "\n[View original](%s)\n", finalURL)

	return websum.Document{
		RequestedURL:    in.RequestedURL,
		FinalURL:        finalURL,
		Title:           tweetTitle(tweet),
		PlainText:       strings.TrimSpace(tweet.Text),
		Markdown:        strings.TrimSpace(b.String()),
		RawMarkup:       in.HTML,
		ExtractedMarkup: in.HTML,
	}, nil
}

func writeTweet(b *strings.Builder, t *Tweet) {
	for _, line := range strings.Split(strings.TrimSpace(t.Text), "\n") {
		b.WriteString("> " + line + "\n")
	}
	b.WriteString(">\n")
	fmt.Fprintf(b, "> %s (@%s)", t.Author, t.Handle)
	if t.CreatedAt != "" {
		fmt.Fprintf(b, " · %s", t.CreatedAt)
	}
	b.WriteString("\n\n")
	for _, img := range t.Images {
		fmt.Fprintf(b, "![image](%s)\n", img)
	}
	for _, v := range t.Videos {
		fmt.Fprintf(b, "[video](%s)\n", v)
	}
	var stats []string
	for _, s := range []struct{ label, value string }{
		{"Replies", t.Replies}, {"Retweets", t.Retweets}, {"Likes", t.Likes},
	} {
		if s.value != "" {
			stats = append(stats, s.label+": "+s.value)
		}
	}
	if len(stats) > 0 {
		b.WriteString("\n" + strings.Join(stats, " · ") + "\n")
	}
}

func tweetTitle(t *Tweet) string {
	text := strings.Join(strings.Fields(t.Text), " ")
	if utf8.RuneCountInString(text) > 50 {
		text = string([]rune(text)[:50]) + "..."
	}
	return fmt.Sprintf("%s (@%s): %s", t.Author, t.Handle, text)
}

// Telegram handles public t.me post pages.
func Telegram() Descriptor {
	return Descriptor{
		Name:       "telegram",
		Match:      HostMatcher("t.me"),
		AutoScroll: false,
		PreProcess: func(ctx context.Context, p Page) error {
			return p.Remove(ctx, "#widget_actions_wrap", ".tgme_page_widget_actions")
		},
	}
}

// HuggingFace follows the embedded iframe of Spaces pages.
func HuggingFace() Descriptor {
	return Descriptor{
		Name:       "huggingface",
		Match:      HostMatcher("huggingface.co", "hf.space"),
		AutoScroll: false,
		PreProcess: func(ctx context.Context, p Page) error {
			src, ok, err := p.AttributeValue(ctx, "iframe.space-iframe", "src")
			if err != nil || !ok || strings.TrimSpace(src) == "" {
				return DismissOverlays(ctx, p)
			}
			if err := p.Navigate(ctx, src); err != nil {
				return fmt.Errorf("follow space iframe: %w", err)
			}
			return p.WaitReady(ctx, "body")
		},
	}
}
