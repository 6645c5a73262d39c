// Package headless acquires pages by driving a headless browser through a
// matched strategy descriptor.
package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/websum/internal/strategy"
)

// Browser opens isolated sessions. Implementations must be safe for concurrent use.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one isolated browsing context. Close must be called exactly once.
type Session interface {
	strategy.Page
	// Context is the context browser actions must derive from.
	Context() context.Context
	// Status is the HTTP status of the last main document, or 0 when unknown.
	Status() int
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// Config controls the Chrome browser.
type Config struct {
	MaxParallel int
	UserAgent   string
	ExecPath    string
	NoSandbox   bool
}

// Chrome implements Browser with chromedp. Each session runs in its own
// browser context so cookies and cache never leak between acquisitions.
type Chrome struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc

	mu          sync.Mutex
	root        context.Context
	rootCancel  context.CancelFunc
	rootStarted bool
}

// NewChromedp creates a Chrome browser. The browser process starts on the first Open.
func NewChromedp(cfg Config) (*Chrome, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chrome{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts the browser down.
func (c *Chrome) Close() {
	c.mu.Lock()
	if c.rootCancel != nil {
		c.rootCancel()
	}
	c.mu.Unlock()
	c.allocCancel()
}

// Open waits for a free slot and returns a session in a fresh browser context.
func (c *Chrome) Open(ctx context.Context) (Session, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	root, err := c.rootContext()
	if err != nil {
		c.release()
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(root, chromedp.WithNewBrowserContext())
	stop := context.AfterFunc(ctx, tabCancel)

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	s := &chromeSession{
		ctx:   tabCtx,
		meta:  meta,
		close: func() { stop(); tabCancel(); c.release() },
	}
	if err := chromedp.Run(tabCtx, c.setupAction()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open browser context: %w", err)
	}
	// The top-level frame shares its id with the page target.
	if tab := chromedp.FromContext(tabCtx); tab != nil && tab.Target != nil {
		meta.setMainFrame(cdp.FrameID(tab.Target.TargetID))
	}
	return s, nil
}

func (c *Chrome) rootContext() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rootStarted {
		return c.root, nil
	}
	root, cancel := chromedp.NewContext(c.allocator)
	// Running an empty action list launches the browser process.
	if err := chromedp.Run(root); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	c.root, c.rootCancel, c.rootStarted = root, cancel, true
	return root, nil
}

func (c *Chrome) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (c *Chrome) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (c *Chrome) release() {
	if c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}

type chromeSession struct {
	ctx       context.Context
	meta      *responseMeta
	closeOnce sync.Once
	close     func()
}

func (s *chromeSession) Context() context.Context { return s.ctx }

func (s *chromeSession) Status() int {
	status, _ := s.meta.snapshot()
	return status
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(s.close)
	return nil
}

func (s *chromeSession) Evaluate(ctx context.Context, script string, res any) error {
	awaitPromise := func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, res, awaitPromise)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := chromedp.Run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) WaitReady(ctx context.Context, selector string) error {
	if err := chromedp.Run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// Click, Remove and AttributeValue go through scripts so a missing element
// never blocks until the deadline.
func (s *chromeSession) Click(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (el) el.click(); return !!el; })()`, jsString(selector))
	var clicked bool
	return s.Evaluate(ctx, script, &clicked)
}

func (s *chromeSession) Remove(ctx context.Context, selectors ...string) error {
	if len(selectors) == 0 {
		return nil
	}
	list, err := json.Marshal(selectors)
	if err != nil {
		return fmt.Errorf("encode selectors: %w", err)
	}
	script := fmt.Sprintf(`(() => { let n = 0; for (const sel of %s) { document.querySelectorAll(sel).forEach(el => { el.remove(); n++; }); } return n; })()`, list)
	var removed int
	return s.Evaluate(ctx, script, &removed)
}

func (s *chromeSession) AttributeValue(ctx context.Context, selector, name string) (string, bool, error) {
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el || !el.hasAttribute(%s)) return {found: false, value: ""}; return {found: true, value: el.getAttribute(%s)}; })()`,
		jsString(selector), jsString(name), jsString(name))
	var out struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	if err := s.Evaluate(ctx, script, &out); err != nil {
		return "", false, err
	}
	return out.Value, out.Found, nil
}

func (s *chromeSession) OuterHTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read outer html: %w", err)
	}
	return html, nil
}

func (s *chromeSession) Location(ctx context.Context) (string, error) {
	var loc string
	if err := chromedp.Run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (s *chromeSession) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// responseMeta records the status of the main frame's document response.
// Events arriving before the main frame is known are ignored.
type responseMeta struct {
	mu        sync.RWMutex
	mainFrame cdp.FrameID
	status    int
	url       string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) setMainFrame(id cdp.FrameID) {
	m.mu.Lock()
	m.mainFrame = id
	m.mu.Unlock()
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mainFrame == "" || event.FrameID != m.mainFrame {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}
