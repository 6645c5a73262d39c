package strategy

import (
	"context"
	"fmt"
)

// overlaySelectors are removed during default pre-processing when the matched
// element holds little text.
var overlaySelectors = []string{
	"#onetrust-banner-sdk",
	".fc-consent-root",
	"[class*='cookie-banner']",
	"[id*='cookie-banner']",
	"[class*='cookie-consent']",
	"[id*='cookie-consent']",
	".cc-banner",
	".cc-window",
	".adsbygoogle",
	".ad-container",
	"[class*='popup'][style*='fixed']",
	"[class*='modal'][style*='fixed']",
}

const autoScrollScript = `(async () => {
  const step = Math.max(Math.floor(window.innerHeight / 2), 200);
  let last = -1;
  for (let i = 0; i < 50; i++) {
    window.scrollBy(0, step);
    await new Promise(r => setTimeout(r, 300 + Math.random() * 200));
    const pos = window.scrollY + window.innerHeight;
    if (pos >= document.body.scrollHeight && pos === last) break;
    last = pos;
  }
  window.scrollTo(0, 0);
  return true;
})()`

const dismissOverlayScript = `((selectors) => {
  const words = ['accept', 'agree', 'consent', 'allow all', 'got it'];
  let touched = 0;
  document.querySelectorAll('button, [role="button"]').forEach(el => {
    const t = (el.innerText || '').trim().toLowerCase();
    if (t && t.length < 40 && words.some(w => t.includes(w))) {
      try { el.click(); touched++; } catch (e) {}
    }
  });
  document.querySelectorAll(selectors.join(',')).forEach(el => {
    if ((el.innerText || '').length < 2000) { el.remove(); touched++; }
  });
  return touched;
})(%s)`

// AutoScroll scrolls the page in half-viewport steps to trigger lazy loading.
func AutoScroll(ctx context.Context, p Page) error {
	var done bool
	if err := p.Evaluate(ctx, autoScrollScript, &done); err != nil {
		return fmt.Errorf("auto scroll: %w", err)
	}
	return nil
}

// DismissOverlays clicks consent buttons and removes common banners and modals.
func DismissOverlays(ctx context.Context, p Page) error {
	var touched int
	if err := p.Evaluate(ctx, fmt.Sprintf(dismissOverlayScript, jsStringArray(overlaySelectors)), &touched); err != nil {
		return fmt.Errorf("dismiss overlays: %w", err)
	}
	return nil
}

// DefaultPreProcess is used when a descriptor has no PreProcess hook.
func DefaultPreProcess(ctx context.Context, p Page, autoScroll bool) error {
	if autoScroll {
		if err := AutoScroll(ctx, p); err != nil {
			return err
		}
	}
	return DismissOverlays(ctx, p)
}

func jsStringArray(values []string) string {
	out := "["
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", v)
	}
	return out + "]"
}
