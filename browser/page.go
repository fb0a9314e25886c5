package browser

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/shelfwatch/shelfwatch/fetch"
)

// PageRequest describes one browser fetch.
type PageRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration

	// WaitUntil overrides the configured wait condition:
	// "load", "domcontentloaded" or "networkidle".
	WaitUntil string

	// AutoScroll scrolls to the bottom repeatedly until the page height
	// stops growing, forcing lazy-loaded content to render.
	AutoScroll bool

	// InterceptNetwork records every response the page triggers.
	InterceptNetwork bool

	// Screenshot captures a full-page PNG after the content settles.
	Screenshot bool
}

// PageResult is the rendered outcome of one page fetch.
type PageResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	NetworkLog []fetch.NetworkEntry
	Screenshot []byte
}

// autoScrollMaxSteps bounds the scroll loop against pages that grow forever
// (infinite feeds).
const autoScrollMaxSteps = 20

// FetchPage renders one page and returns its final DOM.
//
// Lifecycle on every path: acquire a tab slot, open a tab, install stealth
// JS and headers, mount the hijack router, navigate, wait, optionally
// scroll and settle, capture, close the tab. Stealth injection and router
// mounting must both happen before Navigate or they miss the load.
func (e *Engine) FetchPage(ctx context.Context, req *PageRequest) (*PageResult, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.NavigationTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, release, err := e.acquirePage(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
	}

	applyExtraHeaders(page, req)

	router, netLog := mountRouter(page, e.cfg.BlockedResourceTypes, req.InterceptNetwork)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	if navErr := p.Navigate(req.URL); navErr != nil {
		return nil, categorize(navErr, "navigation failed")
	}

	e.waitFor(p, req.WaitUntil, router != nil)

	if req.AutoScroll {
		e.autoScroll(ctx, p)
	}

	if e.cfg.SettleDelay > 0 {
		sleepCtx(ctx, e.cfg.SettleDelay)
	}

	// Status from the navigation timing entry; no CDP event listeners
	// needed, which keeps the hijack router happy.
	statusCode := 0
	if res, evalErr := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); evalErr == nil {
		statusCode = res.Value.Int()
	}

	html, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorize(htmlErr, "failed to read page HTML")
	}

	result := &PageResult{
		HTML:       html,
		Title:      evalStringOrEmpty(p, `() => document.title`),
		StatusCode: statusCode,
		FinalURL:   evalStringOrEmpty(p, `() => window.location.href`),
	}
	if result.FinalURL == "" {
		result.FinalURL = req.URL
	}
	if netLog != nil {
		result.NetworkLog = netLog.snapshot()
	}
	if req.Screenshot {
		shot, shotErr := p.Screenshot(true, &proto.PageCaptureScreenshot{
			Format: proto.PageCaptureScreenshotFormatPng,
		})
		if shotErr != nil {
			slog.Warn("screenshot failed", "url", req.URL, "error", shotErr)
		} else {
			result.Screenshot = shot
		}
	}
	return result, nil
}

// TierFetch adapts the engine to the fetch tier contract, so main can hand
// it to fetch.NewBrowserTier without the fetch package importing browser.
func (e *Engine) TierFetch(ctx context.Context, req *fetch.Request) (*fetch.Result, error) {
	res, err := e.FetchPage(ctx, &PageRequest{
		URL:        req.URL,
		Headers:    req.Headers,
		Timeout:    req.Timeout,
		AutoScroll: true,
	})
	if err != nil {
		return nil, err
	}
	return &fetch.Result{
		HTML:       res.HTML,
		Title:      res.Title,
		StatusCode: res.StatusCode,
		TierUsed:   fetch.TierBrowser,
		FinalURL:   res.FinalURL,
		NetworkLog: res.NetworkLog,
		Screenshot: res.Screenshot,
	}, nil
}

// applyExtraHeaders sets custom headers plus a Google-search Referer when
// the caller did not supply one.
func applyExtraHeaders(page *rod.Page, req *PageRequest) {
	extra := make(map[string]string, len(req.Headers)+1)
	if _, hasReferer := req.Headers["Referer"]; !hasReferer {
		if u, err := url.Parse(req.URL); err == nil {
			extra["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range req.Headers {
		extra[k] = v
	}
	if len(extra) == 0 {
		return
	}
	_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(extra)}.Call(page)
}

// waitFor applies the requested wait condition after navigation.
//
// NOTE: WaitRequestIdle uses the Fetch domain, which conflicts with an
// active hijack router on Chromium 145+, so "networkidle" degrades to
// WaitDOMStable whenever interception is mounted.
func (e *Engine) waitFor(p *rod.Page, waitUntil string, hijacked bool) {
	if waitUntil == "" {
		waitUntil = e.cfg.WaitUntil
	}
	switch waitUntil {
	case "load":
		if err := p.WaitLoad(); err != nil {
			slog.Debug("wait for load failed, proceeding", "error", err)
		}
	case "networkidle":
		if !hijacked {
			wait := p.WaitRequestIdle(300*time.Millisecond, nil, nil, nil)
			wait()
			return
		}
		fallthrough
	default: // "domcontentloaded" and anything unrecognized
		if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
			slog.Debug("DOM did not stabilize, proceeding with current DOM", "error", err)
		}
	}
}

// autoScroll pages to the bottom until two consecutive height measurements
// agree, then returns to the top so above-the-fold screenshots look right.
func (e *Engine) autoScroll(ctx context.Context, p *rod.Page) {
	scrollUntilStable(ctx, e.cfg.ScrollDelay, func() (int, error) {
		res, err := p.Eval(`() => {
			window.scrollTo(0, document.body.scrollHeight);
			return document.body.scrollHeight;
		}`)
		if err != nil {
			return 0, err
		}
		return res.Value.Int(), nil
	})
	_, _ = p.Eval(`() => window.scrollTo(0, 0)`)
	sleepCtx(ctx, 500*time.Millisecond)
}

// scrollUntilStable drives scroll passes until the measured page height
// repeats, the step cap is hit, or the context dies. Returns the number of
// measurements taken.
func scrollUntilStable(ctx context.Context, delay time.Duration, measure func() (int, error)) int {
	lastHeight := -1
	for step := 0; step < autoScrollMaxSteps; step++ {
		height, err := measure()
		if err != nil {
			slog.Debug("auto-scroll eval failed, stopping", "error", err)
			return step
		}
		if height == lastHeight {
			return step + 1
		}
		lastHeight = height
		if !sleepCtx(ctx, delay) {
			return step + 1
		}
	}
	return autoScrollMaxSteps
}

// sleepCtx sleeps for d or until ctx expires; reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(p *rod.Page, js string) string {
	res, err := p.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
