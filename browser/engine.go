// Package browser drives a headless Chromium through go-rod: one shared
// browser process, one page per fetch, stealth flags and fingerprint masking
// applied before any navigation.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/shelfwatch/shelfwatch/config"
	"github.com/shelfwatch/shelfwatch/fetch"
)

// Engine owns the process-scoped browser. The process and its context are
// launched lazily on the first fetch and reused until Close; pages are
// created per fetch and never shared.
type Engine struct {
	cfg config.BrowserConfig

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	closed   bool

	// sem caps concurrently open pages at cfg.MaxPages.
	sem         chan struct{}
	activePages atomic.Int32
}

// New creates the engine without launching anything. The first FetchPage
// pays the launch cost.
func New(cfg config.BrowserConfig) *Engine {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Engine{
		cfg: cfg,
		sem: make(chan struct{}, maxPages),
	}
}

// ensureBrowser launches and connects the shared browser on first use.
func (e *Engine) ensureBrowser() (*rod.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fetch.NewBrowser("engine is shut down", nil)
	}
	if e.browser != nil {
		return e.browser, nil
	}

	l := launcher.New().
		Headless(e.cfg.Headless).
		NoSandbox(e.cfg.NoSandbox)
	if e.cfg.BrowserBin != "" {
		l = l.Bin(e.cfg.BrowserBin)
	}

	// Hide the usual automation tells before the first page exists.
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fetch.NewBrowser("failed to launch browser", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fetch.NewBrowser("failed to connect to browser", err)
	}

	slog.Info("browser launched", "controlURL", controlURL, "maxPages", cap(e.sem))
	e.launcher = l
	e.browser = b
	return b, nil
}

// acquirePage blocks until a page slot is free, then opens a new tab.
// The returned release func closes the page and frees the slot; it is safe
// to call on every exit path.
func (e *Engine) acquirePage(ctx context.Context) (*rod.Page, func(), error) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, fetch.NewTimeout(ctx.Err())
	}

	b, err := e.ensureBrowser()
	if err != nil {
		<-e.sem
		return nil, nil, err
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		<-e.sem
		return nil, nil, fetch.NewBrowser("failed to create page", err)
	}
	e.activePages.Add(1)

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Close with the page's own context so cleanup succeeds even
			// after the request context expired.
			if err := page.Close(); err != nil {
				slog.Warn("page close failed", "error", err)
			}
			e.activePages.Add(-1)
			<-e.sem
		})
	}
	return page, release, nil
}

// Stats reports current page load for health checks.
func (e *Engine) Stats() (active, max int) {
	return int(e.activePages.Load()), cap(e.sem)
}

// Available reports whether the engine can serve fetches.
func (e *Engine) Available() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed
}

// Close releases the browser and its launcher. Idempotent; fetches after
// Close fail with a browser error.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true

	if e.browser != nil {
		if err := e.browser.Close(); err != nil {
			slog.Warn("browser close failed", "error", err)
		}
		e.browser = nil
	}
	if e.launcher != nil {
		e.launcher.Kill()
		e.launcher = nil
	}
	slog.Info("browser engine shut down")
}

// categorize wraps a raw rod error into the fetch taxonomy: context expiry
// is a timeout, everything else a browser failure.
func categorize(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fetch.NewTimeout(err)
	}
	return fetch.NewBrowser(msg, err)
}
