package fetch

import "context"

// BrowserFetchFunc is the signature the headless browser engine exposes.
// The browser package provides it and main wires it in, which keeps this
// package free of the rod dependency tree.
type BrowserFetchFunc func(ctx context.Context, req *Request) (*Result, error)

// BrowserTier escalates a fetch to a real rendered page. It delegates to
// the injected function; an unconfigured tier fails with a browser error
// so the orchestrator records the attempt and moves on.
type BrowserTier struct {
	fn BrowserFetchFunc
}

func NewBrowserTier(fn BrowserFetchFunc) *BrowserTier {
	return &BrowserTier{fn: fn}
}

func (t *BrowserTier) Tier() Tier { return TierBrowser }

func (t *BrowserTier) Fetch(ctx context.Context, req *Request) (*Result, error) {
	if t.fn == nil {
		return nil, NewBrowser("browser tier is not configured", nil)
	}
	res, err := t.fn(ctx, req)
	if err != nil {
		return nil, err
	}
	res.TierUsed = TierBrowser
	return res, nil
}
