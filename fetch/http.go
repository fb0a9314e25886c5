package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// HTTPTier is the cheapest tier: a single non-interactive GET with net/http.
// It never retries; escalation and retry policy live in the orchestrator.
type HTTPTier struct {
	timeout time.Duration
	maxBody int64
	client  *http.Client // shared client for proxy-less requests
}

// NewHTTPTier creates the plain HTTP tier. timeout bounds one attempt when
// the request carries no deadline of its own; maxBody caps body reads.
func NewHTTPTier(timeout time.Duration, maxBody int64) *HTTPTier {
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	return &HTTPTier{
		timeout: timeout,
		maxBody: maxBody,
		client: &http.Client{
			Transport:     &http.Transport{},
			CheckRedirect: maxRedirects(10),
		},
	}
}

func (t *HTTPTier) Tier() Tier { return TierHTTP }

func (t *HTTPTier) Fetch(ctx context.Context, req *Request) (*Result, error) {
	client := t.client
	if req.Proxy != "" {
		proxyURL, err := url.Parse(req.Proxy)
		if err != nil {
			return nil, NewConnection(fmt.Errorf("parse proxy %q: %w", req.Proxy, err))
		}
		client = &http.Client{
			Transport:     &http.Transport{Proxy: http.ProxyURL(proxyURL)},
			CheckRedirect: maxRedirects(10),
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = t.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, NewConnection(fmt.Errorf("build request: %w", err))
	}
	applyHeaders(httpReq, req.Headers)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, Classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewHTTPStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody))
	if err != nil {
		return nil, Classify(err)
	}

	htmlStr := string(body)
	return &Result{
		HTML:       htmlStr,
		Title:      extractTitle(htmlStr),
		StatusCode: resp.StatusCode,
		TierUsed:   TierHTTP,
		FinalURL:   resp.Request.URL.String(),
		Headers:    FlattenHeaders(resp.Header),
	}, nil
}

// applyHeaders sets the identity bundle on the outgoing request. The
// Accept-Encoding override keeps the transport from having to decompress
// exotic encodings manually; Go handles gzip itself when the header is unset,
// so "identity" asks for plain bytes outright.
func applyHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept-Encoding", "identity")
}

func maxRedirects(n int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= n {
			return fmt.Errorf("stopped after %d redirects", n)
		}
		return nil
	}
}

// extractTitle uses the HTML tokenizer to find the first <title> element.
func extractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
