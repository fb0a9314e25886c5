package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/proxy"
)

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		// Fallback: if spec generation fails, handshakes fall back to the
		// stock HelloChrome_Auto preset.
		return
	}
	// Replace h2 with http/1.1 only in the ALPN extension so the server
	// never negotiates HTTP/2 (which Go's http.Transport cannot handle
	// over a utls connection).
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// BypassTier fetches with a Chrome TLS fingerprint (utls) to get past
// TLS-fingerprint-based bot walls that reject Go's native ClientHello.
// Same contract and error taxonomy as the plain tier.
type BypassTier struct {
	timeout time.Duration
	maxBody int64
}

// NewBypassTier creates the anti-bot bypass tier.
func NewBypassTier(timeout time.Duration, maxBody int64) *BypassTier {
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	return &BypassTier{timeout: timeout, maxBody: maxBody}
}

func (t *BypassTier) Tier() Tier { return TierBypass }

func (t *BypassTier) Fetch(ctx context.Context, req *Request) (*Result, error) {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, req.Proxy)
		},
		ForceAttemptHTTP2: false,
	}
	if req.Proxy != "" {
		proxyURL, err := url.Parse(req.Proxy)
		if err != nil {
			return nil, NewConnection(fmt.Errorf("parse proxy %q: %w", req.Proxy, err))
		}
		if proxyURL.Scheme == "http" || proxyURL.Scheme == "https" {
			// CONNECT tunneling goes through the stock TLS path; the
			// Chrome fingerprint applies only to direct and SOCKS dials.
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{
		Transport:     transport,
		CheckRedirect: maxRedirects(10),
	}
	defer client.CloseIdleConnections()

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
		TierUsed:   TierBypass,
		FinalURL:   resp.Request.URL.String(),
		Headers:    FlattenHeaders(resp.Header),
	}, nil
}

// dialTLSChrome establishes a TLS connection presenting the Chrome
// fingerprint, optionally tunneled through a SOCKS5 proxy.
func dialTLSChrome(ctx context.Context, network, addr, proxyAddr string) (net.Conn, error) {
	rawConn, err := dialRaw(ctx, network, addr, proxyAddr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	cfg := &tls.Config{ServerName: host}

	var tlsConn *tls.UConn
	if len(chromeH1Spec.Extensions) > 0 {
		tlsConn = tls.UClient(rawConn, cfg, tls.HelloCustom)
		if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
			rawConn.Close()
			return nil, fmt.Errorf("bypass: apply tls spec: %w", err)
		}
	} else {
		tlsConn = tls.UClient(rawConn, cfg, tls.HelloChrome_Auto)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// dialRaw opens the TCP connection, through SOCKS5 when configured.
func dialRaw(ctx context.Context, network, addr, proxyAddr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}

	if proxyAddr != "" {
		proxyURL, err := url.Parse(proxyAddr)
		if err == nil && (proxyURL.Scheme == "socks5" || proxyURL.Scheme == "socks5h") {
			var auth *proxy.Auth
			if u := proxyURL.User; u != nil {
				pass, _ := u.Password()
				auth = &proxy.Auth{User: u.Username(), Password: pass}
			}
			socks, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, dialer)
			if err != nil {
				return nil, fmt.Errorf("bypass: socks5 proxy: %w", err)
			}
			if cd, ok := socks.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return socks.Dial(network, addr)
		}
	}

	return dialer.DialContext(ctx, network, addr)
}
