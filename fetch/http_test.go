package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPTier_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("User-Agent = %q, want test-agent", got)
		}
		w.Write([]byte("<html><head><title> Widget Shop </title></head><body>ok</body></html>"))
	}))
	defer srv.Close()

	tier := NewHTTPTier(5*time.Second, 0)
	res, err := tier.Fetch(context.Background(), &Request{
		URL:     srv.URL,
		Headers: map[string]string{"User-Agent": "test-agent"},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
	if res.TierUsed != TierHTTP {
		t.Errorf("TierUsed = %q, want %q", res.TierUsed, TierHTTP)
	}
	if res.Title != "Widget Shop" {
		t.Errorf("Title = %q, want Widget Shop", res.Title)
	}
	if res.FinalURL != srv.URL {
		t.Errorf("FinalURL = %q, want %q", res.FinalURL, srv.URL)
	}
}

func TestHTTPTier_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tier := NewHTTPTier(5*time.Second, 0)
	_, err := tier.Fetch(context.Background(), &Request{URL: srv.URL})
	if !IsKind(err, KindHTTPStatus) {
		t.Fatalf("err = %v, want KindHTTPStatus", err)
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Status != 503 {
		t.Errorf("Status = %v, want 503", err)
	}
}

func TestHTTPTier_FollowsRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, srv.URL+"/new", http.StatusMovedPermanently)
			return
		}
		w.Write([]byte("<html><title>landed</title></html>"))
	}))
	defer srv.Close()

	tier := NewHTTPTier(5*time.Second, 0)
	res, err := tier.Fetch(context.Background(), &Request{URL: srv.URL + "/old"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.FinalURL != srv.URL+"/new" {
		t.Errorf("FinalURL = %q, want %q", res.FinalURL, srv.URL+"/new")
	}
}

func TestHTTPTier_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	tier := NewHTTPTier(5*time.Second, 0)
	_, err := tier.Fetch(context.Background(), &Request{
		URL:     srv.URL,
		Timeout: 20 * time.Millisecond,
	})
	if !IsKind(err, KindTimeout) {
		t.Fatalf("err = %v, want KindTimeout", err)
	}
}

func TestHTTPTier_BodyCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for range 1024 {
			w.Write(make([]byte, 1024))
		}
	}))
	defer srv.Close()

	tier := NewHTTPTier(5*time.Second, 4096)
	res, err := tier.Fetch(context.Background(), &Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.HTML) != 4096 {
		t.Errorf("len(HTML) = %d, want 4096", len(res.HTML))
	}
}

func TestHTTPTier_BadProxy(t *testing.T) {
	tier := NewHTTPTier(5*time.Second, 0)
	_, err := tier.Fetch(context.Background(), &Request{
		URL:   "https://example.com",
		Proxy: "://not-a-url",
	})
	if !IsKind(err, KindConnection) {
		t.Fatalf("err = %v, want KindConnection", err)
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{"simple", "<html><head><title>Hi</title></head></html>", "Hi"},
		{"whitespace", "<title>\n  spaced \n</title>", "spaced"},
		{"missing", "<html><body>no title</body></html>", ""},
		{"empty element", "<title></title><p>x</p>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractTitle(tt.html); got != tt.want {
				t.Errorf("extractTitle = %q, want %q", got, tt.want)
			}
		})
	}
}
