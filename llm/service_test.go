package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shelfwatch/shelfwatch/config"
	"github.com/shelfwatch/shelfwatch/models"
)

func TestSummarize_TruncatesAndConverts(t *testing.T) {
	var gotPrompt string
	svc := NewService(GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "  A short summary.  ", nil
	}))

	long := "<html><body><p>" + strings.Repeat("word ", 5000) + "</p></body></html>"
	out, err := svc.Summarize(context.Background(), long, 50)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if out != "A short summary." {
		t.Errorf("summary = %q", out)
	}
	if strings.Contains(gotPrompt, "<p>") {
		t.Error("HTML reached the model unconverted")
	}
	if len(gotPrompt) > maxInputChars+500 {
		t.Errorf("prompt length %d exceeds the input cap", len(gotPrompt))
	}
}

func TestExtractSchema_StripsCodeFences(t *testing.T) {
	svc := NewService(GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "```json\n{\"title\": \"Widget\", \"price\": 9.99}\n```", nil
	}))

	raw, err := svc.ExtractSchema(context.Background(), "some content",
		json.RawMessage(`{"title": "string", "price": "number"}`))
	if err != nil {
		t.Fatalf("ExtractSchema() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if got["title"] != "Widget" {
		t.Errorf("title = %v", got["title"])
	}
}

func TestExtractSchema_InvalidJSONFails(t *testing.T) {
	svc := NewService(GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "sorry, I cannot do that", nil
	}))

	_, err := svc.ExtractSchema(context.Background(), "content", json.RawMessage(`{}`))
	var se *models.ScrapeError
	if !errors.As(err, &se) || se.Code != models.ErrCodeLLMFailure {
		t.Fatalf("error = %v, want LLM_FAILURE", err)
	}
}

func TestKeywords(t *testing.T) {
	svc := NewService(GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return `["price", "headphones", "wireless", "battery"]`, nil
	}))

	kws, err := svc.Keywords(context.Background(), "content", 3)
	if err != nil {
		t.Fatalf("Keywords() error = %v", err)
	}
	if len(kws) != 3 || kws[0] != "price" {
		t.Errorf("keywords = %v", kws)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n[1,2]\n```  ", "[1,2]"},
	}
	for _, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenAI_GenerateAndErrors(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("Authorization = %q", got)
			}
			if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
				t.Errorf("path = %q", r.URL.Path)
			}
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}]}`))
		}))
		defer srv.Close()

		c := NewOpenAI(config.LLMConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o-mini"}, nil)
		out, err := c.Generate(context.Background(), "say hello")
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if out != "hello" {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("auth failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
		}))
		defer srv.Close()

		c := NewOpenAI(config.LLMConfig{APIKey: "wrong", BaseURL: srv.URL}, nil)
		_, err := c.Generate(context.Background(), "x")
		var se *models.ScrapeError
		if !errors.As(err, &se) || se.Code != models.ErrCodeLLMAuthFailure {
			t.Fatalf("error = %v, want LLM_AUTH_FAILURE", err)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
		}))
		defer srv.Close()

		c := NewOpenAI(config.LLMConfig{BaseURL: srv.URL}, nil)
		_, err := c.Generate(context.Background(), "x")
		var se *models.ScrapeError
		if !errors.As(err, &se) || se.Code != models.ErrCodeLLMRateLimited {
			t.Fatalf("error = %v, want LLM_RATE_LIMITED", err)
		}
	})
}
