package llm

import (
	"context"
	"errors"
	"testing"
)

func TestRuleBasedIntent(t *testing.T) {
	tests := []struct {
		name       string
		prompt     string
		wantAction string
		wantMethod string
		wantType   string
	}{
		{
			name:       "compare request",
			prompt:     "Compare this product price on amazon versus flipkart",
			wantAction: "compare",
			wantMethod: "auto",
			wantType:   "product",
		},
		{
			name:       "track request",
			prompt:     "Track the price of this item and alert me",
			wantAction: "track",
			wantMethod: "auto",
			wantType:   "product",
		},
		{
			name:       "summarize article",
			prompt:     "Summarize this news article for me",
			wantAction: "summarize",
			wantMethod: "auto",
			wantType:   "article",
		},
		{
			name:       "dynamic page",
			prompt:     "Scrape this javascript-heavy react page",
			wantAction: "scrape",
			wantMethod: "browser",
			wantType:   "general",
		},
		{
			name:       "fast scrape",
			prompt:     "Do a quick scrape of this page",
			wantAction: "scrape",
			wantMethod: "http",
			wantType:   "general",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ruleBasedIntent(tt.prompt)
			if got.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", got.Action, tt.wantAction)
			}
			if got.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", got.Method, tt.wantMethod)
			}
			if got.DataType != tt.wantType {
				t.Errorf("DataType = %q, want %q", got.DataType, tt.wantType)
			}
			if got.Confidence < 0.5 || got.Confidence > 1 {
				t.Errorf("Confidence = %v out of range", got.Confidence)
			}
		})
	}
}

func TestAnalyzeIntent_ConfidentRuleSkipsLLM(t *testing.T) {
	called := false
	svc := NewService(GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		called = true
		return "{}", nil
	}))

	// Compare + product + extraction pushes confidence past the threshold.
	got := svc.AnalyzeIntent(context.Background(), "compare prices and find the best product to buy")
	if got.Action != "compare" {
		t.Errorf("Action = %q", got.Action)
	}
	if called {
		t.Error("LLM consulted despite confident rule-based result")
	}
}

func TestAnalyzeIntent_LowConfidenceRefines(t *testing.T) {
	svc := NewService(GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return `{"action": "extract", "method": "browser", "data_type": "article", "confidence": 0.9}`, nil
	}))

	got := svc.AnalyzeIntent(context.Background(), "handle this page for me")
	if got.Action != "extract" || got.Method != "browser" {
		t.Errorf("refined intent = %+v", got)
	}
	if got.Confidence != 0.9 {
		t.Errorf("Confidence = %v", got.Confidence)
	}
}

func TestAnalyzeIntent_LLMFailureFallsBack(t *testing.T) {
	svc := NewService(GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("model offline")
	}))

	got := svc.AnalyzeIntent(context.Background(), "handle this page for me")
	if got.Action != "scrape" || got.Method != "auto" {
		t.Errorf("fallback intent = %+v", got)
	}
}
