package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// Intent is the interpreted goal of a natural-language scraping request.
type Intent struct {
	// Action is "scrape", "compare", "track", "summarize" or "extract".
	Action string `json:"action"`

	// Method hints the fetch mode: "auto", "http" or "browser".
	Method string `json:"method"`

	// DataType is "product", "article" or "general".
	DataType string `json:"data_type"`

	Features   []string `json:"features"`
	Confidence float64  `json:"confidence"`
}

// refinementThreshold: below this confidence the rule-based result is
// handed to the model for a second opinion.
const refinementThreshold = 0.7

// keyword groups for the rule pass.
var (
	compareWords   = []string{"compare", "comparison", "versus", " vs "}
	trackWords     = []string{"track", "monitor", "alert", "price history"}
	summarizeWords = []string{"summarize", "summary", "overview"}
	extractWords   = []string{"extract", "get ", "find ", "show "}
	browserWords   = []string{"javascript", "dynamic", "spa", "react"}
	fastWords      = []string{"fast", "quick", "simple"}
	productWords   = []string{"product", "item", "price", "buy"}
	articleWords   = []string{"article", "news", "blog", "text"}
)

// AnalyzeIntent interprets a natural-language request. The rule pass alone
// decides when it is confident; otherwise, and only when a Generator is
// configured, the model refines the result. Model failures fall back to
// the rule-based intent.
func (s *Service) AnalyzeIntent(ctx context.Context, prompt string) *Intent {
	intent := ruleBasedIntent(prompt)
	if intent.Confidence >= refinementThreshold || s == nil || s.gen == nil {
		return intent
	}

	refined, err := s.refineIntent(ctx, prompt, intent)
	if err != nil {
		slog.Warn("LLM intent refinement failed, using rule-based intent", "error", err)
		return intent
	}
	return refined
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func ruleBasedIntent(prompt string) *Intent {
	lower := strings.ToLower(prompt)
	intent := &Intent{
		Action:     "scrape",
		Method:     "auto",
		DataType:   "general",
		Confidence: 0.5,
	}

	if containsAny(lower, compareWords) {
		intent.Action = "compare"
		intent.Features = append(intent.Features, "multi_scrape")
		intent.Confidence += 0.2
	}
	if containsAny(lower, trackWords) {
		intent.Action = "track"
		intent.Features = append(intent.Features, "price_tracking")
		intent.Confidence += 0.2
	}
	if containsAny(lower, summarizeWords) {
		if intent.Action == "scrape" {
			intent.Action = "summarize"
		}
		intent.Features = append(intent.Features, "summarization")
		intent.Confidence += 0.1
	}
	if containsAny(lower, extractWords) {
		intent.Features = append(intent.Features, "extraction")
		intent.Confidence += 0.1
	}

	if containsAny(lower, browserWords) {
		intent.Method = "browser"
		intent.Confidence += 0.1
	} else if containsAny(lower, fastWords) {
		intent.Method = "http"
		intent.Confidence += 0.1
	}

	if containsAny(lower, productWords) {
		intent.DataType = "product"
		intent.Confidence += 0.1
	} else if containsAny(lower, articleWords) {
		intent.DataType = "article"
		intent.Confidence += 0.1
	}

	if intent.Confidence > 1 {
		intent.Confidence = 1
	}
	return intent
}

func (s *Service) refineIntent(ctx context.Context, prompt string, base *Intent) (*Intent, error) {
	analysisPrompt := `Analyze this web scraping request and respond with JSON only:
{
	"action": "scrape|compare|track|summarize|extract",
	"method": "auto|http|browser",
	"data_type": "product|article|general",
	"features": ["list", "of", "features"],
	"confidence": 0.0
}

Request: ` + prompt

	var (
		out string
		err error
	)
	if s.json != nil {
		out, err = s.json.GenerateJSON(ctx, analysisPrompt)
	} else {
		out, err = s.gen.Generate(ctx, analysisPrompt)
	}
	if err != nil {
		return nil, err
	}

	refined := *base
	if err := json.Unmarshal([]byte(stripCodeFences(out)), &refined); err != nil {
		return nil, err
	}
	return &refined, nil
}
