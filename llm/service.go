package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/shelfwatch/shelfwatch/models"
)

// maxInputChars caps how much content is fed to the model per call.
const maxInputChars = 10000

var htmlTagRe = regexp.MustCompile(`(?i)<(html|body|div|p|br|span|table|ul|ol|li|h[1-6])\b`)

// Service wraps a Generator with the enrichment operations the API and CLI
// expose. A nil Service (no API key configured) simply disables enrichment.
type Service struct {
	gen  Generator
	json JSONGenerator // non-nil when the backend can force JSON output
	conv *converter.Converter
}

// NewService resolves the backend's capabilities once: a JSONGenerator is
// remembered so schema extraction can force valid JSON.
func NewService(gen Generator) *Service {
	s := &Service{gen: gen, conv: newMarkdownConverter()}
	if jg, ok := gen.(JSONGenerator); ok {
		s.json = jg
	}
	return s
}

// newMarkdownConverter builds the reusable, goroutine-safe HTML→Markdown
// converter used to shrink page content before it reaches the model:
//
//   - base plugin: strips script, style, iframe, noscript, head, meta and
//     other markup that is pure noise for an LLM.
//   - commonmark plugin: standard Markdown rendering.
//   - table plugin with minimal cell padding: keeps tabular product data
//     readable while saving a large share of table tokens.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// prepare converts HTML input to Markdown and truncates to the input cap.
func (s *Service) prepare(text string) string {
	if htmlTagRe.MatchString(text) {
		md, err := s.conv.ConvertString(text)
		if err != nil {
			slog.Debug("markdown conversion failed, using raw text", "error", err)
		} else {
			text = md
		}
	}
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}
	return text
}

// Summarize produces a summary of at most maxWords words.
func (s *Service) Summarize(ctx context.Context, text string, maxWords int) (string, error) {
	if maxWords <= 0 {
		maxWords = 150
	}
	prompt := fmt.Sprintf(
		"Summarize the following content in at most %d words. Return only the summary.\n\n%s",
		maxWords, s.prepare(text))

	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ExtractSchema asks the model to fill the given JSON schema from the
// content. The response must be valid JSON after code-fence stripping.
func (s *Service) ExtractSchema(ctx context.Context, text string, schema json.RawMessage) (json.RawMessage, error) {
	prompt := fmt.Sprintf(`Extract information from the content below and return it as JSON matching this schema.

Schema:
%s

Rules:
- Return ONLY valid JSON, no markdown fences or explanation.
- If a field cannot be found in the content, use null.
- Extract exactly the fields specified in the schema.

Content:
%s`, string(schema), s.prepare(text))

	var (
		out string
		err error
	)
	if s.json != nil {
		out, err = s.json.GenerateJSON(ctx, prompt)
	} else {
		out, err = s.gen.Generate(ctx, prompt)
	}
	if err != nil {
		return nil, err
	}

	out = stripCodeFences(out)
	if !json.Valid([]byte(out)) {
		return nil, models.NewScrapeError(models.ErrCodeLLMFailure, "LLM returned invalid JSON", nil)
	}
	return json.RawMessage(out), nil
}

// Keywords returns up to topN keywords for the content.
func (s *Service) Keywords(ctx context.Context, text string, topN int) ([]string, error) {
	if topN <= 0 {
		topN = 10
	}
	prompt := fmt.Sprintf(
		"List the %d most important keywords of the following content as a JSON array of strings. Return only the array.\n\n%s",
		topN, s.prepare(text))

	out, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var keywords []string
	if err := json.Unmarshal([]byte(stripCodeFences(out)), &keywords); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeLLMFailure, "LLM returned malformed keyword list", err)
	}
	if len(keywords) > topN {
		keywords = keywords[:topN]
	}
	return keywords, nil
}

// stripCodeFences removes a surrounding ``` block, with or without a
// language tag.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
