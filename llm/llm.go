// Package llm provides optional AI enrichment: summaries, schema-driven
// extraction, keyword lists and intent analysis over scraped content.
package llm

import "context"

// Generator is the single capability an enrichment backend must provide.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// JSONGenerator is implemented by backends that can force a JSON response
// format. The service resolves this once at construction.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface, mostly for
// tests.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
