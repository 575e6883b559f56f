// Package llm wraps the Gemini models used by the pipeline behind a single
// prompt-in, text-out interface.
package llm

import (
	"context"
	"strings"
)

// Generator sends one prompt and returns the model's text response.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// CleanJSON strips a surrounding markdown code fence from a model response.
func CleanJSON(input string) string {
	clean := strings.TrimSpace(input)

	if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
		// drop the language tag on the opening fence line
		if nl := strings.IndexAny(clean, "\r\n"); nl >= 0 && !strings.ContainsAny(clean[:nl], "{[") {
			clean = clean[nl:]
		}
		clean = strings.TrimLeft(clean, "\r\n")
	}
	clean = strings.TrimSpace(clean)
	clean = strings.TrimSuffix(clean, "```")

	return strings.TrimSpace(clean)
}
