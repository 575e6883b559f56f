package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/muhammadolammi/proofbriefworker/internal/logger"
)

// GenaiGenerator calls a Gemini model directly and asks for a JSON response.
type GenaiGenerator struct {
	client      *genai.Client
	modelName   string
	temperature float32
	logger      *zap.Logger
}

func NewGenaiGenerator(ctx context.Context, apiKey, model string, temperature float32, log *zap.Logger) (*GenaiGenerator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenaiGenerator{
		client:      client,
		modelName:   model,
		temperature: temperature,
		logger:      logger.OrNop(log),
	}, nil
}

func (g *GenaiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		ResponseMIMEType: "application/json",
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}
	g.logger.Debug("gemini response",
		zap.String("model", g.modelName),
		zap.String("preview", logger.TruncateForLog(output, 200)),
	)
	return output, nil
}

func (g *GenaiGenerator) Model() string {
	return g.modelName
}
