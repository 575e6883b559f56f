package llm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/muhammadolammi/proofbriefworker/internal/logger"
)

const agentUserID = "proofbrief-worker"

// AgentConfig describes the single-agent app behind an AgentGenerator.
type AgentConfig struct {
	APIKey      string
	Model       string
	Name        string
	Description string
	Instruction string
	Temperature float32
}

// AgentGenerator runs prompts through an ADK agent. Each call gets its own
// in-memory session, deleted once the final response arrives.
type AgentGenerator struct {
	name     string
	runner   *runner.Runner
	sessions session.Service
	logger   *zap.Logger
}

func NewAgentGenerator(ctx context.Context, cfg AgentConfig, log *zap.Logger) (*AgentGenerator, error) {
	model, err := gemini.NewModel(ctx, cfg.Model, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}

	a, err := llmagent.New(llmagent.Config{
		Name:        cfg.Name,
		Model:       model,
		Description: cfg.Description,
		Instruction: cfg.Instruction,
		GenerateContentConfig: &genai.GenerateContentConfig{
			Temperature: genai.Ptr(cfg.Temperature),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}

	sessions := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        a.Name(),
		Agent:          a,
		SessionService: sessions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	return &AgentGenerator{
		name:     a.Name(),
		runner:   r,
		sessions: sessions,
		logger:   logger.OrNop(log),
	}, nil
}

func (g *AgentGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	created, err := g.sessions.Create(ctx, &session.CreateRequest{
		AppName:   g.name,
		UserID:    agentUserID,
		SessionID: uuid.NewString(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create agent session: %w", err)
	}
	sess := created.Session
	defer func() {
		err := g.sessions.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   sess.AppName(),
			UserID:    sess.UserID(),
			SessionID: sess.ID(),
		})
		if err != nil {
			g.logger.Warn("failed to delete agent session", zap.String("session_id", sess.ID()), zap.Error(err))
		}
	}()

	stream := g.runner.Run(ctx, sess.UserID(), sess.ID(), &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt}},
	}, agent.RunConfig{})

	var output string
	for event, err := range stream {
		if err != nil {
			return "", err
		}
		if event != nil && event.IsFinalResponse() && event.Content != nil && len(event.Content.Parts) > 0 {
			output = event.Content.Parts[0].Text
		}
	}
	if output == "" {
		return "", fmt.Errorf("empty agent response")
	}
	g.logger.Debug("agent response", zap.String("agent", g.name), zap.String("preview", logger.TruncateForLog(output, 200)))
	return output, nil
}
