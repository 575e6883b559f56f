// Package synth turns the gathered evidence into the final hiring brief.
package synth

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
	"github.com/muhammadolammi/proofbriefworker/internal/llm"
	"github.com/muhammadolammi/proofbriefworker/internal/logger"
	"github.com/muhammadolammi/proofbriefworker/internal/retry"
)

// ErrMalformedOutput means the model answer did not match the brief contract.
// There is no fallback for it.
var ErrMalformedOutput = errors.New("malformed synthesis output")

const (
	Temperature    = 0.1
	excerptLength  = 6000
	resumeMaxChars = 20000
)

// Instruction is the system instruction for the synthesis agent. It carries
// no braces since agent instructions are templated.
const Instruction = `You are an expert technical hiring manager providing a final, data-driven analysis of a candidate.
Based only on the material in the user message, produce a concise and factual candidate brief.
Your entire response must be a single valid JSON object that follows the output contract in the message.`

//go:embed prompt.md
var policy string

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func outputSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("brief.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("brief.json")
	})
	return schema, schemaErr
}

// Input is everything the synthesizer reads.
type Input struct {
	BriefID        uuid.UUID
	ResumeText     string
	JobDescription string
	Artifacts      []domain.Artifact
	Bundles        []domain.EvidenceBundle
	Skills         domain.SkillMap
	Heuristics     domain.HeuristicScores
}

// Output is the model's answer.
type Output struct {
	Summary            []string                   `json:"summary"`
	EvidenceHighlights []domain.EvidenceHighlight `json:"evidence_highlights"`
	RiskFlags          []string                   `json:"risk_flags"`
	ScreeningQuestions []string                   `json:"screening_questions"`
	FinalScore         float64                    `json:"final_score"`
	Rubric             Rubric                     `json:"rubric"`
}

type Synthesizer struct {
	gen    llm.Generator
	logger *zap.Logger

	CallPolicy retry.Policy
	Now        func() time.Time
}

func New(gen llm.Generator, log *zap.Logger) *Synthesizer {
	policy := retry.Default()
	policy.MaxAttempts = 2
	return &Synthesizer{
		gen:        gen,
		logger:     logger.OrNop(log),
		CallPolicy: policy,
		Now:        time.Now,
	}
}

// Synthesize asks the model for a brief and scores it with the rubric.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) (*domain.FinalBrief, error) {
	prompt, err := BuildPrompt(in)
	if err != nil {
		return nil, err
	}

	raw, err := retry.Do(ctx, s.CallPolicy, func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("synthesis call: %w", err)
	}

	out, err := Parse(raw)
	if err != nil {
		s.logger.Error("synthesis output rejected",
			zap.Error(err),
			zap.String("response", logger.TruncateForLog(raw, 300)),
		)
		return nil, err
	}

	required := make([]string, 0, len(in.Skills))
	for skill := range in.Skills {
		required = append(required, skill)
	}
	breakdown := Compute(required, EvidencedSkills(in.Skills, in.Bundles), out.Rubric)
	final := FinalScore(breakdown)

	s.logger.Info("brief synthesized",
		zap.String("brief_id", in.BriefID.String()),
		zap.Int("final_score", final),
		zap.Float64("model_final_score", out.FinalScore),
		zap.Float64("depth_level", breakdown.DepthLevel),
		zap.Strings("evidenced_skills", breakdown.EvidencedSkills),
	)

	return &domain.FinalBrief{
		BriefID:            in.BriefID,
		Summary:            out.Summary,
		EvidenceHighlights: out.EvidenceHighlights,
		RiskFlags:          out.RiskFlags,
		ScreeningQuestions: out.ScreeningQuestions,
		FinalScore:         final,
		ModelFinalScore:    out.FinalScore,
		Scoring:            breakdown,
		GeneratedAt:        s.Now().UTC(),
	}, nil
}

// Parse strips code fences, validates the answer against the brief schema
// and decodes it.
func Parse(raw string) (*Output, error) {
	cleaned := llm.CleanJSON(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	sch, err := outputSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return nil, fmt.Errorf("%w: json does not match schema: %v", ErrMalformedOutput, err)
	}

	var out Output
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return &out, nil
}

// BuildPrompt renders the user message for the synthesis call.
func BuildPrompt(in Input) (string, error) {
	artifacts, err := json.MarshalIndent(in.Artifacts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal artifacts: %w", err)
	}
	heuristics, err := json.MarshalIndent(map[string]any{"skill_counts": in.Heuristics}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal heuristics: %w", err)
	}

	skills := make([]string, 0, len(in.Skills))
	for skill := range in.Skills {
		skills = append(skills, skill)
	}
	sort.Strings(skills)

	var b strings.Builder
	b.WriteString("## CONTEXT ##\n\n")
	fmt.Fprintf(&b, "# Job Description:\n%s\n\n", strings.TrimSpace(in.JobDescription))
	fmt.Fprintf(&b, "# Required Skills:\n%s\n\n", strings.Join(skills, ", "))
	fmt.Fprintf(&b, "# Candidate's Resume Text:\n%s\n\n", truncate(strings.TrimSpace(in.ResumeText), resumeMaxChars))
	fmt.Fprintf(&b, "# Candidate's Public Artifacts:\n%s\n\n", artifacts)

	b.WriteString("# Repository Evidence:\n")
	if len(in.Bundles) == 0 {
		b.WriteString("(none)\n")
	}
	for _, bundle := range in.Bundles {
		fmt.Fprintf(&b, "## %s\nFiles: %s\n%s\n\n",
			bundle.RepoURL,
			strings.Join(bundle.Files, ", "),
			truncate(bundle.Text, excerptLength),
		)
	}

	fmt.Fprintf(&b, "\n# Objective Heuristic Scores:\n%s\n\n", heuristics)
	b.WriteString(policy)
	return b.String(), nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "\n[truncated]"
}
