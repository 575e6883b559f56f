// Package skills asks the model for the technical skills a job description requires.
package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
	"github.com/muhammadolammi/proofbriefworker/internal/llm"
	"github.com/muhammadolammi/proofbriefworker/internal/logger"
)

// Fallback is used whenever the model cannot produce a usable map.
func Fallback() domain.SkillMap {
	return domain.SkillMap{
		"Python": {"python", "pandas", "numpy", "fastapi", "django"},
		"Cloud":  {"aws", "azure", "gcp", "kubernetes", "docker", "terraform"},
		"Data":   {"sql", "postgres", "snowflake", "spark", "etl"},
	}
}

const extractPrompt = `You are an expert software engineering hiring manager.
Analyze the job description and extract the key technical skills.
For each skill, provide related code-level keywords, libraries, or tools.
Respond ONLY with a JSON object like: {"Python": ["pandas","numpy"], "AWS": ["EC2","S3","Lambda"]}

Job Description:
%s
`

type Extractor struct {
	gen    llm.Generator
	logger *zap.Logger
}

func NewExtractor(gen llm.Generator, log *zap.Logger) *Extractor {
	return &Extractor{gen: gen, logger: logger.OrNop(log)}
}

// Extract never fails. fromModel is false when the fallback map was returned.
func (e *Extractor) Extract(ctx context.Context, jobDescription string) (skills domain.SkillMap, fromModel bool) {
	raw, err := e.gen.Generate(ctx, fmt.Sprintf(extractPrompt, jobDescription))
	if err != nil {
		e.logger.Warn("skill extraction failed, using fallback skills", zap.Error(err))
		return Fallback(), false
	}

	parsed, err := Parse(raw)
	if err != nil {
		e.logger.Warn("skill extraction returned unusable output, using fallback skills",
			zap.Error(err),
			zap.String("response", logger.TruncateForLog(raw, 200)),
		)
		return Fallback(), false
	}

	e.logger.Info("job description skills extracted", zap.Int("skills", len(parsed)))
	return parsed, true
}

// Parse reads a {"skill": ["keyword", ...]} object. Entries whose value is
// not a list are dropped, as are blank names and keywords.
func Parse(raw string) (domain.SkillMap, error) {
	var data map[string]json.RawMessage
	if err := json.Unmarshal([]byte(llm.CleanJSON(raw)), &data); err != nil {
		return nil, fmt.Errorf("decode skill map: %w", err)
	}
	return normalize(data), nil
}

func normalize(data map[string]json.RawMessage) domain.SkillMap {
	out := domain.SkillMap{}
	for skill, value := range data {
		skill = strings.TrimSpace(skill)
		if skill == "" {
			continue
		}
		var items []any
		if err := json.Unmarshal(value, &items); err != nil {
			continue
		}
		keywords := make([]string, 0, len(items))
		for _, item := range items {
			kw := strings.TrimSpace(fmt.Sprint(item))
			if kw != "" && item != nil {
				keywords = append(keywords, kw)
			}
		}
		out[skill] = keywords
	}
	return out
}

// ParseMap is Parse for an already decoded object, as embedded in the
// selection response.
func ParseMap(data map[string]json.RawMessage) domain.SkillMap {
	return normalize(data)
}
