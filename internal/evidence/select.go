// Package evidence picks the repositories worth reading and bundles their text.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
	"github.com/muhammadolammi/proofbriefworker/internal/llm"
	"github.com/muhammadolammi/proofbriefworker/internal/logger"
	"github.com/muhammadolammi/proofbriefworker/internal/skills"
)

const (
	DefaultMaxPick      = 3
	resumeExcerptLength = 6000
	jdExcerptLength     = 3000
)

var (
	errNoValidPick         = errors.New("no returned url is in the candidate list")
	errMissingSelectedURLs = errors.New("selection has no selected_urls array")
	errNotSelection        = errors.New("selection is neither an object nor an array")
)

const selectPrompt = `You will be given a candidate resume, a job description and a list of that candidate's GitHub repositories.
Pick the repositories that best map to the projects described in the resume.
Prefer repos that showcase skills, complexity, and recent activity.
Return ONLY a compact JSON object (no extra text) of the form:
{"selected_urls": ["<url>", ...], "skill_map": {"<skill>": ["<keyword>", ...]}}
"selected_urls" holds up to %d repo URLs copied exactly from the list; if nothing matches return an empty array.
"skill_map" holds the technical skills the job description requires with code-level keywords for each.

Resume:
%s

Job Description:
%s

Repo URLs:
%s
`

// Selection is the sanitized outcome of one selection call.
type Selection struct {
	URLs []string
	// SkillMap is the map the model returned alongside its picks, if any.
	SkillMap  domain.SkillMap
	FromModel bool
}

type Selector struct {
	gen    llm.Generator
	logger *zap.Logger
}

func NewSelector(gen llm.Generator, log *zap.Logger) *Selector {
	return &Selector{gen: gen, logger: logger.OrNop(log)}
}

// Select asks the model for at most k of repoURLs. It never fails: any error
// falls back to the first k candidates.
func (s *Selector) Select(ctx context.Context, resumeText, jobDescription string, repoURLs []string, k int) Selection {
	if k <= 0 {
		k = DefaultMaxPick
	}
	if len(repoURLs) == 0 {
		return Selection{URLs: []string{}}
	}

	prompt := fmt.Sprintf(selectPrompt, k,
		truncate(resumeText, resumeExcerptLength),
		truncate(jobDescription, jdExcerptLength),
		strings.Join(repoURLs, "\n"),
	)

	raw, err := s.gen.Generate(ctx, prompt)
	if err == nil {
		var sel Selection
		sel, err = ParseSelection(raw, repoURLs, k)
		if err == nil {
			s.logger.Info("repositories selected", zap.Int("candidates", len(repoURLs)), zap.Int("selected", len(sel.URLs)))
			return sel
		}
		s.logger.Warn("repository selection unusable", zap.String("response", logger.TruncateForLog(raw, 200)))
	}

	s.logger.Warn("repository selection failed, using first candidates", zap.Error(err), zap.Int("max_pick", k))
	return Selection{URLs: firstN(repoURLs, k)}
}

// ParseSelection accepts {"selected_urls": [...], "skill_map": {...}} or a
// bare array of URLs. Picks outside candidates are dropped and the result is
// truncated to k. Any other shape, an object without "selected_urls", or a
// non-empty answer with no valid pick is an error.
func ParseSelection(raw string, candidates []string, k int) (Selection, error) {
	cleaned := llm.CleanJSON(raw)

	var picks []any
	var skillMap domain.SkillMap

	switch {
	case strings.HasPrefix(cleaned, "["):
		if err := json.Unmarshal([]byte(cleaned), &picks); err != nil {
			return Selection{}, fmt.Errorf("decode selection: %w", err)
		}
	case strings.HasPrefix(cleaned, "{"):
		var obj struct {
			SelectedURLs *[]any                     `json:"selected_urls"`
			SkillMap     map[string]json.RawMessage `json:"skill_map"`
		}
		if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
			return Selection{}, fmt.Errorf("decode selection: %w", err)
		}
		if obj.SelectedURLs == nil {
			return Selection{}, errMissingSelectedURLs
		}
		picks = *obj.SelectedURLs
		if len(obj.SkillMap) > 0 {
			skillMap = skills.ParseMap(obj.SkillMap)
		}
	default:
		return Selection{}, errNotSelection
	}

	allowed := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		allowed[c] = true
	}

	seen := make(map[string]bool)
	urls := []string{}
	for _, p := range picks {
		u, ok := p.(string)
		if !ok {
			continue
		}
		u = strings.TrimSpace(u)
		if !allowed[u] || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	if len(picks) > 0 && len(urls) == 0 {
		return Selection{}, errNoValidPick
	}

	return Selection{URLs: firstN(urls, k), SkillMap: skillMap, FromModel: true}, nil
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		items = items[:n]
	}
	return append([]string{}, items...)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
