package synth

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
)

// Rubric holds the sub-scores the model reports.
type Rubric struct {
	DepthLevel          float64  `json:"depth_level"`
	TraceabilitySources int      `json:"traceability_sources"`
	Recency             float64  `json:"recency"`
	Impact              float64  `json:"impact"`
	PreferredBonus      float64  `json:"preferred_bonus"`
	ListOnlyRequired    []string `json:"list_only_required"`
}

var depthTiers = []float64{1.0, 0.7, 0.4, 0.1, 0.0}

const (
	coverageWeight = 30
	depthWeight    = 40
	listOnlyCost   = 20

	minNameTermLength = 4
)

// SnapDepth maps a reported level to the nearest tier. Ties go to the lower tier.
func SnapDepth(level float64) float64 {
	if math.IsNaN(level) {
		return 0
	}
	best := depthTiers[0]
	for _, tier := range depthTiers[1:] {
		if math.Abs(level-tier) <= math.Abs(level-best) {
			best = tier
		}
	}
	return best
}

func traceabilityPoints(sources int) float64 {
	switch {
	case sources >= 3:
		return 15
	case sources == 2:
		return 10
	case sources == 1:
		return 5
	}
	return 0
}

// CapFor returns the score ceiling for a depth tier.
func CapFor(depth float64) int {
	switch depth {
	case 0.0:
		return 29
	case 0.1:
		return 49
	case 0.4:
		return 69
	}
	return 100
}

// EvidencedSkills returns, sorted, the skills whose keywords appear as words
// in repository evidence. The skill name itself counts only when it has no
// keywords or is at least minNameTermLength characters long, so short names
// like "Go" are not matched in prose. Résumé text is never consulted.
func EvidencedSkills(skills domain.SkillMap, bundles []domain.EvidenceBundle) []string {
	var texts []string
	for _, b := range bundles {
		if b.Text != "" {
			texts = append(texts, strings.ToLower(b.Text))
		}
	}

	evidenced := []string{}
	for skill, keywords := range skills {
		if skillInTexts(skill, keywords, texts) {
			evidenced = append(evidenced, skill)
		}
	}
	sort.Strings(evidenced)
	return evidenced
}

func skillInTexts(skill string, keywords []string, texts []string) bool {
	terms := append([]string{}, keywords...)
	if name := strings.TrimSpace(skill); len(keywords) == 0 || utf8.RuneCountInString(name) >= minNameTermLength {
		terms = append(terms, name)
	}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		for _, text := range texts {
			if containsTerm(text, term) {
				return true
			}
		}
	}
	return false
}

// containsTerm matches term only at word boundaries, so "go" does not match "google".
func containsTerm(text, term string) bool {
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], term)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(term)
		if !isWordByte(text, start-1) && !isWordByte(text, end) {
			return true
		}
		i = start + 1
	}
	return false
}

func isWordByte(text string, idx int) bool {
	if idx < 0 || idx >= len(text) {
		return false
	}
	c := text[idx]
	return c == '_' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// Compute derives the final score from the required skills, the skills
// backed by repository evidence and the model-reported rubric.
func Compute(required, evidenced []string, r Rubric) domain.ScoreBreakdown {
	req := uniqueSorted(required)
	evidencedSet := make(map[string]bool, len(evidenced))
	for _, s := range evidenced {
		evidencedSet[s] = true
	}

	var matched []string
	for _, s := range req {
		if evidencedSet[s] {
			matched = append(matched, s)
		}
	}
	if matched == nil {
		matched = []string{}
	}

	coverage := 0.0
	if len(req) > 0 {
		coverage = coverageWeight * float64(len(matched)) / float64(len(req))
	}

	depthLevel := SnapDepth(r.DepthLevel)
	sources := r.TraceabilitySources
	if len(evidenced) == 0 {
		depthLevel = 0
		sources = min(sources, 1)
	}

	penalty := 0.0
	requiredSet := make(map[string]bool, len(req))
	for _, s := range req {
		requiredSet[s] = true
	}
	for _, s := range r.ListOnlyRequired {
		s = strings.TrimSpace(s)
		if requiredSet[s] && !evidencedSet[s] {
			penalty = listOnlyCost
			break
		}
	}

	b := domain.ScoreBreakdown{
		RequiredSkills:  req,
		EvidencedSkills: matched,
		Coverage:        round2(coverage),
		DepthLevel:      depthLevel,
		Depth:           round2(depthWeight * depthLevel),
		Traceability:    traceabilityPoints(sources),
		Recency:         clamp(r.Recency, 0, 5),
		Impact:          clamp(r.Impact, 0, 5),
		PreferredBonus:  clamp(r.PreferredBonus, 0, 5),
		Penalty:         penalty,
		Cap:             CapFor(depthLevel),
	}
	b.Base = round2(b.Coverage + b.Depth + b.Traceability + b.Recency + b.Impact + b.PreferredBonus - b.Penalty)
	return b
}

// FinalScore applies the cap to the base score and clamps to 0..100.
func FinalScore(b domain.ScoreBreakdown) int {
	score := math.Min(float64(b.Cap), b.Base)
	return int(math.Round(clamp(score, 0, 100)))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func uniqueSorted(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := []string{}
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
