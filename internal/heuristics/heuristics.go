// Package heuristics counts skill keywords across everything gathered for a candidate.
package heuristics

import (
	"strings"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
)

// BuildCorpus joins the résumé, artifact titles and bundle texts into one
// lower-cased corpus.
func BuildCorpus(resumeText string, artifacts []domain.Artifact, bundles []domain.EvidenceBundle) string {
	parts := make([]string, 0, 1+len(artifacts)+len(bundles))
	parts = append(parts, resumeText)
	for _, a := range artifacts {
		parts = append(parts, a.Title)
	}
	for _, b := range bundles {
		parts = append(parts, b.Text)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Score sums, per skill, the non-overlapping occurrences of each keyword in corpus.
func Score(corpus string, skills domain.SkillMap) domain.HeuristicScores {
	corpus = strings.ToLower(corpus)
	scores := make(domain.HeuristicScores, len(skills))
	for skill, keywords := range skills {
		total := 0
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			total += strings.Count(corpus, kw)
		}
		scores[skill] = total
	}
	return scores
}
