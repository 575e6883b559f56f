// Package domain holds the records shared by the pipeline stages.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusDone       Status = "DONE"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further pipeline transition can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

const (
	ArtifactRepo         = "GITHUB_REPO"
	ArtifactRepoSelected = "GITHUB_REPO_SELECTED"
)

// Artifact is a discovered piece of public evidence.
type Artifact struct {
	Kind   string `json:"type"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Status string `json:"status"`

	DefaultBranch string    `json:"default_branch,omitempty"`
	PushedAt      time.Time `json:"pushed_at,omitempty"`
	Language      string    `json:"language,omitempty"`
	Stars         int       `json:"stargazers_count"`
}

// SkillMap maps a skill name to the keywords that signal it.
type SkillMap map[string][]string

// HeuristicScores maps a skill name to its keyword occurrence count.
type HeuristicScores map[string]int

// EvidenceBundle is the fetched text of one selected repository.
type EvidenceBundle struct {
	RepoURL string   `json:"repoUrl"`
	Files   []string `json:"files"`
	Key     string   `json:"key,omitempty"`
	Size    int      `json:"size"`
	Text    string   `json:"-"`
}

type EvidenceHighlight struct {
	Claim         string `json:"claim"`
	EvidenceURL   string `json:"evidence_url"`
	Justification string `json:"justification"`
}

// FinalBrief is the persisted outcome of one pipeline run.
type FinalBrief struct {
	BriefID            uuid.UUID           `json:"brief_id"`
	Summary            []string            `json:"summary"`
	EvidenceHighlights []EvidenceHighlight `json:"evidence_highlights"`
	RiskFlags          []string            `json:"risk_flags"`
	ScreeningQuestions []string            `json:"screening_questions"`
	FinalScore         int                 `json:"final_score"`
	ModelFinalScore    float64             `json:"model_final_score"`
	Scoring            ScoreBreakdown      `json:"scoring"`
	GeneratedAt        time.Time           `json:"generated_at"`
}

// ScoreBreakdown records how FinalScore was derived.
type ScoreBreakdown struct {
	RequiredSkills  []string `json:"required_skills"`
	EvidencedSkills []string `json:"evidenced_skills"`
	Coverage        float64  `json:"coverage"`
	DepthLevel      float64  `json:"depth_level"`
	Depth           float64  `json:"depth"`
	Traceability    float64  `json:"traceability"`
	Recency         float64  `json:"recency"`
	Impact          float64  `json:"impact"`
	PreferredBonus  float64  `json:"preferred_bonus"`
	Penalty         float64  `json:"penalty"`
	Base            float64  `json:"base"`
	Cap             int      `json:"cap"`
}

// StatusUpdate is the notification published on every status transition.
type StatusUpdate struct {
	BriefID   uuid.UUID `json:"brief_id"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
