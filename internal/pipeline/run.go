package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
)

var ErrInvalidRun = errors.New("invalid pipeline run")

// Run carries the identifiers and stage outputs of one execution. Large
// payloads live in object storage; Run only holds their keys and the text the
// next stage needs.
type Run struct {
	BriefID     uuid.UUID
	UserID      uuid.UUID
	CandidateID uuid.UUID
	JobID       uuid.UUID
	ResumeKey   string
	JobKey      string

	ResumeText     string
	ProcessedKey   string
	ProfileURL     string
	JobDescription string

	Artifacts []domain.Artifact
	Skills    domain.SkillMap
	Selected  []string
	Bundles   []domain.EvidenceBundle
	Scores    domain.HeuristicScores
	Brief     *domain.FinalBrief
	OutputKey string
}

// NewRun builds a Run from the stored brief inputs.
func NewRun(in Inputs) (*Run, error) {
	var missing []string
	if in.BriefID == uuid.Nil {
		missing = append(missing, "brief id")
	}
	if in.CandidateID == uuid.Nil {
		missing = append(missing, "candidate id")
	}
	if in.JobID == uuid.Nil {
		missing = append(missing, "job id")
	}
	if strings.TrimSpace(in.ResumeKey) == "" {
		missing = append(missing, "resume key")
	}
	if strings.TrimSpace(in.JobKey) == "" {
		missing = append(missing, "job description key")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidRun, strings.Join(missing, ", "))
	}
	return &Run{
		BriefID:     in.BriefID,
		UserID:      in.UserID,
		CandidateID: in.CandidateID,
		JobID:       in.JobID,
		ResumeKey:   in.ResumeKey,
		JobKey:      in.JobKey,
	}, nil
}

// RepoURLs lists the URLs of the discovered artifacts in discovery order.
func (r *Run) RepoURLs() []string {
	urls := make([]string, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		if a.URL != "" {
			urls = append(urls, a.URL)
		}
	}
	return urls
}
