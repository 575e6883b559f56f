package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/muhammadolammi/proofbriefworker/internal/database"
	"github.com/muhammadolammi/proofbriefworker/internal/domain"
)

var ErrBriefNotFound = errors.New("brief not found")

// Inputs are the stored pointers a run starts from.
type Inputs struct {
	BriefID     uuid.UUID
	UserID      uuid.UUID
	CandidateID uuid.UUID
	JobID       uuid.UUID
	Status      domain.Status
	ResumeKey   string
	JobKey      string
}

// Repository is the relational state the coordinator reads and writes.
type Repository interface {
	LoadInputs(ctx context.Context, briefID uuid.UUID) (Inputs, error)
	SetStatus(ctx context.Context, briefID uuid.UUID, status domain.Status) error
	SetProcessedResume(ctx context.Context, candidateID uuid.UUID, key string) error
	InsertArtifacts(ctx context.Context, candidateID uuid.UUID, artifacts []domain.Artifact) error
	Complete(ctx context.Context, briefID uuid.UUID, outputKey string) error
}

type PostgresRepository struct {
	db *sql.DB
	q  *database.Queries
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, q: database.New(db)}
}

func (p *PostgresRepository) LoadInputs(ctx context.Context, briefID uuid.UUID) (Inputs, error) {
	row, err := p.q.GetBriefInputs(ctx, briefID)
	if errors.Is(err, sql.ErrNoRows) {
		return Inputs{}, fmt.Errorf("%w: %s", ErrBriefNotFound, briefID)
	}
	if err != nil {
		return Inputs{}, fmt.Errorf("load brief inputs: %w", err)
	}
	return Inputs{
		BriefID:     row.ID,
		UserID:      row.UserID,
		CandidateID: row.CandidateID,
		JobID:       row.JobID,
		Status:      domain.Status(row.Status),
		ResumeKey:   row.S3ResumePath,
		JobKey:      row.S3JdPath,
	}, nil
}

func (p *PostgresRepository) SetStatus(ctx context.Context, briefID uuid.UUID, status domain.Status) error {
	return p.q.UpdateBriefStatus(ctx, database.UpdateBriefStatusParams{Status: string(status), ID: briefID})
}

func (p *PostgresRepository) SetProcessedResume(ctx context.Context, candidateID uuid.UUID, key string) error {
	return p.q.UpdateCandidateProcessedResume(ctx, database.UpdateCandidateProcessedResumeParams{
		S3ProcessedResumePath: sql.NullString{String: key, Valid: key != ""},
		ID:                    candidateID,
	})
}

// InsertArtifacts writes all artifacts in one transaction. Rows already
// present for the same candidate, type and URL are kept as they are.
func (p *PostgresRepository) InsertArtifacts(ctx context.Context, candidateID uuid.UUID, artifacts []domain.Artifact) error {
	if len(artifacts) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	q := p.q.WithTx(tx)
	for _, a := range artifacts {
		if err := q.InsertArtifact(ctx, database.InsertArtifactParams{
			ID:          uuid.New(),
			CandidateID: candidateID,
			Type:        a.Kind,
			Url:         a.URL,
			Title:       a.Title,
			Status:      a.Status,
		}); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert artifact %s: %w", a.URL, err)
		}
	}
	return tx.Commit()
}

func (p *PostgresRepository) Complete(ctx context.Context, briefID uuid.UUID, outputKey string) error {
	return p.q.CompleteBrief(ctx, database.CompleteBriefParams{
		S3OutputPath: sql.NullString{String: outputKey, Valid: true},
		ID:           briefID,
	})
}
