package briefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/muhammadolammi/proofbriefworker/internal/database"
	"github.com/muhammadolammi/proofbriefworker/internal/domain"
)

// PostgresStore implements Store on the generated queries.
type PostgresStore struct {
	db *sql.DB
	q  *database.Queries
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: database.New(db)}
}

func (p *PostgresStore) withTx(ctx context.Context, fn func(q *database.Queries) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(p.q.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func fromRow(r database.Brief) Brief {
	return Brief{
		ID:          r.ID,
		UserID:      r.UserID,
		CandidateID: r.CandidateID,
		JobID:       r.JobID,
		Status:      domain.Status(r.Status),
		OutputKey:   r.S3OutputPath.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (p *PostgresStore) CreateBrief(ctx context.Context, nb NewBrief) (Brief, error) {
	var created database.Brief
	err := p.withTx(ctx, func(q *database.Queries) error {
		if _, err := q.CreateCandidate(ctx, database.CreateCandidateParams{
			ID:           nb.CandidateID,
			UserID:       nb.UserID,
			FullName:     nb.CandidateName,
			S3ResumePath: nb.ResumeKey,
		}); err != nil {
			return fmt.Errorf("insert candidate: %w", err)
		}
		if _, err := q.CreateJob(ctx, database.CreateJobParams{
			ID:       nb.JobID,
			UserID:   nb.UserID,
			Title:    nb.JobTitle,
			S3JdPath: nb.JobKey,
		}); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		b, err := q.CreateBrief(ctx, database.CreateBriefParams{
			ID:          nb.BriefID,
			UserID:      nb.UserID,
			CandidateID: nb.CandidateID,
			JobID:       nb.JobID,
		})
		if err != nil {
			return fmt.Errorf("insert brief: %w", err)
		}
		created = b
		return nil
	})
	if err != nil {
		return Brief{}, err
	}
	return fromRow(created), nil
}

func (p *PostgresStore) GetBrief(ctx context.Context, userID, id uuid.UUID) (Brief, error) {
	row, err := p.q.GetBriefForUser(ctx, database.GetBriefForUserParams{ID: id, UserID: userID})
	if errors.Is(err, sql.ErrNoRows) {
		return Brief{}, ErrNotFound
	}
	if err != nil {
		return Brief{}, err
	}
	return fromRow(row), nil
}

func (p *PostgresStore) ListBriefs(ctx context.Context, userID uuid.UUID, statuses []domain.Status) ([]Brief, error) {
	filter := database.ListBriefsFilter{UserID: userID}
	for _, s := range statuses {
		filter.Statuses = append(filter.Statuses, string(s))
	}
	rows, err := p.q.ListBriefs(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Brief, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

func (p *PostgresStore) ExpireStale(ctx context.Context, id uuid.UUID, createdBefore time.Time) (bool, error) {
	n, err := p.q.ExpireStaleBrief(ctx, database.ExpireStaleBriefParams{ID: id, CreatedAt: createdBefore})
	return n > 0, err
}

func (p *PostgresStore) ExpireStaleForUser(ctx context.Context, userID uuid.UUID, createdBefore time.Time) (int64, error) {
	return p.q.ExpireStaleBriefs(ctx, database.ExpireStaleBriefsParams{UserID: userID, CreatedAt: createdBefore})
}

func (p *PostgresStore) StartBrief(ctx context.Context, userID, id uuid.UUID) (Brief, error) {
	row, err := p.q.StartBrief(ctx, database.StartBriefParams{ID: id, UserID: userID})
	if errors.Is(err, sql.ErrNoRows) {
		return Brief{}, fmt.Errorf("%w: brief left the startable states", ErrConflict)
	}
	if err != nil {
		return Brief{}, err
	}
	return fromRow(row), nil
}

func (p *PostgresStore) SetStatus(ctx context.Context, id uuid.UUID, status domain.Status) error {
	return p.q.UpdateBriefStatus(ctx, database.UpdateBriefStatusParams{Status: string(status), ID: id})
}

func (p *PostgresStore) DeleteBrief(ctx context.Context, b Brief) error {
	return p.withTx(ctx, func(q *database.Queries) error {
		if err := q.DeleteBrief(ctx, b.ID); err != nil {
			return fmt.Errorf("delete brief row: %w", err)
		}
		if err := q.DeleteArtifactsByCandidate(ctx, b.CandidateID); err != nil {
			return fmt.Errorf("delete artifacts: %w", err)
		}
		if err := q.DeleteCandidate(ctx, b.CandidateID); err != nil {
			return fmt.Errorf("delete candidate: %w", err)
		}
		if err := q.DeleteJob(ctx, b.JobID); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		return nil
	})
}

func (p *PostgresStore) ListArtifacts(ctx context.Context, candidateID uuid.UUID) ([]Artifact, error) {
	rows, err := p.q.ListArtifactsByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	out := make([]Artifact, 0, len(rows))
	for _, r := range rows {
		out = append(out, Artifact{
			ID:        r.ID,
			Type:      r.Type,
			URL:       r.Url,
			Title:     r.Title,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
