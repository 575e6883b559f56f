package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const completeBrief = `-- name: CompleteBrief :exec
UPDATE briefs
SET status='DONE', s3_output_path=$1, updated_at=CURRENT_TIMESTAMP
WHERE id=$2
`

type CompleteBriefParams struct {
	S3OutputPath sql.NullString
	ID           uuid.UUID
}

func (q *Queries) CompleteBrief(ctx context.Context, arg CompleteBriefParams) error {
	_, err := q.db.ExecContext(ctx, completeBrief, arg.S3OutputPath, arg.ID)
	return err
}

const createBrief = `-- name: CreateBrief :one
INSERT INTO briefs (id, user_id, candidate_id, job_id, status)
VALUES ($1, $2, $3, $4, 'PENDING')
RETURNING id, user_id, candidate_id, job_id, status, s3_output_path, created_at, updated_at
`

type CreateBriefParams struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	CandidateID uuid.UUID
	JobID       uuid.UUID
}

func (q *Queries) CreateBrief(ctx context.Context, arg CreateBriefParams) (Brief, error) {
	row := q.db.QueryRowContext(ctx, createBrief,
		arg.ID,
		arg.UserID,
		arg.CandidateID,
		arg.JobID,
	)
	var i Brief
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.CandidateID,
		&i.JobID,
		&i.Status,
		&i.S3OutputPath,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteBrief = `-- name: DeleteBrief :exec
DELETE FROM briefs WHERE id=$1
`

func (q *Queries) DeleteBrief(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteBrief, id)
	return err
}

const expireStaleBrief = `-- name: ExpireStaleBrief :execrows
UPDATE briefs
SET status='FAILED', updated_at=CURRENT_TIMESTAMP
WHERE id=$1 AND status='PENDING' AND created_at < $2
`

type ExpireStaleBriefParams struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

func (q *Queries) ExpireStaleBrief(ctx context.Context, arg ExpireStaleBriefParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, expireStaleBrief, arg.ID, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const expireStaleBriefs = `-- name: ExpireStaleBriefs :execrows
UPDATE briefs
SET status='FAILED', updated_at=CURRENT_TIMESTAMP
WHERE user_id=$1 AND status='PENDING' AND created_at < $2
`

type ExpireStaleBriefsParams struct {
	UserID    uuid.UUID
	CreatedAt time.Time
}

func (q *Queries) ExpireStaleBriefs(ctx context.Context, arg ExpireStaleBriefsParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, expireStaleBriefs, arg.UserID, arg.CreatedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getBriefForUser = `-- name: GetBriefForUser :one
SELECT id, user_id, candidate_id, job_id, status, s3_output_path, created_at, updated_at FROM briefs WHERE id=$1 AND user_id=$2
`

type GetBriefForUserParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) GetBriefForUser(ctx context.Context, arg GetBriefForUserParams) (Brief, error) {
	row := q.db.QueryRowContext(ctx, getBriefForUser, arg.ID, arg.UserID)
	var i Brief
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.CandidateID,
		&i.JobID,
		&i.Status,
		&i.S3OutputPath,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getBriefInputs = `-- name: GetBriefInputs :one
SELECT b.id, b.user_id, b.candidate_id, b.job_id, b.status,
       c.s3_resume_path, c.s3_processed_resume_path, j.s3_jd_path
FROM briefs b
JOIN candidates c ON b.candidate_id = c.id
JOIN jobs j ON b.job_id = j.id
WHERE b.id=$1
`

type GetBriefInputsRow struct {
	ID                    uuid.UUID
	UserID                uuid.UUID
	CandidateID           uuid.UUID
	JobID                 uuid.UUID
	Status                string
	S3ResumePath          string
	S3ProcessedResumePath sql.NullString
	S3JdPath              string
}

func (q *Queries) GetBriefInputs(ctx context.Context, id uuid.UUID) (GetBriefInputsRow, error) {
	row := q.db.QueryRowContext(ctx, getBriefInputs, id)
	var i GetBriefInputsRow
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.CandidateID,
		&i.JobID,
		&i.Status,
		&i.S3ResumePath,
		&i.S3ProcessedResumePath,
		&i.S3JdPath,
	)
	return i, err
}

const startBrief = `-- name: StartBrief :one
UPDATE briefs
SET status='PROCESSING', updated_at=CURRENT_TIMESTAMP
WHERE id=$1 AND user_id=$2 AND status IN ('PENDING', 'PROCESSING')
RETURNING id, user_id, candidate_id, job_id, status, s3_output_path, created_at, updated_at
`

type StartBriefParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) StartBrief(ctx context.Context, arg StartBriefParams) (Brief, error) {
	row := q.db.QueryRowContext(ctx, startBrief, arg.ID, arg.UserID)
	var i Brief
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.CandidateID,
		&i.JobID,
		&i.Status,
		&i.S3OutputPath,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateBriefStatus = `-- name: UpdateBriefStatus :exec
UPDATE briefs
SET status=$1, updated_at=CURRENT_TIMESTAMP
WHERE id=$2
`

type UpdateBriefStatusParams struct {
	Status string
	ID     uuid.UUID
}

func (q *Queries) UpdateBriefStatus(ctx context.Context, arg UpdateBriefStatusParams) error {
	_, err := q.db.ExecContext(ctx, updateBriefStatus, arg.Status, arg.ID)
	return err
}
