package database

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const createCandidate = `-- name: CreateCandidate :one
INSERT INTO candidates (id, user_id, full_name, s3_resume_path)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, full_name, s3_resume_path, s3_processed_resume_path, created_at
`

type CreateCandidateParams struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	FullName     string
	S3ResumePath string
}

func (q *Queries) CreateCandidate(ctx context.Context, arg CreateCandidateParams) (Candidate, error) {
	row := q.db.QueryRowContext(ctx, createCandidate,
		arg.ID,
		arg.UserID,
		arg.FullName,
		arg.S3ResumePath,
	)
	var i Candidate
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.FullName,
		&i.S3ResumePath,
		&i.S3ProcessedResumePath,
		&i.CreatedAt,
	)
	return i, err
}

const deleteCandidate = `-- name: DeleteCandidate :exec
DELETE FROM candidates WHERE id=$1
`

func (q *Queries) DeleteCandidate(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteCandidate, id)
	return err
}

const updateCandidateProcessedResume = `-- name: UpdateCandidateProcessedResume :exec
UPDATE candidates
SET s3_processed_resume_path=$1
WHERE id=$2
`

type UpdateCandidateProcessedResumeParams struct {
	S3ProcessedResumePath sql.NullString
	ID                    uuid.UUID
}

func (q *Queries) UpdateCandidateProcessedResume(ctx context.Context, arg UpdateCandidateProcessedResumeParams) error {
	_, err := q.db.ExecContext(ctx, updateCandidateProcessedResume, arg.S3ProcessedResumePath, arg.ID)
	return err
}
