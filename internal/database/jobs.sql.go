package database

import (
	"context"

	"github.com/google/uuid"
)

const createJob = `-- name: CreateJob :one
INSERT INTO jobs (id, user_id, title, s3_jd_path)
VALUES ($1, $2, $3, $4)
RETURNING id, user_id, title, s3_jd_path, created_at
`

type CreateJobParams struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Title    string
	S3JdPath string
}

func (q *Queries) CreateJob(ctx context.Context, arg CreateJobParams) (Job, error) {
	row := q.db.QueryRowContext(ctx, createJob,
		arg.ID,
		arg.UserID,
		arg.Title,
		arg.S3JdPath,
	)
	var i Job
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Title,
		&i.S3JdPath,
		&i.CreatedAt,
	)
	return i, err
}

const deleteJob = `-- name: DeleteJob :exec
DELETE FROM jobs WHERE id=$1
`

func (q *Queries) DeleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteJob, id)
	return err
}
