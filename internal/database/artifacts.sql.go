package database

import (
	"context"

	"github.com/google/uuid"
)

const deleteArtifactsByCandidate = `-- name: DeleteArtifactsByCandidate :exec
DELETE FROM artifacts WHERE candidate_id=$1
`

func (q *Queries) DeleteArtifactsByCandidate(ctx context.Context, candidateID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteArtifactsByCandidate, candidateID)
	return err
}

const insertArtifact = `-- name: InsertArtifact :exec
INSERT INTO artifacts (id, candidate_id, type, url, title, status)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (candidate_id, type, url) DO NOTHING
`

type InsertArtifactParams struct {
	ID          uuid.UUID
	CandidateID uuid.UUID
	Type        string
	Url         string
	Title       string
	Status      string
}

func (q *Queries) InsertArtifact(ctx context.Context, arg InsertArtifactParams) error {
	_, err := q.db.ExecContext(ctx, insertArtifact,
		arg.ID,
		arg.CandidateID,
		arg.Type,
		arg.Url,
		arg.Title,
		arg.Status,
	)
	return err
}

const listArtifactsByCandidate = `-- name: ListArtifactsByCandidate :many
SELECT id, candidate_id, type, url, title, status, created_at FROM artifacts WHERE candidate_id=$1 ORDER BY created_at
`

func (q *Queries) ListArtifactsByCandidate(ctx context.Context, candidateID uuid.UUID) ([]Artifact, error) {
	rows, err := q.db.QueryContext(ctx, listArtifactsByCandidate, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Artifact
	for rows.Next() {
		var i Artifact
		if err := rows.Scan(
			&i.ID,
			&i.CandidateID,
			&i.Type,
			&i.Url,
			&i.Title,
			&i.Status,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
