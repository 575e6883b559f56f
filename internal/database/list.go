package database

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var briefColumns = []string{
	"id", "user_id", "candidate_id", "job_id", "status", "s3_output_path", "created_at", "updated_at",
}

// ListBriefsFilter narrows ListBriefs. Zero values mean no filter.
type ListBriefsFilter struct {
	UserID   uuid.UUID
	Statuses []string
	Limit    uint64
	Offset   uint64
}

func listBriefsQuery(f ListBriefsFilter) (string, []interface{}, error) {
	b := psql.Select(briefColumns...).
		From("briefs").
		Where(sq.Eq{"user_id": f.UserID}).
		OrderBy("created_at DESC", "id")
	if len(f.Statuses) > 0 {
		b = b.Where(sq.Eq{"status": f.Statuses})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	if f.Offset > 0 {
		b = b.Offset(f.Offset)
	}
	return b.ToSql()
}

// ListBriefs returns a user's briefs, newest first.
func (q *Queries) ListBriefs(ctx context.Context, f ListBriefsFilter) ([]Brief, error) {
	query, args, err := listBriefsQuery(f)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Brief
	for rows.Next() {
		var i Brief
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.CandidateID,
			&i.JobID,
			&i.Status,
			&i.S3OutputPath,
			&i.CreatedAt,
			&i.UpdatedAt,
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
