package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Artifact struct {
	ID          uuid.UUID
	CandidateID uuid.UUID
	Type        string
	Url         string
	Title       string
	Status      string
	CreatedAt   time.Time
}

type Brief struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	CandidateID  uuid.UUID
	JobID        uuid.UUID
	Status       string
	S3OutputPath sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Candidate struct {
	ID                    uuid.UUID
	UserID                uuid.UUID
	FullName              string
	S3ResumePath          string
	S3ProcessedResumePath sql.NullString
	CreatedAt             time.Time
}

type Job struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Title     string
	S3JdPath  string
	CreatedAt time.Time
}
