// Package briefs manages the Brief lifecycle seen by API callers: creation,
// listing, start requests and deletion, with lazy expiry of stuck briefs.
package briefs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
	"github.com/muhammadolammi/proofbriefworker/internal/logger"
	"github.com/muhammadolammi/proofbriefworker/internal/storage"
)

var (
	// ErrNotFound covers both missing briefs and briefs owned by someone else.
	ErrNotFound = errors.New("brief not found")
	ErrConflict = errors.New("brief is in a conflicting state")
)

const DefaultStaleAfter = 5 * time.Minute

type Brief struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user_id"`
	CandidateID uuid.UUID     `json:"candidate_id"`
	JobID       uuid.UUID     `json:"job_id"`
	Status      domain.Status `json:"status"`
	OutputKey   string        `json:"s3_output_path,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Artifact is a stored evidence record of the brief's candidate.
type Artifact struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBrief is the set of rows written when a brief is created.
type NewBrief struct {
	BriefID       uuid.UUID
	UserID        uuid.UUID
	CandidateID   uuid.UUID
	CandidateName string
	ResumeKey     string
	JobID         uuid.UUID
	JobTitle      string
	JobKey        string
}

// Store persists briefs and the candidate and job rows they own.
type Store interface {
	CreateBrief(ctx context.Context, nb NewBrief) (Brief, error)
	GetBrief(ctx context.Context, userID, id uuid.UUID) (Brief, error)
	ListBriefs(ctx context.Context, userID uuid.UUID, statuses []domain.Status) ([]Brief, error)
	ExpireStale(ctx context.Context, id uuid.UUID, createdBefore time.Time) (bool, error)
	ExpireStaleForUser(ctx context.Context, userID uuid.UUID, createdBefore time.Time) (int64, error)
	StartBrief(ctx context.Context, userID, id uuid.UUID) (Brief, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.Status) error
	DeleteBrief(ctx context.Context, b Brief) error
	ListArtifacts(ctx context.Context, candidateID uuid.UUID) ([]Artifact, error)
}

// Launcher requests one pipeline execution for a brief.
type Launcher interface {
	Launch(ctx context.Context, briefID uuid.UUID) error
}

type CreateRequest struct {
	CandidateName  string
	JobTitle       string
	JobDescription string
	// ResumeFilename only contributes its extension to the upload key.
	ResumeFilename string
	Resume         []byte
}

type Created struct {
	Brief     Brief  `json:"brief"`
	ResumeKey string `json:"resume_key"`
	JobKey    string `json:"jd_key"`
}

type Service struct {
	store    Store
	objects  storage.Store
	launcher Launcher
	logger   *zap.Logger

	StaleAfter time.Duration
	Now        func() time.Time
}

func NewService(store Store, objects storage.Store, launcher Launcher, log *zap.Logger) *Service {
	return &Service{
		store:      store,
		objects:    objects,
		launcher:   launcher,
		logger:     logger.OrNop(log),
		StaleAfter: DefaultStaleAfter,
		Now:        time.Now,
	}
}

// IsStale reports whether b has been PENDING for longer than threshold at now.
func IsStale(b Brief, now time.Time, threshold time.Duration) bool {
	return b.Status == domain.StatusPending && now.Sub(b.CreatedAt) > threshold
}

// Create stores the optional documents first and then writes the candidate,
// job and brief rows in one transaction.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateRequest) (*Created, error) {
	nb := NewBrief{
		BriefID:       uuid.New(),
		UserID:        userID,
		CandidateID:   uuid.New(),
		CandidateName: strings.TrimSpace(req.CandidateName),
		JobID:         uuid.New(),
		JobTitle:      strings.TrimSpace(req.JobTitle),
	}
	nb.ResumeKey = storage.ResumeOriginalKey(nb.CandidateID, resumeExt(req.ResumeFilename))
	nb.JobKey = storage.JobDescriptionKey(nb.JobID)

	if len(req.Resume) > 0 {
		if err := s.objects.Put(ctx, nb.ResumeKey, req.Resume, contentType(nb.ResumeKey)); err != nil {
			return nil, fmt.Errorf("upload resume: %w", err)
		}
	}
	if jd := strings.TrimSpace(req.JobDescription); jd != "" {
		if err := s.objects.Put(ctx, nb.JobKey, []byte(jd), "text/plain; charset=utf-8"); err != nil {
			return nil, fmt.Errorf("upload job description: %w", err)
		}
	}

	b, err := s.store.CreateBrief(ctx, nb)
	if err != nil {
		return nil, fmt.Errorf("create brief: %w", err)
	}
	s.logger.Info("brief created", zap.String("brief_id", b.ID.String()), zap.String("user_id", userID.String()))

	return &Created{Brief: b, ResumeKey: nb.ResumeKey, JobKey: nb.JobKey}, nil
}

// List expires the caller's stale briefs and returns the rest, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, statuses []domain.Status) ([]Brief, error) {
	n, err := s.store.ExpireStaleForUser(ctx, userID, s.Now().Add(-s.StaleAfter))
	if err != nil {
		return nil, fmt.Errorf("expire stale briefs: %w", err)
	}
	if n > 0 {
		s.logger.Info("stale briefs expired", zap.String("user_id", userID.String()), zap.Int64("count", n))
	}
	return s.store.ListBriefs(ctx, userID, statuses)
}

// Get returns the caller's brief, expiring it first if it is stale.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (Brief, error) {
	b, err := s.store.GetBrief(ctx, userID, id)
	if err != nil {
		return Brief{}, err
	}
	return s.expire(ctx, b)
}

func (s *Service) expire(ctx context.Context, b Brief) (Brief, error) {
	now := s.Now()
	if !IsStale(b, now, s.StaleAfter) {
		return b, nil
	}
	expired, err := s.store.ExpireStale(ctx, b.ID, now.Add(-s.StaleAfter))
	if err != nil {
		return Brief{}, fmt.Errorf("expire stale brief: %w", err)
	}
	if expired {
		s.logger.Info("stale brief expired", zap.String("brief_id", b.ID.String()))
		b.Status = domain.StatusFailed
		b.UpdatedAt = now
	}
	return b, nil
}

// Artifacts lists the evidence recorded for the brief's candidate, oldest first.
func (s *Service) Artifacts(ctx context.Context, userID, id uuid.UUID) ([]Artifact, error) {
	b, err := s.store.GetBrief(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	artifacts, err := s.store.ListArtifacts(ctx, b.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return artifacts, nil
}

// Start moves the brief to PROCESSING and requests one pipeline execution.
// Repeated starts each request an execution.
func (s *Service) Start(ctx context.Context, userID, id uuid.UUID) (Brief, error) {
	b, err := s.Get(ctx, userID, id)
	if err != nil {
		return Brief{}, err
	}
	if b.Status.Terminal() {
		return Brief{}, fmt.Errorf("%w: brief is %s", ErrConflict, b.Status)
	}

	b, err = s.store.StartBrief(ctx, userID, id)
	if err != nil {
		return Brief{}, err
	}

	if err := s.launcher.Launch(ctx, id); err != nil {
		s.logger.Error("failed to launch pipeline", zap.String("brief_id", id.String()), zap.Error(err))
		if serr := s.store.SetStatus(context.WithoutCancel(ctx), id, domain.StatusFailed); serr != nil {
			s.logger.Error("failed to mark brief failed", zap.String("brief_id", id.String()), zap.Error(serr))
		}
		return Brief{}, fmt.Errorf("launch pipeline: %w", err)
	}

	s.logger.Info("brief started", zap.String("brief_id", id.String()))
	return b, nil
}

// Delete removes a terminal brief with its candidate, job and artifacts.
// Stored objects are removed best effort.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	b, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if !b.Status.Terminal() {
		return fmt.Errorf("%w: brief is %s", ErrConflict, b.Status)
	}

	if err := s.store.DeleteBrief(ctx, b); err != nil {
		return fmt.Errorf("delete brief: %w", err)
	}

	prefixes := []string{
		storage.BriefPrefix(b.ID),
		path.Dir(storage.ResumeOriginalKey(b.CandidateID, "")) + "/",
		path.Dir(storage.JobDescriptionKey(b.JobID)) + "/",
	}
	for _, prefix := range prefixes {
		if err := s.objects.DeletePrefix(ctx, prefix); err != nil {
			s.logger.Warn("failed to delete stored objects", zap.String("prefix", prefix), zap.Error(err))
		}
	}

	s.logger.Info("brief deleted", zap.String("brief_id", id.String()))
	return nil
}

func resumeExt(filename string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	switch ext {
	case ".pdf", ".docx", ".png", ".jpg", ".jpeg", ".tiff":
		return ext
	}
	return ".pdf"
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".tiff":
		return "image/tiff"
	}
	return "application/pdf"
}
