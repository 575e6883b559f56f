// Package api exposes the brief lifecycle over HTTP.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muhammadolammi/proofbriefworker/internal/briefs"
	"github.com/muhammadolammi/proofbriefworker/internal/domain"
	"github.com/muhammadolammi/proofbriefworker/internal/logger"
)

const (
	// UserHeader carries the authenticated caller, set by the gateway in front of the API.
	UserHeader = "X-User-ID"

	maxBodyBytes = 15 << 20
)

// BriefService is the lifecycle the handlers drive.
type BriefService interface {
	Create(ctx context.Context, userID uuid.UUID, req briefs.CreateRequest) (*briefs.Created, error)
	List(ctx context.Context, userID uuid.UUID, statuses []domain.Status) ([]briefs.Brief, error)
	Get(ctx context.Context, userID, id uuid.UUID) (briefs.Brief, error)
	Artifacts(ctx context.Context, userID, id uuid.UUID) ([]briefs.Artifact, error)
	Start(ctx context.Context, userID, id uuid.UUID) (briefs.Brief, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type createBriefRequest struct {
	CandidateName  string `json:"candidate_name" validate:"required,max=200"`
	JobTitle       string `json:"job_title" validate:"required,max=200"`
	JobDescription string `json:"job_description" validate:"omitempty,max=50000"`
	ResumeFilename string `json:"resume_filename" validate:"omitempty,max=255"`
	ResumeBase64   string `json:"resume_base64" validate:"omitempty,base64"`
}

type userKey struct{}

type Server struct {
	service  BriefService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewServer(service BriefService, log *zap.Logger) *Server {
	return &Server{service: service, validate: validator.New(), logger: logger.OrNop(log)}
}

// Handler returns the routed handler with logging and caller identification.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /briefs", s.requireUser(s.handleCreate))
	mux.Handle("GET /briefs", s.requireUser(s.handleList))
	mux.Handle("GET /briefs/{id}", s.requireUser(s.handleGet))
	mux.Handle("GET /briefs/{id}/artifacts", s.requireUser(s.handleArtifacts))
	mux.Handle("PUT /briefs/{id}/start", s.requireUser(s.handleStart))
	mux.Handle("DELETE /briefs/{id}", s.requireUser(s.handleDelete))
	return s.withLogging(mux)
}

// NewHTTPServer wraps the handler with the timeouts the worker serves with.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(strings.TrimSpace(r.Header.Get(UserHeader)))
		if err != nil || userID == uuid.Nil {
			s.errorResponse(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

func userFrom(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(userKey{}).(uuid.UUID)
	return id
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createBriefRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	var resume []byte
	if req.ResumeBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.ResumeBase64)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "resume_base64 is not valid base64")
			return
		}
		resume = decoded
	}

	created, err := s.service.Create(r.Context(), userFrom(r), briefs.CreateRequest{
		CandidateName:  req.CandidateName,
		JobTitle:       req.JobTitle,
		JobDescription: req.JobDescription,
		ResumeFilename: req.ResumeFilename,
		Resume:         resume,
	})
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, created)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := s.service.List(r.Context(), userFrom(r), statuses)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if list == nil {
		list = []briefs.Brief{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"briefs": list})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	b, err := s.service.Get(r.Context(), userFrom(r), id)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, b)
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	artifacts, err := s.service.Artifacts(r.Context(), userFrom(r), id)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if artifacts == nil {
		artifacts = []briefs.Artifact{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	b, err := s.service.Start(r.Context(), userFrom(r), id)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, b)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.service.Delete(r.Context(), userFrom(r), id); err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"id": id.String(), "status": "deleted"})
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid brief id")
		return uuid.Nil, false
	}
	return id, true
}

func parseStatuses(raw string) ([]domain.Status, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []domain.Status
	for _, part := range strings.Split(raw, ",") {
		st := domain.Status(strings.ToUpper(strings.TrimSpace(part)))
		switch st {
		case domain.StatusPending, domain.StatusProcessing, domain.StatusDone, domain.StatusFailed, domain.StatusCancelled:
			out = append(out, st)
		default:
			return nil, errors.New("unknown status " + part)
		}
	}
	return out, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" failed "+fe.Tag())
	}
	return "invalid request: " + strings.Join(fields, ", ")
}

// serviceError maps lifecycle errors to responses. Internal detail stays in the log.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, briefs.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "brief not found")
	case errors.Is(err, briefs.ErrConflict):
		s.errorResponse(w, http.StatusConflict, "brief is not in a state that allows this action")
	default:
		s.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
