package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammadolammi/proofbriefworker/internal/briefs"
	"github.com/muhammadolammi/proofbriefworker/internal/domain"
)

type fakeService struct {
	owner   uuid.UUID
	briefs  map[uuid.UUID]briefs.Brief
	created []briefs.CreateRequest
	listed  [][]domain.Status
	failAll error
}

func newFakeService(owner uuid.UUID) *fakeService {
	return &fakeService{owner: owner, briefs: map[uuid.UUID]briefs.Brief{}}
}

func (f *fakeService) add(status domain.Status) briefs.Brief {
	b := briefs.Brief{ID: uuid.New(), UserID: f.owner, Status: status}
	if status == domain.StatusDone {
		b.OutputKey = "briefs/" + b.ID.String() + "/final.json"
	}
	f.briefs[b.ID] = b
	return b
}

func (f *fakeService) lookup(userID, id uuid.UUID) (briefs.Brief, error) {
	if f.failAll != nil {
		return briefs.Brief{}, f.failAll
	}
	b, ok := f.briefs[id]
	if !ok || b.UserID != userID {
		return briefs.Brief{}, briefs.ErrNotFound
	}
	return b, nil
}

func (f *fakeService) Create(_ context.Context, userID uuid.UUID, req briefs.CreateRequest) (*briefs.Created, error) {
	f.created = append(f.created, req)
	b := briefs.Brief{ID: uuid.New(), UserID: userID, Status: domain.StatusPending}
	f.briefs[b.ID] = b
	return &briefs.Created{Brief: b, ResumeKey: "candidates/x/resume_original.pdf", JobKey: "jobs/y/jd.txt"}, nil
}

func (f *fakeService) List(_ context.Context, userID uuid.UUID, statuses []domain.Status) ([]briefs.Brief, error) {
	f.listed = append(f.listed, statuses)
	var out []briefs.Brief
	for _, b := range f.briefs {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeService) Get(_ context.Context, userID, id uuid.UUID) (briefs.Brief, error) {
	return f.lookup(userID, id)
}

func (f *fakeService) Artifacts(_ context.Context, userID, id uuid.UUID) ([]briefs.Artifact, error) {
	if _, err := f.lookup(userID, id); err != nil {
		return nil, err
	}
	return []briefs.Artifact{{Type: domain.ArtifactRepoSelected, URL: "https://github.com/jane/svc", Title: "svc", Status: "selected"}}, nil
}

func (f *fakeService) Start(_ context.Context, userID, id uuid.UUID) (briefs.Brief, error) {
	b, err := f.lookup(userID, id)
	if err != nil {
		return briefs.Brief{}, err
	}
	if b.Status.Terminal() {
		return briefs.Brief{}, briefs.ErrConflict
	}
	b.Status = domain.StatusProcessing
	f.briefs[id] = b
	return b, nil
}

func (f *fakeService) Delete(_ context.Context, userID, id uuid.UUID) error {
	b, err := f.lookup(userID, id)
	if err != nil {
		return err
	}
	if !b.Status.Terminal() {
		return briefs.ErrConflict
	}
	delete(f.briefs, id)
	return nil
}

func do(t *testing.T, h http.Handler, method, target string, user uuid.UUID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if user != uuid.Nil {
		req.Header.Set(UserHeader, user.String())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestUnauthenticatedRequests(t *testing.T) {
	h := NewServer(newFakeService(uuid.New()), nil).Handler()

	rec := do(t, h, http.MethodGet, "/briefs", uuid.Nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/briefs", nil)
	req.Header.Set(UserHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/health", uuid.Nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateBrief(t *testing.T) {
	user := uuid.New()
	svc := newFakeService(user)
	h := NewServer(svc, nil).Handler()

	resume := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 resume"))
	rec := do(t, h, http.MethodPost, "/briefs", user, `{
		"candidate_name": "Jane Doe",
		"job_title": "Platform Engineer",
		"job_description": "Kubernetes and Go",
		"resume_filename": "jane.pdf",
		"resume_base64": "`+resume+`"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, svc.created, 1)
	assert.Equal(t, "Jane Doe", svc.created[0].CandidateName)
	assert.Equal(t, []byte("%PDF-1.4 resume"), svc.created[0].Resume)

	body := decode(t, rec)
	assert.Equal(t, "jobs/y/jd.txt", body["jd_key"])
	assert.Equal(t, "PENDING", body["brief"].(map[string]any)["status"])
}

func TestCreateBriefValidation(t *testing.T) {
	user := uuid.New()
	svc := newFakeService(user)
	h := NewServer(svc, nil).Handler()

	cases := map[string]string{
		"malformed json":  `{"candidate_name":`,
		"missing title":   `{"candidate_name": "Jane"}`,
		"missing name":    `{"job_title": "SRE"}`,
		"bad base64":      `{"candidate_name": "Jane", "job_title": "SRE", "resume_base64": "%%%"}`,
		"oversized title": `{"candidate_name": "Jane", "job_title": "` + strings.Repeat("x", 201) + `"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/briefs", user, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, svc.created)
}

func TestListBriefsParsesStatusFilter(t *testing.T) {
	user := uuid.New()
	svc := newFakeService(user)
	svc.add(domain.StatusDone)
	h := NewServer(svc, nil).Handler()

	rec := do(t, h, http.MethodGet, "/briefs?status=done,failed", user, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, [][]domain.Status{{domain.StatusDone, domain.StatusFailed}}, svc.listed)
	assert.Len(t, decode(t, rec)["briefs"], 1)

	rec = do(t, h, http.MethodGet, "/briefs?status=archived", user, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/briefs", uuid.New(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["briefs"])
}

func TestGetBrief(t *testing.T) {
	user := uuid.New()
	svc := newFakeService(user)
	done := svc.add(domain.StatusDone)
	pending := svc.add(domain.StatusPending)
	h := NewServer(svc, nil).Handler()

	rec := do(t, h, http.MethodGet, "/briefs/"+done.ID.String(), user, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, done.OutputKey, decode(t, rec)["s3_output_path"])

	rec = do(t, h, http.MethodGet, "/briefs/"+pending.ID.String(), user, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, has := decode(t, rec)["s3_output_path"]
	assert.False(t, has)

	rec = do(t, h, http.MethodGet, "/briefs/"+done.ID.String(), uuid.New(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/briefs/nope", user, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListArtifacts(t *testing.T) {
	user := uuid.New()
	svc := newFakeService(user)
	done := svc.add(domain.StatusDone)
	h := NewServer(svc, nil).Handler()

	rec := do(t, h, http.MethodGet, "/briefs/"+done.ID.String()+"/artifacts", user, "")
	require.Equal(t, http.StatusOK, rec.Code)
	artifacts := decode(t, rec)["artifacts"].([]any)
	require.Len(t, artifacts, 1)
	assert.Equal(t, "GITHUB_REPO_SELECTED", artifacts[0].(map[string]any)["type"])

	rec = do(t, h, http.MethodGet, "/briefs/"+done.ID.String()+"/artifacts", uuid.New(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartBrief(t *testing.T) {
	user := uuid.New()
	svc := newFakeService(user)
	pending := svc.add(domain.StatusPending)
	failed := svc.add(domain.StatusFailed)
	h := NewServer(svc, nil).Handler()

	rec := do(t, h, http.MethodPut, "/briefs/"+pending.ID.String()+"/start", user, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "PROCESSING", decode(t, rec)["status"])

	rec = do(t, h, http.MethodPut, "/briefs/"+failed.ID.String()+"/start", user, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPut, "/briefs/"+pending.ID.String()+"/start", uuid.New(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteBrief(t *testing.T) {
	user := uuid.New()
	svc := newFakeService(user)
	processing := svc.add(domain.StatusProcessing)
	done := svc.add(domain.StatusDone)
	h := NewServer(svc, nil).Handler()

	rec := do(t, h, http.MethodDelete, "/briefs/"+processing.ID.String(), user, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodDelete, "/briefs/"+done.ID.String(), user, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deleted", decode(t, rec)["status"])

	rec = do(t, h, http.MethodDelete, "/briefs/"+done.ID.String(), user, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	user := uuid.New()
	svc := newFakeService(user)
	svc.failAll = errors.New("pq: connection refused")
	h := NewServer(svc, nil).Handler()

	rec := do(t, h, http.MethodGet, "/briefs/"+uuid.NewString(), user, "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["error"])
	assert.NotContains(t, rec.Body.String(), "pq:")
}
