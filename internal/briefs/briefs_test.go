package briefs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammadolammi/proofbriefworker/internal/domain"
	"github.com/muhammadolammi/proofbriefworker/internal/storage"
)

type memStore struct {
	mu        sync.Mutex
	now       func() time.Time
	briefs    map[uuid.UUID]Brief
	artifacts map[uuid.UUID][]Artifact
	deleted   []uuid.UUID
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{now: now, briefs: map[uuid.UUID]Brief{}, artifacts: map[uuid.UUID][]Artifact{}}
}

func (m *memStore) CreateBrief(_ context.Context, nb NewBrief) (Brief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := Brief{
		ID:          nb.BriefID,
		UserID:      nb.UserID,
		CandidateID: nb.CandidateID,
		JobID:       nb.JobID,
		Status:      domain.StatusPending,
		CreatedAt:   m.now(),
		UpdatedAt:   m.now(),
	}
	m.briefs[b.ID] = b
	return b, nil
}

func (m *memStore) put(b Brief) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.briefs[b.ID] = b
}

func (m *memStore) status(id uuid.UUID) domain.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.briefs[id].Status
}

func (m *memStore) GetBrief(_ context.Context, userID, id uuid.UUID) (Brief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.briefs[id]
	if !ok || b.UserID != userID {
		return Brief{}, ErrNotFound
	}
	return b, nil
}

func (m *memStore) ListBriefs(_ context.Context, userID uuid.UUID, statuses []domain.Status) ([]Brief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Brief
	for _, b := range m.briefs {
		if b.UserID != userID {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, b.Status) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func containsStatus(list []domain.Status, s domain.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memStore) ExpireStale(_ context.Context, id uuid.UUID, createdBefore time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.briefs[id]
	if !ok || b.Status != domain.StatusPending || !b.CreatedAt.Before(createdBefore) {
		return false, nil
	}
	b.Status = domain.StatusFailed
	m.briefs[id] = b
	return true, nil
}

func (m *memStore) ExpireStaleForUser(_ context.Context, userID uuid.UUID, createdBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, b := range m.briefs {
		if b.UserID == userID && b.Status == domain.StatusPending && b.CreatedAt.Before(createdBefore) {
			b.Status = domain.StatusFailed
			m.briefs[id] = b
			n++
		}
	}
	return n, nil
}

func (m *memStore) StartBrief(_ context.Context, userID, id uuid.UUID) (Brief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.briefs[id]
	if !ok || b.UserID != userID || b.Status.Terminal() {
		return Brief{}, ErrConflict
	}
	b.Status = domain.StatusProcessing
	m.briefs[id] = b
	return b, nil
}

func (m *memStore) SetStatus(_ context.Context, id uuid.UUID, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.briefs[id]
	b.Status = status
	m.briefs[id] = b
	return nil
}

func (m *memStore) DeleteBrief(_ context.Context, b Brief) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.briefs, b.ID)
	m.deleted = append(m.deleted, b.ID)
	return nil
}

func (m *memStore) ListArtifacts(_ context.Context, candidateID uuid.UUID) ([]Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.artifacts[candidateID], nil
}

type recordingLauncher struct {
	mu       sync.Mutex
	launched []uuid.UUID
	err      error
}

func (l *recordingLauncher) Launch(_ context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.launched = append(l.launched, id)
	return nil
}

type fixture struct {
	svc      *Service
	store    *memStore
	objects  *storage.Memory
	launcher *recordingLauncher
	now      time.Time
	user     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		objects:  storage.NewMemory(),
		launcher: &recordingLauncher{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		user:     uuid.New(),
	}
	clock := func() time.Time { return f.now }
	f.store = newMemStore(clock)
	f.svc = NewService(f.store, f.objects, f.launcher, nil)
	f.svc.Now = clock
	return f
}

func (f *fixture) create(t *testing.T) Brief {
	t.Helper()
	created, err := f.svc.Create(context.Background(), f.user, CreateRequest{
		CandidateName:  "Jane Doe",
		JobTitle:       "Platform Engineer",
		JobDescription: "Kubernetes and Go",
		ResumeFilename: "jane.pdf",
		Resume:         []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
	return created.Brief
}

func TestCreateStoresDocuments(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), f.user, CreateRequest{
		CandidateName:  "Jane Doe",
		JobTitle:       "Platform Engineer",
		JobDescription: "  Kubernetes and Go  ",
		ResumeFilename: "Jane.DOCX",
		Resume:         []byte("PK"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, created.Brief.Status)
	assert.Equal(t, "candidates/"+created.Brief.CandidateID.String()+"/resume_original.docx", created.ResumeKey)
	assert.Equal(t, "jobs/"+created.Brief.JobID.String()+"/jd.txt", created.JobKey)

	jd, err := f.objects.Get(context.Background(), created.JobKey)
	require.NoError(t, err)
	assert.Equal(t, "Kubernetes and Go", string(jd))
	_, err = f.objects.Get(context.Background(), created.ResumeKey)
	require.NoError(t, err)
}

func TestCreateWithoutDocuments(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), f.user, CreateRequest{JobTitle: "SRE"})
	require.NoError(t, err)
	assert.True(t, len(created.ResumeKey) > 0)
	assert.Empty(t, f.objects.Keys())
}

func TestStaleExpiry(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	f.now = f.now.Add(4 * time.Minute)
	got, err := f.svc.Get(context.Background(), f.user, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)

	f.now = f.now.Add(2 * time.Minute)
	got, err = f.svc.Get(context.Background(), f.user, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, domain.StatusFailed, f.store.status(b.ID))
}

func TestStaleExpiryIgnoresProcessing(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	_, err := f.svc.Start(context.Background(), f.user, b.ID)
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	got, err := f.svc.Get(context.Background(), f.user, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
}

func TestListExpiresStale(t *testing.T) {
	f := newFixture(t)
	old := f.create(t)
	f.now = f.now.Add(10 * time.Minute)
	fresh := f.create(t)

	list, err := f.svc.List(context.Background(), f.user, nil)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, fresh.ID, list[0].ID)
	assert.Equal(t, domain.StatusPending, list[0].Status)
	assert.Equal(t, old.ID, list[1].ID)
	assert.Equal(t, domain.StatusFailed, list[1].Status)

	failed, err := f.svc.List(context.Background(), f.user, []domain.Status{domain.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, old.ID, failed[0].ID)
}

func TestIsStale(t *testing.T) {
	now := time.Now()
	b := Brief{Status: domain.StatusPending, CreatedAt: now.Add(-6 * time.Minute)}
	assert.True(t, IsStale(b, now, 5*time.Minute))
	assert.False(t, IsStale(b, now, 10*time.Minute))

	b.Status = domain.StatusProcessing
	assert.False(t, IsStale(b, now, 5*time.Minute))
}

func TestStartLaunchesEveryRequest(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	got, err := f.svc.Start(context.Background(), f.user, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)

	_, err = f.svc.Start(context.Background(), f.user, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID, b.ID}, f.launcher.launched)
}

func TestStartRejectsOtherUsers(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)

	_, err := f.svc.Start(context.Background(), uuid.New(), b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.launcher.launched)
}

func TestStartRejectsTerminal(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	f.now = f.now.Add(6 * time.Minute)

	_, err := f.svc.Start(context.Background(), f.user, b.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, f.launcher.launched)
}

func TestStartLaunchFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	f.launcher.err = errors.New("broker down")

	_, err := f.svc.Start(context.Background(), f.user, b.ID)
	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, f.store.status(b.ID))
}

func TestDeleteRequiresTerminal(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	_, err := f.svc.Start(context.Background(), f.user, b.ID)
	require.NoError(t, err)

	err = f.svc.Delete(context.Background(), f.user, b.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, f.store.deleted)
}

func TestDeleteRemovesRowsAndObjects(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	require.NoError(t, f.objects.Put(context.Background(), storage.FinalBriefKey(b.ID), []byte("{}"), "application/json"))
	require.NoError(t, f.objects.Put(context.Background(), "briefs/other/final.json", []byte("{}"), "application/json"))

	done := b
	done.Status = domain.StatusDone
	f.store.put(done)

	require.NoError(t, f.svc.Delete(context.Background(), f.user, b.ID))
	assert.Equal(t, []uuid.UUID{b.ID}, f.store.deleted)
	assert.Equal(t, []string{"briefs/other/final.json"}, f.objects.Keys())

	_, err := f.svc.Get(context.Background(), f.user, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteExpiresStaleFirst(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	f.now = f.now.Add(6 * time.Minute)

	require.NoError(t, f.svc.Delete(context.Background(), f.user, b.ID))
	assert.Equal(t, []uuid.UUID{b.ID}, f.store.deleted)
}

func TestArtifactsAreScopedToOwner(t *testing.T) {
	f := newFixture(t)
	b := f.create(t)
	f.store.artifacts[b.CandidateID] = []Artifact{
		{Type: domain.ArtifactRepo, URL: "https://github.com/jane/svc", Title: "svc", Status: "7 stars"},
		{Type: domain.ArtifactRepoSelected, URL: "https://github.com/jane/svc", Title: "svc", Status: "selected"},
	}

	got, err := f.svc.Artifacts(context.Background(), f.user, b.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.svc.Artifacts(context.Background(), uuid.New(), b.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
