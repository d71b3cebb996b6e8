package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engine/internal/adapter/memory"
	"engine/internal/domain"
	httpapi "engine/internal/http"
	"engine/internal/http/handlers"
	"engine/internal/http/middleware"
)

type testEnv struct {
	jobs    *memory.JobStore
	ledger  *memory.Ledger
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	jobs := memory.NewJobStore()
	ledger := memory.NewLedger()
	app := handlers.NewApp(jobs, ledger, zerolog.Nop())
	return &testEnv{jobs: jobs, ledger: ledger, handler: httpapi.NewRouter(app)}
}

func (e *testEnv) do(t *testing.T, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if owner != "" {
		req.Header.Set(middleware.HeaderOwnerID, owner)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestJobsCreateAccepted(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/jobs", "owner-1", map[string]any{
		"type":  "image_generation",
		"input": map[string]any{"prompt": "a lighthouse at dusk"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "pending", body["status"])
	require.NotEmpty(t, body["job_id"])

	job, err := env.jobs.GetByID(context.Background(), body["job_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, "owner-1", job.OwnerID)
	assert.Equal(t, domain.JobTypeImageGeneration, job.Type)
}

func TestJobsCreateRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/jobs", "owner-1", map[string]any{
		"type":  "resize",
		"input": map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobsRequireOwnerHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/jobs", "", map[string]any{
		"type": "image_generation",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/jobs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJobStatusHidesOtherOwners(t *testing.T) {
	env := newTestEnv(t)
	job, err := env.jobs.Create(context.Background(), domain.NewJob{
		OwnerID: "owner-1",
		Type:    domain.JobTypeImageGeneration,
		Input:   []byte(`{"prompt":"x"}`),
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/v1/jobs/"+job.ID, "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, job.ID, body["id"])
	assert.Equal(t, "pending", body["status"])

	rec = env.do(t, http.MethodGet, "/v1/jobs/"+job.ID, "owner-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobsListFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first, err := env.jobs.Create(ctx, domain.NewJob{
		OwnerID: "owner-1", Type: domain.JobTypeImageGeneration, Input: []byte(`{}`),
	})
	require.NoError(t, err)
	second, err := env.jobs.Create(ctx, domain.NewJob{
		OwnerID: "owner-1", Type: domain.JobTypeAudioGeneration, Input: []byte(`{}`),
	})
	require.NoError(t, err)
	_, err = env.jobs.Claim(ctx, first.ID)
	require.NoError(t, err)
	require.NoError(t, env.jobs.Complete(ctx, first.ID, []byte(`{"ok":true}`)))

	rec := env.do(t, http.MethodGet, "/v1/jobs?status=pending", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, second.ID, items[0].(map[string]any)["id"])

	rec = env.do(t, http.MethodGet, "/v1/jobs?status=sleeping", "owner-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobCancel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	job, err := env.jobs.Create(ctx, domain.NewJob{
		OwnerID: "owner-1", Type: domain.JobTypeImageGeneration, Input: []byte(`{}`),
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/v1/jobs/"+job.ID+"/cancel", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := env.jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)

	// Second cancel conflicts: the job is already terminal.
	rec = env.do(t, http.MethodPost, "/v1/jobs/"+job.ID+"/cancel", "owner-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/v1/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
