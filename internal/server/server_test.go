package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/prospector/internal/config"
	"github.com/jonathan/prospector/internal/db"
	"github.com/jonathan/prospector/internal/orchestrator"
	"github.com/jonathan/prospector/internal/scheduler"
	"github.com/jonathan/prospector/internal/types"
)

type fakeJobs struct {
	submitID  uuid.UUID
	submitErr error
	submitted *types.SubmitJobRequest
	jobs      map[uuid.UUID]*orchestrator.Job
}

func (f *fakeJobs) Submit(_ context.Context, req *types.SubmitJobRequest) (uuid.UUID, error) {
	if err := req.Validate(); err != nil {
		return uuid.Nil, err
	}
	f.submitted = req
	return f.submitID, f.submitErr
}

func (f *fakeJobs) GetJob(jobID uuid.UUID) *orchestrator.Job {
	return f.jobs[jobID]
}

func (f *fakeJobs) ListJobs() []*orchestrator.Job {
	out := make([]*orchestrator.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out
}

type fakeScheduler struct {
	runID      uuid.UUID
	triggerErr error
	status     *scheduler.Status
	triggered  []string
}

func (f *fakeScheduler) TriggerNow(_ context.Context, triggeredBy string) (uuid.UUID, error) {
	if f.triggerErr != nil {
		return uuid.Nil, f.triggerErr
	}
	f.triggered = append(f.triggered, triggeredBy)
	return f.runID, nil
}

func (f *fakeScheduler) Status(_ context.Context) (*scheduler.Status, error) {
	return f.status, nil
}

type fakeStore struct {
	config     *db.SchedulerConfig
	updated    *types.UpdateSchedulerConfigRequest
	runs       map[uuid.UUID]*db.SchedulerRun
	decisions  map[uuid.UUID][]db.Decision
	priorities []db.CompanyPriority
	filters    db.PriorityFilters
}

func (f *fakeStore) GetSchedulerConfig(_ context.Context) (*db.SchedulerConfig, error) {
	return f.config, nil
}

func (f *fakeStore) UpdateSchedulerConfig(_ context.Context, req *types.UpdateSchedulerConfigRequest) (*db.SchedulerConfig, error) {
	f.updated = req
	if req.MaxPerRun != nil {
		f.config.MaxPerRun = *req.MaxPerRun
	}
	if req.Active != nil {
		f.config.Active = *req.Active
	}
	return f.config, nil
}

func (f *fakeStore) GetSchedulerRun(_ context.Context, runID uuid.UUID) (*db.SchedulerRun, error) {
	return f.runs[runID], nil
}

func (f *fakeStore) ListSchedulerRuns(_ context.Context, _ int) ([]db.SchedulerRun, error) {
	out := make([]db.SchedulerRun, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) ListDecisions(_ context.Context, runID uuid.UUID) ([]db.Decision, error) {
	return f.decisions[runID], nil
}

func (f *fakeStore) ListCompanyPriorities(_ context.Context, filters db.PriorityFilters) ([]db.CompanyPriority, error) {
	f.filters = filters
	return f.priorities, nil
}

const testAdminPassword = "correct-horse-battery"

func newTestServer(t *testing.T, jobs JobService, sched SchedulerService, store StateStore) *Server {
	t.Helper()

	t.Setenv("JWT_SECRET", "test-secret-for-handler-tests")
	t.Setenv("BCRYPT_COST", "10")

	hasher := &config.PasswordConfig{BcryptCost: 10}
	hash, err := hasher.HashPassword(testAdminPassword)
	require.NoError(t, err)
	t.Setenv("ADMIN_PASSWORD_HASH", hash)
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	srv, err := New(Config{Port: 0}, jobs, sched, store)
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	return rec
}

func adminToken(t *testing.T, srv *Server) string {
	t.Helper()
	token, err := srv.auth.IssueToken(testAdminPassword)
	require.NoError(t, err)
	return token
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, &fakeStore{})

	rec := doJSON(t, srv, "GET", "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestSubmitJob(t *testing.T) {
	jobs := &fakeJobs{submitID: uuid.New()}
	srv := newTestServer(t, jobs, &fakeScheduler{}, &fakeStore{})

	rec := doJSON(t, srv, "POST", "/jobs", types.SubmitJobRequest{
		Companies: []string{"AAPL", "MSFT"},
	}, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, jobs.submitID.String(), resp["job_id"])
	assert.Equal(t, "pending", resp["status"])
	require.NotNil(t, jobs.submitted)
	assert.Equal(t, []string{"AAPL", "MSFT"}, jobs.submitted.Companies)
}

func TestSubmitJob_BadJSON(t *testing.T) {
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, &fakeStore{})

	req := httptest.NewRequest("POST", "/jobs", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJob_ValidationError(t *testing.T) {
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, &fakeStore{})

	// Neither companies nor filter provided.
	rec := doJSON(t, srv, "POST", "/jobs", types.SubmitJobRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	jobID := uuid.New()
	jobs := &fakeJobs{jobs: map[uuid.UUID]*orchestrator.Job{
		jobID: {ID: jobID, Status: orchestrator.StatusRunning, Total: 3, Completed: 1},
	}}
	srv := newTestServer(t, jobs, &fakeScheduler{}, &fakeStore{})

	rec := doJSON(t, srv, "GET", "/jobs/"+jobID.String(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var job orchestrator.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, orchestrator.StatusRunning, job.Status)
	assert.Equal(t, 3, job.Total)
}

func TestGetJob_NotFound(t *testing.T) {
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, &fakeStore{})

	rec := doJSON(t, srv, "GET", "/jobs/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJob_InvalidID(t *testing.T) {
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, &fakeStore{})

	rec := doJSON(t, srv, "GET", "/jobs/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobs(t *testing.T) {
	jobID := uuid.New()
	jobs := &fakeJobs{jobs: map[uuid.UUID]*orchestrator.Job{
		jobID: {ID: jobID, Status: orchestrator.StatusCompleted},
	}}
	srv := newTestServer(t, jobs, &fakeScheduler{}, &fakeStore{})

	rec := doJSON(t, srv, "GET", "/jobs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []orchestrator.Job `json:"jobs"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, jobID, resp.Jobs[0].ID)
}

func TestGetSchedulerConfig(t *testing.T) {
	cfg := db.DefaultSchedulerConfig()
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, &fakeStore{config: &cfg})

	rec := doJSON(t, srv, "GET", "/scheduler/config", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got db.SchedulerConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, cfg.CadenceMinutes, got.CadenceMinutes)
	assert.Equal(t, cfg.MaxPerRun, got.MaxPerRun)
}

func TestUpdateSchedulerConfig_RequiresAuth(t *testing.T) {
	cfg := db.DefaultSchedulerConfig()
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, &fakeStore{config: &cfg})

	active := true
	rec := doJSON(t, srv, "PUT", "/scheduler/config", types.UpdateSchedulerConfigRequest{Active: &active}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, "PUT", "/scheduler/config", types.UpdateSchedulerConfigRequest{Active: &active}, "garbage-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateSchedulerConfig(t *testing.T) {
	cfg := db.DefaultSchedulerConfig()
	store := &fakeStore{config: &cfg}
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, store)

	maxPerRun := 25
	rec := doJSON(t, srv, "PUT", "/scheduler/config",
		types.UpdateSchedulerConfigRequest{MaxPerRun: &maxPerRun}, adminToken(t, srv))
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, store.updated)
	require.NotNil(t, store.updated.MaxPerRun)
	assert.Equal(t, 25, *store.updated.MaxPerRun)
}

func TestUpdateSchedulerConfig_RejectsBadTier(t *testing.T) {
	cfg := db.DefaultSchedulerConfig()
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, &fakeStore{config: &cfg})

	tier := "gigantic"
	rec := doJSON(t, srv, "PUT", "/scheduler/config",
		types.UpdateSchedulerConfigRequest{StrictTier: &tier}, adminToken(t, srv))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerScheduler(t *testing.T) {
	sched := &fakeScheduler{runID: uuid.New()}
	srv := newTestServer(t, &fakeJobs{}, sched, &fakeStore{})

	rec := doJSON(t, srv, "POST", "/scheduler/trigger", nil, adminToken(t, srv))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, sched.runID.String(), resp["run_id"])
	assert.Equal(t, []string{db.TriggerAPI}, sched.triggered)
}

func TestTriggerScheduler_RequiresAuth(t *testing.T) {
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{runID: uuid.New()}, &fakeStore{})

	rec := doJSON(t, srv, "POST", "/scheduler/trigger", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTriggerScheduler_Conflict(t *testing.T) {
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{triggerErr: scheduler.ErrRunInFlight}, &fakeStore{})

	rec := doJSON(t, srv, "POST", "/scheduler/trigger", nil, adminToken(t, srv))
	assert.Equal(t, http.StatusConflict, rec.Code)

	srv2 := newTestServer(t, &fakeJobs{}, &fakeScheduler{triggerErr: scheduler.ErrTooSoon}, &fakeStore{})
	rec = doJSON(t, srv2, "POST", "/scheduler/trigger", nil, adminToken(t, srv2))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSchedulerStatus(t *testing.T) {
	cfg := db.DefaultSchedulerConfig()
	sched := &fakeScheduler{status: &scheduler.Status{Active: true, Running: false, Config: &cfg}}
	srv := newTestServer(t, &fakeJobs{}, sched, &fakeStore{})

	rec := doJSON(t, srv, "GET", "/scheduler/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Active)
	assert.False(t, got.Running)
}

func TestListRunDecisions(t *testing.T) {
	runID := uuid.New()
	store := &fakeStore{
		runs: map[uuid.UUID]*db.SchedulerRun{
			runID: {ID: runID, Status: db.RunStatusCompleted},
		},
		decisions: map[uuid.UUID][]db.Decision{
			runID: {
				{RunID: runID, CIK: "0000320193", Decision: db.DecisionSelected, Reason: db.ReasonFirstTime},
				{RunID: runID, CIK: "0000789019", Decision: db.DecisionSkipped, Reason: "capacity"},
			},
		},
	}
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, store)

	rec := doJSON(t, srv, "GET", "/scheduler/runs/"+runID.String()+"/decisions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Decisions []db.Decision `json:"decisions"`
		Count     int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, db.DecisionSelected, resp.Decisions[0].Decision)
}

func TestListRunDecisions_NotFound(t *testing.T) {
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, &fakeStore{})

	rec := doJSON(t, srv, "GET", "/scheduler/runs/"+uuid.NewString()+"/decisions", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPriorities_Filters(t *testing.T) {
	store := &fakeStore{priorities: []db.CompanyPriority{
		{CIK: "0001660134", CompanyName: "Okta Inc", PriorityScore: 72},
	}}
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, store)

	rec := doJSON(t, srv, "GET", "/scheduler/priorities?limit=10&min_score=50&eligible_only=true&industry=Software", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 10, store.filters.Limit)
	assert.Equal(t, 50.0, store.filters.MinScore)
	assert.True(t, store.filters.EligibleBy)
	assert.Equal(t, []string{"Software"}, store.filters.Industries)
	assert.Contains(t, rec.Body.String(), "Okta Inc")
}

func TestIssueToken(t *testing.T) {
	srv := newTestServer(t, &fakeJobs{}, &fakeScheduler{}, &fakeStore{})

	rec := doJSON(t, srv, "POST", "/auth/token", tokenRequest{Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, "POST", "/auth/token", tokenRequest{Password: testAdminPassword}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	// The issued token must be accepted by the admin-gated routes.
	sched := &fakeScheduler{runID: uuid.New()}
	srv.scheduler = sched
	rec = doJSON(t, srv, "POST", "/scheduler/trigger", nil, resp.Token)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSchedulerUnavailable(t *testing.T) {
	srv := newTestServer(t, &fakeJobs{}, nil, nil)

	rec := doJSON(t, srv, "GET", "/scheduler/config", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, srv, "GET", "/scheduler/status", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
