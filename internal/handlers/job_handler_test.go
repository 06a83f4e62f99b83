package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aequitas/internal/common"
	"github.com/ternarybob/aequitas/internal/models"
	"github.com/ternarybob/aequitas/internal/pipeline"
	"github.com/ternarybob/aequitas/internal/queue"
	badgerstore "github.com/ternarybob/aequitas/internal/storage/badger"
)

type staticData struct{}

func (staticData) Fetch(ctx context.Context, ticker string) (*models.Fundamentals, error) {
	return &models.Fundamentals{CompanyName: "Acme Corp", CurrentPrice: 104.5}, nil
}

type staticIntelligence struct{}

func (staticIntelligence) Fetch(ctx context.Context, ticker, companyName string) (*models.Briefing, error) {
	return &models.Briefing{}, nil
}

type staticForecast struct{}

func (staticForecast) Fetch(ctx context.Context, ticker string) (*models.Forecast, error) {
	return &models.Forecast{Trend: "upward", HorizonDays: 30}, nil
}

type staticAnalyst struct{}

func (staticAnalyst) Analyze(ctx context.Context, ticker string, fundamentals *models.Fundamentals, briefing *models.Briefing) (*models.Report, error) {
	return &models.Report{Text: "report"}, nil
}

type staticAdvisor struct{}

func (staticAdvisor) Synthesize(ctx context.Context, ticker string, result *models.AnalysisResult) (*models.Thesis, error) {
	return &models.Thesis{Text: "thesis"}, nil
}

func newTestService(t *testing.T) *pipeline.Service {
	t.Helper()
	logger := common.GetLogger()

	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	queueConfig := queue.NewDefaultConfig()
	queueMgr, err := queue.NewBadgerManager(db.Store().Badger(), queueConfig, logger)
	require.NoError(t, err)

	return pipeline.NewService(
		badgerstore.NewJobStorage(db, logger),
		queueMgr,
		nil,
		pipeline.Providers{
			Data:         staticData{},
			Intelligence: staticIntelligence{},
			Forecast:     staticForecast{},
			Analyst:      staticAnalyst{},
			Advisor:      staticAdvisor{},
		},
		&common.PipelineConfig{StageTimeout: "5s", CommitAttempts: 5, CommitBackoff: "5ms", ListRecentLimit: 20},
		logger,
	)
}

func TestSubmitJobHandler(t *testing.T) {
	handler := NewJobHandler(newTestService(t), common.GetLogger())

	req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(`{"ticker": "ACME"}`))
	rec := httptest.NewRecorder()
	handler.SubmitJobHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var job models.AnalysisJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.True(t, strings.HasPrefix(job.ID, "job_"))
	assert.Equal(t, "US:ACME", job.Ticker)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.True(t, job.Dispatched[models.StageData])
}

func TestSubmitJobHandler_Validation(t *testing.T) {
	handler := NewJobHandler(newTestService(t), common.GetLogger())

	tests := []struct {
		name string
		body string
	}{
		{"missing ticker", `{}`},
		{"empty ticker", `{"ticker": ""}`},
		{"malformed json", `{"ticker": `},
		{"bad symbol", `{"ticker": "not a symbol"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/jobs", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.SubmitJobHandler(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitJobHandler_MethodNotAllowed(t *testing.T) {
	handler := NewJobHandler(newTestService(t), common.GetLogger())

	req := httptest.NewRequest("GET", "/api/jobs", nil)
	rec := httptest.NewRecorder()
	handler.SubmitJobHandler(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetJobHandler(t *testing.T) {
	service := newTestService(t)
	handler := NewJobHandler(service, common.GetLogger())

	created, err := service.Submit(context.Background(), "ACME")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/jobs/"+created.ID, nil)
	rec := httptest.NewRecorder()
	handler.GetJobHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var job models.AnalysisJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, created.ID, job.ID)
}

func TestGetJobHandler_NotFound(t *testing.T) {
	handler := NewJobHandler(newTestService(t), common.GetLogger())

	req := httptest.NewRequest("GET", "/api/jobs/job_missing", nil)
	rec := httptest.NewRecorder()
	handler.GetJobHandler(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobsHandler(t *testing.T) {
	service := newTestService(t)
	handler := NewJobHandler(service, common.GetLogger())

	for i := 0; i < 3; i++ {
		_, err := service.Submit(context.Background(), "ACME")
		require.NoError(t, err)
	}

	req := httptest.NewRequest("GET", "/api/jobs?limit=2", nil)
	rec := httptest.NewRecorder()
	handler.ListJobsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []models.AnalysisJob `json:"jobs"`
		Count int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Jobs, 2)
	// Newest first
	assert.True(t, !resp.Jobs[0].CreatedAt.Before(resp.Jobs[1].CreatedAt))
}

func TestListJobsHandler_EmptyStore(t *testing.T) {
	handler := NewJobHandler(newTestService(t), common.GetLogger())

	req := httptest.NewRequest("GET", "/api/jobs", nil)
	rec := httptest.NewRecorder()
	handler.ListJobsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"jobs":[]`)
}

func TestStatusHandler(t *testing.T) {
	service := newTestService(t)
	handler := NewStatusHandler(service, nil, "1.2.3", common.GetLogger())

	req := httptest.NewRequest("GET", "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.GetStatusHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "1.2.3", status["version"])
	assert.Contains(t, status, "jobs_total")
	assert.Contains(t, status, "queue_pending")
}
