package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type timetableMock struct {
	captured dto.GenerateTimetableRequest
	runs     []dto.RunResponse
	err      error
}

func (m *timetableMock) Generate(_ context.Context, req dto.GenerateTimetableRequest) (*dto.RunResponse, error) {
	m.captured = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.RunResponse{ID: "run-1", Status: "FINISHED"}, nil
}

func (m *timetableMock) GetRun(_ context.Context, id string) (*dto.RunResponse, error) {
	if id != "run-1" {
		return nil, appErrors.ErrNotFound
	}
	return &dto.RunResponse{ID: id, Status: "QUEUED"}, nil
}

func (m *timetableMock) ListRuns(context.Context) ([]dto.RunResponse, error) {
	return m.runs, m.err
}

func (m *timetableMock) Report(_ context.Context, id string) (*dto.ReportResponse, error) {
	return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "run is not finished")
}

func (m *timetableMock) Workload(_ context.Context, id string) (*dto.WorkloadResponse, error) {
	return &dto.WorkloadResponse{RunID: id, Faculty: []dto.FacultyLoadResponse{{FacultyID: "F1"}}}, nil
}

type runMock struct {
	catalogReq dto.CatalogRunRequest
}

func (m *runMock) CreateRun(_ context.Context, req dto.GenerateTimetableRequest) (*dto.RunResponse, error) {
	return &dto.RunResponse{ID: "run-2", Status: "QUEUED", Profile: req.Profile}, nil
}

func (m *runMock) CreateCatalogRun(_ context.Context, req dto.CatalogRunRequest) (*dto.RunResponse, error) {
	m.catalogReq = req
	return &dto.RunResponse{ID: "run-3", Status: "QUEUED", Source: "catalog"}, nil
}

type exportMock struct {
	path string
}

func (m *exportMock) Export(_ context.Context, runID string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	return &dto.ExportResponse{RunID: runID, Format: req.Format, URL: "/api/v1/exports/tok"}, nil
}

func (m *exportMock) ResolveDownload(_ context.Context, token string) (*service.ExportDownload, error) {
	if token != "tok" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	f, err := os.Open(m.path)
	if err != nil {
		return nil, err
	}
	info, _ := f.Stat()
	return &service.ExportDownload{File: f, Filename: filepath.Base(m.path), ContentType: "text/csv", SizeBytes: info.Size()}, nil
}

func newTimetableRouter(t *testing.T, tt *timetableMock) (*gin.Engine, *runMock) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "timetable_run-1.csv")
	require.NoError(t, os.WriteFile(path, []byte("Day,08:00\n"), 0o600))

	runs := &runMock{}
	h := &TimetableHandler{timetables: tt, runs: runs, exports: &exportMock{path: path}, prefix: "/api/v1"}
	router := gin.New()
	api := router.Group("/api/v1")
	api.POST("/timetables/generate", h.Generate)
	api.POST("/timetables/runs", h.CreateRun)
	api.POST("/timetables/runs/catalog", h.CreateCatalogRun)
	api.GET("/timetables/runs", h.ListRuns)
	api.GET("/timetables/runs/:id", h.GetRun)
	api.GET("/timetables/runs/:id/report", h.Report)
	api.GET("/timetables/runs/:id/workload", h.Workload)
	api.POST("/timetables/runs/:id/exports", h.Export)
	api.GET("/exports/:token", h.Download)
	return router, runs
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTimetableHandlerGenerate(t *testing.T) {
	tt := &timetableMock{}
	router, _ := newTimetableRouter(t, tt)

	w := serve(router, http.MethodPost, "/api/v1/timetables/generate", `{"catalog":{"sections":[{"id":"S1","name":"A"}]},"profile":"generational","seed":9}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "generational", tt.captured.Profile)
	assert.Equal(t, int64(9), tt.captured.Seed)
	assert.Len(t, tt.captured.Catalog.Sections, 1)

	w = serve(router, http.MethodPost, "/api/v1/timetables/generate", `{"catalog":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tt.err = appErrors.Clone(appErrors.ErrNoEligibleFaculty, "no faculty can teach Biology")
	w = serve(router, http.MethodPost, "/api/v1/timetables/generate", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "NO_ELIGIBLE_FACULTY")
}

func TestTimetableHandlerCreateRuns(t *testing.T) {
	router, runs := newTimetableRouter(t, &timetableMock{})

	w := serve(router, http.MethodPost, "/api/v1/timetables/runs", `{"profile":"steady-state"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/api/v1/timetables/runs/run-2", w.Header().Get("Location"))

	w = serve(router, http.MethodPost, "/api/v1/timetables/runs/catalog", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/api/v1/timetables/runs/run-3", w.Header().Get("Location"))

	w = serve(router, http.MethodPost, "/api/v1/timetables/runs/catalog", `{"seed":4}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int64(4), runs.catalogReq.Seed)
}

func TestTimetableHandlerListRunsPaginates(t *testing.T) {
	tt := &timetableMock{}
	for _, id := range []string{"a", "b", "c"} {
		tt.runs = append(tt.runs, dto.RunResponse{ID: id})
	}
	router, _ := newTimetableRouter(t, tt)

	w := serve(router, http.MethodGet, "/api/v1/timetables/runs?page=2&pageSize=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data       []dto.RunResponse `json:"data"`
		Pagination struct {
			Page       int `json:"page"`
			TotalCount int `json:"total_count"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "c", body.Data[0].ID)
	assert.Equal(t, 2, body.Pagination.Page)
	assert.Equal(t, 3, body.Pagination.TotalCount)

	w = serve(router, http.MethodGet, "/api/v1/timetables/runs?page=9", "")
	require.Equal(t, http.StatusOK, w.Code)

	tt.err = errors.New("boom")
	w = serve(router, http.MethodGet, "/api/v1/timetables/runs", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTimetableHandlerRunReads(t *testing.T) {
	router, _ := newTimetableRouter(t, &timetableMock{})

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/v1/timetables/runs/run-1", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/api/v1/timetables/runs/other", "").Code)
	assert.Equal(t, http.StatusPreconditionFailed, serve(router, http.MethodGet, "/api/v1/timetables/runs/run-1/report", "").Code)

	w := serve(router, http.MethodGet, "/api/v1/timetables/runs/run-1/workload", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"facultyId":"F1"`)
}

func TestTimetableHandlerExportAndDownload(t *testing.T) {
	router, _ := newTimetableRouter(t, &timetableMock{})

	w := serve(router, http.MethodPost, "/api/v1/timetables/runs/run-1/exports", `{"format":"csv"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/exports/tok")

	w = serve(router, http.MethodGet, "/api/v1/exports/tok", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable_run-1.csv")
	assert.Equal(t, "Day,08:00\n", w.Body.String())

	w = serve(router, http.MethodGet, "/api/v1/exports/forged", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
