package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type timetableReader interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.RunResponse, error)
	GetRun(ctx context.Context, id string) (*dto.RunResponse, error)
	ListRuns(ctx context.Context) ([]dto.RunResponse, error)
	Report(ctx context.Context, id string) (*dto.ReportResponse, error)
	Workload(ctx context.Context, id string) (*dto.WorkloadResponse, error)
}

type runCreator interface {
	CreateRun(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.RunResponse, error)
	CreateCatalogRun(ctx context.Context, req dto.CatalogRunRequest) (*dto.RunResponse, error)
}

type timetableExporter interface {
	Export(ctx context.Context, runID string, req dto.ExportRequest) (*dto.ExportResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// TimetableHandler exposes generation, run and export endpoints.
type TimetableHandler struct {
	timetables timetableReader
	runs       runCreator
	exports    timetableExporter
	prefix     string
}

// NewTimetableHandler constructs the handler. prefix is the API prefix used
// for Location headers.
func NewTimetableHandler(timetables *service.TimetableService, runs *service.RunService, exports *service.ExportService, prefix string) *TimetableHandler {
	return &TimetableHandler{timetables: timetables, runs: runs, exports: exports, prefix: strings.TrimRight(prefix, "/")}
}

// Generate godoc
// @Summary Generate a timetable synchronously
// @Description Runs the search inline and returns the finished run with its sessions.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Catalog and search options"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	result, err := h.timetables.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ResponseMeta(c))
}

// CreateRun godoc
// @Summary Queue a timetable generation
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Catalog and search options"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /timetables/runs [post]
func (h *TimetableHandler) CreateRun(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
		return
	}
	run, err := h.runs.CreateRun(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run, h.runLocation(run.ID))
}

// CreateCatalogRun godoc
// @Summary Queue a generation from the configured catalog source
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.CatalogRunRequest false "Search options"
// @Success 202 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /timetables/runs/catalog [post]
func (h *TimetableHandler) CreateCatalogRun(c *gin.Context) {
	var req dto.CatalogRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
			return
		}
	}
	run, err := h.runs.CreateCatalogRun(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run, h.runLocation(run.ID))
}

// ListRuns godoc
// @Summary List generation runs, newest first
// @Tags Timetables
// @Produce json
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /timetables/runs [get]
func (h *TimetableHandler) ListRuns(c *gin.Context) {
	runs, err := h.timetables.ListRuns(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	page := parsePositive(c.Query("page"), 1)
	size := parsePositive(c.Query("pageSize"), defaultPageSize)
	if size > maxPageSize {
		size = maxPageSize
	}
	start := (page - 1) * size
	if start > len(runs) {
		start = len(runs)
	}
	end := start + size
	if end > len(runs) {
		end = len(runs)
	}
	response.JSON(c, http.StatusOK, runs[start:end], &response.Pagination{Page: page, PageSize: size, TotalCount: len(runs)})
}

// GetRun godoc
// @Summary Get a generation run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/runs/{id} [get]
func (h *TimetableHandler) GetRun(c *gin.Context) {
	run, err := h.timetables.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// Report godoc
// @Summary Constraint report of a finished run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /timetables/runs/{id}/report [get]
func (h *TimetableHandler) Report(c *gin.Context) {
	report, err := h.timetables.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Workload godoc
// @Summary Faculty workload of a finished run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /timetables/runs/{id}/workload [get]
func (h *TimetableHandler) Workload(c *gin.Context) {
	workload, err := h.timetables.Workload(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, workload, nil)
}

// Export godoc
// @Summary Render a finished run and return a signed download URL
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Run ID"
// @Param payload body dto.ExportRequest true "Export format"
// @Success 201 {object} response.Envelope
// @Router /timetables/runs/{id}/exports [post]
func (h *TimetableHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	result, err := h.exports.Export(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a rendered export
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *TimetableHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.exports.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.ContentType, result.File, nil)
}

func (h *TimetableHandler) runLocation(id string) string {
	return fmt.Sprintf("%s/timetables/runs/%s", h.prefix, id)
}

func parsePositive(raw string, fallback int) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
