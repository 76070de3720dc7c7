package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

// Export formats.
const (
	FormatCSV      = "csv"
	FormatPDF      = "pdf"
	FormatSessions = "sessions"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type scheduleSource interface {
	Schedule(ctx context.Context, id string) (*models.GenerationRun, *models.Schedule, error)
}

type csvRenderer interface {
	RenderSheets(sheets []export.Sheet) ([]byte, error)
	RenderRecords(records interface{}) ([]byte, error)
}

type pdfRenderer interface {
	Render(sheets []export.Sheet) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload is an opened export file.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	SizeBytes   int64
	ExpiresAt   time.Time
}

// SessionRecord is one row of the flat session export.
type SessionRecord struct {
	Section     string `csv:"section"`
	SectionName string `csv:"section_name"`
	Day         string `csv:"day"`
	Start       string `csv:"start"`
	End         string `csv:"end"`
	Period      string `csv:"period"`
	Subject     string `csv:"subject"`
	SubjectName string `csv:"subject_name"`
	Lab         bool   `csv:"lab"`
	Faculty     string `csv:"faculty"`
}

// ExportService renders finished runs and serves the stored files.
type ExportService struct {
	runs      scheduleSource
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(runs scheduleSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter(',')
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		runs:      runs,
		storage:   store,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		validator: validator.New(),
		logger:    logger,
		cfg:       cfg,
	}
}

// Export renders a finished run, stores the file and returns a signed URL.
func (s *ExportService) Export(ctx context.Context, runID string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	_, schedule, err := s.runs.Schedule(ctx, runID)
	if err != nil {
		return nil, err
	}
	payload, err := Render(s.csv, s.pdf, req.Format, schedule)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	relPath, err := s.storage.Save(exportFilename(runID, req.Format, time.Now()), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(runID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("export stored", zap.String("run_id", runID), zap.String("format", req.Format), zap.String("path", relPath))
	return &dto.ExportResponse{
		RunID:     runID,
		Format:    req.Format,
		Filename:  filepath.Base(relPath),
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		ExpiresAt: expiresAt,
	}, nil
}

// ResolveDownload validates a token and opens the stored file.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	claims, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	if _, _, err := s.runs.Schedule(ctx, claims.RunID); err != nil {
		if isNotFound(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "run expired")
		}
		return nil, err
	}
	file, err := s.storage.Open(claims.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file")
	}
	contentType := "text/csv"
	if strings.HasSuffix(claims.Path, ".pdf") {
		contentType = "application/pdf"
	}
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(claims.Path),
		ContentType: contentType,
		SizeBytes:   info.Size(),
		ExpiresAt:   claims.ExpiresAt,
	}, nil
}

// StartCleanup purges expired export files periodically until ctx is done.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Cleanup removes files older than the result TTL.
func (s *ExportService) Cleanup() []string {
	removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("files", len(removed)))
	}
	return removed
}

// Render produces the bytes of schedule in format.
func Render(csv csvRenderer, pdf pdfRenderer, format string, schedule *models.Schedule) ([]byte, error) {
	switch format {
	case FormatCSV:
		return csv.RenderSheets(TimetableSheets(schedule))
	case FormatPDF:
		return pdf.Render(TimetableSheets(schedule))
	case FormatSessions:
		return csv.RenderRecords(SessionRecords(schedule))
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// FileExtension returns the file extension of format.
func FileExtension(format string) string {
	if format == FormatPDF {
		return "pdf"
	}
	return "csv"
}

func exportFilename(runID, format string, at time.Time) string {
	kind := "timetable"
	if format == FormatSessions {
		kind = "sessions"
	}
	return fmt.Sprintf("%s_%s_%s.%s", kind, sanitizeFilename(runID), at.UTC().Format("20060102_150405"), FileExtension(format))
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}

// gridColumn is one column of the weekly grid: a teaching slot or a break.
type gridColumn struct {
	header string
	start  models.Clock
	brk    bool
}

// gridColumns derives the grid columns from the longest teaching day of the
// standard week, inserting each break where it falls.
func gridColumns() []gridColumn {
	var day []models.TimeSlot
	for _, s := range models.StandardWeek() {
		if s.Day == models.TeachingDays[0] {
			day = append(day, s)
		}
	}
	breaks := []models.Window{models.MorningBreak, models.LunchBreak}
	cols := []gridColumn{{header: "Day"}}
	for _, slot := range day {
		for len(breaks) > 0 && breaks[0].End <= slot.Start {
			w := breaks[0]
			cols = append(cols, gridColumn{header: fmt.Sprintf("%s\n%s-%s", w.Label, w.Start, w.End), brk: true})
			breaks = breaks[1:]
		}
		cols = append(cols, gridColumn{header: fmt.Sprintf("%s\n%s", slot.Start, slot.End), start: slot.Start})
	}
	return cols
}

// TimetableSheets builds one day-by-slot grid per section, ordered by section id.
func TimetableSheets(schedule *models.Schedule) []export.Sheet {
	cols := gridColumns()
	headers := make([]string, len(cols))
	shaded := make(map[int]bool)
	colOf := make(map[models.Clock]int)
	for i, c := range cols {
		headers[i] = c.header
		if c.brk {
			shaded[i] = true
		} else if i > 0 {
			colOf[c.start] = i
		}
	}
	dayRow := make(map[time.Weekday]int, len(models.TeachingDays))
	for i, d := range models.TeachingDays {
		dayRow[d] = i
	}

	type grid struct {
		section *models.Section
		cells   [][][]string
	}
	grids := make(map[string]*grid)
	for _, u := range schedule.Units() {
		g, ok := grids[u.Section.ID]
		if !ok {
			g = &grid{section: u.Section, cells: make([][][]string, len(models.TeachingDays))}
			for r := range g.cells {
				g.cells[r] = make([][]string, len(cols))
			}
			grids[u.Section.ID] = g
		}
		row, okRow := dayRow[u.Slot.Day]
		col, okCol := colOf[u.Slot.Start]
		if !u.Placed || !okRow || !okCol {
			continue
		}
		g.cells[row][col] = append(g.cells[row][col], cellText(u))
	}

	ids := make([]string, 0, len(grids))
	for id := range grids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sheets := make([]export.Sheet, 0, len(ids))
	for _, id := range ids {
		g := grids[id]
		rows := make([][]string, len(models.TeachingDays))
		for r, d := range models.TeachingDays {
			row := make([]string, len(cols))
			row[0] = strings.ToUpper(d.String())
			for c := 1; c < len(cols); c++ {
				row[c] = strings.Join(g.cells[r][c], " / ")
			}
			rows[r] = row
		}
		sheets = append(sheets, export.Sheet{
			Title:   fmt.Sprintf("Timetable for Section: %s", g.section.Name),
			Headers: headers,
			Rows:    rows,
			Shaded:  shaded,
		})
	}
	return sheets
}

// cellText renders "Subject\n(First +N)".
func cellText(u models.SessionUnit) string {
	if len(u.Faculty) == 0 {
		return u.Subject.Name
	}
	who := u.Faculty[0].Name
	if extra := len(u.Faculty) - 1; extra > 0 {
		who = fmt.Sprintf("%s +%d", who, extra)
	}
	return fmt.Sprintf("%s\n(%s)", u.Subject.Name, who)
}

// SessionRecords flattens a schedule for the sessions export.
func SessionRecords(schedule *models.Schedule) []SessionRecord {
	units := sortedUnits(schedule)
	out := make([]SessionRecord, 0, len(units))
	for _, u := range units {
		names := make([]string, len(u.Faculty))
		for i, f := range u.Faculty {
			names[i] = f.Name
		}
		out = append(out, SessionRecord{
			Section:     u.Section.ID,
			SectionName: u.Section.Name,
			Day:         strings.ToUpper(u.Slot.Day.String()),
			Start:       u.Slot.Start.String(),
			End:         u.Slot.End.String(),
			Period:      string(u.Slot.Period),
			Subject:     u.Subject.Code,
			SubjectName: u.Subject.Name,
			Lab:         u.Subject.Lab,
			Faculty:     strings.Join(names, ";"),
		})
	}
	return out
}
