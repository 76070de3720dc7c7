package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

type scheduleStub struct {
	schedule *models.Schedule
	err      error
}

func (s scheduleStub) Schedule(_ context.Context, id string) (*models.GenerationRun, *models.Schedule, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return &models.GenerationRun{ID: id, Status: models.RunStatusFinished}, s.schedule, nil
}

// smallSchedule places a theory hour on Monday morning and a shared lab hour
// on Tuesday afternoon for section S1.
func smallSchedule() *models.Schedule {
	s1 := &models.Section{ID: "S1", Name: "CSE-A"}
	maths := &models.Subject{Code: "MATH", Name: "Maths", Credits: 3}
	lab := &models.Subject{Code: "UNIX_L", Name: "Unix Lab", Lab: true, Credits: 1}
	alice := &models.Faculty{ID: "F1", Name: "Alice"}
	bob := &models.Faculty{ID: "F2", Name: "Bob"}

	monday := models.TimeSlot{Day: time.Monday, Start: models.NewClock(8, 0), End: models.NewClock(8, 55), Period: models.PeriodMorning}
	tuesday := models.TimeSlot{Day: time.Tuesday, Start: models.NewClock(14, 0), End: models.NewClock(14, 55), Period: models.PeriodAfternoon}
	return models.NewSchedule([]models.SessionUnit{
		{Section: s1, Subject: lab, Faculty: []*models.Faculty{alice, bob}, Slot: tuesday, Placed: true},
		{Section: s1, Subject: maths, Faculty: []*models.Faculty{alice}, Slot: monday, Placed: true},
	})
}

func newExportServiceForTest(t *testing.T, runs scheduleSource) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("export-secret", time.Hour)
	svc := NewExportService(runs, store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop(), nil, nil)
	return svc, store
}

func TestTimetableSheetsLayout(t *testing.T) {
	sheets := TimetableSheets(smallSchedule())
	require.Len(t, sheets, 1)
	sheet := sheets[0]

	assert.Equal(t, "Timetable for Section: CSE-A", sheet.Title)
	require.Len(t, sheet.Headers, 12)
	assert.Equal(t, "Day", sheet.Headers[0])
	assert.Equal(t, "08:00\n08:55", sheet.Headers[1])
	assert.Equal(t, "BREAK\n09:50-10:20", sheet.Headers[3])
	assert.Equal(t, "LUNCH\n13:05-14:00", sheet.Headers[7])
	assert.True(t, sheet.Shaded[3])
	assert.True(t, sheet.Shaded[7])
	assert.False(t, sheet.Shaded[1])

	require.Len(t, sheet.Rows, len(models.TeachingDays))
	assert.Equal(t, "MONDAY", sheet.Rows[0][0])
	assert.Equal(t, "SATURDAY", sheet.Rows[5][0])
	assert.Equal(t, "Maths\n(Alice)", sheet.Rows[0][1])
	assert.Equal(t, "Unix Lab\n(Alice +1)", sheet.Rows[1][8])
	assert.Empty(t, sheet.Rows[0][2])
}

func TestSessionRecordsAreSorted(t *testing.T) {
	records := SessionRecords(smallSchedule())
	require.Len(t, records, 2)
	assert.Equal(t, "MATH", records[0].Subject)
	assert.Equal(t, "MONDAY", records[0].Day)
	assert.Equal(t, "UNIX_L", records[1].Subject)
	assert.True(t, records[1].Lab)
	assert.Equal(t, "Alice;Bob", records[1].Faculty)
}

func TestExportServiceExportAndDownload(t *testing.T) {
	svc, _ := newExportServiceForTest(t, scheduleStub{schedule: smallSchedule()})
	ctx := context.Background()

	for _, format := range []string{FormatCSV, FormatPDF, FormatSessions} {
		resp, err := svc.Export(ctx, "run-1", dto.ExportRequest{Format: format})
		require.NoError(t, err, format)
		assert.Equal(t, "run-1", resp.RunID)
		assert.True(t, strings.HasPrefix(resp.URL, "/api/v1/exports/"), resp.URL)
		assert.True(t, strings.HasSuffix(resp.Filename, "."+FileExtension(format)), resp.Filename)

		token := strings.TrimPrefix(resp.URL, "/api/v1/exports/")
		download, err := svc.ResolveDownload(ctx, token)
		require.NoError(t, err, format)
		body, err := io.ReadAll(download.File)
		require.NoError(t, err)
		require.NoError(t, download.File.Close())
		assert.NotEmpty(t, body)

		switch format {
		case FormatPDF:
			assert.Equal(t, "application/pdf", download.ContentType)
			assert.True(t, strings.HasPrefix(string(body), "%PDF"))
		case FormatSessions:
			assert.True(t, strings.HasPrefix(resp.Filename, "sessions_"))
			assert.Contains(t, string(body), "section,section_name,day")
		default:
			assert.Equal(t, "text/csv", download.ContentType)
			assert.Contains(t, string(body), "Timetable for Section: CSE-A")
		}
	}
}

func TestExportServiceRejectsBadInput(t *testing.T) {
	svc, _ := newExportServiceForTest(t, scheduleStub{schedule: smallSchedule()})
	ctx := context.Background()

	_, err := svc.Export(ctx, "run-1", dto.ExportRequest{Format: "xlsx"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.ResolveDownload(ctx, "not-a-token")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	failing, _ := newExportServiceForTest(t, scheduleStub{err: appErrors.Clone(appErrors.ErrPreconditionFailed, "run is not finished")})
	_, err = failing.Export(ctx, "run-1", dto.ExportRequest{Format: FormatCSV})
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestExportServiceDownloadAfterRunExpired(t *testing.T) {
	runs := &scheduleSwitch{schedule: smallSchedule()}
	svc, _ := newExportServiceForTest(t, runs)
	ctx := context.Background()

	resp, err := svc.Export(ctx, "run-1", dto.ExportRequest{Format: FormatCSV})
	require.NoError(t, err)

	runs.err = appErrors.ErrNotFound
	_, err = svc.ResolveDownload(ctx, strings.TrimPrefix(resp.URL, "/api/v1/exports/"))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestExportServiceCleanup(t *testing.T) {
	svc, store := newExportServiceForTest(t, scheduleStub{schedule: smallSchedule()})
	svc.cfg.ResultTTL = time.Nanosecond

	_, err := store.Save("timetable_old.csv", []byte("x"))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	removed := svc.Cleanup()
	assert.Len(t, removed, 1)
}

// scheduleSwitch lets a test expire the run between calls.
type scheduleSwitch struct {
	schedule *models.Schedule
	err      error
}

func (s *scheduleSwitch) Schedule(ctx context.Context, id string) (*models.GenerationRun, *models.Schedule, error) {
	return scheduleStub{schedule: s.schedule, err: s.err}.Schedule(ctx, id)
}
