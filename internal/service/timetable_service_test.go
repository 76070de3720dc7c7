package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func TestTimetableServiceGenerateStoresFinishedRun(t *testing.T) {
	svc, store := newTimetableServiceForTest(t)

	resp, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{Catalog: catalogInput(), Seed: 21})
	require.NoError(t, err)
	assert.Equal(t, string(models.RunStatusFinished), resp.Status)
	assert.Equal(t, string(models.RunSourceSync), resp.Source)
	assert.Equal(t, "steady-state", resp.Profile)
	assert.Equal(t, 100, resp.Progress)
	require.NotNil(t, resp.Result)
	assert.Equal(t, int64(21), resp.Result.Seed)
	assert.Len(t, resp.Result.Sessions, 14)
	assert.NotEmpty(t, resp.Result.StopReason)

	stored, err := store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Result.Placements, 14)

	assert.Equal(t, "S1", resp.Result.Sessions[0].Section)
	assert.Equal(t, "S2", resp.Result.Sessions[13].Section)
}

func TestTimetableServiceGenerateProfileIsCaseInsensitive(t *testing.T) {
	svc, store := newTimetableServiceForTest(t)

	resp, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{Catalog: catalogInput(), Profile: "GENERATIONAL ", Seed: 4})
	require.NoError(t, err)
	assert.Equal(t, "generational", resp.Profile)

	stored, err := store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "generational", stored.Profile)
}

func TestTimetableServiceReportAndWorkload(t *testing.T) {
	svc, _ := newTimetableServiceForTest(t)
	resp, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{Catalog: catalogInput(), Seed: 3})
	require.NoError(t, err)

	report, err := svc.Report(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Len(t, report.Checks, 11)
	assert.Equal(t, "faculty double booking", report.Checks[0].Name)
	assert.Equal(t, "hard", report.Checks[0].Kind)
	assert.Equal(t, resp.Result.Hard, report.Hard)
	assert.InDelta(t, resp.Result.Fitness, report.Fitness, 1e-9)

	workload, err := svc.Workload(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Len(t, workload.Faculty, 2)
	assert.Equal(t, "F1", workload.Faculty[0].FacultyID)
	assert.Equal(t, 14, workload.Faculty[0].MaxCredits)
	total := 0
	for _, f := range workload.Faculty {
		total += f.Units
	}
	assert.Equal(t, 14, total)
}

func TestTimetableServiceGenerateValidation(t *testing.T) {
	svc, _ := newTimetableServiceForTest(t)

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	in := catalogInput()
	in.Sections = append(in.Sections, dto.SectionInput{ID: "S1", Name: "Again"})
	_, err = svc.Generate(context.Background(), dto.GenerateTimetableRequest{Catalog: in})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate section "S1"`)

	_, err = svc.Generate(context.Background(), dto.GenerateTimetableRequest{Catalog: catalogInput(), Profile: "annealing"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestTimetableServiceConfigurationFailureIsStored(t *testing.T) {
	svc, store := newTimetableServiceForTest(t)
	in := catalogInput()
	in.Subjects = append(in.Subjects, dto.SubjectInput{Code: "BIO", Name: "Biology", Credits: 2})

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{Catalog: in})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNoEligibleFaculty))
	assert.Equal(t, http.StatusUnprocessableEntity, appErrors.FromError(err).Status)

	runs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "Biology")
}

func TestTimetableServiceScheduleRequiresFinishedRun(t *testing.T) {
	svc, store := newTimetableServiceForTest(t)
	require.NoError(t, store.Save(context.Background(), &models.GenerationRun{ID: "r1", Status: models.RunStatusQueued}))

	_, _, err := svc.Schedule(context.Background(), "r1")
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = svc.Report(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestTimetableServiceListRunsOmitsSessions(t *testing.T) {
	svc, _ := newTimetableServiceForTest(t)
	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{Catalog: catalogInput(), Seed: 5})
	require.NoError(t, err)

	runs, err := svc.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Result)
	assert.Empty(t, runs[0].Result.Sessions)
}

func TestCatalogFromInputRequiresEveryList(t *testing.T) {
	in := catalogInput()
	in.Sections = nil
	_, err := CatalogFromInput(in)
	assert.True(t, errors.Is(err, appErrors.ErrEmptyScheduleRequest))

	c, err := CatalogFromInput(catalogInput())
	require.NoError(t, err)
	assert.Len(t, c.Faculty, 2)
	assert.True(t, c.Subjects[2].Lab)
}
