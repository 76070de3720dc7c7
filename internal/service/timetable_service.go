package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/engine"
	"github.com/noah-isme/sma-timetable-api/internal/engine/genetic"
	"github.com/noah-isme/sma-timetable-api/internal/engine/objective"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// TimetableService runs the engine and answers questions about finished runs.
type TimetableService struct {
	sched     config.SchedulerConfig
	store     RunStore
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	evaluator *objective.Evaluator

	mu         sync.Mutex
	generators map[string]*engine.Generator
}

// NewTimetableService validates the configured profile and constructs the service.
func NewTimetableService(sched config.SchedulerConfig, store RunStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) (*TimetableService, error) {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if sched.RunTimeout <= 0 {
		sched.RunTimeout = 2 * time.Minute
	}
	sched.Profile = canonicalProfile(sched.Profile)
	if sched.Profile == "" {
		sched.Profile = genetic.ProfileSteadyState
	}
	svc := &TimetableService{
		sched:      sched,
		store:      store,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		generators: make(map[string]*engine.Generator),
	}
	gen, err := svc.generator(sched.Profile)
	if err != nil {
		return nil, err
	}
	svc.evaluator = gen.Evaluator()
	return svc, nil
}

// Evaluator returns the objective shared by every profile.
func (s *TimetableService) Evaluator() *objective.Evaluator {
	return s.evaluator
}

// DefaultProfile is the profile used when a request names none.
func (s *TimetableService) DefaultProfile() string {
	return s.sched.Profile
}

// generator returns the cached generator of profile, building it on first use.
func (s *TimetableService) generator(profile string) (*engine.Generator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen, ok := s.generators[profile]; ok {
		return gen, nil
	}
	cfg, err := EngineConfig(s.sched, profile)
	if err != nil {
		return nil, err
	}
	gen, err := engine.NewGenerator(cfg, s.logger.With(zap.String("profile", profile)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scheduler configuration")
	}
	s.generators[profile] = gen
	return gen, nil
}

// SearchLimit is the generation or iteration cap of profile, used to scale progress.
func (s *TimetableService) SearchLimit(profile string) int {
	gen, err := s.generator(canonicalProfile(profile))
	if err != nil {
		return 0
	}
	search := gen.Config().Search
	if search.Replacement == genetic.Generational && search.MaxGenerations < search.MaxIterations {
		return search.MaxGenerations
	}
	return search.MaxIterations
}

// Generate validates req, runs the engine inline and stores the finished run.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.RunResponse, error) {
	req.Profile = canonicalProfile(req.Profile)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	catalog, err := CatalogFromInput(req.Catalog)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	run := &models.GenerationRun{
		ID:        uuid.NewString(),
		Status:    models.RunStatusProcessing,
		Source:    models.RunSourceSync,
		Profile:   req.Profile,
		Seed:      req.Seed,
		Progress:  10,
		Attempts:  1,
		Catalog:   catalog,
		CreatedAt: now,
		StartedAt: &now,
	}
	if run.Profile == "" {
		run.Profile = s.sched.Profile
	}

	result, err := s.Execute(ctx, run, nil)
	if err != nil {
		s.Fail(ctx, run, err)
		return nil, err
	}
	s.Finish(ctx, run, result)
	return s.toRunResponse(run, true), nil
}

// Execute runs the engine for run under the configured run timeout. A timeout
// keeps the best schedule found so far; cancellation of ctx itself is an error.
func (s *TimetableService) Execute(ctx context.Context, run *models.GenerationRun, observer genetic.Observer) (*models.RunResult, error) {
	gen, err := s.generator(run.Profile)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithTimeout(ctx, s.sched.RunTimeout)
	defer cancel()

	var opts []genetic.Option
	if observer != nil {
		opts = append(opts, genetic.WithObserver(observer))
	}
	outcome, err := gen.Generate(runCtx, run.Catalog, run.Seed, opts...)
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
		if outcome == nil || !timedOut {
			return nil, err
		}
		s.logger.Warn("run timed out, keeping best schedule",
			zap.String("run_id", run.ID),
			zap.Duration("timeout", s.sched.RunTimeout),
			zap.Float64("best_fitness", outcome.Evaluation.Fitness),
		)
	}
	return &models.RunResult{
		Placements:  models.PlacementsOf(outcome.Schedule),
		Seed:        outcome.Seed,
		Hard:        outcome.Evaluation.Hard,
		Soft:        outcome.Evaluation.Soft,
		Fitness:     outcome.Evaluation.Fitness,
		Generations: outcome.Generations,
		Evaluations: outcome.Evaluations,
		Repairs:     outcome.Repairs,
		StopReason:  string(outcome.Reason),
		DurationMs:  outcome.Duration.Milliseconds(),
	}, nil
}

// Finish stores result on run and marks it finished.
func (s *TimetableService) Finish(ctx context.Context, run *models.GenerationRun, result *models.RunResult) {
	now := time.Now().UTC()
	run.Status = models.RunStatusFinished
	run.Progress = 100
	run.Result = result
	run.BestFitness = result.Fitness
	run.Error = nil
	run.FinishedAt = &now
	s.save(ctx, run)
	s.metrics.RecordRun(run.Status, result.StopReason, time.Duration(result.DurationMs)*time.Millisecond, result.Generations, result.Fitness, result.Hard)
	s.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("profile", run.Profile),
		zap.Int64("seed", result.Seed),
		zap.Int("hard", result.Hard),
		zap.Float64("fitness", result.Fitness),
	)
}

// Fail marks run failed with err.
func (s *TimetableService) Fail(ctx context.Context, run *models.GenerationRun, err error) {
	now := time.Now().UTC()
	msg := err.Error()
	run.Status = models.RunStatusFailed
	run.Progress = 100
	run.Error = &msg
	run.FinishedAt = &now
	s.save(ctx, run)
	s.metrics.RecordRun(run.Status, "", 0, 0, 0, 0)
	s.logger.Warn("run failed", zap.String("run_id", run.ID), zap.Error(err))
}

func (s *TimetableService) save(ctx context.Context, run *models.GenerationRun) {
	if err := s.store.Save(ctx, run); err != nil {
		s.logger.Warn("failed to store run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// GetRun returns one run with its sessions when finished.
func (s *TimetableService) GetRun(ctx context.Context, id string) (*dto.RunResponse, error) {
	run, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toRunResponse(run, true), nil
}

// ListRuns returns every live run without sessions.
func (s *TimetableService) ListRuns(ctx context.Context) ([]dto.RunResponse, error) {
	runs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.RunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, *s.toRunResponse(&runs[i], false))
	}
	return out, nil
}

// Schedule restores the finished schedule of a run.
func (s *TimetableService) Schedule(ctx context.Context, id string) (*models.GenerationRun, *models.Schedule, error) {
	run, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if run.Status != models.RunStatusFinished || run.Result == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("run is %s", strings.ToLower(string(run.Status))))
	}
	schedule, err := run.Catalog.Restore(run.Result.Placements)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored run is inconsistent")
	}
	return run, schedule, nil
}

// Report itemises every constraint check of a finished run.
func (s *TimetableService) Report(ctx context.Context, id string) (*dto.ReportResponse, error) {
	_, schedule, err := s.Schedule(ctx, id)
	if err != nil {
		return nil, err
	}
	report := s.evaluator.Report(schedule)
	checks := make([]dto.CheckResponse, 0, len(report.Checks))
	for _, c := range report.Checks {
		checks = append(checks, dto.CheckResponse{Name: c.Name, Kind: string(c.Kind), Value: c.Value, OK: c.OK})
	}
	return &dto.ReportResponse{
		RunID:   id,
		Checks:  checks,
		Hard:    report.Evaluation.Hard,
		Soft:    report.Evaluation.Soft,
		Fitness: report.Evaluation.Fitness,
	}, nil
}

// Workload lists the credit load of every faculty bound in a finished run.
func (s *TimetableService) Workload(ctx context.Context, id string) (*dto.WorkloadResponse, error) {
	_, schedule, err := s.Schedule(ctx, id)
	if err != nil {
		return nil, err
	}
	loads := objective.Workload(schedule)
	out := make([]dto.FacultyLoadResponse, 0, len(loads))
	for _, l := range loads {
		out = append(out, dto.FacultyLoadResponse{
			FacultyID:   l.FacultyID,
			Name:        l.Name,
			Units:       l.Units,
			Credits:     l.Credits,
			MaxCredits:  l.MaxCredits,
			Utilisation: l.Utilisation,
			Overloaded:  l.Overloaded,
		})
	}
	return &dto.WorkloadResponse{RunID: id, Faculty: out}, nil
}

func (s *TimetableService) toRunResponse(run *models.GenerationRun, withSessions bool) *dto.RunResponse {
	resp := &dto.RunResponse{
		ID:          run.ID,
		Status:      string(run.Status),
		Source:      string(run.Source),
		Profile:     run.Profile,
		Progress:    run.Progress,
		Generation:  run.Generation,
		BestFitness: run.BestFitness,
		Attempts:    run.Attempts,
		Error:       run.Error,
		CreatedAt:   run.CreatedAt,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
	if run.Result == nil {
		return resp
	}
	r := run.Result
	resp.Result = &dto.RunResultResponse{
		Seed:        r.Seed,
		Hard:        r.Hard,
		Soft:        r.Soft,
		Fitness:     r.Fitness,
		Generations: r.Generations,
		Evaluations: r.Evaluations,
		Repairs:     r.Repairs,
		StopReason:  r.StopReason,
		DurationMs:  r.DurationMs,
	}
	if !withSessions {
		return resp
	}
	schedule, err := run.Catalog.Restore(r.Placements)
	if err != nil {
		s.logger.Warn("stored run is inconsistent", zap.String("run_id", run.ID), zap.Error(err))
		return resp
	}
	resp.Result.Sessions = sessionResponses(schedule)
	return resp
}

func sessionResponses(schedule *models.Schedule) []dto.SessionResponse {
	units := sortedUnits(schedule)
	out := make([]dto.SessionResponse, 0, len(units))
	for _, u := range units {
		out = append(out, dto.SessionResponse{
			Section:     u.Section.ID,
			SectionName: u.Section.Name,
			Subject:     u.Subject.Code,
			SubjectName: u.Subject.Name,
			Lab:         u.Subject.Lab,
			Faculty:     u.FacultyIDs(),
			Day:         strings.ToUpper(u.Slot.Day.String()),
			Start:       u.Slot.Start.String(),
			End:         u.Slot.End.String(),
			Period:      string(u.Slot.Period),
		})
	}
	return out
}

// sortedUnits orders units by section, day and start time.
func sortedUnits(schedule *models.Schedule) []models.SessionUnit {
	units := make([]models.SessionUnit, schedule.Len())
	copy(units, schedule.Units())
	sort.SliceStable(units, func(i, j int) bool {
		a, b := units[i], units[j]
		if a.Section.ID != b.Section.ID {
			return a.Section.ID < b.Section.ID
		}
		if a.Slot.Day != b.Slot.Day {
			return a.Slot.Day < b.Slot.Day
		}
		return a.Slot.Start < b.Slot.Start
	})
	return units
}

// CatalogFromInput maps a request catalog to models, rejecting duplicate keys.
func CatalogFromInput(in dto.CatalogInput) (models.Catalog, error) {
	var c models.Catalog
	seen := make(map[string]struct{})
	dup := func(kind, key string) error {
		k := kind + ":" + key
		if _, ok := seen[k]; ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate %s %q", kind, key))
		}
		seen[k] = struct{}{}
		return nil
	}
	for _, f := range in.Faculty {
		if err := dup("faculty", f.ID); err != nil {
			return models.Catalog{}, err
		}
		subjects := make([]string, 0, len(f.Subjects))
		for _, code := range f.Subjects {
			subjects = append(subjects, strings.TrimSpace(code))
		}
		c.Faculty = append(c.Faculty, models.Faculty{
			ID:              f.ID,
			Name:            f.Name,
			TotalCredits:    f.TotalCredits,
			ResearchCredits: f.ResearchCredits,
			Subjects:        subjects,
		})
	}
	for _, sub := range in.Subjects {
		if err := dup("subject", sub.Code); err != nil {
			return models.Catalog{}, err
		}
		c.Subjects = append(c.Subjects, models.Subject{Code: sub.Code, Name: sub.Name, Lab: sub.Lab, Credits: sub.Credits})
	}
	for _, sec := range in.Sections {
		if err := dup("section", sec.ID); err != nil {
			return models.Catalog{}, err
		}
		c.Sections = append(c.Sections, models.Section{ID: sec.ID, Name: sec.Name, Batches: sec.Batches})
	}
	if c.Empty() {
		return models.Catalog{}, appErrors.Clone(appErrors.ErrEmptyScheduleRequest, "catalog needs faculty, subjects and sections")
	}
	return c, nil
}

func canonicalProfile(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
