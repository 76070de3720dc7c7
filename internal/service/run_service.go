package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/engine/genetic"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

const runJobType = "timetable.generate"

// CatalogLoader reads the server-side catalog.
type CatalogLoader interface {
	Load(ctx context.Context) (models.Catalog, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
	Depth() int
}

// RunService creates asynchronous generation runs.
type RunService struct {
	timetables *TimetableService
	store      RunStore
	queue      jobDispatcher
	catalog    CatalogLoader
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewRunService constructs the run service. catalog may be nil when no
// server-side source is configured.
func NewRunService(timetables *TimetableService, store RunStore, queue jobDispatcher, catalog CatalogLoader, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *RunService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunService{
		timetables: timetables,
		store:      store,
		queue:      queue,
		catalog:    catalog,
		validator:  validate,
		metrics:    metrics,
		logger:     logger,
	}
}

// CreateRun queues a generation for an inline catalog.
func (s *RunService) CreateRun(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.RunResponse, error) {
	req.Profile = canonicalProfile(req.Profile)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	catalog, err := CatalogFromInput(req.Catalog)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, catalog, models.RunSourceRequest, req.Profile, req.Seed)
}

// CreateCatalogRun queues a generation for the configured catalog source.
func (s *RunService) CreateCatalogRun(ctx context.Context, req dto.CatalogRunRequest) (*dto.RunResponse, error) {
	req.Profile = canonicalProfile(req.Profile)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if s.catalog == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no catalog source configured")
	}
	catalog, err := s.catalog.Load(ctx)
	if err != nil {
		return nil, err
	}
	if catalog.Empty() {
		return nil, appErrors.Clone(appErrors.ErrEmptyScheduleRequest, "catalog source returned no faculty, subjects or sections")
	}
	return s.submit(ctx, catalog, models.RunSourceCatalog, req.Profile, req.Seed)
}

func (s *RunService) submit(ctx context.Context, catalog models.Catalog, source models.RunSource, profile string, seed int64) (*dto.RunResponse, error) {
	profile = canonicalProfile(profile)
	if profile == "" {
		profile = s.timetables.DefaultProfile()
	}
	if _, err := s.timetables.generator(profile); err != nil {
		return nil, err
	}
	run := &models.GenerationRun{
		ID:        uuid.NewString(),
		Status:    models.RunStatusQueued,
		Source:    source,
		Profile:   profile,
		Seed:      seed,
		Catalog:   catalog,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Save(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create run")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: run.ID, Type: runJobType}); err != nil {
		s.timetables.Fail(ctx, run, errors.New("failed to enqueue run"))
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "run queue unavailable")
	}
	s.metrics.SetQueueDepth(s.queue.Depth())
	s.logger.Info("run queued", zap.String("run_id", run.ID), zap.String("source", string(source)), zap.String("profile", profile))
	return s.timetables.toRunResponse(run, false), nil
}

// RunWorker bridges queue jobs to the engine.
type RunWorker struct {
	timetables *TimetableService
	store      RunStore
	metrics    *MetricsService
	logger     *zap.Logger
	interval   time.Duration
	depth      func() int
}

// NewRunWorker constructs a worker.
func NewRunWorker(timetables *TimetableService, store RunStore, metrics *MetricsService, logger *zap.Logger) *RunWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunWorker{
		timetables: timetables,
		store:      store,
		metrics:    metrics,
		logger:     logger,
		interval:   250 * time.Millisecond,
	}
}

// WatchDepth lets the worker publish the queue depth after each job.
func (w *RunWorker) WatchDepth(depth func() int) {
	w.depth = depth
}

// Handle processes a queue job. Configuration failures are permanent; any
// other error leaves the run queued for the next attempt.
func (w *RunWorker) Handle(ctx context.Context, job jobs.Job) error {
	defer w.publishDepth()
	run, err := w.store.Get(ctx, job.ID)
	if err != nil {
		if isNotFound(err) {
			return jobs.Permanent(err)
		}
		return err
	}
	if run.Terminal() {
		return nil
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusProcessing
	run.Progress = 10
	run.Attempts = job.Attempt + 1
	run.StartedAt = &now
	run.Error = nil
	if err := w.store.Save(ctx, run); err != nil {
		return err
	}

	result, err := w.timetables.Execute(ctx, run, w.observer(ctx, run))
	if err != nil {
		if appErrors.IsConfiguration(err) || errors.Is(err, appErrors.ErrValidation) {
			w.timetables.Fail(ctx, run, err)
			return jobs.Permanent(err)
		}
		msg := err.Error()
		run.Status = models.RunStatusQueued
		run.Progress = 0
		run.Error = &msg
		if saveErr := w.store.Save(ctx, run); saveErr != nil {
			w.logger.Warn("failed to mark run queued", zap.String("run_id", run.ID), zap.Error(saveErr))
		}
		return err
	}
	w.timetables.Finish(ctx, run, result)
	return nil
}

// Exhausted marks a run failed once the queue gives up on it.
func (w *RunWorker) Exhausted(job jobs.Job, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, getErr := w.store.Get(ctx, job.ID)
	if getErr != nil {
		w.logger.Warn("exhausted job has no run", zap.String("run_id", job.ID), zap.Error(getErr))
		return
	}
	if run.Terminal() {
		return
	}
	if err == nil {
		err = errors.New("run abandoned")
	}
	w.timetables.Fail(ctx, run, err)
	w.publishDepth()
}

// observer persists search progress at most once per interval.
func (w *RunWorker) observer(ctx context.Context, run *models.GenerationRun) genetic.Observer {
	limit := w.timetables.SearchLimit(run.Profile)
	var last time.Time
	return func(p genetic.Progress) {
		run.Generation = p.Generation
		run.BestFitness = p.BestFitness
		run.Progress = progressPercent(p.Generation, limit)
		if time.Since(last) < w.interval {
			return
		}
		last = time.Now()
		if err := w.store.Save(ctx, run); err != nil {
			w.logger.Debug("failed to store progress", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
}

func (w *RunWorker) publishDepth() {
	if w.depth != nil {
		w.metrics.SetQueueDepth(w.depth())
	}
}

// progressPercent maps a generation onto 10..95. Finished runs report 100.
func progressPercent(generation, limit int) int {
	if limit <= 0 {
		return 10
	}
	p := 10 + generation*85/limit
	if p > 95 {
		p = 95
	}
	return p
}
