// Package genetic searches slot assignments with a group-aware genetic
// algorithm. Every operator moves session groups whole, so multi-slot labs
// stay contiguous through initialisation, crossover and mutation.
package genetic

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/engine/objective"
	"github.com/noah-isme/sma-timetable-api/internal/engine/tabu"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// StopReason records why a search ended.
type StopReason string

const (
	StopTarget        StopReason = "target_fitness"
	StopStagnation    StopReason = "stagnation"
	StopGenerationCap StopReason = "generation_cap"
	StopIterationCap  StopReason = "iteration_cap"
	StopCancelled     StopReason = "cancelled"
)

// Progress is reported to the observer whenever the best fitness improves.
type Progress struct {
	Generation  int
	BestFitness float64
	Evaluations int
}

// Observer receives progress from the search goroutine. It must not block.
type Observer func(Progress)

// Result is the outcome of a search.
type Result struct {
	Best        *models.Schedule
	Evaluation  objective.Evaluation
	Generations int
	Evaluations int
	Repairs     int
	Reason      StopReason
	Duration    time.Duration
}

// Solver runs searches. A Solver holds the request-scoped random source and is
// not safe for concurrent Solve calls.
type Solver struct {
	Cfg      Config
	Rng      *rand.Rand
	eval     *objective.Evaluator
	logger   *zap.Logger
	observer Observer
}

// Option customises a Solver.
type Option func(*Solver)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Solver) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers a progress callback.
func WithObserver(o Observer) Option {
	return func(s *Solver) { s.observer = o }
}

// New validates cfg and constructs a Solver.
func New(cfg Config, rng *rand.Rand, eval *objective.Evaluator, opts ...Option) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is nil")
	}
	if eval == nil {
		return nil, fmt.Errorf("evaluator is nil")
	}
	s := &Solver{Cfg: cfg, Rng: rng, eval: eval, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// run is the per-Solve state.
type run struct {
	*Solver
	groups      []models.SessionGroup
	bySection   map[string][]int
	blocks      *blockIndex
	repairer    *tabu.Repairer
	evaluations int
	repairs     int
}

// Solve places every template unit and returns the best schedule found. When
// ctx is cancelled between iterations the best schedule so far is returned
// together with ctx.Err().
func (s *Solver) Solve(ctx context.Context, slots []models.TimeSlot, template []models.SessionUnit) (Result, error) {
	start := time.Now()
	if len(template) == 0 {
		return Result{}, appErrors.Clone(appErrors.ErrEmptyScheduleRequest, "no session units to schedule")
	}
	if len(slots) == 0 {
		return Result{}, fmt.Errorf("slot set is empty")
	}

	base := models.NewSchedule(template)
	groups := models.BuildGroups(base.Units())
	r := &run{
		Solver:    s,
		groups:    groups,
		bySection: groupsBySection(groups),
		blocks:    newBlockIndex(slots, groups),
	}
	if s.Cfg.Repair {
		repairer, err := tabu.New(s.Cfg.Tabu, slots, s.eval)
		if err != nil {
			return Result{}, err
		}
		r.repairer = repairer
	}

	s.logger.Info("search started",
		zap.String("replacement", string(s.Cfg.Replacement)),
		zap.Int("units", len(template)),
		zap.Int("groups", len(groups)),
		zap.Int("population", s.Cfg.PopulationSize),
		zap.Bool("repair", s.Cfg.Repair),
	)

	pop := make([]*models.Schedule, s.Cfg.PopulationSize)
	for i := range pop {
		pop[i] = r.blocks.randomIndividual(base, groups, s.Rng)
	}
	r.evaluateAll(pop)
	sortByFitness(pop)

	var (
		gens   int
		reason StopReason
		err    error
	)
	switch s.Cfg.Replacement {
	case Generational:
		pop, gens, reason, err = r.generational(ctx, pop)
	default:
		pop, gens, reason, err = r.steadyState(ctx, pop)
	}

	best := pop[0].Clone()
	ev := s.eval.Evaluate(best)
	res := Result{
		Best:        best,
		Evaluation:  ev,
		Generations: gens,
		Evaluations: r.evaluations,
		Repairs:     r.repairs,
		Reason:      reason,
		Duration:    time.Since(start),
	}
	s.logger.Info("search finished",
		zap.String("reason", string(reason)),
		zap.Int("generations", gens),
		zap.Int("evaluations", r.evaluations),
		zap.Int("repairs", r.repairs),
		zap.Float64("best_fitness", ev.Fitness),
		zap.Int("hard", ev.Hard),
		zap.Duration("duration", res.Duration),
	)
	return res, err
}

func (r *run) steadyState(ctx context.Context, pop []*models.Schedule) ([]*models.Schedule, int, StopReason, error) {
	cfg := r.Cfg
	bestFitness := r.fitness(pop[0])
	stagnant := 0
	iter := 0
	for ; ; iter++ {
		if err := ctx.Err(); err != nil {
			return pop, iter, StopCancelled, err
		}
		if bestFitness >= cfg.TargetFitness {
			return pop, iter, StopTarget, nil
		}
		if stagnant >= cfg.StagnationLimit {
			return pop, iter, StopStagnation, nil
		}
		if iter >= cfg.MaxIterations {
			return pop, iter, StopIterationCap, nil
		}

		r.replaceWorst(pop, r.offspring(pop))

		if top := r.fitness(pop[0]); top > bestFitness {
			bestFitness = top
			stagnant = 0
			r.notify(iter+1, top)
			continue
		}
		stagnant++
	}
}

func (r *run) generational(ctx context.Context, pop []*models.Schedule) ([]*models.Schedule, int, StopReason, error) {
	cfg := r.Cfg
	bestFitness := r.fitness(pop[0])
	stagnant := 0
	gen := 0
	for ; ; gen++ {
		if err := ctx.Err(); err != nil {
			return pop, gen, StopCancelled, err
		}
		if bestFitness >= cfg.TargetFitness {
			return pop, gen, StopTarget, nil
		}
		if cfg.StagnationLimit > 0 && stagnant >= cfg.StagnationLimit {
			return pop, gen, StopStagnation, nil
		}
		if gen >= cfg.MaxGenerations {
			return pop, gen, StopGenerationCap, nil
		}
		if gen >= cfg.MaxIterations {
			return pop, gen, StopIterationCap, nil
		}

		next := make([]*models.Schedule, 0, len(pop))
		for e := 0; e < cfg.Elitism; e++ {
			next = append(next, pop[e])
		}
		for len(next) < len(pop) {
			next = append(next, r.offspringUnscored(pop))
		}
		r.evaluateAll(next)
		sortByFitness(next)
		pop = next

		if top := r.fitness(pop[0]); top > bestFitness {
			bestFitness = top
			stagnant = 0
			r.notify(gen+1, top)
			continue
		}
		stagnant++
	}
}

// replaceWorst puts child in place of the least fit individual of the sorted
// pop when child is strictly fitter. Ties keep the incumbent.
func (r *run) replaceWorst(pop []*models.Schedule, child *models.Schedule) bool {
	worst := len(pop) - 1
	if r.fitness(child) <= r.fitness(pop[worst]) {
		return false
	}
	pop[worst] = child
	sortByFitness(pop)
	return true
}

// offspring produces and scores one child.
func (r *run) offspring(pop []*models.Schedule) *models.Schedule {
	child := r.offspringUnscored(pop)
	r.fitness(child)
	return child
}

// offspringUnscored runs selection, crossover, mutation and optional repair.
func (r *run) offspringUnscored(pop []*models.Schedule) *models.Schedule {
	p1 := r.tournament(pop)
	p2 := r.tournament(pop)

	var child *models.Schedule
	if r.Rng.Float64() < r.Cfg.CrossoverRate {
		child = uniformCrossover(p1, p2, r.groups, r.Rng)
	} else {
		child = p1.Clone()
	}
	r.mutate(child)

	if r.repairer != nil {
		repaired, stats := r.repairer.Repair(child, r.Rng)
		if stats.Iterations > 0 {
			r.repairs++
		}
		child = repaired
	}
	return child
}

func (r *run) mutate(child *models.Schedule) {
	switch r.Cfg.MutationScope {
	case MutateGroup:
		for i, g := range r.groups {
			if r.Rng.Float64() >= r.Cfg.MutationRate {
				continue
			}
			if r.Rng.Intn(2) == 0 {
				swapGroups(child, r.groups, r.bySection, i, r.Rng)
				continue
			}
			r.blocks.place(child, g, r.Rng)
		}
	default:
		if r.Rng.Float64() < r.Cfg.MutationRate {
			swapGroups(child, r.groups, r.bySection, r.Rng.Intn(len(r.groups)), r.Rng)
		}
		if r.Rng.Float64() < r.Cfg.MutationRate {
			r.blocks.place(child, r.groups[r.Rng.Intn(len(r.groups))], r.Rng)
		}
	}
}

// tournament draws TournamentSize individuals with replacement and keeps the fittest.
func (r *run) tournament(pop []*models.Schedule) *models.Schedule {
	best := pop[r.Rng.Intn(len(pop))]
	for i := 1; i < r.Cfg.TournamentSize; i++ {
		c := pop[r.Rng.Intn(len(pop))]
		if r.fitness(c) > r.fitness(best) {
			best = c
		}
	}
	return best
}

func (r *run) fitness(s *models.Schedule) float64 {
	if f, ok := s.Fitness(); ok {
		return f
	}
	r.evaluations++
	return r.eval.Evaluate(s).Fitness
}

// evaluateAll scores every unscored schedule in parallel chunks. Each
// schedule is touched by exactly one worker.
func (r *run) evaluateAll(pop []*models.Schedule) {
	pending := make([]*models.Schedule, 0, len(pop))
	for _, s := range pop {
		if _, ok := s.Fitness(); !ok {
			pending = append(pending, s)
		}
	}
	if len(pending) == 0 {
		return
	}
	r.evaluations += len(pending)

	workers := r.Cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	chunk := (len(pending) + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start, end := w*chunk, (w+1)*chunk
		if start >= len(pending) {
			break
		}
		if end > len(pending) {
			end = len(pending)
		}
		wg.Add(1)
		go func(batch []*models.Schedule) {
			defer wg.Done()
			for _, s := range batch {
				r.eval.Evaluate(s)
			}
		}(pending[start:end])
	}
	wg.Wait()
}

func (r *run) notify(generation int, best float64) {
	if r.observer == nil {
		return
	}
	r.observer(Progress{Generation: generation, BestFitness: best, Evaluations: r.evaluations})
}

// sortByFitness orders by cached fitness, fittest first. Every schedule must be scored.
func sortByFitness(pop []*models.Schedule) {
	sort.SliceStable(pop, func(i, j int) bool {
		fi, _ := pop[i].Fitness()
		fj, _ := pop[j].Fitness()
		return fi > fj
	})
}
