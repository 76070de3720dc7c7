// Package engine wires the session builder, the objective and the genetic
// search into a single timetable generator.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/engine/builder"
	"github.com/noah-isme/sma-timetable-api/internal/engine/genetic"
	"github.com/noah-isme/sma-timetable-api/internal/engine/objective"
	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Config bundles the component configurations.
type Config struct {
	Builder   builder.Config
	Objective objective.Config
	Search    genetic.Config
}

// DefaultConfig returns the canonical configuration.
func DefaultConfig() Config {
	return Config{
		Builder:   builder.DefaultConfig(),
		Objective: objective.DefaultConfig(),
		Search:    genetic.DefaultConfig(),
	}
}

// Validate checks every component.
func (c Config) Validate() error {
	if err := c.Builder.Validate(); err != nil {
		return fmt.Errorf("builder: %w", err)
	}
	if err := c.Objective.Validate(); err != nil {
		return fmt.Errorf("objective: %w", err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return nil
}

// Outcome is a finished generation.
type Outcome struct {
	Schedule    *models.Schedule
	Evaluation  objective.Evaluation
	Seed        int64
	Generations int
	Evaluations int
	Repairs     int
	Reason      genetic.StopReason
	Duration    time.Duration
}

// Generator runs the full pipeline. It is safe for concurrent use; every
// Generate call owns its random source and population.
type Generator struct {
	cfg       Config
	builder   *builder.Builder
	evaluator *objective.Evaluator
	logger    *zap.Logger
}

// NewGenerator validates cfg and constructs a Generator.
func NewGenerator(cfg Config, logger *zap.Logger) (*Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := builder.New(cfg.Builder, logger)
	if err != nil {
		return nil, err
	}
	eval, err := objective.New(cfg.Objective)
	if err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, builder: b, evaluator: eval, logger: logger}, nil
}

// Config returns the active configuration.
func (g *Generator) Config() Config {
	return g.cfg
}

// Evaluator exposes the objective used by the generator.
func (g *Generator) Evaluator() *objective.Evaluator {
	return g.evaluator
}

// Generate builds session units from the catalog and searches the standard
// week. A zero seed draws one from the clock; the seed used is returned so a
// run can be replayed. Configuration errors from the builder are returned
// before any search starts.
func (g *Generator) Generate(ctx context.Context, catalog models.Catalog, seed int64, opts ...genetic.Option) (*Outcome, error) {
	units, err := g.builder.Build(catalog.Faculty, catalog.Subjects, catalog.Sections)
	if err != nil {
		return nil, err
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	opts = append([]genetic.Option{genetic.WithLogger(g.logger)}, opts...)
	solver, err := genetic.New(g.cfg.Search, rand.New(rand.NewSource(seed)), g.evaluator, opts...)
	if err != nil {
		return nil, err
	}

	res, err := solver.Solve(ctx, models.StandardWeek(), units)
	if res.Best == nil {
		return nil, err
	}
	out := &Outcome{
		Schedule:    res.Best,
		Evaluation:  res.Evaluation,
		Seed:        seed,
		Generations: res.Generations,
		Evaluations: res.Evaluations,
		Repairs:     res.Repairs,
		Reason:      res.Reason,
		Duration:    res.Duration,
	}
	return out, err
}
