package genetic

import (
	"fmt"
	"strings"

	"github.com/noah-isme/sma-timetable-api/internal/engine/tabu"
)

// Replacement selects how offspring enter the population.
type Replacement string

const (
	// SteadyState produces one offspring per iteration and replaces the worst
	// individual when the offspring is strictly fitter.
	SteadyState Replacement = "steady-state"
	// Generational rebuilds the population every generation, keeping Elitism
	// individuals unchanged.
	Generational Replacement = "generational"
)

// MutationScope selects whether the mutation rate applies once per offspring
// or once per session group.
type MutationScope string

const (
	MutateIndividual MutationScope = "individual"
	MutateGroup      MutationScope = "group"
)

// Profile names.
const (
	ProfileSteadyState  = "steady-state"
	ProfileGenerational = "generational"
)

// Config parameterises a search.
type Config struct {
	PopulationSize int
	TournamentSize int
	CrossoverRate  float64
	MutationRate   float64
	MutationScope  MutationScope
	Replacement    Replacement
	// Elitism is only used by the generational replacement.
	Elitism int
	// MaxGenerations caps generational runs.
	MaxGenerations int
	// StagnationLimit stops a run after this many iterations without a new
	// best. Zero disables it for generational runs.
	StagnationLimit int
	// MaxIterations is the absolute safety ceiling for either policy.
	MaxIterations int
	TargetFitness float64
	// Repair runs the tabu repair on every offspring before scoring.
	Repair bool
	Tabu   tabu.Config
	// Workers bounds parallel fitness evaluation. Zero uses every CPU.
	Workers int
}

// DefaultConfig returns the canonical steady-state profile.
func DefaultConfig() Config {
	return Config{
		PopulationSize:  50,
		TournamentSize:  5,
		CrossoverRate:   1.0,
		MutationRate:    0.5,
		MutationScope:   MutateIndividual,
		Replacement:     SteadyState,
		Elitism:         2,
		MaxGenerations:  500,
		StagnationLimit: 50,
		MaxIterations:   5000,
		TargetFitness:   1.0,
		Repair:          true,
		Tabu:            tabu.DefaultConfig(),
	}
}

// GenerationalConfig returns the generational profile: elitism, a generation
// cap and no repair.
func GenerationalConfig() Config {
	cfg := DefaultConfig()
	cfg.Replacement = Generational
	cfg.CrossoverRate = 0.9
	cfg.MutationRate = 0.2
	cfg.MaxGenerations = 200
	cfg.StagnationLimit = 0
	cfg.TargetFitness = 0.999
	cfg.Repair = false
	return cfg
}

// ProfileConfig resolves a named profile. An empty name is the default profile.
func ProfileConfig(name string) (Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ProfileSteadyState:
		return DefaultConfig(), nil
	case ProfileGenerational:
		return GenerationalConfig(), nil
	default:
		return Config{}, fmt.Errorf("unknown search profile %q", name)
	}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.PopulationSize < 2 {
		return fmt.Errorf("population size must be >= 2 (got %d)", c.PopulationSize)
	}
	if c.TournamentSize < 1 {
		return fmt.Errorf("tournament size must be >= 1 (got %d)", c.TournamentSize)
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		return fmt.Errorf("crossover rate must be in [0,1] (got %f)", c.CrossoverRate)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("mutation rate must be in [0,1] (got %f)", c.MutationRate)
	}
	switch c.MutationScope {
	case MutateIndividual, MutateGroup:
	default:
		return fmt.Errorf("unknown mutation scope %q", c.MutationScope)
	}
	switch c.Replacement {
	case SteadyState:
		if c.StagnationLimit < 1 {
			return fmt.Errorf("stagnation limit must be >= 1 for steady-state (got %d)", c.StagnationLimit)
		}
	case Generational:
		if c.Elitism < 0 || c.Elitism >= c.PopulationSize {
			return fmt.Errorf("elitism must be in [0, population) (got %d)", c.Elitism)
		}
		if c.MaxGenerations < 1 {
			return fmt.Errorf("max generations must be >= 1 (got %d)", c.MaxGenerations)
		}
		if c.StagnationLimit < 0 {
			return fmt.Errorf("stagnation limit must be >= 0 (got %d)", c.StagnationLimit)
		}
	default:
		return fmt.Errorf("unknown replacement %q", c.Replacement)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be >= 1 (got %d)", c.MaxIterations)
	}
	if c.TargetFitness <= 0 || c.TargetFitness > 1 {
		return fmt.Errorf("target fitness must be in (0,1] (got %f)", c.TargetFitness)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0 (got %d)", c.Workers)
	}
	if c.Repair {
		if err := c.Tabu.Validate(); err != nil {
			return fmt.Errorf("tabu: %w", err)
		}
	}
	return nil
}
