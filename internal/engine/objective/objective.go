// Package objective scores candidate schedules by hard-constraint violations
// and soft-preference penalties.
//
// fitness = 1 / (1 + hard*HardWeight + soft)
//
// HardWeight must dominate any plausible soft penalty so that a schedule with
// fewer hard violations always ranks higher. All checks are read-only, so one
// Evaluator may score distinct schedules from several goroutines.
package objective

import (
	"fmt"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// WorkloadMode selects how faculty overload is counted.
type WorkloadMode string

const (
	// WorkloadPerFaculty counts one violation per overloaded faculty.
	WorkloadPerFaculty WorkloadMode = "per-faculty"
	// WorkloadMagnitude counts each started credit of excess.
	WorkloadMagnitude WorkloadMode = "magnitude"
)

// Weights scale each soft check before summation.
type Weights struct {
	Hard                float64
	Clumping            float64
	MorningBalance      float64
	Fatigue             float64
	SectionGaps         float64
	SubjectDistribution float64
	WorkloadBalance     float64
	LabDay              float64
}

// Config parameterises the objective.
type Config struct {
	Weights Weights
	// ClumpingGapMinutes is the idle gap between two classes of one faculty
	// that counts as clumping.
	ClumpingGapMinutes int
	// FatigueRun is the longest run of back-to-back slots tolerated per section.
	FatigueRun int
	// GapToleranceMinutes is unexplained idle time per section day that is ignored.
	GapToleranceMinutes int
	// MorningStart marks the early slot whose distribution is balanced.
	MorningStart models.Clock
	// Breaks are discounted from section idle time when a day spans them.
	Breaks       []models.Window
	WorkloadMode WorkloadMode
}

// DefaultConfig returns the canonical weight set.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Hard:                100,
			Clumping:            1,
			MorningBalance:      1,
			Fatigue:             1,
			SectionGaps:         1,
			SubjectDistribution: 1,
			WorkloadBalance:     0.05,
			LabDay:              1,
		},
		ClumpingGapMinutes:  160,
		FatigueRun:          3,
		GapToleranceMinutes: 10,
		MorningStart:        models.NewClock(8, 0),
		Breaks:              []models.Window{models.MorningBreak, models.LunchBreak},
		WorkloadMode:        WorkloadPerFaculty,
	}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.Weights.Hard <= 0 {
		return fmt.Errorf("hard weight must be > 0")
	}
	w := c.Weights
	for name, v := range map[string]float64{
		"clumping":             w.Clumping,
		"morning balance":      w.MorningBalance,
		"fatigue":              w.Fatigue,
		"section gaps":         w.SectionGaps,
		"subject distribution": w.SubjectDistribution,
		"workload balance":     w.WorkloadBalance,
		"lab day":              w.LabDay,
	} {
		if v < 0 {
			return fmt.Errorf("%s weight must be >= 0", name)
		}
	}
	if c.ClumpingGapMinutes <= 0 {
		return fmt.Errorf("ClumpingGapMinutes must be > 0")
	}
	if c.FatigueRun < 1 {
		return fmt.Errorf("FatigueRun must be >= 1")
	}
	if c.GapToleranceMinutes < 0 {
		return fmt.Errorf("GapToleranceMinutes must be >= 0")
	}
	switch c.WorkloadMode {
	case WorkloadPerFaculty, WorkloadMagnitude:
	default:
		return fmt.Errorf("unknown workload mode %q", c.WorkloadMode)
	}
	return nil
}

// Breakdown itemises every check.
type Breakdown struct {
	FacultyDoubleBooking int `json:"faculty_double_booking"`
	SectionDoubleBooking int `json:"section_double_booking"`
	FacultyOverload      int `json:"faculty_overload"`
	LabSplit             int `json:"lab_split"`

	Clumping            float64 `json:"clumping"`
	MorningVariance     float64 `json:"morning_variance"`
	Fatigue             float64 `json:"fatigue"`
	SectionGaps         float64 `json:"section_gaps"`
	SubjectDistribution float64 `json:"subject_distribution"`
	WorkloadVariance    float64 `json:"workload_variance"`
	LabDayOverlap       float64 `json:"lab_day_overlap"`
}

// Evaluation is the full score of one schedule.
type Evaluation struct {
	Hard      int       `json:"hard"`
	Soft      float64   `json:"soft"`
	Fitness   float64   `json:"fitness"`
	Breakdown Breakdown `json:"breakdown"`
}

// Feasible reports whether no hard constraint is violated.
func (e Evaluation) Feasible() bool {
	return e.Hard == 0
}

// Evaluator scores schedules.
type Evaluator struct {
	cfg Config
}

// New constructs an Evaluator.
func New(cfg Config) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{cfg: cfg}, nil
}

// Config returns the active parameters.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Evaluate runs every check and caches the fitness on the schedule.
func (e *Evaluator) Evaluate(s *models.Schedule) Evaluation {
	units := s.Units()
	w := e.cfg.Weights

	b := Breakdown{
		FacultyDoubleBooking: facultyDoubleBooking(units),
		SectionDoubleBooking: sectionDoubleBooking(units),
		FacultyOverload:      facultyOverload(units, e.cfg.WorkloadMode),
		LabSplit:             labSplits(units),

		Clumping:            float64(facultyClumping(units, e.cfg.ClumpingGapMinutes)),
		MorningVariance:     morningVariance(units, e.cfg.MorningStart),
		Fatigue:             float64(sectionFatigue(units, e.cfg.FatigueRun)),
		SectionGaps:         float64(sectionGaps(units, e.cfg.Breaks, e.cfg.GapToleranceMinutes)),
		SubjectDistribution: float64(subjectDistribution(units)),
		WorkloadVariance:    workloadVariance(units),
		LabDayOverlap:       float64(labDayOverlap(units)),
	}

	hard := b.FacultyDoubleBooking + b.SectionDoubleBooking + b.FacultyOverload + b.LabSplit
	soft := b.Clumping*w.Clumping +
		b.MorningVariance*w.MorningBalance +
		b.Fatigue*w.Fatigue +
		b.SectionGaps*w.SectionGaps +
		b.SubjectDistribution*w.SubjectDistribution +
		b.WorkloadVariance*w.WorkloadBalance +
		b.LabDayOverlap*w.LabDay

	fitness := Combine(hard, soft, w.Hard)
	s.SetFitness(fitness)
	return Evaluation{Hard: hard, Soft: soft, Fitness: fitness, Breakdown: b}
}

// Fitness returns the cached fitness, evaluating only when the cache is stale.
func (e *Evaluator) Fitness(s *models.Schedule) float64 {
	if f, ok := s.Fitness(); ok {
		return f
	}
	return e.Evaluate(s).Fitness
}

// HardViolations counts hard violations only. It does not touch the fitness cache.
func (e *Evaluator) HardViolations(s *models.Schedule) int {
	units := s.Units()
	return facultyDoubleBooking(units) +
		sectionDoubleBooking(units) +
		facultyOverload(units, e.cfg.WorkloadMode) +
		labSplits(units)
}

// Combine folds violation counts into a fitness in (0, 1].
func Combine(hard int, soft, hardWeight float64) float64 {
	return 1.0 / (1.0 + float64(hard)*hardWeight + soft)
}
