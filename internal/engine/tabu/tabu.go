// Package tabu repairs infeasible schedules with a short randomised tabu search
// over single-unit slot reassignments.
package tabu

import (
	"fmt"
	"math/rand"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// Config bounds one repair.
type Config struct {
	// Tenure is how many accepted moves stay tabu.
	Tenure int
	// MaxIterations caps the number of attempted moves.
	MaxIterations int
}

// DefaultConfig returns the reference tenure and iteration budget.
func DefaultConfig() Config {
	return Config{Tenure: 10, MaxIterations: 50}
}

// Validate checks parameter ranges.
func (c Config) Validate() error {
	if c.Tenure < 1 {
		return fmt.Errorf("Tenure must be >= 1")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("MaxIterations must be >= 1")
	}
	return nil
}

// HardScorer counts hard violations without side effects on the schedule.
type HardScorer interface {
	HardViolations(s *models.Schedule) int
}

// Stats describes one repair.
type Stats struct {
	Iterations int
	Initial    int
	Final      int
}

// Improved reports whether the repair removed any violation.
func (s Stats) Improved() bool {
	return s.Final < s.Initial
}

// Repairer runs tabu repairs against a fixed slot set.
type Repairer struct {
	cfg    Config
	slots  []models.TimeSlot
	scorer HardScorer
}

// New constructs a Repairer. slots is shared read-only.
func New(cfg Config, slots []models.TimeSlot, scorer HardScorer) (*Repairer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("slot set is empty")
	}
	if scorer == nil {
		return nil, fmt.Errorf("hard scorer is nil")
	}
	return &Repairer{cfg: cfg, slots: slots, scorer: scorer}, nil
}

type move struct {
	unit int
	slot models.SlotKey
}

// Repair searches for a schedule with fewer hard violations than s. The input
// is never mutated; a feasible input is returned as is. The result is never
// worse than the input but may break lab block contiguity, so callers should
// re-score it.
func (r *Repairer) Repair(s *models.Schedule, rng *rand.Rand) (*models.Schedule, Stats) {
	initial := r.scorer.HardViolations(s)
	stats := Stats{Initial: initial, Final: initial}
	if initial == 0 || s.Len() == 0 {
		return s, stats
	}

	current := s.Clone()
	best := s.Clone()
	bestHard := initial
	list := newTabuList(r.cfg.Tenure)

	for iter := 0; iter < r.cfg.MaxIterations && bestHard > 0; iter++ {
		stats.Iterations++
		idx := rng.Intn(current.Len())
		slot := r.slots[rng.Intn(len(r.slots))]
		m := move{unit: idx, slot: slot.Key()}

		previous := current.SlotAt(idx)
		current.Assign(idx, slot)
		hard := r.scorer.HardViolations(current)

		if list.contains(m) && hard >= bestHard {
			current.Assign(idx, previous)
			continue
		}

		list.push(m)
		if hard < bestHard {
			bestHard = hard
			best = current.Clone()
		}
	}

	stats.Final = bestHard
	return best, stats
}

// tabuList is a FIFO ring of recent moves with a membership index.
type tabuList struct {
	ring  []move
	head  int
	size  int
	index map[move]int
}

func newTabuList(capacity int) *tabuList {
	return &tabuList{ring: make([]move, capacity), index: make(map[move]int, capacity)}
}

func (t *tabuList) contains(m move) bool {
	return t.index[m] > 0
}

func (t *tabuList) push(m move) {
	if t.size == len(t.ring) {
		oldest := t.ring[t.head]
		if t.index[oldest]--; t.index[oldest] <= 0 {
			delete(t.index, oldest)
		}
		t.head = (t.head + 1) % len(t.ring)
		t.size--
	}
	t.ring[(t.head+t.size)%len(t.ring)] = m
	t.size++
	t.index[m]++
}
