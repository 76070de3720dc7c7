package tabu

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/engine/objective"
	"github.com/noah-isme/sma-timetable-api/internal/models"
)

type countingScorer struct {
	inner HardScorer
	calls int
}

func (c *countingScorer) HardViolations(s *models.Schedule) int {
	c.calls++
	return c.inner.HardViolations(s)
}

func newEvaluator(t *testing.T) *objective.Evaluator {
	t.Helper()
	e, err := objective.New(objective.DefaultConfig())
	require.NoError(t, err)
	return e
}

func clashingSchedule() *models.Schedule {
	maths := &models.Subject{Code: "MATH", Name: "Maths", Credits: 3}
	f := &models.Faculty{ID: "F1", TotalCredits: 20, Subjects: []string{"MATH"}}
	slot := models.StandardWeek()[0]
	units := make([]models.SessionUnit, 0, 3)
	for _, id := range []string{"S1", "S2", "S3"} {
		section := &models.Section{ID: id, Name: id}
		units = append(units, models.SessionUnit{Section: section, Subject: maths, Faculty: []*models.Faculty{f}, Slot: slot, Placed: true})
	}
	return models.NewSchedule(units)
}

func TestRepairReturnsFeasibleInputUnchanged(t *testing.T) {
	scorer := &countingScorer{inner: newEvaluator(t)}
	r, err := New(DefaultConfig(), models.StandardWeek(), scorer)
	require.NoError(t, err)

	s := clashingSchedule()
	s.Assign(1, models.StandardWeek()[1])
	s.Assign(2, models.StandardWeek()[2])

	out, stats := r.Repair(s, rand.New(rand.NewSource(1)))
	assert.Same(t, s, out)
	assert.Equal(t, 0, stats.Iterations)
	assert.Equal(t, 1, scorer.calls)
}

func TestRepairReducesViolationsWithoutMutatingInput(t *testing.T) {
	e := newEvaluator(t)
	r, err := New(DefaultConfig(), models.StandardWeek(), e)
	require.NoError(t, err)

	s := clashingSchedule()
	before := e.HardViolations(s)
	require.Equal(t, 2, before)

	out, stats := r.Repair(s, rand.New(rand.NewSource(7)))
	assert.LessOrEqual(t, e.HardViolations(out), before)
	assert.Equal(t, before, stats.Initial)
	assert.Equal(t, e.HardViolations(out), stats.Final)
	assert.True(t, stats.Improved())
	assert.Equal(t, 2, e.HardViolations(s))
	assert.Equal(t, time.Monday, s.At(2).Slot.Day)
}

func TestRepairIsDeterministicForSeed(t *testing.T) {
	e := newEvaluator(t)
	r, err := New(Config{Tenure: 3, MaxIterations: 20}, models.StandardWeek(), e)
	require.NoError(t, err)

	a, _ := r.Repair(clashingSchedule(), rand.New(rand.NewSource(42)))
	b, _ := r.Repair(clashingSchedule(), rand.New(rand.NewSource(42)))
	for i := 0; i < a.Len(); i++ {
		assert.Equal(t, a.At(i).Slot, b.At(i).Slot)
	}
}

// drawSource replays fixed draws. Intn over a power-of-two length keeps the
// low bits of Int63()>>32, so each draw is the index it picks.
type drawSource struct {
	draws []int64
	next  int
}

func (d *drawSource) Int63() int64 {
	v := d.draws[d.next%len(d.draws)]
	d.next++
	return v << 32
}

func (d *drawSource) Seed(int64) {}

// stateScorer scores a two-unit schedule by where both units sit and logs
// every state it is asked about.
type stateScorer struct {
	hard     map[[2]models.SlotKey]int
	fallback int
	seen     [][2]models.SlotKey
}

func (s *stateScorer) HardViolations(sch *models.Schedule) int {
	state := [2]models.SlotKey{sch.SlotAt(0).Key(), sch.SlotAt(1).Key()}
	s.seen = append(s.seen, state)
	if h, ok := s.hard[state]; ok {
		return h
	}
	return s.fallback
}

func TestRepairTabuMoveNeedsAspiration(t *testing.T) {
	week := models.StandardWeek()
	a, b, start := week[0], week[1], week[2]
	twoUnits := func() *models.Schedule {
		s := clashingSchedule()
		return models.NewSchedule(s.Units()[:2])
	}
	// (unit, slot) per iteration: (0,A) (0,B) (1,A) (0,A) again, then (1,B).
	draws := []int64{0, 0, 0, 1, 1, 0, 0, 0, 1, 1}

	t.Run("not improving is reverted", func(t *testing.T) {
		scorer := &stateScorer{fallback: 6}
		r, err := New(Config{Tenure: 10, MaxIterations: 5}, []models.TimeSlot{a, b}, scorer)
		require.NoError(t, err)

		in := twoUnits()
		in.Assign(0, start)
		in.Assign(1, start)
		out, stats := r.Repair(in, rand.New(&drawSource{draws: draws}))

		require.Len(t, scorer.seen, 6)
		assert.Equal(t, [2]models.SlotKey{a.Key(), a.Key()}, scorer.seen[4])
		// the repeated move was undone before unit 1 moved
		assert.Equal(t, [2]models.SlotKey{b.Key(), b.Key()}, scorer.seen[5])
		assert.Equal(t, 6, stats.Final)
		assert.False(t, stats.Improved())
		assert.Equal(t, start, out.SlotAt(0))
	})

	t.Run("improving on the best is accepted", func(t *testing.T) {
		scorer := &stateScorer{fallback: 6, hard: map[[2]models.SlotKey]int{{a.Key(), a.Key()}: 2}}
		r, err := New(Config{Tenure: 10, MaxIterations: 5}, []models.TimeSlot{a, b}, scorer)
		require.NoError(t, err)

		in := twoUnits()
		in.Assign(0, start)
		in.Assign(1, start)
		out, stats := r.Repair(in, rand.New(&drawSource{draws: draws}))

		require.Len(t, scorer.seen, 6)
		assert.Equal(t, [2]models.SlotKey{a.Key(), a.Key()}, scorer.seen[4])
		assert.Equal(t, [2]models.SlotKey{a.Key(), b.Key()}, scorer.seen[5])
		assert.Equal(t, 2, stats.Final)
		assert.True(t, stats.Improved())
		assert.Equal(t, a, out.SlotAt(0))
		assert.Equal(t, a, out.SlotAt(1))
		assert.Equal(t, start, in.SlotAt(0))
	})
}

func TestTabuListEvictsOldestMove(t *testing.T) {
	list := newTabuList(2)
	m1 := move{unit: 1}
	m2 := move{unit: 2}
	m3 := move{unit: 3}

	list.push(m1)
	list.push(m2)
	assert.True(t, list.contains(m1))

	list.push(m3)
	assert.False(t, list.contains(m1))
	assert.True(t, list.contains(m2))
	assert.True(t, list.contains(m3))

	list.push(m3)
	list.push(m3)
	assert.False(t, list.contains(m2))
	assert.True(t, list.contains(m3))
}

func TestNewRejectsBadInput(t *testing.T) {
	e := newEvaluator(t)
	_, err := New(Config{Tenure: 0, MaxIterations: 1}, models.StandardWeek(), e)
	assert.Error(t, err)
	_, err = New(DefaultConfig(), nil, e)
	assert.Error(t, err)
	_, err = New(DefaultConfig(), models.StandardWeek(), nil)
	assert.Error(t, err)
}
