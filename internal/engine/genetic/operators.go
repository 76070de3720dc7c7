package genetic

import (
	"math/rand"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// blockIndex precomputes, per block length, the slot indices that start a run
// of strictly adjacent same-day slots.
type blockIndex struct {
	slots  []models.TimeSlot
	starts map[int][]int
}

func newBlockIndex(slots []models.TimeSlot, groups []models.SessionGroup) *blockIndex {
	idx := &blockIndex{slots: slots, starts: make(map[int][]int)}
	for _, g := range groups {
		size := g.Size()
		if size < 2 {
			continue
		}
		if _, ok := idx.starts[size]; ok {
			continue
		}
		starts := make([]int, 0)
		for i := 0; i+size <= len(slots); i++ {
			if contiguous(slots[i : i+size]) {
				starts = append(starts, i)
			}
		}
		idx.starts[size] = starts
	}
	return idx
}

func contiguous(run []models.TimeSlot) bool {
	for i := 0; i+1 < len(run); i++ {
		if !run[i].Precedes(run[i+1]) {
			return false
		}
	}
	return true
}

// pick returns size slots for one group: a random contiguous block, or one
// independent random slot per unit when no block of that length exists.
func (b *blockIndex) pick(size int, rng *rand.Rand) []models.TimeSlot {
	out := make([]models.TimeSlot, size)
	if size == 1 {
		out[0] = b.slots[rng.Intn(len(b.slots))]
		return out
	}
	starts := b.starts[size]
	if len(starts) == 0 {
		for i := range out {
			out[i] = b.slots[rng.Intn(len(b.slots))]
		}
		return out
	}
	copy(out, b.slots[starts[rng.Intn(len(starts))]:])
	return out
}

func (b *blockIndex) place(s *models.Schedule, g models.SessionGroup, rng *rand.Rand) {
	block := b.pick(g.Size(), rng)
	for k, idx := range g.Indices {
		s.Assign(idx, block[k])
	}
}

func (b *blockIndex) randomIndividual(template *models.Schedule, groups []models.SessionGroup, rng *rand.Rand) *models.Schedule {
	s := template.Clone()
	for _, g := range groups {
		b.place(s, g, rng)
	}
	return s
}

// uniformCrossover copies every group whole from one parent chosen by a fair coin.
func uniformCrossover(p1, p2 *models.Schedule, groups []models.SessionGroup, rng *rand.Rand) *models.Schedule {
	child := p1.Clone()
	for _, g := range groups {
		if rng.Intn(2) == 0 {
			continue
		}
		for _, idx := range g.Indices {
			child.Assign(idx, p2.SlotAt(idx))
		}
	}
	return child
}

// swapGroups exchanges the slots of two equal-length groups of the same section.
func swapGroups(s *models.Schedule, groups []models.SessionGroup, bySection map[string][]int, first int, rng *rand.Rand) {
	g1 := groups[first]
	peers := bySection[g1.Section]
	g2 := groups[peers[rng.Intn(len(peers))]]
	if g1.Size() != g2.Size() {
		return
	}
	for k := range g1.Indices {
		a, b := g1.Indices[k], g2.Indices[k]
		slotA, slotB := s.SlotAt(a), s.SlotAt(b)
		s.Assign(a, slotB)
		s.Assign(b, slotA)
	}
}

func groupsBySection(groups []models.SessionGroup) map[string][]int {
	out := make(map[string][]int)
	for i, g := range groups {
		out[g.Section] = append(out[g.Section], i)
	}
	return out
}
