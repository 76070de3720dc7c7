package objective

import (
	"math"
	"sort"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

type dayKey struct {
	owner string
	day   time.Weekday
}

// --- hard checks ---

func facultyDoubleBooking(units []models.SessionUnit) int {
	seen := make(map[string]map[models.SlotKey]struct{})
	violations := 0
	for _, u := range units {
		key := u.Slot.Key()
		for _, f := range u.Faculty {
			slots, ok := seen[f.ID]
			if !ok {
				slots = make(map[models.SlotKey]struct{})
				seen[f.ID] = slots
			}
			if _, dup := slots[key]; dup {
				violations++
				continue
			}
			slots[key] = struct{}{}
		}
	}
	return violations
}

func sectionDoubleBooking(units []models.SessionUnit) int {
	seen := make(map[string]map[models.SlotKey]struct{})
	violations := 0
	for _, u := range units {
		slots, ok := seen[u.Section.ID]
		if !ok {
			slots = make(map[models.SlotKey]struct{})
			seen[u.Section.ID] = slots
		}
		key := u.Slot.Key()
		if _, dup := slots[key]; dup {
			violations++
			continue
		}
		slots[key] = struct{}{}
	}
	return violations
}

// FacultyCredits sums the workload cost of every unit per faculty id:
// 0.5 for a lab hour, 1.0 for a theory hour.
func FacultyCredits(units []models.SessionUnit) map[string]float64 {
	credits := make(map[string]float64)
	for _, u := range units {
		cost := u.Subject.UnitCredit()
		for _, f := range u.Faculty {
			credits[f.ID] += cost
		}
	}
	return credits
}

func facultyOverload(units []models.SessionUnit, mode WorkloadMode) int {
	credits := FacultyCredits(units)
	limits := make(map[string]int, len(credits))
	for _, u := range units {
		for _, f := range u.Faculty {
			limits[f.ID] = f.MaxTeachingCredits()
		}
	}
	violations := 0
	for id, load := range credits {
		excess := load - float64(limits[id])
		if excess <= 0 {
			continue
		}
		if mode == WorkloadMagnitude {
			violations += int(math.Ceil(excess))
			continue
		}
		violations++
	}
	return violations
}

// labSplits counts lab blocks that span days and gaps inside same-day blocks.
func labSplits(units []models.SessionUnit) int {
	blocks := make(map[string][]models.TimeSlot)
	order := make([]string, 0)
	for _, u := range units {
		if !u.Subject.Lab {
			continue
		}
		key := u.Section.ID + "|" + u.Subject.Code
		if _, ok := blocks[key]; !ok {
			order = append(order, key)
		}
		blocks[key] = append(blocks[key], u.Slot)
	}
	violations := 0
	for _, key := range order {
		slots := blocks[key]
		if len(slots) < 2 {
			continue
		}
		day := slots[0].Day
		split := false
		for _, s := range slots[1:] {
			if s.Day != day {
				split = true
				break
			}
		}
		if split {
			violations++
			continue
		}
		sortByStart(slots)
		for i := 0; i+1 < len(slots); i++ {
			if slots[i].End != slots[i+1].Start {
				violations++
			}
		}
	}
	return violations
}

// --- soft checks ---

func facultyClumping(units []models.SessionUnit, gapMinutes int) int {
	days := make(map[dayKey][]models.TimeSlot)
	for _, u := range units {
		for _, f := range u.Faculty {
			k := dayKey{owner: f.ID, day: u.Slot.Day}
			days[k] = append(days[k], u.Slot)
		}
	}
	penalty := 0
	for _, slots := range days {
		sortByStart(slots)
		for i := 0; i+1 < len(slots); i++ {
			if int(slots[i+1].Start-slots[i].End) >= gapMinutes {
				penalty++
			}
		}
	}
	return penalty
}

// morningVariance is the population variance of per-faculty counts of slots
// starting at the morning mark, over faculty holding at least one.
func morningVariance(units []models.SessionUnit, morning models.Clock) float64 {
	counts := make(map[string]int)
	for _, u := range units {
		if u.Slot.Start != morning {
			continue
		}
		for _, f := range u.Faculty {
			counts[f.ID]++
		}
	}
	values := make([]float64, 0, len(counts))
	for _, c := range counts {
		values = append(values, float64(c))
	}
	return variance(values)
}

func sectionFatigue(units []models.SessionUnit, limit int) int {
	days := sectionDays(units)
	penalty := 0
	for _, slots := range days {
		sortByStart(slots)
		run := 1
		for i := 0; i+1 < len(slots); i++ {
			if slots[i].End == slots[i+1].Start {
				run++
				continue
			}
			if run > limit {
				penalty += run - limit
			}
			run = 1
		}
		if run > limit {
			penalty += run - limit
		}
	}
	return penalty
}

// sectionGaps penalises idle time in a section day that is neither class time
// nor a break the day spans. Every started nominal slot of idle time beyond
// the tolerance costs one.
func sectionGaps(units []models.SessionUnit, breaks []models.Window, tolerance int) int {
	days := sectionDays(units)
	penalty := 0
	for _, slots := range days {
		if len(slots) == 0 {
			continue
		}
		sortByStart(slots)
		first, last := slots[0], slots[0]
		for _, s := range slots[1:] {
			if s.End > last.End {
				last = s
			}
		}
		span := int(last.End - first.Start)
		covered := 0
		for _, w := range breaks {
			if first.Start < w.Start && last.End > w.End {
				covered += w.Minutes()
			}
		}
		idle := span - len(slots)*models.NominalSlotMinutes - covered
		if idle > tolerance {
			penalty += idle/models.NominalSlotMinutes + 1
		}
	}
	return penalty
}

// subjectDistribution penalises a faculty teaching more than two distinct
// subjects of three or more credits, or more than one one-credit subject.
func subjectDistribution(units []models.SessionUnit) int {
	subjects := make(map[string]map[string]int)
	for _, u := range units {
		for _, f := range u.Faculty {
			set, ok := subjects[f.ID]
			if !ok {
				set = make(map[string]int)
				subjects[f.ID] = set
			}
			set[u.Subject.Code] = u.Subject.Credits
		}
	}
	penalty := 0
	for _, set := range subjects {
		high, low := 0, 0
		for _, credits := range set {
			switch {
			case credits >= 3:
				high++
			case credits == 1:
				low++
			}
		}
		if high > 2 {
			penalty++
		}
		if low > 1 {
			penalty++
		}
	}
	return penalty
}

// workloadVariance is the population variance of assigned unit counts per faculty.
func workloadVariance(units []models.SessionUnit) float64 {
	counts := make(map[string]int)
	for _, u := range units {
		for _, f := range u.Faculty {
			counts[f.ID]++
		}
	}
	values := make([]float64, 0, len(counts))
	for _, c := range counts {
		values = append(values, float64(c))
	}
	return variance(values)
}

// labDayOverlap counts, per section day, distinct lab subjects beyond the first.
func labDayOverlap(units []models.SessionUnit) int {
	labs := make(map[dayKey]map[string]struct{})
	for _, u := range units {
		if !u.Subject.Lab {
			continue
		}
		k := dayKey{owner: u.Section.ID, day: u.Slot.Day}
		set, ok := labs[k]
		if !ok {
			set = make(map[string]struct{})
			labs[k] = set
		}
		set[u.Subject.Code] = struct{}{}
	}
	penalty := 0
	for _, set := range labs {
		if len(set) > 1 {
			penalty += len(set) - 1
		}
	}
	return penalty
}

// --- helpers ---

func sectionDays(units []models.SessionUnit) map[dayKey][]models.TimeSlot {
	days := make(map[dayKey][]models.TimeSlot)
	for _, u := range units {
		k := dayKey{owner: u.Section.ID, day: u.Slot.Day}
		days[k] = append(days[k], u.Slot)
	}
	return days
}

func sortByStart(slots []models.TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start < slots[j].Start
	})
}

// variance sorts values first so the float sum does not depend on map order.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	sum := 0.0
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values))
}
