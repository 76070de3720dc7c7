package models

// SessionUnit is one contact hour of one subject for one section, bound to the
// faculty who teach it. Entities are shared read-only; the faculty slice and
// the slot belong to the unit.
type SessionUnit struct {
	Section *Section   `json:"section"`
	Subject *Subject   `json:"subject"`
	Faculty []*Faculty `json:"faculty"`
	Slot    TimeSlot   `json:"slot"`
	Placed  bool       `json:"placed"`
}

// Clone returns a copy with its own faculty slice.
func (u SessionUnit) Clone() SessionUnit {
	faculty := make([]*Faculty, len(u.Faculty))
	copy(faculty, u.Faculty)
	u.Faculty = faculty
	return u
}

// WithSlot returns a copy of the unit placed in slot.
func (u SessionUnit) WithSlot(slot TimeSlot) SessionUnit {
	c := u.Clone()
	c.Slot = slot
	c.Placed = true
	return c
}

// Unplaced returns a copy of the unit with no slot.
func (u SessionUnit) Unplaced() SessionUnit {
	c := u.Clone()
	c.Slot = TimeSlot{}
	c.Placed = false
	return c
}

// FacultyIDs lists the ids of the bound faculty in binding order.
func (u SessionUnit) FacultyIDs() []string {
	ids := make([]string, len(u.Faculty))
	for i, f := range u.Faculty {
		ids[i] = f.ID
	}
	return ids
}

// Schedule is a candidate timetable: an ordered sequence of session units and
// a cached fitness. Every mutation goes through Assign so the cache can never
// go stale.
type Schedule struct {
	units   []SessionUnit
	fitness float64
	scored  bool
}

// NewSchedule deep-copies units into a new schedule.
func NewSchedule(units []SessionUnit) *Schedule {
	owned := make([]SessionUnit, len(units))
	for i, u := range units {
		owned[i] = u.Clone()
	}
	return &Schedule{units: owned}
}

// Len returns the number of units.
func (s *Schedule) Len() int {
	return len(s.units)
}

// Units exposes the unit sequence. Callers must treat it as read-only and use
// Assign to move units.
func (s *Schedule) Units() []SessionUnit {
	return s.units
}

// At returns a copy of unit i.
func (s *Schedule) At(i int) SessionUnit {
	return s.units[i].Clone()
}

// SlotAt returns the slot of unit i.
func (s *Schedule) SlotAt(i int) TimeSlot {
	return s.units[i].Slot
}

// Assign places unit i in slot and invalidates the cached fitness.
func (s *Schedule) Assign(i int, slot TimeSlot) {
	s.units[i].Slot = slot
	s.units[i].Placed = true
	s.scored = false
}

// Clone returns a deep copy including the cached fitness.
func (s *Schedule) Clone() *Schedule {
	c := NewSchedule(s.units)
	c.fitness = s.fitness
	c.scored = s.scored
	return c
}

// Fitness returns the cached fitness and whether it is current.
func (s *Schedule) Fitness() (float64, bool) {
	return s.fitness, s.scored
}

// SetFitness caches a freshly computed fitness.
func (s *Schedule) SetFitness(v float64) {
	s.fitness = v
	s.scored = true
}

// Complete reports whether every unit has a slot.
func (s *Schedule) Complete() bool {
	for _, u := range s.units {
		if !u.Placed {
			return false
		}
	}
	return true
}
