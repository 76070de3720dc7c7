package models

import (
	"fmt"
	"time"
)

// RunStatus captures the generation run lifecycle.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "QUEUED"
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusFinished   RunStatus = "FINISHED"
	RunStatusFailed     RunStatus = "FAILED"
)

// RunSource records where the catalog of a run came from.
type RunSource string

const (
	RunSourceRequest RunSource = "request"
	RunSourceCatalog RunSource = "catalog"
	RunSourceSync    RunSource = "sync"
)

// Placement is the serialisable form of one placed session unit. Entities are
// referenced by key so a run can be stored outside the process.
type Placement struct {
	Section string   `json:"section"`
	Subject string   `json:"subject"`
	Faculty []string `json:"faculty"`
	Slot    TimeSlot `json:"slot"`
}

// RunResult is the stored outcome of a finished run.
type RunResult struct {
	Placements  []Placement `json:"placements"`
	Seed        int64       `json:"seed"`
	Hard        int         `json:"hard"`
	Soft        float64     `json:"soft"`
	Fitness     float64     `json:"fitness"`
	Generations int         `json:"generations"`
	Evaluations int         `json:"evaluations"`
	Repairs     int         `json:"repairs"`
	StopReason  string      `json:"stop_reason"`
	DurationMs  int64       `json:"duration_ms"`
}

// GenerationRun is one request to build a timetable.
type GenerationRun struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	Source      RunSource  `json:"source"`
	Profile     string     `json:"profile"`
	Seed        int64      `json:"seed"`
	Progress    int        `json:"progress"`
	Generation  int        `json:"generation"`
	BestFitness float64    `json:"best_fitness"`
	Attempts    int        `json:"attempts"`
	Catalog     Catalog    `json:"catalog"`
	Result      *RunResult `json:"result,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Terminal reports whether the run will not change any more.
func (r *GenerationRun) Terminal() bool {
	return r.Status == RunStatusFinished || r.Status == RunStatusFailed
}

// PlacementsOf flattens a schedule into placements in unit order.
func PlacementsOf(s *Schedule) []Placement {
	out := make([]Placement, 0, s.Len())
	for _, u := range s.Units() {
		out = append(out, Placement{
			Section: u.Section.ID,
			Subject: u.Subject.Code,
			Faculty: u.FacultyIDs(),
			Slot:    u.Slot,
		})
	}
	return out
}

// Restore rebuilds a schedule from placements, binding units to the entities
// of c.
func (c Catalog) Restore(placements []Placement) (*Schedule, error) {
	sections := make(map[string]*Section, len(c.Sections))
	for i := range c.Sections {
		sections[c.Sections[i].ID] = &c.Sections[i]
	}
	subjects := make(map[string]*Subject, len(c.Subjects))
	for i := range c.Subjects {
		subjects[c.Subjects[i].Code] = &c.Subjects[i]
	}
	faculty := make(map[string]*Faculty, len(c.Faculty))
	for i := range c.Faculty {
		faculty[c.Faculty[i].ID] = &c.Faculty[i]
	}

	units := make([]SessionUnit, 0, len(placements))
	for i, p := range placements {
		sec, ok := sections[p.Section]
		if !ok {
			return nil, fmt.Errorf("placement %d: unknown section %q", i, p.Section)
		}
		sub, ok := subjects[p.Subject]
		if !ok {
			return nil, fmt.Errorf("placement %d: unknown subject %q", i, p.Subject)
		}
		bound := make([]*Faculty, 0, len(p.Faculty))
		for _, id := range p.Faculty {
			f, ok := faculty[id]
			if !ok {
				return nil, fmt.Errorf("placement %d: unknown faculty %q", i, id)
			}
			bound = append(bound, f)
		}
		units = append(units, SessionUnit{Section: sec, Subject: sub, Faculty: bound, Slot: p.Slot, Placed: true})
	}
	return NewSchedule(units), nil
}
