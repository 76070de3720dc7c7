package objective

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// CheckKind separates feasibility checks from preferences.
type CheckKind string

const (
	CheckHard CheckKind = "hard"
	CheckSoft CheckKind = "soft"
)

// CheckResult is one line of a constraint report.
type CheckResult struct {
	Name  string    `json:"name"`
	Kind  CheckKind `json:"kind"`
	Value float64   `json:"value"`
	OK    bool      `json:"ok"`
}

// Report is the per-check verdict of one schedule.
type Report struct {
	Checks     []CheckResult `json:"checks"`
	Evaluation Evaluation    `json:"evaluation"`
}

// Report evaluates s and itemises every check.
func (e *Evaluator) Report(s *models.Schedule) Report {
	ev := e.Evaluate(s)
	b := ev.Breakdown
	hard := func(name string, v int) CheckResult {
		return CheckResult{Name: name, Kind: CheckHard, Value: float64(v), OK: v == 0}
	}
	soft := func(name string, v float64) CheckResult {
		return CheckResult{Name: name, Kind: CheckSoft, Value: v, OK: v == 0}
	}
	return Report{
		Evaluation: ev,
		Checks: []CheckResult{
			hard("faculty double booking", b.FacultyDoubleBooking),
			hard("section double booking", b.SectionDoubleBooking),
			hard("faculty workload", b.FacultyOverload),
			hard("lab consecutiveness", b.LabSplit),
			soft("faculty clumping", b.Clumping),
			soft("morning load balance", b.MorningVariance),
			soft("student fatigue", b.Fatigue),
			soft("section gaps", b.SectionGaps),
			soft("subject distribution", b.SubjectDistribution),
			soft("workload balance", b.WorkloadVariance),
			soft("labs per day", b.LabDayOverlap),
		},
	}
}

// String renders the report as a plain-text table.
func (r Report) String() string {
	var sb strings.Builder
	for _, c := range r.Checks {
		status := "[  OK]"
		if !c.OK {
			status = "[FAIL]"
		}
		fmt.Fprintf(&sb, "%s %-4s %-24s %g\n", status, c.Kind, c.Name, c.Value)
	}
	fmt.Fprintf(&sb, "hard=%d soft=%.3f fitness=%.6f\n", r.Evaluation.Hard, r.Evaluation.Soft, r.Evaluation.Fitness)
	return sb.String()
}

// FacultyLoad is the workload line of one faculty in a schedule.
type FacultyLoad struct {
	FacultyID   string  `json:"faculty_id"`
	Name        string  `json:"name"`
	Units       int     `json:"units"`
	Credits     float64 `json:"credits"`
	MaxCredits  int     `json:"max_credits"`
	Utilisation float64 `json:"utilisation"`
	Overloaded  bool    `json:"overloaded"`
}

// Workload summarises every bound faculty, ordered by id.
func Workload(s *models.Schedule) []FacultyLoad {
	lines := make(map[string]*FacultyLoad)
	for _, u := range s.Units() {
		cost := u.Subject.UnitCredit()
		for _, f := range u.Faculty {
			line, ok := lines[f.ID]
			if !ok {
				line = &FacultyLoad{FacultyID: f.ID, Name: f.Name, MaxCredits: f.MaxTeachingCredits()}
				lines[f.ID] = line
			}
			line.Units++
			line.Credits += cost
		}
	}
	out := make([]FacultyLoad, 0, len(lines))
	for _, line := range lines {
		if line.MaxCredits > 0 {
			line.Utilisation = line.Credits / float64(line.MaxCredits)
		}
		line.Overloaded = line.Credits > float64(line.MaxCredits)
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FacultyID < out[j].FacultyID })
	return out
}
