// Package builder expands a catalog of faculty, subjects and sections into the
// unplaced session units a search run schedules.
package builder

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// Config tunes lab staffing.
type Config struct {
	// SingleInstructorLabs lists lab codes (case-insensitive) run by one faculty.
	SingleInstructorLabs []string
	// LabFaculty is the simultaneous faculty count for every other lab.
	LabFaculty int
	// LabFacultyFromBatches staffs one faculty per section batch when the
	// section declares batches.
	LabFacultyFromBatches bool
}

// DefaultConfig returns the standard staffing rules.
func DefaultConfig() Config {
	return Config{
		SingleInstructorLabs: []string{"UNIX_L", "WEB_L"},
		LabFaculty:           4,
	}
}

// Validate checks staffing parameters.
func (c Config) Validate() error {
	if c.LabFaculty < 1 {
		return fmt.Errorf("LabFaculty must be >= 1")
	}
	return nil
}

// Builder performs the deterministic assignment pre-pass.
type Builder struct {
	cfg    Config
	single map[string]struct{}
	logger *zap.Logger
}

// New constructs a Builder.
func New(cfg Config, logger *zap.Logger) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	single := make(map[string]struct{}, len(cfg.SingleInstructorLabs))
	for _, code := range cfg.SingleInstructorLabs {
		single[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
	}
	return &Builder{cfg: cfg, single: single, logger: logger}, nil
}

// loadBook tracks the credits assigned to each faculty during one Build.
type loadBook struct {
	faculty []*models.Faculty
	load    map[string]float64
}

func newLoadBook(faculty []models.Faculty) *loadBook {
	book := &loadBook{
		faculty: make([]*models.Faculty, len(faculty)),
		load:    make(map[string]float64, len(faculty)),
	}
	for i := range faculty {
		book.faculty[i] = &faculty[i]
		book.load[faculty[i].ID] = 0
	}
	return book
}

// eligible returns the faculty qualified for code, least loaded first, ties by id.
func (b *loadBook) eligible(code string) []*models.Faculty {
	out := make([]*models.Faculty, 0)
	for _, f := range b.faculty {
		if f.Teaches(code) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := b.load[out[i].ID], b.load[out[j].ID]
		if li != lj {
			return li < lj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (b *loadBook) fits(f *models.Faculty, cost float64) bool {
	return b.load[f.ID]+cost <= float64(f.MaxTeachingCredits())
}

func (b *loadBook) charge(f *models.Faculty, cost float64) {
	b.load[f.ID] += cost
}

// Build emits one unplaced unit per required contact hour. Theory subjects are
// staffed first so labs can include the faculty teaching the matching theory.
// The returned units reference copies of the input entities.
func (b *Builder) Build(faculty []models.Faculty, subjects []models.Subject, sections []models.Section) ([]models.SessionUnit, error) {
	faculty = append([]models.Faculty(nil), faculty...)
	subjects = append([]models.Subject(nil), subjects...)
	sections = append([]models.Section(nil), sections...)

	book := newLoadBook(faculty)
	owners := make(map[string]*models.Faculty)
	units := make([]models.SessionUnit, 0)

	for si := range sections {
		section := &sections[si]
		for ji := range subjects {
			subject := &subjects[ji]
			if subject.Lab {
				continue
			}
			owner, err := b.staffTheory(book, section, subject)
			if err != nil {
				return nil, err
			}
			owners[ownerKey(section.ID, subject.Code)] = owner
			units = appendUnits(units, section, subject, []*models.Faculty{owner})
		}
	}

	for si := range sections {
		section := &sections[si]
		for ji := range subjects {
			subject := &subjects[ji]
			if !subject.Lab {
				continue
			}
			staff, err := b.staffLab(book, owners, section, subject)
			if err != nil {
				return nil, err
			}
			units = appendUnits(units, section, subject, staff)
		}
	}

	if len(units) == 0 {
		return nil, appErrors.Clone(appErrors.ErrEmptyScheduleRequest, "no session units generated; check faculty, subject and section lists")
	}
	b.logger.Sugar().Debugw("session units built", "units", len(units), "sections", len(sections), "subjects", len(subjects))
	return units, nil
}

func (b *Builder) staffTheory(book *loadBook, section *models.Section, subject *models.Subject) (*models.Faculty, error) {
	candidates := book.eligible(subject.Code)
	if len(candidates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoEligibleFaculty, fmt.Sprintf("no faculty qualified for %s (%s)", subject.Name, subject.Code))
	}
	cost := float64(subject.Credits)
	for _, f := range candidates {
		if book.fits(f, cost) {
			book.charge(f, cost)
			return f, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrFacultyOverloaded, fmt.Sprintf("all faculty qualified for %s (%s) are overloaded", subject.Name, section.Name))
}

func (b *Builder) staffLab(book *loadBook, owners map[string]*models.Faculty, section *models.Section, subject *models.Subject) ([]*models.Faculty, error) {
	candidates := book.eligible(subject.Code)
	if len(candidates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoEligibleFaculty, fmt.Sprintf("no faculty qualified for %s (%s)", subject.Name, subject.Code))
	}
	cost := float64(subject.Credits)
	required := b.requiredLabFaculty(section, subject)
	staff := make([]*models.Faculty, 0, required)
	selected := make(map[string]struct{}, required)

	if owner, ok := owners[ownerKey(section.ID, subject.TheoryCode())]; ok {
		if book.fits(owner, cost) {
			book.charge(owner, cost)
			staff = append(staff, owner)
			selected[owner.ID] = struct{}{}
		} else {
			b.logger.Warn("theory faculty at capacity, skipped for lab",
				zap.String("faculty_id", owner.ID),
				zap.String("subject", subject.Code),
				zap.String("section", section.ID),
			)
		}
	}

	for _, f := range candidates {
		if len(staff) >= required {
			break
		}
		if _, taken := selected[f.ID]; taken {
			continue
		}
		if book.fits(f, cost) {
			book.charge(f, cost)
			staff = append(staff, f)
			selected[f.ID] = struct{}{}
		}
	}

	if len(staff) < required {
		return nil, appErrors.Clone(appErrors.ErrInsufficientLabFaculty,
			fmt.Sprintf("not enough available faculty for lab %s (%s): needed %d, got %d", subject.Name, section.Name, required, len(staff)))
	}
	return staff, nil
}

func (b *Builder) requiredLabFaculty(section *models.Section, subject *models.Subject) int {
	if _, ok := b.single[strings.ToUpper(subject.Code)]; ok {
		return 1
	}
	if b.cfg.LabFacultyFromBatches && section.Batches > 0 {
		return section.Batches
	}
	return b.cfg.LabFaculty
}

func appendUnits(units []models.SessionUnit, section *models.Section, subject *models.Subject, staff []*models.Faculty) []models.SessionUnit {
	for i := 0; i < subject.ContactHours(); i++ {
		bound := make([]*models.Faculty, len(staff))
		copy(bound, staff)
		units = append(units, models.SessionUnit{Section: section, Subject: subject, Faculty: bound})
	}
	return units
}

func ownerKey(sectionID, subjectCode string) string {
	return sectionID + "|" + subjectCode
}
