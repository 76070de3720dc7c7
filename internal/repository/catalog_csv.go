package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gocarina/gocsv"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// Catalog file names inside the CSV directory.
const (
	FacultyFile  = "faculty.csv"
	SubjectsFile = "subjects.csv"
	SectionsFile = "sections.csv"
)

type facultyRecord struct {
	ID              string `csv:"id" validate:"required"`
	Name            string `csv:"name" validate:"required"`
	TotalCredits    int    `csv:"total_credits" validate:"min=0"`
	ResearchCredits int    `csv:"research_credits" validate:"min=0,ltefield=TotalCredits"`
	Subjects        string `csv:"subjects" validate:"required"`
}

type subjectRecord struct {
	Name    string `csv:"name" validate:"required"`
	Code    string `csv:"code" validate:"required"`
	Type    string `csv:"type" validate:"required"`
	Credits int    `csv:"credits" validate:"min=1"`
}

type sectionRecord struct {
	ID      string `csv:"id" validate:"required"`
	Name    string `csv:"name" validate:"required"`
	Batches int    `csv:"batches" validate:"min=0"`
}

// CSVCatalogLoader reads faculty, subjects and sections from a directory of
// delimited files with a header row.
type CSVCatalogLoader struct {
	dir       string
	comma     rune
	validator *validator.Validate
}

// NewCSVCatalogLoader constructs a loader for dir. A zero comma means ','.
func NewCSVCatalogLoader(dir string, comma rune) *CSVCatalogLoader {
	if comma == 0 {
		comma = ','
	}
	return &CSVCatalogLoader{dir: dir, comma: comma, validator: validator.New()}
}

// Load parses the three catalog files.
func (l *CSVCatalogLoader) Load(ctx context.Context) (models.Catalog, error) {
	var (
		faculty  []*facultyRecord
		subjects []*subjectRecord
		sections []*sectionRecord
	)
	if err := l.read(ctx, FacultyFile, &faculty); err != nil {
		return models.Catalog{}, err
	}
	if err := l.read(ctx, SubjectsFile, &subjects); err != nil {
		return models.Catalog{}, err
	}
	if err := l.read(ctx, SectionsFile, &sections); err != nil {
		return models.Catalog{}, err
	}

	var catalog models.Catalog
	seen := make(map[string]int)
	for i, rec := range faculty {
		if err := l.check(FacultyFile, i, rec, seen, rec.ID); err != nil {
			return models.Catalog{}, err
		}
		catalog.Faculty = append(catalog.Faculty, models.Faculty{
			ID:              strings.TrimSpace(rec.ID),
			Name:            strings.TrimSpace(rec.Name),
			TotalCredits:    rec.TotalCredits,
			ResearchCredits: rec.ResearchCredits,
			Subjects:        SplitSubjects(rec.Subjects),
		})
	}

	seen = make(map[string]int)
	for i, rec := range subjects {
		if err := l.check(SubjectsFile, i, rec, seen, rec.Code); err != nil {
			return models.Catalog{}, err
		}
		lab, err := parseSubjectType(rec.Type)
		if err != nil {
			return models.Catalog{}, rowError(SubjectsFile, i, err.Error())
		}
		catalog.Subjects = append(catalog.Subjects, models.Subject{
			Code:    strings.TrimSpace(rec.Code),
			Name:    strings.TrimSpace(rec.Name),
			Lab:     lab,
			Credits: rec.Credits,
		})
	}

	seen = make(map[string]int)
	for i, rec := range sections {
		if err := l.check(SectionsFile, i, rec, seen, rec.ID); err != nil {
			return models.Catalog{}, err
		}
		catalog.Sections = append(catalog.Sections, models.Section{
			ID:      strings.TrimSpace(rec.ID),
			Name:    strings.TrimSpace(rec.Name),
			Batches: rec.Batches,
		})
	}
	return catalog, nil
}

func (l *CSVCatalogLoader) read(ctx context.Context, name string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(l.dir, name))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, fmt.Sprintf("catalog file %s unavailable", name))
	}
	defer f.Close()

	if err := gocsv.UnmarshalCSV(l.reader(f), out); err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("%s line %d: malformed row", name, parseErr.Line))
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("%s: %v", name, err))
	}
	return nil
}

func (l *CSVCatalogLoader) reader(in io.Reader) gocsv.CSVReader {
	r := csv.NewReader(in)
	r.Comma = l.comma
	r.TrimLeadingSpace = true
	return r
}

// check validates one record and rejects duplicate keys. Rows are reported
// 1-based after the header.
func (l *CSVCatalogLoader) check(file string, i int, rec interface{}, seen map[string]int, key string) error {
	if err := l.validator.Struct(rec); err != nil {
		return rowError(file, i, err.Error())
	}
	key = strings.TrimSpace(key)
	if prev, dup := seen[key]; dup {
		return rowError(file, i, fmt.Sprintf("duplicate key %q (first seen on row %d)", key, prev+1))
	}
	seen[key] = i
	return nil
}

func rowError(file string, i int, msg string) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s row %d: %s", file, i+1, msg))
}

// SplitSubjects parses a ';'-separated list of subject codes.
func SplitSubjects(raw string) []string {
	var out []string
	for _, code := range strings.Split(raw, ";") {
		if code = strings.TrimSpace(code); code != "" {
			out = append(out, code)
		}
	}
	return out
}

func parseSubjectType(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "theory":
		return false, nil
	case "lab":
		return true, nil
	default:
		return false, fmt.Errorf("unknown subject type %q", raw)
	}
}
