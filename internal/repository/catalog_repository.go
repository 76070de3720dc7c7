package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// QueryObserver records query timings.
type QueryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

type facultySubjectRow struct {
	FacultyID   string `db:"faculty_id"`
	SubjectCode string `db:"subject_code"`
}

// CatalogRepository reads the catalog from PostgreSQL.
type CatalogRepository struct {
	db      *sqlx.DB
	metrics QueryObserver
}

// NewCatalogRepository constructs a CatalogRepository. metrics may be nil.
func NewCatalogRepository(db *sqlx.DB, metrics QueryObserver) *CatalogRepository {
	return &CatalogRepository{db: db, metrics: metrics}
}

// Load returns every faculty, subject and section ordered by key.
func (r *CatalogRepository) Load(ctx context.Context) (models.Catalog, error) {
	faculty, err := r.ListFaculty(ctx)
	if err != nil {
		return models.Catalog{}, err
	}
	subjects, err := r.ListSubjects(ctx)
	if err != nil {
		return models.Catalog{}, err
	}
	sections, err := r.ListSections(ctx)
	if err != nil {
		return models.Catalog{}, err
	}
	return models.Catalog{Faculty: faculty, Subjects: subjects, Sections: sections}, nil
}

// ListFaculty returns faculty with their qualified subject codes.
func (r *CatalogRepository) ListFaculty(ctx context.Context) ([]models.Faculty, error) {
	var faculty []models.Faculty
	if err := r.selectContext(ctx, "catalog.faculty", &faculty,
		"SELECT id, name, total_credits, research_credits FROM faculty ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list faculty: %w", err)
	}

	var links []facultySubjectRow
	if err := r.selectContext(ctx, "catalog.faculty_subjects", &links,
		"SELECT faculty_id, subject_code FROM faculty_subjects ORDER BY faculty_id, position, subject_code"); err != nil {
		return nil, fmt.Errorf("list faculty subjects: %w", err)
	}
	index := make(map[string]int, len(faculty))
	for i := range faculty {
		index[faculty[i].ID] = i
	}
	for _, link := range links {
		if i, ok := index[link.FacultyID]; ok {
			faculty[i].Subjects = append(faculty[i].Subjects, link.SubjectCode)
		}
	}
	return faculty, nil
}

// ListSubjects returns every subject.
func (r *CatalogRepository) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	var subjects []models.Subject
	if err := r.selectContext(ctx, "catalog.subjects", &subjects,
		"SELECT code, name, is_lab, credits FROM subjects ORDER BY code"); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// ListSections returns every section.
func (r *CatalogRepository) ListSections(ctx context.Context) ([]models.Section, error) {
	var sections []models.Section
	if err := r.selectContext(ctx, "catalog.sections", &sections,
		"SELECT id, name, batches FROM sections ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return sections, nil
}

func (r *CatalogRepository) selectContext(ctx context.Context, label string, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := r.db.SelectContext(ctx, dest, query, args...)
	if r.metrics != nil {
		r.metrics.ObserveDBQuery(label, time.Since(start))
	}
	return err
}
