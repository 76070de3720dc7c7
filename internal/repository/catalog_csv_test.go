package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func writeCatalog(t *testing.T, faculty, subjects, sections string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FacultyFile), []byte(faculty), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SubjectsFile), []byte(subjects), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SectionsFile), []byte(sections), 0o600))
	return dir
}

const (
	facultyCSV = "id,name,total_credits,research_credits,subjects\n" +
		"F1,Alice,16,2,MATH;UNIX_L\n" +
		"F2,Bob,14,0,PHY; UNIX_L\n"
	subjectsCSV = "name,code,type,credits\n" +
		"Maths,MATH,Theory,3\n" +
		"Physics,PHY,theory,2\n" +
		"Unix Lab,UNIX_L,Lab,1\n"
	sectionsCSV = "id,name,batches\n" +
		"S1,CSE-A,2\n" +
		"S2,CSE-B,\n"
)

func TestCSVCatalogLoaderLoad(t *testing.T) {
	dir := writeCatalog(t, facultyCSV, subjectsCSV, sectionsCSV)

	catalog, err := NewCSVCatalogLoader(dir, 0).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, catalog.Faculty, 2)
	assert.Equal(t, "Alice", catalog.Faculty[0].Name)
	assert.Equal(t, 14, catalog.Faculty[0].MaxTeachingCredits())
	assert.Equal(t, []string{"PHY", "UNIX_L"}, catalog.Faculty[1].Subjects)

	require.Len(t, catalog.Subjects, 3)
	assert.False(t, catalog.Subjects[1].Lab)
	assert.True(t, catalog.Subjects[2].Lab)
	assert.Equal(t, 2, catalog.Subjects[2].ContactHours())

	require.Len(t, catalog.Sections, 2)
	assert.Equal(t, 2, catalog.Sections[0].Batches)
	assert.Equal(t, 0, catalog.Sections[1].Batches)
}

func TestCSVCatalogLoaderDelimiter(t *testing.T) {
	dir := writeCatalog(t,
		"id;name;total_credits;research_credits;subjects\nF1;Alice;16;2;MATH\n",
		"name;code;type;credits\nMaths;MATH;Theory;3\n",
		"id;name;batches\nS1;CSE-A;1\n",
	)

	catalog, err := NewCSVCatalogLoader(dir, ';').Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"MATH"}, catalog.Faculty[0].Subjects)
}

func TestCSVCatalogLoaderRejectsBadRows(t *testing.T) {
	cases := []struct {
		name     string
		faculty  string
		subjects string
		contains string
	}{
		{
			name:     "missing column",
			faculty:  "id,name,total_credits,research_credits,subjects\nF1,Alice,16\n",
			subjects: subjectsCSV,
			contains: "faculty.csv line 2",
		},
		{
			name:     "empty name",
			faculty:  "id,name,total_credits,research_credits,subjects\nF1,,16,0,MATH\n",
			subjects: subjectsCSV,
			contains: "faculty.csv row 1",
		},
		{
			name:     "research exceeds total",
			faculty:  "id,name,total_credits,research_credits,subjects\nF1,Alice,4,6,MATH\n",
			subjects: subjectsCSV,
			contains: "faculty.csv row 1",
		},
		{
			name:     "unknown type",
			faculty:  facultyCSV,
			subjects: "name,code,type,credits\nMaths,MATH,Seminar,3\n",
			contains: `unknown subject type "Seminar"`,
		},
		{
			name:     "duplicate code",
			faculty:  facultyCSV,
			subjects: "name,code,type,credits\nMaths,MATH,Theory,3\nMore Maths,MATH,Theory,2\n",
			contains: `subjects.csv row 2: duplicate key "MATH"`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeCatalog(t, tc.faculty, tc.subjects, sectionsCSV)
			_, err := NewCSVCatalogLoader(dir, ',').Load(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation))
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestCSVCatalogLoaderMissingFile(t *testing.T) {
	_, err := NewCSVCatalogLoader(t.TempDir(), ',').Load(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestSplitSubjects(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, SplitSubjects(" A ;; B;"))
	assert.Nil(t, SplitSubjects(""))
}
