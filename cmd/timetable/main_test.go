package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
)

func writeCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		repository.FacultyFile:  "id,name,total_credits,research_credits,subjects\nF1,Alice,18,0,MATH;UNIX_L\nF2,Bob,18,0,PHY;UNIX_L\n",
		repository.SubjectsFile: "name,code,type,credits\nMaths,MATH,Theory,3\nPhysics,PHY,Theory,2\nUnix Lab,UNIX_L,Lab,1\n",
		repository.SectionsFile: "id,name,batches\nS1,CSE-A,\n",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func testConfig() *config.Config {
	return &config.Config{
		Env: config.EnvDevelopment,
		Scheduler: config.SchedulerConfig{
			Profile:        "steady-state",
			PopulationSize: 12,
			MaxIterations:  40,
			MaxGenerations: 5,
		},
	}
}

func TestRunWritesExports(t *testing.T) {
	out := filepath.Join(t.TempDir(), "exports")
	err := run(context.Background(), testConfig(), zap.NewNop(), runOptions{
		source:  config.CatalogCSV,
		dir:     writeCatalog(t),
		seed:    3,
		outDir:  out,
		formats: "csv, sessions,pdf",
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"timetable_3_csv.csv", "timetable_3_sessions.csv", "timetable_3_pdf.pdf"}, names)
}

func TestRunRejectsUnknownInputs(t *testing.T) {
	err := run(context.Background(), testConfig(), zap.NewNop(), runOptions{source: "ftp"})
	assert.ErrorContains(t, err, "unknown catalog source")

	err = run(context.Background(), testConfig(), zap.NewNop(), runOptions{
		source:  config.CatalogCSV,
		dir:     writeCatalog(t),
		seed:    1,
		outDir:  t.TempDir(),
		formats: "xlsx",
	})
	assert.ErrorContains(t, err, "unsupported format")

	err = run(context.Background(), testConfig(), zap.NewNop(), runOptions{source: config.CatalogCSV, dir: t.TempDir()})
	assert.ErrorContains(t, err, "load catalog")
}
