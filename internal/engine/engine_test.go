package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func smallCatalog() models.Catalog {
	return models.Catalog{
		Faculty: []models.Faculty{
			{ID: "F1", Name: "Alice", TotalCredits: 16, ResearchCredits: 2, Subjects: []string{"MATH", "UNIX_L"}},
			{ID: "F2", Name: "Bob", TotalCredits: 16, Subjects: []string{"PHY", "UNIX_L"}},
		},
		Subjects: []models.Subject{
			{Code: "MATH", Name: "Maths", Credits: 3},
			{Code: "PHY", Name: "Physics", Credits: 2},
			{Code: "UNIX_L", Name: "Unix Lab", Lab: true, Credits: 1},
		},
		Sections: []models.Section{{ID: "S1", Name: "A"}, {ID: "S2", Name: "B"}},
	}
}

func TestGeneratorProducesCompleteSchedule(t *testing.T) {
	g, err := NewGenerator(DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), smallCatalog(), 17)
	require.NoError(t, err)
	assert.Equal(t, int64(17), out.Seed)
	// two sections x (3 + 2 theory hours + 2 lab hours)
	assert.Equal(t, 14, out.Schedule.Len())
	assert.True(t, out.Schedule.Complete())
	assert.Equal(t, 0, out.Evaluation.Hard)
}

func TestGeneratorReplaysSeed(t *testing.T) {
	g, err := NewGenerator(DefaultConfig(), nil)
	require.NoError(t, err)

	a, err := g.Generate(context.Background(), smallCatalog(), 4)
	require.NoError(t, err)
	b, err := g.Generate(context.Background(), smallCatalog(), 4)
	require.NoError(t, err)
	for i := 0; i < a.Schedule.Len(); i++ {
		assert.Equal(t, a.Schedule.SlotAt(i), b.Schedule.SlotAt(i))
	}
}

func TestGeneratorFailsFastOnConfigurationErrors(t *testing.T) {
	g, err := NewGenerator(DefaultConfig(), nil)
	require.NoError(t, err)

	catalog := smallCatalog()
	catalog.Subjects = append(catalog.Subjects, models.Subject{Code: "BIO", Name: "Biology", Credits: 2})

	out, err := g.Generate(context.Background(), catalog, 1)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, appErrors.ErrNoEligibleFaculty))
}

func TestConfigValidateNamesComponent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Search.PopulationSize = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search:")
}
