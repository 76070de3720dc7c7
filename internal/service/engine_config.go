package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/sma-timetable-api/internal/engine"
	"github.com/noah-isme/sma-timetable-api/internal/engine/genetic"
	"github.com/noah-isme/sma-timetable-api/internal/engine/objective"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

// EngineConfig resolves the engine configuration for profile. An empty
// profile uses the configured one. Non-zero scheduler settings override the
// profile defaults.
func EngineConfig(sc config.SchedulerConfig, profile string) (engine.Config, error) {
	if profile == "" {
		profile = sc.Profile
	}
	search, err := genetic.ProfileConfig(profile)
	if err != nil {
		return engine.Config{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown search profile")
	}
	cfg := engine.DefaultConfig()

	setInt(&search.PopulationSize, sc.PopulationSize)
	setInt(&search.TournamentSize, sc.TournamentSize)
	setFloat(&search.CrossoverRate, sc.CrossoverRate)
	setFloat(&search.MutationRate, sc.MutationRate)
	setInt(&search.Elitism, sc.Elitism)
	setInt(&search.MaxGenerations, sc.MaxGenerations)
	setInt(&search.StagnationLimit, sc.StagnationLimit)
	setInt(&search.MaxIterations, sc.MaxIterations)
	setFloat(&search.TargetFitness, sc.TargetFitness)
	setInt(&search.Tabu.Tenure, sc.TabuTenure)
	setInt(&search.Tabu.MaxIterations, sc.TabuIterations)
	setInt(&search.Workers, sc.Workers)
	if sc.Repair != nil {
		search.Repair = *sc.Repair
	}
	switch strings.ToLower(sc.MutationScope) {
	case "":
	case string(genetic.MutateIndividual):
		search.MutationScope = genetic.MutateIndividual
	case string(genetic.MutateGroup):
		search.MutationScope = genetic.MutateGroup
	default:
		return engine.Config{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown mutation scope %q", sc.MutationScope))
	}
	cfg.Search = search

	w := &cfg.Objective.Weights
	setFloat(&w.Hard, sc.HardWeight)
	setFloat(&w.Clumping, sc.ClumpingWeight)
	setFloat(&w.MorningBalance, sc.MorningWeight)
	setFloat(&w.Fatigue, sc.FatigueWeight)
	setFloat(&w.SectionGaps, sc.GapWeight)
	setFloat(&w.SubjectDistribution, sc.DistributionWeight)
	setFloat(&w.WorkloadBalance, sc.BalanceWeight)
	setFloat(&w.LabDay, sc.LabDayWeight)
	switch objective.WorkloadMode(strings.ToLower(sc.WorkloadMode)) {
	case "":
	case objective.WorkloadPerFaculty:
		cfg.Objective.WorkloadMode = objective.WorkloadPerFaculty
	case objective.WorkloadMagnitude:
		cfg.Objective.WorkloadMode = objective.WorkloadMagnitude
	default:
		return engine.Config{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown workload mode %q", sc.WorkloadMode))
	}

	if sc.SingleInstructorLab != nil {
		cfg.Builder.SingleInstructorLabs = sc.SingleInstructorLab
	}
	setInt(&cfg.Builder.LabFaculty, sc.LabFaculty)
	cfg.Builder.LabFacultyFromBatches = sc.LabFacultyBatches

	if err := cfg.Validate(); err != nil {
		return engine.Config{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scheduler configuration")
	}
	return cfg, nil
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}
