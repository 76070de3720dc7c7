package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Catalog sources.
const (
	CatalogNone     = "none"
	CatalogCSV      = "csv"
	CatalogPostgres = "postgres"
)

// Run store backends.
const (
	RunStoreMemory = "memory"
	RunStoreRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Catalog   CatalogConfig
	Scheduler SchedulerConfig
	Runs      RunsConfig
	Exports   ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	// AutoMigrate applies the embedded catalog schema on start.
	AutoMigrate bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig guards run creation when Enabled.
type JWTConfig struct {
	Enabled bool
	Secret  string
	Issuer  string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CatalogConfig selects where server-side runs read faculty, subjects and sections.
type CatalogConfig struct {
	Source       string
	CSVDir       string
	CSVDelimiter rune
}

// SchedulerConfig tunes the engine. Zero search values fall back to the
// selected profile.
type SchedulerConfig struct {
	Profile         string
	PopulationSize  int
	TournamentSize  int
	CrossoverRate   float64
	MutationRate    float64
	MutationScope   string
	Elitism         int
	MaxGenerations  int
	StagnationLimit int
	MaxIterations   int
	TargetFitness   float64
	// Repair is nil when the profile decides.
	Repair         *bool
	TabuTenure     int
	TabuIterations int
	Workers        int

	HardWeight          float64
	ClumpingWeight      float64
	MorningWeight       float64
	FatigueWeight       float64
	GapWeight           float64
	DistributionWeight  float64
	BalanceWeight       float64
	LabDayWeight        float64
	WorkloadMode        string
	SingleInstructorLab []string
	LabFaculty          int
	LabFacultyBatches   bool

	RunTimeout time.Duration
}

// RunsConfig configures asynchronous generation runs.
type RunsConfig struct {
	Store      string
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	BufferSize int
	ResultTTL  time.Duration
}

// ExportsConfig configures timetable export files.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Enabled: v.GetBool("AUTH_ENABLED"),
		Secret:  v.GetString("JWT_SECRET"),
		Issuer:  v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Catalog = CatalogConfig{
		Source:       strings.ToLower(v.GetString("CATALOG_SOURCE")),
		CSVDir:       v.GetString("CATALOG_CSV_DIR"),
		CSVDelimiter: parseDelimiter(v.GetString("CATALOG_CSV_DELIMITER"), ','),
	}

	cfg.Scheduler = SchedulerConfig{
		Profile:             v.GetString("SCHEDULER_PROFILE"),
		PopulationSize:      v.GetInt("SCHEDULER_POPULATION_SIZE"),
		TournamentSize:      v.GetInt("SCHEDULER_TOURNAMENT_SIZE"),
		CrossoverRate:       v.GetFloat64("SCHEDULER_CROSSOVER_RATE"),
		MutationRate:        v.GetFloat64("SCHEDULER_MUTATION_RATE"),
		MutationScope:       v.GetString("SCHEDULER_MUTATION_SCOPE"),
		Elitism:             v.GetInt("SCHEDULER_ELITISM"),
		MaxGenerations:      v.GetInt("SCHEDULER_MAX_GENERATIONS"),
		StagnationLimit:     v.GetInt("SCHEDULER_STAGNATION_LIMIT"),
		MaxIterations:       v.GetInt("SCHEDULER_MAX_ITERATIONS"),
		TargetFitness:       v.GetFloat64("SCHEDULER_TARGET_FITNESS"),
		TabuTenure:          v.GetInt("SCHEDULER_TABU_TENURE"),
		TabuIterations:      v.GetInt("SCHEDULER_TABU_ITERATIONS"),
		Workers:             v.GetInt("SCHEDULER_WORKERS"),
		HardWeight:          v.GetFloat64("SCHEDULER_HARD_WEIGHT"),
		ClumpingWeight:      v.GetFloat64("SCHEDULER_WEIGHT_CLUMPING"),
		MorningWeight:       v.GetFloat64("SCHEDULER_WEIGHT_MORNING"),
		FatigueWeight:       v.GetFloat64("SCHEDULER_WEIGHT_FATIGUE"),
		GapWeight:           v.GetFloat64("SCHEDULER_WEIGHT_GAPS"),
		DistributionWeight:  v.GetFloat64("SCHEDULER_WEIGHT_DISTRIBUTION"),
		BalanceWeight:       v.GetFloat64("SCHEDULER_WEIGHT_BALANCE"),
		LabDayWeight:        v.GetFloat64("SCHEDULER_WEIGHT_LAB_DAY"),
		WorkloadMode:        v.GetString("SCHEDULER_WORKLOAD_MODE"),
		SingleInstructorLab: splitAndTrim(v.GetString("SCHEDULER_SINGLE_INSTRUCTOR_LABS")),
		LabFaculty:          v.GetInt("SCHEDULER_LAB_FACULTY"),
		LabFacultyBatches:   v.GetBool("SCHEDULER_LAB_FACULTY_FROM_BATCHES"),
		RunTimeout:          parseDuration(v.GetString("SCHEDULER_RUN_TIMEOUT"), 2*time.Minute),
	}
	if v.IsSet("SCHEDULER_REPAIR") {
		repair := v.GetBool("SCHEDULER_REPAIR")
		cfg.Scheduler.Repair = &repair
	}

	cfg.Runs = RunsConfig{
		Store:      strings.ToLower(v.GetString("RUN_STORE")),
		Workers:    v.GetInt("RUNS_WORKERS"),
		MaxRetries: v.GetInt("RUNS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("RUNS_RETRY_DELAY"), 2*time.Second),
		BufferSize: v.GetInt("RUNS_BUFFER_SIZE"),
		ResultTTL:  parseDuration(v.GetString("RUNS_RESULT_TTL"), 6*time.Hour),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval: parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("AUTH_ENABLED", false)
	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CATALOG_SOURCE", CatalogNone)
	v.SetDefault("CATALOG_CSV_DIR", "./data")
	v.SetDefault("CATALOG_CSV_DELIMITER", ",")

	v.SetDefault("SCHEDULER_PROFILE", "steady-state")
	v.SetDefault("SCHEDULER_MUTATION_SCOPE", "")
	v.SetDefault("SCHEDULER_HARD_WEIGHT", 100)
	v.SetDefault("SCHEDULER_WEIGHT_CLUMPING", 1)
	v.SetDefault("SCHEDULER_WEIGHT_MORNING", 1)
	v.SetDefault("SCHEDULER_WEIGHT_FATIGUE", 1)
	v.SetDefault("SCHEDULER_WEIGHT_GAPS", 1)
	v.SetDefault("SCHEDULER_WEIGHT_DISTRIBUTION", 1)
	v.SetDefault("SCHEDULER_WEIGHT_BALANCE", 0.05)
	v.SetDefault("SCHEDULER_WEIGHT_LAB_DAY", 1)
	v.SetDefault("SCHEDULER_WORKLOAD_MODE", "per-faculty")
	v.SetDefault("SCHEDULER_SINGLE_INSTRUCTOR_LABS", "UNIX_L,WEB_L")
	v.SetDefault("SCHEDULER_LAB_FACULTY", 4)
	v.SetDefault("SCHEDULER_LAB_FACULTY_FROM_BATCHES", false)
	v.SetDefault("SCHEDULER_RUN_TIMEOUT", "2m")

	v.SetDefault("RUN_STORE", RunStoreMemory)
	v.SetDefault("RUNS_WORKERS", 2)
	v.SetDefault("RUNS_MAX_RETRIES", 1)
	v.SetDefault("RUNS_RETRY_DELAY", "2s")
	v.SetDefault("RUNS_BUFFER_SIZE", 32)
	v.SetDefault("RUNS_RESULT_TTL", "6h")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func parseDelimiter(raw string, fallback rune) rune {
	switch raw {
	case "":
		return fallback
	case `\t`, "tab":
		return '\t'
	}
	return []rune(raw)[0]
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
