// Command timetable generates a weekly timetable from a catalog on disk or in
// Postgres, prints the constraint report and writes the requested exports.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/engine"
	"github.com/noah-isme/sma-timetable-api/internal/engine/objective"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var (
		source    string
		dir       string
		delimiter string
		profile   string
		seed      int64
		timeout   time.Duration
		outDir    string
		formats   string
		subject   string
	)
	flag.StringVar(&source, "source", config.CatalogCSV, "Catalog source: csv or postgres")
	flag.StringVar(&dir, "dir", cfg.Catalog.CSVDir, "Directory holding faculty.csv, subjects.csv and sections.csv")
	flag.StringVar(&delimiter, "delimiter", string(cfg.Catalog.CSVDelimiter), "CSV field delimiter")
	flag.StringVar(&profile, "profile", cfg.Scheduler.Profile, "Search profile: steady-state or generational")
	flag.Int64Var(&seed, "seed", 0, "Random seed; 0 draws one from the clock")
	flag.DurationVar(&timeout, "timeout", cfg.Scheduler.RunTimeout, "Wall-clock limit of the search; 0 disables it")
	flag.StringVar(&outDir, "out", "", "Directory for exports; empty skips writing files")
	flag.StringVar(&formats, "formats", "csv,pdf", "Comma separated export formats: csv, pdf, sessions")
	flag.StringVar(&subject, "issue-token", "", "Print a bearer token for this subject and exit")
	flag.Parse()

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if subject != "" {
		if err := issueToken(cfg, subject, logr); err != nil {
			log.Fatalf("issue token: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := run(ctx, cfg, logr, runOptions{
		source:    source,
		dir:       dir,
		delimiter: delimiter,
		profile:   profile,
		seed:      seed,
		outDir:    outDir,
		formats:   formats,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "timetable: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	source    string
	dir       string
	delimiter string
	profile   string
	seed      int64
	outDir    string
	formats   string
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger, opts runOptions) error {
	loader, closeFn, err := openCatalog(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	catalog, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	engineCfg, err := service.EngineConfig(cfg.Scheduler, opts.profile)
	if err != nil {
		return err
	}
	gen, err := engine.NewGenerator(engineCfg, logr)
	if err != nil {
		return err
	}

	out, err := gen.Generate(ctx, catalog, opts.seed)
	if out == nil {
		return fmt.Errorf("generate: %w", err)
	}
	if err != nil {
		logr.Warn("search interrupted, keeping the best schedule", zap.Error(err))
	}

	fmt.Printf("seed=%d generations=%d evaluations=%d repairs=%d stop=%s duration=%s\n",
		out.Seed, out.Generations, out.Evaluations, out.Repairs, out.Reason, out.Duration.Round(time.Millisecond))
	fmt.Print(gen.Evaluator().Report(out.Schedule).String())
	for _, load := range objective.Workload(out.Schedule) {
		fmt.Printf("%-12s %-24s %5.1f/%-3d %3d units\n", load.FacultyID, load.Name, load.Credits, load.MaxCredits, load.Units)
	}

	if opts.outDir == "" {
		return nil
	}
	return writeExports(opts.outDir, opts.formats, out)
}

func openCatalog(ctx context.Context, cfg *config.Config, opts runOptions) (service.CatalogLoader, func(), error) {
	switch strings.ToLower(opts.source) {
	case config.CatalogCSV:
		comma := ','
		if opts.delimiter != "" {
			comma = []rune(opts.delimiter)[0]
		}
		return repository.NewCSVCatalogLoader(opts.dir, comma), func() {}, nil
	case config.CatalogPostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewCatalogRepository(db, nil), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog source %q", opts.source)
	}
}

func writeExports(dir, formats string, out *engine.Outcome) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	csv := export.NewCSVExporter(',')
	pdf := export.NewPDFExporter()
	for _, format := range strings.Split(formats, ",") {
		format = strings.TrimSpace(strings.ToLower(format))
		if format == "" {
			continue
		}
		data, err := service.Render(csv, pdf, format, out.Schedule)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("timetable_%d_%s.%s", out.Seed, format, service.FileExtension(format))
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
	}
	return nil
}

func issueToken(cfg *config.Config, subject string, logr *zap.Logger) error {
	auth, err := service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}, logr)
	if err != nil {
		return err
	}
	token, expires, err := auth.IssueToken(subject, subject)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}
