// Reachout keeps personal relationships from drifting: it reconciles missed
// contacts every day, then generates AI reconnection suggestions for everyone
// coming due, in rate-limited batches with a per-day idempotency ledger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reachout/reachout/internal/api"
	"github.com/reachout/reachout/internal/batch"
	"github.com/reachout/reachout/internal/genai"
	"github.com/reachout/reachout/internal/lockfile"
	"github.com/reachout/reachout/internal/models"
	"github.com/reachout/reachout/internal/scheduler"
	"github.com/reachout/reachout/internal/store"
	"github.com/reachout/reachout/internal/util"
)

const (
	defaultStateDir = "/var/lib/reachout"
	defaultSchedule = "0 4 * * *"
	defaultAPIAddr  = ":8080"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := run(config, flags); err != nil {
		slog.Error("Reachout failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Reachout exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	StateDir    string
	OpenAIKey   string
	APIAddr     string
	DailyCron   string
	Timezone    string
	Batch       models.BatchConfig
}

// Flags holds command line flag values
type Flags struct {
	once      *bool
	stateDir  *string
	dbDSN     *string
	openaiKey *string
	apiAddr   *string
	schedule  *string
	timezone  *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	defaults := models.DefaultBatchConfig()
	batchCfg := models.BatchConfig{
		BatchSize:            util.ParseIntEnv("BATCH_SIZE", defaults.BatchSize),
		DelayBetweenBatches:  util.ParseMillisEnv("DELAY_BETWEEN_BATCHES", defaults.DelayBetweenBatches),
		DelayBetweenContacts: util.ParseMillisEnv("DELAY_BETWEEN_CONTACTS", defaults.DelayBetweenContacts),
		MaxContactsPerRun:    util.ParseIntEnv("MAX_CONTACTS_PER_RUN", defaults.MaxContactsPerRun),
		RetryAttempts:        util.ParseIntEnv("RETRY_ATTEMPTS", defaults.RetryAttempts),
		RetryDelay:           util.ParseMillisEnv("RETRY_DELAY", defaults.RetryDelay),
		MaxRetryDelay:        util.ParseMillisEnv("MAX_RETRY_DELAY", defaults.MaxRetryDelay),
		BackoffMultiplier:    util.ParseFloatEnv("BACKOFF_MULTIPLIER", defaults.BackoffMultiplier),
		RateLimitStatusCodes: defaults.RateLimitStatusCodes,
	}

	return Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StateDir:    os.Getenv("REACHOUT_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		APIAddr:     os.Getenv("API_ADDR"),
		DailyCron:   os.Getenv("DAILY_SCHEDULE"),
		Timezone:    os.Getenv("TIMEZONE"),
		Batch:       batchCfg,
	}
}

// parseCommandLineFlags parses flags, using environment values as defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		once:      flag.Bool("once", false, "run the daily pipeline once and exit instead of running as a daemon"),
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for Reachout data (overrides $REACHOUT_STATE_DIR)"),
		dbDSN:     flag.String("db-dsn", config.DatabaseURL, "database DSN, PostgreSQL URL or SQLite path (overrides $DATABASE_URL)"),
		openaiKey: flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		schedule:  flag.String("schedule", config.DailyCron, "cron schedule for the daily run (overrides $DAILY_SCHEDULE)"),
		timezone:  flag.String("timezone", config.Timezone, "IANA timezone anchoring the daily run (overrides $TIMEZONE)"),
	}
	flag.Parse()

	if *flags.stateDir == "" {
		*flags.stateDir = defaultStateDir
	}
	if *flags.apiAddr == "" {
		*flags.apiAddr = defaultAPIAddr
	}
	if *flags.schedule == "" {
		*flags.schedule = defaultSchedule
	}
	return flags
}

// ensureDirectoriesExist creates the state directory if needed
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(*flags.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", *flags.stateDir, err)
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) (string, []store.Option) {
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgres")
			return "postgres", []store.Option{store.WithPostgresDSN(*flags.dbDSN)}
		}
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
		return "sqlite", []store.Option{store.WithSQLiteDSN(*flags.dbDSN)}
	}
	dbPath := filepath.Join(*flags.stateDir, "reachout.db")
	slog.Debug("No database DSN provided, using SQLite in state directory", "db_path", dbPath)
	return "sqlite", []store.Option{store.WithSQLiteDSN(dbPath)}
}

// buildGenAIOptions constructs suggestion client configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// openStore opens the configured backing store
func openStore(flags Flags) (store.Store, error) {
	driver, storeOpts := buildStoreOptions(flags)
	switch driver {
	case "postgres":
		return store.NewPostgresStore(storeOpts...)
	default:
		return store.NewSQLiteStore(storeOpts...)
	}
}

func run(config Config, flags Flags) error {
	loc := time.UTC
	if *flags.timezone != "" {
		parsed, err := time.LoadLocation(*flags.timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", *flags.timezone, err)
		}
		loc = parsed
	}

	if err := config.Batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch configuration: %w", err)
	}

	st, err := openStore(flags)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	suggester, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return fmt.Errorf("failed to create suggestion client: %w", err)
	}

	pipeline := batch.NewPipeline(st, suggester, config.Batch, loc)

	if *flags.once {
		return runOnce(pipeline, loc)
	}
	return runDaemon(pipeline, st, flags, loc)
}

// runOnce executes a single pipeline run and prints the summary as JSON.
func runOnce(pipeline *batch.Pipeline, loc *time.Location) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.RunDaily(ctx, time.Now().In(loc))
	if err != nil {
		return fmt.Errorf("daily run failed: %w", err)
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// runDaemon schedules the daily run and serves the API until interrupted.
func runDaemon(pipeline *batch.Pipeline, st store.Store, flags Flags, loc *time.Location) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	sched := scheduler.NewScheduler(loc)
	defer sched.Stop()
	err = sched.AddJob(*flags.schedule, func() {
		// Daily runs get a generous deadline so a stalled provider cannot
		// wedge the scheduler slot for the next day.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()
		if _, err := pipeline.RunDaily(ctx, time.Now().In(loc)); err != nil {
			slog.Error("Scheduled daily run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid daily schedule %q: %w", *flags.schedule, err)
	}

	srv := api.NewServer(pipeline, st, api.WithAddr(*flags.apiAddr), api.WithTimezone(loc))
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	slog.Info("Reachout daemon running", "schedule", *flags.schedule, "timezone", loc.String(), "api_addr", *flags.apiAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
