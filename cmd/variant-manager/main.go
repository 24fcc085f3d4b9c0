// Package main implements the image variant management daemon and CLI.
//
// The worker command hosts the durable variant workflows; process submits an
// original image for variant generation; the db-* commands manage the schema
// migration lifecycle.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	_ "modernc.org/sqlite" // SQLite driver for the db-* commands

	"github.com/superfly/variants"
	"github.com/superfly/variants/database"
	"github.com/superfly/variants/migrate"
	"github.com/superfly/variants/storage"
	"github.com/superfly/variants/transform"
	"github.com/superfly/variants/workflow"
)

// Config holds application configuration.
type Config struct {
	// S3 Configuration
	S3Bucket   string
	S3Region   string
	S3Endpoint string

	// Database Configuration
	DBPath string

	// Temporal Configuration
	TemporalHostPort  string
	TemporalNamespace string

	// SMTP Configuration
	SMTPAddr string
	SMTPFrom string

	// Metrics Configuration
	MetricsAddr string

	// Logging
	LogLevel string

	// Command-specific flags
	FilePath  string
	Field     string
	Kind      string
	KindID    string
	SpecsJSON string
	SetID     string
	Key       string
	Limit     int
	Count     int
	Name      string
	Dir       string
	To        string
	Subject   string
	Body      string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		S3Bucket:          "variant-images",
		S3Region:          "us-east-1",
		DBPath:            "/var/lib/variants/variants.db",
		TemporalHostPort:  "localhost:7233",
		TemporalNamespace: "default",
		SMTPAddr:          "localhost:25",
		SMTPFrom:          "no-reply@variants.local",
		MetricsAddr:       ":9090",
		LogLevel:          "info",
		Limit:             50,
		Count:             1,
		Dir:               "database/migrations",
	}
}

var (
	// Global logger
	log = logrus.New()

	// Command flags
	workerCmd     = flag.NewFlagSet("worker", flag.ExitOnError)
	processCmd    = flag.NewFlagSet("process", flag.ExitOnError)
	listSetsCmd   = flag.NewFlagSet("list-sets", flag.ExitOnError)
	getSetCmd     = flag.NewFlagSet("get-set", flag.ExitOnError)
	presignCmd    = flag.NewFlagSet("presign", flag.ExitOnError)
	notifyCmd     = flag.NewFlagSet("notify", flag.ExitOnError)
	dbMigrateCmd  = flag.NewFlagSet("db-migrate", flag.ExitOnError)
	dbRollbackCmd = flag.NewFlagSet("db-rollback", flag.ExitOnError)
	dbStatusCmd   = flag.NewFlagSet("db-status", flag.ExitOnError)
	dbGenerateCmd = flag.NewFlagSet("db-generate", flag.ExitOnError)
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	config := DefaultConfig()

	switch os.Args[1] {
	case "worker":
		parseWorkerFlags(&config, workerCmd, os.Args[2:])
		if err := runWorker(config); err != nil {
			log.WithError(err).Fatal("worker failed")
		}
	case "process":
		parseProcessFlags(&config, processCmd, os.Args[2:])
		if err := runProcess(config); err != nil {
			log.WithError(err).Fatal("failed to process image")
		}
	case "list-sets":
		parseListSetsFlags(&config, listSetsCmd, os.Args[2:])
		if err := runListSets(config); err != nil {
			log.WithError(err).Fatal("failed to list variant sets")
		}
	case "get-set":
		parseGetSetFlags(&config, getSetCmd, os.Args[2:])
		if err := runGetSet(config); err != nil {
			log.WithError(err).Fatal("failed to get variant set")
		}
	case "presign":
		parsePresignFlags(&config, presignCmd, os.Args[2:])
		if err := runPresign(config); err != nil {
			log.WithError(err).Fatal("failed to presign")
		}
	case "notify":
		parseNotifyFlags(&config, notifyCmd, os.Args[2:])
		if err := runNotify(config); err != nil {
			log.WithError(err).Fatal("failed to send notification")
		}
	case "db-migrate":
		parseDBFlags(&config, dbMigrateCmd, os.Args[2:])
		if err := runDBMigrate(config); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
	case "db-rollback":
		dbRollbackCmd.IntVar(&config.Count, "count", config.Count, "Number of migrations to roll back")
		parseDBFlags(&config, dbRollbackCmd, os.Args[2:])
		if err := runDBRollback(config); err != nil {
			log.WithError(err).Fatal("rollback failed")
		}
	case "db-status":
		parseDBFlags(&config, dbStatusCmd, os.Args[2:])
		if err := runDBStatus(config); err != nil {
			log.WithError(err).Fatal("status failed")
		}
	case "db-generate":
		parseDBGenerateFlags(&config, dbGenerateCmd, os.Args[2:])
		if err := runDBGenerate(config); err != nil {
			log.WithError(err).Fatal("generate failed")
		}
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Image Variant Management System")
	fmt.Println()
	fmt.Println("Usage: variant-manager <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  worker        Run the variant processing worker")
	fmt.Println("  process       Submit an original image for variant generation")
	fmt.Println("  list-sets     List recent variant sets")
	fmt.Println("  get-set       Show one variant set and its results")
	fmt.Println("  presign       Print a time-limited download URL for a storage key")
	fmt.Println("  notify        Send a notification email through the workflow")
	fmt.Println("  db-migrate    Apply pending schema migrations")
	fmt.Println("  db-rollback   Roll back applied migrations (newest first)")
	fmt.Println("  db-status     Show applied/pending migrations")
	fmt.Println("  db-generate   Generate a new migration file skeleton")
	fmt.Println()
	fmt.Println("Run 'variant-manager <command> --help' for more information on a command.")
}

func addCommonFlags(cfg *Config, fs *flag.FlagSet) {
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
}

func addTemporalFlags(cfg *Config, fs *flag.FlagSet) {
	fs.StringVar(&cfg.TemporalHostPort, "temporal", cfg.TemporalHostPort, "Temporal frontend host:port")
	fs.StringVar(&cfg.TemporalNamespace, "namespace", cfg.TemporalNamespace, "Temporal namespace")
}

func addStorageFlags(cfg *Config, fs *flag.FlagSet) {
	fs.StringVar(&cfg.S3Bucket, "bucket", cfg.S3Bucket, "S3 bucket name")
	fs.StringVar(&cfg.S3Region, "region", cfg.S3Region, "S3 region")
	fs.StringVar(&cfg.S3Endpoint, "endpoint", cfg.S3Endpoint, "S3 endpoint override (for MinIO)")
}

// parseWorkerFlags parses flags for the worker command.
func parseWorkerFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	addCommonFlags(cfg, fs)
	addTemporalFlags(cfg, fs)
	addStorageFlags(cfg, fs)
	fs.StringVar(&cfg.SMTPAddr, "smtp", cfg.SMTPAddr, "SMTP relay host:port")
	fs.StringVar(&cfg.SMTPFrom, "smtp-from", cfg.SMTPFrom, "Sender address for notification mail")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics listen address")
	fs.Parse(args)
}

// parseProcessFlags parses flags for the process command.
func parseProcessFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	addCommonFlags(cfg, fs)
	addTemporalFlags(cfg, fs)
	addStorageFlags(cfg, fs)
	fs.StringVar(&cfg.FilePath, "file", "", "Path to the original image (required)")
	fs.StringVar(&cfg.Field, "field", "image", "Attachment field name, used in the workflow id")
	fs.StringVar(&cfg.Kind, "kind", "", "Correlation kind tag")
	fs.StringVar(&cfg.KindID, "kind-id", "", "Correlation kind id")
	fs.StringVar(&cfg.SpecsJSON, "specs", "", "Variant specs as a JSON array (required)")
	fs.Parse(args)

	if cfg.FilePath == "" {
		fmt.Println("Error: --file is required")
		fs.Usage()
		os.Exit(1)
	}
	if cfg.SpecsJSON == "" {
		fmt.Println("Error: --specs is required")
		fs.Usage()
		os.Exit(1)
	}
}

// parseListSetsFlags parses flags for the list-sets command.
func parseListSetsFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	addCommonFlags(cfg, fs)
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "Maximum number of sets to list")
	fs.Parse(args)
}

// parseGetSetFlags parses flags for the get-set command.
func parseGetSetFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	addCommonFlags(cfg, fs)
	fs.StringVar(&cfg.SetID, "id", "", "Variant set id (required)")
	fs.Parse(args)

	if cfg.SetID == "" {
		fmt.Println("Error: --id is required")
		fs.Usage()
		os.Exit(1)
	}
}

// parsePresignFlags parses flags for the presign command.
func parsePresignFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	addCommonFlags(cfg, fs)
	addStorageFlags(cfg, fs)
	fs.StringVar(&cfg.Key, "key", "", "Storage key (required)")
	fs.Parse(args)

	if cfg.Key == "" {
		fmt.Println("Error: --key is required")
		fs.Usage()
		os.Exit(1)
	}
}

// parseNotifyFlags parses flags for the notify command.
func parseNotifyFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	addCommonFlags(cfg, fs)
	addTemporalFlags(cfg, fs)
	fs.StringVar(&cfg.To, "to", "", "Recipient address (required)")
	fs.StringVar(&cfg.Subject, "subject", "", "Mail subject")
	fs.StringVar(&cfg.Body, "body", "", "Mail body")
	fs.Parse(args)

	if cfg.To == "" {
		fmt.Println("Error: --to is required")
		fs.Usage()
		os.Exit(1)
	}
}

// parseDBFlags parses flags shared by the db-* commands.
func parseDBFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	addCommonFlags(cfg, fs)
	fs.Parse(args)
}

// parseDBGenerateFlags parses flags for the db-generate command.
func parseDBGenerateFlags(cfg *Config, fs *flag.FlagSet, args []string) {
	fs.StringVar(&cfg.Name, "name", "", "Migration name, e.g. add_widget_column (required)")
	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "Migrations directory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	fs.Parse(args)

	if cfg.Name == "" {
		fmt.Println("Error: --name is required")
		fs.Usage()
		os.Exit(1)
	}
}

// setupLogger configures the global logger.
func setupLogger(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// dialTemporal connects to the Temporal frontend, retrying with exponential
// backoff while the server comes up.
func dialTemporal(cfg Config) (client.Client, error) {
	var c client.Client
	operation := func() error {
		var err error
		c, err = client.Dial(client.Options{
			HostPort:  cfg.TemporalHostPort,
			Namespace: cfg.TemporalNamespace,
		})
		if err != nil {
			log.WithError(err).Warn("temporal not reachable, retrying")
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to connect to temporal at %s: %w", cfg.TemporalHostPort, err)
	}
	return c, nil
}

// runWorker hosts the variant workflows and activities.
func runWorker(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	ctx := context.Background()

	dbCfg := database.DefaultConfig()
	dbCfg.Path = cfg.DBPath
	dbCfg.Logger = log
	db, err := database.New(dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	storeCfg := storage.DefaultConfig()
	storeCfg.Bucket = cfg.S3Bucket
	storeCfg.Region = cfg.S3Region
	storeCfg.Endpoint = cfg.S3Endpoint
	blobs, err := storage.New(ctx, storeCfg)
	if err != nil {
		return err
	}
	blobs.SetLogger(log)

	sender := workflow.NewSMTPSender(workflow.SMTPConfig{
		Addr: cfg.SMTPAddr,
		From: cfg.SMTPFrom,
	})

	acts := workflow.NewActivities(db, blobs, transform.NewEngine(log), sender, log)

	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.WithError(err).Error("metrics server failed")
			}
		}()
		log.WithField("addr", cfg.MetricsAddr).Info("serving metrics")
	}

	log.WithFields(logrus.Fields{
		"task_queue": workflow.TaskQueue,
		"temporal":   cfg.TemporalHostPort,
		"bucket":     cfg.S3Bucket,
	}).Info("starting worker")

	w := workflow.NewWorker(c, acts, workflow.DefaultConfig())
	return w.Run(worker.InterruptCh())
}

// runProcess submits one original image for variant generation.
func runProcess(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	var specs []variants.VariantSpec
	if err := json.Unmarshal([]byte(cfg.SpecsJSON), &specs); err != nil {
		return fmt.Errorf("invalid --specs: %w", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		return err
	}

	ctx := context.Background()

	dbCfg := database.DefaultConfig()
	dbCfg.Path = cfg.DBPath
	dbCfg.Logger = log
	db, err := database.New(dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	storeCfg := storage.DefaultConfig()
	storeCfg.Bucket = cfg.S3Bucket
	storeCfg.Region = cfg.S3Region
	storeCfg.Endpoint = cfg.S3Endpoint
	blobs, err := storage.New(ctx, storeCfg)
	if err != nil {
		return err
	}
	blobs.SetLogger(log)

	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	svc := variants.NewService(db, blobs, workflow.NewStarter(c), log)
	set, workflowID, err := svc.CreateVariantSet(ctx, variants.Upload{
		Filename: cfg.FilePath,
		Data:     data,
		Field:    cfg.Field,
		Kind:     cfg.Kind,
		KindID:   cfg.KindID,
		Specs:    specs,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Variant set:  %s\n", set.ID)
	fmt.Printf("Original key: %s\n", set.OriginalKey)
	fmt.Printf("Workflow:     %s\n", workflowID)
	return nil
}

// runListSets prints recent variant sets.
func runListSets(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sets, err := db.ListVariantSets(context.Background(), cfg.Limit)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		fmt.Println("No variant sets found.")
		return nil
	}

	fmt.Printf("%-34s %-20s %-12s %s\n", "ID", "CREATED", "KIND", "ORIGINAL")
	for _, set := range sets {
		kind := set.Kind
		if set.KindID != "" {
			kind = fmt.Sprintf("%s/%s", set.Kind, set.KindID)
		}
		fmt.Printf("%-34s %-20s %-12s %s\n",
			set.ID, set.CreatedAt.Format(time.RFC3339), kind, set.OriginalKey)
	}
	return nil
}

// runGetSet prints one variant set and its results.
func runGetSet(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	set, err := db.GetVariantSet(ctx, cfg.SetID)
	if err != nil {
		return err
	}
	if set == nil {
		return fmt.Errorf("variant set %s not found", cfg.SetID)
	}

	fmt.Printf("ID:           %s\n", set.ID)
	fmt.Printf("Original:     %s (%s)\n", set.OriginalKey, set.OriginalContentType)
	if set.Kind != "" {
		fmt.Printf("Kind:         %s/%s\n", set.Kind, set.KindID)
	}
	fmt.Printf("Created:      %s\n", set.CreatedAt.Format(time.RFC3339))

	results, err := db.ListVariantResults(ctx, set.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Results:      %d\n", len(results))
	for _, res := range results {
		fmt.Printf("  %-20s %4dx%-4d %-5s %s\n", res.Name, res.Width, res.Height, res.Format, res.StorageKey)
	}
	return nil
}

// runPresign prints a time-limited download URL.
func runPresign(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	ctx := context.Background()
	storeCfg := storage.DefaultConfig()
	storeCfg.Bucket = cfg.S3Bucket
	storeCfg.Region = cfg.S3Region
	storeCfg.Endpoint = cfg.S3Endpoint
	blobs, err := storage.New(ctx, storeCfg)
	if err != nil {
		return err
	}

	url, err := blobs.PresignedURL(ctx, cfg.Key)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

// runNotify starts a SendEmail workflow.
func runNotify(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	c, err := dialTemporal(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	id, err := workflow.NewStarter(c).StartEmail(context.Background(), workflow.SendEmailInput{
		To:      cfg.To,
		Subject: cfg.Subject,
		Body:    cfg.Body,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Workflow: %s\n", id)
	return nil
}

// openDB opens the database with migrations applied, for read commands.
func openDB(cfg Config) (*database.DB, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.Path = cfg.DBPath
	dbCfg.Logger = log
	return database.New(dbCfg)
}

// openRunner opens a raw database handle and builds the migration runner
// from the embedded definitions, without the auto-migrate that database.New
// performs.
func openRunner(cfg Config) (*sql.DB, *migrate.Runner, error) {
	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, nil, err
	}

	defs, err := database.Definitions()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	runner, err := migrate.NewRunner(db, defs, log)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, runner, nil
}

// runDBMigrate applies all pending migrations.
func runDBMigrate(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	db, runner, err := openRunner(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := runner.Migrate(context.Background())
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("No pending migrations.")
		return nil
	}
	for _, version := range applied {
		fmt.Printf("Applied %s\n", version)
	}
	return nil
}

// runDBRollback rolls back the newest applied migrations.
func runDBRollback(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	db, runner, err := openRunner(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rolledBack, err := runner.Rollback(context.Background(), cfg.Count)
	if err != nil {
		return err
	}
	if len(rolledBack) == 0 {
		fmt.Println("Nothing to roll back.")
		return nil
	}
	for _, version := range rolledBack {
		fmt.Printf("Rolled back %s\n", version)
	}
	return nil
}

// runDBStatus prints applied and pending migrations.
func runDBStatus(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	db, runner, err := openRunner(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := runner.Status(context.Background())
	if err != nil {
		return err
	}

	for _, entry := range report.Entries {
		state := "pending"
		if entry.Applied {
			state = "applied"
		}
		fmt.Printf("%-9s %s\n", state, entry.Version)
	}
	fmt.Printf("\n%d applied, %d pending\n", report.Applied, report.Pending)
	return nil
}

// runDBGenerate writes a new migration skeleton.
func runDBGenerate(cfg Config) error {
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}

	path, err := migrate.Generate(cfg.Dir, cfg.Name, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Created %s\n", path)
	return nil
}
