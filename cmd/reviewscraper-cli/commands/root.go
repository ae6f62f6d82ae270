package commands

import (
	"bookreviews-backend/lib/pagecache"
	"bookreviews-backend/lib/restyutil"
	"bookreviews-backend/lib/scrapers/goodreads/core"
	"bookreviews-backend/lib/telemetry"
	"bookreviews-backend/lib/util/serviceutil"
	"bookreviews-backend/services/reviewscraper"
	"bookreviews-backend/services/reviewscraper/db"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var debug *bool
var configPath *string

func init() {
	debug = rootCmd.PersistentFlags().Bool("debug", false, "Enables debug logging (and http dumps when fetch.debug_dump_dir is set).")
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The configuration file, <name>.local.json5 overrides it.")
}

var rootCmd = &cobra.Command{
	Use:   "reviewscraper-cli",
	Short: "reviewscraper-cli resolves books on goodreads and collects their reviews.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*debug)
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() reviewscraper.Config {
	cfg, err := reviewscraper.LoadConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	return cfg
}

type environment struct {
	service *reviewscraper.Service
	cache   *pagecache.Cache
	db      *sql.DB
}

func (e environment) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
}

// replaced in tests
var exit = serviceutil.Fatal

// fatal closes everything opened so far, deferred calls do not run on exit.
func (e environment) fatal(message string, err error) {
	e.Close()
	exit(message, err)
}

// setup opens everything the config asks for and creates the service,
// failures are fatal.
func setup(ctx context.Context, cfg reviewscraper.Config) environment {
	env := environment{}

	if cfg.Fetch.DebugDumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(cfg.Fetch.DebugDumpDir)
		if err != nil {
			serviceutil.Fatal("failed to create http dump directory", err)
		}
		core.SetRestyInstrumentOutput(output)
	}

	opts := reviewscraper.Options{Config: cfg}
	if cfg.Cache.Enabled {
		cache, err := pagecache.Open(ctx, cfg.Cache.Database())
		if err != nil {
			serviceutil.Fatal("failed to open page cache", err)
		}
		env.cache = cache
		opts.Cache = cache
	}
	if cfg.Output.DB.File != "" || cfg.Output.DB.Url != "" {
		database, err := cfg.Output.DB.OpenDB(db.Schema)
		if err != nil {
			env.fatal("failed to open results database", err)
		}
		env.db = database
		opts.DB = database
	}

	service, err := reviewscraper.NewService(opts)
	if err != nil {
		env.fatal("failed to create service", err)
	}
	env.service = service

	telemetry.InstrumentPerfStats(ctx, 30*time.Second)

	slog.DebugContext(
		ctx, "configured",
		"base_url", cfg.BaseUrl,
		"workers", cfg.Workers,
		"delay_ms", cfg.Fetch.DelayMs,
		"threshold", cfg.Match.Threshold,
		"cache", cfg.Cache.Enabled,
		"cache_read", cfg.Cache.Read,
	)
	return env
}
