package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"store-scrape/internal/config"
	"store-scrape/internal/locator"
	"store-scrape/internal/logger"
	"store-scrape/internal/metrics"
	"store-scrape/internal/migrate"
	"store-scrape/internal/output"
	"store-scrape/internal/scrape"
	"store-scrape/internal/search"
	"store-scrape/internal/seeds"
	"store-scrape/internal/store"
	"store-scrape/internal/tracing"
	"store-scrape/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	url        string
	seedFile   string
	seedSource string
	outRoot    string
	sinks      []string
	regions    []string
	workers    int
	coverage   string
	maxQueries int
	rate       int
	cache      bool
	metrics    string
	tracing    bool
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "store-scrape <scrape_id>",
		Short:         "Discover every store of a chain, state by state, from a nearest-stores API",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadEnvFiles()
			logger.Setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				logger.L().Error("config_error", "err", err)
				return err
			}
			if err := applyFlags(cmd, f, &cfg); err != nil {
				logger.L().Error("config_error", "err", err)
				return err
			}
			return run(cmd.Context(), args[0], cfg)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.url, "url", "", "locator URL template with {lat} and {lng} placeholders (LOCATOR_URL)")
	fl.StringVar(&f.seedFile, "seeds", "", "seed CSV with state, latitude, longitude columns (SEED_FILE)")
	fl.StringVar(&f.seedSource, "seed-source", "", "seed source: csv or db (SEED_SOURCE)")
	fl.StringVar(&f.outRoot, "out", "", "output root directory (OUTPUT_ROOT)")
	fl.StringSliceVar(&f.sinks, "sinks", nil, "result sinks: csv, sqlite, postgres (SINKS)")
	fl.StringSliceVar(&f.regions, "regions", nil, "only scrape these regions (REGIONS)")
	fl.IntVar(&f.workers, "workers", 0, "regions searched in parallel (WORKERS)")
	fl.StringVar(&f.coverage, "coverage", "", "coverage test: interior (default) or closed (COVERAGE_MODE)")
	fl.IntVar(&f.maxQueries, "max-queries", 0, "per-region query cap, 0 for none (MAX_QUERIES)")
	fl.IntVar(&f.rate, "rate", 0, "max locator requests per minute, 0 for none (RATE_LIMIT_PER_MIN)")
	fl.BoolVar(&f.cache, "cache", false, "cache locator responses in redis (CACHE_ENABLE)")
	fl.StringVar(&f.metrics, "metrics-addr", "", "serve /metrics on this address (METRICS_ADDR)")
	fl.BoolVar(&f.tracing, "tracing", false, "export spans to stdout (TRACING_ENABLED)")
	return cmd
}

// applyFlags：仅覆盖命令行显式给出的参数
func applyFlags(cmd *cobra.Command, f flags, cfg *config.Config) error {
	fl := cmd.Flags()
	if fl.Changed("url") {
		cfg.LocatorURL = f.url
	}
	if fl.Changed("seeds") {
		cfg.SeedFile = f.seedFile
	}
	if fl.Changed("seed-source") {
		cfg.SeedSource = f.seedSource
	}
	if fl.Changed("out") {
		cfg.OutputRoot = f.outRoot
	}
	if fl.Changed("sinks") {
		cfg.Sinks = f.sinks
	}
	if fl.Changed("regions") {
		cfg.Regions = f.regions
	}
	if fl.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fl.Changed("coverage") {
		mode, err := search.ParseCoverageMode(f.coverage)
		if err != nil {
			return err
		}
		cfg.Coverage = mode
	}
	if fl.Changed("max-queries") {
		cfg.MaxQueries = f.maxQueries
	}
	if fl.Changed("rate") {
		cfg.RatePerMin = f.rate
	}
	if fl.Changed("cache") {
		cfg.CacheEnable = f.cache
	}
	if fl.Changed("metrics-addr") {
		cfg.MetricsAddr = f.metrics
	}
	if fl.Changed("tracing") {
		cfg.TracingEnabled = f.tracing
	}
	if cfg.LocatorURL == "" {
		return errors.New("locator url is required (LOCATOR_URL or --url)")
	}
	return cfg.Validate()
}

func run(parent context.Context, scrapeID string, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := output.NewRun(cfg.OutputRoot, scrapeID, time.Now())
	if err != nil {
		logger.L().Error("run_dir_error", "err", err)
		return err
	}
	if lf, err := logger.AttachFile(r.LogPath()); err != nil {
		logger.L().Warn("log_file_error", "path", r.LogPath(), "err", err)
	} else {
		defer lf.Close()
	}
	l := logger.L()
	l.Info("scrape_start", "scrape_id", scrapeID, "timestamp", r.Started.Format("20060102_150405"), "dir", r.Dir, "run_id", r.ID.String())

	tcfg := tracing.ConfigFromEnv()
	tcfg.Enabled = cfg.TracingEnabled
	shutdown, err := tracing.Init(ctx, tcfg)
	if err != nil {
		l.Error("tracing_init_error", "err", err)
	} else {
		defer tracing.ShutdownWithTimeout(context.Background(), shutdown)
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Error("metrics_server_error", "err", err)
			}
		}()
		defer srv.Close()
		l.Info("metrics_listen", "addr", cfg.MetricsAddr)
	}

	var st *store.Store
	if slices.Contains(cfg.Sinks, "postgres") {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
			return err
		}
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			return err
		}
		st = store.AttachDB(db)
		if err := st.BeginRun(ctx, r.ID, scrapeID, r.Dir, r.Started); err != nil {
			l.Error("run_begin_error", "err", err)
			return err
		}
	}

	sets, err := loadSeeds(ctx, cfg)
	if err != nil {
		l.Error("seed_load_error", "err", err)
		return err
	}

	client := locator.NewClient(cfg.LocatorURL, cfg.LocatorTimeout)
	client.Retry = cfg.Retry
	if cfg.RatePerMin > 0 {
		client.Limiter = locator.NewMinuteLimiter(cfg.RatePerMin)
	}
	if cfg.CacheEnable {
		rdb := utils.OpenRedisFromEnv()
		if err := rdb.Ping(ctx).Err(); err != nil {
			l.Warn("redis_unavailable", "err", err)
			rdb.Close()
		} else {
			defer rdb.Close()
			client.Cache = locator.NewRedisCache(rdb, cfg.LocatorURL, cfg.CacheTTL)
		}
	}

	sinks, err := output.New(cfg.Sinks, r, st)
	if err != nil {
		l.Error("sink_error", "err", err)
		return err
	}
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				l.Warn("sink_close_error", "sink", s.Name(), "err", err)
			}
		}
	}()

	o := &scrape.Orchestrator{
		Fetcher: client,
		Sinks:   sinks,
		Options: search.Options{Coverage: cfg.Coverage, MaxQueries: cfg.MaxQueries},
		Workers: cfg.Workers,
		Only:    cfg.Regions,
		RunID:   r.ID,
	}
	if st != nil {
		o.Tracker = st
	}
	rep := o.Run(ctx, sets)

	status := "done"
	switch {
	case ctx.Err() != nil:
		status = "cancelled"
	case len(rep.Failed) > 0:
		status = "partial"
	}
	if st != nil {
		if err := st.FinishRun(context.WithoutCancel(ctx), r.ID, status, len(rep.Results), len(rep.Failed)); err != nil {
			l.Warn("run_finish_error", "err", err)
		}
	}
	for _, f := range rep.Failed {
		l.Warn("region_failed_summary", "region", f.Region, "err", f.Err)
	}
	l.Info("scrape_finish", "scrape_id", scrapeID, "status", status, "succeeded", len(rep.Results), "failed", len(rep.Failed))
	if status == "cancelled" {
		return fmt.Errorf("scrape %s cancelled: %w", scrapeID, ctx.Err())
	}
	return nil
}

func loadSeeds(ctx context.Context, cfg config.Config) ([]seeds.Set, error) {
	var src seeds.Source
	switch cfg.SeedSource {
	case "db":
		pool, err := utils.OpenPgxPoolFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		repo, err := seeds.NewRepository(ctx, pool)
		if err != nil {
			return nil, err
		}
		src = repo
	default:
		src = seeds.CSVSource{Path: cfg.SeedFile}
	}
	return src.Load(ctx)
}
