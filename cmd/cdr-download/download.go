package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/Sternrassler/cdr-recordings/internal/config"
	"github.com/Sternrassler/cdr-recordings/pkg/cache"
	"github.com/Sternrassler/cdr-recordings/pkg/client"
	"github.com/Sternrassler/cdr-recordings/pkg/download"
	"github.com/Sternrassler/cdr-recordings/pkg/history"
	"github.com/Sternrassler/cdr-recordings/pkg/logging"
	"github.com/Sternrassler/cdr-recordings/pkg/metrics"
	"github.com/Sternrassler/cdr-recordings/pkg/pipeline"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// downloadFlags holds command-line values that are not part of config.Config.
type downloadFlags struct {
	configPath string
	envFile    string
	verbose    bool
	dryRun     bool
	strictSet  bool
}

func runDownload(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("download", pflag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		opts     downloadFlags
		override config.Config
	)
	flags.StringVarP(&override.StartDate, "start-date", "s", "", "First day to include, YYYY-MM-DD (required)")
	flags.StringVarP(&override.EndDate, "end-date", "e", "", "Last day to include, YYYY-MM-DD (required)")
	flags.StringVarP(&override.URL, "url", "u", "", "Base URL of the call history API (required)")
	flags.StringVarP(&override.Token, "token", "t", "", "Bearer token for the API (required)")
	flags.StringVarP(&override.Output, "output", "o", "", "Output directory, or key prefix with --bucket (default ./downloads)")
	flags.StringVar(&override.Bucket, "bucket", "", "Write recordings to a blob bucket URL (file://, s3://, gs://) instead of the local filesystem")
	flags.IntVar(&override.FetchConcurrency, "fetch-concurrency", 0, "Concurrent page fetches (default 4)")
	flags.IntVar(&override.DownloadConcurrency, "download-concurrency", 0, "Concurrent recording downloads (default 4)")
	flags.DurationVar(&override.Timeout, "timeout", 0, "Per-request timeout waiting for response headers (default 50s)")
	flags.StringVar(&override.Log.Level, "log-level", "", "Log level: debug, info, warn, error (default info)")
	flags.StringVar(&override.Log.Format, "log-format", "", "Log format: json or pretty (default json)")
	flags.StringVar(&override.Cache.RedisURL, "redis-url", "", "Cache history pages in Redis (redis://host:port/db)")
	flags.DurationVar(&override.Cache.TTL, "cache-ttl", 0, "Lifetime of cached pages (default 5m)")
	flags.StringVar(&override.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	flags.BoolVar(&override.Strict, "strict", false, "Exit non-zero when any page or download failed")
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Environment file with CDR_* defaults")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Print settings and per-file failures")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the intended action without any network or file activity")

	flags.Usage = func() {
		fmt.Fprintln(stderr, `Usage: cdr-download download [options]

Fetch every page of the call history between --start-date and --end-date
and download each recording into <output>/<page>/<file name>.

Options:`)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}
	if flags.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected arguments: %v\n", flags.Args())
		flags.Usage()
		return ExitInvalidArgs
	}
	opts.strictSet = flags.Changed("strict")

	cfg, err := loadConfig(opts, override)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	runID := uuid.NewString()
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Format == config.FormatPretty,
		Output: stderr,
		RunID:  runID,
	})

	if opts.verbose {
		printSettings(stdout, cfg, runID)
	}

	if opts.dryRun {
		fmt.Fprintf(stdout, "Dry run: would download recordings from %s for %s to %s into %s\n",
			cfg.URL, cfg.StartDate, cfg.EndDate, destination(cfg))
		return ExitSuccess
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return execute(ctx, cfg, opts, logger, stdout)
}

// loadConfig layers defaults, the YAML file, the environment and flags.
func loadConfig(opts downloadFlags, override config.Config) (config.Config, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(opts.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	cfg = cfg.Merge(override)
	// Merge only raises Strict; an explicit --strict=false lowers it again.
	if opts.strictSet {
		cfg.Strict = override.Strict
	}
	return cfg, nil
}

func execute(ctx context.Context, cfg config.Config, opts downloadFlags, logger zerolog.Logger, stdout io.Writer) int {
	start, end, err := cfg.DateRange()
	if err != nil {
		logger.Error().Err(err).Msg("Invalid date range")
		return ExitInvalidArgs
	}

	apiCfg := client.DefaultConfig(cfg.URL, cfg.Token)
	apiCfg.Timeout = cfg.Timeout
	api, err := client.New(apiCfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create API client")
		return ExitGeneralError
	}
	defer api.Close()

	// Recording URLs point at arbitrary hosts; they get no base URL and no token.
	fileCfg := client.DefaultConfig("", "")
	fileCfg.Timeout = cfg.Timeout
	files, err := client.New(fileCfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create download client")
		return ExitGeneralError
	}
	defer files.Close()

	var pageCache history.PageCache
	if cfg.Cache.RedisURL != "" {
		manager, closeCache, err := openPageCache(ctx, cfg.Cache)
		if err != nil {
			logger.Warn().Err(err).Msg("Page cache unavailable, continuing without it")
		} else {
			defer closeCache()
			pageCache = manager
		}
	}

	var sink download.Sink
	if cfg.Bucket != "" {
		bucketSink, err := download.OpenBucketSink(ctx, cfg.Bucket)
		if err != nil {
			logger.Error().Err(err).Str("bucket", cfg.Bucket).Msg("Failed to open bucket")
			return ExitGeneralError
		}
		defer bucketSink.Close()
		sink = bucketSink
	}

	orch := pipeline.New(
		history.NewFetcher(api, pageCache, history.CacheScope(cfg.URL, cfg.Token)),
		download.New(files, sink),
		pipeline.Config{
			StartDate:           start,
			EndDate:             end,
			OutputDir:           cfg.Output,
			FetchConcurrency:    cfg.FetchConcurrency,
			DownloadConcurrency: cfg.DownloadConcurrency,
		},
	)

	logger.Info().
		Str("start_date", cfg.StartDate).
		Str("end_date", cfg.EndDate).
		Str("destination", destination(cfg)).
		Msg("Run started")

	progress, runErr := orch.Run(ctx)
	printSummary(stdout, progress, opts.verbose)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("Failed to write metrics")
		}
	}

	switch {
	case errors.Is(runErr, pipeline.ErrFirstPageFailed):
		return ExitFirstPageFailed
	case runErr != nil:
		return ExitGeneralError
	case cfg.Strict && progress.Failed():
		return ExitPartialFailure
	default:
		return ExitSuccess
	}
}

// openPageCache connects to Redis and returns the cache with its closer.
func openPageCache(ctx context.Context, cfg config.CacheConfig) (*cache.Manager, func(), error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return cache.NewManager(rdb, cfg.TTL), func() { rdb.Close() }, nil
}

func destination(cfg config.Config) string {
	if cfg.Bucket != "" {
		return cfg.Bucket + " (prefix " + cfg.Output + ")"
	}
	return cfg.Output
}

func printSettings(w io.Writer, cfg config.Config, runID string) {
	fmt.Fprintln(w, "Settings:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  Run ID:\t%s\n", runID)
	fmt.Fprintf(tw, "  URL:\t%s\n", cfg.URL)
	fmt.Fprintf(tw, "  Token:\t%s\n", truncateToken(cfg.Token))
	fmt.Fprintf(tw, "  Dates:\t%s to %s\n", cfg.StartDate, cfg.EndDate)
	fmt.Fprintf(tw, "  Destination:\t%s\n", destination(cfg))
	fmt.Fprintf(tw, "  Concurrency:\tfetch %d, download %d\n", cfg.FetchConcurrency, cfg.DownloadConcurrency)
	fmt.Fprintf(tw, "  Timeout:\t%s\n", cfg.Timeout)
	if cfg.Cache.RedisURL != "" {
		fmt.Fprintf(tw, "  Page cache:\t%s (ttl %s)\n", cfg.Cache.RedisURL, cfg.Cache.TTL)
	}
	tw.Flush()
}

// truncateToken keeps the first 8 characters of a token for display.
func truncateToken(token string) string {
	const keep = 8
	if len(token) <= keep {
		return token + "..."
	}
	return token[:keep] + "..."
}

func printSummary(w io.Writer, progress *pipeline.Progress, verbose bool) {
	if progress == nil {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PAGE\tSTATUS\tFILES\tFAILED")
	for _, page := range progress.SortedPages() {
		entry := progress.Pages[page]
		status := "ok"
		if !entry.Success {
			status = "failed"
		}
		failed := 0
		for _, u := range entry.URLs {
			if !u.Success {
				failed++
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", page, status, len(entry.URLs), failed)
	}
	tw.Flush()

	s := progress.Summary()
	fmt.Fprintf(w, "Pages: %d (%d failed), downloads: %d (%d failed), %d bytes\n",
		s.Pages, s.FailedPages, s.Downloads, s.FailedDownloads, s.Bytes)

	if !verbose {
		return
	}
	for _, page := range progress.SortedPages() {
		for _, u := range progress.Pages[page].URLs {
			if !u.Success {
				fmt.Fprintf(w, "  page %d: %s: %s\n", page, u.URL, u.Error)
			}
		}
	}
}
