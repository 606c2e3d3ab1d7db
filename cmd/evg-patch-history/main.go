// Command evg-patch-history exports the recent patches of an Evergreen
// project to CSV, one row per patch and build variant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dbradf/evg-patch-history/pkg/client"
	"github.com/dbradf/evg-patch-history/pkg/export"
	"github.com/dbradf/evg-patch-history/pkg/logging"
	"github.com/dbradf/evg-patch-history/pkg/metrics"
	"github.com/dbradf/evg-patch-history/pkg/pipeline"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var version = "dev"

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

type options struct {
	projectID       string
	weeksBack       int
	batchSize       int
	outputFile      string
	concurrency     int
	evergreenConfig string
	redisAddr       string
	cacheTTL        time.Duration
	metricsAddr     string
	logLevel        logging.LogLevel
	logPretty       bool
	pageLimit       int
	maxRetries      int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var opts options
	var logLevel string

	fs := flag.NewFlagSet("evg-patch-history", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.projectID, "project-id", "", "Evergreen project to export (required)")
	fs.IntVar(&opts.weeksBack, "weeks-back", 1, "number of weeks of patches to export")
	fs.IntVar(&opts.batchSize, "batch-size", pipeline.DefaultBatchSize, "patch lookups resolved per round")
	fs.StringVar(&opts.outputFile, "output-file", "patches.csv", `CSV destination, "-" for stdout`)
	fs.IntVar(&opts.concurrency, "concurrency", 0, "max lookups in flight per round (0 = batch size)")
	fs.StringVar(&opts.evergreenConfig, "evergreen-config", client.DefaultSettingsPath(), "Evergreen CLI settings file")
	fs.StringVar(&opts.redisAddr, "redis-addr", os.Getenv("REDIS_URL"), "Redis address or URL for the patch cache (optional)")
	fs.DurationVar(&opts.cacheTTL, "cache-ttl", time.Hour, "how long cached patch details stay valid")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run (optional)")
	fs.StringVar(&logLevel, "log-level", string(logging.LevelInfo), "debug, info, warn or error")
	fs.BoolVar(&opts.logPretty, "log-pretty", false, "human-readable logs instead of JSON")
	fs.IntVar(&opts.pageLimit, "page-limit", 100, "patches requested per listing page")
	fs.IntVar(&opts.maxRetries, "max-retries", 3, "attempts per Evergreen request")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return opts, err
	}
	opts.logLevel = level

	switch {
	case opts.projectID == "":
		return opts, errors.New("-project-id is required")
	case opts.weeksBack < 1:
		return opts, fmt.Errorf("-weeks-back must be at least 1 (got %d)", opts.weeksBack)
	case opts.batchSize < 1:
		return opts, fmt.Errorf("-batch-size must be at least 1 (got %d)", opts.batchSize)
	case opts.concurrency < 0:
		return opts, fmt.Errorf("-concurrency must not be negative (got %d)", opts.concurrency)
	case opts.outputFile == "":
		return opts, errors.New("-output-file must not be empty")
	case opts.pageLimit < 1:
		return opts, fmt.Errorf("-page-limit must be at least 1 (got %d)", opts.pageLimit)
	case opts.maxRetries < 1:
		return opts, fmt.Errorf("-max-retries must be at least 1 (got %d)", opts.maxRetries)
	case opts.redisAddr != "" && opts.cacheTTL <= 0:
		return opts, fmt.Errorf("-cache-ttl must be positive when Redis is configured (got %s)", opts.cacheTTL)
	}

	return opts, nil
}

func (o options) pipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig(o.projectID)
	cfg.Lookback = time.Duration(o.weeksBack) * 7 * 24 * time.Hour
	cfg.BatchSize = o.batchSize
	cfg.Concurrency = o.concurrency
	return cfg
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "evg-patch-history: %v\n", err)
		return exitUsage
	}

	runID := uuid.NewString()
	logging.Setup(logging.Config{
		Level:  opts.logLevel,
		Pretty: opts.logPretty,
		Output: stderr,
		RunID:  runID,
	})

	if err := runExport(ctx, opts); err != nil {
		log.Error().Err(err).Msg("Export failed")
		return exitFatal
	}
	return exitOK
}

func runExport(ctx context.Context, opts options) error {
	settings, err := client.LoadSettings(opts.evergreenConfig)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if opts.redisAddr != "" {
		redisClient, err = connectRedis(ctx, opts.redisAddr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	cfg := client.DefaultConfig(redisClient, "evg-patch-history/"+version)
	settings.Apply(&cfg)
	cfg.PageLimit = opts.pageLimit
	cfg.MaxRetries = opts.maxRetries
	cfg.CacheTTL = opts.cacheTTL

	evg, err := client.New(cfg)
	if err != nil {
		return fmt.Errorf("create evergreen client: %w", err)
	}
	defer evg.Close()

	if opts.metricsAddr != "" {
		srv, err := metrics.Serve(opts.metricsAddr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	p, err := pipeline.New(opts.pipelineConfig(), evg, evg, export.NewCSVWriter(opts.outputFile),
		pipeline.WithLogger(log.Logger))
	if err != nil {
		return err
	}

	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	log.Info().
		Str("output", opts.outputFile).
		Int("records", summary.Records).
		Int("failed", summary.Failed).
		Msg("Done")
	return nil
}

// connectRedis accepts either host:port or a redis:// URL.
func connectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	redisOpts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisOpts = parsed
	}

	rdb := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", redisOpts.Addr, err)
	}

	log.Info().Str("addr", redisOpts.Addr).Msg("Connected to Redis")
	return rdb, nil
}
