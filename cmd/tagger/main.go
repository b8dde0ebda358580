package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/cache"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/config"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/feeds"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/intel"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/metrics"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/pipeline"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/posthog"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/resolver"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/internal/uamatch"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/pkg/logger"
	"github.com/Erudition/Posthog-Person-Bot-Tagger/pkg/models"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "Path to configuration file")
	feedsPath := flag.String("feeds", "./configs/feeds.yaml", "Path to feeds configuration file")
	dryRun := flag.Bool("dry-run", false, "Compute and log updates without sending them")
	once := flag.Bool("once", false, "Run a single reconciliation pass and exit, ignoring any schedule")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	feedsCfg, err := config.LoadFeeds(*feedsPath)
	if err != nil {
		fmt.Printf("Failed to load feeds configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.FilePath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting PostHog person bot tagger")

	if *dryRun {
		cfg.Pipeline.DryRun = true
	}

	var feedCache cache.Cache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cache.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			TTL:      cfg.Fetcher.CacheTTL,
		})
		if err != nil {
			logger.Warn(fmt.Sprintf("Feed cache unavailable, fetching directly: %v", err))
		} else {
			feedCache = redisCache
			defer redisCache.Close()
		}
	}

	if cfg.Metrics.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			http.Handle(cfg.Metrics.Path, promhttp.Handler())
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Error(fmt.Sprintf("Metrics listener failed: %v", err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Pipeline.Schedule != "" && !*once {
		runScheduled(ctx, cfg, feedsCfg, feedCache)
		return
	}

	if err := runOnce(ctx, cfg, feedsCfg, feedCache); err != nil {
		logger.Error(fmt.Sprintf("Run failed: %v", err))
		os.Exit(1)
	}
}

// runScheduled repeats reconciliation passes on the configured cron
// schedule until the process is signalled.
func runScheduled(ctx context.Context, cfg *config.Config, feedsCfg *config.FeedsConfig, feedCache cache.Cache) {
	c := cron.New()
	_, err := c.AddFunc(cfg.Pipeline.Schedule, func() {
		if err := runOnce(ctx, cfg, feedsCfg, feedCache); err != nil {
			logger.Error(fmt.Sprintf("Scheduled run failed: %v", err))
		}
	})
	if err != nil {
		logger.Fatal(fmt.Sprintf("Invalid schedule %q: %v", cfg.Pipeline.Schedule, err))
	}

	logger.Info(fmt.Sprintf("Scheduled reconciliation: %s", cfg.Pipeline.Schedule))
	c.Start()
	<-ctx.Done()
	c.Stop()
	logger.Info("Scheduler stopped")
}

// runOnce executes one full reconciliation pass: build the index from
// the feeds, page every person through classification, deliver the
// resulting updates. The final counters are reported whether or not the
// run completed.
func runOnce(ctx context.Context, cfg *config.Config, feedsCfg *config.FeedsConfig, feedCache cache.Cache) (err error) {
	stats := &models.Stats{}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("critical failure in processing loop: %v", r)
		}
		report(stats)
	}()

	builder := intel.NewBuilder()
	supplier := feeds.NewSupplier(feedsCfg, cfg.Fetcher, feedCache)
	entries, failedFeeds := supplier.Populate(ctx, builder)
	index := builder.Freeze()

	metrics.IndexExactEntries.Set(float64(index.ExactCount()))
	metrics.IndexRangeEntries.Set(float64(index.RangeCount()))
	logger.Info("Intelligence index built",
		zap.Int("entries", entries),
		zap.Int("failed_feeds", failedFeeds),
		zap.Int("exact", index.ExactCount()),
		zap.Int("ranges", index.RangeCount()))

	client := posthog.NewClient(posthog.Config{
		Host:       cfg.PostHog.Host,
		ProjectID:  cfg.PostHog.ProjectID,
		APIKey:     cfg.PostHog.APIKey,
		CaptureKey: cfg.PostHog.CaptureKey,
		Timeout:    cfg.PostHog.Timeout,
	})
	client.OnRetry = func() {
		stats.Retries.Add(1)
		metrics.TransportRetries.Inc()
	}

	res := resolver.New(index, uamatch.New())
	pipe := pipeline.New(client, client, res, pipeline.Config{
		PageSize:  cfg.Pipeline.PageSize,
		BatchSize: cfg.Pipeline.BatchSize,
		DryRun:    cfg.Pipeline.DryRun,
	}, stats)

	return pipe.Run(ctx)
}

// report logs the run's aggregate counters.
func report(stats *models.Stats) {
	s := stats.Snapshot()
	logger.Info("Run summary",
		zap.Int64("processed", s.Processed),
		zap.Int64("modified", s.Modified),
		zap.Int64("bots", s.Bots),
		zap.Int64("datacenters", s.Datacenters),
		zap.Int64("pages", s.Pages),
		zap.Int64("events_sent", s.EventsSent),
		zap.Int64("retries", s.Retries),
		zap.Int64("errors", s.Errors))
}
