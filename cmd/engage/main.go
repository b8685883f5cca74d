// Package main is the entry point for the engage batch pipeline.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/openlearn/engage/internal/config"
	"github.com/openlearn/engage/internal/cursor"
	"github.com/openlearn/engage/internal/interval"
	"github.com/openlearn/engage/internal/middleware"
	"github.com/openlearn/engage/internal/pipeline"
	"github.com/openlearn/engage/internal/sink"
	"github.com/openlearn/engage/internal/source"
	"github.com/openlearn/engage/internal/tracing"
)

func main() {
	var (
		help         = flag.Bool("help", false, "display help message")
		intervalSpec = flag.String("interval", "", "date range to process, YYYY-MM-DD-YYYY-MM-DD (required)")
		typeFlag     = flag.String("type", "daily", "bucketing: daily, weekly, or all")
		sourceFlag   = flag.String("source", "", "tracking log directory (overrides SOURCE_PATH)")
		outPath      = flag.String("out", "", "engagement TSV output path, - for stdout")
		modulesOut   = flag.String("modules-out", "", "module count TSV output path, - for stdout")
		csvOut       = flag.String("csv-out", "", "per-course CSV report directory")
		warehouse    = flag.Bool("warehouse", false, "load results into the PostgreSQL warehouse")
		workers      = flag.Int("workers", 0, "classify worker count, 0 for one per CPU")
		spillDir     = flag.String("spill-dir", "", "shuffle spill directory (overrides SPILL_DIR)")
		overwrite    = flag.Bool("overwrite", false, "re-run even if this run is already marked complete")
		configPath   = flag.String("config", "", "optional YAML config file")
	)
	flag.Parse()

	if *help {
		fmt.Println("Engage Batch Pipeline")
		fmt.Println()
		fmt.Println("Usage: engage -interval YYYY-MM-DD-YYYY-MM-DD [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if *intervalSpec == "" {
		logger.Error("missing required -interval flag")
		os.Exit(1)
	}
	iv, err := interval.Parse(*intervalSpec)
	if err != nil {
		logger.Error("invalid interval", "error", err)
		os.Exit(1)
	}
	typ, err := interval.ParseType(*typeFlag)
	if err != nil {
		logger.Error("invalid interval type", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing is optional; batch runs export spans when configured
	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "engage-batch",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.TracingOTLPEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down tracing", "error", err)
		}
	}()

	src, sourceName, err := buildSource(cfg, *sourceFlag, iv, logger)
	if err != nil {
		logger.Error("failed to build source", "error", err)
		os.Exit(1)
	}

	// Run markers let schedulers skip already-completed runs
	var tracker *cursor.Tracker
	var runID string
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		tracker = cursor.NewTracker(client, logger)
		runID = cursor.RunID(typ, iv, sourceName)

		if !*overwrite {
			done, err := tracker.Completed(ctx, runID)
			if err != nil {
				logger.Warn("failed to check run marker, running anyway", "error", err)
			} else if done {
				logger.Info("run already complete, skipping", "run_id", runID)
				return
			}
		}
	}

	spill := *spillDir
	if spill == "" {
		spill = cfg.SpillDir
	}
	workerCount := *workers
	if workerCount == 0 {
		workerCount = cfg.Workers
	}

	runner := pipeline.NewRunner(pipeline.Config{
		Interval: iv,
		Type:     typ,
		Workers:  workerCount,
		SpillDir: spill,
	}, src, logger, pipeline.NewMetrics())

	result, err := runner.Run(ctx)
	if err != nil {
		logger.Error("pipeline run failed", "error", err)
		os.Exit(1)
	}

	if err := writeOutputs(ctx, cfg, logger, typ, iv, result, *outPath, *modulesOut, *csvOut, *warehouse); err != nil {
		logger.Error("failed to write outputs", "error", err)
		os.Exit(1)
	}

	if tracker != nil {
		if err := tracker.MarkComplete(ctx, runID, time.Now()); err != nil {
			logger.Warn("failed to mark run complete", "error", err)
		}
	}

	logger.Info("run complete",
		"interval", iv.String(),
		"interval_type", string(typ),
		"records", len(result.Records),
		"module_counts", len(result.ModuleCounts),
	)
}

// buildSource picks the tracking log source: an explicit -source directory,
// the configured SOURCE_PATH, or the configured S3 bucket, in that order.
// The returned name feeds the run marker so runs against different sources
// do not collide.
func buildSource(cfg *config.Config, flagValue string, iv interval.Interval, logger *slog.Logger) (source.Source, string, error) {
	root := flagValue
	if root == "" {
		root = cfg.SourcePath
	}
	if root != "" {
		return source.NewFileSource(root, iv, logger), "file:" + root, nil
	}

	if cfg.S3Bucket != "" {
		src, err := source.NewS3Source(source.S3Config{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
		}, iv, logger)
		if err != nil {
			return nil, "", err
		}
		return src, "s3:" + cfg.S3Bucket + "/" + cfg.S3Prefix, nil
	}

	return nil, "", fmt.Errorf("no tracking log source configured: set -source, SOURCE_PATH, or S3_BUCKET")
}

// writeOutputs fans the run result out to the requested sinks.
func writeOutputs(ctx context.Context, cfg *config.Config, logger *slog.Logger, typ interval.Type, iv interval.Interval, result *pipeline.Result, outPath, modulesOut, csvOut string, warehouse bool) error {
	if outPath != "" {
		if err := writeTSV(outPath, len(result.Records), func(s *sink.TSVSink, i int) error {
			return s.WriteRow(result.Records[i].Row())
		}); err != nil {
			return fmt.Errorf("engagement TSV: %w", err)
		}
	}

	if modulesOut != "" {
		if err := writeTSV(modulesOut, len(result.ModuleCounts), func(s *sink.TSVSink, i int) error {
			return s.WriteRow(result.ModuleCounts[i].Row())
		}); err != nil {
			return fmt.Errorf("module TSV: %w", err)
		}
	}

	if csvOut != "" {
		writer := sink.NewCSVReportWriter(csvOut, typ, iv)
		if err := writer.WriteRecords(result.Records); err != nil {
			return fmt.Errorf("CSV reports: %w", err)
		}
	}

	if warehouse {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("-warehouse requires DATABASE_URL")
		}
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open warehouse database: %w", err)
		}
		defer db.Close()

		wh := sink.NewWarehouse(db, logger)
		stats, err := wh.LoadRecords(ctx, typ, result.Records)
		if err != nil {
			return fmt.Errorf("warehouse load: %w", err)
		}
		stats.LogSummary(logger, "student_engagement")

		stats, err = wh.LoadModuleCounts(ctx, result.ModuleCounts)
		if err != nil {
			return fmt.Errorf("warehouse module load: %w", err)
		}
		stats.LogSummary(logger, "student_module_engagement")
	}

	return nil
}

// writeTSV streams n rows through a TSVSink to path, or stdout for "-".
func writeTSV(path string, n int, row func(*sink.TSVSink, int) error) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	s := sink.NewTSVSink(w)
	for i := 0; i < n; i++ {
		if err := row(s, i); err != nil {
			return err
		}
	}
	return s.Flush()
}
