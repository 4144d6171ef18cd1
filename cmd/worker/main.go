package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/statement-insights/internal/app"
	"github.com/dvloznov/statement-insights/internal/config"
	"github.com/dvloznov/statement-insights/internal/jobs"
	"github.com/dvloznov/statement-insights/internal/jobs/inmemory"
	"github.com/dvloznov/statement-insights/internal/logger"
)

// The worker re-analyzes a batch of stored uploads, e.g. after rules changed,
// and exits once every job has finished.
func main() {
	var (
		configPath = flag.String("config", "", "Path to a TOML config file (defaults to $INSIGHTS_CONFIG or ./insights.toml)")
		uploadIDs  = flag.String("upload-ids", "", "Comma-separated upload IDs to analyze (required)")
		publish    = flag.Bool("publish", true, "Publish reports when storage.report_bucket is configured")
		export     = flag.Bool("export", true, "Export to BigQuery when configured")
	)
	flag.Parse()

	bootLog := logger.New()

	ids := splitIDs(*uploadIDs)
	if len(ids) == 0 {
		bootLog.Fatal().Msg("Error: --upload-ids is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.Database.URL == "" {
		bootLog.Fatal().Msg("Error: database.url is required, in-memory stores hold no uploads")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{Service: "insights-worker"})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()
	log := a.Log
	ctx = logger.WithContext(ctx, log)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.BufferSize, jobStore).WithWorkers(cfg.Jobs.Workers)

	if err := jobQueue.Start(ctx, jobs.NewAnalyzeHandler(a.Pipelines())); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	jobIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		job := &jobs.AnalyzeUploadJob{UploadID: id, PublishReport: *publish, ExportWarehouse: *export}
		if err := jobQueue.PublishAnalyzeUpload(ctx, job); err != nil {
			log.Fatal().Err(err).Str("upload_id", id).Msg("Failed to enqueue job")
		}
		jobIDs = append(jobIDs, job.JobID)
	}
	log.Info().Int("jobs", len(jobIDs)).Msg("Worker started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	failed := wait(ctx, jobStore, jobIDs, quit)

	log.Info().Msg("Shutting down worker...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}
	cancel()

	for _, jobID := range jobIDs {
		job, err := jobStore.GetJob(shutdownCtx, jobID)
		if err != nil {
			continue
		}
		fmt.Printf("%s  %-9s  new_anomalies=%d  %s\n", job.UploadID, job.Status, job.NewAnomalies, job.Error)
	}

	if failed > 0 {
		log.Error().Int("failed", failed).Msg("Some uploads could not be analyzed")
		os.Exit(1)
	}
	log.Info().Msg("Worker exited")
}

// wait polls the store until every job is completed or failed and returns
// the number of failures. A signal stops waiting early.
func wait(ctx context.Context, store jobs.JobStore, jobIDs []string, quit <-chan os.Signal) int {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		pending, failed := 0, 0
		for _, id := range jobIDs {
			job, err := store.GetJob(ctx, id)
			if err != nil {
				pending++
				continue
			}
			switch job.Status {
			case jobs.JobStatusCompleted:
			case jobs.JobStatusFailed:
				failed++
			default:
				pending++
			}
		}
		if pending == 0 {
			return failed
		}

		select {
		case <-ticker.C:
		case <-quit:
			return failed + pending
		case <-ctx.Done():
			return failed + pending
		}
	}
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
