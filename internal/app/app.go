// Package app wires configuration, logging, storage and the optional GCP
// integrations into the pieces the binaries run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-insights/internal/anomaly"
	"github.com/dvloznov/statement-insights/internal/config"
	"github.com/dvloznov/statement-insights/internal/gcsuploader"
	infraBQ "github.com/dvloznov/statement-insights/internal/infra/bigquery"
	"github.com/dvloznov/statement-insights/internal/infra/postgres"
	"github.com/dvloznov/statement-insights/internal/insights"
	"github.com/dvloznov/statement-insights/internal/jobs"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/pipeline"
)

// Options tune what New connects to.
type Options struct {
	// Service names the binary in log lines.
	Service string
	// Objects forces a GCS client even when report publishing is disabled,
	// e.g. to read gs:// sources.
	Objects bool
	// LogOut overrides the log destination, stdout by default.
	LogOut io.Writer
}

// App holds the wired components. Close releases them.
type App struct {
	Config    config.Config
	Log       zerolog.Logger
	Service   *insights.Service
	Objects   *gcsuploader.GCSStorageService
	Warehouse *infraBQ.Exporter

	pool *pgxpool.Pool
}

// New configures the process logger and connects the backends cfg selects:
// PostgreSQL when a database URL is set, otherwise in-memory stores.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logOpts := cfg.LoggerOptions(opts.Service)
	logOpts.Out = opts.LogOut
	log, err := logger.Configure(logOpts)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	logger.SetDefault(log)
	ctx = logger.WithContext(ctx, log)

	anomalyCfg, err := cfg.AnomalyConfig()
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	detector := anomaly.NewDetector(anomalyCfg)

	a := &App{Config: cfg, Log: log}

	if cfg.Database.URL != "" {
		a.pool, err = postgres.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Service, err = postgres.NewService(ctx, a.pool, detector)
	} else {
		log.Warn().Msg("No database URL configured, using in-memory stores")
		a.Service, err = insights.NewMemoryService(ctx, detector)
	}
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	if cfg.ReportsEnabled() || opts.Objects {
		a.Objects, err = gcsuploader.NewGCSStorageService(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
	}

	if cfg.WarehouseEnabled() {
		a.Warehouse, err = infraBQ.NewExporter(ctx, cfg.GCP.ProjectID, cfg.BigQuery.Dataset)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
	}

	log.Info().
		Bool("postgres", a.pool != nil).
		Bool("reports", cfg.ReportsEnabled()).
		Bool("warehouse", a.Warehouse != nil).
		Msg("Application wired")
	return a, nil
}

// PipelineOptions selects the pipeline steps the configuration enables.
func (a *App) PipelineOptions(publishReport, exportWarehouse bool) pipeline.Options {
	opts := pipeline.Options{Service: a.Service}
	if a.Objects != nil {
		opts.Objects = a.Objects
	}
	if publishReport && a.Objects != nil {
		opts.ReportBucket = a.Config.Storage.ReportBucket
		opts.ReportPrefix = a.Config.Storage.ReportPrefix
	}
	if exportWarehouse && a.Warehouse != nil {
		opts.Warehouse = a.Warehouse
	}
	return opts
}

// Pipelines builds analysis pipelines for queued jobs.
func (a *App) Pipelines() jobs.Pipelines {
	return func(publishReport, exportWarehouse bool) *pipeline.Pipeline {
		return pipeline.NewAnalysisPipeline(a.PipelineOptions(publishReport, exportWarehouse))
	}
}

// Close releases every connection New opened.
func (a *App) Close() error {
	var errs []error
	if a.Warehouse != nil {
		errs = append(errs, a.Warehouse.Close())
	}
	if a.Objects != nil {
		errs = append(errs, a.Objects.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
