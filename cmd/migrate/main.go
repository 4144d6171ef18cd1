package main

import (
	"context"
	"flag"
	"time"

	"github.com/dvloznov/statement-insights/internal/config"
	infraBQ "github.com/dvloznov/statement-insights/internal/infra/bigquery"
	"github.com/dvloznov/statement-insights/internal/infra/postgres"
	"github.com/dvloznov/statement-insights/internal/logger"
)

var (
	configPath = flag.String("config", "", "Path to a TOML config file (defaults to $INSIGHTS_CONFIG or ./insights.toml)")
	target     = flag.String("target", "postgres", "Migration target: postgres or bigquery")
	down       = flag.Int("down", 0, "Postgres only: roll back this many migrations instead of migrating up")
	version    = flag.Bool("version", false, "Postgres only: print the current schema version and exit")
	appliedBy  = flag.String("applied-by", "migrate-cli", "BigQuery only: name recorded in schema_migrations")
)

func main() {
	flag.Parse()

	bootLog := logger.New()
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	log, err := logger.Configure(cfg.LoggerOptions("insights-migrate"))
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to configure logger")
	}

	switch *target {
	case "postgres":
		if cfg.Database.URL == "" {
			log.Fatal().Msg("Error: database.url is required (INSIGHTS_DATABASE_URL)")
		}
		switch {
		case *version:
			v, dirty, err := postgres.MigrationVersion(cfg.Database.URL)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to read schema version")
			}
			log.Info().Uint("version", v).Bool("dirty", dirty).Msg("Current schema version")
		case *down > 0:
			if err := postgres.RollbackMigrations(cfg.Database.URL, *down); err != nil {
				log.Fatal().Err(err).Int("steps", *down).Msg("Rollback failed")
			}
			log.Info().Int("steps", *down).Msg("Rolled back migrations")
		default:
			if err := postgres.RunMigrations(cfg.Database.URL); err != nil {
				log.Fatal().Err(err).Msg("Migration failed")
			}
			log.Info().Msg("Postgres schema is up to date")
		}

	case "bigquery":
		if !cfg.WarehouseEnabled() {
			log.Fatal().Msg("Error: gcp.project_id and bigquery.dataset are required")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		ctx = logger.WithContext(ctx, log)

		m, err := infraBQ.NewMigrator(ctx, cfg.GCP.ProjectID, cfg.BigQuery.Dataset, *appliedBy)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery client")
		}
		defer m.Close()

		n, err := m.Up(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
		log.Info().
			Str("project", cfg.GCP.ProjectID).
			Str("dataset", cfg.BigQuery.Dataset).
			Int("applied", n).
			Msg("BigQuery schema is up to date")

	default:
		log.Fatal().Str("target", *target).Msg("Error: -target must be postgres or bigquery")
	}
}
