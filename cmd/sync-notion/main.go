package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/statement-insights/internal/app"
	"github.com/dvloznov/statement-insights/internal/config"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/notionsync"
)

func main() {
	log := logger.New()

	configPath := flag.String("config", "", "Path to a TOML config file (defaults to $INSIGHTS_CONFIG or ./insights.toml)")
	uploadID := flag.String("upload-id", "", "Upload whose anomalies are synced (required)")
	notionToken := flag.String("notion-token", "", "Notion API token (overrides notion.token)")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID (overrides notion.database_id)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	if *uploadID == "" {
		log.Fatal().Msg("Error: --upload-id is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *notionToken != "" {
		cfg.Notion.Token = *notionToken
	}
	if *notionDBID != "" {
		cfg.Notion.DatabaseID = *notionDBID
	}
	if cfg.Notion.Token == "" {
		log.Fatal().Msg("Error: --notion-token or notion.token is required")
	}
	if cfg.Notion.DatabaseID == "" {
		log.Fatal().Msg("Error: --notion-db-id or notion.database_id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{Service: "insights-sync-notion"})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()
	if cfg.Database.URL == "" {
		a.Log.Fatal().Msg("Error: database.url is required, in-memory stores hold no uploads")
	}
	ctx = logger.WithContext(ctx, a.Log)

	a.Log.Info().
		Str("upload_id", *uploadID).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	syncer := notionsync.NewSyncer(a.Service, notionsync.NewNotionClient(cfg.Notion.Token), cfg.Notion.DatabaseID, *dryRun)
	res, err := syncer.SyncUpload(ctx, *uploadID)
	if err != nil {
		a.Log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d updated, %d archived, %d reviews applied, %d conflicts\n",
		res.Created, res.Updated, res.Archived, res.Applied, res.Conflicts)
}
