package notionsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/summary"
)

// PageSize is the Notion query page size.
const PageSize = 100

// Result counts what one sync run did.
type Result struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Archived  int `json:"archived"`
	Applied   int `json:"applied"`
	Conflicts int `json:"conflicts"`
}

// Syncer mirrors the anomalies of uploads into one Notion database.
type Syncer struct {
	svc        ReviewService
	notion     NotionService
	databaseID string
	dryRun     bool
}

// NewSyncer creates a Syncer. With dryRun set nothing is written to Notion
// or to the anomaly store.
func NewSyncer(svc ReviewService, notion NotionService, databaseID string, dryRun bool) *Syncer {
	return &Syncer{svc: svc, notion: notion, databaseID: databaseID, dryRun: dryRun}
}

// SyncUpload pulls decisions for the upload, then pushes its anomalies, so a
// decision made in Notion is never overwritten by the stale open state.
func (s *Syncer) SyncUpload(ctx context.Context, uploadID string) (Result, error) {
	log := logger.FromContext(ctx).With().
		Str("upload_id", uploadID).
		Bool("dry_run", s.dryRun).
		Logger()
	ctx = logger.WithContext(ctx, log)

	pages, err := s.uploadPages(ctx, uploadID)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if err := s.pull(ctx, pages, &res); err != nil {
		return res, err
	}

	report, err := s.svc.UploadReport(ctx, uploadID)
	if err != nil {
		return res, fmt.Errorf("SyncUpload: %w", err)
	}
	if err := s.push(ctx, report, pages, &res); err != nil {
		return res, err
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("applied", res.Applied).
		Int("conflicts", res.Conflicts).
		Msg("Notion sync complete")
	return res, nil
}

// pull applies confirmed/dismissed choices made on the board. A decision on
// an anomaly that was already resolved elsewhere is a conflict; the store wins.
func (s *Syncer) pull(ctx context.Context, pages map[string]notionapi.Page, res *Result) error {
	log := logger.FromContext(ctx)

	for id, page := range pages {
		decision := pageSelect(page, PropStatus)
		if decision == "" || decision == string(domain.StatusOpen) {
			continue
		}
		if _, err := domain.ParseDecision(decision); err != nil {
			log.Warn().Str("anomaly_id", id).Str("status", decision).Msg("Ignoring unknown status on Notion page")
			continue
		}
		if s.dryRun {
			log.Info().Str("anomaly_id", id).Str("decision", decision).Msg("[DRY RUN] Would apply decision")
			res.Applied++
			continue
		}

		_, err := s.svc.ReviewAnomaly(ctx, id, decision)
		switch {
		case err == nil:
			log.Info().Str("anomaly_id", id).Str("decision", decision).Msg("Applied decision from Notion")
			res.Applied++
		case errors.Is(err, domain.ErrAlreadyResolved):
			res.Conflicts++
		case errors.Is(err, domain.ErrNotFound):
			// Left for push to archive.
		default:
			return fmt.Errorf("pull: anomaly %s: %w", id, err)
		}
	}
	return nil
}

// push creates pages for open anomalies, refreshes the review state of
// existing pages and archives pages whose anomaly no longer exists.
func (s *Syncer) push(ctx context.Context, report summary.Report, pages map[string]notionapi.Page, res *Result) error {
	log := logger.FromContext(ctx)

	lines := make(map[string]*summary.Line, len(report.Lines))
	for i := range report.Lines {
		lines[report.Lines[i].TransactionID] = &report.Lines[i]
	}

	known := make(map[string]bool, len(report.Anomalies))
	for _, a := range report.Anomalies {
		known[a.ID] = true
		page, exists := pages[a.ID]

		switch {
		case !exists && a.Status == domain.StatusOpen:
			if s.dryRun {
				log.Info().Str("anomaly_id", a.ID).Msg("[DRY RUN] Would create Notion page")
				res.Created++
				continue
			}
			created, err := s.notion.CreatePage(ctx, s.databaseID, AnomalyToNotionProperties(a, lines[a.TransactionID]))
			if err != nil {
				log.Warn().Err(err).Str("anomaly_id", a.ID).Msg("Failed to create Notion page")
				continue
			}
			log.Debug().Str("anomaly_id", a.ID).Str("page_id", string(created.ID)).Msg("Created Notion page")
			res.Created++

		case exists && pageSelect(page, PropStatus) != string(a.Status):
			if s.dryRun {
				log.Info().Str("anomaly_id", a.ID).Str("status", string(a.Status)).Msg("[DRY RUN] Would update Notion page")
				res.Updated++
				continue
			}
			if _, err := s.notion.UpdatePage(ctx, string(page.ID), StatusProperties(a)); err != nil {
				log.Warn().Err(err).Str("anomaly_id", a.ID).Str("page_id", string(page.ID)).Msg("Failed to update Notion page")
				continue
			}
			res.Updated++
		}
	}

	for id, page := range pages {
		if known[id] {
			continue
		}
		if s.dryRun {
			log.Info().Str("anomaly_id", id).Msg("[DRY RUN] Would archive stale Notion page")
			res.Archived++
			continue
		}
		if err := s.notion.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			continue
		}
		res.Archived++
	}
	return nil
}

// uploadPages indexes the upload's pages by anomaly id.
func (s *Syncer) uploadPages(ctx context.Context, uploadID string) (map[string]notionapi.Page, error) {
	all, err := queryAllNotionPages(ctx, s.notion, s.databaseID, uploadFilter(uploadID))
	if err != nil {
		return nil, err
	}
	pages := make(map[string]notionapi.Page)
	for _, p := range all {
		if p.Archived || pageText(p, PropUploadID) != uploadID {
			continue
		}
		if id := pageText(p, PropAnomalyID); id != "" {
			pages[id] = p
		}
	}
	return pages, nil
}

// uploadFilter narrows a query to one upload's rows. Results are still
// checked locally.
func uploadFilter(uploadID string) notionapi.Filter {
	return &notionapi.PropertyFilter{
		Property: PropUploadID,
		RichText: &notionapi.TextFilterCondition{Equals: uploadID},
	}
}

// queryAllNotionPages follows the query cursor to the end.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string, filter notionapi.Filter) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{Filter: filter, PageSize: PageSize}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}
		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}
	return allPages, nil
}
