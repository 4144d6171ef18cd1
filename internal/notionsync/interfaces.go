package notionsync

import (
	"context"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/summary"
)

// NotionService defines the Notion operations the sync needs.
type NotionService interface {
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	ArchivePage(ctx context.Context, pageID string) error
}

// ReviewService is the part of insights.Service the sync drives.
type ReviewService interface {
	UploadReport(ctx context.Context, uploadID string) (summary.Report, error)
	ReviewAnomaly(ctx context.Context, id, decision string) (domain.Anomaly, error)
}
