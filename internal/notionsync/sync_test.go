package notionsync

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-insights/internal/anomaly"
	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/insights"
)

// fakeNotion keeps pages in memory and pages query results two at a time.
type fakeNotion struct {
	pages   []*notionapi.Page
	queries int
	filters []notionapi.Filter
}

func (f *fakeNotion) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	p := &notionapi.Page{ID: notionapi.ObjectID(fmt.Sprintf("page-%d", len(f.pages)+1)), Properties: notionapi.Properties{}}
	for k, v := range properties {
		p.Properties[k] = v
	}
	f.pages = append(f.pages, p)
	return p, nil
}

func (f *fakeNotion) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	p := f.page(pageID)
	if p == nil {
		return nil, fmt.Errorf("no page %s", pageID)
	}
	for k, v := range properties {
		p.Properties[k] = v
	}
	return p, nil
}

func (f *fakeNotion) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	f.queries++
	if req.Filter != nil {
		f.filters = append(f.filters, req.Filter)
	}
	start := 0
	if req.StartCursor != "" {
		start, _ = strconv.Atoi(string(req.StartCursor))
	}
	end := start + 2
	if end > len(f.pages) {
		end = len(f.pages)
	}
	resp := &notionapi.DatabaseQueryResponse{}
	for _, p := range f.pages[start:end] {
		resp.Results = append(resp.Results, *p)
	}
	if end < len(f.pages) {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor(strconv.Itoa(end))
	}
	return resp, nil
}

func (f *fakeNotion) ArchivePage(ctx context.Context, pageID string) error {
	p := f.page(pageID)
	if p == nil {
		return fmt.Errorf("no page %s", pageID)
	}
	p.Archived = true
	return nil
}

func (f *fakeNotion) page(id string) *notionapi.Page {
	for _, p := range f.pages {
		if string(p.ID) == id {
			return p
		}
	}
	return nil
}

func (f *fakeNotion) live() []*notionapi.Page {
	var out []*notionapi.Page
	for _, p := range f.pages {
		if !p.Archived {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeNotion) setStatus(t *testing.T, anomalyID, status string) {
	t.Helper()
	for _, p := range f.pages {
		if pageText(*p, PropAnomalyID) == anomalyID {
			p.Properties[PropStatus] = &notionapi.SelectProperty{Select: notionapi.Option{Name: status}}
			return
		}
	}
	t.Fatalf("no page for anomaly %s", anomalyID)
}

func txn(day int, description, amount string) domain.Transaction {
	return domain.Transaction{
		TxnDate:     civil.Date{Year: 2025, Month: 1, Day: day},
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "THB",
	}
}

// analyzedUpload returns an upload with three open anomalies: one outlier
// and a duplicate pair.
func analyzedUpload(t *testing.T) (*insights.Service, string, []domain.Anomaly) {
	t.Helper()
	ctx := context.Background()
	svc, err := insights.NewMemoryService(ctx, anomaly.NewDetector(anomaly.DefaultConfig()))
	require.NoError(t, err)

	u, err := svc.CreateUpload(ctx, domain.Upload{Filename: "jan.csv"}, []domain.Transaction{
		txn(2, "Grab Ride", "-100"),
		txn(9, "Grab Ride", "-50"),
		txn(15, "Unknown Shop", "-5000"),
		txn(20, "Netflix", "-80"),
		txn(21, "Netflix", "-80"),
		txn(25, "Salary", "10000"),
	})
	require.NoError(t, err)
	_, err = svc.AnalyzeUpload(ctx, u.ID)
	require.NoError(t, err)

	anomalies, err := svc.UploadAnomalies(ctx, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)
	return svc, u.ID, anomalies
}

func TestSyncUpload_CreatesPagesOnce(t *testing.T) {
	ctx := context.Background()
	svc, uploadID, anomalies := analyzedUpload(t)
	notion := &fakeNotion{}
	s := NewSyncer(svc, notion, "db", false)

	res, err := s.SyncUpload(ctx, uploadID)
	require.NoError(t, err)
	assert.Equal(t, len(anomalies), res.Created)
	require.Len(t, notion.live(), len(anomalies))

	var ids []string
	for _, p := range notion.live() {
		assert.Equal(t, uploadID, pageText(*p, PropUploadID))
		assert.Equal(t, "open", pageSelect(*p, PropStatus))
		ids = append(ids, pageText(*p, PropAnomalyID))
	}
	var want []string
	for _, a := range anomalies {
		want = append(want, a.ID)
	}
	sort.Strings(ids)
	sort.Strings(want)
	assert.Equal(t, want, ids)

	res, err = s.SyncUpload(ctx, uploadID)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Len(t, notion.pages, len(anomalies))

	require.NotEmpty(t, notion.filters)
	pf, ok := notion.filters[0].(*notionapi.PropertyFilter)
	require.True(t, ok)
	assert.Equal(t, PropUploadID, pf.Property)
	assert.Equal(t, uploadID, pf.RichText.Equals)
}

func TestSyncUpload_AppliesDecisions(t *testing.T) {
	ctx := context.Background()
	svc, uploadID, anomalies := analyzedUpload(t)
	notion := &fakeNotion{}
	s := NewSyncer(svc, notion, "db", false)

	_, err := s.SyncUpload(ctx, uploadID)
	require.NoError(t, err)

	target := anomalies[0]
	notion.setStatus(t, target.ID, "dismissed")

	res, err := s.SyncUpload(ctx, uploadID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 0, res.Updated)

	after, err := svc.UploadAnomalies(ctx, uploadID)
	require.NoError(t, err)
	for _, a := range after {
		if a.ID == target.ID {
			assert.Equal(t, domain.StatusDismissed, a.Status)
			assert.NotNil(t, a.ReviewedAt)
		}
	}
}

func TestSyncUpload_StoreWinsConflicts(t *testing.T) {
	ctx := context.Background()
	svc, uploadID, anomalies := analyzedUpload(t)
	notion := &fakeNotion{}
	s := NewSyncer(svc, notion, "db", false)

	_, err := s.SyncUpload(ctx, uploadID)
	require.NoError(t, err)

	target := anomalies[0]
	_, err = svc.ReviewAnomaly(ctx, target.ID, "confirmed")
	require.NoError(t, err)
	notion.setStatus(t, target.ID, "dismissed")

	res, err := s.SyncUpload(ctx, uploadID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	assert.Equal(t, 1, res.Updated)

	for _, p := range notion.live() {
		if pageText(*p, PropAnomalyID) == target.ID {
			assert.Equal(t, "confirmed", pageSelect(*p, PropStatus))
		}
	}
}

func TestSyncUpload_ArchivesStalePages(t *testing.T) {
	ctx := context.Background()
	svc, uploadID, anomalies := analyzedUpload(t)
	notion := &fakeNotion{}
	_, err := notion.CreatePage(ctx, "db", AnomalyToNotionProperties(domain.Anomaly{
		ID: "gone", UploadID: uploadID, TransactionID: "t0", RuleName: domain.RuleLargeAmount,
		Severity: domain.SeverityMedium, Status: domain.StatusOpen,
	}, nil))
	require.NoError(t, err)
	_, err = notion.CreatePage(ctx, "db", AnomalyToNotionProperties(domain.Anomaly{
		ID: "other-upload", UploadID: "u-other", Status: domain.StatusOpen,
	}, nil))
	require.NoError(t, err)

	res, err := NewSyncer(svc, notion, "db", false).SyncUpload(ctx, uploadID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Archived)
	assert.Equal(t, len(anomalies), res.Created)
	assert.True(t, notion.pages[0].Archived)
	assert.False(t, notion.pages[1].Archived, "pages of other uploads are left alone")
}

func TestSyncUpload_DryRun(t *testing.T) {
	ctx := context.Background()
	svc, uploadID, anomalies := analyzedUpload(t)
	notion := &fakeNotion{}

	res, err := NewSyncer(svc, notion, "db", true).SyncUpload(ctx, uploadID)
	require.NoError(t, err)
	assert.Equal(t, len(anomalies), res.Created)
	assert.Empty(t, notion.pages)
}

func TestSyncUpload_UnknownUpload(t *testing.T) {
	svc, _, _ := analyzedUpload(t)
	_, err := NewSyncer(svc, &fakeNotion{}, "db", false).SyncUpload(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnomalyToNotionProperties(t *testing.T) {
	reviewed := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	a := domain.Anomaly{
		ID: "a1", UploadID: "u1", TransactionID: "t1", RuleName: domain.RuleStatisticalOutlier,
		Severity: domain.SeverityHigh, Status: domain.StatusConfirmed, Detail: "far out", ReviewedAt: &reviewed,
	}
	page := notionapi.Page{Properties: AnomalyToNotionProperties(a, nil)}

	assert.Equal(t, "a1", pageText(page, PropAnomalyID))
	assert.Equal(t, "t1", pageText(page, PropTransactionID))
	assert.Equal(t, "HIGH", pageSelect(page, PropSeverity))
	assert.Equal(t, "confirmed", pageSelect(page, PropStatus))
	assert.Equal(t, "far out", pageText(page, PropDetail))
	assert.Contains(t, page.Properties, PropReviewed)
	assert.NotContains(t, page.Properties, PropAmount)
	assert.Equal(t, "", pageText(page, "missing"))
}
