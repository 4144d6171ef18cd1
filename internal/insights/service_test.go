package insights

import (
	"bytes"
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-insights/internal/anomaly"
	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/logger"
	"github.com/dvloznov/statement-insights/internal/rules"
)

var now = time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	rules *rules.MemoryStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	categories := rules.NewMemoryCategories()
	store := rules.NewMemoryStore(categories)
	require.NoError(t, rules.Seed(ctx, categories, store))

	svc := NewService(Deps{
		Rules:        store,
		Categories:   categories,
		Transactions: NewMemoryTransactions(),
		Uploads:      NewMemoryUploads(),
		Anomalies:    anomaly.NewMemoryStore(),
		Detector:     anomaly.NewDetector(anomaly.DefaultConfig()).WithClock(func() time.Time { return now }),
		Now:          func() time.Time { return now },
	})
	return fixture{svc: svc, rules: store}
}

func row(day, description, amount string) domain.Transaction {
	d, err := civil.ParseDate(day)
	if err != nil {
		panic(err)
	}
	return domain.Transaction{
		TxnDate:     d,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "THB",
	}
}

func scenarioRows() []domain.Transaction {
	return []domain.Transaction{
		row("2025-01-02", "Grab Ride", "-100"),
		row("2025-01-09", "Grab Ride", "-50"),
		row("2025-01-15", "Unknown Shop", "-5000"),
		row("2025-01-25", "Salary", "10000"),
	}
}

func createUpload(t *testing.T, f fixture) domain.Upload {
	t.Helper()
	u, err := f.svc.CreateUpload(context.Background(), domain.Upload{Filename: "jan.csv", FileType: "csv"}, scenarioRows())
	require.NoError(t, err)
	return u
}

func TestAnalyzeUploadScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := createUpload(t, f)
	require.Equal(t, domain.UploadStatusPending, u.Status)
	require.Equal(t, 4, u.RowCount)

	res, err := f.svc.AnalyzeUpload(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 4, res.Evaluated)
	require.Equal(t, 3, res.Matched) // grab x2, salary
	require.Len(t, res.NewAnomalies, 1)
	require.Equal(t, domain.RuleStatisticalOutlier, res.NewAnomalies[0].RuleName)
	require.Equal(t, domain.SeverityHigh, res.NewAnomalies[0].Severity)

	s := res.Summary
	require.True(t, s.TotalIncome.Equal(decimal.NewFromInt(10000)))
	require.True(t, s.TotalExpense.Equal(decimal.NewFromInt(5150)))
	require.True(t, s.NetBalance.Equal(decimal.NewFromInt(4850)))
	require.Len(t, s.ByCategory, 1)
	require.True(t, s.ByCategory[rules.CategoryTransport].Equal(decimal.NewFromInt(150)))
	require.Equal(t, 1, s.AnomalyCount)

	stored, err := f.svc.GetUpload(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.UploadStatusProcessed, stored.Status)

	same, err := f.svc.UploadSummary(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, s.NetBalance.String(), same.NetBalance.String())
}

func TestAnalyzeUploadTwiceDoesNotDuplicateAnomalies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := createUpload(t, f)

	_, err := f.svc.AnalyzeUpload(ctx, u.ID)
	require.NoError(t, err)
	again, err := f.svc.AnalyzeUpload(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, again.NewAnomalies)

	list, err := f.svc.UploadAnomalies(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	rulesList, err := f.svc.ListRules(ctx)
	require.NoError(t, err)
	for _, r := range rulesList {
		if r.Keyword == "grab" {
			require.EqualValues(t, 4, r.MatchCount)
		}
	}
}

func TestOverrideSurvivesReanalysis(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := createUpload(t, f)
	_, err := f.svc.AnalyzeUpload(ctx, u.ID)
	require.NoError(t, err)

	txns, err := f.svc.UploadTransactions(ctx, u.ID)
	require.NoError(t, err)
	shop := txns[2]
	require.Equal(t, "Unknown Shop", shop.Description)

	pinned, err := f.svc.OverrideCategory(ctx, shop.ID, rules.CategoryShopping)
	require.NoError(t, err)
	require.True(t, pinned.Override)

	p := 0
	_, err = f.svc.AddRule(ctx, "unknown", rules.CategoryBills, &p)
	require.NoError(t, err)
	_, err = f.svc.AnalyzeUpload(ctx, u.ID)
	require.NoError(t, err)

	txns, err = f.svc.UploadTransactions(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, rules.CategoryShopping, *txns[2].CategoryID)
	require.True(t, txns[2].Override)

	s, err := f.svc.UploadSummary(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, s.ByCategory[rules.CategoryShopping].Equal(decimal.NewFromInt(5000)))
	require.True(t, s.TotalExpense.Equal(decimal.NewFromInt(5150)))
}

func TestOverrideCategoryValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.OverrideCategory(ctx, "missing", rules.CategoryFood)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.OverrideCategory(ctx, "missing", 999)
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestReviewAnomalyThroughService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := createUpload(t, f)
	res, err := f.svc.AnalyzeUpload(ctx, u.ID)
	require.NoError(t, err)
	id := res.NewAnomalies[0].ID

	a, err := f.svc.ReviewAnomaly(ctx, id, "confirmed")
	require.NoError(t, err)
	require.Equal(t, domain.StatusConfirmed, a.Status)
	require.Equal(t, now, *a.ReviewedAt)

	_, err = f.svc.ReviewAnomaly(ctx, id, "dismissed")
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)

	s, err := f.svc.UploadSummary(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, s.AnomalyCount)
}

func TestDeleteSystemRule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	before, err := f.svc.ListRules(ctx)
	require.NoError(t, err)
	var system domain.Rule
	for _, r := range before {
		if r.System {
			system = r
			break
		}
	}
	require.True(t, system.System)

	err = f.svc.DeleteRule(ctx, system.ID)
	require.ErrorIs(t, err, domain.ErrProtectedRule)

	after, err := f.svc.ListRules(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestAnalyzeUnknownUpload(t *testing.T) {
	_, err := newFixture(t).svc.AnalyzeUpload(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUploadReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := createUpload(t, f)
	_, err := f.svc.AnalyzeUpload(ctx, u.ID)
	require.NoError(t, err)

	r, err := f.svc.UploadReport(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, r.Lines, 4)
	require.Equal(t, "TRANSPORT", r.Lines[0].CategoryName)
	require.Equal(t, domain.UncategorizedName, r.Lines[2].CategoryName)
	require.Equal(t, "INCOME", r.Lines[3].CategoryName)
	require.Equal(t, domain.UncategorizedName, r.Breakdown[0].Name)
}

// snapshotHook runs afterList once, right after the next ListTransactions
// snapshot has been taken.
type snapshotHook struct {
	*MemoryTransactions
	afterList func()
}

func (h *snapshotHook) ListTransactions(ctx context.Context, uploadID string) ([]domain.Transaction, error) {
	out, err := h.MemoryTransactions.ListTransactions(ctx, uploadID)
	if fn := h.afterList; fn != nil {
		h.afterList = nil
		fn()
	}
	return out, err
}

func TestOverrideDuringAnalysisIsKept(t *testing.T) {
	ctx := context.Background()
	categories := rules.NewMemoryCategories()
	store := rules.NewMemoryStore(categories)
	require.NoError(t, rules.Seed(ctx, categories, store))
	txRepo := &snapshotHook{MemoryTransactions: NewMemoryTransactions()}
	svc := NewService(Deps{
		Rules:        store,
		Categories:   categories,
		Transactions: txRepo,
		Uploads:      NewMemoryUploads(),
		Anomalies:    anomaly.NewMemoryStore(),
		Now:          func() time.Time { return now },
	})

	u, err := svc.CreateUpload(ctx, domain.Upload{Filename: "jan.csv", FileType: "csv"}, scenarioRows())
	require.NoError(t, err)
	txns, err := svc.UploadTransactions(ctx, u.ID)
	require.NoError(t, err)
	ride := txns[0]
	require.Equal(t, "Grab Ride", ride.Description)

	txRepo.afterList = func() {
		_, err := svc.OverrideCategory(ctx, ride.ID, rules.CategoryFood)
		require.NoError(t, err)
	}
	res, err := svc.AnalyzeUpload(ctx, u.ID)
	require.NoError(t, err)

	stored, err := txRepo.GetTransaction(ctx, ride.ID)
	require.NoError(t, err)
	require.True(t, stored.Override)
	require.Equal(t, rules.CategoryFood, *stored.CategoryID)
	require.Nil(t, stored.MatchedRuleID)
	require.True(t, res.Summary.ByCategory[rules.CategoryFood].Equal(decimal.NewFromInt(100)))
}

func TestSaveClassificationsSkipsOverrides(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTransactions()
	food, transport, ruleID := rules.CategoryFood, rules.CategoryTransport, int64(7)

	pinned := row("2025-01-02", "Grab Food", "-120")
	pinned.ID, pinned.CategoryID, pinned.Override = "pinned", &food, true
	open := row("2025-01-03", "Grab Ride", "-80")
	open.ID = "open"
	require.NoError(t, repo.SaveTransactions(ctx, []domain.Transaction{pinned, open}))

	reclassified := []domain.Transaction{pinned, open}
	for i := range reclassified {
		reclassified[i].CategoryID = &transport
		reclassified[i].MatchedRuleID = &ruleID
		reclassified[i].Override = false
		reclassified[i].Description = "changed"
	}
	require.NoError(t, repo.SaveClassifications(ctx, reclassified))

	got, err := repo.GetTransaction(ctx, "pinned")
	require.NoError(t, err)
	require.True(t, got.Override)
	require.Equal(t, food, *got.CategoryID)
	require.Nil(t, got.MatchedRuleID)

	got, err = repo.GetTransaction(ctx, "open")
	require.NoError(t, err)
	require.Equal(t, transport, *got.CategoryID)
	require.Equal(t, ruleID, *got.MatchedRuleID)
	require.Equal(t, "Grab Ride", got.Description)
	require.False(t, got.Override)
}

func TestRuleChangesAreLogged(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))
	f := newFixture(t)

	r, err := f.svc.AddRule(ctx, "lotus", rules.CategoryFood, nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteRule(ctx, r.ID))

	require.Contains(t, buf.String(), "Rule added")
	require.Contains(t, buf.String(), "Rule deleted")
	require.Contains(t, buf.String(), `"keyword":"lotus"`)
}
