package categorizer

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/rules"
)

const (
	catFood      int64 = 1
	catTransport int64 = 2
	catShopping  int64 = 3
	catTransfer  int64 = 6
)

func fixtureRules() []domain.Rule {
	return []domain.Rule{
		{ID: 100, Keyword: "KFC", CategoryID: catFood, Priority: 10},
		{ID: 80, Keyword: "GRAB", CategoryID: catTransport, Priority: 8},
		{ID: 101, Keyword: "SHOPEE", CategoryID: catShopping, Priority: 10},
		{ID: 50, Keyword: "TRANSFER", CategoryID: catTransfer, Priority: 5},
	}
}

func txn(id, description string) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		Description: description,
		Amount:      decimal.RequireFromString("-120.00"),
		Currency:    "THB",
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		description  string
		wantCategory *int64
		wantRule     *int64
	}{
		{"case insensitive", "ซื้อ kfc อาหาร", ptr(catFood), ptr[int64](100)},
		{"lower priority value wins", "SHOPEE แต่มี GRAB FOOD", ptr(catTransport), ptr[int64](80)},
		{"transfer evaluated first", "TRANSFER TO KFC", ptr(catTransfer), ptr[int64](50)},
		{"no match", "RANDOM_STORE_XYZ_NOTHING", nil, nil},
		{"empty description", "", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.description, fixtureRules())
			require.Equal(t, tt.wantCategory, got.CategoryID)
			require.Equal(t, tt.wantRule, got.MatchedRuleID)
		})
	}
}

func TestClassifyPrecedenceIsFirstMatchNotBestMatch(t *testing.T) {
	ruleSet := []domain.Rule{
		{ID: 2, Keyword: "grab food", CategoryID: catFood, Priority: 2},
		{ID: 1, Keyword: "grab", CategoryID: catTransport, Priority: 1},
	}
	got := Classify("GRAB FOOD PAYMENT", ruleSet)
	require.Equal(t, ptr(catTransport), got.CategoryID)
	require.Equal(t, ptr(int64(1)), got.MatchedRuleID)
}

func TestClassifyTieBreaksOnID(t *testing.T) {
	ruleSet := []domain.Rule{
		{ID: 9, Keyword: "coffee", CategoryID: catShopping, Priority: 1},
		{ID: 3, Keyword: "coffee", CategoryID: catFood, Priority: 1},
	}
	for i := 0; i < 5; i++ {
		got := Classify("Coffee Club", ruleSet)
		require.Equal(t, ptr(int64(3)), got.MatchedRuleID)
	}
}

func TestClassifyDoesNotReorderCallerSlice(t *testing.T) {
	ruleSet := fixtureRules()
	_ = Classify("kfc", ruleSet)
	require.Equal(t, int64(100), ruleSet[0].ID)
}

func newEngine(t *testing.T) (*Engine, *rules.MemoryStore, map[string]domain.Rule) {
	t.Helper()
	ctx := context.Background()
	store := rules.NewMemoryStore(rules.NewMemoryCategories(rules.DefaultCategories...))
	byKeyword := map[string]domain.Rule{}
	for _, tc := range []struct {
		kw  string
		cat int64
		p   int
	}{
		{"kfc", rules.CategoryFood, 10},
		{"grab", rules.CategoryTransport, 8},
		{"shopee", rules.CategoryShopping, 10},
	} {
		p := tc.p
		r, err := store.Add(ctx, tc.kw, tc.cat, &p)
		require.NoError(t, err)
		byKeyword[tc.kw] = r
	}
	return NewEngine(store), store, byKeyword
}

func TestEngineClassifyBatch(t *testing.T) {
	ctx := context.Background()
	engine, store, byKeyword := newEngine(t)

	in := []domain.Transaction{txn("t1", "KFC lunch"), txn("t2", "GRAB taxi"), txn("t3", "SHOPEE order"), txn("t4", "unknown")}
	res, err := engine.ClassifyBatch(ctx, in)
	require.NoError(t, err)
	require.Equal(t, 4, res.Evaluated)
	require.Equal(t, 3, res.Matched)
	require.Zero(t, res.Skipped)

	require.Equal(t, ptr(rules.CategoryFood), res.Transactions[0].CategoryID)
	require.Equal(t, ptr(byKeyword["kfc"].ID), res.Transactions[0].MatchedRuleID)
	require.Equal(t, ptr(rules.CategoryTransport), res.Transactions[1].CategoryID)
	require.Equal(t, ptr(rules.CategoryShopping), res.Transactions[2].CategoryID)
	require.Nil(t, res.Transactions[3].CategoryID)
	require.Nil(t, res.Transactions[3].MatchedRuleID)

	// input untouched
	require.Nil(t, in[0].CategoryID)

	kfc, err := store.Get(ctx, byKeyword["kfc"].ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, kfc.MatchCount)
}

func TestEngineClassifyBatchIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, store, byKeyword := newEngine(t)

	in := []domain.Transaction{txn("t1", "grab ride"), txn("t2", "GRAB FOOD")}
	first, err := engine.ClassifyBatch(ctx, in)
	require.NoError(t, err)
	second, err := engine.ClassifyBatch(ctx, first.Transactions)
	require.NoError(t, err)
	require.Equal(t, first.Transactions, second.Transactions)

	grab, err := store.Get(ctx, byKeyword["grab"].ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, grab.MatchCount, "two runs over two re-evaluated rows")
}

func TestEngineOverrideImmunity(t *testing.T) {
	ctx := context.Background()
	engine, store, byKeyword := newEngine(t)

	pinned := OverrideCategory(txn("t1", "KFC dinner"), rules.CategoryShopping)
	require.True(t, pinned.Override)
	require.Nil(t, pinned.MatchedRuleID)

	res, err := engine.ClassifyBatch(ctx, []domain.Transaction{pinned})
	require.NoError(t, err)
	require.Equal(t, pinned, res.Transactions[0])
	require.Equal(t, 1, res.Skipped)

	// change the rule set and run again
	p := 0
	_, err = store.Add(ctx, "dinner", rules.CategoryFood, &p)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, byKeyword["kfc"].ID))

	res, err = engine.ClassifyBatch(ctx, res.Transactions)
	require.NoError(t, err)
	require.Equal(t, pinned, res.Transactions[0])
}

func TestEngineDryRun(t *testing.T) {
	ctx := context.Background()
	engine, store, byKeyword := newEngine(t)

	res, rule, err := engine.DryRun(ctx, "Grab Food")
	require.NoError(t, err)
	require.True(t, res.Matched())
	require.Equal(t, "grab", rule.Keyword)

	got, err := store.Get(ctx, byKeyword["grab"].ID)
	require.NoError(t, err)
	require.Zero(t, got.MatchCount)

	res, rule, err = engine.DryRun(ctx, "nothing here")
	require.NoError(t, err)
	require.False(t, res.Matched())
	require.Nil(t, rule)
}

func ptr[T any](v T) *T { return &v }
