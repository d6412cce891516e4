package reports_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"agrofin/finsync/cache"
	"agrofin/finsync/normalize"
	"agrofin/finsync/relational"
	"agrofin/finsync/reports"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(t *testing.T, raw string) any {
	t.Helper()
	ts, ok := normalize.DecodeTimestamp(raw)
	require.True(t, ok, raw)
	return ts
}

func seededEngine(t *testing.T) *relational.Engine {
	t.Helper()
	ctx := context.Background()
	engine, err := relational.Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "finsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	_, err = engine.SyncLedgerEntries(ctx, [][]any{
		{"l1", at(t, "20240115093000"), "Soy sale", 1500.25, "c1", "a1", "[]", false},
		{"l2", at(t, "20240120"), "Freight", -320.5, "c2", "a1", "[]", false},
		{"l3", at(t, "20240203"), "Corn sale", 800.0, "c1", "a2", "[]", false},
		{"l4", at(t, "20240310"), "Planned sale", 2000.0, "c1", "a1", "[]", true},
		{"l5", at(t, "20240105"), "Bank fee", -12.3, "missing", "a1", "[]", false},
		{"l6", nil, "Undated", 999.0, "c1", "a1", "[]", false},
		{"l7", at(t, "20231231235959"), "Last year", 50.0, "c1", "a1", "[]", false},
	})
	require.NoError(t, err)

	_, err = engine.SyncCategories(ctx, [][]any{
		{"c1", "Revenue", "Grain", "operational", "operating", "in"},
		{"c2", "Logistics", "Freight", "operational", "operating", "out"},
	})
	require.NoError(t, err)

	_, err = engine.SyncAccounts(ctx, [][]any{
		{"a2", "Savings", "Banco B", "002", 250.105, "Agro Logistica", "11"},
		{"a1", "Main", "Banco A", "001", 1000.0, "Agro Graos", "22"},
	})
	require.NoError(t, err)
	return engine
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCashFlow(t *testing.T) {
	engine := seededEngine(t)
	r := reports.New(engine.DB(), nil)

	report, err := r.CashFlow(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, report.Realized, 12)
	require.Len(t, report.Forecast, 12)

	jan := report.Realized[0]
	assert.Equal(t, 1, jan.Month)
	assert.True(t, dec("1500.25").Equal(jan.Inflow), jan.Inflow.String())
	assert.True(t, dec("332.8").Equal(jan.Outflow), jan.Outflow.String())
	assert.True(t, dec("1167.45").Equal(jan.Net), jan.Net.String())

	assert.True(t, dec("800").Equal(report.Realized[1].Inflow))
	assert.True(t, report.Realized[2].Inflow.IsZero())
	assert.True(t, dec("2000").Equal(report.Forecast[2].Inflow))
	assert.True(t, report.Forecast[0].Net.IsZero())
}

func TestCashFlow_UsesLocalYearBoundary(t *testing.T) {
	engine := seededEngine(t)
	r := reports.New(engine.DB(), nil)

	report, err := r.CashFlow(context.Background(), 2023)
	require.NoError(t, err)
	assert.True(t, dec("50").Equal(report.Realized[11].Inflow))
}

func TestCategoryBreakdown(t *testing.T) {
	engine := seededEngine(t)
	r := reports.New(engine.DB(), nil)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, normalize.Zone)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, normalize.Zone)
	totals, err := r.CategoryBreakdown(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, totals, 3)

	assert.Equal(t, "Logistics", totals[0].Category)
	assert.True(t, dec("-320.5").Equal(totals[0].Total))
	assert.Equal(t, "Revenue", totals[1].Category)
	assert.Equal(t, "Grain", totals[1].Item)
	assert.Equal(t, 1, totals[1].Entries)
	assert.Equal(t, reports.Uncategorized, totals[2].Category)
	assert.True(t, dec("-12.3").Equal(totals[2].Total))
}

func TestCategoryBreakdown_InclusiveEnd(t *testing.T) {
	engine := seededEngine(t)
	r := reports.New(engine.DB(), nil)

	day := time.Date(2024, 2, 3, 0, 0, 0, 0, normalize.Zone)
	totals, err := r.CategoryBreakdown(context.Background(), day, day)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.True(t, dec("800").Equal(totals[0].Total))
	assert.Equal(t, 1, totals[0].Entries)
}

func TestCategoryBreakdown_InvalidRange(t *testing.T) {
	engine := seededEngine(t)
	r := reports.New(engine.DB(), nil)

	_, err := r.CategoryBreakdown(context.Background(),
		time.Date(2024, 2, 1, 0, 0, 0, 0, normalize.Zone),
		time.Date(2024, 1, 1, 0, 0, 0, 0, normalize.Zone))
	require.ErrorIs(t, err, reports.ErrInvalidRange)
}

func TestAccountBalances(t *testing.T) {
	engine := seededEngine(t)
	r := reports.New(engine.DB(), nil)

	balances, err := r.AccountBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances.Accounts, 2)
	assert.Equal(t, "Main", balances.Accounts[0].Account)
	assert.Equal(t, "Banco A", balances.Accounts[0].BankName)
	assert.Equal(t, "Savings", balances.Accounts[1].Account)
	assert.True(t, dec("250.11").Equal(balances.Accounts[1].Value), balances.Accounts[1].Value.String())
	assert.True(t, dec("1250.11").Equal(balances.Total), balances.Total.String())
}

func TestReports_MissingTables(t *testing.T) {
	engine, err := relational.Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer engine.Close()

	_, err = reports.New(engine.DB(), nil).AccountBalances(context.Background())
	require.Error(t, err)
}

func TestReports_CachedUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	engine := seededEngine(t)
	r := reports.New(engine.DB(), cache.New(time.Hour))

	before, err := r.AccountBalances(ctx)
	require.NoError(t, err)

	_, err = engine.SyncAccounts(ctx, [][]any{{"a3", "Payroll", "Banco C", "003", 100.0, "Agro Consultoria", "33"}})
	require.NoError(t, err)

	cached, err := r.AccountBalances(ctx)
	require.NoError(t, err)
	assert.Len(t, cached.Accounts, len(before.Accounts))

	r.Invalidate()
	fresh, err := r.AccountBalances(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh.Accounts, 3)
}

func TestReports_NonFiniteStoredAmounts(t *testing.T) {
	ctx := context.Background()
	engine := seededEngine(t)

	_, err := engine.SyncLedgerEntries(ctx, [][]any{
		{"l1", at(t, "20240115093000"), "Soy sale", 1500.25, "c1", "a1", "[]", false},
		{"bad", at(t, "20240116"), "Broken import", math.Inf(1), "c1", "a1", "[]", false},
	})
	require.NoError(t, err)
	_, err = engine.SyncAccounts(ctx, [][]any{{"a9", "Broken", "Banco Z", "999", math.Inf(-1), "Agro", "99"}})
	require.NoError(t, err)

	r := reports.New(engine.DB(), nil)
	var (
		flow     reports.CashFlow
		totals   []reports.CategoryTotal
		balances reports.Balances
	)
	require.NotPanics(t, func() {
		flow, err = r.CashFlow(ctx, 2024)
		require.NoError(t, err)
		totals, err = r.CategoryBreakdown(ctx,
			time.Date(2024, 1, 1, 0, 0, 0, 0, normalize.Zone),
			time.Date(2024, 1, 31, 0, 0, 0, 0, normalize.Zone))
		require.NoError(t, err)
		balances, err = r.AccountBalances(ctx)
		require.NoError(t, err)
	})

	assert.True(t, dec("1500.25").Equal(flow.Realized[0].Inflow), flow.Realized[0].Inflow.String())
	require.Len(t, totals, 1)
	assert.Equal(t, 2, totals[0].Entries)
	assert.True(t, dec("1500.25").Equal(totals[0].Total))
	assert.True(t, dec("1250.11").Equal(balances.Total), balances.Total.String())
}
