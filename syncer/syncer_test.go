package syncer_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agrofin/finsync/config"
	"agrofin/finsync/model"
	"agrofin/finsync/relational"
	"agrofin/finsync/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type fakeSource struct {
	ledger     []bson.M
	categories []bson.M
	accounts   []bson.M

	LedgerEntriesFunc func(ctx context.Context) ([]bson.M, error)
	CategoriesFunc    func(ctx context.Context) ([]bson.M, error)
	AccountsFunc      func(ctx context.Context) ([]bson.M, error)
}

func (f *fakeSource) LedgerEntries(ctx context.Context) ([]bson.M, error) {
	if f.LedgerEntriesFunc != nil {
		return f.LedgerEntriesFunc(ctx)
	}
	return f.ledger, nil
}

func (f *fakeSource) Categories(ctx context.Context) ([]bson.M, error) {
	if f.CategoriesFunc != nil {
		return f.CategoriesFunc(ctx)
	}
	return f.categories, nil
}

func (f *fakeSource) Accounts(ctx context.Context) ([]bson.M, error) {
	if f.AccountsFunc != nil {
		return f.AccountsFunc(ctx)
	}
	return f.accounts, nil
}

// failingAccounts delegates to the engine but rejects the accounts stage.
type failingAccounts struct {
	*relational.Engine
}

func (f failingAccounts) SyncAccounts(context.Context, [][]any) (int64, error) {
	return 0, errors.New("constraint violation")
}

func newSource() *fakeSource {
	return &fakeSource{
		ledger: []bson.M{
			{"_id": "l1", "date": "20240115093000", "name": "Soy sale", "value": 1500.0, "category": "c1", "account_id": "a1", "orders": bson.A{"o1", "o2"}, "is_forecast": false},
			{"_id": "l2", "date": "20240120", "name": "Freight", "value": -320.5, "category": "c2", "account_id": "a1"},
			{"_id": "l3", "date": "20240201", "name": "Duplicate", "value": -10.0, "isIgnored": true},
		},
		categories: []bson.M{
			{"_id": "c1", "category": "Revenue", "item": "Grain", "type": "operational", "dfc": "operating", "dfc_equal": "in"},
			{"_id": "c2", "category": "Logistics", "item": "Freight", "type": "operational", "dfc": "operating", "dfc_equal": "out"},
		},
		accounts: []bson.M{
			{"_id": "a1", "account": "Main", "bank": bson.M{"name": "Banco", "number": "001"}, "value": 1000.0, "company": bson.M{"name": "Agro", "cnpj": "00.000.000/0001-00"}},
		},
	}
}

func openEngine(t *testing.T) *relational.Engine {
	t.Helper()
	engine, err := relational.Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "finsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func openerFor(source syncer.DocumentSource, target syncer.Target, closeErr error) syncer.Opener {
	return func(context.Context) (*syncer.Stores, error) {
		return &syncer.Stores{
			Source: source,
			Target: target,
			Close:  func(context.Context) error { return closeErr },
		}, nil
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table)).Scan(&n))
	return n
}

func dumpLedger(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query(`SELECT "id", "date", "name", "value", "category", "account_id", "orders", "is_forecast" ` +
		`FROM "finances" ORDER BY "id"`)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var (
			id, name, orders    string
			date                sql.NullTime
			category, accountID sql.NullString
			value               float64
			forecast            bool
		)
		require.NoError(t, rows.Scan(&id, &date, &name, &value, &category, &accountID, &orders, &forecast))
		var when string
		if date.Valid {
			when = date.Time.UTC().Format(time.RFC3339)
		}
		out = append(out, fmt.Sprintf("%s|%s|%s|%v|%s|%s|%s|%v",
			id, when, name, value, category.String, accountID.String, orders, forecast))
	}
	require.NoError(t, rows.Err())
	return out
}

func hasLinePrefix(logs []string, prefix string) bool {
	for _, line := range logs {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func TestRunSync_Success(t *testing.T) {
	engine := openEngine(t)
	result := syncer.New(openerFor(newSource(), engine, nil)).RunSync(context.Background())

	require.Equal(t, syncer.StatusSuccess, result.Status, strings.Join(result.Logs, "\n"))
	assert.Equal(t, len(result.Logs), result.TotalLogs)
	assert.True(t, strings.HasPrefix(result.Logs[0], "START: run "))
	assert.Equal(t, "END: sync completed successfully", result.Logs[len(result.Logs)-1])
	assert.Contains(t, result.Logs, "SYNC_LEDGER: read 3 documents from finances")
	assert.Contains(t, result.Logs, "SYNC_LEDGER: skipped 1 ignored documents")
	assert.Contains(t, result.Logs, "SYNC_LEDGER: wrote 2 rows to finances")
	assert.Contains(t, result.Logs, "SYNC_CATEGORIES: wrote 2 rows to finances_categories")
	assert.Contains(t, result.Logs, "SYNC_ACCOUNTS: wrote 1 rows to finance_accounts")
	assert.Contains(t, result.Logs, "CLOSE: connections closed")

	assert.Equal(t, []string{
		`l1|2024-01-15T12:30:00Z|Soy sale|1500|c1|a1|["o1","o2"]|false`,
		`l2|2024-01-20T03:00:00Z|Freight|-320.5|c2|a1|[]|false`,
	}, dumpLedger(t, engine.DB()))

	var (
		status string
		total  int
		failed sql.NullString
	)
	require.NoError(t, engine.DB().QueryRow(
		`SELECT "status", "total_logs", "failed_stage" FROM "sync_runs"`,
	).Scan(&status, &total, &failed))
	assert.Equal(t, syncer.StatusSuccess, status)
	assert.Equal(t, result.TotalLogs, total)
	assert.False(t, failed.Valid)
}

func TestRunSync_IgnoredEntriesNeverReachLedger(t *testing.T) {
	engine := openEngine(t)
	source := newSource()
	s := syncer.New(openerFor(source, engine, nil))

	require.Equal(t, syncer.StatusSuccess, s.RunSync(context.Background()).Status)
	assert.Equal(t, 2, countRows(t, engine.DB(), model.Ledger.Name))

	// Flipping a previously synced entry to ignored removes it on the next run.
	source.ledger[0]["isIgnored"] = true
	require.Equal(t, syncer.StatusSuccess, s.RunSync(context.Background()).Status)

	var n int
	require.NoError(t, engine.DB().QueryRow(`SELECT COUNT(*) FROM "finances" WHERE "id" IN ('l1', 'l3')`).Scan(&n))
	assert.Zero(t, n)
}

func TestRunSync_Idempotent(t *testing.T) {
	engine := openEngine(t)
	s := syncer.New(openerFor(newSource(), engine, nil))

	require.Equal(t, syncer.StatusSuccess, s.RunSync(context.Background()).Status)
	first := dumpLedger(t, engine.DB())

	second := s.RunSync(context.Background())
	require.Equal(t, syncer.StatusSuccess, second.Status)
	assert.Equal(t, first, dumpLedger(t, engine.DB()))
	assert.Equal(t, 2, countRows(t, engine.DB(), model.Categories.Name))
	assert.Equal(t, 1, countRows(t, engine.DB(), model.Accounts.Name))
	assert.Contains(t, second.Logs, "SYNC_CATEGORIES: wrote 0 rows to finances_categories")
	assert.Contains(t, second.Logs, "SYNC_ACCOUNTS: wrote 0 rows to finance_accounts")
	assert.Equal(t, 2, countRows(t, engine.DB(), model.SyncRuns.Name))
}

func TestRunSync_AccountsFailureKeepsEarlierStages(t *testing.T) {
	engine := openEngine(t)
	result := syncer.New(openerFor(newSource(), failingAccounts{engine}, nil)).RunSync(context.Background())

	require.Equal(t, syncer.StatusError, result.Status)
	assert.Equal(t, len(result.Logs), result.TotalLogs)
	assert.True(t, hasLinePrefix(result.Logs, "SYNC_LEDGER: wrote"))
	assert.True(t, hasLinePrefix(result.Logs, "SYNC_CATEGORIES: wrote"))
	assert.Contains(t, result.Logs, "SYNC_ACCOUNTS: failed to write finance_accounts: constraint violation")
	assert.Equal(t, "ERROR_END: SYNC_ACCOUNTS failed, remaining stages skipped", result.Logs[len(result.Logs)-1])

	assert.Equal(t, 2, countRows(t, engine.DB(), model.Ledger.Name))
	assert.Equal(t, 2, countRows(t, engine.DB(), model.Categories.Name))

	var failed string
	require.NoError(t, engine.DB().QueryRow(`SELECT "failed_stage" FROM "sync_runs"`).Scan(&failed))
	assert.Equal(t, "SYNC_ACCOUNTS", failed)
}

func TestRunSync_ReadFailureSkipsRemainingStages(t *testing.T) {
	engine := openEngine(t)
	source := newSource()
	accountsRead := false
	source.LedgerEntriesFunc = func(context.Context) ([]bson.M, error) {
		return nil, errors.New("server selection timeout")
	}
	source.AccountsFunc = func(context.Context) ([]bson.M, error) {
		accountsRead = true
		return nil, nil
	}

	result := syncer.New(openerFor(source, engine, nil)).RunSync(context.Background())

	require.Equal(t, syncer.StatusError, result.Status)
	assert.Contains(t, result.Logs, "SYNC_LEDGER: failed to read finances: server selection timeout")
	assert.False(t, hasLinePrefix(result.Logs, "SYNC_CATEGORIES"))
	assert.False(t, accountsRead)
}

func TestRunSync_OpenFailure(t *testing.T) {
	open := func(context.Context) (*syncer.Stores, error) {
		return nil, errors.New("connection refused")
	}

	result := syncer.New(open).RunSync(context.Background())

	require.Equal(t, syncer.StatusError, result.Status)
	require.Len(t, result.Logs, 2)
	assert.Equal(t, 2, result.TotalLogs)
	assert.Equal(t, "ERROR_END: START failed: connection refused", result.Logs[1])
}

func TestRunSync_PanicBecomesErrorVerdict(t *testing.T) {
	engine := openEngine(t)
	source := newSource()
	source.CategoriesFunc = func(context.Context) ([]bson.M, error) {
		panic("unexpected document shape")
	}

	var result syncer.Result
	require.NotPanics(t, func() {
		result = syncer.New(openerFor(source, engine, nil)).RunSync(context.Background())
	})

	require.Equal(t, syncer.StatusError, result.Status)
	assert.Contains(t, result.Logs, "SYNC_CATEGORIES: panic: unexpected document shape")
	assert.Equal(t, 2, countRows(t, engine.DB(), model.Ledger.Name))
}

func TestRunSync_CloseErrorKeepsSuccess(t *testing.T) {
	engine := openEngine(t)
	result := syncer.New(openerFor(newSource(), engine, errors.New("already closed"))).RunSync(context.Background())

	require.Equal(t, syncer.StatusSuccess, result.Status)
	assert.Contains(t, result.Logs, "CLOSE: failed to close connections: already closed")
	assert.Equal(t, "END: sync completed successfully", result.Logs[len(result.Logs)-1])
}

func TestRunSync_UnreachableDocumentStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	cfg := &config.Config{
		MongoURI:      "mongodb://127.0.0.1:1/finance",
		MongoDatabase: "finance",
		SQLDriver:     "sqlite3",
		SQLDSN:        filepath.Join(t.TempDir(), "finsync.db"),
	}
	result := syncer.New(syncer.NewOpener(cfg)).RunSync(ctx)

	require.Equal(t, syncer.StatusError, result.Status)
	require.Len(t, result.Logs, 2)
	assert.True(t, strings.HasPrefix(result.Logs[1], "ERROR_END: START failed: connection to MongoDB failed"), result.Logs[1])
}
