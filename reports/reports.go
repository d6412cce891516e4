// Package reports shapes the mirrored finance tables into the tables the dashboard renders.
package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"agrofin/finsync/appcontext"
	"agrofin/finsync/cache"
	"agrofin/finsync/normalize"

	"github.com/shopspring/decimal"
)

// Uncategorized groups ledger entries whose category has no match in the taxonomy.
const Uncategorized = "uncategorized"

// ErrInvalidRange is returned when a report range starts after it ends.
var ErrInvalidRange = errors.New("invalid date range")

// InvalidRangeError returns an error wrapping ErrInvalidRange.
func InvalidRangeError(from, to time.Time) error {
	return fmt.Errorf("%w, %s is after %s", ErrInvalidRange, from.Format(time.DateOnly), to.Format(time.DateOnly))
}

// MonthFlow is the cash movement of one calendar month.
type MonthFlow struct {
	Month   int             `json:"month"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Net     decimal.Decimal `json:"net"`
}

// CashFlow is the monthly cash movement of a year, realized and forecast apart.
type CashFlow struct {
	Year     int         `json:"year"`
	Realized []MonthFlow `json:"realized"`
	Forecast []MonthFlow `json:"forecast"`
}

// CategoryTotal is the sum of ledger values for one category item.
type CategoryTotal struct {
	Category string          `json:"category"`
	Item     string          `json:"item"`
	Type     string          `json:"type"`
	Entries  int             `json:"entries"`
	Total    decimal.Decimal `json:"total"`
}

// AccountBalance is the current balance of one account.
type AccountBalance struct {
	ID          string          `json:"id"`
	Account     string          `json:"account"`
	BankName    string          `json:"bank_name"`
	CompanyName string          `json:"company_name"`
	Value       decimal.Decimal `json:"value"`
}

// Balances lists every account and their combined value.
type Balances struct {
	Accounts []AccountBalance `json:"accounts"`
	Total    decimal.Decimal  `json:"total"`
}

// Reporter runs report queries against the relational mirror.
type Reporter struct {
	db    *sql.DB
	cache *cache.TTL
}

// New creates a Reporter. A nil cache disables caching.
func New(db *sql.DB, c *cache.TTL) *Reporter {
	if c == nil {
		c = cache.New(0)
	}
	return &Reporter{db: db, cache: c}
}

// Invalidate drops all cached report results.
func (r *Reporter) Invalidate() {
	r.cache.Invalidate()
}

// CashFlow returns inflow, outflow and net per month of year. Entries without a date are excluded.
func (r *Reporter) CashFlow(ctx context.Context, year int) (CashFlow, error) {
	return cache.Fetch(ctx, r.cache, fmt.Sprintf("cash-flow:%d", year), func(ctx context.Context) (CashFlow, error) {
		return r.cashFlow(ctx, year)
	})
}

func (r *Reporter) cashFlow(ctx context.Context, year int) (CashFlow, error) {
	logger := appcontext.LoggerFromContext(ctx)
	logger.DebugContext(ctx, "Computing cash flow", "year", year)

	rows, err := r.db.QueryContext(ctx, `SELECT "date", "value", "is_forecast" FROM "finances" WHERE "date" IS NOT NULL`)
	if err != nil {
		return CashFlow{}, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var realized, forecast [12]MonthFlow
	for rows.Next() {
		var (
			date       time.Time
			value      amount
			isForecast sql.NullBool
		)
		if err := rows.Scan(&date, &value, &isForecast); err != nil {
			return CashFlow{}, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		local := date.In(normalize.Zone)
		if local.Year() != year {
			continue
		}
		months := &realized
		if isForecast.Bool {
			months = &forecast
		}
		addFlow(&months[local.Month()-1], value.Decimal)
	}
	if err := rows.Err(); err != nil {
		return CashFlow{}, fmt.Errorf("failed to read ledger: %w", err)
	}

	return CashFlow{Year: year, Realized: finishMonths(realized), Forecast: finishMonths(forecast)}, nil
}

func addFlow(m *MonthFlow, value decimal.Decimal) {
	if value.IsNegative() {
		m.Outflow = m.Outflow.Add(value.Neg())
	} else {
		m.Inflow = m.Inflow.Add(value)
	}
}

func finishMonths(months [12]MonthFlow) []MonthFlow {
	out := make([]MonthFlow, 12)
	for i, m := range months {
		out[i] = MonthFlow{
			Month:   i + 1,
			Inflow:  m.Inflow.Round(2),
			Outflow: m.Outflow.Round(2),
			Net:     m.Inflow.Sub(m.Outflow).Round(2),
		}
	}
	return out
}

// CategoryBreakdown totals ledger values per category item for dates in [from, to], both inclusive.
func (r *Reporter) CategoryBreakdown(ctx context.Context, from, to time.Time) ([]CategoryTotal, error) {
	from = startOfDay(from)
	to = startOfDay(to)
	if from.After(to) {
		return nil, InvalidRangeError(from, to)
	}
	key := fmt.Sprintf("categories:%s:%s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	return cache.Fetch(ctx, r.cache, key, func(ctx context.Context) ([]CategoryTotal, error) {
		return r.categoryBreakdown(ctx, from, to.AddDate(0, 0, 1))
	})
}

func (r *Reporter) categoryBreakdown(ctx context.Context, from, until time.Time) ([]CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f."date", f."value", c."category", c."item", c."type"
		FROM "finances" f
		LEFT JOIN "finances_categories" c ON c."id" = f."category"
		WHERE f."date" IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger by category: %w", err)
	}
	defer rows.Close()

	type groupKey struct{ category, item, kind string }
	groups := make(map[groupKey]*CategoryTotal)
	for rows.Next() {
		var (
			date                 time.Time
			value                amount
			category, item, kind sql.NullString
		)
		if err := rows.Scan(&date, &value, &category, &item, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		if date.Before(from) || !date.Before(until) {
			continue
		}

		k := groupKey{category.String, item.String, kind.String}
		if !category.Valid {
			k = groupKey{category: Uncategorized}
		}
		g, ok := groups[k]
		if !ok {
			g = &CategoryTotal{Category: k.category, Item: k.item, Type: k.kind}
			groups[k] = g
		}
		g.Entries++
		g.Total = g.Total.Add(value.Decimal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	out := make([]CategoryTotal, 0, len(groups))
	for _, g := range groups {
		g.Total = g.Total.Round(2)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Item != out[j].Item {
			return out[i].Item < out[j].Item
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

// AccountBalances lists accounts sorted by name with their total.
func (r *Reporter) AccountBalances(ctx context.Context) (Balances, error) {
	return cache.Fetch(ctx, r.cache, "accounts", r.accountBalances)
}

func (r *Reporter) accountBalances(ctx context.Context) (Balances, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT "id", "account", "bank_name", "company_name", "value"
		FROM "finance_accounts"
		ORDER BY "account", "id"`)
	if err != nil {
		return Balances{}, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	balances := Balances{Accounts: []AccountBalance{}}
	for rows.Next() {
		var (
			id                         string
			account, bank, companyName sql.NullString
			value                      amount
		)
		if err := rows.Scan(&id, &account, &bank, &companyName, &value); err != nil {
			return Balances{}, fmt.Errorf("failed to scan account row: %w", err)
		}
		v := value.Decimal
		balances.Total = balances.Total.Add(v)
		balances.Accounts = append(balances.Accounts, AccountBalance{
			ID:          id,
			Account:     account.String,
			BankName:    bank.String,
			CompanyName: companyName.String,
			Value:       v.Round(2),
		})
	}
	if err := rows.Err(); err != nil {
		return Balances{}, fmt.Errorf("failed to read accounts: %w", err)
	}
	balances.Total = balances.Total.Round(2)
	return balances, nil
}

// amount scans a numeric column. NULL, NaN and infinite values scan as zero.
type amount struct {
	decimal.NullDecimal
}

func (a *amount) Scan(src any) error {
	switch v := src.(type) {
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			a.NullDecimal = decimal.NullDecimal{}
			return nil
		}
	case float32:
		if math.IsInf(float64(v), 0) || math.IsNaN(float64(v)) {
			a.NullDecimal = decimal.NullDecimal{}
			return nil
		}
	}
	if err := a.NullDecimal.Scan(src); err != nil {
		return fmt.Errorf("failed to scan amount: %w", err)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	local := t.In(normalize.Zone)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, normalize.Zone)
}
