package relational

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"agrofin/finsync/model"
)

// ErrUnknownDialect is returned for SQL drivers without a dialect.
var ErrUnknownDialect = errors.New("unknown SQL dialect")

// UnknownDialectError wraps ErrUnknownDialect with the driver name.
func UnknownDialectError(driver string) error {
	return fmt.Errorf("%w, %s", ErrUnknownDialect, driver)
}

// Dialect captures the differences between the supported relational stores.
type Dialect struct {
	// Driver is the database/sql driver name.
	Driver      string
	types       map[model.Kind]string
	placeholder func(n int) string
}

// Postgres is the production dialect, served by lib/pq.
var Postgres = Dialect{
	Driver: "postgres",
	types: map[model.Kind]string{
		model.KindText:      "TEXT",
		model.KindNumeric:   "NUMERIC",
		model.KindInteger:   "BIGINT",
		model.KindBool:      "BOOLEAN",
		model.KindTimestamp: "TIMESTAMPTZ",
	},
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
}

// SQLite is used for local runs and tests, served by go-sqlite3.
var SQLite = Dialect{
	Driver: "sqlite3",
	types: map[model.Kind]string{
		model.KindText:      "TEXT",
		model.KindNumeric:   "REAL",
		model.KindInteger:   "INTEGER",
		model.KindBool:      "BOOLEAN",
		model.KindTimestamp: "TIMESTAMP",
	},
	placeholder: func(int) string { return "?" },
}

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case Postgres.Driver:
		return Postgres, nil
	case SQLite.Driver:
		return SQLite, nil
	default:
		return Dialect{}, UnknownDialectError(driver)
	}
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (d Dialect) createTable(t model.Table, ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(quote(t.Name))
	b.WriteString(" (")
	for i, col := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quote(col.Name))
		b.WriteString(" ")
		b.WriteString(d.types[col.Kind])
		if i == 0 {
			b.WriteString(" PRIMARY KEY")
		}
	}
	b.WriteString(")")
	return b.String()
}

func (d Dialect) dropTable(t model.Table) string {
	return "DROP TABLE IF EXISTS " + quote(t.Name)
}

type conflictPolicy int

const (
	conflictUpdate conflictPolicy = iota
	conflictIgnore
)

// insertStatement builds a multi-row INSERT for rowCount rows with the given conflict policy.
func (d Dialect) insertStatement(t model.Table, rowCount int, policy conflictPolicy) string {
	columns := make([]string, len(t.Columns))
	for i, name := range t.ColumnNames() {
		columns[i] = quote(name)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(quote(t.Name))
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	n := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := range t.Columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.placeholder(n))
			n++
		}
		b.WriteString(")")
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(quote(t.Key().Name))
	b.WriteString(") DO ")
	if policy == conflictIgnore {
		b.WriteString("NOTHING")
		return b.String()
	}

	b.WriteString("UPDATE SET ")
	for i, col := range columns[1:] {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col)
		b.WriteString(" = excluded.")
		b.WriteString(col)
	}
	return b.String()
}
