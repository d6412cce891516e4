// Package model describes the relational tables mirrored from the document store
// and the mapping from document field paths to columns.
package model

// Kind is the relational type of a column.
type Kind int

const (
	KindText Kind = iota
	KindNumeric
	KindInteger
	KindBool
	KindTimestamp
)

// Rule selects how a document value is coerced into a column value.
type Rule int

const (
	// RuleValue passes primitives through and stringifies nested documents and ids.
	RuleValue Rule = iota
	// RuleIDList renders a sequence of references as a JSON array of strings.
	RuleIDList
	// RuleBool coerces to a boolean, false when absent.
	RuleBool
	// RuleTimestamp decodes a YYYYMMDDHHMMSS string (or prefix) at UTC-3.
	RuleTimestamp
)

// Column maps a dotted document path onto a relational column.
type Column struct {
	Name string
	Path string
	Kind Kind
	Rule Rule
}

// Table is a relational table fed from one document collection.
// The first column is always the primary key.
type Table struct {
	Name       string
	Collection string
	Columns    []Column
}

// Key returns the primary key column.
func (t Table) Key() Column {
	return t.Columns[0]
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Ledger holds realized and forecast ledger entries. Replaced in full on every sync.
var Ledger = Table{
	Name:       "finances",
	Collection: "finances",
	Columns: []Column{
		{Name: "id", Path: "_id", Kind: KindText, Rule: RuleValue},
		{Name: "date", Path: "date", Kind: KindTimestamp, Rule: RuleTimestamp},
		{Name: "name", Path: "name", Kind: KindText, Rule: RuleValue},
		{Name: "value", Path: "value", Kind: KindNumeric, Rule: RuleValue},
		{Name: "category", Path: "category", Kind: KindText, Rule: RuleValue},
		{Name: "account_id", Path: "account_id", Kind: KindText, Rule: RuleValue},
		{Name: "orders", Path: "orders", Kind: KindText, Rule: RuleIDList},
		{Name: "is_forecast", Path: "is_forecast", Kind: KindBool, Rule: RuleBool},
	},
}

// Categories is the category taxonomy. Rows are only ever inserted.
var Categories = Table{
	Name:       "finances_categories",
	Collection: "finances_categories",
	Columns: []Column{
		{Name: "id", Path: "_id", Kind: KindText, Rule: RuleValue},
		{Name: "category", Path: "category", Kind: KindText, Rule: RuleValue},
		{Name: "item", Path: "item", Kind: KindText, Rule: RuleValue},
		{Name: "type", Path: "type", Kind: KindText, Rule: RuleValue},
		{Name: "dfc", Path: "dfc", Kind: KindText, Rule: RuleValue},
		{Name: "dfc_equal", Path: "dfc_equal", Kind: KindText, Rule: RuleValue},
	},
}

// Accounts is the account registry. Rows are only ever inserted.
var Accounts = Table{
	Name:       "finance_accounts",
	Collection: "finance_accounts",
	Columns: []Column{
		{Name: "id", Path: "_id", Kind: KindText, Rule: RuleValue},
		{Name: "account", Path: "account", Kind: KindText, Rule: RuleValue},
		{Name: "bank_name", Path: "bank.name", Kind: KindText, Rule: RuleValue},
		{Name: "bank_number", Path: "bank.number", Kind: KindText, Rule: RuleValue},
		{Name: "value", Path: "value", Kind: KindNumeric, Rule: RuleValue},
		{Name: "company_name", Path: "company.name", Kind: KindText, Rule: RuleValue},
		{Name: "company_cnpj", Path: "company.cnpj", Kind: KindText, Rule: RuleValue},
	},
}

// SyncRuns is the audit table written at the end of each run. It has no source collection.
var SyncRuns = Table{
	Name: "sync_runs",
	Columns: []Column{
		{Name: "run_id", Kind: KindText},
		{Name: "started_at", Kind: KindTimestamp},
		{Name: "finished_at", Kind: KindTimestamp},
		{Name: "status", Kind: KindText},
		{Name: "total_logs", Kind: KindInteger},
		{Name: "failed_stage", Kind: KindText},
	},
}
