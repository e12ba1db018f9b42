package db

import (
	"fmt"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Key/value configuration, including invoice code counters
CREATE TABLE config (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Counterparties: customers (AR) and vendors (AP)
CREATE TABLE orgs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    org_kind TEXT NOT NULL CHECK (org_kind IN ('customer', 'vendor')),
    name TEXT NOT NULL,
    code TEXT
);

-- Employees referenced by invoice headers
CREATE TABLE staff (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL
);

-- Products referenced by product and time items
CREATE TABLE products (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name_product TEXT NOT NULL,
    price_sell TEXT NOT NULL DEFAULT '0',
    chart_id INTEGER NOT NULL DEFAULT 0
);

-- Chart of accounts
CREATE TABLE account_charts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    code_chart TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL
);

-- Tax definitions; rate is a percentage stored as decimal text
CREATE TABLE account_taxes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name_tax TEXT NOT NULL,
    rate TEXT NOT NULL,
    chart_id INTEGER NOT NULL REFERENCES account_charts(id),
    description TEXT
);

-- Which taxes apply to which counterparty
CREATE TABLE org_taxes (
    org_id INTEGER NOT NULL REFERENCES orgs(id),
    tax_id INTEGER NOT NULL REFERENCES account_taxes(id),
    PRIMARY KEY (org_id, tax_id)
);

-- Billable time groups; invoice_item_id > 0 marks the group as claimed
CREATE TABLE time_groups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    org_id INTEGER NOT NULL REFERENCES orgs(id),
    name_group TEXT NOT NULL,
    code_project TEXT,
    hours TEXT NOT NULL DEFAULT '0',
    invoice_item_id INTEGER NOT NULL DEFAULT 0
);

-- Invoice headers, AR and AP discriminated by invoice_kind.
-- Amounts are decimal text; the recalculation pipeline owns them.
CREATE TABLE invoices (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    invoice_kind TEXT NOT NULL CHECK (invoice_kind IN ('ar', 'ap')),
    org_id INTEGER NOT NULL REFERENCES orgs(id),
    employee_id INTEGER,
    dest_account INTEGER,
    code_invoice TEXT NOT NULL,
    code_ordernumber TEXT,
    code_ponumber TEXT,
    date_due TEXT,
    date_trans TEXT,
    date_sent TEXT,
    date_create TEXT NOT NULL,
    sent_method TEXT,
    amount_subtotal TEXT NOT NULL DEFAULT '0',
    amount_tax TEXT NOT NULL DEFAULT '0',
    amount_total TEXT NOT NULL DEFAULT '0',
    amount_paid TEXT NOT NULL DEFAULT '0',
    notes TEXT,
    auto_taxes INTEGER NOT NULL DEFAULT 1,
    locked INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    UNIQUE (invoice_kind, code_invoice)
);

-- Invoice line items; invoice_kind denormalized for query isolation
CREATE TABLE invoice_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    invoice_id INTEGER NOT NULL,
    invoice_kind TEXT NOT NULL CHECK (invoice_kind IN ('ar', 'ap')),
    item_type TEXT NOT NULL CHECK (item_type IN ('product', 'time', 'standard', 'tax', 'payment')),
    custom_id INTEGER NOT NULL DEFAULT 0,
    chart_id INTEGER NOT NULL DEFAULT 0,
    quantity TEXT NOT NULL DEFAULT '0',
    units TEXT,
    price TEXT NOT NULL DEFAULT '0',
    amount TEXT NOT NULL DEFAULT '0',
    description TEXT
);

-- Open key/value extension options per item
CREATE TABLE invoice_item_options (
    item_id INTEGER NOT NULL REFERENCES invoice_items(id) ON DELETE CASCADE,
    option_name TEXT NOT NULL,
    option_value TEXT NOT NULL,
    PRIMARY KEY (item_id, option_name)
);

-- General ledger postings, regenerated per invoice as a replaceable set
CREATE TABLE ledger_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    invoice_id INTEGER NOT NULL,
    invoice_kind TEXT NOT NULL,
    item_id INTEGER NOT NULL DEFAULT 0,
    chart_id INTEGER NOT NULL,
    date_trans TEXT NOT NULL,
    amount TEXT NOT NULL,
    direction TEXT NOT NULL CHECK (direction IN ('debit', 'credit')),
    memo TEXT
);

-- Invoice audit trail
CREATE TABLE journal (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    invoice_id INTEGER NOT NULL,
    invoice_kind TEXT NOT NULL,
    action TEXT NOT NULL,
    detail TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Indexes
CREATE INDEX idx_items_invoice ON invoice_items(invoice_id, invoice_kind);
CREATE INDEX idx_items_type ON invoice_items(invoice_id, invoice_kind, item_type);
CREATE INDEX idx_ledger_invoice ON ledger_entries(invoice_id, invoice_kind);
CREATE INDEX idx_journal_invoice ON journal(invoice_id, invoice_kind);
CREATE INDEX idx_timegroups_org ON time_groups(org_id);
CREATE INDEX idx_timegroups_claim ON time_groups(invoice_item_id) WHERE invoice_item_id > 0;
`,
	},
}

// RunMigrations applies all pending database migrations
func (db *DB) RunMigrations() error {
	// Ensure schema_version table exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	// Get current schema version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Apply pending migrations in a transaction
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		if _, err := tx.Exec(m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}

	return nil
}
