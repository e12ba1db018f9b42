package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/andy/tallybook/internal/domain"
)

// Each repository exposes WithTx, returning a copy bound to the given
// transaction. The mutation pipeline rebinds every repository it touches
// to one transaction so the item write, tax recompute, total recompute and
// ledger repost commit or roll back as a single unit.

// InvoiceRepository manages invoice header persistence
type InvoiceRepository interface {
	WithTx(tx *sql.Tx) InvoiceRepository

	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, kind domain.InvoiceKind, id int64) (*domain.Invoice, error)
	// GetDetails is GetByID plus resolved org/employee/chart labels
	GetDetails(ctx context.Context, kind domain.InvoiceKind, id int64) (*domain.Invoice, error)
	Exists(ctx context.Context, kind domain.InvoiceKind, id int64) (bool, error)
	// CodeInUse reports whether another active invoice of the same kind
	// already carries the code; excludeID ignores the invoice being edited
	CodeInUse(ctx context.Context, kind domain.InvoiceKind, code string, excludeID int64) (bool, error)
	Update(ctx context.Context, invoice *domain.Invoice) error
	// UpdateTotals writes the four derived amounts in one statement
	UpdateTotals(ctx context.Context, kind domain.InvoiceKind, id int64, subtotal, tax, total, paid decimal.Decimal) error
	SetLocked(ctx context.Context, kind domain.InvoiceKind, id int64, locked bool) error
	Delete(ctx context.Context, kind domain.InvoiceKind, id int64) error
	List(ctx context.Context, kind domain.InvoiceKind) ([]*domain.Invoice, error)
}

// InvoiceItemRepository manages invoice line items and their extension options
type InvoiceItemRepository interface {
	WithTx(tx *sql.Tx) InvoiceItemRepository

	Create(ctx context.Context, item *domain.InvoiceItem) error
	Update(ctx context.Context, item *domain.InvoiceItem) error
	Delete(ctx context.Context, itemID int64) error
	GetByID(ctx context.Context, itemID int64) (*domain.InvoiceItem, error)
	// ListByInvoice returns all items for an invoice in id order
	ListByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) ([]*domain.InvoiceItem, error)
	// ListByTypes returns items restricted to the given types, in id order
	ListByTypes(ctx context.Context, kind domain.InvoiceKind, invoiceID int64, types ...domain.ItemType) ([]*domain.InvoiceItem, error)
	HasPayments(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) (bool, error)
	DeleteByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) error
}

// LedgerRepository manages derived general-ledger postings
type LedgerRepository interface {
	WithTx(tx *sql.Tx) LedgerRepository

	// Replace deletes all postings for the invoice and inserts the given
	// set in order, as one replace-all operation
	Replace(ctx context.Context, kind domain.InvoiceKind, invoiceID int64, entries []*domain.LedgerEntry) error
	ListByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) ([]*domain.LedgerEntry, error)
	DeleteByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) error
}

// ReferenceRepository serves chart-of-accounts, tax, counterparty, staff
// and time-group reference data. Read-only to the recalculation engine.
type ReferenceRepository interface {
	WithTx(tx *sql.Tx) ReferenceRepository

	GetChart(ctx context.Context, id int64) (*domain.ChartAccount, error)
	ListCharts(ctx context.Context) ([]*domain.ChartAccount, error)
	CreateChart(ctx context.Context, chart *domain.ChartAccount) error

	GetTax(ctx context.Context, id int64) (*domain.TaxDefinition, error)
	ListTaxes(ctx context.Context) ([]*domain.TaxDefinition, error)
	CreateTax(ctx context.Context, tax *domain.TaxDefinition) error
	// TaxesForOrg returns the tax definitions applicable to a counterparty,
	// in stable tax id order
	TaxesForOrg(ctx context.Context, orgID int64) ([]*domain.TaxDefinition, error)
	LinkOrgTax(ctx context.Context, orgID, taxID int64) error

	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product *domain.Product) error

	GetOrg(ctx context.Context, id int64) (*domain.Org, error)
	CreateOrg(ctx context.Context, org *domain.Org) error

	GetStaff(ctx context.Context, id int64) (*domain.Staff, error)
	CreateStaff(ctx context.Context, staff *domain.Staff) error

	GetTimeGroup(ctx context.Context, id int64) (*domain.TimeGroup, error)
	CreateTimeGroup(ctx context.Context, group *domain.TimeGroup) error
	// ClaimTimeGroup binds a group to an invoice item; fails if the group
	// is already claimed by a different item
	ClaimTimeGroup(ctx context.Context, groupID, itemID int64) error
	// ReleaseTimeGroups unbinds every group claimed by the given item
	ReleaseTimeGroups(ctx context.Context, itemID int64) error
}

// JournalRepository manages the invoice audit trail
type JournalRepository interface {
	WithTx(tx *sql.Tx) JournalRepository

	Append(ctx context.Context, entry *domain.JournalEntry) error
	ListByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) ([]*domain.JournalEntry, error)
	DeleteByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) error
}

// ConfigRepository manages the key/value config table, including the
// invoice code counters used by the allocator
type ConfigRepository interface {
	WithTx(tx *sql.Tx) ConfigRepository

	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}
