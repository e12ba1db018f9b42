package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceKind distinguishes accounts-receivable from accounts-payable
// invoices. Every query against invoices or their items is scoped by kind;
// an AR invoice and an AP invoice may share an id without being related.
type InvoiceKind string

const (
	KindReceivable InvoiceKind = "ar"
	KindPayable    InvoiceKind = "ap"
)

// Valid reports whether the kind is one of the two supported values.
func (k InvoiceKind) Valid() bool {
	return k == KindReceivable || k == KindPayable
}

// Invoice is an accounts-receivable or accounts-payable document header.
// The aggregate amounts are derived values: they are owned by the
// recalculation pipeline and must never be written directly by callers.
type Invoice struct {
	ID   int64
	Kind InvoiceKind

	// OrgID is the customer for AR invoices, the vendor for AP.
	OrgID       int64
	EmployeeID  int64
	DestAccount int64 // chart account receiving the counterpart postings

	CodeInvoice     string
	CodeOrderNumber string
	CodePONumber    string

	DateDue    *time.Time
	DateTrans  *time.Time
	DateSent   *time.Time
	DateCreate time.Time
	SentMethod string

	AmountSubtotal decimal.Decimal
	AmountTax      decimal.Decimal
	AmountTotal    decimal.Decimal
	AmountPaid     decimal.Decimal

	Notes string

	// AutoTaxes selects whether tax items are engine-managed or manually
	// curated. When false the tax recalculation pass leaves tax items alone.
	AutoTaxes bool

	// Locked is a durable business flag, not a concurrency mutex. A locked
	// invoice rejects every mutation except an explicit unlock.
	Locked bool

	CreatedAt time.Time
	UpdatedAt time.Time

	// Resolved labels, populated by the repository on detail reads
	OrgLabel         string
	EmployeeLabel    string
	DestAccountLabel string
}

// NewInvoice creates an unlocked invoice header with engine-managed taxes.
func NewInvoice(kind InvoiceKind, orgID int64, codeInvoice string) *Invoice {
	now := time.Now()
	return &Invoice{
		Kind:           kind,
		OrgID:          orgID,
		CodeInvoice:    codeInvoice,
		DateCreate:     now,
		AutoTaxes:      true,
		AmountSubtotal: decimal.Zero,
		AmountTax:      decimal.Zero,
		AmountTotal:    decimal.Zero,
		AmountPaid:     decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Balance returns the amount still owing on the invoice.
func (i *Invoice) Balance() decimal.Decimal {
	return i.AmountTotal.Sub(i.AmountPaid)
}

// Validate returns an error if the invoice header is not persistable.
func (i *Invoice) Validate() error {
	if !i.Kind.Valid() {
		return errors.New("invoice kind must be ar or ap")
	}
	if i.OrgID <= 0 {
		return errors.New("counterparty org is required")
	}
	if i.CodeInvoice == "" {
		return errors.New("invoice code is required")
	}
	if i.DestAccount < 0 {
		return errors.New("destination account must be a chart account id")
	}
	return nil
}
