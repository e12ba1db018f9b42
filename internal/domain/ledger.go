package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryDirection is the side of a double-entry ledger posting.
type EntryDirection string

const (
	DirectionDebit  EntryDirection = "debit"
	DirectionCredit EntryDirection = "credit"
)

// LedgerEntry is one general-ledger posting derived from an invoice item.
// Entries are never authored directly: the ledger poster regenerates the
// full set for an invoice after every committed mutation.
type LedgerEntry struct {
	ID          int64
	InvoiceID   int64
	InvoiceKind InvoiceKind
	ItemID      int64
	ChartID     int64
	Date        time.Time
	Amount      decimal.Decimal
	Direction   EntryDirection
	Memo        string

	ChartLabel string
}

// Signed returns the entry amount with debits positive and credits
// negative, so a balanced posting set sums to zero.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.Direction == DirectionCredit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// BalancePostings returns the sum of signed amounts over a posting set.
// A correct double-entry set sums to zero.
func BalancePostings(entries []*LedgerEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Signed())
	}
	return sum
}
