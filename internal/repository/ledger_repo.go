package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/andy/tallybook/internal/db"
	"github.com/andy/tallybook/internal/domain"
)

// LedgerRepo is a SQLite implementation of LedgerRepository
type LedgerRepo struct {
	q db.Querier
}

// NewLedgerRepo creates a new LedgerRepo
func NewLedgerRepo(database *db.DB) *LedgerRepo {
	return &LedgerRepo{q: database}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *LedgerRepo) WithTx(tx *sql.Tx) LedgerRepository {
	return &LedgerRepo{q: tx}
}

// Replace deletes all postings for the invoice and inserts the given set.
// Running it twice with the same input leaves an identical posting set.
func (r *LedgerRepo) Replace(ctx context.Context, kind domain.InvoiceKind, invoiceID int64, entries []*domain.LedgerEntry) error {
	if err := r.DeleteByInvoice(ctx, kind, invoiceID); err != nil {
		return err
	}

	query := `
		INSERT INTO ledger_entries (invoice_id, invoice_kind, item_id, chart_id, date_trans, amount, direction, memo)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, e := range entries {
		result, err := r.q.ExecContext(ctx, query,
			invoiceID,
			string(kind),
			e.ItemID,
			e.ChartID,
			e.Date.Format(dateLayout),
			e.Amount.String(),
			string(e.Direction),
			e.Memo,
		)
		if err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get ledger entry ID: %w", err)
		}
		e.ID = id
		e.InvoiceID = invoiceID
		e.InvoiceKind = kind
	}

	return nil
}

// ListByInvoice returns the postings attributable to an invoice in id order
func (r *LedgerRepo) ListByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT l.id, l.invoice_id, l.invoice_kind, l.item_id, l.chart_id,
		       l.date_trans, l.amount, l.direction, l.memo,
		       COALESCE(c.code_chart || '--' || c.description, '')
		FROM ledger_entries l
		LEFT JOIN account_charts c ON c.id = l.chart_id
		WHERE l.invoice_id = ? AND l.invoice_kind = ?
		ORDER BY l.id
	`

	rows, err := r.q.QueryContext(ctx, query, invoiceID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.LedgerEntry, 0)
	for rows.Next() {
		e := &domain.LedgerEntry{}
		var kindStr, dateTrans, amount, direction string
		var memo sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.InvoiceID,
			&kindStr,
			&e.ItemID,
			&e.ChartID,
			&dateTrans,
			&amount,
			&direction,
			&memo,
			&e.ChartLabel,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		e.InvoiceKind = domain.InvoiceKind(kindStr)
		e.Direction = domain.EntryDirection(direction)
		e.Memo = memo.String

		if e.Date, err = parseDate(dateTrans); err != nil {
			return nil, fmt.Errorf("failed to parse ledger date: %w", err)
		}
		if e.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	return entries, nil
}

// DeleteByInvoice removes all postings attributable to an invoice
func (r *LedgerRepo) DeleteByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) error {
	if _, err := r.q.ExecContext(ctx,
		"DELETE FROM ledger_entries WHERE invoice_id = ? AND invoice_kind = ?",
		invoiceID, string(kind),
	); err != nil {
		return fmt.Errorf("failed to delete ledger entries: %w", err)
	}
	return nil
}
