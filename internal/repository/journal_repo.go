package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/andy/tallybook/internal/db"
	"github.com/andy/tallybook/internal/domain"
)

// JournalRepo is a SQLite implementation of JournalRepository
type JournalRepo struct {
	q db.Querier
}

// NewJournalRepo creates a new JournalRepo
func NewJournalRepo(database *db.DB) *JournalRepo {
	return &JournalRepo{q: database}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *JournalRepo) WithTx(tx *sql.Tx) JournalRepository {
	return &JournalRepo{q: tx}
}

// Append records one audit-trail entry for an invoice
func (r *JournalRepo) Append(ctx context.Context, entry *domain.JournalEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	result, err := r.q.ExecContext(ctx,
		"INSERT INTO journal (invoice_id, invoice_kind, action, detail, created_at) VALUES (?, ?, ?, ?, ?)",
		entry.InvoiceID,
		string(entry.InvoiceKind),
		string(entry.Action),
		entry.Detail,
		entry.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	entry.ID, err = result.LastInsertId()
	return err
}

// ListByInvoice returns the audit trail for an invoice, oldest first
func (r *JournalRepo) ListByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) ([]*domain.JournalEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT id, invoice_id, invoice_kind, action, detail, created_at FROM journal WHERE invoice_id = ? AND invoice_kind = ? ORDER BY id",
		invoiceID, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.JournalEntry, 0)
	for rows.Next() {
		entry := &domain.JournalEntry{}
		var kindStr, action, createdAt string
		var detail sql.NullString

		if err := rows.Scan(&entry.ID, &entry.InvoiceID, &kindStr, &action, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}

		entry.InvoiceKind = domain.InvoiceKind(kindStr)
		entry.Action = domain.JournalAction(action)
		entry.Detail = detail.String
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse journal timestamp: %w", err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeleteByInvoice removes the audit trail tied to an invoice
func (r *JournalRepo) DeleteByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) error {
	if _, err := r.q.ExecContext(ctx,
		"DELETE FROM journal WHERE invoice_id = ? AND invoice_kind = ?",
		invoiceID, string(kind),
	); err != nil {
		return fmt.Errorf("failed to delete journal entries: %w", err)
	}
	return nil
}
