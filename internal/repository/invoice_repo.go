package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/tallybook/internal/db"
	"github.com/andy/tallybook/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// InvoiceRepo is a SQLite implementation of InvoiceRepository
type InvoiceRepo struct {
	q db.Querier
}

// NewInvoiceRepo creates a new InvoiceRepo
func NewInvoiceRepo(database *db.DB) *InvoiceRepo {
	return &InvoiceRepo{q: database}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *InvoiceRepo) WithTx(tx *sql.Tx) InvoiceRepository {
	return &InvoiceRepo{q: tx}
}

const invoiceColumns = `
	id, invoice_kind, org_id, employee_id, dest_account,
	code_invoice, code_ordernumber, code_ponumber,
	date_due, date_trans, date_sent, date_create, sent_method,
	amount_subtotal, amount_tax, amount_total, amount_paid,
	notes, auto_taxes, locked, created_at, updated_at
`

// Create inserts a new invoice header
func (r *InvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	if err := invoice.Validate(); err != nil {
		return fmt.Errorf("invalid invoice: %w", err)
	}

	query := `
		INSERT INTO invoices (
			invoice_kind, org_id, employee_id, dest_account,
			code_invoice, code_ordernumber, code_ponumber,
			date_due, date_trans, date_sent, date_create, sent_method,
			amount_subtotal, amount_tax, amount_total, amount_paid,
			notes, auto_taxes, locked, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	if invoice.DateCreate.IsZero() {
		invoice.DateCreate = now
	}

	result, err := r.q.ExecContext(ctx, query,
		string(invoice.Kind),
		invoice.OrgID,
		invoice.EmployeeID,
		invoice.DestAccount,
		invoice.CodeInvoice,
		invoice.CodeOrderNumber,
		invoice.CodePONumber,
		formatDatePtr(invoice.DateDue),
		formatDatePtr(invoice.DateTrans),
		formatDatePtr(invoice.DateSent),
		invoice.DateCreate.Format(dateLayout),
		invoice.SentMethod,
		invoice.AmountSubtotal.String(),
		invoice.AmountTax.String(),
		invoice.AmountTotal.String(),
		invoice.AmountPaid.String(),
		invoice.Notes,
		boolToInt(invoice.AutoTaxes),
		boolToInt(invoice.Locked),
		now.Format(timeLayout),
		now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get invoice ID: %w", err)
	}

	invoice.ID = id
	return nil
}

// GetByID retrieves an invoice header by kind and id
func (r *InvoiceRepo) GetByID(ctx context.Context, kind domain.InvoiceKind, id int64) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_kind = ? AND id = ?`

	row := r.q.QueryRowContext(ctx, query, string(kind), id)
	invoice, err := scanInvoiceRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d (%s): %w", id, kind, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

// GetDetails retrieves an invoice with resolved org, employee and chart labels
func (r *InvoiceRepo) GetDetails(ctx context.Context, kind domain.InvoiceKind, id int64) (*domain.Invoice, error) {
	invoice, err := r.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	// a missing reference row leaves the label empty; any other lookup
	// failure is reported
	err = r.q.QueryRowContext(ctx,
		"SELECT name FROM orgs WHERE id = ?", invoice.OrgID,
	).Scan(&invoice.OrgLabel)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve org label: %w", err)
	}

	if invoice.EmployeeID > 0 {
		err = r.q.QueryRowContext(ctx,
			"SELECT name FROM staff WHERE id = ?", invoice.EmployeeID,
		).Scan(&invoice.EmployeeLabel)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to resolve employee label: %w", err)
		}
	}

	if invoice.DestAccount > 0 {
		err = r.q.QueryRowContext(ctx,
			"SELECT code_chart || '--' || description FROM account_charts WHERE id = ?",
			invoice.DestAccount,
		).Scan(&invoice.DestAccountLabel)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to resolve account label: %w", err)
		}
	}

	return invoice, nil
}

// Exists reports whether an invoice row exists under the given kind
func (r *InvoiceRepo) Exists(ctx context.Context, kind domain.InvoiceKind, id int64) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM invoices WHERE invoice_kind = ? AND id = ?",
		string(kind), id,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check invoice existence: %w", err)
	}
	return n > 0, nil
}

// CodeInUse reports whether another invoice of the same kind uses the code
func (r *InvoiceRepo) CodeInUse(ctx context.Context, kind domain.InvoiceKind, code string, excludeID int64) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM invoices WHERE invoice_kind = ? AND code_invoice = ? AND id != ?",
		string(kind), code, excludeID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check invoice code: %w", err)
	}
	return n > 0, nil
}

// Update rewrites the invoice header. Derived amounts are not written
// here; they belong to UpdateTotals.
func (r *InvoiceRepo) Update(ctx context.Context, invoice *domain.Invoice) error {
	if err := invoice.Validate(); err != nil {
		return fmt.Errorf("invalid invoice: %w", err)
	}

	query := `
		UPDATE invoices
		SET org_id = ?, employee_id = ?, dest_account = ?,
		    code_invoice = ?, code_ordernumber = ?, code_ponumber = ?,
		    date_due = ?, date_trans = ?, date_sent = ?, sent_method = ?,
		    notes = ?, auto_taxes = ?, updated_at = ?
		WHERE invoice_kind = ? AND id = ?
	`

	invoice.UpdatedAt = time.Now()

	result, err := r.q.ExecContext(ctx, query,
		invoice.OrgID,
		invoice.EmployeeID,
		invoice.DestAccount,
		invoice.CodeInvoice,
		invoice.CodeOrderNumber,
		invoice.CodePONumber,
		formatDatePtr(invoice.DateDue),
		formatDatePtr(invoice.DateTrans),
		formatDatePtr(invoice.DateSent),
		invoice.SentMethod,
		invoice.Notes,
		boolToInt(invoice.AutoTaxes),
		invoice.UpdatedAt.Format(timeLayout),
		string(invoice.Kind),
		invoice.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("invoice %d (%s): %w", invoice.ID, invoice.Kind, ErrNotFound)
	}

	return nil
}

// UpdateTotals writes the four derived amounts back in one statement
func (r *InvoiceRepo) UpdateTotals(ctx context.Context, kind domain.InvoiceKind, id int64, subtotal, tax, total, paid decimal.Decimal) error {
	query := `
		UPDATE invoices
		SET amount_subtotal = ?, amount_tax = ?, amount_total = ?, amount_paid = ?, updated_at = ?
		WHERE invoice_kind = ? AND id = ?
	`

	result, err := r.q.ExecContext(ctx, query,
		subtotal.String(),
		tax.String(),
		total.String(),
		paid.String(),
		time.Now().Format(timeLayout),
		string(kind),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice totals: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("invoice %d (%s): %w", id, kind, ErrNotFound)
	}

	return nil
}

// SetLocked flips the business lock flag
func (r *InvoiceRepo) SetLocked(ctx context.Context, kind domain.InvoiceKind, id int64, locked bool) error {
	result, err := r.q.ExecContext(ctx,
		"UPDATE invoices SET locked = ?, updated_at = ? WHERE invoice_kind = ? AND id = ?",
		boolToInt(locked), time.Now().Format(timeLayout), string(kind), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set invoice lock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("invoice %d (%s): %w", id, kind, ErrNotFound)
	}

	return nil
}

// Delete removes the invoice header row only. Cascading removal of items,
// options, postings and journal entries is done by the service so it all
// happens inside one transaction.
func (r *InvoiceRepo) Delete(ctx context.Context, kind domain.InvoiceKind, id int64) error {
	result, err := r.q.ExecContext(ctx,
		"DELETE FROM invoices WHERE invoice_kind = ? AND id = ?",
		string(kind), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("invoice %d (%s): %w", id, kind, ErrNotFound)
	}

	return nil
}

// List retrieves all invoices of a kind, newest first
func (r *InvoiceRepo) List(ctx context.Context, kind domain.InvoiceKind) ([]*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_kind = ? ORDER BY id DESC`

	rows, err := r.q.QueryContext(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]*domain.Invoice, 0)
	for rows.Next() {
		invoice, err := scanInvoiceRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}

	return invoices, nil
}

// scanInvoiceRow scans one invoice row through the given Scan function
func scanInvoiceRow(scan func(dest ...interface{}) error) (*domain.Invoice, error) {
	invoice := &domain.Invoice{}
	var kind string
	var employeeID, destAccount sql.NullInt64
	var ordernumber, ponumber, sentMethod, notes sql.NullString
	var dateDue, dateTrans, dateSent sql.NullString
	var dateCreate, createdAt, updatedAt string
	var subtotal, tax, total, paid string
	var autoTaxes, locked int

	err := scan(
		&invoice.ID,
		&kind,
		&invoice.OrgID,
		&employeeID,
		&destAccount,
		&invoice.CodeInvoice,
		&ordernumber,
		&ponumber,
		&dateDue,
		&dateTrans,
		&dateSent,
		&dateCreate,
		&sentMethod,
		&subtotal,
		&tax,
		&total,
		&paid,
		&notes,
		&autoTaxes,
		&locked,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	invoice.Kind = domain.InvoiceKind(kind)
	invoice.EmployeeID = employeeID.Int64
	invoice.DestAccount = destAccount.Int64
	invoice.CodeOrderNumber = ordernumber.String
	invoice.CodePONumber = ponumber.String
	invoice.SentMethod = sentMethod.String
	invoice.Notes = notes.String
	invoice.AutoTaxes = autoTaxes != 0
	invoice.Locked = locked != 0

	if invoice.AmountSubtotal, err = parseAmount(subtotal); err != nil {
		return nil, err
	}
	if invoice.AmountTax, err = parseAmount(tax); err != nil {
		return nil, err
	}
	if invoice.AmountTotal, err = parseAmount(total); err != nil {
		return nil, err
	}
	if invoice.AmountPaid, err = parseAmount(paid); err != nil {
		return nil, err
	}

	if invoice.DateCreate, err = parseDate(dateCreate); err != nil {
		return nil, fmt.Errorf("failed to parse date_create: %w", err)
	}
	if invoice.DateDue, err = parseDatePtr(dateDue); err != nil {
		return nil, fmt.Errorf("failed to parse date_due: %w", err)
	}
	if invoice.DateTrans, err = parseDatePtr(dateTrans); err != nil {
		return nil, fmt.Errorf("failed to parse date_trans: %w", err)
	}
	if invoice.DateSent, err = parseDatePtr(dateSent); err != nil {
		return nil, fmt.Errorf("failed to parse date_sent: %w", err)
	}
	if invoice.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if invoice.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return invoice, nil
}

func formatDatePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseDatePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
