package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/andy/tallybook/internal/db"
	"github.com/andy/tallybook/internal/domain"
)

// ItemRepo is a SQLite implementation of InvoiceItemRepository
type ItemRepo struct {
	q db.Querier
}

// NewItemRepo creates a new ItemRepo
func NewItemRepo(database *db.DB) *ItemRepo {
	return &ItemRepo{q: database}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *ItemRepo) WithTx(tx *sql.Tx) InvoiceItemRepository {
	return &ItemRepo{q: tx}
}

const itemColumns = `
	id, invoice_id, invoice_kind, item_type, custom_id, chart_id,
	quantity, units, price, amount, description
`

// Create inserts an item row and its extension options
func (r *ItemRepo) Create(ctx context.Context, item *domain.InvoiceItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	query := `
		INSERT INTO invoice_items (
			invoice_id, invoice_kind, item_type, custom_id, chart_id,
			quantity, units, price, amount, description
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.q.ExecContext(ctx, query,
		item.InvoiceID,
		string(item.InvoiceKind),
		string(item.Type),
		item.CustomID,
		item.ChartID,
		item.Quantity.String(),
		item.Units,
		item.Price.String(),
		item.Amount.String(),
		item.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get item ID: %w", err)
	}
	item.ID = id

	return r.writeOptions(ctx, item)
}

// Update rewrites an item row and replaces its extension options
func (r *ItemRepo) Update(ctx context.Context, item *domain.InvoiceItem) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	query := `
		UPDATE invoice_items
		SET item_type = ?, custom_id = ?, chart_id = ?,
		    quantity = ?, units = ?, price = ?, amount = ?, description = ?
		WHERE id = ? AND invoice_id = ? AND invoice_kind = ?
	`

	result, err := r.q.ExecContext(ctx, query,
		string(item.Type),
		item.CustomID,
		item.ChartID,
		item.Quantity.String(),
		item.Units,
		item.Price.String(),
		item.Amount.String(),
		item.Description,
		item.ID,
		item.InvoiceID,
		string(item.InvoiceKind),
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("item %d: %w", item.ID, ErrNotFound)
	}

	return r.writeOptions(ctx, item)
}

// Delete removes an item row and its extension options
func (r *ItemRepo) Delete(ctx context.Context, itemID int64) error {
	if _, err := r.q.ExecContext(ctx,
		"DELETE FROM invoice_item_options WHERE item_id = ?", itemID,
	); err != nil {
		return fmt.Errorf("failed to delete item options: %w", err)
	}

	result, err := r.q.ExecContext(ctx,
		"DELETE FROM invoice_items WHERE id = ?", itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("item %d: %w", itemID, ErrNotFound)
	}

	return nil
}

// GetByID retrieves an item with its options and resolved labels
func (r *ItemRepo) GetByID(ctx context.Context, itemID int64) (*domain.InvoiceItem, error) {
	query := `SELECT ` + itemColumns + ` FROM invoice_items WHERE id = ?`

	row := r.q.QueryRowContext(ctx, query, itemID)
	item, err := scanItemRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item %d: %w", itemID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	if err := r.loadOptions(ctx, item); err != nil {
		return nil, err
	}
	if err := r.resolveLabels(ctx, item); err != nil {
		return nil, err
	}

	return item, nil
}

// ListByInvoice returns every item on an invoice in id order
func (r *ItemRepo) ListByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) ([]*domain.InvoiceItem, error) {
	return r.list(ctx,
		`SELECT `+itemColumns+` FROM invoice_items WHERE invoice_id = ? AND invoice_kind = ? ORDER BY id`,
		invoiceID, string(kind),
	)
}

// ListByTypes returns items restricted to the given types, in id order
func (r *ItemRepo) ListByTypes(ctx context.Context, kind domain.InvoiceKind, invoiceID int64, types ...domain.ItemType) ([]*domain.InvoiceItem, error) {
	if len(types) == 0 {
		return r.ListByInvoice(ctx, kind, invoiceID)
	}

	placeholders := make([]string, len(types))
	args := []interface{}{invoiceID, string(kind)}
	for i, t := range types {
		placeholders[i] = "?"
		args = append(args, string(t))
	}

	query := `SELECT ` + itemColumns + ` FROM invoice_items
		WHERE invoice_id = ? AND invoice_kind = ?
		AND item_type IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY id`

	return r.list(ctx, query, args...)
}

// HasPayments reports whether any payment items exist on the invoice
func (r *ItemRepo) HasPayments(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM invoice_items WHERE invoice_id = ? AND invoice_kind = ? AND item_type = 'payment'",
		invoiceID, string(kind),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check payments: %w", err)
	}
	return n > 0, nil
}

// DeleteByInvoice removes all items and their options for an invoice
func (r *ItemRepo) DeleteByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) error {
	if _, err := r.q.ExecContext(ctx, `
		DELETE FROM invoice_item_options
		WHERE item_id IN (
			SELECT id FROM invoice_items WHERE invoice_id = ? AND invoice_kind = ?
		)`,
		invoiceID, string(kind),
	); err != nil {
		return fmt.Errorf("failed to delete invoice item options: %w", err)
	}

	if _, err := r.q.ExecContext(ctx,
		"DELETE FROM invoice_items WHERE invoice_id = ? AND invoice_kind = ?",
		invoiceID, string(kind),
	); err != nil {
		return fmt.Errorf("failed to delete invoice items: %w", err)
	}

	return nil
}

func (r *ItemRepo) list(ctx context.Context, query string, args ...interface{}) ([]*domain.InvoiceItem, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.InvoiceItem, 0)
	for rows.Next() {
		item, err := scanItemRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	for _, item := range items {
		if err := r.loadOptions(ctx, item); err != nil {
			return nil, err
		}
		if err := r.resolveLabels(ctx, item); err != nil {
			return nil, err
		}
	}

	return items, nil
}

// writeOptions replaces an item's option rows with its current Options map
func (r *ItemRepo) writeOptions(ctx context.Context, item *domain.InvoiceItem) error {
	if _, err := r.q.ExecContext(ctx,
		"DELETE FROM invoice_item_options WHERE item_id = ?", item.ID,
	); err != nil {
		return fmt.Errorf("failed to clear item options: %w", err)
	}

	for name, value := range item.Options {
		if value == "" {
			continue
		}
		if _, err := r.q.ExecContext(ctx,
			"INSERT INTO invoice_item_options (item_id, option_name, option_value) VALUES (?, ?, ?)",
			item.ID, name, value,
		); err != nil {
			return fmt.Errorf("failed to write item option %s: %w", name, err)
		}
	}

	return nil
}

func (r *ItemRepo) loadOptions(ctx context.Context, item *domain.InvoiceItem) error {
	rows, err := r.q.QueryContext(ctx,
		"SELECT option_name, option_value FROM invoice_item_options WHERE item_id = ?",
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load item options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("failed to scan item option: %w", err)
		}
		item.SetOption(name, value)
	}

	return rows.Err()
}

// resolveLabels fills the human-readable labels for an item. A missing
// reference row leaves the label empty; any other lookup failure is
// reported.
func (r *ItemRepo) resolveLabels(ctx context.Context, item *domain.InvoiceItem) error {
	if item.ChartID > 0 {
		err := r.q.QueryRowContext(ctx,
			"SELECT code_chart || '--' || description FROM account_charts WHERE id = ?",
			item.ChartID,
		).Scan(&item.ChartLabel)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to resolve chart label: %w", err)
		}
	}

	switch item.Type {
	case domain.ItemTypeProduct, domain.ItemTypeTime:
		if item.CustomID > 0 {
			err := r.q.QueryRowContext(ctx,
				"SELECT name_product FROM products WHERE id = ?",
				item.CustomID,
			).Scan(&item.CustomLabel)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to resolve product label: %w", err)
			}
		}
		if gid := item.TimeGroupID(); gid > 0 {
			err := r.q.QueryRowContext(ctx,
				"SELECT COALESCE(code_project || ' -- ', '') || name_group FROM time_groups WHERE id = ?",
				gid,
			).Scan(&item.TimeGroupLabel)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to resolve time group label: %w", err)
			}
		}
	case domain.ItemTypeTax:
		if item.CustomID > 0 {
			err := r.q.QueryRowContext(ctx,
				"SELECT name_tax FROM account_taxes WHERE id = ?",
				item.CustomID,
			).Scan(&item.CustomLabel)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to resolve tax label: %w", err)
			}
		}
	}

	return nil
}

// scanItemRow scans one item row through the given Scan function
func scanItemRow(scan func(dest ...interface{}) error) (*domain.InvoiceItem, error) {
	item := &domain.InvoiceItem{}
	var kind, itemType string
	var units, description sql.NullString
	var quantity, price, amount string

	err := scan(
		&item.ID,
		&item.InvoiceID,
		&kind,
		&itemType,
		&item.CustomID,
		&item.ChartID,
		&quantity,
		&units,
		&price,
		&amount,
		&description,
	)
	if err != nil {
		return nil, err
	}

	item.InvoiceKind = domain.InvoiceKind(kind)
	item.Type = domain.ItemType(itemType)
	item.Units = units.String
	item.Description = description.String

	if item.Quantity, err = parseAmount(quantity); err != nil {
		return nil, err
	}
	if item.Price, err = parseAmount(price); err != nil {
		return nil, err
	}
	if item.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}

	return item, nil
}
