package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andy/tallybook/internal/db"
	"github.com/andy/tallybook/internal/domain"
)

// ErrTimeGroupClaimed is returned when a time group is already bound to a
// different invoice item.
var ErrTimeGroupClaimed = errors.New("time group already claimed")

// ReferenceRepo is a SQLite implementation of ReferenceRepository
type ReferenceRepo struct {
	q db.Querier
}

// NewReferenceRepo creates a new ReferenceRepo
func NewReferenceRepo(database *db.DB) *ReferenceRepo {
	return &ReferenceRepo{q: database}
}

// WithTx returns a copy of the repository bound to the transaction
func (r *ReferenceRepo) WithTx(tx *sql.Tx) ReferenceRepository {
	return &ReferenceRepo{q: tx}
}

func (r *ReferenceRepo) GetChart(ctx context.Context, id int64) (*domain.ChartAccount, error) {
	chart := &domain.ChartAccount{}
	err := r.q.QueryRowContext(ctx,
		"SELECT id, code_chart, description FROM account_charts WHERE id = ?", id,
	).Scan(&chart.ID, &chart.Code, &chart.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chart account %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chart account: %w", err)
	}
	return chart, nil
}

func (r *ReferenceRepo) ListCharts(ctx context.Context) ([]*domain.ChartAccount, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT id, code_chart, description FROM account_charts ORDER BY code_chart",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chart accounts: %w", err)
	}
	defer rows.Close()

	charts := make([]*domain.ChartAccount, 0)
	for rows.Next() {
		chart := &domain.ChartAccount{}
		if err := rows.Scan(&chart.ID, &chart.Code, &chart.Description); err != nil {
			return nil, fmt.Errorf("failed to scan chart account: %w", err)
		}
		charts = append(charts, chart)
	}
	return charts, rows.Err()
}

func (r *ReferenceRepo) CreateChart(ctx context.Context, chart *domain.ChartAccount) error {
	result, err := r.q.ExecContext(ctx,
		"INSERT INTO account_charts (code_chart, description) VALUES (?, ?)",
		chart.Code, chart.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create chart account: %w", err)
	}
	chart.ID, err = result.LastInsertId()
	return err
}

func (r *ReferenceRepo) GetTax(ctx context.Context, id int64) (*domain.TaxDefinition, error) {
	tax := &domain.TaxDefinition{}
	var rate string
	var description sql.NullString
	err := r.q.QueryRowContext(ctx,
		"SELECT id, name_tax, rate, chart_id, description FROM account_taxes WHERE id = ?", id,
	).Scan(&tax.ID, &tax.Name, &rate, &tax.ChartID, &description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tax definition %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tax definition: %w", err)
	}
	if tax.Rate, err = parseAmount(rate); err != nil {
		return nil, err
	}
	tax.Description = description.String
	return tax, nil
}

func (r *ReferenceRepo) ListTaxes(ctx context.Context) ([]*domain.TaxDefinition, error) {
	return r.listTaxes(ctx,
		"SELECT id, name_tax, rate, chart_id, description FROM account_taxes ORDER BY id",
	)
}

func (r *ReferenceRepo) CreateTax(ctx context.Context, tax *domain.TaxDefinition) error {
	result, err := r.q.ExecContext(ctx,
		"INSERT INTO account_taxes (name_tax, rate, chart_id, description) VALUES (?, ?, ?, ?)",
		tax.Name, tax.Rate.String(), tax.ChartID, tax.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create tax definition: %w", err)
	}
	tax.ID, err = result.LastInsertId()
	return err
}

// TaxesForOrg returns the taxes applicable to a counterparty in stable tax
// id order, which fixes the tax recalculation processing order.
func (r *ReferenceRepo) TaxesForOrg(ctx context.Context, orgID int64) ([]*domain.TaxDefinition, error) {
	return r.listTaxes(ctx, `
		SELECT t.id, t.name_tax, t.rate, t.chart_id, t.description
		FROM account_taxes t
		JOIN org_taxes ot ON ot.tax_id = t.id
		WHERE ot.org_id = ?
		ORDER BY t.id`,
		orgID,
	)
}

func (r *ReferenceRepo) LinkOrgTax(ctx context.Context, orgID, taxID int64) error {
	if _, err := r.q.ExecContext(ctx,
		"INSERT OR IGNORE INTO org_taxes (org_id, tax_id) VALUES (?, ?)",
		orgID, taxID,
	); err != nil {
		return fmt.Errorf("failed to link org tax: %w", err)
	}
	return nil
}

func (r *ReferenceRepo) listTaxes(ctx context.Context, query string, args ...interface{}) ([]*domain.TaxDefinition, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tax definitions: %w", err)
	}
	defer rows.Close()

	taxes := make([]*domain.TaxDefinition, 0)
	for rows.Next() {
		tax := &domain.TaxDefinition{}
		var rate string
		var description sql.NullString
		if err := rows.Scan(&tax.ID, &tax.Name, &rate, &tax.ChartID, &description); err != nil {
			return nil, fmt.Errorf("failed to scan tax definition: %w", err)
		}
		if tax.Rate, err = parseAmount(rate); err != nil {
			return nil, err
		}
		tax.Description = description.String
		taxes = append(taxes, tax)
	}
	return taxes, rows.Err()
}

func (r *ReferenceRepo) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	product := &domain.Product{}
	var price string
	err := r.q.QueryRowContext(ctx,
		"SELECT id, name_product, price_sell, chart_id FROM products WHERE id = ?", id,
	).Scan(&product.ID, &product.Name, &price, &product.ChartID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product.PriceSell, err = parseAmount(price); err != nil {
		return nil, err
	}
	return product, nil
}

func (r *ReferenceRepo) CreateProduct(ctx context.Context, product *domain.Product) error {
	result, err := r.q.ExecContext(ctx,
		"INSERT INTO products (name_product, price_sell, chart_id) VALUES (?, ?, ?)",
		product.Name, product.PriceSell.String(), product.ChartID,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	product.ID, err = result.LastInsertId()
	return err
}

func (r *ReferenceRepo) GetOrg(ctx context.Context, id int64) (*domain.Org, error) {
	org := &domain.Org{}
	var kind string
	var code sql.NullString
	err := r.q.QueryRowContext(ctx,
		"SELECT id, org_kind, name, code FROM orgs WHERE id = ?", id,
	).Scan(&org.ID, &kind, &org.Name, &code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("org %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get org: %w", err)
	}
	org.Kind = domain.OrgKind(kind)
	org.Code = code.String
	return org, nil
}

func (r *ReferenceRepo) CreateOrg(ctx context.Context, org *domain.Org) error {
	result, err := r.q.ExecContext(ctx,
		"INSERT INTO orgs (org_kind, name, code) VALUES (?, ?, ?)",
		string(org.Kind), org.Name, org.Code,
	)
	if err != nil {
		return fmt.Errorf("failed to create org: %w", err)
	}
	org.ID, err = result.LastInsertId()
	return err
}

func (r *ReferenceRepo) GetStaff(ctx context.Context, id int64) (*domain.Staff, error) {
	staff := &domain.Staff{}
	err := r.q.QueryRowContext(ctx,
		"SELECT id, name FROM staff WHERE id = ?", id,
	).Scan(&staff.ID, &staff.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("staff %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	return staff, nil
}

func (r *ReferenceRepo) CreateStaff(ctx context.Context, staff *domain.Staff) error {
	result, err := r.q.ExecContext(ctx,
		"INSERT INTO staff (name) VALUES (?)", staff.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to create staff: %w", err)
	}
	staff.ID, err = result.LastInsertId()
	return err
}

func (r *ReferenceRepo) GetTimeGroup(ctx context.Context, id int64) (*domain.TimeGroup, error) {
	group := &domain.TimeGroup{}
	var code sql.NullString
	var hours string
	err := r.q.QueryRowContext(ctx,
		"SELECT id, org_id, name_group, code_project, hours, invoice_item_id FROM time_groups WHERE id = ?", id,
	).Scan(&group.ID, &group.OrgID, &group.Name, &code, &hours, &group.InvoiceItemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("time group %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get time group: %w", err)
	}
	group.ProjectCode = code.String
	if group.Hours, err = parseAmount(hours); err != nil {
		return nil, err
	}
	return group, nil
}

func (r *ReferenceRepo) CreateTimeGroup(ctx context.Context, group *domain.TimeGroup) error {
	result, err := r.q.ExecContext(ctx,
		"INSERT INTO time_groups (org_id, name_group, code_project, hours, invoice_item_id) VALUES (?, ?, ?, ?, ?)",
		group.OrgID, group.Name, group.ProjectCode, group.Hours.String(), group.InvoiceItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to create time group: %w", err)
	}
	group.ID, err = result.LastInsertId()
	return err
}

// ClaimTimeGroup binds a group to an invoice item. The WHERE clause only
// matches an unclaimed group or one already held by this item, so a
// double-booking attempt affects zero rows.
func (r *ReferenceRepo) ClaimTimeGroup(ctx context.Context, groupID, itemID int64) error {
	result, err := r.q.ExecContext(ctx,
		"UPDATE time_groups SET invoice_item_id = ? WHERE id = ? AND (invoice_item_id = 0 OR invoice_item_id = ?)",
		itemID, groupID, itemID,
	)
	if err != nil {
		return fmt.Errorf("failed to claim time group: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("time group %d: %w", groupID, ErrTimeGroupClaimed)
	}
	return nil
}

// ReleaseTimeGroups unbinds every group claimed by the given item
func (r *ReferenceRepo) ReleaseTimeGroups(ctx context.Context, itemID int64) error {
	if _, err := r.q.ExecContext(ctx,
		"UPDATE time_groups SET invoice_item_id = 0 WHERE invoice_item_id = ?",
		itemID,
	); err != nil {
		return fmt.Errorf("failed to release time groups: %w", err)
	}
	return nil
}
