package domain

import "github.com/shopspring/decimal"

// Reference data: chart of accounts, tax definitions, counterparties,
// staff and time groups. All of it is read-only to the recalculation
// engine; only the admin CLI writes these tables.

// OrgKind distinguishes customers (AR counterparties) from vendors (AP).
type OrgKind string

const (
	OrgCustomer OrgKind = "customer"
	OrgVendor   OrgKind = "vendor"
)

// Org is an invoice counterparty.
type Org struct {
	ID   int64
	Kind OrgKind
	Name string
	Code string
}

// Product is a sellable good or service referenced by product and time
// items. Time items use the product's sell price as the billing rate;
// ChartID is the revenue (AR) or expense (AP) account its lines post to.
type Product struct {
	ID        int64
	Name      string
	PriceSell decimal.Decimal
	ChartID   int64
}

// Staff is an employee referenced by invoice headers.
type Staff struct {
	ID   int64
	Name string
}

// ChartAccount is one account in the chart of accounts.
type ChartAccount struct {
	ID          int64
	Code        string
	Description string
}

// Label renders the account the way invoice screens show it.
func (c *ChartAccount) Label() string {
	return c.Code + "--" + c.Description
}

// TaxDefinition is one configured tax. Rate is a percentage (15 means
// 15%). ChartID is the liability account collecting the tax.
type TaxDefinition struct {
	ID          int64
	Name        string
	Rate        decimal.Decimal
	ChartID     int64
	Description string
}

// AmountOn returns the tax on the given base, rounded to currency
// precision half away from zero.
func (t *TaxDefinition) AmountOn(base decimal.Decimal) decimal.Decimal {
	return RoundMoney(base.Mul(t.Rate).Div(decimal.NewFromInt(100)))
}

// TimeGroup is a block of tracked, billable time belonging to one
// customer. A group can be claimed by at most one invoice item at a time;
// InvoiceItemID is 0 while unclaimed.
type TimeGroup struct {
	ID            int64
	OrgID         int64
	Name          string
	ProjectCode   string
	Hours         decimal.Decimal
	InvoiceItemID int64
}

// ClaimableBy reports whether the group can be billed by the given item.
// An unclaimed group is claimable by anyone; a claimed group only by the
// item that already holds it.
func (g *TimeGroup) ClaimableBy(itemID int64) bool {
	return g.InvoiceItemID == 0 || g.InvoiceItemID == itemID
}

// Label renders the group the way invoice screens show it.
func (g *TimeGroup) Label() string {
	if g.ProjectCode == "" {
		return g.Name
	}
	return g.ProjectCode + " -- " + g.Name
}
