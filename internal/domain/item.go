package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ItemType is the closed set of invoice line item variants. Each variant
// enables a distinct subset of the item fields; the service layer enforces
// the per-variant requirements before anything is written.
type ItemType string

const (
	ItemTypeProduct  ItemType = "product"
	ItemTypeTime     ItemType = "time"
	ItemTypeStandard ItemType = "standard"
	ItemTypeTax      ItemType = "tax"
	ItemTypePayment  ItemType = "payment"
)

// Valid reports whether the type is a known item variant.
func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeProduct, ItemTypeTime, ItemTypeStandard, ItemTypeTax, ItemTypePayment:
		return true
	}
	return false
}

// Taxable reports whether items of this type contribute to the taxable base.
func (t ItemType) Taxable() bool {
	switch t {
	case ItemTypeProduct, ItemTypeTime, ItemTypeStandard:
		return true
	}
	return false
}

// Item option keys. Options are an open key/value side table for fields
// that only exist for some item types.
const (
	OptionTimeGroupID = "TIMEGROUPID"   // time items: claimed time group
	OptionTaxCalcMode = "TAX_CALC_MODE" // tax items: "manual" disables engine ownership
	OptionSource      = "SOURCE"        // payment items: payment source reference
	OptionDateTrans   = "DATE_TRANS"    // payment items: transaction date
)

// TaxCalcManual is the OptionTaxCalcMode value marking a tax item as
// user-owned. Any other value (or no option at all) means engine-owned.
const TaxCalcManual = "manual"

// UnitsHours is forced onto time items regardless of caller input.
const UnitsHours = "hours"

// InvoiceItem is one line attached to an invoice. CustomID references a
// product for product/time items and a tax definition for tax items;
// ChartID references the chart of accounts for standard, tax and payment
// items.
type InvoiceItem struct {
	ID          int64
	InvoiceID   int64
	InvoiceKind InvoiceKind
	Type        ItemType

	CustomID int64
	ChartID  int64

	Quantity decimal.Decimal
	Units    string
	Price    decimal.Decimal
	Amount   decimal.Decimal

	Description string

	// Options holds the extension key/value pairs for this item.
	Options map[string]string

	// Resolved labels, populated by the repository on reads
	CustomLabel    string
	ChartLabel     string
	TimeGroupLabel string
}

// Option returns the named extension option, or "" when unset.
func (it *InvoiceItem) Option(name string) string {
	if it.Options == nil {
		return ""
	}
	return it.Options[name]
}

// SetOption records an extension option, creating the map on first use.
func (it *InvoiceItem) SetOption(name, value string) {
	if it.Options == nil {
		it.Options = make(map[string]string)
	}
	it.Options[name] = value
}

// ManualTax reports whether this is a tax item whose amount is user-owned.
// The recalculation engine never touches a manual tax item's amount.
func (it *InvoiceItem) ManualTax() bool {
	return it.Type == ItemTypeTax && it.Option(OptionTaxCalcMode) == TaxCalcManual
}

// TimeGroupID returns the claimed time group for time items, 0 otherwise.
func (it *InvoiceItem) TimeGroupID() int64 {
	if it.Type != ItemTypeTime {
		return 0
	}
	return parseOptionID(it.Option(OptionTimeGroupID))
}

// Validate checks the cross-field requirements that hold for every item
// variant once prepared.
func (it *InvoiceItem) Validate() error {
	if it.InvoiceID <= 0 {
		return errors.New("item must belong to an invoice")
	}
	if !it.InvoiceKind.Valid() {
		return errors.New("item invoice kind must be ar or ap")
	}
	if !it.Type.Valid() {
		return errors.New("unknown item type")
	}
	switch it.Type {
	case ItemTypeProduct:
		if it.CustomID <= 0 {
			return errors.New("product item requires a product reference")
		}
		if it.ChartID <= 0 {
			return errors.New("product item requires a posting account")
		}
	case ItemTypeTime:
		if it.CustomID <= 0 {
			return errors.New("time item requires a billing product reference")
		}
		if it.ChartID <= 0 {
			return errors.New("time item requires a posting account")
		}
		if it.Option(OptionTimeGroupID) == "" {
			return errors.New("time item requires a time group")
		}
	case ItemTypeStandard:
		if it.ChartID <= 0 {
			return errors.New("standard item requires a chart account")
		}
	case ItemTypeTax:
		if it.CustomID <= 0 {
			return errors.New("tax item requires a tax definition reference")
		}
	case ItemTypePayment:
		if it.ChartID <= 0 {
			return errors.New("payment item requires a chart account")
		}
		if it.Option(OptionDateTrans) == "" {
			return errors.New("payment item requires a transaction date")
		}
	}
	return nil
}

func parseOptionID(s string) int64 {
	var id int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		id = id*10 + int64(r-'0')
	}
	return id
}
