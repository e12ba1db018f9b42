package service

import (
	"context"
	"errors"
	"testing"

	"github.com/andy/tallybook/internal/domain"
)

func TestSetProductItem_DerivesAmountAndChart(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")

	id, err := env.itemSvc.SetProductItem(ctx, env.caller, inv.Kind, inv.ID, 0, ProductItemInput{
		ProductID: 5,
		Price:     "10.00",
		Quantity:  "3",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item, _ := env.items.GetByID(ctx, id)
	if !item.Amount.Equal(dec("30.00")) {
		t.Fatalf("expected amount 30.00, got %s", item.Amount)
	}
	if item.ChartID != 11 {
		t.Fatalf("expected chart from product (11), got %d", item.ChartID)
	}
	if item.CustomID != 5 {
		t.Fatalf("expected product reference 5, got %d", item.CustomID)
	}

	// the pipeline ran: tax item and totals exist
	got, _ := env.invoices.GetByID(ctx, inv.Kind, inv.ID)
	if !got.AmountTotal.Equal(dec("34.50")) {
		t.Fatalf("expected total 34.50 after pipeline, got %s", got.AmountTotal)
	}
}

func TestSetProductItem_MoneyCoercion(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")

	id, err := env.itemSvc.SetProductItem(ctx, env.caller, inv.Kind, inv.ID, 0, ProductItemInput{
		ProductID: 5,
		Price:     "$1,250.00",
		Quantity:  "2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item, _ := env.items.GetByID(ctx, id)
	if !item.Amount.Equal(dec("2500.00")) {
		t.Fatalf("expected amount 2500.00, got %s", item.Amount)
	}

	_, err = env.itemSvc.SetProductItem(ctx, env.caller, inv.Kind, inv.ID, 0, ProductItemInput{
		ProductID: 5,
		Price:     "not money",
		Quantity:  "1",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad price, got %v", err)
	}
}

func TestSetItem_GateChecks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")

	input := StandardItemInput{ChartID: 11, Amount: "10.00"}

	if _, err := env.itemSvc.SetStandardItem(ctx, env.caller, "weird", inv.ID, 0, input); !errors.Is(err, ErrInvalidInvoiceKind) {
		t.Fatalf("expected ErrInvalidInvoiceKind, got %v", err)
	}

	readOnly := NewCaller("viewer", ViewCap(domain.KindReceivable))
	if _, err := env.itemSvc.SetStandardItem(ctx, readOnly, inv.Kind, inv.ID, 0, input); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}

	if _, err := env.itemSvc.SetStandardItem(ctx, env.caller, inv.Kind, 999, 0, input); !errors.Is(err, ErrInvalidInvoice) {
		t.Fatalf("expected ErrInvalidInvoice, got %v", err)
	}

	inv.Locked = true
	if _, err := env.itemSvc.SetStandardItem(ctx, env.caller, inv.Kind, inv.ID, 0, input); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestSetItem_RejectsForeignItem(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	other := env.addInvoice(domain.KindReceivable, "INV-1001")
	foreign := env.addItem(other, domain.ItemTypeStandard, 11, "10.00")

	_, err := env.itemSvc.SetStandardItem(ctx, env.caller, inv.Kind, inv.ID, foreign.ID, StandardItemInput{
		ChartID: 11,
		Amount:  "20.00",
	})
	if !errors.Is(err, ErrInvalidItemID) {
		t.Fatalf("expected ErrInvalidItemID, got %v", err)
	}
}

func TestSetTimeItem_ClaimsGroupAndForcesHours(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")

	id, err := env.itemSvc.SetTimeItem(ctx, env.caller, inv.Kind, inv.ID, 0, TimeItemInput{
		ProductID:   5,
		TimeGroupID: 20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item, _ := env.items.GetByID(ctx, id)
	if item.Units != domain.UnitsHours {
		t.Fatalf("expected units %q, got %q", domain.UnitsHours, item.Units)
	}
	if !item.Quantity.Equal(dec("2.5")) {
		t.Fatalf("expected quantity from group (2.5), got %s", item.Quantity)
	}
	// rate falls back to the product's sell price
	if !item.Amount.Equal(dec("250.00")) {
		t.Fatalf("expected amount 250.00, got %s", item.Amount)
	}

	group, _ := env.ref.GetTimeGroup(ctx, 20)
	if group.InvoiceItemID != id {
		t.Fatalf("expected group claimed by item %d, got %d", id, group.InvoiceItemID)
	}

	// a second item cannot bill the same group
	_, err = env.itemSvc.SetTimeItem(ctx, env.caller, inv.Kind, inv.ID, 0, TimeItemInput{
		ProductID:   5,
		TimeGroupID: 20,
	})
	if !errors.Is(err, ErrInvalidTimeGroup) {
		t.Fatalf("expected ErrInvalidTimeGroup for claimed group, got %v", err)
	}

	// but the holder can re-save
	if _, err := env.itemSvc.SetTimeItem(ctx, env.caller, inv.Kind, inv.ID, id, TimeItemInput{
		ProductID:   5,
		TimeGroupID: 20,
		Price:       "80.00",
	}); err != nil {
		t.Fatalf("holder re-save failed: %v", err)
	}
}

func TestSetTimeItem_SwitchingGroupsReleasesOld(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.ref.groups[22] = &domain.TimeGroup{ID: 22, OrgID: 1, Name: "April work", Hours: dec("4")}
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")

	id, err := env.itemSvc.SetTimeItem(ctx, env.caller, inv.Kind, inv.ID, 0, TimeItemInput{
		ProductID:   5,
		TimeGroupID: 20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := env.itemSvc.SetTimeItem(ctx, env.caller, inv.Kind, inv.ID, id, TimeItemInput{
		ProductID:   5,
		TimeGroupID: 22,
	}); err != nil {
		t.Fatalf("group switch failed: %v", err)
	}

	old, _ := env.ref.GetTimeGroup(ctx, 20)
	if old.InvoiceItemID != 0 {
		t.Fatalf("old group still claimed by %d", old.InvoiceItemID)
	}
	current, _ := env.ref.GetTimeGroup(ctx, 22)
	if current.InvoiceItemID != id {
		t.Fatalf("new group not claimed, holder %d", current.InvoiceItemID)
	}
}

func TestSetTimeItem_RejectsForeignOrgGroup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	env.ref.groups[21] = &domain.TimeGroup{ID: 21, OrgID: 2, Name: "other org", Hours: dec("1")}
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")

	_, err := env.itemSvc.SetTimeItem(ctx, env.caller, inv.Kind, inv.ID, 0, TimeItemInput{
		ProductID:   5,
		TimeGroupID: 21,
	})
	if !errors.Is(err, ErrInvalidTimeGroup) {
		t.Fatalf("expected ErrInvalidTimeGroup for foreign org, got %v", err)
	}
}

func TestSetTaxItem_ManualAmount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")

	id, err := env.itemSvc.SetTaxItem(ctx, env.caller, inv.Kind, inv.ID, 0, TaxItemInput{
		TaxID:        7,
		Manual:       true,
		ManualAmount: "12.34",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item, _ := env.items.GetByID(ctx, id)
	if !item.Amount.Equal(dec("12.34")) {
		t.Fatalf("expected manual amount 12.34, got %s", item.Amount)
	}
	if !item.ManualTax() {
		t.Fatalf("expected manual tax mode on item")
	}
	if item.Description != "GST" {
		t.Fatalf("expected description defaulted from tax name, got %q", item.Description)
	}
}

func TestSetTaxItem_ExistingDefinitionEditsInPlace(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")

	if _, err := env.itemSvc.SetStandardItem(ctx, env.caller, inv.Kind, inv.ID, 0, StandardItemInput{
		ChartID: 11,
		Amount:  "100.00",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	taxes, _ := env.items.ListByTypes(ctx, inv.Kind, inv.ID, domain.ItemTypeTax)
	if len(taxes) != 1 {
		t.Fatalf("expected 1 engine tax item, got %d", len(taxes))
	}

	// setting the same definition again must reuse its line, not stack
	// a second one
	id, err := env.itemSvc.SetTaxItem(ctx, env.caller, inv.Kind, inv.ID, 0, TaxItemInput{TaxID: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != taxes[0].ID {
		t.Fatalf("expected tax line %d reused, got %d", taxes[0].ID, id)
	}

	if _, err := env.itemSvc.SetStandardItem(ctx, env.caller, inv.Kind, inv.ID, 0, StandardItemInput{
		ChartID: 11,
		Amount:  "100.00",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	taxes, _ = env.items.ListByTypes(ctx, inv.Kind, inv.ID, domain.ItemTypeTax)
	if len(taxes) != 1 {
		t.Fatalf("expected a single tax line per definition, got %d", len(taxes))
	}
	if !taxes[0].Amount.Equal(dec("30.00")) {
		t.Fatalf("expected tax 30.00 on 200.00 base, got %s", taxes[0].Amount)
	}

	got, _ := env.invoices.GetByID(ctx, inv.Kind, inv.ID)
	if !got.AmountTax.Equal(dec("30.00")) {
		t.Fatalf("tax total: got %s", got.AmountTax)
	}
}

func TestSetStandardItem_RewritingTimeItemReleasesGroup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")

	id, err := env.itemSvc.SetTimeItem(ctx, env.caller, inv.Kind, inv.ID, 0, TimeItemInput{
		ProductID:   5,
		TimeGroupID: 20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := env.itemSvc.SetStandardItem(ctx, env.caller, inv.Kind, inv.ID, id, StandardItemInput{
		ChartID: 11,
		Amount:  "75.00",
	}); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	group, _ := env.ref.GetTimeGroup(ctx, 20)
	if group.InvoiceItemID != 0 {
		t.Fatalf("group still claimed by %d", group.InvoiceItemID)
	}
	got, _ := env.items.GetByID(ctx, id)
	if got.Type != domain.ItemTypeStandard {
		t.Fatalf("expected standard item after rewrite, got %s", got.Type)
	}
}

func TestSetPaymentItem_UpdatesPaidWithoutTouchingTaxes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	env.addItem(inv, domain.ItemTypeStandard, 11, "100.00")

	_, err := env.itemSvc.SetPaymentItem(ctx, env.caller, inv.Kind, inv.ID, 0, PaymentItemInput{
		ChartID:   13,
		DateTrans: "2026-03-10",
		Amount:    "60.00",
		Source:    "chq 144",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := env.invoices.GetByID(ctx, inv.Kind, inv.ID)
	if !got.AmountPaid.Equal(dec("60.00")) {
		t.Fatalf("expected paid 60.00, got %s", got.AmountPaid)
	}

	// saving a payment skips tax recomputation entirely
	taxes, _ := env.items.ListByTypes(ctx, inv.Kind, inv.ID, domain.ItemTypeTax)
	if len(taxes) != 0 {
		t.Fatalf("payment save created tax items: %d", len(taxes))
	}
}

func TestSetPaymentItem_RequiresDate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")

	_, err := env.itemSvc.SetPaymentItem(ctx, env.caller, inv.Kind, inv.ID, 0, PaymentItemInput{
		ChartID: 13,
		Amount:  "60.00",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing date, got %v", err)
	}
}

func TestDeleteItem_ReleasesGroupAndRecalculates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	inv := env.addInvoice(domain.KindReceivable, "INV-1000")

	id, err := env.itemSvc.SetTimeItem(ctx, env.caller, inv.Kind, inv.ID, 0, TimeItemInput{
		ProductID:   5,
		TimeGroupID: 20,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := env.itemSvc.DeleteItem(ctx, env.caller, id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	group, _ := env.ref.GetTimeGroup(ctx, 20)
	if group.InvoiceItemID != 0 {
		t.Fatalf("expected group released, still claimed by %d", group.InvoiceItemID)
	}

	got, _ := env.invoices.GetByID(ctx, inv.Kind, inv.ID)
	if !got.AmountTotal.IsZero() {
		t.Fatalf("expected zero total after delete, got %s", got.AmountTotal)
	}
	taxes, _ := env.items.ListByTypes(ctx, inv.Kind, inv.ID, domain.ItemTypeTax)
	if len(taxes) != 0 {
		t.Fatalf("expected tax items swept after base collapsed, got %d", len(taxes))
	}
}

func TestDeleteItem_UnknownID(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	if err := env.itemSvc.DeleteItem(ctx, env.caller, 404); !errors.Is(err, ErrInvalidItemID) {
		t.Fatalf("expected ErrInvalidItemID, got %v", err)
	}
}
