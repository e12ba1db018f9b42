package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/andy/tallybook/internal/config"
	"github.com/andy/tallybook/internal/domain"
)

// testEnv wires the services over the in-memory fakes with reference
// data most tests need: a customer org with one linked 15% tax, a
// product priced at 100.00 posting to revenue, and a 2.5 hour time
// group.
type testEnv struct {
	invoices *fakeInvoiceRepo
	items    *fakeItemRepo
	ledger   *fakeLedgerRepo
	ref      *fakeRefRepo
	journal  *fakeJournalRepo
	config   *fakeConfigRepo

	recalc     RecalcService
	invoiceSvc InvoiceService
	itemSvc    ItemService
	caller     *Caller
}

func newTestEnv() *testEnv {
	env := &testEnv{
		invoices: newFakeInvoiceRepo(),
		items:    newFakeItemRepo(),
		ledger:   newFakeLedgerRepo(),
		ref:      newFakeRefRepo(),
		journal:  newFakeJournalRepo(),
		config:   newFakeConfigRepo(),
	}

	env.ref.orgs[1] = &domain.Org{ID: 1, Kind: domain.OrgCustomer, Name: "ACME"}
	env.ref.charts[10] = &domain.ChartAccount{ID: 10, Code: "1200", Description: "Accounts Receivable"}
	env.ref.charts[11] = &domain.ChartAccount{ID: 11, Code: "4000", Description: "Revenue"}
	env.ref.charts[12] = &domain.ChartAccount{ID: 12, Code: "2200", Description: "Tax Payable"}
	env.ref.charts[13] = &domain.ChartAccount{ID: 13, Code: "1000", Description: "Bank"}
	env.ref.products[5] = &domain.Product{ID: 5, Name: "Consulting", PriceSell: dec("100.00"), ChartID: 11}
	env.ref.taxes[7] = &domain.TaxDefinition{ID: 7, Name: "GST", Rate: dec("15"), ChartID: 12}
	env.ref.orgTaxes[1] = []int64{7}
	env.ref.groups[20] = &domain.TimeGroup{ID: 20, OrgID: 1, Name: "March work", Hours: dec("2.5")}

	accounts := config.AccountsConfig{
		ARCodePrefix: "INV", APCodePrefix: "BILL",
		ARCodeStart: 1000, APCodeStart: 1000,
		DefaultARAccount: 10, DefaultAPAccount: 10,
	}

	runner := stubTxRunner{}
	env.recalc = NewRecalcService(runner, env.invoices, env.items, env.ledger, env.ref)
	allocator := NewCodeAllocator(accounts, env.config, env.invoices)
	env.invoiceSvc = NewInvoiceService(runner, accounts,
		env.invoices, env.items, env.ledger, env.journal, env.ref,
		allocator, env.recalc)
	env.itemSvc = NewItemService(runner, env.invoices, env.items, env.ref, env.recalc)

	env.caller = NewCaller("tester",
		ViewCap(domain.KindReceivable), WriteCap(domain.KindReceivable),
		ViewCap(domain.KindPayable), WriteCap(domain.KindPayable),
	)

	return env
}

// addInvoice seeds an invoice directly through the fake repository.
func (env *testEnv) addInvoice(kind domain.InvoiceKind, code string) *domain.Invoice {
	inv := domain.NewInvoice(kind, 1, code)
	inv.DestAccount = 10
	env.invoices.Create(context.Background(), inv)
	return inv
}

// addItem seeds an item directly through the fake repository.
func (env *testEnv) addItem(inv *domain.Invoice, itemType domain.ItemType, chartID int64, amount string) *domain.InvoiceItem {
	item := &domain.InvoiceItem{
		InvoiceID:   inv.ID,
		InvoiceKind: inv.Kind,
		Type:        itemType,
		ChartID:     chartID,
		Amount:      dec(amount),
	}
	env.items.Create(context.Background(), item)
	return item
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestUpdateTaxes_ComputesEngineOwnedTax(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	env.addItem(inv, domain.ItemTypeStandard, 11, "200.00")

	if err := env.recalc.UpdateTaxes(ctx, nil, inv.Kind, inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	taxes, _ := env.items.ListByTypes(ctx, inv.Kind, inv.ID, domain.ItemTypeTax)
	if len(taxes) != 1 {
		t.Fatalf("expected 1 tax item, got %d", len(taxes))
	}
	if !taxes[0].Amount.Equal(dec("30.00")) {
		t.Fatalf("expected tax 30.00, got %s", taxes[0].Amount)
	}
	if taxes[0].CustomID != 7 || taxes[0].ChartID != 12 {
		t.Fatalf("tax item references wrong definition or chart: %+v", taxes[0])
	}
}

func TestUpdateTaxes_RecomputesStaleAmount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	env.addItem(inv, domain.ItemTypeStandard, 11, "100.00")
	stale := env.addItem(inv, domain.ItemTypeTax, 12, "99.99")
	stale.CustomID = 7

	if err := env.recalc.UpdateTaxes(ctx, nil, inv.Kind, inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := env.items.GetByID(ctx, stale.ID)
	if !got.Amount.Equal(dec("15.00")) {
		t.Fatalf("expected recomputed tax 15.00, got %s", got.Amount)
	}
}

func TestUpdateTaxes_CollapsesDuplicateDefinitionItems(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	env.addItem(inv, domain.ItemTypeStandard, 11, "200.00")
	first := env.addItem(inv, domain.ItemTypeTax, 12, "15.00")
	first.CustomID = 7
	second := env.addItem(inv, domain.ItemTypeTax, 12, "30.00")
	second.CustomID = 7

	if err := env.recalc.UpdateTaxes(ctx, nil, inv.Kind, inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	taxes, _ := env.items.ListByTypes(ctx, inv.Kind, inv.ID, domain.ItemTypeTax)
	if len(taxes) != 1 {
		t.Fatalf("expected duplicates collapsed to 1 tax item, got %d", len(taxes))
	}
	if taxes[0].ID != first.ID {
		t.Fatalf("expected the oldest item kept, got id %d", taxes[0].ID)
	}
	if !taxes[0].Amount.Equal(dec("30.00")) {
		t.Fatalf("expected recomputed tax 30.00, got %s", taxes[0].Amount)
	}
}

func TestUpdateTaxes_ManualItemShadowsEngineItem(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	env.addItem(inv, domain.ItemTypeStandard, 11, "100.00")
	engine := env.addItem(inv, domain.ItemTypeTax, 12, "15.00")
	engine.CustomID = 7
	manual := env.addItem(inv, domain.ItemTypeTax, 12, "42.00")
	manual.CustomID = 7
	manual.SetOption(domain.OptionTaxCalcMode, domain.TaxCalcManual)

	if err := env.recalc.UpdateTaxes(ctx, nil, inv.Kind, inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	taxes, _ := env.items.ListByTypes(ctx, inv.Kind, inv.ID, domain.ItemTypeTax)
	if len(taxes) != 1 {
		t.Fatalf("expected only the manual tax to survive, got %d items", len(taxes))
	}
	if taxes[0].ID != manual.ID || !taxes[0].Amount.Equal(dec("42.00")) {
		t.Fatalf("surviving tax item is not the manual one: %+v", taxes[0])
	}
}

func TestUpdateTaxes_ManualModePreserved(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	env.addItem(inv, domain.ItemTypeStandard, 11, "100.00")
	manual := env.addItem(inv, domain.ItemTypeTax, 12, "42.00")
	manual.CustomID = 7
	manual.SetOption(domain.OptionTaxCalcMode, domain.TaxCalcManual)

	if err := env.recalc.UpdateTaxes(ctx, nil, inv.Kind, inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := env.items.GetByID(ctx, manual.ID)
	if !got.Amount.Equal(dec("42.00")) {
		t.Fatalf("manual tax amount changed: got %s", got.Amount)
	}
}

func TestUpdateTaxes_ZeroBaseRemovesEngineTaxes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	engine := env.addItem(inv, domain.ItemTypeTax, 12, "15.00")
	engine.CustomID = 7
	manual := env.addItem(inv, domain.ItemTypeTax, 12, "5.00")
	manual.CustomID = 7
	manual.SetOption(domain.OptionTaxCalcMode, domain.TaxCalcManual)

	if err := env.recalc.UpdateTaxes(ctx, nil, inv.Kind, inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	taxes, _ := env.items.ListByTypes(ctx, inv.Kind, inv.ID, domain.ItemTypeTax)
	if len(taxes) != 1 {
		t.Fatalf("expected only the manual tax to survive, got %d items", len(taxes))
	}
	if !taxes[0].ManualTax() {
		t.Fatalf("surviving tax item is not the manual one: %+v", taxes[0])
	}
}

func TestUpdateTaxes_SkippedWhenAutoTaxesOff(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	inv.AutoTaxes = false
	env.addItem(inv, domain.ItemTypeStandard, 11, "200.00")

	if err := env.recalc.UpdateTaxes(ctx, nil, inv.Kind, inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	taxes, _ := env.items.ListByTypes(ctx, inv.Kind, inv.ID, domain.ItemTypeTax)
	if len(taxes) != 0 {
		t.Fatalf("expected no tax items with auto taxes off, got %d", len(taxes))
	}
}

func TestUpdateTotals_AggregatesByType(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	env.addItem(inv, domain.ItemTypeStandard, 11, "100.00")
	env.addItem(inv, domain.ItemTypeProduct, 11, "50.00")
	tax := env.addItem(inv, domain.ItemTypeTax, 12, "22.50")
	tax.CustomID = 7
	env.addItem(inv, domain.ItemTypePayment, 13, "60.00")

	if err := env.recalc.UpdateTotals(ctx, nil, inv.Kind, inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := env.invoices.GetByID(ctx, inv.Kind, inv.ID)
	if !got.AmountSubtotal.Equal(dec("150.00")) {
		t.Fatalf("subtotal: got %s", got.AmountSubtotal)
	}
	if !got.AmountTax.Equal(dec("22.50")) {
		t.Fatalf("tax: got %s", got.AmountTax)
	}
	if !got.AmountTotal.Equal(dec("172.50")) {
		t.Fatalf("total: got %s", got.AmountTotal)
	}
	if !got.AmountPaid.Equal(dec("60.00")) {
		t.Fatalf("paid: got %s", got.AmountPaid)
	}
	if !got.Balance().Equal(dec("112.50")) {
		t.Fatalf("balance: got %s", got.Balance())
	}
}

func TestUpdateLedger_BalancedPairsWithPaymentsReversed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	env.addItem(inv, domain.ItemTypeStandard, 11, "100.00")
	payment := env.addItem(inv, domain.ItemTypePayment, 13, "40.00")
	env.addItem(inv, domain.ItemTypeStandard, 11, "0.00") // zero lines post nothing

	if err := env.recalc.UpdateLedger(ctx, nil, inv.Kind, inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, _ := env.ledger.ListByInvoice(ctx, inv.Kind, inv.ID)
	if len(entries) != 4 {
		t.Fatalf("expected 4 postings (2 pairs), got %d", len(entries))
	}
	if !domain.BalancePostings(entries).IsZero() {
		t.Fatalf("posting set does not balance")
	}

	// the payment pair runs opposite to the charge pair on an AR invoice
	for _, e := range entries {
		if e.ItemID != payment.ID {
			continue
		}
		switch e.ChartID {
		case 13:
			if e.Direction != domain.DirectionDebit {
				t.Fatalf("payment bank side should debit, got %s", e.Direction)
			}
		case 10:
			if e.Direction != domain.DirectionCredit {
				t.Fatalf("payment control side should credit, got %s", e.Direction)
			}
		}
	}
}

func TestUpdateLedger_PayableMirrorsReceivable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	inv := env.addInvoice(domain.KindPayable, "BILL-1000")
	charge := env.addItem(inv, domain.ItemTypeStandard, 11, "100.00")

	if err := env.recalc.UpdateLedger(ctx, nil, inv.Kind, inv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, _ := env.ledger.ListByInvoice(ctx, inv.Kind, inv.ID)
	if len(entries) != 2 {
		t.Fatalf("expected 2 postings, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ItemID != charge.ID {
			t.Fatalf("posting for unexpected item %d", e.ItemID)
		}
		switch e.ChartID {
		case 11:
			if e.Direction != domain.DirectionDebit {
				t.Fatalf("AP expense side should debit, got %s", e.Direction)
			}
		case 10:
			if e.Direction != domain.DirectionCredit {
				t.Fatalf("AP control side should credit, got %s", e.Direction)
			}
		default:
			t.Fatalf("posting to unexpected chart %d", e.ChartID)
		}
	}
}

func TestPipeline_Idempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()

	inv := env.addInvoice(domain.KindReceivable, "INV-1000")
	env.addItem(inv, domain.ItemTypeStandard, 11, "200.00")

	for i := 0; i < 3; i++ {
		if err := env.recalc.Pipeline(ctx, nil, inv.Kind, inv.ID); err != nil {
			t.Fatalf("run %d: unexpected error: %v", i, err)
		}
	}

	taxes, _ := env.items.ListByTypes(ctx, inv.Kind, inv.ID, domain.ItemTypeTax)
	if len(taxes) != 1 {
		t.Fatalf("expected exactly 1 tax item after repeated runs, got %d", len(taxes))
	}

	got, _ := env.invoices.GetByID(ctx, inv.Kind, inv.ID)
	if !got.AmountTotal.Equal(dec("230.00")) {
		t.Fatalf("expected total 230.00, got %s", got.AmountTotal)
	}

	entries, _ := env.ledger.ListByInvoice(ctx, inv.Kind, inv.ID)
	if len(entries) != 4 {
		t.Fatalf("expected 4 postings after repeated runs, got %d", len(entries))
	}
}
