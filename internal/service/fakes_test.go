package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/andy/tallybook/internal/domain"
	"github.com/andy/tallybook/internal/repository"
)

// In-memory fakes shared by the service tests. WithTx is a no-op on all
// of them; stubTxRunner below stands in for the real transaction
// boundary so the service code under test runs its closures directly.

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

func invoiceKey(kind domain.InvoiceKind, id int64) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

// --- invoices ---

type fakeInvoiceRepo struct {
	seq      int64
	invoices map[string]*domain.Invoice
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{invoices: make(map[string]*domain.Invoice)}
}

func (f *fakeInvoiceRepo) WithTx(tx *sql.Tx) repository.InvoiceRepository { return f }

func (f *fakeInvoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	f.seq++
	invoice.ID = f.seq
	f.invoices[invoiceKey(invoice.Kind, invoice.ID)] = invoice
	return nil
}

func (f *fakeInvoiceRepo) GetByID(ctx context.Context, kind domain.InvoiceKind, id int64) (*domain.Invoice, error) {
	if inv, ok := f.invoices[invoiceKey(kind, id)]; ok {
		return inv, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeInvoiceRepo) GetDetails(ctx context.Context, kind domain.InvoiceKind, id int64) (*domain.Invoice, error) {
	return f.GetByID(ctx, kind, id)
}

func (f *fakeInvoiceRepo) Exists(ctx context.Context, kind domain.InvoiceKind, id int64) (bool, error) {
	_, ok := f.invoices[invoiceKey(kind, id)]
	return ok, nil
}

func (f *fakeInvoiceRepo) CodeInUse(ctx context.Context, kind domain.InvoiceKind, code string, excludeID int64) (bool, error) {
	for _, inv := range f.invoices {
		if inv.Kind == kind && inv.CodeInvoice == code && inv.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeInvoiceRepo) Update(ctx context.Context, invoice *domain.Invoice) error {
	key := invoiceKey(invoice.Kind, invoice.ID)
	if _, ok := f.invoices[key]; !ok {
		return repository.ErrNotFound
	}
	f.invoices[key] = invoice
	return nil
}

func (f *fakeInvoiceRepo) UpdateTotals(ctx context.Context, kind domain.InvoiceKind, id int64, subtotal, tax, total, paid decimal.Decimal) error {
	inv, ok := f.invoices[invoiceKey(kind, id)]
	if !ok {
		return repository.ErrNotFound
	}
	inv.AmountSubtotal = subtotal
	inv.AmountTax = tax
	inv.AmountTotal = total
	inv.AmountPaid = paid
	return nil
}

func (f *fakeInvoiceRepo) SetLocked(ctx context.Context, kind domain.InvoiceKind, id int64, locked bool) error {
	inv, ok := f.invoices[invoiceKey(kind, id)]
	if !ok {
		return repository.ErrNotFound
	}
	inv.Locked = locked
	return nil
}

func (f *fakeInvoiceRepo) Delete(ctx context.Context, kind domain.InvoiceKind, id int64) error {
	delete(f.invoices, invoiceKey(kind, id))
	return nil
}

func (f *fakeInvoiceRepo) List(ctx context.Context, kind domain.InvoiceKind) ([]*domain.Invoice, error) {
	var out []*domain.Invoice
	for _, inv := range f.invoices {
		if inv.Kind == kind {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- items ---

type fakeItemRepo struct {
	seq   int64
	items map[int64]*domain.InvoiceItem
}

func newFakeItemRepo() *fakeItemRepo {
	return &fakeItemRepo{items: make(map[int64]*domain.InvoiceItem)}
}

func (f *fakeItemRepo) WithTx(tx *sql.Tx) repository.InvoiceItemRepository { return f }

func (f *fakeItemRepo) Create(ctx context.Context, item *domain.InvoiceItem) error {
	f.seq++
	item.ID = f.seq
	f.items[item.ID] = item
	return nil
}

func (f *fakeItemRepo) Update(ctx context.Context, item *domain.InvoiceItem) error {
	if _, ok := f.items[item.ID]; !ok {
		return repository.ErrNotFound
	}
	f.items[item.ID] = item
	return nil
}

func (f *fakeItemRepo) Delete(ctx context.Context, itemID int64) error {
	delete(f.items, itemID)
	return nil
}

func (f *fakeItemRepo) GetByID(ctx context.Context, itemID int64) (*domain.InvoiceItem, error) {
	if item, ok := f.items[itemID]; ok {
		return item, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeItemRepo) ListByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) ([]*domain.InvoiceItem, error) {
	var out []*domain.InvoiceItem
	for _, item := range f.items {
		if item.InvoiceKind == kind && item.InvoiceID == invoiceID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeItemRepo) ListByTypes(ctx context.Context, kind domain.InvoiceKind, invoiceID int64, types ...domain.ItemType) ([]*domain.InvoiceItem, error) {
	all, _ := f.ListByInvoice(ctx, kind, invoiceID)
	var out []*domain.InvoiceItem
	for _, item := range all {
		for _, t := range types {
			if item.Type == t {
				out = append(out, item)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeItemRepo) HasPayments(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) (bool, error) {
	payments, _ := f.ListByTypes(ctx, kind, invoiceID, domain.ItemTypePayment)
	return len(payments) > 0, nil
}

func (f *fakeItemRepo) DeleteByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) error {
	for id, item := range f.items {
		if item.InvoiceKind == kind && item.InvoiceID == invoiceID {
			delete(f.items, id)
		}
	}
	return nil
}

// --- ledger ---

type fakeLedgerRepo struct {
	entries map[string][]*domain.LedgerEntry
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{entries: make(map[string][]*domain.LedgerEntry)}
}

func (f *fakeLedgerRepo) WithTx(tx *sql.Tx) repository.LedgerRepository { return f }

func (f *fakeLedgerRepo) Replace(ctx context.Context, kind domain.InvoiceKind, invoiceID int64, entries []*domain.LedgerEntry) error {
	f.entries[invoiceKey(kind, invoiceID)] = entries
	return nil
}

func (f *fakeLedgerRepo) ListByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) ([]*domain.LedgerEntry, error) {
	return f.entries[invoiceKey(kind, invoiceID)], nil
}

func (f *fakeLedgerRepo) DeleteByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) error {
	delete(f.entries, invoiceKey(kind, invoiceID))
	return nil
}

// --- reference data ---

type fakeRefRepo struct {
	charts   map[int64]*domain.ChartAccount
	taxes    map[int64]*domain.TaxDefinition
	products map[int64]*domain.Product
	orgs     map[int64]*domain.Org
	staff    map[int64]*domain.Staff
	groups   map[int64]*domain.TimeGroup
	orgTaxes map[int64][]int64
}

func newFakeRefRepo() *fakeRefRepo {
	return &fakeRefRepo{
		charts:   make(map[int64]*domain.ChartAccount),
		taxes:    make(map[int64]*domain.TaxDefinition),
		products: make(map[int64]*domain.Product),
		orgs:     make(map[int64]*domain.Org),
		staff:    make(map[int64]*domain.Staff),
		groups:   make(map[int64]*domain.TimeGroup),
		orgTaxes: make(map[int64][]int64),
	}
}

func (f *fakeRefRepo) WithTx(tx *sql.Tx) repository.ReferenceRepository { return f }

func (f *fakeRefRepo) GetChart(ctx context.Context, id int64) (*domain.ChartAccount, error) {
	if c, ok := f.charts[id]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRefRepo) ListCharts(ctx context.Context) ([]*domain.ChartAccount, error) {
	var out []*domain.ChartAccount
	for _, c := range f.charts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRefRepo) CreateChart(ctx context.Context, chart *domain.ChartAccount) error {
	f.charts[chart.ID] = chart
	return nil
}

func (f *fakeRefRepo) GetTax(ctx context.Context, id int64) (*domain.TaxDefinition, error) {
	if t, ok := f.taxes[id]; ok {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRefRepo) ListTaxes(ctx context.Context) ([]*domain.TaxDefinition, error) {
	var out []*domain.TaxDefinition
	for _, t := range f.taxes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRefRepo) CreateTax(ctx context.Context, tax *domain.TaxDefinition) error {
	f.taxes[tax.ID] = tax
	return nil
}

func (f *fakeRefRepo) TaxesForOrg(ctx context.Context, orgID int64) ([]*domain.TaxDefinition, error) {
	ids := append([]int64(nil), f.orgTaxes[orgID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []*domain.TaxDefinition
	for _, id := range ids {
		if t, ok := f.taxes[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeRefRepo) LinkOrgTax(ctx context.Context, orgID, taxID int64) error {
	f.orgTaxes[orgID] = append(f.orgTaxes[orgID], taxID)
	return nil
}

func (f *fakeRefRepo) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRefRepo) CreateProduct(ctx context.Context, product *domain.Product) error {
	f.products[product.ID] = product
	return nil
}

func (f *fakeRefRepo) GetOrg(ctx context.Context, id int64) (*domain.Org, error) {
	if o, ok := f.orgs[id]; ok {
		return o, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRefRepo) CreateOrg(ctx context.Context, org *domain.Org) error {
	f.orgs[org.ID] = org
	return nil
}

func (f *fakeRefRepo) GetStaff(ctx context.Context, id int64) (*domain.Staff, error) {
	if s, ok := f.staff[id]; ok {
		return s, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRefRepo) CreateStaff(ctx context.Context, staff *domain.Staff) error {
	f.staff[staff.ID] = staff
	return nil
}

func (f *fakeRefRepo) GetTimeGroup(ctx context.Context, id int64) (*domain.TimeGroup, error) {
	if g, ok := f.groups[id]; ok {
		return g, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRefRepo) CreateTimeGroup(ctx context.Context, group *domain.TimeGroup) error {
	f.groups[group.ID] = group
	return nil
}

func (f *fakeRefRepo) ClaimTimeGroup(ctx context.Context, groupID, itemID int64) error {
	g, ok := f.groups[groupID]
	if !ok {
		return repository.ErrNotFound
	}
	if !g.ClaimableBy(itemID) {
		return repository.ErrTimeGroupClaimed
	}
	g.InvoiceItemID = itemID
	return nil
}

func (f *fakeRefRepo) ReleaseTimeGroups(ctx context.Context, itemID int64) error {
	for _, g := range f.groups {
		if g.InvoiceItemID == itemID {
			g.InvoiceItemID = 0
		}
	}
	return nil
}

// --- journal ---

type fakeJournalRepo struct {
	seq     int64
	entries []*domain.JournalEntry
}

func newFakeJournalRepo() *fakeJournalRepo { return &fakeJournalRepo{} }

func (f *fakeJournalRepo) WithTx(tx *sql.Tx) repository.JournalRepository { return f }

func (f *fakeJournalRepo) Append(ctx context.Context, entry *domain.JournalEntry) error {
	f.seq++
	entry.ID = f.seq
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeJournalRepo) ListByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) ([]*domain.JournalEntry, error) {
	var out []*domain.JournalEntry
	for _, e := range f.entries {
		if e.InvoiceKind == kind && e.InvoiceID == invoiceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeJournalRepo) DeleteByInvoice(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) error {
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.InvoiceKind != kind || e.InvoiceID != invoiceID {
			kept = append(kept, e)
		}
	}
	f.entries = kept
	return nil
}

// --- config ---

type fakeConfigRepo struct {
	values map[string]string
}

func newFakeConfigRepo() *fakeConfigRepo {
	return &fakeConfigRepo{values: make(map[string]string)}
}

func (f *fakeConfigRepo) WithTx(tx *sql.Tx) repository.ConfigRepository { return f }

func (f *fakeConfigRepo) Get(ctx context.Context, name string) (string, error) {
	return f.values[name], nil
}

func (f *fakeConfigRepo) Set(ctx context.Context, name, value string) error {
	f.values[name] = value
	return nil
}
