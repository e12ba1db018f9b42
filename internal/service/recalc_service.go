package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andy/tallybook/internal/db"
	"github.com/andy/tallybook/internal/domain"
	"github.com/andy/tallybook/internal/logger"
	"github.com/andy/tallybook/internal/repository"
)

// RecalcService is the financial repair pass run after every item
// mutation: tax recomputation, total aggregation and ledger reposting, in
// that order. Each step is idempotent; running the pipeline twice with no
// intervening item change leaves the invoice byte-identical.
type RecalcService interface {
	// UpdateTaxes derives or repairs the tax items for an invoice from
	// its current taxable lines
	UpdateTaxes(ctx context.Context, tx *sql.Tx, kind domain.InvoiceKind, invoiceID int64) error

	// UpdateTotals recomputes the four aggregate amounts from current
	// item state
	UpdateTotals(ctx context.Context, tx *sql.Tx, kind domain.InvoiceKind, invoiceID int64) error

	// UpdateLedger regenerates the invoice's ledger postings as a
	// replace-all set
	UpdateLedger(ctx context.Context, tx *sql.Tx, kind domain.InvoiceKind, invoiceID int64) error

	// Pipeline runs the three steps in order inside the caller's
	// transaction
	Pipeline(ctx context.Context, tx *sql.Tx, kind domain.InvoiceKind, invoiceID int64) error

	// Recalculate runs the pipeline standalone in its own transaction
	Recalculate(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) error
}

type recalcService struct {
	db          db.TxRunner
	invoiceRepo repository.InvoiceRepository
	itemRepo    repository.InvoiceItemRepository
	ledgerRepo  repository.LedgerRepository
	refRepo     repository.ReferenceRepository
}

// NewRecalcService creates the recalculation pipeline.
func NewRecalcService(
	database db.TxRunner,
	invoiceRepo repository.InvoiceRepository,
	itemRepo repository.InvoiceItemRepository,
	ledgerRepo repository.LedgerRepository,
	refRepo repository.ReferenceRepository,
) RecalcService {
	return &recalcService{
		db:          database,
		invoiceRepo: invoiceRepo,
		itemRepo:    itemRepo,
		ledgerRepo:  ledgerRepo,
		refRepo:     refRepo,
	}
}

func (s *recalcService) Pipeline(ctx context.Context, tx *sql.Tx, kind domain.InvoiceKind, invoiceID int64) error {
	if err := s.UpdateTaxes(ctx, tx, kind, invoiceID); err != nil {
		return err
	}
	if err := s.UpdateTotals(ctx, tx, kind, invoiceID); err != nil {
		return err
	}
	return s.UpdateLedger(ctx, tx, kind, invoiceID)
}

func (s *recalcService) Recalculate(ctx context.Context, kind domain.InvoiceKind, invoiceID int64) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return s.Pipeline(ctx, tx, kind, invoiceID)
	})
}

// UpdateTaxes implements the tax recalculation engine:
//
//  1. taxable base = sum of amounts over non-tax, non-payment items
//  2. applicable definitions come from the counterparty's tax links,
//     processed in tax definition id order for deterministic output
//  3. engine-owned tax items are recomputed as base x rate, rounded half
//     away from zero to 2 decimal places; manual-mode items keep their
//     amount untouched
//  4. at most one engine-owned item exists per definition; duplicate
//     rows for the same definition are collapsed into the oldest one
//  5. non-manual tax items whose definition no longer applies (or whose
//     base has collapsed to zero) are removed
//
// Invoices with auto_taxes disabled are manually curated and skipped.
func (s *recalcService) UpdateTaxes(ctx context.Context, tx *sql.Tx, kind domain.InvoiceKind, invoiceID int64) error {
	invoiceRepo, itemRepo, refRepo := s.invoiceRepo, s.itemRepo, s.refRepo
	if tx != nil {
		invoiceRepo = invoiceRepo.WithTx(tx)
		itemRepo = itemRepo.WithTx(tx)
		refRepo = refRepo.WithTx(tx)
	}

	invoice, err := invoiceRepo.GetByID(ctx, kind, invoiceID)
	if err != nil {
		return err
	}
	if !invoice.AutoTaxes {
		return nil
	}

	items, err := itemRepo.ListByInvoice(ctx, kind, invoiceID)
	if err != nil {
		return err
	}

	base := decimal.Zero
	engineItems := make(map[int64]*domain.InvoiceItem) // one per tax definition id
	manualDefs := make(map[int64]bool)
	var surplus []*domain.InvoiceItem
	for _, item := range items {
		switch {
		case item.Type.Taxable():
			base = base.Add(item.Amount)
		case item.Type == domain.ItemTypeTax:
			if item.ManualTax() {
				manualDefs[item.CustomID] = true
				continue
			}
			if engineItems[item.CustomID] != nil {
				surplus = append(surplus, item)
				continue
			}
			engineItems[item.CustomID] = item
		}
	}

	// a definition gets at most one engine-owned item; duplicate rows
	// stack the same tax twice, so surplus copies and engine rows
	// shadowed by a manual one are removed
	for _, item := range surplus {
		if err := itemRepo.Delete(ctx, item.ID); err != nil {
			return err
		}
	}
	for taxID, item := range engineItems {
		if !manualDefs[taxID] {
			continue
		}
		if err := itemRepo.Delete(ctx, item.ID); err != nil {
			return err
		}
		delete(engineItems, taxID)
	}

	applicable := map[int64]bool{}
	if !base.IsZero() {
		taxes, err := refRepo.TaxesForOrg(ctx, invoice.OrgID)
		if err != nil {
			return err
		}

		for _, tax := range taxes {
			applicable[tax.ID] = true

			if manualDefs[tax.ID] {
				continue
			}

			existing := engineItems[tax.ID]
			amount := tax.AmountOn(base)
			if existing != nil {
				if existing.Amount.Equal(amount) && existing.ChartID == tax.ChartID {
					continue
				}
				existing.Amount = amount
				existing.ChartID = tax.ChartID
				if err := itemRepo.Update(ctx, existing); err != nil {
					return err
				}
				continue
			}

			item := &domain.InvoiceItem{
				InvoiceID:   invoiceID,
				InvoiceKind: kind,
				Type:        domain.ItemTypeTax,
				CustomID:    tax.ID,
				ChartID:     tax.ChartID,
				Amount:      amount,
				Description: tax.Name,
			}
			if err := itemRepo.Create(ctx, item); err != nil {
				return err
			}
		}
	}

	// sweep engine items whose definition is gone or whose base vanished;
	// manual-mode items are user-owned and survive
	for taxID, item := range engineItems {
		if applicable[taxID] {
			continue
		}
		if err := itemRepo.Delete(ctx, item.ID); err != nil {
			return err
		}
	}

	return nil
}

// UpdateTotals implements the total aggregator: a pure function of the
// current item set written back in one statement. It never reads prior
// header amounts.
func (s *recalcService) UpdateTotals(ctx context.Context, tx *sql.Tx, kind domain.InvoiceKind, invoiceID int64) error {
	invoiceRepo, itemRepo := s.invoiceRepo, s.itemRepo
	if tx != nil {
		invoiceRepo = invoiceRepo.WithTx(tx)
		itemRepo = itemRepo.WithTx(tx)
	}

	items, err := itemRepo.ListByInvoice(ctx, kind, invoiceID)
	if err != nil {
		return err
	}

	subtotal, taxTotal, paid := decimal.Zero, decimal.Zero, decimal.Zero
	for _, item := range items {
		switch {
		case item.Type.Taxable():
			subtotal = subtotal.Add(item.Amount)
		case item.Type == domain.ItemTypeTax:
			taxTotal = taxTotal.Add(item.Amount)
		case item.Type == domain.ItemTypePayment:
			paid = paid.Add(item.Amount)
		}
	}

	total := subtotal.Add(taxTotal)
	return invoiceRepo.UpdateTotals(ctx, kind, invoiceID, subtotal, taxTotal, total, paid)
}

// UpdateLedger implements the ledger poster. Postings for the invoice are
// regenerated as a replaceable set: one double-entry pair per contributing
// item, the item side against its chart account and the counterpart
// against the invoice's destination control account.
//
// Direction mapping:
//
//	AR  product/time/standard/tax:  debit control, credit item chart
//	AR  payment:                    debit item chart, credit control
//	AP  mirrors AR on every row
func (s *recalcService) UpdateLedger(ctx context.Context, tx *sql.Tx, kind domain.InvoiceKind, invoiceID int64) error {
	invoiceRepo, itemRepo, ledgerRepo := s.invoiceRepo, s.itemRepo, s.ledgerRepo
	if tx != nil {
		invoiceRepo = invoiceRepo.WithTx(tx)
		itemRepo = itemRepo.WithTx(tx)
		ledgerRepo = ledgerRepo.WithTx(tx)
	}

	invoice, err := invoiceRepo.GetByID(ctx, kind, invoiceID)
	if err != nil {
		return err
	}

	items, err := itemRepo.ListByInvoice(ctx, kind, invoiceID)
	if err != nil {
		return err
	}

	entries := make([]*domain.LedgerEntry, 0, len(items)*2)
	for _, item := range items {
		if item.Amount.IsZero() {
			continue
		}

		itemDate := postingDate(invoice, item)
		memo := invoice.CodeInvoice
		if item.Description != "" {
			memo += " " + item.Description
		}

		itemSide, controlSide := domain.DirectionCredit, domain.DirectionDebit
		if item.Type == domain.ItemTypePayment {
			itemSide, controlSide = domain.DirectionDebit, domain.DirectionCredit
		}
		if kind == domain.KindPayable {
			itemSide, controlSide = controlSide, itemSide
		}

		entries = append(entries,
			&domain.LedgerEntry{
				ItemID:    item.ID,
				ChartID:   invoice.DestAccount,
				Date:      itemDate,
				Amount:    item.Amount,
				Direction: controlSide,
				Memo:      memo,
			},
			&domain.LedgerEntry{
				ItemID:    item.ID,
				ChartID:   item.ChartID,
				Date:      itemDate,
				Amount:    item.Amount,
				Direction: itemSide,
				Memo:      memo,
			},
		)
	}

	if balance := domain.BalancePostings(entries); !balance.IsZero() {
		// regenerated pairs always balance; anything else is a bug
		return fmt.Errorf("%w: unbalanced posting set for invoice %d (%s): %s",
			ErrActionFailed, invoiceID, kind, balance.String())
	}

	if err := ledgerRepo.Replace(ctx, kind, invoiceID, entries); err != nil {
		return err
	}

	log := logger.WithComponent("recalc")
	log.Debug().
		Int64("invoice_id", invoiceID).
		Str("kind", string(kind)).
		Int("postings", len(entries)).
		Msg("ledger repost complete")

	return nil
}

// postingDate picks the transaction date for an item's postings: payment
// items use their own transaction date, everything else the invoice's.
func postingDate(invoice *domain.Invoice, item *domain.InvoiceItem) time.Time {
	if item.Type == domain.ItemTypePayment {
		if raw := item.Option(domain.OptionDateTrans); raw != "" {
			if t, err := time.Parse("2006-01-02", raw); err == nil {
				return t
			}
		}
	}
	if invoice.DateTrans != nil {
		return *invoice.DateTrans
	}
	return invoice.DateCreate
}
