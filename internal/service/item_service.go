package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/andy/tallybook/internal/db"
	"github.com/andy/tallybook/internal/domain"
	"github.com/andy/tallybook/internal/logger"
	"github.com/andy/tallybook/internal/repository"
)

// Input structs carry raw caller-supplied values. Money, quantity and
// date fields arrive as strings and are coerced during preparation;
// a coercion failure aborts the request before any write.

type StandardItemInput struct {
	ChartID     int64
	Amount      string
	Description string
}

type ProductItemInput struct {
	ProductID   int64
	Price       string
	Quantity    string
	Units       string
	Description string
}

type TimeItemInput struct {
	ProductID   int64
	TimeGroupID int64
	Price       string
	Description string
}

type TaxItemInput struct {
	TaxID int64
	// Manual hands ownership of the amount to the user; the
	// recalculation engine stops touching it
	Manual       bool
	ManualAmount string
	Description  string
}

type PaymentItemInput struct {
	ChartID     int64
	DateTrans   string
	Amount      string
	Source      string
	Description string
}

// ItemService is the invoice item operation surface. Every mutating
// operation runs the same sequence: capability gate, lock gate,
// validation and derivation with no writes, then item write plus the
// recalculation pipeline inside one transaction.
type ItemService interface {
	// GetInvoiceItems returns the product, time and standard items on an
	// invoice in id order
	GetInvoiceItems(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID int64) ([]*domain.InvoiceItem, error)
	GetInvoiceTaxes(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID int64) ([]*domain.InvoiceItem, error)
	GetInvoicePayments(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID int64) ([]*domain.InvoiceItem, error)

	// Set* operations create an item when itemID is 0 and update it
	// otherwise, returning the item id
	SetStandardItem(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID, itemID int64, in StandardItemInput) (int64, error)
	SetProductItem(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID, itemID int64, in ProductItemInput) (int64, error)
	SetTimeItem(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID, itemID int64, in TimeItemInput) (int64, error)
	SetTaxItem(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID, itemID int64, in TaxItemInput) (int64, error)
	SetPaymentItem(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID, itemID int64, in PaymentItemInput) (int64, error)

	// DeleteItem removes an item by id; the invoice is resolved from the
	// item itself
	DeleteItem(ctx context.Context, caller *Caller, itemID int64) error
}

type itemService struct {
	db          db.TxRunner
	invoiceRepo repository.InvoiceRepository
	itemRepo    repository.InvoiceItemRepository
	refRepo     repository.ReferenceRepository
	recalc      RecalcService
	log         zerolog.Logger
}

// NewItemService creates the item operation surface.
func NewItemService(
	database db.TxRunner,
	invoiceRepo repository.InvoiceRepository,
	itemRepo repository.InvoiceItemRepository,
	refRepo repository.ReferenceRepository,
	recalc RecalcService,
) ItemService {
	return &itemService{
		db:          database,
		invoiceRepo: invoiceRepo,
		itemRepo:    itemRepo,
		refRepo:     refRepo,
		recalc:      recalc,
		log:         logger.WithComponent("item_service"),
	}
}

func (s *itemService) GetInvoiceItems(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID int64) ([]*domain.InvoiceItem, error) {
	if err := s.verifyForRead(ctx, caller, kind, invoiceID); err != nil {
		return nil, err
	}
	return s.itemRepo.ListByTypes(ctx, kind, invoiceID,
		domain.ItemTypeProduct, domain.ItemTypeTime, domain.ItemTypeStandard)
}

func (s *itemService) GetInvoiceTaxes(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID int64) ([]*domain.InvoiceItem, error) {
	if err := s.verifyForRead(ctx, caller, kind, invoiceID); err != nil {
		return nil, err
	}
	return s.itemRepo.ListByTypes(ctx, kind, invoiceID, domain.ItemTypeTax)
}

func (s *itemService) GetInvoicePayments(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID int64) ([]*domain.InvoiceItem, error) {
	if err := s.verifyForRead(ctx, caller, kind, invoiceID); err != nil {
		return nil, err
	}
	return s.itemRepo.ListByTypes(ctx, kind, invoiceID, domain.ItemTypePayment)
}

func (s *itemService) SetStandardItem(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID, itemID int64, in StandardItemInput) (int64, error) {
	if err := s.verifyForWrite(ctx, caller, kind, invoiceID, itemID); err != nil {
		return 0, err
	}

	item, err := s.prepareStandard(ctx, kind, invoiceID, itemID, in)
	if err != nil {
		return 0, err
	}

	return s.applyItem(ctx, item, true)
}

func (s *itemService) SetProductItem(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID, itemID int64, in ProductItemInput) (int64, error) {
	if err := s.verifyForWrite(ctx, caller, kind, invoiceID, itemID); err != nil {
		return 0, err
	}

	item, err := s.prepareProduct(ctx, kind, invoiceID, itemID, in)
	if err != nil {
		return 0, err
	}

	return s.applyItem(ctx, item, true)
}

func (s *itemService) SetTimeItem(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID, itemID int64, in TimeItemInput) (int64, error) {
	if err := s.verifyForWrite(ctx, caller, kind, invoiceID, itemID); err != nil {
		return 0, err
	}

	item, err := s.prepareTime(ctx, kind, invoiceID, itemID, in)
	if err != nil {
		return 0, err
	}

	return s.applyItem(ctx, item, true)
}

func (s *itemService) SetTaxItem(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID, itemID int64, in TaxItemInput) (int64, error) {
	if err := s.verifyForWrite(ctx, caller, kind, invoiceID, itemID); err != nil {
		return 0, err
	}

	item, err := s.prepareTax(ctx, kind, invoiceID, itemID, in)
	if err != nil {
		return 0, err
	}

	// tax and payment mutations do not change the taxable base, so the
	// tax recomputation step is skipped for them
	return s.applyItem(ctx, item, false)
}

func (s *itemService) SetPaymentItem(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID, itemID int64, in PaymentItemInput) (int64, error) {
	if err := s.verifyForWrite(ctx, caller, kind, invoiceID, itemID); err != nil {
		return 0, err
	}

	item, err := s.preparePayment(ctx, kind, invoiceID, itemID, in)
	if err != nil {
		return 0, err
	}

	return s.applyItem(ctx, item, false)
}

func (s *itemService) DeleteItem(ctx context.Context, caller *Caller, itemID int64) error {
	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: item %d", ErrInvalidItemID, itemID)
		}
		return err
	}

	kind := item.InvoiceKind
	if !kind.Valid() {
		return ErrInvalidInvoiceKind
	}
	if !caller.Can(WriteCap(kind)) {
		return ErrAccessDenied
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, kind, item.InvoiceID)
	if err != nil {
		return err
	}
	if invoice.Locked {
		return ErrLocked
	}

	s.log.Debug().Int64("item_id", itemID).Str("kind", string(kind)).Msg("deleting invoice item")

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		// releasing by item id covers groups left claimed by items that
		// were later rewritten as a different type
		if err := s.refRepo.WithTx(tx).ReleaseTimeGroups(ctx, itemID); err != nil {
			return err
		}
		if err := s.itemRepo.WithTx(tx).Delete(ctx, itemID); err != nil {
			return err
		}
		return s.recalc.Pipeline(ctx, tx, kind, item.InvoiceID)
	})
}

// verifyForRead gates the read operations: kind, capability, existence.
func (s *itemService) verifyForRead(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID int64) error {
	if !kind.Valid() {
		return ErrInvalidInvoiceKind
	}
	if !caller.Can(ViewCap(kind)) {
		return ErrAccessDenied
	}

	exists, err := s.invoiceRepo.Exists(ctx, kind, invoiceID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: invoice %d (%s)", ErrInvalidInvoice, invoiceID, kind)
	}
	return nil
}

// verifyForWrite gates the mutating operations: kind, capability,
// invoice existence, lock state and item ownership when editing.
func (s *itemService) verifyForWrite(ctx context.Context, caller *Caller, kind domain.InvoiceKind, invoiceID, itemID int64) error {
	if !kind.Valid() {
		return ErrInvalidInvoiceKind
	}
	if !caller.Can(WriteCap(kind)) {
		return ErrAccessDenied
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, kind, invoiceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: invoice %d (%s)", ErrInvalidInvoice, invoiceID, kind)
		}
		return err
	}
	if invoice.Locked {
		return ErrLocked
	}

	if itemID > 0 {
		item, err := s.itemRepo.GetByID(ctx, itemID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: item %d", ErrInvalidItemID, itemID)
			}
			return err
		}
		if item.InvoiceID != invoiceID || item.InvoiceKind != kind {
			return fmt.Errorf("%w: item %d does not belong to invoice %d (%s)",
				ErrInvalidItemID, itemID, invoiceID, kind)
		}
	}

	return nil
}

func (s *itemService) prepareStandard(ctx context.Context, kind domain.InvoiceKind, invoiceID, itemID int64, in StandardItemInput) (*domain.InvoiceItem, error) {
	if in.ChartID <= 0 {
		return nil, fmt.Errorf("%w: chart account is required", ErrInvalidInput)
	}
	if _, err := s.refRepo.GetChart(ctx, in.ChartID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown chart account %d", ErrInvalidInput, in.ChartID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPrepFailed, err)
	}

	amount, err := domain.ParseMoney(in.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	return &domain.InvoiceItem{
		ID:          itemID,
		InvoiceID:   invoiceID,
		InvoiceKind: kind,
		Type:        domain.ItemTypeStandard,
		ChartID:     in.ChartID,
		Amount:      amount,
		Description: in.Description,
	}, nil
}

func (s *itemService) prepareProduct(ctx context.Context, kind domain.InvoiceKind, invoiceID, itemID int64, in ProductItemInput) (*domain.InvoiceItem, error) {
	if in.ProductID <= 0 {
		return nil, fmt.Errorf("%w: product reference is required", ErrInvalidInput)
	}

	product, err := s.refRepo.GetProduct(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown product %d", ErrInvalidInput, in.ProductID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPrepFailed, err)
	}

	price, err := domain.ParseMoney(in.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	quantity, err := domain.ParseQuantity(in.Quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	return &domain.InvoiceItem{
		ID:          itemID,
		InvoiceID:   invoiceID,
		InvoiceKind: kind,
		Type:        domain.ItemTypeProduct,
		CustomID:    product.ID,
		ChartID:     product.ChartID,
		Quantity:    quantity,
		Units:       in.Units,
		Price:       price,
		Amount:      domain.RoundMoney(price.Mul(quantity)),
		Description: in.Description,
	}, nil
}

func (s *itemService) prepareTime(ctx context.Context, kind domain.InvoiceKind, invoiceID, itemID int64, in TimeItemInput) (*domain.InvoiceItem, error) {
	if in.ProductID <= 0 {
		return nil, fmt.Errorf("%w: billing product reference is required", ErrInvalidInput)
	}
	if in.TimeGroupID <= 0 {
		return nil, fmt.Errorf("%w: time group is required", ErrInvalidInput)
	}

	product, err := s.refRepo.GetProduct(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown product %d", ErrInvalidInput, in.ProductID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPrepFailed, err)
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, kind, invoiceID)
	if err != nil {
		return nil, err
	}

	group, err := s.refRepo.GetTimeGroup(ctx, in.TimeGroupID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown time group %d", ErrInvalidTimeGroup, in.TimeGroupID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPrepFailed, err)
	}

	// the group must belong to the invoice counterparty and be either
	// unclaimed or already held by this item
	if group.OrgID != invoice.OrgID || !group.ClaimableBy(itemID) {
		return nil, fmt.Errorf("%w: time group %d", ErrInvalidTimeGroup, in.TimeGroupID)
	}

	price, err := domain.ParseMoney(in.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if price.IsZero() {
		price = product.PriceSell
	}

	item := &domain.InvoiceItem{
		ID:          itemID,
		InvoiceID:   invoiceID,
		InvoiceKind: kind,
		Type:        domain.ItemTypeTime,
		CustomID:    product.ID,
		ChartID:     product.ChartID,
		Quantity:    group.Hours,
		Units:       domain.UnitsHours,
		Price:       price,
		Amount:      domain.RoundMoney(price.Mul(group.Hours)),
		Description: in.Description,
	}
	item.SetOption(domain.OptionTimeGroupID, strconv.FormatInt(group.ID, 10))

	return item, nil
}

func (s *itemService) prepareTax(ctx context.Context, kind domain.InvoiceKind, invoiceID, itemID int64, in TaxItemInput) (*domain.InvoiceItem, error) {
	if in.TaxID <= 0 {
		return nil, fmt.Errorf("%w: tax definition reference is required", ErrInvalidInput)
	}

	tax, err := s.refRepo.GetTax(ctx, in.TaxID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown tax definition %d", ErrInvalidInput, in.TaxID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPrepFailed, err)
	}

	description := in.Description
	if description == "" {
		description = tax.Name
	}

	item := &domain.InvoiceItem{
		ID:          itemID,
		InvoiceID:   invoiceID,
		InvoiceKind: kind,
		Type:        domain.ItemTypeTax,
		CustomID:    tax.ID,
		ChartID:     tax.ChartID,
		Amount:      decimal.Zero,
		Description: description,
	}

	// one tax item per definition: adding a definition the invoice
	// already carries edits that line instead of stacking a second one
	if itemID == 0 {
		existingTaxes, err := s.itemRepo.ListByTypes(ctx, kind, invoiceID, domain.ItemTypeTax)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPrepFailed, err)
		}
		for _, prior := range existingTaxes {
			if prior.CustomID == tax.ID {
				item.ID = prior.ID
				item.Amount = prior.Amount
				break
			}
		}
	}

	if in.Manual {
		// manual mode: the caller owns the amount from here on
		amount, err := domain.ParseMoney(in.ManualAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		item.Amount = amount
		item.SetOption(domain.OptionTaxCalcMode, domain.TaxCalcManual)
	} else if itemID > 0 {
		// engine-owned: preserve the engine's last computed amount
		existing, err := s.itemRepo.GetByID(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPrepFailed, err)
		}
		item.Amount = existing.Amount
	}

	return item, nil
}

func (s *itemService) preparePayment(ctx context.Context, kind domain.InvoiceKind, invoiceID, itemID int64, in PaymentItemInput) (*domain.InvoiceItem, error) {
	if in.ChartID <= 0 {
		return nil, fmt.Errorf("%w: chart account is required", ErrInvalidInput)
	}
	if _, err := s.refRepo.GetChart(ctx, in.ChartID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown chart account %d", ErrInvalidInput, in.ChartID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPrepFailed, err)
	}

	if in.DateTrans == "" {
		return nil, fmt.Errorf("%w: transaction date is required", ErrInvalidInput)
	}
	transDate, err := time.Parse("2006-01-02", in.DateTrans)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid transaction date %q", ErrInvalidInput, in.DateTrans)
	}

	amount, err := domain.ParseMoney(in.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	item := &domain.InvoiceItem{
		ID:          itemID,
		InvoiceID:   invoiceID,
		InvoiceKind: kind,
		Type:        domain.ItemTypePayment,
		ChartID:     in.ChartID,
		Amount:      amount,
		Description: in.Description,
	}
	item.SetOption(domain.OptionDateTrans, transDate.Format("2006-01-02"))
	if in.Source != "" {
		item.SetOption(domain.OptionSource, in.Source)
	}

	return item, nil
}

// applyItem persists the prepared item and runs the recalculation
// pipeline inside one transaction. withTaxes selects whether the tax
// recomputation step runs; totals and ledger always do.
func (s *itemService) applyItem(ctx context.Context, item *domain.InvoiceItem, withTaxes bool) (int64, error) {
	if err := item.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPrepFailed, err)
	}

	creating := item.ID == 0

	s.log.Debug().
		Int64("invoice_id", item.InvoiceID).
		Str("kind", string(item.InvoiceKind)).
		Str("item_type", string(item.Type)).
		Bool("create", creating).
		Msg("applying invoice item")

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		itemRepo := s.itemRepo.WithTx(tx)

		if creating {
			if err := itemRepo.Create(ctx, item); err != nil {
				return err
			}
		} else {
			if err := itemRepo.Update(ctx, item); err != nil {
				return err
			}
		}

		// an edit may move the item to another group or rewrite it as a
		// different item type, so any group still claimed by this item
		// is released before the new claim is taken
		refRepo := s.refRepo.WithTx(tx)
		if !creating {
			if err := refRepo.ReleaseTimeGroups(ctx, item.ID); err != nil {
				return err
			}
		}
		if gid := item.TimeGroupID(); gid > 0 {
			if err := refRepo.ClaimTimeGroup(ctx, gid, item.ID); err != nil {
				if errors.Is(err, repository.ErrTimeGroupClaimed) {
					return fmt.Errorf("%w: time group %d", ErrInvalidTimeGroup, gid)
				}
				return err
			}
		}

		if withTaxes {
			return s.recalc.Pipeline(ctx, tx, item.InvoiceKind, item.InvoiceID)
		}
		if err := s.recalc.UpdateTotals(ctx, tx, item.InvoiceKind, item.InvoiceID); err != nil {
			return err
		}
		return s.recalc.UpdateLedger(ctx, tx, item.InvoiceKind, item.InvoiceID)
	})
	if err != nil {
		return 0, err
	}

	return item.ID, nil
}
