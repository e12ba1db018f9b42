package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/andy/tallybook/internal/config"
	"github.com/andy/tallybook/internal/db"
	"github.com/andy/tallybook/internal/domain"
	"github.com/andy/tallybook/internal/logger"
	"github.com/andy/tallybook/internal/repository"
)

// InvoiceInput carries caller-supplied header fields. Dates arrive as
// YYYY-MM-DD strings and are coerced during validation; an empty date
// clears the field.
type InvoiceInput struct {
	OrgID           int64
	EmployeeID      int64
	DestAccount     int64
	CodeInvoice     string
	CodeOrderNumber string
	CodePONumber    string
	DateDue         string
	DateTrans       string
	DateSent        string
	SentMethod      string
	Notes           string
	AutoTaxes       bool
}

// InvoiceService is the invoice header operation surface.
type InvoiceService interface {
	// GetInvoiceDetails returns the header with resolved counterparty,
	// employee and destination account labels
	GetInvoiceDetails(ctx context.Context, caller *Caller, kind domain.InvoiceKind, id int64) (*domain.Invoice, error)

	// SetInvoiceDetails creates the invoice when id is 0 and updates it
	// otherwise, returning the invoice id. An empty code on create is
	// filled from the per-kind allocator.
	SetInvoiceDetails(ctx context.Context, caller *Caller, kind domain.InvoiceKind, id int64, in InvoiceInput) (int64, error)

	// DeleteInvoice removes the invoice and everything derived from it.
	// An invoice with recorded payments refuses deletion.
	DeleteInvoice(ctx context.Context, caller *Caller, kind domain.InvoiceKind, id int64) error

	LockInvoice(ctx context.Context, caller *Caller, kind domain.InvoiceKind, id int64) error
	UnlockInvoice(ctx context.Context, caller *Caller, kind domain.InvoiceKind, id int64) error

	ListInvoices(ctx context.Context, caller *Caller, kind domain.InvoiceKind) ([]*domain.Invoice, error)
}

type invoiceService struct {
	db          db.TxRunner
	cfg         config.AccountsConfig
	invoiceRepo repository.InvoiceRepository
	itemRepo    repository.InvoiceItemRepository
	ledgerRepo  repository.LedgerRepository
	journalRepo repository.JournalRepository
	refRepo     repository.ReferenceRepository
	allocator   CodeAllocator
	recalc      RecalcService
	log         zerolog.Logger
}

// NewInvoiceService creates the invoice header operation surface.
func NewInvoiceService(
	database db.TxRunner,
	cfg config.AccountsConfig,
	invoiceRepo repository.InvoiceRepository,
	itemRepo repository.InvoiceItemRepository,
	ledgerRepo repository.LedgerRepository,
	journalRepo repository.JournalRepository,
	refRepo repository.ReferenceRepository,
	allocator CodeAllocator,
	recalc RecalcService,
) InvoiceService {
	return &invoiceService{
		db:          database,
		cfg:         cfg,
		invoiceRepo: invoiceRepo,
		itemRepo:    itemRepo,
		ledgerRepo:  ledgerRepo,
		journalRepo: journalRepo,
		refRepo:     refRepo,
		allocator:   allocator,
		recalc:      recalc,
		log:         logger.WithComponent("invoice_service"),
	}
}

func (s *invoiceService) GetInvoiceDetails(ctx context.Context, caller *Caller, kind domain.InvoiceKind, id int64) (*domain.Invoice, error) {
	if !kind.Valid() {
		return nil, ErrInvalidInvoiceKind
	}
	if !caller.Can(ViewCap(kind)) {
		return nil, ErrAccessDenied
	}

	invoice, err := s.invoiceRepo.GetDetails(ctx, kind, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: invoice %d (%s)", ErrInvalidInvoice, id, kind)
		}
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, caller *Caller, kind domain.InvoiceKind) ([]*domain.Invoice, error) {
	if !kind.Valid() {
		return nil, ErrInvalidInvoiceKind
	}
	if !caller.Can(ViewCap(kind)) {
		return nil, ErrAccessDenied
	}
	return s.invoiceRepo.List(ctx, kind)
}

func (s *invoiceService) SetInvoiceDetails(ctx context.Context, caller *Caller, kind domain.InvoiceKind, id int64, in InvoiceInput) (int64, error) {
	if !kind.Valid() {
		return 0, ErrInvalidInvoiceKind
	}
	if !caller.Can(WriteCap(kind)) {
		return 0, ErrAccessDenied
	}

	var existing *domain.Invoice
	if id > 0 {
		var err error
		existing, err = s.invoiceRepo.GetByID(ctx, kind, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return 0, fmt.Errorf("%w: invoice %d (%s)", ErrInvalidInvoice, id, kind)
			}
			return 0, err
		}
		if existing.Locked {
			return 0, ErrLocked
		}

		// an update that omits the org or code keeps the current value
		// rather than wiping a required field
		if in.OrgID <= 0 {
			in.OrgID = existing.OrgID
		}
		if in.CodeInvoice == "" {
			in.CodeInvoice = existing.CodeInvoice
		}
	}

	if in.OrgID <= 0 {
		return 0, fmt.Errorf("%w: counterparty org is required", ErrInvalidInput)
	}
	if _, err := s.refRepo.GetOrg(ctx, in.OrgID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%w: unknown org %d", ErrInvalidInput, in.OrgID)
		}
		return 0, err
	}

	dateDue, err := parseDateField(in.DateDue)
	if err != nil {
		return 0, err
	}
	dateTrans, err := parseDateField(in.DateTrans)
	if err != nil {
		return 0, err
	}
	dateSent, err := parseDateField(in.DateSent)
	if err != nil {
		return 0, err
	}

	// invoice codes are unique per kind among live invoices
	if in.CodeInvoice != "" {
		inUse, err := s.invoiceRepo.CodeInUse(ctx, kind, in.CodeInvoice, id)
		if err != nil {
			return 0, err
		}
		if inUse {
			return 0, fmt.Errorf("%w: %q", ErrDuplicateInvoiceCode, in.CodeInvoice)
		}
	}

	destAccount := in.DestAccount
	if destAccount == 0 {
		destAccount = s.cfg.DefaultARAccount
		if kind == domain.KindPayable {
			destAccount = s.cfg.DefaultAPAccount
		}
	}

	creating := id == 0
	invoice := existing
	if creating {
		invoice = domain.NewInvoice(kind, in.OrgID, in.CodeInvoice)
	} else {
		invoice.OrgID = in.OrgID
		invoice.CodeInvoice = in.CodeInvoice
	}

	invoice.EmployeeID = in.EmployeeID
	invoice.DestAccount = destAccount
	invoice.CodeOrderNumber = in.CodeOrderNumber
	invoice.CodePONumber = in.CodePONumber
	invoice.DateDue = dateDue
	invoice.DateTrans = dateTrans
	invoice.DateSent = dateSent
	invoice.SentMethod = in.SentMethod
	invoice.Notes = in.Notes
	invoice.AutoTaxes = in.AutoTaxes

	// an empty code on create is filled by the allocator inside the
	// transaction; every other header problem is rejected before it opens
	if !creating || invoice.CodeInvoice != "" {
		if err := invoice.Validate(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	s.log.Debug().
		Str("kind", string(kind)).
		Int64("invoice_id", id).
		Bool("create", creating).
		Msg("applying invoice details")

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		invoiceRepo := s.invoiceRepo.WithTx(tx)
		journalRepo := s.journalRepo.WithTx(tx)

		if creating && invoice.CodeInvoice == "" {
			code, err := s.allocator.NextInvoiceCode(ctx, tx, kind)
			if err != nil {
				return fmt.Errorf("allocate invoice code: %w", err)
			}
			invoice.CodeInvoice = code
			if err := invoice.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
		}

		action := domain.JournalUpdated
		if creating {
			if err := invoiceRepo.Create(ctx, invoice); err != nil {
				return err
			}
			action = domain.JournalCreated
		} else {
			if err := invoiceRepo.Update(ctx, invoice); err != nil {
				return err
			}
		}
		id = invoice.ID

		entry := &domain.JournalEntry{
			InvoiceID:   invoice.ID,
			InvoiceKind: kind,
			Action:      action,
			Detail:      fmt.Sprintf("%s by %s", invoice.CodeInvoice, caller.Name()),
		}
		if err := journalRepo.Append(ctx, entry); err != nil {
			return err
		}

		// header fields feed tax applicability and posting accounts, so
		// the whole pipeline reruns after a header change
		return s.recalc.Pipeline(ctx, tx, kind, invoice.ID)
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

func (s *invoiceService) DeleteInvoice(ctx context.Context, caller *Caller, kind domain.InvoiceKind, id int64) error {
	if !kind.Valid() {
		return ErrInvalidInvoiceKind
	}
	if !caller.Can(WriteCap(kind)) {
		return ErrAccessDenied
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: invoice %d (%s)", ErrInvalidInvoice, id, kind)
		}
		return err
	}
	if invoice.Locked {
		return ErrLocked
	}

	// the delete lock: recorded payments make the invoice part of the
	// cash history, so it must be unwound item by item instead
	hasPayments, err := s.itemRepo.HasPayments(ctx, kind, id)
	if err != nil {
		return err
	}
	if hasPayments {
		return fmt.Errorf("%w: invoice %d has recorded payments", ErrLocked, id)
	}

	s.log.Debug().Str("kind", string(kind)).Int64("invoice_id", id).Msg("deleting invoice")

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		itemRepo := s.itemRepo.WithTx(tx)
		refRepo := s.refRepo.WithTx(tx)

		items, err := itemRepo.ListByTypes(ctx, kind, id, domain.ItemTypeTime)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := refRepo.ReleaseTimeGroups(ctx, item.ID); err != nil {
				return err
			}
		}

		if err := s.ledgerRepo.WithTx(tx).DeleteByInvoice(ctx, kind, id); err != nil {
			return err
		}
		if err := itemRepo.DeleteByInvoice(ctx, kind, id); err != nil {
			return err
		}
		if err := s.journalRepo.WithTx(tx).DeleteByInvoice(ctx, kind, id); err != nil {
			return err
		}
		return s.invoiceRepo.WithTx(tx).Delete(ctx, kind, id)
	})
}

func (s *invoiceService) LockInvoice(ctx context.Context, caller *Caller, kind domain.InvoiceKind, id int64) error {
	return s.setLocked(ctx, caller, kind, id, true)
}

func (s *invoiceService) UnlockInvoice(ctx context.Context, caller *Caller, kind domain.InvoiceKind, id int64) error {
	return s.setLocked(ctx, caller, kind, id, false)
}

func (s *invoiceService) setLocked(ctx context.Context, caller *Caller, kind domain.InvoiceKind, id int64, locked bool) error {
	if !kind.Valid() {
		return ErrInvalidInvoiceKind
	}
	if !caller.Can(WriteCap(kind)) {
		return ErrAccessDenied
	}

	invoice, err := s.invoiceRepo.GetByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: invoice %d (%s)", ErrInvalidInvoice, id, kind)
		}
		return err
	}
	if invoice.Locked == locked {
		return nil
	}

	action := domain.JournalLocked
	if !locked {
		action = domain.JournalUnlock
	}

	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.invoiceRepo.WithTx(tx).SetLocked(ctx, kind, id, locked); err != nil {
			return err
		}
		return s.journalRepo.WithTx(tx).Append(ctx, &domain.JournalEntry{
			InvoiceID:   id,
			InvoiceKind: kind,
			Action:      action,
			Detail:      fmt.Sprintf("%s by %s", invoice.CodeInvoice, caller.Name()),
		})
	})
}

// parseDateField coerces an optional YYYY-MM-DD field; empty clears it.
func parseDateField(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, value)
	}
	return &t, nil
}
