package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/andy/tallybook/internal/config"
	"github.com/andy/tallybook/internal/domain"
	"github.com/andy/tallybook/internal/repository"
)

// Config counter names for the invoice code allocator, one per kind.
const (
	counterARInvoiceNum = "ACCOUNTS_AR_INVOICENUM"
	counterAPInvoiceNum = "ACCOUNTS_AP_INVOICENUM"
)

// CodeAllocator hands out unique invoice codes. The contract: read the
// current counter value, probe it for collision against existing invoice
// codes of the same kind, increment and retry until free, then persist
// the next counter value. Allocation runs inside the caller's transaction
// so a rolled-back create does not burn the counter.
type CodeAllocator interface {
	NextInvoiceCode(ctx context.Context, tx *sql.Tx, kind domain.InvoiceKind) (string, error)
}

type codeAllocator struct {
	cfg         config.AccountsConfig
	configRepo  repository.ConfigRepository
	invoiceRepo repository.InvoiceRepository
}

// NewCodeAllocator creates the config-table backed allocator.
func NewCodeAllocator(cfg config.AccountsConfig, configRepo repository.ConfigRepository, invoiceRepo repository.InvoiceRepository) CodeAllocator {
	return &codeAllocator{
		cfg:         cfg,
		configRepo:  configRepo,
		invoiceRepo: invoiceRepo,
	}
}

func (a *codeAllocator) NextInvoiceCode(ctx context.Context, tx *sql.Tx, kind domain.InvoiceKind) (string, error) {
	configRepo := a.configRepo
	invoiceRepo := a.invoiceRepo
	if tx != nil {
		configRepo = configRepo.WithTx(tx)
		invoiceRepo = invoiceRepo.WithTx(tx)
	}

	counterName := counterARInvoiceNum
	prefix := a.cfg.ARCodePrefix
	seed := a.cfg.ARCodeStart
	if kind == domain.KindPayable {
		counterName = counterAPInvoiceNum
		prefix = a.cfg.APCodePrefix
		seed = a.cfg.APCodeStart
	}

	stored, err := configRepo.Get(ctx, counterName)
	if err != nil {
		return "", err
	}

	counter := seed
	if stored != "" {
		counter, err = strconv.ParseInt(stored, 10, 64)
		if err != nil {
			return "", fmt.Errorf("corrupt counter %s=%q: %w", counterName, stored, err)
		}
	}

	// probe until an unused code is found; users may have taken codes
	// ahead of the counter by supplying their own
	var code string
	for {
		code = fmt.Sprintf("%s-%d", prefix, counter)
		inUse, err := invoiceRepo.CodeInUse(ctx, kind, code, 0)
		if err != nil {
			return "", err
		}
		if !inUse {
			break
		}
		counter++
	}

	if err := configRepo.Set(ctx, counterName, strconv.FormatInt(counter+1, 10)); err != nil {
		return "", err
	}

	return code, nil
}
