package app

import (
	"context"
	"fmt"
	"os/user"
	"syscall"

	"golang.org/x/term"

	"github.com/andy/tallybook/internal/config"
	"github.com/andy/tallybook/internal/crypto"
	"github.com/andy/tallybook/internal/db"
	"github.com/andy/tallybook/internal/domain"
	"github.com/andy/tallybook/internal/repository"
	"github.com/andy/tallybook/internal/service"
)

// App is the dependency injection container for all application components
type App struct {
	Config *config.Config
	DB     *db.DB

	// Repositories
	InvoiceRepo repository.InvoiceRepository
	ItemRepo    repository.InvoiceItemRepository
	LedgerRepo  repository.LedgerRepository
	RefRepo     repository.ReferenceRepository
	JournalRepo repository.JournalRepository
	ConfigRepo  repository.ConfigRepository

	// Services
	InvoiceService service.InvoiceService
	ItemService    service.ItemService
	RecalcService  service.RecalcService

	// Caller is the local operator identity. A single-user installation
	// grants every accounts capability.
	Caller *service.Caller
}

// New creates a new App instance, initializing all dependencies
// It handles:
// 1. Loading config
// 2. Getting encryption key from keyring
// 3. Opening database
// 4. Running migrations
// 5. Creating repositories and services
func New(ctx context.Context) (*App, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return NewWithConfig(ctx, cfg)
}

// NewWithConfig creates an App with a provided config (useful for testing)
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	// Get keyring for secure password storage
	keyring := crypto.NewKeyring()

	password, err := keyring.GetKey()
	if err != nil {
		// No key exists, prompt user to set one
		fmt.Println("Setting up database encryption for the first time...")
		password, err = promptForPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to set password: %w", err)
		}

		if err := keyring.SetKey(password); err != nil {
			return nil, fmt.Errorf("failed to store encryption key: %w", err)
		}
	}

	database, err := db.Open(cfg.Database.Path, password)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.RunMigrations(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return assemble(cfg, database), nil
}

// assemble wires repositories and services over an open database.
func assemble(cfg *config.Config, database *db.DB) *App {
	invoiceRepo := repository.NewInvoiceRepo(database)
	itemRepo := repository.NewItemRepo(database)
	ledgerRepo := repository.NewLedgerRepo(database)
	refRepo := repository.NewReferenceRepo(database)
	journalRepo := repository.NewJournalRepo(database)
	configRepo := repository.NewConfigRepo(database)

	recalcService := service.NewRecalcService(database, invoiceRepo, itemRepo, ledgerRepo, refRepo)
	allocator := service.NewCodeAllocator(cfg.Accounts, configRepo, invoiceRepo)
	invoiceService := service.NewInvoiceService(
		database, cfg.Accounts,
		invoiceRepo, itemRepo, ledgerRepo, journalRepo, refRepo,
		allocator, recalcService,
	)
	itemService := service.NewItemService(database, invoiceRepo, itemRepo, refRepo, recalcService)

	return &App{
		Config:         cfg,
		DB:             database,
		InvoiceRepo:    invoiceRepo,
		ItemRepo:       itemRepo,
		LedgerRepo:     ledgerRepo,
		RefRepo:        refRepo,
		JournalRepo:    journalRepo,
		ConfigRepo:     configRepo,
		InvoiceService: invoiceService,
		ItemService:    itemService,
		RecalcService:  recalcService,
		Caller:         localCaller(),
	}
}

// Close cleanly shuts down the application
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// SaveConfig saves the current configuration to disk
func (a *App) SaveConfig() error {
	return a.Config.Save(config.DefaultConfigPath())
}

// localCaller builds the operator identity from the OS user with full
// receivable and payable access.
func localCaller() *service.Caller {
	name := "operator"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	}
	return service.NewCaller(name,
		service.ViewCap(domain.KindReceivable),
		service.WriteCap(domain.KindReceivable),
		service.ViewCap(domain.KindPayable),
		service.WriteCap(domain.KindPayable),
	)
}

// promptForPassword prompts user for a new database password (first run)
// This should be called when keyring has no stored key
func promptForPassword() (string, error) {
	fmt.Println()
	fmt.Println("Your accounting data will be encrypted with a password.")
	fmt.Println("This password will be stored securely in your system keyring.")
	fmt.Println()
	fmt.Print("Enter a password for database encryption: ")

	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) == 0 {
		return "", fmt.Errorf("password cannot be empty")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}

	if string(password) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}

	return string(password), nil
}
