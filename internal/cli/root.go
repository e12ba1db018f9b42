package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/tallybook/internal/app"
	"github.com/andy/tallybook/internal/domain"
)

var appInstance *app.App

var rootCmd = &cobra.Command{
	Use:   "tallybook",
	Short: "Double-entry invoicing and bookkeeping from the terminal",
	Long: `Tallybook manages accounts-receivable and accounts-payable invoices
with automatic tax calculation and general-ledger posting.

By default, running tallybook without arguments launches the interactive TUI.
Use subcommands for CLI operations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return launchTUI(cmd, args)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetApp sets the app instance for commands to use
func SetApp(a *app.App) {
	appInstance = a
}

func init() {
	rootCmd.AddCommand(invoicesCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(tuiCmd)
}

// parseKind reads the --kind flag shared by invoice and item commands.
func parseKind(cmd *cobra.Command) (domain.InvoiceKind, error) {
	value, _ := cmd.Flags().GetString("kind")
	kind := domain.InvoiceKind(value)
	if !kind.Valid() {
		return "", fmt.Errorf("invalid kind %q (want ar or ap)", value)
	}
	return kind, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
