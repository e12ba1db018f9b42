package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andy/tallybook/internal/domain"
	"github.com/andy/tallybook/internal/service"
)

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Manage invoices",
	Long:  `Create, list, update, lock and delete AR and AP invoices.`,
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, err := parseKind(cmd)
		if err != nil {
			return err
		}

		invoices, err := appInstance.InvoiceService.ListInvoices(ctx, appInstance.Caller, kind)
		if err != nil {
			return opError("failed to list invoices", err)
		}

		if len(invoices) == 0 {
			fmt.Println("No invoices found")
			return nil
		}

		fmt.Printf("%-5s %-12s %-25s %-12s %-12s %-12s %-6s\n",
			"ID", "Code", "Org", "Total", "Paid", "Balance", "Lock")
		fmt.Println(strings.Repeat("-", 90))

		for _, inv := range invoices {
			lock := ""
			if inv.Locked {
				lock = "locked"
			}
			fmt.Printf("%-5d %-12s %-25s %-12s %-12s %-12s %-6s\n",
				inv.ID,
				inv.CodeInvoice,
				truncate(orgLabel(ctx, inv), 25),
				domain.FormatMoney(inv.AmountTotal),
				domain.FormatMoney(inv.AmountPaid),
				domain.FormatMoney(inv.Balance()),
				lock,
			)
		}

		fmt.Printf("\nTotal: %d invoice(s)\n", len(invoices))
		return nil
	},
}

var invoicesShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show invoice details with items, taxes, payments and postings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, err := parseKind(cmd)
		if err != nil {
			return err
		}
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		caller := appInstance.Caller
		inv, err := appInstance.InvoiceService.GetInvoiceDetails(ctx, caller, kind, id)
		if err != nil {
			return opError("failed to get invoice", err)
		}

		fmt.Println(strings.Repeat("=", 80))
		fmt.Printf("Invoice: %s (%s)\n", inv.CodeInvoice, strings.ToUpper(string(kind)))
		fmt.Println(strings.Repeat("=", 80))
		fmt.Printf("Org: %s\n", inv.OrgLabel)
		if inv.EmployeeLabel != "" {
			fmt.Printf("Employee: %s\n", inv.EmployeeLabel)
		}
		if inv.DestAccountLabel != "" {
			fmt.Printf("Account: %s\n", inv.DestAccountLabel)
		}
		if inv.DateTrans != nil {
			fmt.Printf("Date: %s\n", inv.DateTrans.Format("2006-01-02"))
		}
		if inv.DateDue != nil {
			fmt.Printf("Due: %s\n", inv.DateDue.Format("2006-01-02"))
		}
		if inv.Locked {
			fmt.Println("Status: LOCKED")
		}
		if inv.Notes != "" {
			fmt.Printf("Notes: %s\n", inv.Notes)
		}
		fmt.Println()

		items, err := appInstance.ItemService.GetInvoiceItems(ctx, caller, kind, id)
		if err != nil {
			return opError("failed to load items", err)
		}
		printItems("Items", items)

		taxes, err := appInstance.ItemService.GetInvoiceTaxes(ctx, caller, kind, id)
		if err != nil {
			return opError("failed to load taxes", err)
		}
		printItems("Taxes", taxes)

		payments, err := appInstance.ItemService.GetInvoicePayments(ctx, caller, kind, id)
		if err != nil {
			return opError("failed to load payments", err)
		}
		printItems("Payments", payments)

		fmt.Printf("Subtotal: %s\n", domain.FormatMoney(inv.AmountSubtotal))
		fmt.Printf("Tax:      %s\n", domain.FormatMoney(inv.AmountTax))
		fmt.Printf("Total:    %s\n", domain.FormatMoney(inv.AmountTotal))
		fmt.Printf("Paid:     %s\n", domain.FormatMoney(inv.AmountPaid))
		fmt.Printf("Balance:  %s\n", domain.FormatMoney(inv.Balance()))

		showLedger, _ := cmd.Flags().GetBool("ledger")
		if showLedger {
			entries, err := appInstance.LedgerRepo.ListByInvoice(ctx, kind, id)
			if err != nil {
				return opError("failed to load ledger", err)
			}
			fmt.Println()
			fmt.Println("Ledger postings:")
			fmt.Println(strings.Repeat("-", 80))
			for _, e := range entries {
				fmt.Printf("%-10s %-40s %12s\n",
					e.Direction, truncate(e.ChartLabel, 40), domain.FormatMoney(e.Amount))
			}
		}

		fmt.Println(strings.Repeat("=", 80))
		return nil
	},
}

var invoicesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new invoice",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setInvoice(cmd, 0)
	},
}

var invoicesUpdateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Update an invoice header",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}
		return setInvoice(cmd, id)
	},
}

var invoicesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete an invoice and everything derived from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, err := parseKind(cmd)
		if err != nil {
			return err
		}
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		if err := appInstance.InvoiceService.DeleteInvoice(ctx, appInstance.Caller, kind, id); err != nil {
			return opError("failed to delete invoice", err)
		}

		fmt.Printf("✓ Invoice #%d deleted\n", id)
		return nil
	},
}

var invoicesLockCmd = &cobra.Command{
	Use:   "lock [id]",
	Short: "Lock an invoice against further changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, err := parseKind(cmd)
		if err != nil {
			return err
		}
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		if err := appInstance.InvoiceService.LockInvoice(ctx, appInstance.Caller, kind, id); err != nil {
			return opError("failed to lock invoice", err)
		}

		fmt.Printf("✓ Invoice #%d locked\n", id)
		return nil
	},
}

var invoicesUnlockCmd = &cobra.Command{
	Use:   "unlock [id]",
	Short: "Unlock a locked invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, err := parseKind(cmd)
		if err != nil {
			return err
		}
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		if err := appInstance.InvoiceService.UnlockInvoice(ctx, appInstance.Caller, kind, id); err != nil {
			return opError("failed to unlock invoice", err)
		}

		fmt.Printf("✓ Invoice #%d unlocked\n", id)
		return nil
	},
}

var invoicesRecalcCmd = &cobra.Command{
	Use:   "recalc [id]",
	Short: "Re-run tax, total and ledger recalculation for an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, err := parseKind(cmd)
		if err != nil {
			return err
		}
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		if err := appInstance.RecalcService.Recalculate(ctx, kind, id); err != nil {
			return opError("failed to recalculate", err)
		}

		fmt.Printf("✓ Invoice #%d recalculated\n", id)
		return nil
	},
}

var invoicesHistoryCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "Show the audit trail of an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, err := parseKind(cmd)
		if err != nil {
			return err
		}
		id, err := parseID(args[0], "invoice")
		if err != nil {
			return err
		}

		entries, err := appInstance.JournalRepo.ListByInvoice(ctx, kind, id)
		if err != nil {
			return opError("failed to load history", err)
		}

		if len(entries) == 0 {
			fmt.Println("No history recorded")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s  %-10s %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.Detail)
		}
		return nil
	},
}

// setInvoice collects header flags and runs the create-or-update
// operation; id 0 means create.
func setInvoice(cmd *cobra.Command, id int64) error {
	ctx := context.Background()

	kind, err := parseKind(cmd)
	if err != nil {
		return err
	}

	orgID, _ := cmd.Flags().GetInt64("org")
	employeeID, _ := cmd.Flags().GetInt64("employee")
	account, _ := cmd.Flags().GetInt64("account")
	code, _ := cmd.Flags().GetString("code")
	order, _ := cmd.Flags().GetString("order")
	po, _ := cmd.Flags().GetString("po")
	due, _ := cmd.Flags().GetString("due")
	date, _ := cmd.Flags().GetString("date")
	sent, _ := cmd.Flags().GetString("sent")
	sentMethod, _ := cmd.Flags().GetString("sent-method")
	notes, _ := cmd.Flags().GetString("notes")
	manualTaxes, _ := cmd.Flags().GetBool("manual-taxes")

	in := service.InvoiceInput{
		OrgID:           orgID,
		EmployeeID:      employeeID,
		DestAccount:     account,
		CodeInvoice:     code,
		CodeOrderNumber: order,
		CodePONumber:    po,
		DateDue:         due,
		DateTrans:       date,
		DateSent:        sent,
		SentMethod:      sentMethod,
		Notes:           notes,
		AutoTaxes:       !manualTaxes,
	}

	resultID, err := appInstance.InvoiceService.SetInvoiceDetails(ctx, appInstance.Caller, kind, id, in)
	if err != nil {
		return opError("failed to save invoice", err)
	}

	inv, _ := appInstance.InvoiceService.GetInvoiceDetails(ctx, appInstance.Caller, kind, resultID)
	if id == 0 {
		fmt.Printf("✓ Invoice created: #%d", resultID)
	} else {
		fmt.Printf("✓ Invoice updated: #%d", resultID)
	}
	if inv != nil {
		fmt.Printf(" %s", inv.CodeInvoice)
	}
	fmt.Println()
	return nil
}

func printItems(title string, items []*domain.InvoiceItem) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("%s:\n", title)
	fmt.Println(strings.Repeat("-", 80))
	for _, it := range items {
		label := it.Description
		if label == "" {
			label = it.CustomLabel
		}
		qty := ""
		if !it.Quantity.IsZero() {
			qty = fmt.Sprintf("%s %s @ %s", it.Quantity.String(), it.Units, domain.FormatMoney(it.Price))
		}
		fmt.Printf("%-5d %-10s %-35s %-20s %12s\n",
			it.ID, it.Type, truncate(label, 35), qty, domain.FormatMoney(it.Amount))
	}
	fmt.Println(strings.Repeat("-", 80))
	fmt.Println()
}

func orgLabel(ctx context.Context, inv *domain.Invoice) string {
	if inv.OrgLabel != "" {
		return inv.OrgLabel
	}
	org, err := appInstance.RefRepo.GetOrg(ctx, inv.OrgID)
	if err != nil {
		return fmt.Sprintf("Org #%d", inv.OrgID)
	}
	return org.Name
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s ID %q", what, s)
	}
	return id, nil
}

// opError prefixes the failure and surfaces the stable error code so
// scripts can match on it.
func opError(msg string, err error) error {
	if code := service.Code(err); code != "" {
		return fmt.Errorf("%s [%s]: %w", msg, code, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func init() {
	invoicesCmd.PersistentFlags().String("kind", "ar", "Invoice kind: ar (receivable) or ap (payable)")

	invoicesCmd.AddCommand(invoicesListCmd)
	invoicesCmd.AddCommand(invoicesShowCmd)
	invoicesCmd.AddCommand(invoicesCreateCmd)
	invoicesCmd.AddCommand(invoicesUpdateCmd)
	invoicesCmd.AddCommand(invoicesDeleteCmd)
	invoicesCmd.AddCommand(invoicesLockCmd)
	invoicesCmd.AddCommand(invoicesUnlockCmd)
	invoicesCmd.AddCommand(invoicesRecalcCmd)
	invoicesCmd.AddCommand(invoicesHistoryCmd)

	invoicesShowCmd.Flags().Bool("ledger", false, "Include general-ledger postings")

	for _, c := range []*cobra.Command{invoicesCreateCmd, invoicesUpdateCmd} {
		c.Flags().Int64("org", 0, "Counterparty org ID (required)")
		c.Flags().Int64("employee", 0, "Employee ID")
		c.Flags().Int64("account", 0, "Destination chart account ID (default from config)")
		c.Flags().String("code", "", "Invoice code (allocated automatically when empty on create)")
		c.Flags().String("order", "", "Order number")
		c.Flags().String("po", "", "Purchase order number")
		c.Flags().String("due", "", "Due date (YYYY-MM-DD)")
		c.Flags().String("date", "", "Transaction date (YYYY-MM-DD)")
		c.Flags().String("sent", "", "Sent date (YYYY-MM-DD)")
		c.Flags().String("sent-method", "", "How the invoice was sent")
		c.Flags().String("notes", "", "Free-form notes")
		c.Flags().Bool("manual-taxes", false, "Disable automatic tax calculation")
	}
	invoicesCreateCmd.MarkFlagRequired("org")
}
