package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andy/tallybook/internal/domain"
	"github.com/andy/tallybook/internal/service"
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage invoice line items",
	Long: `Add, edit and delete invoice line items.

Each add command also edits when --item is given. Saving any item
recomputes the invoice's taxes, totals and ledger postings.`,
}

var itemsAddStandardCmd = &cobra.Command{
	Use:   "add-standard [invoice_id]",
	Short: "Add or edit a free-form line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, invoiceID, itemID, err := itemTarget(cmd, args[0])
		if err != nil {
			return err
		}

		chartID, _ := cmd.Flags().GetInt64("chart")
		amount, _ := cmd.Flags().GetString("amount")
		desc, _ := cmd.Flags().GetString("desc")

		id, err := appInstance.ItemService.SetStandardItem(ctx, appInstance.Caller, kind, invoiceID, itemID,
			service.StandardItemInput{
				ChartID:     chartID,
				Amount:      amount,
				Description: desc,
			})
		if err != nil {
			return opError("failed to save item", err)
		}

		fmt.Printf("✓ Item #%d saved\n", id)
		return nil
	},
}

var itemsAddProductCmd = &cobra.Command{
	Use:   "add-product [invoice_id]",
	Short: "Add or edit a product line (amount = price x quantity)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, invoiceID, itemID, err := itemTarget(cmd, args[0])
		if err != nil {
			return err
		}

		productID, _ := cmd.Flags().GetInt64("product")
		price, _ := cmd.Flags().GetString("price")
		qty, _ := cmd.Flags().GetString("qty")
		units, _ := cmd.Flags().GetString("units")
		desc, _ := cmd.Flags().GetString("desc")

		id, err := appInstance.ItemService.SetProductItem(ctx, appInstance.Caller, kind, invoiceID, itemID,
			service.ProductItemInput{
				ProductID:   productID,
				Price:       price,
				Quantity:    qty,
				Units:       units,
				Description: desc,
			})
		if err != nil {
			return opError("failed to save item", err)
		}

		fmt.Printf("✓ Item #%d saved\n", id)
		return nil
	},
}

var itemsAddTimeCmd = &cobra.Command{
	Use:   "add-time [invoice_id]",
	Short: "Bill a time group (quantity comes from the group's hours)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, invoiceID, itemID, err := itemTarget(cmd, args[0])
		if err != nil {
			return err
		}

		productID, _ := cmd.Flags().GetInt64("product")
		groupID, _ := cmd.Flags().GetInt64("group")
		price, _ := cmd.Flags().GetString("price")
		desc, _ := cmd.Flags().GetString("desc")

		id, err := appInstance.ItemService.SetTimeItem(ctx, appInstance.Caller, kind, invoiceID, itemID,
			service.TimeItemInput{
				ProductID:   productID,
				TimeGroupID: groupID,
				Price:       price,
				Description: desc,
			})
		if err != nil {
			return opError("failed to save item", err)
		}

		fmt.Printf("✓ Item #%d saved\n", id)
		return nil
	},
}

var itemsAddTaxCmd = &cobra.Command{
	Use:   "add-tax [invoice_id]",
	Short: "Add or edit a tax line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, invoiceID, itemID, err := itemTarget(cmd, args[0])
		if err != nil {
			return err
		}

		taxID, _ := cmd.Flags().GetInt64("tax")
		manual, _ := cmd.Flags().GetBool("manual")
		amount, _ := cmd.Flags().GetString("amount")
		desc, _ := cmd.Flags().GetString("desc")

		id, err := appInstance.ItemService.SetTaxItem(ctx, appInstance.Caller, kind, invoiceID, itemID,
			service.TaxItemInput{
				TaxID:        taxID,
				Manual:       manual,
				ManualAmount: amount,
				Description:  desc,
			})
		if err != nil {
			return opError("failed to save item", err)
		}

		fmt.Printf("✓ Item #%d saved\n", id)
		return nil
	},
}

var itemsAddPaymentCmd = &cobra.Command{
	Use:   "add-payment [invoice_id]",
	Short: "Record a payment against an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kind, invoiceID, itemID, err := itemTarget(cmd, args[0])
		if err != nil {
			return err
		}

		chartID, _ := cmd.Flags().GetInt64("chart")
		date, _ := cmd.Flags().GetString("date")
		amount, _ := cmd.Flags().GetString("amount")
		source, _ := cmd.Flags().GetString("source")
		desc, _ := cmd.Flags().GetString("desc")

		id, err := appInstance.ItemService.SetPaymentItem(ctx, appInstance.Caller, kind, invoiceID, itemID,
			service.PaymentItemInput{
				ChartID:     chartID,
				DateTrans:   date,
				Amount:      amount,
				Source:      source,
				Description: desc,
			})
		if err != nil {
			return opError("failed to save payment", err)
		}

		fmt.Printf("✓ Payment #%d recorded\n", id)
		return nil
	},
}

var itemsDeleteCmd = &cobra.Command{
	Use:   "delete [item_id]",
	Short: "Delete an invoice line item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		itemID, err := parseID(args[0], "item")
		if err != nil {
			return err
		}

		if err := appInstance.ItemService.DeleteItem(ctx, appInstance.Caller, itemID); err != nil {
			return opError("failed to delete item", err)
		}

		fmt.Printf("✓ Item #%d deleted\n", itemID)
		return nil
	},
}

// itemTarget resolves the shared kind, invoice and optional --item flags.
func itemTarget(cmd *cobra.Command, invoiceArg string) (kind domain.InvoiceKind, invoiceID, itemID int64, err error) {
	kind, err = parseKind(cmd)
	if err != nil {
		return
	}
	invoiceID, err = parseID(invoiceArg, "invoice")
	if err != nil {
		return
	}
	itemID, _ = cmd.Flags().GetInt64("item")
	if itemID < 0 {
		err = fmt.Errorf("invalid item ID %d", itemID)
	}
	return
}

func init() {
	itemsCmd.PersistentFlags().String("kind", "ar", "Invoice kind: ar (receivable) or ap (payable)")
	itemsCmd.PersistentFlags().Int64("item", 0, "Existing item ID to edit instead of creating")

	itemsCmd.AddCommand(itemsAddStandardCmd)
	itemsCmd.AddCommand(itemsAddProductCmd)
	itemsCmd.AddCommand(itemsAddTimeCmd)
	itemsCmd.AddCommand(itemsAddTaxCmd)
	itemsCmd.AddCommand(itemsAddPaymentCmd)
	itemsCmd.AddCommand(itemsDeleteCmd)

	itemsAddStandardCmd.Flags().Int64("chart", 0, "Chart account ID (required)")
	itemsAddStandardCmd.Flags().String("amount", "", "Line amount")
	itemsAddStandardCmd.Flags().String("desc", "", "Description")
	itemsAddStandardCmd.MarkFlagRequired("chart")

	itemsAddProductCmd.Flags().Int64("product", 0, "Product ID (required)")
	itemsAddProductCmd.Flags().String("price", "", "Unit price")
	itemsAddProductCmd.Flags().String("qty", "1", "Quantity")
	itemsAddProductCmd.Flags().String("units", "", "Units label")
	itemsAddProductCmd.Flags().String("desc", "", "Description")
	itemsAddProductCmd.MarkFlagRequired("product")

	itemsAddTimeCmd.Flags().Int64("product", 0, "Billing product ID (required)")
	itemsAddTimeCmd.Flags().Int64("group", 0, "Time group ID (required)")
	itemsAddTimeCmd.Flags().String("price", "", "Hourly rate (defaults to the product's sell price)")
	itemsAddTimeCmd.Flags().String("desc", "", "Description")
	itemsAddTimeCmd.MarkFlagRequired("product")
	itemsAddTimeCmd.MarkFlagRequired("group")

	itemsAddTaxCmd.Flags().Int64("tax", 0, "Tax definition ID (required)")
	itemsAddTaxCmd.Flags().Bool("manual", false, "Set the amount manually instead of engine-calculated")
	itemsAddTaxCmd.Flags().String("amount", "", "Manual tax amount (with --manual)")
	itemsAddTaxCmd.Flags().String("desc", "", "Description")
	itemsAddTaxCmd.MarkFlagRequired("tax")

	itemsAddPaymentCmd.Flags().Int64("chart", 0, "Deposit/settlement chart account ID (required)")
	itemsAddPaymentCmd.Flags().String("date", "", "Payment date YYYY-MM-DD (required)")
	itemsAddPaymentCmd.Flags().String("amount", "", "Payment amount (required)")
	itemsAddPaymentCmd.Flags().String("source", "", "Payment source reference (cheque number, transfer id)")
	itemsAddPaymentCmd.Flags().String("desc", "", "Description")
	itemsAddPaymentCmd.MarkFlagRequired("chart")
	itemsAddPaymentCmd.MarkFlagRequired("date")
	itemsAddPaymentCmd.MarkFlagRequired("amount")
}
