package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andy/tallybook/internal/domain"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Manage reference data",
	Long:  `Manage the chart of accounts, taxes, orgs, staff, products and time groups.`,
}

var setupAddChartCmd = &cobra.Command{
	Use:   "add-chart [code] [description]",
	Short: "Add a chart of accounts entry",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		chart := &domain.ChartAccount{Code: args[0], Description: args[1]}
		if err := appInstance.RefRepo.CreateChart(ctx, chart); err != nil {
			return fmt.Errorf("failed to add chart account: %w", err)
		}

		fmt.Printf("✓ Chart account #%d: %s\n", chart.ID, chart.Label())
		return nil
	},
}

var setupChartsCmd = &cobra.Command{
	Use:   "charts",
	Short: "List the chart of accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		charts, err := appInstance.RefRepo.ListCharts(ctx)
		if err != nil {
			return fmt.Errorf("failed to list chart accounts: %w", err)
		}

		if len(charts) == 0 {
			fmt.Println("No chart accounts found")
			return nil
		}

		fmt.Printf("%-5s %-10s %s\n", "ID", "Code", "Description")
		fmt.Println(strings.Repeat("-", 60))
		for _, c := range charts {
			fmt.Printf("%-5d %-10s %s\n", c.ID, c.Code, c.Description)
		}
		return nil
	},
}

var setupAddTaxCmd = &cobra.Command{
	Use:   "add-tax [name]",
	Short: "Add a tax definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rateStr, _ := cmd.Flags().GetString("rate")
		chartID, _ := cmd.Flags().GetInt64("chart")
		desc, _ := cmd.Flags().GetString("desc")

		rate, err := domain.ParseQuantity(rateStr)
		if err != nil {
			return fmt.Errorf("invalid rate: %w", err)
		}

		tax := &domain.TaxDefinition{
			Name:        args[0],
			Rate:        rate,
			ChartID:     chartID,
			Description: desc,
		}
		if err := appInstance.RefRepo.CreateTax(ctx, tax); err != nil {
			return fmt.Errorf("failed to add tax: %w", err)
		}

		fmt.Printf("✓ Tax #%d: %s at %s%%\n", tax.ID, tax.Name, tax.Rate.String())
		return nil
	},
}

var setupTaxesCmd = &cobra.Command{
	Use:   "taxes",
	Short: "List tax definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		taxes, err := appInstance.RefRepo.ListTaxes(ctx)
		if err != nil {
			return fmt.Errorf("failed to list taxes: %w", err)
		}

		if len(taxes) == 0 {
			fmt.Println("No taxes found")
			return nil
		}

		fmt.Printf("%-5s %-20s %-8s %-6s %s\n", "ID", "Name", "Rate", "Chart", "Description")
		fmt.Println(strings.Repeat("-", 70))
		for _, t := range taxes {
			fmt.Printf("%-5d %-20s %6s%% %-6d %s\n",
				t.ID, truncate(t.Name, 20), t.Rate.String(), t.ChartID, t.Description)
		}
		return nil
	},
}

var setupLinkTaxCmd = &cobra.Command{
	Use:   "link-tax [org_id] [tax_id]",
	Short: "Make a tax applicable to an org's invoices",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		orgID, err := parseID(args[0], "org")
		if err != nil {
			return err
		}
		taxID, err := parseID(args[1], "tax")
		if err != nil {
			return err
		}

		if err := appInstance.RefRepo.LinkOrgTax(ctx, orgID, taxID); err != nil {
			return fmt.Errorf("failed to link tax: %w", err)
		}

		fmt.Printf("✓ Tax #%d applies to org #%d\n", taxID, orgID)
		return nil
	},
}

var setupAddOrgCmd = &cobra.Command{
	Use:   "add-org [name]",
	Short: "Add a customer or vendor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		kindStr, _ := cmd.Flags().GetString("type")
		code, _ := cmd.Flags().GetString("code")

		kind := domain.OrgKind(kindStr)
		if kind != domain.OrgCustomer && kind != domain.OrgVendor {
			return fmt.Errorf("invalid org type %q (want customer or vendor)", kindStr)
		}

		org := &domain.Org{Kind: kind, Name: args[0], Code: code}
		if err := appInstance.RefRepo.CreateOrg(ctx, org); err != nil {
			return fmt.Errorf("failed to add org: %w", err)
		}

		fmt.Printf("✓ Org #%d: %s (%s)\n", org.ID, org.Name, org.Kind)
		return nil
	},
}

var setupAddStaffCmd = &cobra.Command{
	Use:   "add-staff [name]",
	Short: "Add a staff member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		staff := &domain.Staff{Name: args[0]}
		if err := appInstance.RefRepo.CreateStaff(ctx, staff); err != nil {
			return fmt.Errorf("failed to add staff: %w", err)
		}

		fmt.Printf("✓ Staff #%d: %s\n", staff.ID, staff.Name)
		return nil
	},
}

var setupAddProductCmd = &cobra.Command{
	Use:   "add-product [name]",
	Short: "Add a sellable product or service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		priceStr, _ := cmd.Flags().GetString("price")
		chartID, _ := cmd.Flags().GetInt64("chart")

		price, err := domain.ParseMoney(priceStr)
		if err != nil {
			return fmt.Errorf("invalid price: %w", err)
		}

		product := &domain.Product{Name: args[0], PriceSell: price, ChartID: chartID}
		if err := appInstance.RefRepo.CreateProduct(ctx, product); err != nil {
			return fmt.Errorf("failed to add product: %w", err)
		}

		fmt.Printf("✓ Product #%d: %s at %s\n", product.ID, product.Name, domain.FormatMoney(product.PriceSell))
		return nil
	},
}

var setupAddTimeGroupCmd = &cobra.Command{
	Use:   "add-timegroup [name]",
	Short: "Add a billable block of tracked time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		orgID, _ := cmd.Flags().GetInt64("org")
		project, _ := cmd.Flags().GetString("project")
		hoursStr, _ := cmd.Flags().GetString("hours")

		hours, err := domain.ParseQuantity(hoursStr)
		if err != nil {
			return fmt.Errorf("invalid hours: %w", err)
		}

		group := &domain.TimeGroup{
			OrgID:       orgID,
			Name:        args[0],
			ProjectCode: project,
			Hours:       hours,
		}
		if err := appInstance.RefRepo.CreateTimeGroup(ctx, group); err != nil {
			return fmt.Errorf("failed to add time group: %w", err)
		}

		fmt.Printf("✓ Time group #%d: %s (%s hours)\n", group.ID, group.Label(), group.Hours.String())
		return nil
	},
}

func init() {
	setupCmd.AddCommand(setupAddChartCmd)
	setupCmd.AddCommand(setupChartsCmd)
	setupCmd.AddCommand(setupAddTaxCmd)
	setupCmd.AddCommand(setupTaxesCmd)
	setupCmd.AddCommand(setupLinkTaxCmd)
	setupCmd.AddCommand(setupAddOrgCmd)
	setupCmd.AddCommand(setupAddStaffCmd)
	setupCmd.AddCommand(setupAddProductCmd)
	setupCmd.AddCommand(setupAddTimeGroupCmd)

	setupAddTaxCmd.Flags().String("rate", "", "Tax rate in percent, e.g. 15 (required)")
	setupAddTaxCmd.Flags().Int64("chart", 0, "Liability chart account ID (required)")
	setupAddTaxCmd.Flags().String("desc", "", "Description")
	setupAddTaxCmd.MarkFlagRequired("rate")
	setupAddTaxCmd.MarkFlagRequired("chart")

	setupAddOrgCmd.Flags().String("type", "customer", "Org type: customer or vendor")
	setupAddOrgCmd.Flags().String("code", "", "Short org code")

	setupAddProductCmd.Flags().String("price", "0", "Sell price")
	setupAddProductCmd.Flags().Int64("chart", 0, "Revenue/expense chart account ID (required)")
	setupAddProductCmd.MarkFlagRequired("chart")

	setupAddTimeGroupCmd.Flags().Int64("org", 0, "Customer org ID (required)")
	setupAddTimeGroupCmd.Flags().String("project", "", "Project code")
	setupAddTimeGroupCmd.Flags().String("hours", "", "Total hours in the group (required)")
	setupAddTimeGroupCmd.MarkFlagRequired("org")
	setupAddTimeGroupCmd.MarkFlagRequired("hours")
}
