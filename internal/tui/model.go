package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/andy/tallybook/internal/app"
	"github.com/andy/tallybook/internal/domain"
)

type viewState int

const (
	listView viewState = iota
	detailView
)

type invoicesLoadedMsg struct {
	invoices []*domain.Invoice
}

type detailLoadedMsg struct {
	invoice  *domain.Invoice
	items    []*domain.InvoiceItem
	taxes    []*domain.InvoiceItem
	payments []*domain.InvoiceItem
}

type errMsg struct {
	err error
}

// Model is the invoice browser: a per-kind invoice table with a detail
// view showing items, taxes, payments and totals.
type Model struct {
	app   *app.App
	kind  domain.InvoiceKind
	state viewState

	table    table.Model
	invoices []*domain.Invoice
	detail   *detailLoadedMsg

	width  int
	height int
	err    error
}

// New creates the invoice browser starting on receivables.
func New(a *app.App) Model {
	columns := []table.Column{
		{Title: "ID", Width: 5},
		{Title: "Code", Width: 12},
		{Title: "Org", Width: 24},
		{Title: "Total", Width: 12},
		{Title: "Balance", Width: 12},
		{Title: "Lock", Width: 6},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	return Model{
		app:   a,
		kind:  domain.KindReceivable,
		state: listView,
		table: t,
	}
}

func (m Model) Init() tea.Cmd {
	return m.loadInvoices()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(5, msg.Height-8))
		return m, nil

	case invoicesLoadedMsg:
		m.invoices = msg.invoices
		m.err = nil
		m.table.SetRows(invoiceRows(msg.invoices))
		return m, nil

	case detailLoadedMsg:
		detail := msg
		m.detail = &detail
		m.state = detailView
		m.err = nil
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.state == detailView {
				m.state = listView
				return m, nil
			}
			return m, tea.Quit

		case "tab":
			if m.state == listView {
				m.kind = otherKind(m.kind)
				return m, m.loadInvoices()
			}

		case "r":
			if m.state == listView {
				return m, m.loadInvoices()
			}

		case "enter":
			if m.state == listView {
				if id := m.selectedID(); id > 0 {
					return m, m.loadDetail(id)
				}
			}

		case "esc":
			if m.state == detailView {
				m.state = listView
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	switch m.state {
	case detailView:
		return m.detailViewRender()
	default:
		return m.listViewRender()
	}
}

func (m Model) listViewRender() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("tallybook"))
	b.WriteString("  ")

	arTab, apTab := tabStyle, tabStyle
	if m.kind == domain.KindReceivable {
		arTab = activeTabStyle
	} else {
		apTab = activeTabStyle
	}
	b.WriteString(arTab.Render("Receivable"))
	b.WriteString(apTab.Render("Payable"))
	b.WriteString("\n\n")

	b.WriteString(tableStyle.Render(m.table.View()))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("enter: details • tab: switch kind • r: refresh • q: quit"))
	return b.String()
}

func (m Model) detailViewRender() string {
	if m.detail == nil || m.detail.invoice == nil {
		return "loading..."
	}
	inv := m.detail.invoice

	var b strings.Builder
	header := fmt.Sprintf("%s %s", strings.ToUpper(string(inv.Kind)), inv.CodeInvoice)
	b.WriteString(titleStyle.Render(header))
	if inv.Locked {
		b.WriteString("  ")
		b.WriteString(lockedStyle.Render("LOCKED"))
	}
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Org") + inv.OrgLabel + "\n")
	if inv.EmployeeLabel != "" {
		b.WriteString(labelStyle.Render("Employee") + inv.EmployeeLabel + "\n")
	}
	if inv.DestAccountLabel != "" {
		b.WriteString(labelStyle.Render("Account") + inv.DestAccountLabel + "\n")
	}
	if inv.DateTrans != nil {
		b.WriteString(labelStyle.Render("Date") + inv.DateTrans.Format("2006-01-02") + "\n")
	}
	if inv.DateDue != nil {
		b.WriteString(labelStyle.Render("Due") + inv.DateDue.Format("2006-01-02") + "\n")
	}
	b.WriteString("\n")

	renderSection(&b, "Items", m.detail.items)
	renderSection(&b, "Taxes", m.detail.taxes)
	renderSection(&b, "Payments", m.detail.payments)

	b.WriteString(totalStyle.Render(fmt.Sprintf("Subtotal %12s", domain.FormatMoney(inv.AmountSubtotal))) + "\n")
	b.WriteString(totalStyle.Render(fmt.Sprintf("Tax      %12s", domain.FormatMoney(inv.AmountTax))) + "\n")
	b.WriteString(totalStyle.Render(fmt.Sprintf("Total    %12s", domain.FormatMoney(inv.AmountTotal))) + "\n")
	b.WriteString(totalStyle.Render(fmt.Sprintf("Paid     %12s", domain.FormatMoney(inv.AmountPaid))) + "\n")
	b.WriteString(totalStyle.Render(fmt.Sprintf("Balance  %12s", domain.FormatMoney(inv.Balance()))) + "\n")

	b.WriteString(helpStyle.Render("esc: back • q: back"))
	return b.String()
}

func renderSection(b *strings.Builder, title string, items []*domain.InvoiceItem) {
	if len(items) == 0 {
		return
	}
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(title) + "\n")
	for _, it := range items {
		label := it.Description
		if label == "" {
			label = it.CustomLabel
		}
		if len(label) > 40 {
			label = label[:37] + "..."
		}
		b.WriteString(fmt.Sprintf("  %-10s %-40s %12s\n",
			it.Type, label, domain.FormatMoney(it.Amount)))
	}
	b.WriteString("\n")
}

func (m Model) selectedID() int64 {
	row := m.table.SelectedRow()
	if row == nil {
		return 0
	}
	id, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (m Model) loadInvoices() tea.Cmd {
	kind := m.kind
	return func() tea.Msg {
		ctx := context.Background()
		invoices, err := m.app.InvoiceService.ListInvoices(ctx, m.app.Caller, kind)
		if err != nil {
			return errMsg{err}
		}
		return invoicesLoadedMsg{invoices}
	}
}

func (m Model) loadDetail(id int64) tea.Cmd {
	kind := m.kind
	return func() tea.Msg {
		ctx := context.Background()
		caller := m.app.Caller

		invoice, err := m.app.InvoiceService.GetInvoiceDetails(ctx, caller, kind, id)
		if err != nil {
			return errMsg{err}
		}
		items, err := m.app.ItemService.GetInvoiceItems(ctx, caller, kind, id)
		if err != nil {
			return errMsg{err}
		}
		taxes, err := m.app.ItemService.GetInvoiceTaxes(ctx, caller, kind, id)
		if err != nil {
			return errMsg{err}
		}
		payments, err := m.app.ItemService.GetInvoicePayments(ctx, caller, kind, id)
		if err != nil {
			return errMsg{err}
		}
		return detailLoadedMsg{invoice: invoice, items: items, taxes: taxes, payments: payments}
	}
}

func invoiceRows(invoices []*domain.Invoice) []table.Row {
	rows := make([]table.Row, 0, len(invoices))
	for _, inv := range invoices {
		lock := ""
		if inv.Locked {
			lock = "yes"
		}
		org := inv.OrgLabel
		if org == "" {
			org = fmt.Sprintf("#%d", inv.OrgID)
		}
		rows = append(rows, table.Row{
			strconv.FormatInt(inv.ID, 10),
			inv.CodeInvoice,
			org,
			domain.FormatMoney(inv.AmountTotal),
			domain.FormatMoney(inv.Balance()),
			lock,
		})
	}
	return rows
}

func otherKind(kind domain.InvoiceKind) domain.InvoiceKind {
	if kind == domain.KindReceivable {
		return domain.KindPayable
	}
	return domain.KindReceivable
}

// Run starts the TUI event loop and blocks until the user quits.
func Run(a *app.App) error {
	p := tea.NewProgram(New(a), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
