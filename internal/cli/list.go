package cli

import (
	"fmt"
	"io"

	"github.com/ahsanhabibakik/rupomoti/internal/domain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const timeLayout = "2006-01-02 15:04"

var amountPrinter = message.NewPrinter(language.English)

func ordersCmd(open Opener) *cobra.Command {
	c := &cobra.Command{
		Use:   "orders",
		Short: "Inspect orders",
	}
	c.AddCommand(ordersListCmd(open))
	return c
}

func ordersListCmd(open Opener) *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := domain.OrderFilter{
				Status:      domain.OrderStatus(status),
				PageRequest: domain.PageRequest{Page: 1, Limit: limit},
			}
			if status != "" && !f.Status.Valid() {
				return fmt.Errorf("unknown order status %q", status)
			}

			env, cleanup, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			page, err := env.Orders.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			renderOrders(cmd.OutOrStdout(), page, env.Currency)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only orders in this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	return cmd
}

func couponsCmd(open Opener) *cobra.Command {
	c := &cobra.Command{
		Use:   "coupons",
		Short: "Inspect coupons",
	}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List coupons and their usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, cleanup, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			page, err := env.Coupons.List(cmd.Context(), domain.PageRequest{Page: 1, Limit: domain.MaxPageLimit})
			if err != nil {
				return err
			}
			renderCoupons(cmd.OutOrStdout(), page, env.Currency)
			return nil
		},
	})
	return c
}

func renderOrders(w io.Writer, page domain.Page[domain.Order], currency string) {
	if len(page.Items) == 0 {
		_, _ = fmt.Fprintln(w, "(no orders)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Number", "Status", "Payment", "Customer", "Phone", "Total", "Created"})
	for _, o := range page.Items {
		t.AppendRow(table.Row{
			o.Number,
			o.Status,
			fmt.Sprintf("%s/%s", o.PaymentMethod, o.PaymentStatus),
			o.Shipping.Name,
			o.Shipping.Phone,
			formatAmount(o.Total, currency),
			o.CreatedAt.Format(timeLayout),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Showing", fmt.Sprintf("%d of %d", len(page.Items), page.Total)})
	t.Render()
}

func renderCoupons(w io.Writer, page domain.Page[domain.Coupon], currency string) {
	if len(page.Items) == 0 {
		_, _ = fmt.Fprintln(w, "(no coupons)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Code", "Type", "Value", "Min order", "Used", "Active", "Expires"})
	for _, c := range page.Items {
		value := formatAmount(c.Value, currency)
		if c.Type == domain.DiscountPercentage {
			value = fmt.Sprintf("%d%%", c.Value)
		}
		used := fmt.Sprintf("%d", c.UsedCount)
		if c.UsageLimit > 0 {
			used = fmt.Sprintf("%d/%d", c.UsedCount, c.UsageLimit)
		}
		expires := "-"
		if c.ExpiresAt != nil {
			expires = c.ExpiresAt.Format(timeLayout)
		}
		t.AppendRow(table.Row{c.Code, c.Type, value, formatAmount(c.MinOrderAmount, currency), used, c.Active, expires})
	}
	t.Render()
}

// formatAmount renders minor units with thousands separators, e.g.
// 123456 BDT as "1,234.56 BDT".
func formatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return amountPrinter.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency)
}
