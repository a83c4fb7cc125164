package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/rustyeddy/paper/market"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Open and inspect accounts",
	Long: `Manage accounts.

Subcommands:
  open   - Open an account with the configured starting cash
  show   - Cash, holdings marked to market, and equity
  orders - Every order of the account

Examples:
  paper account open alice
  paper account show alice`,
}

var accountOpenCmd = &cobra.Command{
	Use:   "open <owner>",
	Short: "Open an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountOpen,
}

var accountShowCmd = &cobra.Command{
	Use:   "show <owner>",
	Short: "Show cash, holdings and equity",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountShow,
}

var accountOrdersCmd = &cobra.Command{
	Use:   "orders <owner>",
	Short: "List orders",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountOrders,
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountOpenCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountCmd.AddCommand(accountOrdersCmd)
}

func runAccountOpen(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), "", func(rt *runtime) error {
		a, err := rt.engine.OpenAccount(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Opened %s with %s\n", a.Owner, market.Format(a.Cash))
		return nil
	})
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), args[0], func(rt *runtime) error {
		v, err := rt.engine.Valuation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintf(w, "SYMBOL\tQTY\tAVG\tPRICE\tVALUE\tP/L\t\n")
		for _, h := range v.Holdings {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t\n", h.Symbol, h.Qty,
				market.Format(h.AvgPrice), market.Format(h.Price),
				market.Format(h.MarketValue), market.Format(h.UnrealizedPL))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nCash:    %s\nHoldings: %s\nEquity:  %s\n",
			market.Format(v.Cash), market.Format(v.Market), market.Format(v.Equity))
		return nil
	})
}

func runAccountOrders(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), args[0], func(rt *runtime) error {
		orders, err := rt.engine.GetOrders(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "ID\tSIDE\tTYPE\tSYMBOL\tQTY\tLIMIT\tSTATUS\tREASON\n")
		for _, o := range orders {
			limit := "-"
			if o.LimitPrice != nil {
				limit = market.Format(*o.LimitPrice)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				o.ID, o.Side, o.Type, o.Symbol, o.Qty, limit, o.Status, o.Reason)
		}
		return w.Flush()
	})
}
