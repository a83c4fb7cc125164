package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/market"
	"github.com/spf13/cobra"
)

var cashCmd = &cobra.Command{
	Use:   "cash",
	Short: "Schedule and apply deposits and withdrawals",
	Long: `Manage dated cash movements. Entries stay PENDING until their date; every
command that names an owner settles the entries due today first.

Subcommands:
  schedule - Record a deposit or withdrawal for a date
  list     - List every cash entry of an owner
  apply    - Settle entries due by a date

Examples:
  paper cash schedule alice DEPOSIT 500.00 --date 2026-06-01
  paper cash apply alice --as-of 2026-06-01`,
}

var cashScheduleCmd = &cobra.Command{
	Use:   "schedule <owner> <DEPOSIT|WITHDRAW> <amount>",
	Short: "Schedule a deposit or withdrawal",
	Args:  cobra.ExactArgs(3),
	RunE:  runCashSchedule,
}

var cashListCmd = &cobra.Command{
	Use:   "list <owner>",
	Short: "List cash entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runCashList,
}

var cashApplyCmd = &cobra.Command{
	Use:   "apply <owner>",
	Short: "Settle entries due by a date",
	Args:  cobra.ExactArgs(1),
	RunE:  runCashApply,
}

var (
	cashDate string
	cashAsOf string
)

func init() {
	rootCmd.AddCommand(cashCmd)
	cashCmd.AddCommand(cashScheduleCmd)
	cashCmd.AddCommand(cashListCmd)
	cashCmd.AddCommand(cashApplyCmd)

	cashScheduleCmd.Flags().StringVar(&cashDate, "date", "", "date YYYY-MM-DD (default today)")
	cashApplyCmd.Flags().StringVar(&cashAsOf, "as-of", "", "date YYYY-MM-DD (default today)")
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return broker.Day(time.Now()), nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

func runCashSchedule(cmd *cobra.Command, args []string) error {
	amount, err := market.ParseCash(args[2])
	if err != nil {
		return err
	}
	on, err := parseDay(cashDate)
	if err != nil {
		return err
	}
	typ := broker.CashType(strings.ToUpper(args[1]))

	return withEngine(cmd.Context(), args[0], func(rt *runtime) error {
		c, err := rt.engine.ScheduleCashTransaction(cmd.Context(), args[0], typ, amount, on)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s on %s\n", c.ID, c.Type, market.Format(c.Amount), c.ScheduledFor.Format("2006-01-02"))
		return nil
	})
}

func printCash(cmd *cobra.Command, cs []broker.CashTransaction) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tDATE\tTYPE\tAMOUNT\tSTATUS\n")
	for _, c := range cs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.ScheduledFor.Format("2006-01-02"), c.Type, market.Format(c.Amount), c.Status)
	}
	return w.Flush()
}

func runCashList(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), args[0], func(rt *runtime) error {
		cs, err := rt.engine.CashTransactions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printCash(cmd, cs)
	})
}

func runCashApply(cmd *cobra.Command, args []string) error {
	asOf, err := parseDay(cashAsOf)
	if err != nil {
		return err
	}
	return withEngine(cmd.Context(), args[0], func(rt *runtime) error {
		if err := rt.engine.ApplyDue(cmd.Context(), args[0], asOf); err != nil {
			return err
		}
		cs, err := rt.engine.CashTransactions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printCash(cmd, cs)
	})
}
