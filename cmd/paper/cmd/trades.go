package cmd

import (
	"fmt"

	"github.com/rustyeddy/paper/journal"
	"github.com/spf13/cobra"
)

var tradesCmd = &cobra.Command{
	Use:   "trades <owner>",
	Short: "Print an owner's trades as Org-mode text",
	Long: `Print every fill of the account, oldest first, as Org-mode headings with a
PROPERTIES drawer, ready to paste into a trading journal.

Example:
  paper trades alice > alice.org`,
	Args: cobra.ExactArgs(1),
	RunE: runTrades,
}

func init() {
	rootCmd.AddCommand(tradesCmd)
}

func runTrades(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), args[0], func(rt *runtime) error {
		trades, err := rt.engine.GetTrades(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		recs := make([]journal.TradeRecord, 0, len(trades))
		for _, t := range trades {
			recs = append(recs, journal.FromTrade(t))
		}
		fmt.Fprint(cmd.OutOrStdout(), journal.FormatTradesOrg(args[0], recs))
		return nil
	})
}
