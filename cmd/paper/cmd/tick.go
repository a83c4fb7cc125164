package cmd

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/paper/market"
	"github.com/rustyeddy/paper/sim"
	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Advance the market and sweep pending limit orders",
	Long: `Move every instrument price one random step and fill any pending limit
orders the new prices make eligible.

Example:
  paper tick -n 10`,
	Args: cobra.NoArgs,
	RunE: runTick,
}

var tickCount int

func init() {
	rootCmd.AddCommand(tickCmd)
	tickCmd.Flags().IntVarP(&tickCount, "count", "n", 1, "number of ticks")
}

func runTick(cmd *cobra.Command, args []string) error {
	if tickCount < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	out := cmd.OutOrStdout()
	return withEngine(cmd.Context(), "", func(rt *runtime) error {
		for i := 0; i < tickCount; i++ {
			rep, err := rt.engine.Tick(cmd.Context())
			if err != nil && !errors.Is(err, sim.ErrPartialSweep) {
				return fmt.Errorf("tick %d: %w", i+1, err)
			}
			for _, msg := range rep.Errors {
				fmt.Fprintf(out, "error %s\n", msg)
			}
			for _, t := range rep.Filled {
				fmt.Fprintf(out, "filled %s %s %d %s @ %s\n", t.Owner, t.Side, t.Qty, t.Symbol, market.Format(t.Price))
			}
			for _, o := range rep.Cancelled {
				fmt.Fprintf(out, "cancelled %s %s %s: %s\n", o.Owner, o.ID, o.Symbol, o.Reason)
			}
			if i == tickCount-1 {
				for _, sym := range rep.Quotes.Symbols() {
					fmt.Fprintf(out, "%-6s %10s\n", sym, market.Format(rep.Quotes[sym]))
				}
			}
		}
		return nil
	})
}
