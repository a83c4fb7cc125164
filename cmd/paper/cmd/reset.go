package cmd

import (
	"fmt"

	"github.com/rustyeddy/paper/market"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <owner>",
	Short: "Wipe an account's orders, positions and trades",
	Long: `Delete every order, position and trade of the account and restore the
configured starting cash. Scheduled cash entries are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), "", func(rt *runtime) error {
		a, err := rt.engine.Reset(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Reset %s to %s\n", a.Owner, market.Format(a.Cash))
		return nil
	})
}
