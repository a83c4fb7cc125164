package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "paper",
	Short: "A simulated brokerage ledger",
	Long: `Paper runs a simulated brokerage: accounts with starting cash, a random-walk
price feed, market and limit orders, positions at average cost, and dated
deposits and withdrawals.

It provides tools for:
  - Serving the JSON API with a ticking market
  - Placing and cancelling orders from the command line
  - Inspecting accounts, positions, trades and cash entries
  - Reading the trade journal as Org-mode text
  - Generating and validating configuration files

State lives in the configured store (SQLite by default), so successive
commands see each other's work.`,
	SilenceUsage: true,
}

var (
	cfgFile string
	envFile string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults apply when empty")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file with PAPER_* overrides (default ./.env)")
}
