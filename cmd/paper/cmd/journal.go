package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/paper/journal"
	"github.com/rustyeddy/paper/market"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite trade journal",
	Long: `Query trade and equity records written by the SQLite journal.

Subcommands:
  trade  - Get details of a specific trade by ID
  day    - List trades executed on a specific day
  equity - List an owner's equity snapshots for a day

Examples:
  paper journal trade <trade-id>
  paper journal day 2026-05-01
  paper journal equity alice 2026-05-01`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades executed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalEquityCmd = &cobra.Command{
	Use:   "equity <owner> <YYYY-MM-DD>",
	Short: "List equity snapshots for a day",
	Args:  cobra.ExactArgs(2),
	RunE:  runJournalEquity,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalEquityCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default journal.db_path)")
}

func openSQLiteJournal() (*journal.SQLiteJournal, error) {
	path := journalDBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Journal.DBPath
	}
	if path == "" {
		return nil, fmt.Errorf("no journal database: pass --db or set journal.db_path")
	}
	j, err := journal.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

// dayBounds returns [start, end) of the UTC calendar day.
func dayBounds(day string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 0, 1), nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openSQLiteJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, err := openSQLiteJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dayBounds(args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	recs, err := j.ListTradesBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), journal.FormatTradesOrg(args[0], recs))
	return nil
}

func runJournalEquity(cmd *cobra.Command, args []string) error {
	j, err := openSQLiteJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dayBounds(args[1])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	snaps, err := j.ListEquity(args[0], start, end)
	if err != nil {
		return fmt.Errorf("query equity: %w", err)
	}
	for _, s := range snaps {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  cash %s  holdings %s  equity %s\n",
			s.Time.UTC().Format(time.RFC3339), market.Format(s.Cash), market.Format(s.Holdings), market.Format(s.Equity))
	}
	return nil
}
