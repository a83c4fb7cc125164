package cmd

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfigFile(t *testing.T, dir, maxStep, journalYAML string) (cfgPath, envPath string) {
	t.Helper()
	cfgPath = filepath.Join(dir, "paper.yaml")
	envPath = filepath.Join(dir, "missing.env")
	yaml := fmt.Sprintf(`account:
  starting_cash: "100000.00"
market:
  max_step: %q
  tick_interval: ""
store:
  type: sqlite
  db_path: %s
journal:
%slog:
  level: error
`, maxStep, filepath.Join(dir, "paper.db"), journalYAML)
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0644))
	return cfgPath, envPath
}

func writeConfig(t *testing.T) (cfgPath, journalPath, envPath string) {
	t.Helper()
	dir := t.TempDir()
	journalPath = filepath.Join(dir, "journal.db")
	cfgPath, envPath = writeConfigFile(t, dir, "0.00", fmt.Sprintf("  type: sqlite\n  db_path: %s\n", journalPath))
	return cfgPath, journalPath, envPath
}

// tickPrices runs one tick and reads the closing price lines.
func tickPrices(t *testing.T, flags []string) map[string]decimal.Decimal {
	t.Helper()
	out, err := run(t, append([]string{"tick"}, flags...)...)
	require.NoError(t, err, out)
	prices := map[string]decimal.Decimal{}
	for _, line := range strings.Split(out, "\n") {
		f := strings.Fields(line)
		if len(f) != 2 {
			continue
		}
		p, err := decimal.NewFromString(f[1])
		require.NoError(t, err, line)
		prices[f[0]] = p
	}
	require.NotEmpty(t, prices, out)
	return prices
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "paper version "+version)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.yaml")

	out, err := run(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration")

	out, err = run(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "Starting cash: 100000.00")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("orders:\n  sell_overflow: maybe\n"), 0644))
	_, err = run(t, "config", "validate", "-f", bad)
	assert.ErrorContains(t, err, "validation failed")
}

func TestConfigShow(t *testing.T) {
	cfgPath, _, envPath := writeConfig(t)
	out, err := run(t, "config", "show", "-c", cfgPath, "--env", envPath)
	require.NoError(t, err)
	assert.Contains(t, out, "StartingCash")
	assert.Contains(t, out, "sqlite")
}

func TestAccountLifecycle(t *testing.T) {
	cfgPath, journalPath, envPath := writeConfig(t)
	flags := []string{"-c", cfgPath, "--env", envPath}
	cli := func(args ...string) string {
		t.Helper()
		out, err := run(t, append(args, flags...)...)
		require.NoError(t, err, out)
		return out
	}

	assert.Contains(t, cli("account", "open", "alice"), "Opened alice with 100000.00")

	_, err := run(t, append([]string{"account", "open", "alice"}, flags...)...)
	assert.ErrorContains(t, err, "already exists")

	assert.Contains(t, cli("order", "alice", "buy", "aapl", "10"), "FILLED")
	assert.Contains(t, cli("order", "alice", "BUY", "NVDA", "1000"), "CANCELLED (insufficient funds)")

	out := cli("account", "show", "alice")
	assert.Contains(t, out, "98100.00")
	assert.Contains(t, out, "Equity:  100000.00")

	out = cli("account", "orders", "alice")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "insufficient funds")

	out = cli("trades", "alice")
	assert.Contains(t, out, "* Trades: alice")
	assert.Contains(t, out, "** BUY 10 AAPL @ 190.00")

	today := time.Now().UTC().Format("2006-01-02")
	out = cli("journal", "day", today, "--db", journalPath)
	assert.Contains(t, out, "BUY 10 AAPL")

	out = cli("cash", "schedule", "alice", "deposit", "500", "--date", today)
	assert.Contains(t, out, "DEPOSIT 500.00 on "+today)
	assert.Contains(t, cli("account", "show", "alice"), "Cash:    98600.00")
	assert.Contains(t, cli("cash", "list", "alice"), "PROCESSED")

	assert.Contains(t, cli("tick"), "AAPL")

	assert.Contains(t, cli("reset", "alice"), "Reset alice to 100000.00")
	assert.Contains(t, cli("account", "show", "alice"), "Equity:  100000.00")
}

func TestUnknownOwner(t *testing.T) {
	cfgPath, _, envPath := writeConfig(t)
	_, err := run(t, "order", "ghost", "BUY", "AAPL", "1", "-c", cfgPath, "--env", envPath)
	assert.ErrorContains(t, err, "not found")

	_, err = run(t, "order", "ghost", "BUY", "AAPL", "ten", "-c", cfgPath, "--env", envPath)
	assert.ErrorContains(t, err, "qty")
}

func TestTickWalksDifferentlyEachRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath, envPath := writeConfigFile(t, dir, "0.50", "  type: none\n")
	flags := []string{"-c", cfgPath, "--env", envPath}

	p1 := tickPrices(t, flags)
	p2 := tickPrices(t, flags)
	p3 := tickPrices(t, flags)

	same := true
	for sym := range p1 {
		if !p2[sym].Sub(p1[sym]).Equal(p3[sym].Sub(p2[sym])) {
			same = false
		}
	}
	assert.False(t, same, "every run drew the same deltas")
}

func TestJournalSinksKeepHistoryAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	journalPath := filepath.Join(dir, "journal.db")
	cfgPath, envPath := writeConfigFile(t, dir, "0.00", fmt.Sprintf(
		"  type: csv,sqlite\n  trades_file: %s\n  equity_file: %s\n  db_path: %s\n",
		tradesPath, filepath.Join(dir, "equity.csv"), journalPath))
	flags := []string{"-c", cfgPath, "--env", envPath}
	cli := func(args ...string) string {
		t.Helper()
		out, err := run(t, append(args, flags...)...)
		require.NoError(t, err, out)
		return out
	}

	cli("account", "open", "alice")
	assert.Contains(t, cli("order", "alice", "BUY", "AAPL", "1"), "FILLED")
	assert.Contains(t, cli("order", "alice", "BUY", "MSFT", "1"), "FILLED")

	f, err := os.Open(tradesPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "trade_id", rows[0][0])
	assert.Equal(t, "AAPL", rows[1][3])
	assert.Equal(t, "MSFT", rows[2][3])

	today := time.Now().UTC().Format("2006-01-02")
	out := cli("journal", "day", today, "--db", journalPath)
	assert.Contains(t, out, "BUY 1 AAPL")
	assert.Contains(t, out, "BUY 1 MSFT")
}
