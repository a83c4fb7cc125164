package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rustyeddy/paper/broker"
	"github.com/rustyeddy/paper/market"
	"github.com/spf13/cobra"
)

var orderCmd = &cobra.Command{
	Use:   "order <owner> <BUY|SELL> <symbol> <qty>",
	Short: "Place a market or limit order",
	Long: `Place an order. Without --limit it is a market order and executes at the
current price. With --limit it waits until the price reaches the limit.

Examples:
  paper order alice BUY AAPL 10
  paper order alice SELL AAPL 5 --limit 200.00`,
	Args: cobra.ExactArgs(4),
	RunE: runOrder,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <owner> <order-id>",
	Short: "Cancel a pending order",
	Args:  cobra.ExactArgs(2),
	RunE:  runCancel,
}

var orderLimit string

func init() {
	rootCmd.AddCommand(orderCmd)
	rootCmd.AddCommand(cancelCmd)
	orderCmd.Flags().StringVar(&orderLimit, "limit", "", "limit price; makes this a LIMIT order")
}

func runOrder(cmd *cobra.Command, args []string) error {
	qty, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		return fmt.Errorf("qty: %w", err)
	}
	req := broker.OrderRequest{
		Owner:  args[0],
		Side:   broker.Side(strings.ToUpper(args[1])),
		Symbol: args[2],
		Type:   broker.Market,
		Qty:    qty,
	}
	if orderLimit != "" {
		p, err := market.ParseCash(orderLimit)
		if err != nil {
			return fmt.Errorf("limit: %w", err)
		}
		req.Type = broker.Limit
		req.LimitPrice = &p
	}

	return withEngine(cmd.Context(), req.Owner, func(rt *runtime) error {
		res, err := rt.engine.SubmitOrder(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s", res.OrderID, res.Status)
		if res.Reason != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s)", res.Reason)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
}

func runCancel(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), args[0], func(rt *runtime) error {
		o, err := rt.engine.CancelOrder(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", o.ID, o.Status)
		return nil
	})
}
