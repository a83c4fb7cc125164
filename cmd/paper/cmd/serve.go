package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/paper/api"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API with a ticking market",
	Long: `Start the HTTP API and tick the market every market.tick_interval.
An empty tick_interval serves without ticking; use POST /api/v1/tick instead.

Example:
  paper serve -c paper.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withEngine(ctx, "", func(rt *runtime) error {
		interval, err := rt.cfg.Market.Interval()
		if err != nil {
			return err
		}
		addr := rt.cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		ticking := make(chan error, 1)
		if interval > 0 {
			go func() { ticking <- rt.engine.Run(ctx, interval) }()
		} else {
			close(ticking)
		}

		srv := api.NewServer(rt.engine, api.Options{
			AllowedOrigins: rt.cfg.Server.AllowedOrigins,
			Logger:         rt.log,
		})
		fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s (tick every %s)\n", addr, interval)
		serveErr := srv.ListenAndServe(ctx, addr)

		// stop the ticker too if the listener failed on its own
		stop()
		if err := <-ticking; err != nil && !errors.Is(err, context.Canceled) {
			rt.log.Error("market loop", zap.Error(err))
		}
		return serveErr
	})
}
