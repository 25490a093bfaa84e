package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kon-rad/wuhistory/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest and query service",
	Long: `Serve opens the history store, upgrades it when WUH_AUTO_UPGRADE is set,
tails WUH_FEED_PATH when configured and serves the HTTP API on WUH_PORT until
interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return app.New(cfg, logger, version).Run(ctx)
	},
}
