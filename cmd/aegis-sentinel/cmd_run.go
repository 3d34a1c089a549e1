package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ghalamif/AegisSentinel/pkg/sentinel"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the engine with the configured collectors, agents and sinks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := newLogger()
			cfg, err := sentinel.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := sentinel.NewRuntime(ctx, cfg, sentinel.WithLogger(log))
			if err != nil {
				return err
			}
			for _, err := range rt.Skipped() {
				log.Warn("agent not started", "error", err)
			}
			log.Info("engine running", "agents", len(rt.Agents()), "metrics_addr", cfg.Metrics.Addr, "approvals_addr", cfg.Approvals.Addr)

			if err := rt.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("engine stopped")
			return nil
		},
	}
}
