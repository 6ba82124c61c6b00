package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"perch/internal/broadcast"
	"perch/internal/enrich"
	"perch/internal/ledger"
	"perch/internal/logging"
	"perch/internal/notifications"
	"perch/internal/platform"
	"perch/internal/retry"
)

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <broadcast-id>",
		Short: "Run motion enrichment for one ended broadcast",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			b, err := store.ByRemoteID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("broadcast %s: %w", args[0], err)
			}
			if b.State != broadcast.StateEnded {
				return fmt.Errorf("broadcast %s is %s; only ended broadcasts can be enriched", args[0], b.State)
			}

			client := platform.NewHTTPClient(cfg, logger)
			exec := retry.NewExecutor(cfg.RetryDelay(), logger, retry.WithMaxAttempts(cfg.Retry.MaxAttempts))
			notifier := notifications.NewService(cfg)

			pipeline := enrich.NewPipeline(cfg, store, client, exec, notifier, nil, logger, nil, nil)
			if err := pipeline.Enrich(cmd.Context(), b); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch b.MotionCount {
			case 0:
				fmt.Fprintf(out, "Enriched %s: no motion detected.\n", b.RemoteID)
			case 1:
				fmt.Fprintf(out, "Enriched %s: 1 motion event.\n", b.RemoteID)
			default:
				fmt.Fprintf(out, "Enriched %s: %d motion events.\n", b.RemoteID, b.MotionCount)
			}
			return nil
		},
	}
}
