package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return a.db.Migrate(ctx)
			})
		},
	}
}

func trialCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trial-check",
		Short: "Run one trial monitor cycle: send expiry warnings and expire ended trials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res, err := a.monitor.RunCycle(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "skipped=%t warned=%d expired=%d failures=%d\n",
					res.Skipped, res.Warned, res.Expired, res.Failures)
				return err
			})
		},
	}
}

func webhooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhooks",
		Short: "Webhook maintenance commands",
	}

	retry := &cobra.Command{
		Use:   "retry",
		Short: "Deliver every webhook retry that is due now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				n, err := a.retryWorker.RunOnce(ctx)
				a.log.Info("Webhook retries processed", zap.Int("count", n))
				fmt.Fprintf(cmd.OutOrStdout(), "processed=%d\n", n)
				return err
			})
		},
	}
	cmd.AddCommand(retry)
	return cmd
}
