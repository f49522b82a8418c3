package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldreach/outreach/engine"
)

func newRunCmd() *cobra.Command {
	var targetsPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one outreach batch and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			targets, err := loadTargets(targetsPath)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return fmt.Errorf("no targets in %s", targetsPath)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := a.engine.RunBatch(ctx, targets)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&targetsPath, "targets", "", "Roster file: .csv, .yaml, or one contact per line")
	_ = cmd.MarkFlagRequired("targets")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var targetsPath string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run batches continuously until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.logger.Info("watch started", "targets", targetsPath)
			return a.engine.RunContinuous(ctx, func(ctx context.Context) ([]engine.Target, error) {
				return loadTargets(targetsPath)
			})
		},
	}
	cmd.Flags().StringVar(&targetsPath, "targets", "", "Roster file, re-read every cycle")
	_ = cmd.MarkFlagRequired("targets")
	return cmd
}
