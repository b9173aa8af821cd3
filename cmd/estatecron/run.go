package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"estatecron/internal/app"
)

func newRunCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "run <job>",
		Short:     "Run one pass of a job now (" + strings.Join(app.JobNames(), ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: app.JobNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, f)
			if err != nil {
				return err
			}
			defer a.Stop(context.Background(), app.StopAppStop)

			res, err := a.RunJob(ctx, args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job=%s affected=%d took=%s\n", res.Name, res.Affected, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newMigrateCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the app applies migrations.
			a, err := openApp(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer a.Stop(context.Background(), app.StopAppStop)
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
