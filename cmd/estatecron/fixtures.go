package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"estatecron/internal/app"
	"estatecron/internal/fixtures"
)

func newFixturesCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Seed marketplace rows for demos and testing",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "load <file.yaml>",
		Short: "Upsert properties, periods, reservations and promotions from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fh, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer fh.Close()
			doc, err := fixtures.Parse(fh)
			if err != nil {
				return err
			}
			return withApp(cmd, f, func(ctx context.Context, a *app.App) error {
				c, err := fixtures.Load(ctx, a.Store(), doc, time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "loaded", c)
				return nil
			})
		},
	})
	return cmd
}
