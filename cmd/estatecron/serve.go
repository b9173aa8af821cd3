package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"estatecron/internal/app"
	logx "estatecron/pkg/logx"
	"estatecron/pkg/systemd"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler until SIGINT/SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, f)
			if err != nil {
				return err
			}
			log := a.Logger()
			if err := a.Start(ctx); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return err
			}
			if _, err := systemd.Ready(); err != nil {
				log.Warn("sd_notify READY failed", logx.Err(err))
			}
			go systemd.Watchdog(ctx)

			reason := app.StopSIGTERM
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatalError
			}

			_, _ = systemd.Stopping()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			stopErr := a.Stop(stopCtx, reason)
			if err := a.Err(); err != nil && reason == app.StopFatalError {
				return err
			}
			return stopErr
		},
	}
}
