package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"estatecron/internal/app"
	"estatecron/internal/domain"
)

func newExtensionCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extension",
		Short: "Manage elite reservation extension requests",
	}
	cmd.AddCommand(newExtensionCreateCmd(f))
	cmd.AddCommand(newExtensionPayCmd(f))
	cmd.AddCommand(newExtensionReviewCmd(f))
	cmd.AddCommand(newExtensionShowCmd(f))
	return cmd
}

func newExtensionCreateCmd(f *rootFlags) *cobra.Command {
	var (
		reservationID string
		days          int
		note          string
	)
	c := &cobra.Command{
		Use:   "create",
		Short: "Request an extension for a confirmed reservation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app.App) error {
				req, err := a.Extensions().Create(ctx, reservationID, days, note)
				if err != nil {
					return err
				}
				printRequests(cmd.OutOrStdout(), req)
				return nil
			})
		},
	}
	c.Flags().StringVar(&reservationID, "reservation", "", "reservation id (required)")
	c.Flags().IntVar(&days, "days", 0, "days to extend by, 1-30 (required)")
	c.Flags().StringVar(&note, "note", "", "note from the owner")
	_ = c.MarkFlagRequired("reservation")
	_ = c.MarkFlagRequired("days")
	return c
}

func newExtensionPayCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pay <request-id>",
		Short: "Mark a pending request as paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app.App) error {
				req, err := a.Extensions().Pay(ctx, args[0])
				if err != nil {
					return err
				}
				printRequests(cmd.OutOrStdout(), req)
				return nil
			})
		},
	}
}

func newExtensionReviewCmd(f *rootFlags) *cobra.Command {
	var (
		decision string
		note     string
	)
	c := &cobra.Command{
		Use:   "review <request-id>",
		Short: "Approve or reject a paid request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, f, func(ctx context.Context, a *app.App) error {
				req, err := a.Extensions().Review(ctx, args[0], domain.Decision(decision), note)
				if err != nil {
					return err
				}
				printRequests(cmd.OutOrStdout(), req)
				return nil
			})
		},
	}
	c.Flags().StringVar(&decision, "decision", "", "approved or rejected (required)")
	c.Flags().StringVar(&note, "note", "", "admin note")
	_ = c.MarkFlagRequired("decision")
	return c
}

func newExtensionShowCmd(f *rootFlags) *cobra.Command {
	var reservationID string
	c := &cobra.Command{
		Use:   "show [request-id]",
		Short: "Show one request, or every request of a reservation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (reservationID == "") {
				return fmt.Errorf("pass either a request id or --reservation")
			}
			return withApp(cmd, f, func(ctx context.Context, a *app.App) error {
				if reservationID != "" {
					reqs, err := a.Extensions().ListForReservation(ctx, reservationID)
					if err != nil {
						return err
					}
					printRequests(cmd.OutOrStdout(), reqs...)
					return nil
				}
				req, err := a.Extensions().Get(ctx, args[0])
				if err != nil {
					return err
				}
				printRequests(cmd.OutOrStdout(), req)
				return nil
			})
		},
	}
	c.Flags().StringVar(&reservationID, "reservation", "", "list requests of this reservation")
	return c
}

func withApp(cmd *cobra.Command, f *rootFlags, fn func(context.Context, *app.App) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, f)
	if err != nil {
		return err
	}
	defer a.Stop(context.Background(), app.StopAppStop)
	return fn(ctx, a)
}

func printRequests(w io.Writer, reqs ...domain.ExtensionRequest) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRESERVATION\tDAYS\tSTATUS\tPRICE\tVAT\tTOTAL\tCREATED")
	for _, r := range reqs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.ReservationID, r.RequestedDays, r.Status,
			r.PriceAmount.StringFixed(2), r.VATAmount.StringFixed(2), r.TotalAmount.StringFixed(2),
			r.CreatedAt.UTC().Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}
