package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bridalos/bridalos/libs/config"
	"github.com/bridalos/bridalos/libs/runtime"
)

func main() {
	_ = config.LoadDotEnv()
	ctx, stop := runtime.SignalContext()
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "reminder-service",
		Short:         "Appointment and payment reminder sweeps",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd(), sweepCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the hourly appointment sweep and the daily payment sweep",
		Long: `serve fires the appointment reminder sweep at the top of every hour and the
payment reminder sweep daily at PAYMENT_REMINDER_HOUR_UTC (default 09:00 UTC).
With REDIS_ADDR set, replicas share a lock so each sweep runs once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one sweep and exit (for an external cron)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "appointments",
			Short: "Send reminders for appointments 24-25h ahead",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return sweepOnce(cmd.Context(), jobAppointments)
			},
		},
		&cobra.Command{
			Use:   "payments",
			Short: "Send reminders for Pending payments due in PAYMENT_REMINDER_DAYS_AHEAD days",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return sweepOnce(cmd.Context(), jobPayments)
			},
		},
	)
	return cmd
}
