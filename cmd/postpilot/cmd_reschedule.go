package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"postpilot/internal/eventbus"
	"postpilot/internal/queue"
)

var (
	reschedAt      string
	reschedMinutes int
	reschedHours   int
	reschedDays    int
)

var rescheduleCmd = &cobra.Command{
	Use:   "reschedule <entry-id>",
	Short: "Move a scheduled or failed entry to a new time",
	Long: "Set a new publish time for an entry. Exactly one of --at, --minutes,\n" +
		"--hours or --days must be given. The new time is an operator override:\n" +
		"it is not re-validated against the window, spacing or quota.",
	Args: cobra.ExactArgs(1),
	RunE: runReschedule,
}

func init() {
	rescheduleCmd.Flags().StringVar(&reschedAt, "at", "", `absolute local time, "YYYY-MM-DD HH:MM"`)
	rescheduleCmd.Flags().IntVar(&reschedMinutes, "minutes", 0, "offset from now in minutes")
	rescheduleCmd.Flags().IntVar(&reschedHours, "hours", 0, "offset from now in hours")
	rescheduleCmd.Flags().IntVar(&reschedDays, "days", 0, "offset from now in days")
	rootCmd.AddCommand(rescheduleCmd)
}

func runReschedule(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	defer closeLogging()

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	svc, err := newScheduler(st, eventbus.New())
	if err != nil {
		return err
	}
	// Only flags the operator actually passed make it into the spec, so
	// an explicit --minutes 0 ("publish now") is a valid single choice.
	spec := queue.TimeSpec{At: reschedAt}
	if cmd.Flags().Changed("minutes") {
		spec.Minutes = &reschedMinutes
	}
	if cmd.Flags().Changed("hours") {
		spec.Hours = &reschedHours
	}
	if cmd.Flags().Changed("days") {
		spec.Days = &reschedDays
	}
	e, err := svc.Reschedule(cmd.Context(), args[0], spec)
	if err != nil {
		return err
	}
	fmt.Printf("Entry %s rescheduled to %s.\n", e.ID, e.ScheduledAt.Format("2006-01-02 15:04"))
	return nil
}
