package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"postpilot/internal/eventbus"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Assign publish slots to all approved entries",
	Long: "Run the slot allocator over every approved entry, oldest first. Entries\n" +
		"that cannot receive a slot within the horizon are reported and stay\n" +
		"approved; the rest of the batch is scheduled normally.",
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
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
	res, err := svc.ScheduleApproved(cmd.Context())
	if err != nil {
		return err
	}

	if len(res.Granted) == 0 && len(res.Failed) == 0 {
		fmt.Println("Nothing to schedule.")
		return nil
	}
	for _, g := range res.Granted {
		fmt.Printf("  %s -> %s\n", g.EntryID, g.At.Format("2006-01-02 15:04"))
	}
	for _, f := range res.Failed {
		fmt.Printf("  %s: %v\n", f.EntryID, f.Err)
	}
	fmt.Printf("Scheduled %d, failed %d.\n", len(res.Granted), len(res.Failed))
	return nil
}
