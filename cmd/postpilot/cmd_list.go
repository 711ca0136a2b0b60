package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"postpilot/internal/eventbus"
	"postpilot/internal/queue"
)

var (
	listStatus string
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue entries",
	RunE:  runList,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	RunE:  runStats,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (drafted|approved|scheduled|posted|skipped|failed)")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "max entries to show (0 = all)")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	defer closeLogging()

	status := queue.Status(listStatus)
	if listStatus != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", listStatus)
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	svc, err := newScheduler(st, eventbus.New())
	if err != nil {
		return err
	}
	items, err := svc.List(cmd.Context(), status, listLimit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSCHEDULED\tTYPE\tLEN\tCONTENT")
	for _, it := range items {
		when := "-"
		if it.Entry.ScheduledAt != nil {
			when = it.Entry.ScheduledAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			it.Entry.ID, it.Entry.Status, when, it.Type, it.Length, queue.Preview(it.Content, 48))
	}
	return w.Flush()
}

func runStats(cmd *cobra.Command, args []string) error {
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
	stats, err := svc.Stats(cmd.Context())
	if err != nil {
		return err
	}

	for _, s := range queue.AllStatuses {
		fmt.Printf("  %-10s %d\n", s, stats.ByStatus[s])
	}
	fmt.Printf("Posted today: %d\n", stats.PostedToday)
	if stats.NextScheduled != nil {
		fmt.Printf("Next publish: %s\n", stats.NextScheduled.Format("2006-01-02 15:04"))
	}
	return nil
}
