package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"postpilot/internal/eventbus"
)

var approveCmd = &cobra.Command{
	Use:   "approve <entry-id>",
	Short: "Approve a drafted entry for scheduling",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var skipCmd = &cobra.Command{
	Use:   "skip <entry-id>",
	Short: "Skip a drafted or approved entry (terminal)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkip,
}

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(skipCmd)
}

func runApprove(cmd *cobra.Command, args []string) error {
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
	e, err := svc.Approve(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Entry %s approved.\n", e.ID)
	return nil
}

func runSkip(cmd *cobra.Command, args []string) error {
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
	e, err := svc.Skip(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Entry %s skipped.\n", e.ID)
	return nil
}
