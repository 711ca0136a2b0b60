package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"postpilot/internal/ingest"
	logx "postpilot/pkg/logx"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import candidate posts from a .json or .csv file",
	Long: "Import externally generated posts as drafted queue entries. Items whose\n" +
		"content already exists in the queue are skipped, so re-importing the same\n" +
		"file is harmless.",
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	defer closeLogging()

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	imp := ingest.New(ingest.Options{
		Store: st,
		Log:   log.With(logx.String("comp", "ingest")),
	})
	rep, err := imp.ImportFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Imported:   %d\n", rep.Imported)
	fmt.Printf("Duplicates: %d\n", rep.Duplicates)
	if rep.Skipped > 0 {
		fmt.Printf("Skipped:    %d (empty content)\n", rep.Skipped)
	}
	return nil
}
