package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wardsync/internal/snapshot"
	"wardsync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "tools",
	Short:   "Export the local census cache as JSONL",
	Long: `Write every record in the local cache to a JSONL stream, one record
per line, oldest date first.

The stream is the backup and migration format: feed it to 'wardsync
import' on another machine or after switching cache backends.

  wardsync export -o backup.jsonl
  wardsync export | gzip > backup.jsonl.gz`,
	Run: runExport,
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "tools",
	Short:   "Import a JSONL export into the local census cache",
	Long: `Read a JSONL export and upsert each record into the local cache.

Records older than what the cache already holds are skipped, so importing
a stale backup never rolls a date backwards.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	output, _ := cmd.Flags().GetString("output")

	store, err := cfg.OpenLocal(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening local cache: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	w := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", output, err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	n, err := snapshot.Export(context.Background(), store, w)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
		os.Exit(1)
	}

	if output != "" {
		fmt.Printf("%s Exported %d record(s) to %s\n", ui.RenderPass("✓"), n, output)
	}
}

func runImport(cmd *cobra.Command, args []string) {
	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", args[0], err)
		os.Exit(1)
	}
	defer f.Close()

	store, err := cfg.OpenLocal(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening local cache: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	result, err := snapshot.Import(context.Background(), store, f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s Imported %d record(s)", ui.RenderPass("✓"), result.Imported)
	if result.Skipped > 0 {
		fmt.Printf(" (%d skipped, cache already newer)", result.Skipped)
	}
	fmt.Println()
}
