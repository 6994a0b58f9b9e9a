package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wardsync/internal/config"
	"wardsync/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "tools",
	Short:   "Manage wardsync configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default configuration file",
	Long: `Write a commented wardsync.yaml with every setting at its default.

The file documents the accepted values inline. Any setting can also be
overridden by a WARDSYNC_* environment variable; storage.dsn becomes
WARDSYNC_STORAGE_DSN. Refuses to overwrite an existing file.`,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")

		if err := config.WriteDefault(output); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), output)
		fmt.Println("Edit it, or override single values with WARDSYNC_* environment variables.")
	},
}

func init() {
	configInitCmd.Flags().StringP("output", "o", "wardsync.yaml", "where to write the file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
