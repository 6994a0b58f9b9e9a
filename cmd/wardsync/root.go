package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"wardsync/internal/config"
	"wardsync/internal/ui"
)

var (
	flagConfig  string
	flagLogFile string
	flagYes     bool
	flagNoColor bool

	// cfg and logger are set by the root pre-run before any command runs.
	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wardsync",
	Short: "Offline-first census records for hospital wards",
	Long: `wardsync keeps a hospital ward's daily census records synchronized
between a local cache and a shared remote store.

Every client works against its local copy first, so the ward desk keeps
functioning through network outages. Writes carry the version they are
overwriting; the remote store rejects stale saves and the newest write
wins. Live subscriptions stream other clients' changes back in.

Census data lives in one record per calendar date: bed occupancy,
patient movements, shift staffing, and the handoff summary.`,
	Version: "0.3.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor {
			ui.DisableColor()
		}
		logger = newLogger()

		loaded, err := config.Load(flagConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"config file (default wardsync.yaml, then $HOME/.config/wardsync/)")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "",
		"append diagnostics to this rotated file instead of stderr")
	rootCmd.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false,
		"assume yes for every confirmation prompt")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false,
		"disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "census", Title: "Census commands:"},
		&cobra.Group{ID: "sync", Title: "Sync & display commands:"},
		&cobra.Group{ID: "tools", Title: "Tooling commands:"},
	)
}

// newLogger builds the process logger. With --log-file, diagnostics go to a
// size-rotated file so long-running commands on a ward terminal cannot fill
// the disk.
func newLogger() *log.Logger {
	if flagLogFile == "" {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   flagLogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, "", log.LstdFlags)
}
