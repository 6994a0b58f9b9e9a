package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wardsync/internal/ui"
	"wardsync/internal/wallboard"
)

var wallboardCmd = &cobra.Command{
	Use:     "wallboard",
	GroupID: "sync",
	Short:   "Serve the corridor wallboard over WebSocket",
	Long: `Start the WebSocket feed corridor displays connect to.

The wallboard broadcasts occupancy statistics for one date in real time:
every census change, from any client, becomes a stats refresh on every
connected display. Connecting clients immediately receive current
occupancy, and link state changes are announced so boards can show an
offline banner.

WebSocket messages:
  census_update: a record changed (date, origin, occupancy stats)
  stats:         occupancy counters for the watched date
  sync_status:   remote link went online or offline

Example usage:
  wardsync wallboard                      # today's census on :8737
  wardsync wallboard --listen :9000       # custom port
  wardsync wallboard --date 2026-03-14    # specific date

Connect with a WebSocket client:
  ws://localhost:8737/ws`,
	Run: runWallboard,
}

func init() {
	wallboardCmd.Flags().String("listen", "", "listen address (default from config, \":8737\")")
	wallboardCmd.Flags().String("date", "", "census date to broadcast (default today)")
	rootCmd.AddCommand(wallboardCmd)
}

func runWallboard(cmd *cobra.Command, args []string) {
	listen, _ := cmd.Flags().GetString("listen")
	dateFlag, _ := cmd.Flags().GetString("date")

	if listen == "" {
		listen = cfg.Wallboard.Listen
	}
	date := mustResolveDate(dateFlag)

	repo := openRepository()
	defer repo.Close()

	server := wallboard.NewServer(&wallboard.Config{
		Addr:   listen,
		Logger: logger,
	})
	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting wallboard: %v\n", err)
		os.Exit(1)
	}

	bridge := wallboard.NewBridge(server, repo, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := bridge.Watch(ctx, date); err != nil {
		fmt.Fprintf(os.Stderr, "Error watching %s: %v\n", date, err)
		_ = server.Stop()
		os.Exit(1)
	}

	fmt.Printf("%s Wallboard serving census for %s\n", ui.RenderAccent("🚀"), date)
	fmt.Printf("   WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
	fmt.Printf("   Health check: http://%s/health\n", server.GetAddr())
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down wallboard...")
	bridge.Stop()
	if err := server.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Wallboard stopped")
}
