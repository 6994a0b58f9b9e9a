package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wardsync/internal/controller"
	"wardsync/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Follow a date's census and sync status live",
	Long: `Follow one date's census record in the terminal.

A sync controller attaches a live subscription for the date and prints a
line whenever anything changes: another client's write arriving, the
write-path status moving, or the connection dropping and recovering.

Example output:
  09:12:03  idle    8/12 occupied   online
  09:12:41  saving  9/12 occupied   online
  09:12:41  saved   9/12 occupied   online`,
	Run: runWatch,
}

func init() {
	watchCmd.Flags().String("date", "", "census date (default today)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	dateFlag, _ := cmd.Flags().GetString("date")
	date := mustResolveDate(dateFlag)

	repo := openRepository()
	defer repo.Close()

	ctrl, err := controller.New(repo, &controller.Config{
		SuppressionWindow: cfg.Sync.SuppressionWindow,
		SavedHold:         cfg.Sync.SavedHold,
		Logger:            logger,
		OnChange:          printSnapshot,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating controller: %v\n", err)
		os.Exit(1)
	}

	if err := ctrl.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting controller: %v\n", err)
		os.Exit(1)
	}
	defer ctrl.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := ctrl.SetDate(ctx, date); err != nil {
		fmt.Fprintf(os.Stderr, "Error watching %s: %v\n", date, err)
		os.Exit(1)
	}

	fmt.Printf("%s Watching census for %s\n", ui.RenderAccent("🔄"), date)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	<-ctx.Done()
	fmt.Println("\nStopping...")
}

// printSnapshot renders one controller state change as a log line. It runs
// on the controller's goroutine, so it only formats and prints.
func printSnapshot(s controller.Snapshot) {
	occ := "no record"
	if s.Record != nil {
		st := s.Record.Stats()
		occ = fmt.Sprintf("%d/%d occupied", st.Occupied, st.TotalBeds)
	}

	conn := ui.RenderPass("online")
	if !s.Online {
		conn = ui.RenderWarn("offline")
	}

	status := s.Status.String()
	if s.Status == controller.StatusError {
		status = ui.RenderError(status)
	}

	line := fmt.Sprintf("%s  %-7s %-15s %s", time.Now().Format("15:04:05"), status, occ, conn)
	if s.Err != "" {
		line += "  " + ui.RenderError(s.Err)
	}
	fmt.Println(line)
}
