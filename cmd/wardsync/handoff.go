package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"wardsync/internal/handoff"
	"wardsync/internal/repository"
	"wardsync/internal/ui"
)

var handoffCmd = &cobra.Command{
	Use:     "handoff",
	GroupID: "census",
	Short:   "Render the shift-handoff report for a date",
	Long: `Render a date's census as a markdown shift-handoff report: occupancy
counts, one line per occupied bed with devices and notes, patient
movements, and shift staffing.

With --sent-by the record is additionally marked as handed off, stamping
the doctor's name and the current time so other clients see the handoff
went out:

  wardsync handoff --date yesterday
  wardsync handoff --sent-by "Dra. Fuentes" | mail -s "Entrega de turno" ward@hospital`,
	Run: runHandoff,
}

func init() {
	handoffCmd.Flags().String("date", "", "census date (default today)")
	handoffCmd.Flags().String("sent-by", "", "mark the handoff sent by this doctor")
	rootCmd.AddCommand(handoffCmd)
}

func runHandoff(cmd *cobra.Command, args []string) {
	dateFlag, _ := cmd.Flags().GetString("date")
	sentBy, _ := cmd.Flags().GetString("sent-by")

	date := mustResolveDate(dateFlag)
	ctx := context.Background()

	repo := openRepository()
	defer repo.Close()

	rec, err := repo.GetForDate(ctx, date)
	if errors.Is(err, repository.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "No census record for %s\n", date)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading census: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(handoff.BuildReport(rec, wardLayout()))

	if sentBy == "" {
		return
	}

	if _, err := repo.UpdatePartial(ctx, date, handoff.MarkSent(sentBy, time.Now())); err != nil {
		fmt.Fprintf(os.Stderr, "Error marking handoff sent: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "%s Handoff for %s marked sent by %s\n", ui.RenderPass("✓"), date, sentBy)
}
