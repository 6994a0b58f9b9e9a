package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"wardsync/internal/census"
	"wardsync/internal/repository"
	"wardsync/internal/ui"
)

var dayCmd = &cobra.Command{
	Use:     "day",
	GroupID: "census",
	Short:   "Manage daily census records",
	Long: `Manage the one-record-per-date census.

Each calendar date has exactly one census record holding bed occupancy,
patient movements, shift staffing, and the handoff summary. Records are
created with 'day init', inspected with 'day get', and wiped back to an
empty ward with 'day reset'.`,
}

var dayInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the census record for a date",
	Long: `Create the census record for a date if it does not exist yet.

By default the day starts empty over the configured ward layout. With
--from or --carry-forward, still-admitted patients are cloned from an
earlier date so the morning shift does not retype the ward:

  # Blank record for today
  wardsync day init

  # Tomorrow's record, carrying today's occupancy forward
  wardsync day init --date tomorrow --carry-forward

  # Explicit source date
  wardsync day init --date 2026-03-15 --from 2026-03-14`,
	Run: runDayInit,
}

var dayGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the census record for a date",
	Long: `Show the census record for a date.

The default view renders occupancy per bed. --json prints the raw record
for scripts.`,
	Run: runDayGet,
}

var dayResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe a date's census back to an empty ward",
	Long: `Replace a date's census record with a blank one.

The reset is written as a normal versioned save, so other clients see it
as an update, not a deletion. Asks for confirmation unless --yes is given
or the run is non-interactive.`,
	Run: runDayReset,
}

var datesCmd = &cobra.Command{
	Use:     "dates",
	GroupID: "census",
	Short:   "List dates with census records",
	Long:    `List every date that has a census record in either tier, newest first.`,
	Run: func(cmd *cobra.Command, args []string) {
		repo := openRepository()
		defer repo.Close()

		dates, err := repo.ListDates(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing dates: %v\n", err)
			os.Exit(1)
		}
		if len(dates) == 0 {
			fmt.Println("No census records yet. Run 'wardsync day init' to create one.")
			return
		}
		for _, d := range dates {
			fmt.Println(d)
		}
	},
}

func init() {
	dayInitCmd.Flags().String("date", "", "census date (default today)")
	dayInitCmd.Flags().String("from", "", "clone occupancy from this date")
	dayInitCmd.Flags().Bool("carry-forward", false, "clone occupancy from the most recent earlier date")

	dayGetCmd.Flags().String("date", "", "census date (default today)")
	dayGetCmd.Flags().Bool("json", false, "print the raw record as JSON")

	dayResetCmd.Flags().String("date", "", "census date (default today)")

	dayCmd.AddCommand(dayInitCmd)
	dayCmd.AddCommand(dayGetCmd)
	dayCmd.AddCommand(dayResetCmd)
	rootCmd.AddCommand(dayCmd)
	rootCmd.AddCommand(datesCmd)
}

func runDayInit(cmd *cobra.Command, args []string) {
	dateFlag, _ := cmd.Flags().GetString("date")
	from, _ := cmd.Flags().GetString("from")
	carryForward, _ := cmd.Flags().GetBool("carry-forward")

	if from != "" && carryForward {
		fmt.Fprintf(os.Stderr, "Error: --from and --carry-forward are mutually exclusive\n")
		os.Exit(1)
	}

	date := mustResolveDate(dateFlag)
	ctx := context.Background()

	repo := openRepository()
	defer repo.Close()

	if _, err := repo.GetForDate(ctx, date); err == nil {
		fmt.Printf("%s Census for %s already exists\n", ui.RenderWarn("⚠"), date)
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "Error reading census: %v\n", err)
		os.Exit(1)
	}

	copyFrom := ""
	switch {
	case from != "":
		copyFrom = mustResolveDate(from)
	case carryForward:
		dates, err := repo.ListDates(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing dates: %v\n", err)
			os.Exit(1)
		}
		// Dates come back newest first.
		for _, d := range dates {
			if d < date {
				copyFrom = d
				break
			}
		}
	}

	if copyFrom != "" && !confirm(fmt.Sprintf("Clone occupancy from %s into %s?", copyFrom, date)) {
		fmt.Println("Aborted.")
		return
	}

	rec, err := repo.InitializeDay(ctx, date, copyFrom)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s: %v\n", date, err)
		os.Exit(1)
	}

	st := rec.Stats()
	if copyFrom != "" {
		fmt.Printf("%s Census for %s ready (%d of %d beds carried over from %s)\n",
			ui.RenderPass("✓"), rec.Date, st.Occupied, st.TotalBeds, copyFrom)
		return
	}
	fmt.Printf("%s Census for %s ready (%d beds, all free)\n",
		ui.RenderPass("✓"), rec.Date, st.TotalBeds)
}

func runDayGet(cmd *cobra.Command, args []string) {
	dateFlag, _ := cmd.Flags().GetString("date")
	asJSON, _ := cmd.Flags().GetBool("json")

	date := mustResolveDate(dateFlag)

	repo := openRepository()
	defer repo.Close()

	rec, err := repo.GetForDate(context.Background(), date)
	if errors.Is(err, repository.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "No census record for %s. Run 'wardsync day init --date %s' to create one.\n", date, date)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading census: %v\n", err)
		os.Exit(1)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
			os.Exit(1)
		}
		return
	}

	renderRecord(rec, wardLayout())
}

func runDayReset(cmd *cobra.Command, args []string) {
	dateFlag, _ := cmd.Flags().GetString("date")
	date := mustResolveDate(dateFlag)

	if !confirm(fmt.Sprintf("Reset the census for %s? Current occupants are discarded.", date)) {
		fmt.Println("Aborted.")
		return
	}

	ctx := context.Background()
	repo := openRepository()
	defer repo.Close()

	existing, err := repo.GetForDate(ctx, date)
	switch {
	case err == nil:
		blank := census.NewBlankRecord(date, wardLayout())
		// Baseline on the record being replaced so the reset wins the
		// version check.
		blank.LastUpdated = existing.LastUpdated
		if _, err := repo.Save(ctx, blank); err != nil {
			var conflict *repository.ConflictError
			if errors.As(err, &conflict) {
				fmt.Fprintf(os.Stderr, "Error: census for %s was changed by another client, run the reset again\n", date)
			} else {
				fmt.Fprintf(os.Stderr, "Error resetting %s: %v\n", date, err)
			}
			os.Exit(1)
		}
	case errors.Is(err, repository.ErrNotFound):
		if _, err := repo.InitializeDay(ctx, date, ""); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing %s: %v\n", date, err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Error reading census: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s Census for %s reset to an empty ward\n", ui.RenderPass("✓"), date)
}

// renderRecord prints one census record for a terminal.
func renderRecord(rec *census.Record, layout *census.Layout) {
	st := rec.Stats()

	fmt.Printf("\n%s\n", ui.RenderHeader("Census "+rec.Date))
	if !rec.LastUpdated.IsZero() {
		fmt.Printf("%s\n", ui.RenderDim("updated "+rec.LastUpdated.Local().Format("2006-01-02 15:04:05")))
	}
	fmt.Printf("Occupied %d/%d · blocked %d · free %d\n", st.Occupied, st.TotalBeds, st.Blocked, st.Free)
	if st.Discharges > 0 || st.Transfers > 0 || st.DaySurgery > 0 {
		fmt.Printf("Movements: %d discharges, %d transfers, %d day surgery\n",
			st.Discharges, st.Transfers, st.DaySurgery)
	}
	fmt.Println()

	for _, id := range orderedBeds(rec, layout) {
		slot := rec.Beds[id]
		switch {
		case slot == nil:
			fmt.Printf("  %-4s %s\n", id, ui.RenderDim("free"))
		case slot.Occupied():
			line := slot.PatientName
			if slot.Diagnosis != "" {
				line += " (" + slot.Diagnosis + ")"
			}
			if slot.CudyrScore != "" {
				line += "  CUDYR " + slot.CudyrScore
			}
			if len(slot.DeviceDetails) > 0 {
				line += fmt.Sprintf("  [%d devices]", len(slot.DeviceDetails))
			}
			fmt.Printf("  %-4s %s\n", id, line)
		case slot.Blocked:
			msg := "blocked"
			if slot.BlockReason != "" {
				msg += ": " + slot.BlockReason
			}
			fmt.Printf("  %-4s %s\n", id, ui.RenderWarn(msg))
		default:
			fmt.Printf("  %-4s %s\n", id, ui.RenderDim("free"))
		}
	}
	fmt.Println()
}

// orderedBeds lists the record's bed IDs in layout order, with any beds the
// layout no longer names sorted at the end.
func orderedBeds(rec *census.Record, layout *census.Layout) []string {
	seen := make(map[string]bool, len(rec.Beds))
	ids := make([]string, 0, len(rec.Beds))

	for _, id := range layout.Beds {
		if _, ok := rec.Beds[id]; ok && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	for _, id := range layout.ExtraBeds {
		if _, ok := rec.Beds[id]; ok && !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}

	var rest []string
	for id := range rec.Beds {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}
