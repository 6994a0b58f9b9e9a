package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wardsync/internal/patch"
	"wardsync/internal/ui"
)

var setCmd = &cobra.Command{
	Use:     "set <path> <value>",
	GroupID: "census",
	Short:   "Set one field of a census record",
	Long: `Set one field of a date's census record without touching the rest.

Paths are dot-separated field names. The value is parsed as JSON when it
looks like JSON (numbers, booleans, null, arrays), otherwise taken as a
plain string. A JSON null clears the field, same as 'wardsync clear'.

Examples:
  wardsync set beds.R3.patientName "Carla Muñoz"
  wardsync set beds.R3.diagnosis "NAC"
  wardsync set beds.R7.blocked true
  wardsync set handoffNovedadesDayShift "Sin novedades"
  wardsync set beds.R3.deviceDetails.CUP.installedAt 2026-03-14`,
	Args: cobra.ExactArgs(2),
	Run:  runSet,
}

var clearCmd = &cobra.Command{
	Use:     "clear <path>",
	GroupID: "census",
	Short:   "Clear one field of a census record",
	Long: `Clear one field of a date's census record.

Examples:
  wardsync clear beds.R3.patientName
  wardsync clear beds.R7.blockReason`,
	Args: cobra.ExactArgs(1),
	Run:  runClear,
}

func init() {
	setCmd.Flags().String("date", "", "census date (default today)")
	clearCmd.Flags().String("date", "", "census date (default today)")
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(clearCmd)
}

func runSet(cmd *cobra.Command, args []string) {
	dateFlag, _ := cmd.Flags().GetString("date")
	date := mustResolveDate(dateFlag)

	path := args[0]
	value := parseValue(args[1])

	applyPatch(date, patch.Patch{path: value})
	if value == nil {
		fmt.Printf("%s %s cleared on %s\n", ui.RenderPass("✓"), path, date)
		return
	}
	fmt.Printf("%s %s updated on %s\n", ui.RenderPass("✓"), path, date)
}

func runClear(cmd *cobra.Command, args []string) {
	dateFlag, _ := cmd.Flags().GetString("date")
	date := mustResolveDate(dateFlag)

	applyPatch(date, patch.Patch{args[0]: nil})
	fmt.Printf("%s %s cleared on %s\n", ui.RenderPass("✓"), args[0], date)
}

func applyPatch(date string, p patch.Patch) {
	repo := openRepository()
	defer repo.Close()

	if _, err := repo.UpdatePartial(context.Background(), date, p); err != nil {
		fmt.Fprintf(os.Stderr, "Error updating %s: %v\n", date, err)
		os.Exit(1)
	}
}

// parseValue interprets a command-line value: valid JSON is taken typed,
// anything else is a plain string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
