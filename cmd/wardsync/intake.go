package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"wardsync/internal/intake"
	"wardsync/internal/ui"
)

var intakeCmd = &cobra.Command{
	Use:     "intake [dir]",
	GroupID: "sync",
	Short:   "Import census files dropped into a spool directory",
	Long: `Watch a spool directory and import every census record dropped there.

The legacy desktop system exports one JSON file per date. The importer
picks each file up once it stops changing, saves it through the normal
versioned write path, and removes it on success. A file older than the
ward's current record loses the version check; it is logged, counted,
and left in the spool for inspection.

Files already in the directory at startup are imported too, so the
command doubles as a one-shot bulk import:

  wardsync intake /srv/ward/export &
  wardsync intake            # uses intake.dir from the config`,
	Args: cobra.MaximumNArgs(1),
	Run:  runIntake,
}

func init() {
	rootCmd.AddCommand(intakeCmd)
}

func runIntake(cmd *cobra.Command, args []string) {
	dir := cfg.Intake.Dir
	if len(args) == 1 {
		dir = args[0]
	}

	repo := openRepository()
	defer repo.Close()

	importerConfig := intake.DefaultConfig()
	importerConfig.ImportRate = rate.Limit(cfg.Intake.RatePerSecond)
	importerConfig.ImportBurst = cfg.Intake.Burst
	importerConfig.Logger = logger

	importer, err := intake.NewWithConfig(repo, dir, importerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating importer: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%s Watching %s for census files\n", ui.RenderAccent("🔄"), dir)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := importer.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Importer stopped with error: %v\n", err)
		os.Exit(1)
	}

	st := importer.Stats()
	fmt.Printf("\n%s Imported %d record(s)", ui.RenderPass("✓"), st.Imported)
	if st.Conflicts > 0 {
		fmt.Printf(", %s", ui.RenderWarn(fmt.Sprintf("%d conflict(s) left in spool", st.Conflicts)))
	}
	if st.Rejected > 0 {
		fmt.Printf(", %d rejected", st.Rejected)
	}
	if st.Failed > 0 {
		fmt.Printf(", %d failed", st.Failed)
	}
	fmt.Println()
}
