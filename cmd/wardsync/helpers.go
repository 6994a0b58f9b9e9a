package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"wardsync/internal/census"
	"wardsync/internal/repository"
	"wardsync/internal/ui"
)

// resolveDate turns a --date value into a canonical census date. Empty means
// today. Strict YYYY-MM-DD is tried first, then natural language ("yesterday",
// "next friday").
func resolveDate(text string) (string, error) {
	if text == "" {
		return census.FormatDate(time.Now()), nil
	}
	if _, err := census.ParseDate(text); err == nil {
		return text, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	res, err := w.Parse(text, time.Now())
	if err != nil || res == nil {
		return "", fmt.Errorf("cannot understand date %q (try YYYY-MM-DD)", text)
	}
	return census.FormatDate(res.Time), nil
}

// mustResolveDate is resolveDate with the command-line error convention.
func mustResolveDate(text string) string {
	date, err := resolveDate(text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return date
}

// confirm asks the operator before a step that discards data. --yes and
// non-interactive runs (pipes, cron) proceed without asking.
func confirm(title string) bool {
	if flagYes || !ui.Interactive() {
		return true
	}

	ok := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().Title(title).Value(&ok),
	))
	if err := form.Run(); err != nil {
		return false
	}
	return ok
}

// openRepository assembles the configured storage tiers. The caller owns the
// returned repository and must Close it.
func openRepository() *repository.Repository {
	repo, err := cfg.OpenRepository(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening storage: %v\n", err)
		os.Exit(1)
	}
	return repo
}

// wardLayout loads the configured bed layout.
func wardLayout() *census.Layout {
	layout, err := cfg.WardLayout()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading ward layout: %v\n", err)
		os.Exit(1)
	}
	return layout
}
