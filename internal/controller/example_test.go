package controller_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"wardsync/internal/cache"
	"wardsync/internal/census"
	"wardsync/internal/controller"
	"wardsync/internal/remote"
	"wardsync/internal/repository"
)

// ExampleController demonstrates the optimistic write flow over an
// in-memory store pair: activate a date, admit a patient, save.
func ExampleController() {
	hub := remote.NewMemory()
	defer hub.Close()

	repo := repository.New(repository.Config{
		Local:  cache.NewMemory(),
		Remote: hub.Client("nurse-station-1"),
		Logger: log.New(io.Discard, "", 0),
	})
	defer repo.Close()

	config := controller.DefaultConfig()
	config.Logger = log.New(io.Discard, "", 0)

	c, err := controller.New(repo, config)
	if err != nil {
		log.Fatal(err)
	}
	if err := c.Start(); err != nil {
		log.Fatal(err)
	}
	defer c.Stop()

	ctx := context.Background()
	if _, err := repo.InitializeDay(ctx, "2026-03-14", ""); err != nil {
		log.Fatal(err)
	}
	if err := c.SetDate(ctx, "2026-03-14"); err != nil {
		log.Fatal(err)
	}

	// Wait for the record to load, then admit a patient.
	snap := waitFor(c, func(s controller.Snapshot) bool { return s.Record != nil })
	rec := snap.Record
	rec.Beds["R1"] = &census.BedSlot{PatientName: "Ana Reyes", Diagnosis: "NAC"}
	if err := c.SaveAndUpdate(rec); err != nil {
		log.Fatal(err)
	}

	snap = waitFor(c, func(s controller.Snapshot) bool { return s.Status == controller.StatusSaved })
	fmt.Printf("%s R1: %s (%s)\n", snap.Date, snap.Record.Beds["R1"].PatientName, snap.Status)

	// Output:
	// 2026-03-14 R1: Ana Reyes (saved)
}

func waitFor(c *controller.Controller, ok func(controller.Snapshot) bool) controller.Snapshot {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if snap := c.Snapshot(); ok(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	return controller.Snapshot{}
}
