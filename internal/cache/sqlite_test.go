package cache

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"wardsync/internal/census"
)

var testLogger = log.New(io.Discard, "", 0)

// cacheRecord builds a valid record for a date with a fixed timestamp so
// round-trip comparisons are deterministic.
func cacheRecord(date string, hour int) *census.Record {
	rec := census.NewBlankRecord(date, census.DefaultLayout())
	rec.LastUpdated = time.Date(2026, 3, 14, hour, 0, 0, 0, time.UTC)
	rec.Beds["R1"] = &census.BedSlot{
		PatientName: "Carla Munoz",
		Diagnosis:   "EPOC",
		DeviceDetails: map[string]census.DeviceEntry{
			"VVP": {InstalledAt: date, Note: "brazo derecho"},
		},
	}
	rec.NursesDayShift[0] = "P. Fuentes"
	return rec
}

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"), testLogger)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	want := cacheRecord("2026-03-14", 10)
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "2026-03-14")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Errorf("round trip mismatch:\nput: %+v\ngot: %+v", want, got)
	}
}

func TestSQLiteGetMissing(t *testing.T) {
	store := openTestSQLite(t)

	_, err := store.Get(context.Background(), "2026-03-14")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLitePutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	first := cacheRecord("2026-03-14", 10)
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}

	second := cacheRecord("2026-03-14", 11)
	second.Beds["R2"] = &census.BedSlot{PatientName: "Hector Rios"}
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	got, err := store.Get(ctx, "2026-03-14")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.LastUpdated.Equal(second.LastUpdated) {
		t.Errorf("expected lastUpdated %v, got %v", second.LastUpdated, got.LastUpdated)
	}
	if !got.Beds["R2"].Occupied() {
		t.Error("expected overwrite to carry the new R2 occupant")
	}

	dates, err := store.ListDates(ctx)
	if err != nil {
		t.Fatalf("ListDates failed: %v", err)
	}
	if len(dates) != 1 {
		t.Errorf("expected one row after overwrite, got %v", dates)
	}
}

func TestSQLitePutRejectsInvalid(t *testing.T) {
	store := openTestSQLite(t)

	bad := cacheRecord("2026-03-14", 10)
	bad.Date = "14-03-2026"
	if err := store.Put(context.Background(), bad); err == nil {
		t.Error("expected error putting record with malformed date")
	}
}

func TestSQLiteMostRecentBefore(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	for i, date := range []string{"2026-03-10", "2026-03-12", "2026-03-14"} {
		if err := store.Put(ctx, cacheRecord(date, 8+i)); err != nil {
			t.Fatalf("Put %s failed: %v", date, err)
		}
	}

	got, err := store.MostRecentBefore(ctx, "2026-03-14")
	if err != nil {
		t.Fatalf("MostRecentBefore failed: %v", err)
	}
	if got.Date != "2026-03-12" {
		t.Errorf("expected 2026-03-12, got %s", got.Date)
	}

	// Strictly before: the candidate's own date never matches itself.
	got, err = store.MostRecentBefore(ctx, "2026-03-11")
	if err != nil {
		t.Fatalf("MostRecentBefore failed: %v", err)
	}
	if got.Date != "2026-03-10" {
		t.Errorf("expected 2026-03-10, got %s", got.Date)
	}

	if _, err := store.MostRecentBefore(ctx, "2026-03-10"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound before earliest date, got %v", err)
	}
}

func TestSQLiteListDatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	for _, date := range []string{"2026-03-12", "2026-03-10", "2026-03-14"} {
		if err := store.Put(ctx, cacheRecord(date, 9)); err != nil {
			t.Fatalf("Put %s failed: %v", date, err)
		}
	}

	dates, err := store.ListDates(ctx)
	if err != nil {
		t.Fatalf("ListDates failed: %v", err)
	}
	want := []string{"2026-03-14", "2026-03-12", "2026-03-10"}
	if !reflect.DeepEqual(dates, want) {
		t.Errorf("expected %v, got %v", want, dates)
	}
}

func TestSQLiteDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestSQLite(t)

	if err := store.Put(ctx, cacheRecord("2026-03-14", 10)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete(ctx, "2026-03-14"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "2026-03-14"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting an absent date is a no-op, not an error.
	if err := store.Delete(ctx, "2026-03-14"); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	store, err := OpenSQLite(path, testLogger)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	want := cacheRecord("2026-03-14", 10)
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenSQLite(path, testLogger)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "2026-03-14")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Errorf("record changed across reopen:\nput: %+v\ngot: %+v", want, got)
	}
}

func TestOpenSQLiteRecoversCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	if err := os.WriteFile(path, []byte("this is not a sqlite database"), 0600); err != nil {
		t.Fatalf("failed to plant corrupt file: %v", err)
	}

	store, err := OpenSQLite(path, testLogger)
	if err != nil {
		t.Fatalf("expected recovery from corrupt file, got %v", err)
	}
	defer store.Close()

	// The wiped database starts empty but must be fully usable.
	ctx := context.Background()
	if _, err := store.Get(ctx, "2026-03-14"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected empty recovered cache, got %v", err)
	}
	if err := store.Put(ctx, cacheRecord("2026-03-14", 10)); err != nil {
		t.Errorf("Put into recovered cache failed: %v", err)
	}
}

func TestOpenSQLiteCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "cache.db")

	store, err := OpenSQLite(path, testLogger)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("parent directory was not created: %v", err)
	}
}
