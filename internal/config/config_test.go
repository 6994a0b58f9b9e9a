package config

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wardsync/internal/census"
)

var testLogger = log.New(io.Discard, "", 0)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wardsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.Backend != BackendNone {
		t.Errorf("Backend = %q, want %q", cfg.Storage.Backend, BackendNone)
	}
	if cfg.Storage.Mode != ModeLive {
		t.Errorf("Mode = %q, want %q", cfg.Storage.Mode, ModeLive)
	}
	if cfg.Storage.CachePath != filepath.Join(".wardsync", "cache.db") {
		t.Errorf("CachePath = %q", cfg.Storage.CachePath)
	}
	if cfg.Sync.SuppressionWindow != 750*time.Millisecond {
		t.Errorf("SuppressionWindow = %v", cfg.Sync.SuppressionWindow)
	}
	if cfg.Sync.SavedHold != 2*time.Second {
		t.Errorf("SavedHold = %v", cfg.Sync.SavedHold)
	}
	if cfg.Wallboard.Listen != ":8737" {
		t.Errorf("Listen = %q", cfg.Wallboard.Listen)
	}
	if cfg.Intake.RatePerSecond != 5 || cfg.Intake.Burst != 10 {
		t.Errorf("Intake = %+v", cfg.Intake)
	}
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: postgres
  dsn: postgres://ward@db/census?sslmode=disable
  cache_path: /var/lib/wardsync/cache.db
  origin: desk-1
sync:
  suppression_window: 1s
wallboard:
  listen: ":9000"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.Backend != BackendPostgres {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Storage.DSN != "postgres://ward@db/census?sslmode=disable" {
		t.Errorf("DSN = %q", cfg.Storage.DSN)
	}
	if cfg.Storage.Origin != "desk-1" {
		t.Errorf("Origin = %q", cfg.Storage.Origin)
	}
	if cfg.Sync.SuppressionWindow != time.Second {
		t.Errorf("SuppressionWindow = %v", cfg.Sync.SuppressionWindow)
	}
	if cfg.Wallboard.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Wallboard.Listen)
	}
	// Unset keys keep their defaults.
	if cfg.Intake.Dir != "intake" {
		t.Errorf("Intake.Dir = %q", cfg.Intake.Dir)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: postgres
  dsn: postgres://ward@db/census
`)
	t.Setenv("WARDSYNC_STORAGE_BACKEND", "memory")
	t.Setenv("WARDSYNC_INTAKE_BURST", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("Backend = %q, want env override %q", cfg.Storage.Backend, BackendMemory)
	}
	if cfg.Intake.Burst != 3 {
		t.Errorf("Burst = %d, want env override 3", cfg.Intake.Burst)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, true},
		{"unknown mode", func(c *Config) { c.Storage.Mode = "staging" }, true},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, true},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.Storage.DSN = "postgres://ward@db/census"
		}, false},
		{"live without cache path", func(c *Config) { c.Storage.CachePath = "" }, true},
		{"demo without cache path", func(c *Config) {
			c.Storage.Mode = ModeDemo
			c.Storage.CachePath = ""
		}, false},
		{"zero import rate", func(c *Config) { c.Intake.RatePerSecond = 0 }, true},
		{"zero burst", func(c *Config) { c.Intake.Burst = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wardsync.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read scaffold: %v", err)
	}
	text := string(raw)
	if !strings.Contains(text, "# wardsync configuration") {
		t.Error("scaffold is missing the header comment")
	}
	if !strings.Contains(text, "suppression_window: 750ms") {
		t.Errorf("scaffold durations are not human-readable:\n%s", text)
	}
	if !strings.Contains(text, "postgres, memory, or none") {
		t.Error("scaffold is missing the backend hint comment")
	}

	// The scaffold must load back to the built-in defaults.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("scaffolded file failed to load: %v", err)
	}
	def := Default()
	if *cfg != def {
		t.Errorf("scaffold round trip drifted:\n got %+v\nwant %+v", *cfg, def)
	}
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wardsync.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}
	if err := WriteDefault(path); err == nil {
		t.Fatal("expected error overwriting existing config")
	}
}

func TestWardLayout(t *testing.T) {
	cfg := Default()
	layout, err := cfg.WardLayout()
	if err != nil {
		t.Fatalf("WardLayout failed: %v", err)
	}
	if len(layout.Beds) != 12 {
		t.Errorf("default layout has %d beds, want 12", len(layout.Beds))
	}

	custom := &census.Layout{Name: "Cirugía", Beds: []string{"C1", "C2", "C3"}}
	path := filepath.Join(t.TempDir(), "ward.toml")
	if err := custom.WriteFile(path); err != nil {
		t.Fatalf("failed to write layout: %v", err)
	}
	cfg.Ward.Layout = path
	layout, err = cfg.WardLayout()
	if err != nil {
		t.Fatalf("WardLayout failed: %v", err)
	}
	if layout.Name != "Cirugía" || len(layout.Beds) != 3 {
		t.Errorf("loaded layout = %+v", layout)
	}
}

func TestOpenRepositoryDemo(t *testing.T) {
	cfg := Default()
	cfg.Storage.Mode = ModeDemo

	repo, err := cfg.OpenRepository(testLogger)
	if err != nil {
		t.Fatalf("OpenRepository failed: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	dates, err := repo.ListDates(ctx)
	if err != nil {
		t.Fatalf("ListDates failed: %v", err)
	}
	if len(dates) != 1 {
		t.Fatalf("demo mode seeded %d dates, want 1", len(dates))
	}

	rec, err := repo.GetForDate(ctx, dates[0])
	if err != nil {
		t.Fatalf("GetForDate failed: %v", err)
	}
	if rec.Beds["R1"].PatientName != "Ana Reyes" {
		t.Errorf("demo seed missing: R1 = %+v", rec.Beds["R1"])
	}
}

func TestOpenRepositoryLocalOnly(t *testing.T) {
	cfg := Default()
	cfg.Storage.CachePath = filepath.Join(t.TempDir(), "cache.db")

	repo, err := cfg.OpenRepository(testLogger)
	if err != nil {
		t.Fatalf("OpenRepository failed: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	rec, err := repo.InitializeDay(ctx, "2026-03-14", "")
	if err != nil {
		t.Fatalf("InitializeDay failed: %v", err)
	}
	if len(rec.Beds) != 12 {
		t.Errorf("initialized day has %d beds, want 12", len(rec.Beds))
	}

	got, err := repo.GetForDate(ctx, "2026-03-14")
	if err != nil {
		t.Fatalf("GetForDate failed: %v", err)
	}
	if got.Date != "2026-03-14" {
		t.Errorf("Date = %q", got.Date)
	}
}
