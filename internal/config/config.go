// Package config loads wardsync settings and assembles the storage tiers
// they describe.
//
// Settings come from wardsync.yaml in the working directory or
// $HOME/.config/wardsync/, overridden by WARDSYNC_* environment variables
// (WARDSYNC_STORAGE_DSN maps to storage.dsn). Storage is an explicit value
// object handed to tier construction, never ambient state, so tests build
// isolated repositories from their own copies.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"wardsync/internal/census"
)

// Remote backend names accepted by storage.backend.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendNone     = "none"
)

// Operating modes accepted by storage.mode.
const (
	// ModeLive runs against the configured tiers.
	ModeLive = "live"

	// ModeDemo keeps both tiers in memory and seeds today's date with
	// sample data. Nothing touches disk or the network.
	ModeDemo = "demo"
)

// Config is the full wardsync configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Ward      WardConfig      `mapstructure:"ward" yaml:"ward"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Wallboard WallboardConfig `mapstructure:"wallboard" yaml:"wallboard"`
	Intake    IntakeConfig    `mapstructure:"intake" yaml:"intake"`
}

// StorageConfig selects and parameterizes the two storage tiers.
type StorageConfig struct {
	// Backend names the remote store: postgres, memory, or none for
	// local-only operation.
	Backend string `mapstructure:"backend" yaml:"backend"`

	// Mode is live or demo.
	Mode string `mapstructure:"mode" yaml:"mode"`

	// DSN is the Postgres connection string (lib/pq conninfo or URL).
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// CachePath is the local SQLite cache file.
	CachePath string `mapstructure:"cache_path" yaml:"cache_path"`

	// Origin overrides the client identity tagged onto remote writes.
	// Empty generates a fresh UUID per process.
	Origin string `mapstructure:"origin" yaml:"origin"`
}

// WardConfig locates the ward's physical description.
type WardConfig struct {
	// Layout is the path of a ward.toml bed layout. Empty uses the
	// built-in twelve-bed ward.
	Layout string `mapstructure:"layout" yaml:"layout"`
}

// SyncConfig tunes the sync controller.
type SyncConfig struct {
	// SuppressionWindow screens subscription events for echoes after a
	// local write.
	SuppressionWindow time.Duration `mapstructure:"suppression_window" yaml:"suppression_window"`

	// SavedHold is how long the saved indicator lingers.
	SavedHold time.Duration `mapstructure:"saved_hold" yaml:"saved_hold"`
}

// WallboardConfig tunes the corridor display feed.
type WallboardConfig struct {
	// Listen is the WebSocket listen address.
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// IntakeConfig tunes the spool-directory importer.
type IntakeConfig struct {
	// Dir is the spool directory watched for dropped record files.
	Dir string `mapstructure:"dir" yaml:"dir"`

	// RatePerSecond caps sustained imports.
	RatePerSecond float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`

	// Burst is the import rate limiter's burst size.
	Burst int `mapstructure:"burst" yaml:"burst"`
}

// Default returns the built-in configuration: local-only live storage with a
// SQLite cache under .wardsync/.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Backend:   BackendNone,
			Mode:      ModeLive,
			CachePath: filepath.Join(".wardsync", "cache.db"),
		},
		Sync: SyncConfig{
			SuppressionWindow: 750 * time.Millisecond,
			SavedHold:         2 * time.Second,
		},
		Wallboard: WallboardConfig{
			Listen: ":8737",
		},
		Intake: IntakeConfig{
			Dir:           "intake",
			RatePerSecond: 5,
			Burst:         10,
		},
	}
}

// Load reads configuration from the given file, or when path is empty, from
// wardsync.yaml in the working directory or $HOME/.config/wardsync/.
// Precedence: environment > file > defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("storage.mode", def.Storage.Mode)
	v.SetDefault("storage.dsn", def.Storage.DSN)
	v.SetDefault("storage.cache_path", def.Storage.CachePath)
	v.SetDefault("storage.origin", def.Storage.Origin)
	v.SetDefault("ward.layout", def.Ward.Layout)
	v.SetDefault("sync.suppression_window", def.Sync.SuppressionWindow.String())
	v.SetDefault("sync.saved_hold", def.Sync.SavedHold.String())
	v.SetDefault("wallboard.listen", def.Wallboard.Listen)
	v.SetDefault("intake.dir", def.Intake.Dir)
	v.SetDefault("intake.rate_per_second", def.Intake.RatePerSecond)
	v.SetDefault("intake.burst", def.Intake.Burst)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wardsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("$HOME", ".config", "wardsync"))
	}

	v.SetEnvPrefix("WARDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No file found: defaults plus environment.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings commands rely on.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendPostgres, BackendMemory, BackendNone:
	default:
		return fmt.Errorf("invalid storage.backend %q (want postgres, memory, or none)", c.Storage.Backend)
	}
	switch c.Storage.Mode {
	case ModeLive, ModeDemo:
	default:
		return fmt.Errorf("invalid storage.mode %q (want live or demo)", c.Storage.Mode)
	}
	if c.Storage.Mode == ModeLive {
		if c.Storage.Backend == BackendPostgres && c.Storage.DSN == "" {
			return fmt.Errorf("storage.backend postgres requires storage.dsn")
		}
		if c.Storage.CachePath == "" {
			return fmt.Errorf("storage.cache_path cannot be empty")
		}
	}
	if c.Intake.RatePerSecond <= 0 {
		return fmt.Errorf("intake.rate_per_second must be positive")
	}
	if c.Intake.Burst < 1 {
		return fmt.Errorf("intake.burst must be at least 1")
	}
	return nil
}

// WardLayout loads the configured bed layout, or the built-in ward when none
// is configured.
func (c *Config) WardLayout() (*census.Layout, error) {
	if c.Ward.Layout == "" {
		return census.DefaultLayout(), nil
	}
	return census.LoadLayout(c.Ward.Layout)
}
