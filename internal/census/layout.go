package census

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Layout describes the ward's physical bed topology. It is configuration,
// decoded from ward.toml, so the same binary serves wards of any size.
type Layout struct {
	Name      string   `toml:"name"`
	Beds      []string `toml:"beds"`
	ExtraBeds []string `toml:"extra_beds"`
}

// DefaultLayout returns the twelve-bed medical ward layout used when no
// ward.toml is configured.
func DefaultLayout() *Layout {
	return &Layout{
		Name: "Medicina",
		Beds: []string{
			"R1", "R2", "R3", "R4", "R5", "R6",
			"R7", "R8", "R9", "R10", "R11", "R12",
		},
		ExtraBeds: []string{"E1", "E2"},
	}
}

// LoadLayout reads and validates a ward layout TOML file.
func LoadLayout(path string) (*Layout, error) {
	var layout Layout
	if _, err := toml.DecodeFile(path, &layout); err != nil {
		return nil, fmt.Errorf("failed to load ward layout %s: %w", path, err)
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ward layout %s: %w", path, err)
	}
	return &layout, nil
}

// Validate checks the layout for structural problems.
func (l *Layout) Validate() error {
	if len(l.Beds) == 0 {
		return fmt.Errorf("layout must declare at least one bed")
	}
	seen := make(map[string]bool, len(l.Beds)+len(l.ExtraBeds))
	for _, id := range append(append([]string{}, l.Beds...), l.ExtraBeds...) {
		if id == "" {
			return fmt.Errorf("bed identifiers must be non-empty")
		}
		if seen[id] {
			return fmt.Errorf("duplicate bed identifier %q", id)
		}
		seen[id] = true
	}
	return nil
}

// HasBed reports whether id names a standard or extra bed in this layout.
func (l *Layout) HasBed(id string) bool {
	for _, b := range l.Beds {
		if b == id {
			return true
		}
	}
	return l.IsExtra(id)
}

// IsExtra reports whether id names one of the layout's extra beds.
func (l *Layout) IsExtra(id string) bool {
	for _, b := range l.ExtraBeds {
		if b == id {
			return true
		}
	}
	return false
}

// WriteFile encodes the layout as TOML at path.
func (l *Layout) WriteFile(path string) error {
	f, err := os.Create(path) // #nosec G304 - path comes from operator config
	if err != nil {
		return fmt.Errorf("failed to create layout file %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(l); err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}
	return nil
}
