package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const fileHeader = `# wardsync configuration.
# Every value is overridden by a WARDSYNC_* environment variable:
# storage.dsn becomes WARDSYNC_STORAGE_DSN.
`

var sectionComments = map[string]string{
	"storage":   "Storage tiers. The local cache always runs; backend selects the\nshared remote store. Demo mode keeps everything in memory and seeds\nsample data.",
	"ward":      "Physical ward description.",
	"sync":      "Sync controller tuning.",
	"wallboard": "Corridor wallboard feed.",
	"intake":    "Import spool for records exported by the legacy system.",
}

var lineComments = map[[2]string]string{
	{"storage", "backend"}: "postgres, memory, or none",
	{"storage", "mode"}:    "live or demo",
	{"storage", "dsn"}:     "e.g. postgres://wardsync@db/census?sslmode=disable",
	{"ward", "layout"}:     "path of a ward.toml; empty uses the built-in twelve-bed ward",
}

// WriteDefault writes a commented starter configuration to path. It refuses
// to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}

	def := Default()

	var root yaml.Node
	if err := root.Encode(def); err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}

	// Durations encode as nanosecond integers; rewrite them the way people
	// write them.
	if n := valueNode(&root, "sync", "suppression_window"); n != nil {
		n.SetString(def.Sync.SuppressionWindow.String())
	}
	if n := valueNode(&root, "sync", "saved_hold"); n != nil {
		n.SetString(def.Sync.SavedHold.String())
	}

	for section, comment := range sectionComments {
		if key := keyNode(&root, section); key != nil {
			key.HeadComment = comment
		}
	}
	for loc, comment := range lineComments {
		if n := valueNode(&root, loc[0], loc[1]); n != nil {
			n.LineComment = comment
		}
	}

	data, err := yaml.Marshal(&root)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(fileHeader), data...), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// keyNode returns the key scalar of a top-level section, for attaching
// comments above it.
func keyNode(root *yaml.Node, section string) *yaml.Node {
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == section {
			return root.Content[i]
		}
	}
	return nil
}

// valueNode returns the value node at section.key, nil when absent.
func valueNode(root *yaml.Node, section, key string) *yaml.Node {
	sec := mappingValue(root, section)
	if sec == nil {
		return nil
	}
	return mappingValue(sec, key)
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
