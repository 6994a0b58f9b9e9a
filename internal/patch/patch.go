package patch

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"wardsync/internal/census"
)

// Patch maps dot-paths to new values. A nil value clears the field. Patches
// are ephemeral: applied to produce a new record, never persisted.
type Patch map[string]any

// Validate parses every path, rejecting the whole patch on the first bad one.
// A patch is applied all-or-nothing so a typo cannot half-update a record.
func (p Patch) Validate() error {
	for raw := range p {
		if _, err := ParsePath(raw); err != nil {
			return err
		}
	}
	return nil
}

// sortedPaths returns the patch paths in deterministic order. When paths
// overlap the later (more specific) one wins.
func (p Patch) sortedPaths() []string {
	paths := make([]string, 0, len(p))
	for raw := range p {
		paths = append(paths, raw)
	}
	sort.Strings(paths)
	return paths
}

// Apply returns a new record with the patch applied. The input record is
// never mutated; fields not named by the patch keep their prior values.
// Missing intermediate containers on valid paths are created.
func Apply(rec *census.Record, p Patch) (*census.Record, error) {
	if rec == nil {
		return nil, fmt.Errorf("cannot patch nil record")
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %s: %w", rec.Date, err)
	}

	doc, err = p.ApplyJSON(doc)
	if err != nil {
		return nil, err
	}

	var out census.Record
	if err := json.Unmarshal(doc, &out); err != nil {
		return nil, fmt.Errorf("failed to decode patched record %s: %w", rec.Date, err)
	}
	out.SetDefaults()
	return &out, nil
}

// Get reads the value at a dot-path from a record. The second return is
// false when the path is valid for the shape but unset on this record.
func Get(rec *census.Record, raw string) (any, bool, error) {
	parsed, err := ParsePath(raw)
	if err != nil {
		return nil, false, err
	}

	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode record %s: %w", rec.Date, err)
	}

	res := gjson.GetBytes(doc, parsed.enginePath())
	if !res.Exists() {
		return nil, false, nil
	}
	return res.Value(), true, nil
}

// ApplyJSON applies the patch to a raw record document. The same engine runs
// in-memory and inside the remote store's partial-update transaction, so both
// tiers patch identically.
func (p Patch) ApplyJSON(doc []byte) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var err error
	for _, raw := range p.sortedPaths() {
		parsed, _ := ParsePath(raw)
		target := parsed.enginePath()

		if p[raw] == nil {
			doc, err = sjson.DeleteBytes(doc, target)
		} else {
			doc, err = sjson.SetBytes(doc, target, p[raw])
		}
		if err != nil {
			return nil, fmt.Errorf("failed to apply patch path %q: %w", raw, err)
		}
	}
	return doc, nil
}
