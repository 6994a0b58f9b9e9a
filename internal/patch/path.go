// Package patch applies sparse dot-path field updates to census records.
//
// A Patch is the wire format shared by every tier: a flat object whose keys
// are dot-separated paths ("beds.R1.patientName") and whose values are the
// new field values, with null meaning "clear". Paths are parsed once at the
// boundary into typed segment sequences and validated against the record
// shape, so a mistyped field name fails loudly instead of planting data the
// rest of the system can never see. Missing intermediate containers along a
// valid path (a bed with no device map yet) are created on application.
package patch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadPath reports a patch path that cannot address any record field.
var ErrBadPath = errors.New("malformed patch path")

// SegmentKind distinguishes fixed struct fields from free-form map keys.
type SegmentKind int

const (
	// KindField is a named field of the record shape (e.g. "patientName").
	KindField SegmentKind = iota
	// KindKey is a caller-chosen map key (a bed identifier, a device name).
	KindKey
)

// String returns a human-readable segment kind.
func (k SegmentKind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindKey:
		return "key"
	default:
		return fmt.Sprintf("SegmentKind(%d)", int(k))
	}
}

// Segment is one step of a parsed path.
type Segment struct {
	Name string
	Kind SegmentKind
}

// Path is a parsed, shape-checked patch path.
type Path struct {
	raw  string
	segs []Segment
}

// String returns the original dot-path.
func (p Path) String() string { return p.raw }

// Segments returns the parsed steps, root first.
func (p Path) Segments() []Segment { return p.segs }

// shape describes what a path may address at one level of the record.
type shape struct {
	fields map[string]*shape // fixed field names (struct level)
	keyOf  *shape            // free map keys; value shape (map level)
}

var scalarShape = &shape{}

var deviceShape = &shape{fields: map[string]*shape{
	"installedAt": scalarShape,
	"removedAt":   scalarShape,
	"note":        scalarShape,
}}

var slotShape = &shape{fields: map[string]*shape{
	"patientName":     scalarShape,
	"patientId":       scalarShape,
	"admittedAt":      scalarShape,
	"diagnosis":       scalarShape,
	"attendingDoctor": scalarShape,
	"cudyrScore":      scalarShape,
	"blocked":         scalarShape,
	"blockReason":     scalarShape,
	"deviceDetails":   {keyOf: deviceShape},
	"notesDayShift":   scalarShape,
	"notesNightShift": scalarShape,
}}

var signatureShape = &shape{fields: map[string]*shape{
	"doctor":    scalarShape,
	"signedAt":  scalarShape,
	"imageData": scalarShape,
}}

// recordShape omits date and lastUpdated: identity and versioning are
// system-managed, never patched by callers.
var recordShape = &shape{fields: map[string]*shape{
	"beds":                       {keyOf: slotShape},
	"discharges":                 scalarShape,
	"transfers":                  scalarShape,
	"dayHospitalization":         scalarShape,
	"nursesDayShift":             scalarShape,
	"nursesNightShift":           scalarShape,
	"tensDayShift":               scalarShape,
	"tensNightShift":             scalarShape,
	"activeExtraBeds":            scalarShape,
	"handoffNovedadesDayShift":   scalarShape,
	"handoffNovedadesNightShift": scalarShape,
	"medicalHandoffDoctor":       scalarShape,
	"medicalHandoffSentAt":       scalarShape,
	"medicalSignature":           signatureShape,
}}

// ParsePath parses a dot-path and checks it against the record shape.
// List fields (discharges, staffing arrays) are addressed whole; indexing
// into them is rejected, matching the remote store's partial-update rules.
func ParsePath(raw string) (Path, error) {
	if raw == "" {
		return Path{}, fmt.Errorf("%w: empty path", ErrBadPath)
	}

	parts := strings.Split(raw, ".")
	segs := make([]Segment, 0, len(parts))
	cur := recordShape

	for i, part := range parts {
		if part == "" {
			return Path{}, fmt.Errorf("%w: empty segment in %q", ErrBadPath, raw)
		}
		switch {
		case cur.fields != nil:
			next, ok := cur.fields[part]
			if !ok {
				return Path{}, fmt.Errorf("%w: unknown field %q in %q", ErrBadPath, part, raw)
			}
			segs = append(segs, Segment{Name: part, Kind: KindField})
			cur = next
		case cur.keyOf != nil:
			segs = append(segs, Segment{Name: part, Kind: KindKey})
			cur = cur.keyOf
		default:
			return Path{}, fmt.Errorf("%w: cannot traverse into %q at segment %d of %q",
				ErrBadPath, parts[i-1], i, raw)
		}
	}

	return Path{raw: raw, segs: segs}, nil
}

// enginePath renders the path for the JSON engine, escaping characters the
// engine treats specially inside key segments.
func (p Path) enginePath() string {
	var b strings.Builder
	for i, seg := range p.segs {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(escapeSegment(seg.Name))
	}
	return b.String()
}

func escapeSegment(s string) string {
	if !strings.ContainsAny(s, `*?\|#@.`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '\\', '|', '#', '@', '.':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
