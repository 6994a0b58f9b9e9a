package patch

import (
	"errors"
	"testing"
)

func TestParsePath_Valid(t *testing.T) {
	tests := []struct {
		path  string
		kinds []SegmentKind
	}{
		{"beds", []SegmentKind{KindField}},
		{"beds.R1", []SegmentKind{KindField, KindKey}},
		{"beds.R1.patientName", []SegmentKind{KindField, KindKey, KindField}},
		{"beds.R1.deviceDetails", []SegmentKind{KindField, KindKey, KindField}},
		{"beds.R9.deviceDetails.CVC", []SegmentKind{KindField, KindKey, KindField, KindKey}},
		{"beds.R9.deviceDetails.CVC.note", []SegmentKind{KindField, KindKey, KindField, KindKey, KindField}},
		{"medicalSignature.doctor", []SegmentKind{KindField, KindField}},
		{"handoffNovedadesNightShift", []SegmentKind{KindField}},
		{"discharges", []SegmentKind{KindField}},
	}

	for _, tt := range tests {
		parsed, err := ParsePath(tt.path)
		if err != nil {
			t.Errorf("ParsePath(%q) failed: %v", tt.path, err)
			continue
		}
		segs := parsed.Segments()
		if len(segs) != len(tt.kinds) {
			t.Errorf("ParsePath(%q): got %d segments, want %d", tt.path, len(segs), len(tt.kinds))
			continue
		}
		for i, seg := range segs {
			if seg.Kind != tt.kinds[i] {
				t.Errorf("ParsePath(%q) segment %d: got %s, want %s", tt.path, i, seg.Kind, tt.kinds[i])
			}
		}
		if parsed.String() != tt.path {
			t.Errorf("ParsePath(%q).String() = %q", tt.path, parsed.String())
		}
	}
}

func TestParsePath_Rejects(t *testing.T) {
	bad := []string{
		"",
		".",
		"beds.",
		".beds",
		"beds..R1",
		"camas",                              // unknown root field
		"date",                               // identity is system-managed
		"lastUpdated",                        // versioning is system-managed
		"beds.R1.nombrePaciente",             // unknown slot field
		"beds.R1.patientName.extra",          // traverses through a scalar
		"discharges.0",                       // lists are addressed whole
		"nursesDayShift.0",                   // lists are addressed whole
		"beds.R1.deviceDetails.CVC.inserted", // unknown device field
		"medicalSignature.witness",           // unknown signature field
	}

	for _, path := range bad {
		if _, err := ParsePath(path); err == nil {
			t.Errorf("ParsePath(%q) should fail", path)
		} else if !errors.Is(err, ErrBadPath) {
			t.Errorf("ParsePath(%q) error not ErrBadPath: %v", path, err)
		}
	}
}

func TestEnginePath_EscapesSpecials(t *testing.T) {
	parsed, err := ParsePath("beds.R1.deviceDetails.VVP*2.note")
	if err != nil {
		t.Fatalf("ParsePath failed: %v", err)
	}
	got := parsed.enginePath()
	want := `beds.R1.deviceDetails.VVP\*2.note`
	if got != want {
		t.Errorf("enginePath = %q, want %q", got, want)
	}
}

func TestSegmentKindString(t *testing.T) {
	if KindField.String() != "field" || KindKey.String() != "key" {
		t.Error("unexpected SegmentKind strings")
	}
	if SegmentKind(9).String() != "SegmentKind(9)" {
		t.Errorf("unexpected fallback string: %s", SegmentKind(9))
	}
}
