package patch

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"wardsync/internal/census"
)

func testRecord() *census.Record {
	rec := census.NewBlankRecord("2025-01-02", census.DefaultLayout())
	rec.LastUpdated = time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	rec.Beds["R1"] = &census.BedSlot{
		PatientName: "Ana Reyes",
		PatientID:   "12.345.678-5",
		Diagnosis:   "NAC",
		CudyrScore:  "B3",
		DeviceDetails: map[string]census.DeviceEntry{
			"CVC": {InstalledAt: "2025-01-01", Note: "yugular derecha"},
		},
	}
	rec.Beds["R2"] = &census.BedSlot{PatientName: "Pedro Soto", CudyrScore: "C2"}
	return rec
}

func TestApply_SetsNestedField(t *testing.T) {
	rec := testRecord()
	out, err := Apply(rec, Patch{"beds.R1.diagnosis": "NAC grave"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.Beds["R1"].Diagnosis != "NAC grave" {
		t.Errorf("diagnosis = %q", out.Beds["R1"].Diagnosis)
	}
}

func TestApply_Idempotent(t *testing.T) {
	rec := testRecord()
	p := Patch{
		"beds.R1.cudyrScore":        "A1",
		"beds.R2.patientName":       nil,
		"handoffNovedadesDayShift":  "sin novedades",
		"beds.R3.deviceDetails.SNG": map[string]any{"installedAt": "2025-01-02"},
	}

	once, err := Apply(rec, p)
	if err != nil {
		t.Fatalf("first Apply failed: %v", err)
	}
	twice, err := Apply(once, p)
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Error("applying the same patch twice changed the result")
	}
}

func TestApply_Isolation(t *testing.T) {
	rec := testRecord()
	out, err := Apply(rec, Patch{"beds.R1.patientName": "María Díaz"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.Beds["R1"].PatientName != "María Díaz" {
		t.Fatalf("target not set: %q", out.Beds["R1"].PatientName)
	}

	// Reverting only the target field must reproduce the input exactly.
	out.Beds["R1"].PatientName = rec.Beds["R1"].PatientName
	if !reflect.DeepEqual(rec, out) {
		t.Error("patch altered fields outside its path")
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	rec := testRecord()
	before := rec.Clone()

	if _, err := Apply(rec, Patch{
		"beds.R1.patientName":            "María Díaz",
		"beds.R1.deviceDetails.CVC.note": "retirado",
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !reflect.DeepEqual(before, rec) {
		t.Error("Apply mutated its input record")
	}
}

func TestApply_AutoCreatesIntermediates(t *testing.T) {
	rec := testRecord()

	// R2 has no device map yet; R9 exists only as an empty layout slot.
	out, err := Apply(rec, Patch{
		"beds.R2.deviceDetails.Foley.installedAt": "2025-01-02",
		"beds.R9.deviceDetails.CVC.note":          "instalado hoy",
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if out.Beds["R2"].DeviceDetails["Foley"].InstalledAt != "2025-01-02" {
		t.Error("device map not auto-created on occupied slot")
	}
	if out.Beds["R9"].DeviceDetails["CVC"].Note != "instalado hoy" {
		t.Error("device map not auto-created on empty slot")
	}
}

func TestApply_CreatesMissingBedKey(t *testing.T) {
	rec := testRecord()
	out, err := Apply(rec, Patch{"beds.E1.patientName": "Rosa Garrido"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.Beds["E1"].PatientName != "Rosa Garrido" {
		t.Error("missing bed key not created")
	}
}

func TestApply_NullClearsField(t *testing.T) {
	rec := testRecord()
	rec.MedicalSignature = &census.Signature{Doctor: "Dr. Fuentes"}

	out, err := Apply(rec, Patch{
		"beds.R1.cudyrScore":        nil,
		"beds.R1.deviceDetails.CVC": nil,
		"medicalSignature":          nil,
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if out.Beds["R1"].CudyrScore != "" {
		t.Errorf("cudyrScore not cleared: %q", out.Beds["R1"].CudyrScore)
	}
	if _, ok := out.Beds["R1"].DeviceDetails["CVC"]; ok {
		t.Error("device entry not removed")
	}
	if out.MedicalSignature != nil {
		t.Error("signature not cleared")
	}
}

func TestApply_WholeListReplace(t *testing.T) {
	rec := testRecord()
	out, err := Apply(rec, Patch{
		"discharges": []census.Movement{{PatientName: "Pedro Soto", Bed: "R2", Time: "11:30"}},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(out.Discharges) != 1 || out.Discharges[0].Bed != "R2" {
		t.Errorf("discharges not replaced: %+v", out.Discharges)
	}
}

func TestApply_OverlappingLastWins(t *testing.T) {
	rec := testRecord()
	out, err := Apply(rec, Patch{
		"beds.R5":             map[string]any{"patientName": "Luis Vera", "diagnosis": "EPOC"},
		"beds.R5.patientName": "Luis Vera Ortiz",
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.Beds["R5"].PatientName != "Luis Vera Ortiz" {
		t.Errorf("more specific path should win: %q", out.Beds["R5"].PatientName)
	}
	if out.Beds["R5"].Diagnosis != "EPOC" {
		t.Errorf("broader path's other fields should remain: %q", out.Beds["R5"].Diagnosis)
	}
}

func TestApply_RejectsBadPath(t *testing.T) {
	rec := testRecord()
	before := rec.Clone()

	_, err := Apply(rec, Patch{
		"beds.R1.patientName": "ok",
		"beds.R1.typo":        "no",
	})
	if !errors.Is(err, ErrBadPath) {
		t.Fatalf("expected ErrBadPath, got %v", err)
	}
	if !reflect.DeepEqual(before, rec) {
		t.Error("failed patch must leave the record untouched")
	}
}

func TestApplyJSON_RawDocument(t *testing.T) {
	doc := []byte(`{"date":"2025-01-02","beds":{"R1":{"patientName":"Ana Reyes"}}}`)

	p := Patch{
		"beds.R1.cudyrScore": "B3",
		"beds.R1.blocked":    nil,
	}
	out, err := p.ApplyJSON(doc)
	if err != nil {
		t.Fatalf("ApplyJSON failed: %v", err)
	}

	if got := gjson.GetBytes(out, "beds.R1.cudyrScore").String(); got != "B3" {
		t.Errorf("cudyrScore = %q", got)
	}
	if got := gjson.GetBytes(out, "beds.R1.patientName").String(); got != "Ana Reyes" {
		t.Errorf("untouched field changed: %q", got)
	}
}

func TestGet(t *testing.T) {
	rec := testRecord()

	val, ok, err := Get(rec, "beds.R1.deviceDetails.CVC.note")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if val != "yugular derecha" {
		t.Errorf("Get = %v", val)
	}

	_, ok, err = Get(rec, "beds.R1.deviceDetails.Foley.note")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("Get should report missing value")
	}

	if _, _, err := Get(rec, "beds.R1.typo"); !errors.Is(err, ErrBadPath) {
		t.Errorf("expected ErrBadPath, got %v", err)
	}
}
