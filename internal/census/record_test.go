package census

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func sampleRecord(date string) *Record {
	rec := NewBlankRecord(date, DefaultLayout())
	rec.LastUpdated = time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	rec.Beds["R1"] = &BedSlot{
		PatientName: "Ana Reyes",
		PatientID:   "12.345.678-5",
		Diagnosis:   "NAC",
		CudyrScore:  "B3",
		DeviceDetails: map[string]DeviceEntry{
			"CVC": {InstalledAt: date, Note: "yugular derecha"},
		},
		NotesNightShift: "durmió tranquila",
	}
	rec.Beds["R4"] = &BedSlot{Blocked: true, BlockReason: "aislamiento"}
	rec.Discharges = []Movement{{PatientName: "P. Soto", Bed: "R2", Time: "11:30"}}
	rec.NursesDayShift = []string{"M. Torres", "C. Núñez"}
	return rec
}

func TestRecordValidate(t *testing.T) {
	rec := sampleRecord("2025-01-02")
	if err := rec.Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
}

func TestRecordValidate_BadDate(t *testing.T) {
	rec := sampleRecord("2025-01-02")
	rec.Date = "02-01-2025"
	if err := rec.Validate(); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestRecordValidate_ShiftSizes(t *testing.T) {
	rec := sampleRecord("2025-01-02")
	rec.TensDayShift = []string{"solo uno"}
	if err := rec.Validate(); err == nil {
		t.Fatal("expected error for short tens shift array")
	}
}

func TestSetDefaults_PadsShifts(t *testing.T) {
	rec := &Record{Date: "2025-01-02", NursesDayShift: []string{"M. Torres"}}
	rec.SetDefaults()

	if len(rec.NursesDayShift) != NursesPerShift {
		t.Errorf("nurses day shift not padded: got %d entries", len(rec.NursesDayShift))
	}
	if rec.NursesDayShift[0] != "M. Torres" {
		t.Errorf("existing entry lost: %q", rec.NursesDayShift[0])
	}
	if len(rec.TensNightShift) != TensPerShift {
		t.Errorf("tens night shift not padded: got %d entries", len(rec.TensNightShift))
	}
	if rec.Beds == nil || rec.Discharges == nil || rec.ActiveExtraBeds == nil {
		t.Error("collections should be non-nil after SetDefaults")
	}
}

func TestRecordClone_DeepCopy(t *testing.T) {
	orig := sampleRecord("2025-01-02")
	clone := orig.Clone()

	if !reflect.DeepEqual(orig, clone) {
		t.Fatal("clone differs from original")
	}

	clone.Beds["R1"].PatientName = "otro paciente"
	clone.Beds["R1"].DeviceDetails["CVC"] = DeviceEntry{Note: "cambiado"}
	clone.Discharges[0].Bed = "R9"
	clone.NursesDayShift[0] = "reemplazo"

	if orig.Beds["R1"].PatientName != "Ana Reyes" {
		t.Error("mutating clone changed original slot")
	}
	if orig.Beds["R1"].DeviceDetails["CVC"].Note != "yugular derecha" {
		t.Error("mutating clone changed original device map")
	}
	if orig.Discharges[0].Bed != "R2" {
		t.Error("mutating clone changed original movements")
	}
	if orig.NursesDayShift[0] != "M. Torres" {
		t.Error("mutating clone changed original staffing")
	}
}

func TestBedSlotStates(t *testing.T) {
	var nilSlot *BedSlot
	if nilSlot.Occupied() || !nilSlot.Empty() {
		t.Error("nil slot should be empty and unoccupied")
	}

	occupied := &BedSlot{PatientName: "Ana Reyes"}
	if !occupied.Occupied() || occupied.Empty() {
		t.Error("slot with patient should be occupied")
	}

	blocked := &BedSlot{Blocked: true}
	if blocked.Occupied() || blocked.Empty() {
		t.Error("blocked slot should be neither occupied nor empty")
	}
}

func TestRecordStats(t *testing.T) {
	rec := sampleRecord("2025-01-02")
	st := rec.Stats()

	if st.TotalBeds != 12 {
		t.Errorf("expected 12 beds, got %d", st.TotalBeds)
	}
	if st.Occupied != 1 {
		t.Errorf("expected 1 occupied, got %d", st.Occupied)
	}
	if st.Blocked != 1 {
		t.Errorf("expected 1 blocked, got %d", st.Blocked)
	}
	if st.Free != 10 {
		t.Errorf("expected 10 free, got %d", st.Free)
	}
	if st.Devices != 1 {
		t.Errorf("expected 1 device, got %d", st.Devices)
	}
	if st.Discharges != 1 {
		t.Errorf("expected 1 discharge, got %d", st.Discharges)
	}
}

func TestReadWriteRecordFile(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord("2025-01-02")

	if err := WriteRecordFile(dir, rec); err != nil {
		t.Fatalf("WriteRecordFile failed: %v", err)
	}

	got, err := ReadRecordFile(filepath.Join(dir, "2025-01-02.json"))
	if err != nil {
		t.Fatalf("ReadRecordFile failed: %v", err)
	}
	if !reflect.DeepEqual(rec, got) {
		t.Error("record changed across file round trip")
	}
}

func TestWriteRecordFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	rec := sampleRecord("2025-01-02")
	rec.Date = ""
	if err := WriteRecordFile(dir, rec); err == nil {
		t.Fatal("expected write of invalid record to fail")
	}
}

func TestReadRecordFile_Corrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2025-01-02.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadRecordFile(path); err == nil {
		t.Fatal("expected error for corrupt record file")
	}
}

func TestParseDate(t *testing.T) {
	if _, err := ParseDate("2025-01-02"); err != nil {
		t.Fatalf("valid date rejected: %v", err)
	}
	for _, bad := range []string{"", "2025/01/02", "02-01-2025", "2025-13-01"} {
		if _, err := ParseDate(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
