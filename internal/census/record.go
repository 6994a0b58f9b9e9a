package census

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DateLayout is the canonical form of a census date key. Keys sort
// lexicographically in chronological order, which the storage tiers rely on.
const DateLayout = "2006-01-02"

// Canonical staffing array sizes. Persisted records always carry exactly
// this many entries per shift; unfilled positions are empty strings.
const (
	NursesPerShift = 2
	TensPerShift   = 3
)

// Record is the complete census state for one ward and one calendar date.
// Exactly one Record exists per date per storage tier.
type Record struct {
	// ===== Identity & Versioning =====
	Date        string    `json:"date"`
	LastUpdated time.Time `json:"lastUpdated"`

	// ===== Bed Occupancy =====
	Beds map[string]*BedSlot `json:"beds"`

	// ===== Patient Movements =====
	Discharges         []Movement `json:"discharges"`
	Transfers          []Movement `json:"transfers"`
	DayHospitalization []Movement `json:"dayHospitalization"`

	// ===== Shift Staffing =====
	NursesDayShift   []string `json:"nursesDayShift"`
	NursesNightShift []string `json:"nursesNightShift"`
	TensDayShift     []string `json:"tensDayShift"`
	TensNightShift   []string `json:"tensNightShift"`

	// ===== Extra Capacity =====
	ActiveExtraBeds []string `json:"activeExtraBeds"`

	// ===== Handoff Summary (optional) =====
	HandoffNovedadesDayShift   string     `json:"handoffNovedadesDayShift,omitempty"`
	HandoffNovedadesNightShift string     `json:"handoffNovedadesNightShift,omitempty"`
	MedicalHandoffDoctor       string     `json:"medicalHandoffDoctor,omitempty"`
	MedicalHandoffSentAt       string     `json:"medicalHandoffSentAt,omitempty"`
	MedicalSignature           *Signature `json:"medicalSignature,omitempty"`
}

// BedSlot is one bed's occupancy state. A slot is either empty (no patient
// name, not blocked) or occupied; blocked and occupied are mutually exclusive
// in normal operation but the type does not hard-enforce it.
type BedSlot struct {
	PatientName     string                 `json:"patientName,omitempty"`
	PatientID       string                 `json:"patientId,omitempty"`
	AdmittedAt      string                 `json:"admittedAt,omitempty"`
	Diagnosis       string                 `json:"diagnosis,omitempty"`
	AttendingDoctor string                 `json:"attendingDoctor,omitempty"`
	CudyrScore      string                 `json:"cudyrScore,omitempty"`
	Blocked         bool                   `json:"blocked,omitempty"`
	BlockReason     string                 `json:"blockReason,omitempty"`
	DeviceDetails   map[string]DeviceEntry `json:"deviceDetails,omitempty"`
	NotesDayShift   string                 `json:"notesDayShift,omitempty"`
	NotesNightShift string                 `json:"notesNightShift,omitempty"`
}

// DeviceEntry tracks one invasive device on a patient (catheter, line, tube).
type DeviceEntry struct {
	InstalledAt string `json:"installedAt,omitempty"`
	RemovedAt   string `json:"removedAt,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Movement is a shared shape for discharges, transfers, and day-surgery
// admissions.
type Movement struct {
	PatientName string `json:"patientName"`
	Bed         string `json:"bed,omitempty"`
	Destination string `json:"destination,omitempty"`
	Time        string `json:"time,omitempty"`
	Note        string `json:"note,omitempty"`
}

// Signature is the medical handoff sign-off.
type Signature struct {
	Doctor    string `json:"doctor"`
	SignedAt  string `json:"signedAt,omitempty"`
	ImageData string `json:"imageData,omitempty"`
}

// ParseDate validates a date key and returns its time value (UTC midnight).
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid census date %q (want YYYY-MM-DD): %w", date, err)
	}
	return t, nil
}

// FormatDate renders a time as a census date key.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Occupied reports whether the slot holds a patient.
func (s *BedSlot) Occupied() bool {
	return s != nil && s.PatientName != ""
}

// Empty reports whether the slot is free for admission.
func (s *BedSlot) Empty() bool {
	return s == nil || (s.PatientName == "" && !s.Blocked)
}

// Clone returns a deep copy of the slot.
func (s *BedSlot) Clone() *BedSlot {
	if s == nil {
		return nil
	}
	out := *s
	if s.DeviceDetails != nil {
		out.DeviceDetails = make(map[string]DeviceEntry, len(s.DeviceDetails))
		for name, dev := range s.DeviceDetails {
			out.DeviceDetails[name] = dev
		}
	}
	return &out
}

// Clone returns a deep copy of the record. Mutating the copy never touches
// the original; the sync layers depend on this for optimistic snapshots.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Beds = make(map[string]*BedSlot, len(r.Beds))
	for id, slot := range r.Beds {
		out.Beds[id] = slot.Clone()
	}
	out.Discharges = append([]Movement(nil), r.Discharges...)
	out.Transfers = append([]Movement(nil), r.Transfers...)
	out.DayHospitalization = append([]Movement(nil), r.DayHospitalization...)
	out.NursesDayShift = append([]string(nil), r.NursesDayShift...)
	out.NursesNightShift = append([]string(nil), r.NursesNightShift...)
	out.TensDayShift = append([]string(nil), r.TensDayShift...)
	out.TensNightShift = append([]string(nil), r.TensNightShift...)
	out.ActiveExtraBeds = append([]string(nil), r.ActiveExtraBeds...)
	if r.MedicalSignature != nil {
		sig := *r.MedicalSignature
		out.MedicalSignature = &sig
	}
	return &out
}

// Validate checks that the record has valid field values. Callers decoding
// external input should run SetDefaults first.
func (r *Record) Validate() error {
	if r.Date == "" {
		return fmt.Errorf("date is required")
	}
	if _, err := ParseDate(r.Date); err != nil {
		return err
	}
	if r.Beds == nil {
		return fmt.Errorf("beds map is required")
	}
	if len(r.NursesDayShift) != NursesPerShift || len(r.NursesNightShift) != NursesPerShift {
		return fmt.Errorf("nurse shift arrays must have %d entries", NursesPerShift)
	}
	if len(r.TensDayShift) != TensPerShift || len(r.TensNightShift) != TensPerShift {
		return fmt.Errorf("tens shift arrays must have %d entries", TensPerShift)
	}
	return nil
}

// SetDefaults normalizes optional collections so every record carries the
// canonical shape: non-nil maps and lists, staffing arrays at their fixed
// sizes. Existing values are preserved.
func (r *Record) SetDefaults() {
	if r.Beds == nil {
		r.Beds = make(map[string]*BedSlot)
	}
	for id, slot := range r.Beds {
		if slot == nil {
			r.Beds[id] = &BedSlot{}
		}
	}
	if r.Discharges == nil {
		r.Discharges = []Movement{}
	}
	if r.Transfers == nil {
		r.Transfers = []Movement{}
	}
	if r.DayHospitalization == nil {
		r.DayHospitalization = []Movement{}
	}
	r.NursesDayShift = padShift(r.NursesDayShift, NursesPerShift)
	r.NursesNightShift = padShift(r.NursesNightShift, NursesPerShift)
	r.TensDayShift = padShift(r.TensDayShift, TensPerShift)
	r.TensNightShift = padShift(r.TensNightShift, TensPerShift)
	if r.ActiveExtraBeds == nil {
		r.ActiveExtraBeds = []string{}
	}
}

func padShift(names []string, size int) []string {
	if len(names) > size {
		return names[:size]
	}
	for len(names) < size {
		names = append(names, "")
	}
	return names
}

// NewBlankRecord builds an empty record for a date, seeding one empty slot
// per standard bed in the layout. LastUpdated stays zero until first save.
func NewBlankRecord(date string, layout *Layout) *Record {
	rec := &Record{
		Date: date,
		Beds: make(map[string]*BedSlot, len(layout.Beds)),
	}
	for _, id := range layout.Beds {
		rec.Beds[id] = &BedSlot{}
	}
	rec.SetDefaults()
	return rec
}

// Stats summarizes one record for wallboards and handoff reports.
type Stats struct {
	TotalBeds  int `json:"totalBeds"`
	Occupied   int `json:"occupied"`
	Blocked    int `json:"blocked"`
	Free       int `json:"free"`
	ExtraBeds  int `json:"extraBeds"`
	Devices    int `json:"devices"`
	Discharges int `json:"discharges"`
	Transfers  int `json:"transfers"`
	DaySurgery int `json:"daySurgery"`
}

// Stats computes occupancy counts for the record.
func (r *Record) Stats() Stats {
	st := Stats{
		TotalBeds:  len(r.Beds),
		ExtraBeds:  len(r.ActiveExtraBeds),
		Discharges: len(r.Discharges),
		Transfers:  len(r.Transfers),
		DaySurgery: len(r.DayHospitalization),
	}
	for _, slot := range r.Beds {
		switch {
		case slot.Occupied():
			st.Occupied++
			st.Devices += len(slot.DeviceDetails)
		case slot != nil && slot.Blocked:
			st.Blocked++
		default:
			st.Free++
		}
	}
	return st
}

// Filename returns the canonical filename for this record: {date}.json
func (r *Record) Filename() string {
	return r.Date + ".json"
}

// ReadRecordFile reads and parses a record JSON file from the given path.
func ReadRecordFile(path string) (*Record, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to read record file %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse record file %s: %w", path, err)
	}
	rec.SetDefaults()

	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record file %s: %w", path, err)
	}
	return &rec, nil
}

// WriteRecordFile writes a record to dir/{date}.json atomically via a temp
// file rename, with pretty-printed formatting.
func WriteRecordFile(dir string, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid record: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create records directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.Date, err)
	}

	path := filepath.Join(dir, rec.Filename())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
