package census

import "time"

// DemoRecord builds a populated sample record for demo mode, so the UI and
// wallboard have realistic data without touching any real store.
func DemoRecord(date string, layout *Layout) *Record {
	rec := NewBlankRecord(date, layout)
	rec.LastUpdated = mustDate(date).Add(8 * time.Hour)

	occupy := func(id string, slot *BedSlot) {
		if _, ok := rec.Beds[id]; ok {
			rec.Beds[id] = slot
		}
	}

	occupy("R1", &BedSlot{
		PatientName:     "Ana Reyes",
		PatientID:       "12.345.678-5",
		AdmittedAt:      date,
		Diagnosis:       "Neumonía adquirida en comunidad",
		AttendingDoctor: "Dr. Fuentes",
		CudyrScore:      "B3",
		DeviceDetails: map[string]DeviceEntry{
			"CVC": {InstalledAt: date, Note: "yugular derecha"},
		},
		NotesDayShift: "Afebril, O2 2L",
	})
	occupy("R2", &BedSlot{
		PatientName:     "Pedro Soto",
		PatientID:       "9.876.543-2",
		AdmittedAt:      date,
		Diagnosis:       "ICC descompensada",
		AttendingDoctor: "Dra. Vidal",
		CudyrScore:      "C2",
	})
	occupy("R4", &BedSlot{
		Blocked:     true,
		BlockReason: "aislamiento de contacto",
	})

	rec.NursesDayShift = []string{"M. Torres", "C. Núñez"}
	rec.TensDayShift = []string{"J. Pinto", "L. Rojas", ""}
	rec.Transfers = []Movement{
		{PatientName: "R. Campos", Bed: "R7", Destination: "UCI", Time: "06:40"},
	}
	return rec
}

func mustDate(date string) time.Time {
	t, err := ParseDate(date)
	if err != nil {
		return time.Time{}
	}
	return t
}
