package census

// CloneForDate builds the record for a new date from a previous day's record,
// preserving ward continuity:
//
//   - occupied and blocked slots carry forward with identity, diagnosis,
//     attending doctor, admission date, block state, and the full device map
//   - the previous night-shift note lands in both of the new day's shift-note
//     fields, so the incoming day shift sees the overnight handoff
//   - CUDYR dependency scores clear (patients are re-scored every day)
//   - active extra beds stay active
//
// Per-day state (movements, staffing, handoff summary, signature) starts
// empty, and LastUpdated stays zero until the record is first saved.
func CloneForDate(prev *Record, date string, layout *Layout) *Record {
	rec := NewBlankRecord(date, layout)
	if prev == nil {
		return rec
	}

	rec.ActiveExtraBeds = append([]string(nil), prev.ActiveExtraBeds...)

	for id, slot := range prev.Beds {
		if !slot.Occupied() && !(slot != nil && slot.Blocked) {
			continue
		}
		carried := slot.Clone()
		carried.CudyrScore = ""
		carried.NotesDayShift = slot.NotesNightShift
		carried.NotesNightShift = slot.NotesNightShift
		rec.Beds[id] = carried
	}
	return rec
}
