// Package census defines the ward census data model shared by every storage
// tier and by the sync engine.
//
// # Overview
//
// A Record captures the complete state of one ward for one calendar date: bed
// occupancy, the day's patient movements, shift staffing, and handoff notes.
// Records are snapshot-oriented with last-write-wins semantics: each write
// replaces the whole document and carries a LastUpdated timestamp that acts
// as the conflict-resolution clock.
//
// # Record Files
//
// Records serialize to flat JSON keyed by date, one document per date:
//
//	{
//	  "date": "2025-01-02",
//	  "lastUpdated": "2025-01-02T14:03:05.123Z",
//	  "beds": {"R1": {"patientName": "...", "cudyrScore": "B3"}},
//	  "discharges": [],
//	  "nursesDayShift": ["", ""],
//	  "tensDayShift": ["", "", ""]
//	}
//
// Optional summary fields (handoff notes, medical signature) are omitted when
// absent. ReadRecordFile and WriteRecordFile handle the {date}.json file
// convention used by the intake spool and by test fixtures.
//
// # Ward Layout
//
// The set of physical beds is configuration, not code: a Layout (decoded from
// ward.toml) lists the standard bed identifiers plus the extra beds that can
// be activated on crowded days. Blank records seed one empty slot per
// standard bed; extra-bed slots appear only while active.
//
// # Day Continuity
//
// CloneForDate builds the next day's record from the previous one: occupied
// and blocked slots carry forward with their device map and the night-shift
// note (copied into both shift-note fields), CUDYR dependency scores reset
// for re-scoring, and per-day lists (movements, staffing, handoff summary)
// start empty.
package census
