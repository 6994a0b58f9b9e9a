package handoff

import (
	"strings"
	"testing"
	"time"

	"wardsync/internal/census"
	"wardsync/internal/patch"
)

func reportRecord() *census.Record {
	rec := census.NewBlankRecord("2026-03-14", census.DefaultLayout())
	rec.Beds["R1"] = &census.BedSlot{
		PatientName:     "Ana Reyes",
		Diagnosis:       "NAC",
		AttendingDoctor: "Dra. Fuentes",
		CudyrScore:      "B2",
		DeviceDetails: map[string]census.DeviceEntry{
			"CVC": {InstalledAt: "2026-03-10", Note: "subclavio derecho"},
			"SNG": {InstalledAt: "2026-03-12"},
		},
		NotesDayShift:   "ayunas desde las 00",
		NotesNightShift: "control de glicemia 06h",
	}
	rec.Beds["R2"] = &census.BedSlot{PatientName: "Pedro Soto", Diagnosis: "EPOC"}
	rec.Beds["R4"] = &census.BedSlot{Blocked: true, BlockReason: "filtración en el baño"}
	rec.Discharges = []census.Movement{
		{PatientName: "Luis Parra", Bed: "R6", Destination: "domicilio", Time: "11:30"},
	}
	rec.Transfers = []census.Movement{
		{PatientName: "Carmen Vidal", Bed: "R7", Destination: "UCI", Note: "desaturación"},
	}
	rec.NursesDayShift = []string{"M. Torres", "P. Rojas"}
	rec.TensDayShift = []string{"J. Díaz", "", ""}
	rec.NursesNightShift = []string{"A. Muñoz", ""}
	rec.HandoffNovedadesDayShift = "sin incidentes"
	return rec
}

func TestBuildReportHeaderAndCensus(t *testing.T) {
	report := BuildReport(reportRecord(), census.DefaultLayout())

	if !strings.HasPrefix(report, "# Entrega de turno — Medicina — 2026-03-14\n") {
		t.Errorf("unexpected header:\n%s", firstLines(report, 1))
	}
	for _, want := range []string{
		"- Ocupadas: 2/12",
		"- Bloqueadas: 1",
		"- Libres: 9",
		"- Dispositivos invasivos: 2",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("census section missing %q", want)
		}
	}
}

func TestBuildReportBedLines(t *testing.T) {
	report := BuildReport(reportRecord(), census.DefaultLayout())

	if !strings.Contains(report, "- **R1** Ana Reyes — NAC (Dra. Fuentes) [CUDYR B2]") {
		t.Errorf("occupied line wrong:\n%s", report)
	}
	if !strings.Contains(report, "- **R4** BLOQUEADA: filtración en el baño") {
		t.Errorf("blocked line wrong:\n%s", report)
	}
	if !strings.Contains(report, "- **R3** libre") {
		t.Errorf("free line wrong:\n%s", report)
	}
	if !strings.Contains(report, "  - CVC: instalado 2026-03-10 (subclavio derecho)") {
		t.Errorf("device line wrong:\n%s", report)
	}
	if !strings.Contains(report, "  - Día: ayunas desde las 00") {
		t.Errorf("day note missing:\n%s", report)
	}

	// Devices are listed alphabetically.
	if strings.Index(report, "CVC") > strings.Index(report, "SNG") {
		t.Error("devices not sorted")
	}
	// Beds follow layout order.
	if strings.Index(report, "**R1**") > strings.Index(report, "**R2**") {
		t.Error("beds not in layout order")
	}
}

func TestBuildReportMovementsAndStaffing(t *testing.T) {
	report := BuildReport(reportRecord(), census.DefaultLayout())

	if !strings.Contains(report, "## Egresos\n- Luis Parra (R6) → domicilio a las 11:30") {
		t.Errorf("discharge line wrong:\n%s", report)
	}
	if !strings.Contains(report, "## Traslados\n- Carmen Vidal (R7) → UCI — desaturación") {
		t.Errorf("transfer line wrong:\n%s", report)
	}
	if strings.Contains(report, "Hospitalización diurna") {
		t.Error("empty movement section should be omitted")
	}
	if !strings.Contains(report, "- Día: Enf. M. Torres, P. Rojas / TENS J. Díaz") {
		t.Errorf("day staffing wrong:\n%s", report)
	}
	if !strings.Contains(report, "- Noche: Enf. A. Muñoz") {
		t.Errorf("night staffing wrong:\n%s", report)
	}
	if !strings.Contains(report, "## Novedades\n- Día: sin incidentes") {
		t.Errorf("novedades missing:\n%s", report)
	}
}

func TestBuildReportUnknownBedStillListed(t *testing.T) {
	rec := reportRecord()
	rec.Beds["P9"] = &census.BedSlot{PatientName: "Rosa Leiva"}

	report := BuildReport(rec, census.DefaultLayout())
	if !strings.Contains(report, "- **P9** Rosa Leiva") {
		t.Errorf("bed outside the layout dropped from the report:\n%s", report)
	}
	// Unknown beds trail the layout's.
	if strings.Index(report, "**P9**") < strings.Index(report, "**R12**") {
		t.Error("unknown bed should come after layout beds")
	}
}

func TestBuildReportSentFooter(t *testing.T) {
	rec := reportRecord()
	rec.MedicalHandoffDoctor = "Dra. Fuentes"
	rec.MedicalHandoffSentAt = "2026-03-14T18:05:00Z"

	report := BuildReport(rec, census.DefaultLayout())
	if !strings.Contains(report, "Entrega médica enviada por Dra. Fuentes (2026-03-14T18:05:00Z)") {
		t.Errorf("sent footer missing:\n%s", report)
	}
}

func TestMarkSentPatch(t *testing.T) {
	when := time.Date(2026, 3, 14, 18, 5, 0, 0, time.FixedZone("CLT", -3*3600))
	p := MarkSent("Dra. Fuentes", when)

	if err := p.Validate(); err != nil {
		t.Fatalf("MarkSent produced an invalid patch: %v", err)
	}

	rec := census.NewBlankRecord("2026-03-14", census.DefaultLayout())
	updated, err := patch.Apply(rec, p)
	if err != nil {
		t.Fatalf("applying MarkSent patch failed: %v", err)
	}
	if updated.MedicalHandoffDoctor != "Dra. Fuentes" {
		t.Errorf("doctor not set: %q", updated.MedicalHandoffDoctor)
	}
	if updated.MedicalHandoffSentAt != "2026-03-14T21:05:00Z" {
		t.Errorf("sentAt should be UTC RFC3339: %q", updated.MedicalHandoffSentAt)
	}
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
