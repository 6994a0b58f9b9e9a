// Package handoff renders shift-change summaries from a census record. It
// produces the report text only; delivering it (mail, print) is the
// caller's problem.
package handoff

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"wardsync/internal/census"
	"wardsync/internal/patch"
)

// SentAtLayout is the timestamp form stored in medicalHandoffSentAt.
const SentAtLayout = time.RFC3339

// BuildReport renders a markdown handoff summary for rec. Standard beds
// follow the layout order, active extra beds come after them, and any bed
// present in the record but unknown to the layout is appended last so no
// patient silently drops off the report.
func BuildReport(rec *census.Record, layout *census.Layout) string {
	if layout == nil {
		layout = census.DefaultLayout()
	}

	var sb strings.Builder
	stats := rec.Stats()

	sb.WriteString(fmt.Sprintf("# Entrega de turno — %s — %s\n\n", layout.Name, rec.Date))

	sb.WriteString("## Censo\n")
	sb.WriteString(fmt.Sprintf("- Ocupadas: %d/%d\n", stats.Occupied, stats.TotalBeds))
	sb.WriteString(fmt.Sprintf("- Bloqueadas: %d\n", stats.Blocked))
	sb.WriteString(fmt.Sprintf("- Libres: %d\n", stats.Free))
	if stats.ExtraBeds > 0 {
		sb.WriteString(fmt.Sprintf("- Camas extra activas: %d\n", stats.ExtraBeds))
	}
	if stats.Devices > 0 {
		sb.WriteString(fmt.Sprintf("- Dispositivos invasivos: %d\n", stats.Devices))
	}
	sb.WriteString("\n")

	sb.WriteString("## Camas\n")
	for _, id := range reportOrder(rec, layout) {
		writeBedLine(&sb, id, rec.Beds[id])
	}
	sb.WriteString("\n")

	writeMovements(&sb, "Egresos", rec.Discharges)
	writeMovements(&sb, "Traslados", rec.Transfers)
	writeMovements(&sb, "Hospitalización diurna", rec.DayHospitalization)

	writeStaffing(&sb, rec)

	if rec.HandoffNovedadesDayShift != "" || rec.HandoffNovedadesNightShift != "" {
		sb.WriteString("## Novedades\n")
		if rec.HandoffNovedadesDayShift != "" {
			sb.WriteString(fmt.Sprintf("- Día: %s\n", rec.HandoffNovedadesDayShift))
		}
		if rec.HandoffNovedadesNightShift != "" {
			sb.WriteString(fmt.Sprintf("- Noche: %s\n", rec.HandoffNovedadesNightShift))
		}
		sb.WriteString("\n")
	}

	if rec.MedicalHandoffDoctor != "" {
		sb.WriteString(fmt.Sprintf("Entrega médica enviada por %s", rec.MedicalHandoffDoctor))
		if rec.MedicalHandoffSentAt != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", rec.MedicalHandoffSentAt))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// MarkSent returns the patch that records who sent the medical handoff and
// when. Apply it through the repository or controller like any other edit.
func MarkSent(doctor string, when time.Time) patch.Patch {
	return patch.Patch{
		"medicalHandoffDoctor": doctor,
		"medicalHandoffSentAt": when.UTC().Format(SentAtLayout),
	}
}

// reportOrder lists bed IDs in presentation order: layout beds, then the
// record's active extra beds, then any stragglers sorted by name.
func reportOrder(rec *census.Record, layout *census.Layout) []string {
	order := make([]string, 0, len(layout.Beds)+len(rec.ActiveExtraBeds))
	listed := make(map[string]bool)

	for _, id := range layout.Beds {
		order = append(order, id)
		listed[id] = true
	}
	for _, id := range rec.ActiveExtraBeds {
		if !listed[id] {
			order = append(order, id)
			listed[id] = true
		}
	}

	var extra []string
	for id := range rec.Beds {
		if !listed[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	return append(order, extra...)
}

func writeBedLine(sb *strings.Builder, id string, slot *census.BedSlot) {
	switch {
	case slot.Occupied():
		sb.WriteString(fmt.Sprintf("- **%s** %s", id, slot.PatientName))
		if slot.Diagnosis != "" {
			sb.WriteString(fmt.Sprintf(" — %s", slot.Diagnosis))
		}
		if slot.AttendingDoctor != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", slot.AttendingDoctor))
		}
		if slot.CudyrScore != "" {
			sb.WriteString(fmt.Sprintf(" [CUDYR %s]", slot.CudyrScore))
		}
		sb.WriteString("\n")
		writeDevices(sb, slot.DeviceDetails)
		if slot.NotesDayShift != "" {
			sb.WriteString(fmt.Sprintf("  - Día: %s\n", slot.NotesDayShift))
		}
		if slot.NotesNightShift != "" {
			sb.WriteString(fmt.Sprintf("  - Noche: %s\n", slot.NotesNightShift))
		}
	case slot != nil && slot.Blocked:
		sb.WriteString(fmt.Sprintf("- **%s** BLOQUEADA", id))
		if slot.BlockReason != "" {
			sb.WriteString(fmt.Sprintf(": %s", slot.BlockReason))
		}
		sb.WriteString("\n")
	default:
		sb.WriteString(fmt.Sprintf("- **%s** libre\n", id))
	}
}

func writeDevices(sb *strings.Builder, devices map[string]census.DeviceEntry) {
	if len(devices) == 0 {
		return
	}
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dev := devices[name]
		sb.WriteString(fmt.Sprintf("  - %s", name))
		if dev.InstalledAt != "" {
			sb.WriteString(fmt.Sprintf(": instalado %s", dev.InstalledAt))
		}
		if dev.RemovedAt != "" {
			sb.WriteString(fmt.Sprintf(", retirado %s", dev.RemovedAt))
		}
		if dev.Note != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", dev.Note))
		}
		sb.WriteString("\n")
	}
}

func writeMovements(sb *strings.Builder, title string, moves []census.Movement) {
	if len(moves) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("## %s\n", title))
	for _, m := range moves {
		sb.WriteString(fmt.Sprintf("- %s", m.PatientName))
		if m.Bed != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", m.Bed))
		}
		if m.Destination != "" {
			sb.WriteString(fmt.Sprintf(" → %s", m.Destination))
		}
		if m.Time != "" {
			sb.WriteString(fmt.Sprintf(" a las %s", m.Time))
		}
		if m.Note != "" {
			sb.WriteString(fmt.Sprintf(" — %s", m.Note))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func writeStaffing(sb *strings.Builder, rec *census.Record) {
	day := staffLine(rec.NursesDayShift, rec.TensDayShift)
	night := staffLine(rec.NursesNightShift, rec.TensNightShift)
	if day == "" && night == "" {
		return
	}
	sb.WriteString("## Personal\n")
	if day != "" {
		sb.WriteString(fmt.Sprintf("- Día: %s\n", day))
	}
	if night != "" {
		sb.WriteString(fmt.Sprintf("- Noche: %s\n", night))
	}
	sb.WriteString("\n")
}

func staffLine(nurses, tens []string) string {
	var parts []string
	if names := nonEmpty(nurses); len(names) > 0 {
		parts = append(parts, "Enf. "+strings.Join(names, ", "))
	}
	if names := nonEmpty(tens); len(names) > 0 {
		parts = append(parts, "TENS "+strings.Join(names, ", "))
	}
	return strings.Join(parts, " / ")
}

func nonEmpty(names []string) []string {
	var out []string
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
