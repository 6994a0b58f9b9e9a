// Package ui styles terminal output for the wardsync CLI. Styling is
// automatic: it switches itself off when stdout is not a terminal, when the
// terminal reports no color support, or when NO_COLOR is set, so command
// output stays pipeable.
package ui

import (
	"os"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "27", Dark: "39"})
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"})
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "124", Dark: "196"}).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "245", Dark: "241"})
	headerStyle = lipgloss.NewStyle().Bold(true)
)

var colorEnabled atomic.Bool

func init() {
	colorEnabled.Store(detectColor())
}

func detectColor() bool {
	if termenv.EnvNoColor() {
		return false
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.ColorProfile() != termenv.Ascii
}

// DisableColor switches styling off for the rest of the process. The root
// command calls this for --no-color.
func DisableColor() {
	colorEnabled.Store(false)
}

// ColorEnabled reports whether styling is active.
func ColorEnabled() bool {
	return colorEnabled.Load()
}

// Interactive reports whether both stdin and stdout are attached to a
// terminal. Confirmation prompts only run interactively.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled.Load() {
		return s
	}
	return style.Render(s)
}

// RenderAccent styles informational markers.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderPass styles success markers.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn styles warnings.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderError styles failure markers.
func RenderError(s string) string { return render(errorStyle, s) }

// RenderDim styles secondary detail.
func RenderDim(s string) string { return render(dimStyle, s) }

// RenderHeader styles section headers.
func RenderHeader(s string) string { return render(headerStyle, s) }
