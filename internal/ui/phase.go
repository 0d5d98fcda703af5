package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// PhaseDisplay renders step status to an output writer.
type PhaseDisplay struct {
	w io.Writer
	// live is set when w is a terminal: progress lines are drawn and then
	// overwritten in place.
	live bool
}

// NewPhaseDisplay creates a new phase display writing to w. Progress lines
// are only drawn when w is a terminal.
func NewPhaseDisplay(w io.Writer) *PhaseDisplay {
	return &PhaseDisplay{w: w, live: IsTerminal(w)}
}

// RenderProgress renders a step in progress.
// Shows: ◐ Upload package...
func (pd *PhaseDisplay) RenderProgress(name string) {
	if !pd.live {
		return
	}
	style := lipgloss.NewStyle().Foreground(ColorSecondary)
	fmt.Fprintf(pd.w, "\r%s %s...", style.Render(SymbolProgress), name)
}

// RenderSuccess renders a completed step.
// Shows: ● Connect (0.3s)
func (pd *PhaseDisplay) RenderSuccess(name string, duration time.Duration) {
	pd.render(SymbolComplete, ColorSuccess, name, formatDuration(duration))
}

// RenderFailed renders a failed step.
// Shows: ✗ Verify process (12.0s)
func (pd *PhaseDisplay) RenderFailed(name string, duration time.Duration) {
	pd.render(SymbolFail, ColorError, name, formatDuration(duration))
}

// RenderSkipped renders a skipped step.
// Shows: ⊘ Prepare directory (already running)
func (pd *PhaseDisplay) RenderSkipped(name string, reason string) {
	timing := ""
	if reason != "" {
		timing = "(" + reason + ")"
	}
	pd.render(SymbolSkipped, ColorWarning, name, timing)
}

func (pd *PhaseDisplay) render(symbol string, color lipgloss.Color, name, timing string) {
	pd.clearLine()
	fmt.Fprintln(pd.w, FormatPhase(symbol, color, name, timing))
}

// clearLine clears the current line (for overwriting progress output).
func (pd *PhaseDisplay) clearLine() {
	if pd.live {
		fmt.Fprint(pd.w, "\r"+strings.Repeat(" ", 80)+"\r")
	}
}

// FormatPhase returns a formatted phase line as a string.
func FormatPhase(symbol string, symbolColor lipgloss.Color, name string, timing string) string {
	symbolStyle := lipgloss.NewStyle().Foreground(symbolColor)
	timingStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	if timing == "" {
		return fmt.Sprintf("%s %s", symbolStyle.Render(symbol), name)
	}
	return fmt.Sprintf("%s %s %s", symbolStyle.Render(symbol), name, timingStyle.Render(timing))
}

// FormatDivider returns a divider line as a string.
func FormatDivider(width int) string {
	style := lipgloss.NewStyle().Foreground(ColorMuted)
	return style.Render(strings.Repeat("━", width))
}

func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}
