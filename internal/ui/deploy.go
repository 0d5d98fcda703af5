package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/agentdeploy/internal/deploy"
)

// DeployDisplay turns orchestrator events into phase lines. Pass Observe to
// deploy.WithObserver.
type DeployDisplay struct {
	pd      *PhaseDisplay
	current deploy.State
	since   time.Time
	active  bool
}

// NewDeployDisplay creates a display writing to w.
func NewDeployDisplay(w io.Writer) *DeployDisplay {
	return &DeployDisplay{pd: NewPhaseDisplay(w)}
}

// Observe handles one event. Entering a state completes the previous one;
// the final event completes or fails the last.
func (d *DeployDisplay) Observe(ev deploy.Event) {
	if ev.Outcome == nil {
		d.finishCurrent(ev.At)
		d.current, d.since, d.active = ev.State, ev.At, true
		d.pd.RenderProgress(ev.State.Label())
		return
	}

	out := ev.Outcome
	if !out.Success {
		if d.active {
			d.pd.RenderFailed(d.current.Label(), ev.At.Sub(d.since))
			d.active = false
		}
		return
	}
	d.finishCurrent(ev.At)
	if out.State == deploy.StateAlreadyRunning {
		d.pd.RenderSkipped("Install", "already running")
	}
}

func (d *DeployDisplay) finishCurrent(at time.Time) {
	if d.active {
		d.pd.RenderSuccess(d.current.Label(), at.Sub(d.since))
		d.active = false
	}
}

// RenderOutcome formats the final result of a deployment. Lines after the
// first, such as a log tail, are indented and muted.
func RenderOutcome(out deploy.Outcome) string {
	symbol, color := SymbolSuccess, ColorSuccess
	if !out.Success {
		symbol, color = SymbolFail, ColorError
	}
	headStyle := lipgloss.NewStyle().Foreground(color)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	lines := strings.Split(strings.TrimRight(out.Message, "\n"), "\n")
	var sb strings.Builder
	sb.WriteString(headStyle.Render(symbol + " " + lines[0]))
	sb.WriteString(" ")
	sb.WriteString(mutedStyle.Render(fmt.Sprintf("(%s, %s)", out.Host, formatDuration(out.Duration()))))
	sb.WriteString("\n")
	for _, line := range lines[1:] {
		sb.WriteString("    ")
		sb.WriteString(mutedStyle.Render(line))
		sb.WriteString("\n")
	}
	if !out.Success && out.Code != "" {
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("  stopped in %s [%s], attempt %s", out.State, out.Code, out.AttemptID)))
		sb.WriteString("\n")
	}
	return sb.String()
}
