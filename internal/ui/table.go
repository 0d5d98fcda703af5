package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StatusTableRow is one host in the connection check table.
type StatusTableRow struct {
	OK      bool
	Host    string // configured name, or the address again
	Address string
	Detail  string // latency or failure message
}

// RenderStatusTable renders connection check results.
func RenderStatusTable(rows []StatusTableRow) string {
	if len(rows) == 0 {
		return "No hosts to check\n"
	}

	successStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ColorError)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	var sb strings.Builder
	sb.WriteString(header("  STATUS   " + padRight("HOST", 17) + padRight("ADDRESS", 22) + "RESULT"))

	for _, row := range rows {
		icon := successStyle.Render(SymbolComplete)
		detail := mutedStyle.Render(row.Detail)
		if !row.OK {
			icon = errorStyle.Render(SymbolFail)
			detail = errorStyle.Render(row.Detail)
		}
		sb.WriteString("  " + icon + "        " + padRight(row.Host, 17) + padRight(row.Address, 22) + detail + "\n")
	}
	return sb.String()
}

// HistoryRow is one attempt in the history table.
type HistoryRow struct {
	When     string
	OK       bool
	State    string
	Duration string
	Message  string // first line only
}

// RenderHistoryTable renders recorded attempts, newest first.
func RenderHistoryTable(address string, rows []HistoryRow) string {
	if len(rows) == 0 {
		return "No deployments recorded for " + address + "\n"
	}

	successStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ColorError)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	var sb strings.Builder
	sb.WriteString(header("  " + padRight("WHEN", 22) + "   " + padRight("STATE", 22) + padRight("TOOK", 8) + "MESSAGE"))
	for _, row := range rows {
		icon := successStyle.Render(SymbolSuccess)
		if !row.OK {
			icon = errorStyle.Render(SymbolFail)
		}
		msg, _, _ := strings.Cut(row.Message, "\n")
		sb.WriteString("  " + padRight(mutedStyle.Render(row.When), 22) + " " + icon + " " +
			padRight(row.State, 22) + padRight(mutedStyle.Render(row.Duration), 8) + msg + "\n")
	}
	return sb.String()
}

// DoctorCheckRow represents a row in the doctor diagnostic table.
type DoctorCheckRow struct {
	Status     string // "pass", "warn", "fail"
	Category   string // Check category
	Message    string // Check result message
	Suggestion string // Suggestion for fixing (if failed)
}

// RenderDoctorTable renders doctor check results grouped by category, in
// the order categories first appear.
func RenderDoctorTable(rows []DoctorCheckRow) string {
	if len(rows) == 0 {
		return "No checks to display\n"
	}

	successStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ColorError)
	warnStyle := lipgloss.NewStyle().Foreground(ColorWarning)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)

	categories := make(map[string][]DoctorCheckRow)
	var order []string
	for _, row := range rows {
		if _, exists := categories[row.Category]; !exists {
			order = append(order, row.Category)
		}
		categories[row.Category] = append(categories[row.Category], row)
	}

	var sb strings.Builder
	for _, cat := range order {
		sb.WriteString(headerStyle.Render(cat) + "\n")

		for _, row := range categories[cat] {
			var icon string
			switch row.Status {
			case "pass":
				icon = successStyle.Render(SymbolComplete)
			case "warn":
				icon = warnStyle.Render(SymbolComplete)
			case "fail":
				icon = errorStyle.Render(SymbolFail)
			default:
				icon = mutedStyle.Render(SymbolPending)
			}
			sb.WriteString("  " + icon + " " + row.Message + "\n")

			if row.Suggestion != "" && row.Status != "pass" {
				sb.WriteString("    " + mutedStyle.Render(row.Suggestion) + "\n")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func header(s string) string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)
	return style.Render(s) + "\n"
}

// padRight pads a string to the specified visible width.
func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-visible)
}
