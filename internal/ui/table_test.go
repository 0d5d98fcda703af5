package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderStatusTable(t *testing.T) {
	out := RenderStatusTable([]StatusTableRow{
		{OK: true, Host: "web1", Address: "10.0.0.5", Detail: "Connection succeeded (42ms)"},
		{OK: false, Host: "web2", Address: "10.0.0.6", Detail: "Authentication failed"},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, out, "● ")
	assert.Contains(t, out, "web1")
	assert.Contains(t, out, "Connection succeeded (42ms)")
	assert.Contains(t, out, SymbolFail)
	assert.Contains(t, out, "Authentication failed")

	assert.Equal(t, "No hosts to check\n", RenderStatusTable(nil))
}

func TestRenderHistoryTable(t *testing.T) {
	out := RenderHistoryTable("10.0.0.5", []HistoryRow{
		{When: "2026-03-01 12:00:00", OK: true, State: "success", Duration: "4.2s", Message: "nc_agent deployed successfully"},
		{When: "2026-02-28 09:10:00", OK: false, State: "dir_stale_check_log", Duration: "1.1s", Message: "/opt/nc_agent exists but nc_agent is not running. Recent log:\nboom"},
	})

	assert.Contains(t, out, "WHEN")
	assert.Contains(t, out, "nc_agent deployed successfully")
	assert.Contains(t, out, "Recent log:")
	assert.NotContains(t, out, "boom", "only the first line of a message is shown")
	assert.Equal(t, "No deployments recorded for 10.0.0.9\n", RenderHistoryTable("10.0.0.9", nil))
}

func TestRenderDoctorTable(t *testing.T) {
	out := RenderDoctorTable([]DoctorCheckRow{
		{Status: "pass", Category: "CONFIG", Message: "Config file: .agentdeploy.yaml"},
		{Status: "fail", Category: "ARTIFACT", Message: "Install package not found", Suggestion: "Build it first"},
		{Status: "warn", Category: "CONFIG", Message: "No hosts configured", Suggestion: "Add one"},
		{Status: "pass", Category: "ARTIFACT", Message: "ignored suggestion", Suggestion: "hidden"},
	})

	assert.Less(t, strings.Index(out, "CONFIG"), strings.Index(out, "ARTIFACT"))
	assert.Less(t, strings.Index(out, "No hosts configured"), strings.Index(out, "ARTIFACT"), "rows are grouped by category")
	assert.Contains(t, out, "    Build it first\n")
	assert.Contains(t, out, "    Add one\n")
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, "No checks to display\n", RenderDoctorTable(nil))
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", padRight("ab", 5))
	assert.Equal(t, "abcdef ", padRight("abcdef", 5))
}
