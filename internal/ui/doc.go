// Package ui renders agentdeploy's terminal output with Lip Gloss.
//
// # Components
//
//	PhaseDisplay   - one line per completed step, with timing
//	DeployDisplay  - feeds orchestrator events into a PhaseDisplay
//	RenderOutcome  - the final result of a deployment, with its log tail
//	RenderCheckTable, RenderHistoryTable, RenderDoctorTable
//
// # Color Scheme
//
// Colors are ANSI codes for broad terminal compatibility:
//
//	ColorSuccess   (green)  - Successful steps
//	ColorError     (red)    - Failures
//	ColorWarning   (yellow) - Warnings and skipped steps
//	ColorInfo      (cyan)   - Addresses and paths
//	ColorMuted     (gray)   - Timing, log tails, suggestions
//	ColorSecondary (blue)   - The step in progress
//
// ConfigureColor picks the profile for --color / output.color; "never" and
// non-terminal output get plain ASCII.
//
// # Symbols
//
//	SymbolSuccess  (checkmark)  - Deployment succeeded
//	SymbolFail     (X)          - Step or deployment failed
//	SymbolPending  (circle)     - Not reached
//	SymbolProgress (half-fill)  - In progress
//	SymbolComplete (filled)     - Step done
//	SymbolSkipped  (slashed)    - Step skipped
package ui
