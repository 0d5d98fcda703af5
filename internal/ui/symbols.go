package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess  = "✓" // Deployment succeeded
	SymbolFail     = "✗" // Step or deployment failed
	SymbolPending  = "○" // Not reached
	SymbolProgress = "◐" // In progress
	SymbolComplete = "●" // Step done
	SymbolSkipped  = "⊘" // Step skipped
)
