package doctor

import (
	"fmt"

	"github.com/rileyhilliard/agentdeploy/internal/artifact"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
)

// ArtifactCheck verifies the install package exists and would start the agent.
type ArtifactCheck struct {
	Root      string
	Path      string
	AgentName string
	Report    artifact.Report // Populated after Run()
}

func (c *ArtifactCheck) Name() string     { return "artifact" }
func (c *ArtifactCheck) Category() string { return CategoryArtifact }

func (c *ArtifactCheck) Run() CheckResult {
	report, err := artifact.Inspect(c.Root, c.Path, c.AgentName)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    errors.MessageOf(err),
			Suggestion: errors.SuggestionOf(err),
		}
	}
	c.Report = report

	if problem := report.Problem(c.AgentName); problem != "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: %s", report.Path, problem),
			Suggestion: fmt.Sprintf("Rebuild the package with an executable %s at its top level", c.AgentName),
		}
	}

	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%s (%s, %d entries, blake3 %s)", report.Path, humanSize(report.Size), report.Entries, short(report.Digest)),
	}
}

func (c *ArtifactCheck) Fix() error {
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
