package doctor

import (
	"context"
	"fmt"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/store"
)

// StoreCheck verifies the history database opens and migrates.
type StoreCheck struct {
	Path string
}

func (c *StoreCheck) Name() string     { return "store" }
func (c *StoreCheck) Category() string { return CategoryStore }

func (c *StoreCheck) Run() CheckResult {
	if c.Path == "" {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusWarn,
			Message: "Deployment history is disabled",
		}
	}

	s, err := store.Open(c.Path)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    errors.MessageOf(err),
			Suggestion: errors.SuggestionOf(err),
		}
	}
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    errors.MessageOf(err),
			Suggestion: errors.SuggestionOf(err),
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("History at %s", c.Path),
	}
}

func (c *StoreCheck) Fix() error {
	return nil
}
