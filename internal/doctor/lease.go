package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
)

// Pinger is a lease backend that can be probed. *lock.Redis satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LeaseCheck verifies the lease backend answers.
type LeaseCheck struct {
	Enabled bool
	Backend string
	Addr    string
	Pinger  Pinger // nil for the in-process backend
	Timeout time.Duration
}

func (c *LeaseCheck) Name() string     { return "lease_backend" }
func (c *LeaseCheck) Category() string { return CategoryLease }

func (c *LeaseCheck) Run() CheckResult {
	if !c.Enabled {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "Per-host leases are disabled",
			Suggestion: "Concurrent deployments to one host can collide; set lease.enabled",
		}
	}
	if c.Pinger == nil {
		return CheckResult{
			Name:    c.Name(),
			Status:  StatusPass,
			Message: fmt.Sprintf("%s leases (this process only)", c.Backend),
		}
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := c.Pinger.Ping(ctx); err != nil {
		suggestion := errors.SuggestionOf(err)
		if suggestion == "" {
			suggestion = "Check lease.redis_addr and that Redis is running"
		}
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s at %s unreachable: %s", c.Backend, c.Addr, errors.MessageOf(err)),
			Suggestion: suggestion,
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%s at %s", c.Backend, c.Addr),
	}
}

func (c *LeaseCheck) Fix() error {
	return nil
}
