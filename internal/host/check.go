package host

import (
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/logger"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
)

// ConnectionOutcome is the result of one connection check.
type ConnectionOutcome struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Bucket  Bucket          `json:"bucket"`
	Reason  ProbeFailReason `json:"-"`
	Address string          `json:"address"`
	Latency time.Duration   `json:"latency_ns"`
	Err     *ProbeError     `json:"-"`
}

// CheckRecorder observes finished checks. metrics.Recorder satisfies it.
type CheckRecorder interface {
	ConnectionChecked(bucket string)
}

// Checker runs connection checks.
type Checker struct {
	Dial     DialFunc
	Options  sshutil.DialOptions
	Log      logger.Logger
	Recorder CheckRecorder
}

// CheckConnection dials target with the given timeout, runs CheckCommand and
// closes the session. A zero timeout uses DefaultCheckTimeout.
func CheckConnection(dial DialFunc, target sshutil.Target, timeout time.Duration) ConnectionOutcome {
	c := &Checker{Dial: dial, Options: sshutil.DialOptions{Timeout: timeout}}
	return c.Check(target)
}

// Check verifies that target accepts a session and can run a command.
// Every failure is returned as an outcome with a user-facing message.
func (c *Checker) Check(target sshutil.Target) ConnectionOutcome {
	log := c.Log
	if log == nil {
		log = logger.Default()
	}
	dial := c.Dial
	if dial == nil {
		dial = sshutil.DefaultDialer
	}
	opts := c.Options
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCheckTimeout
	}

	start := time.Now()
	outcome := c.check(dial, target, opts)
	outcome.Address = target.Address
	outcome.Latency = time.Since(start)

	if outcome.Success {
		log.Info("connection check %s ok (%s)", target, outcome.Latency.Round(time.Millisecond))
	} else {
		log.Error("connection check %s failed: %s", target, outcome.Err)
	}
	if c.Recorder != nil {
		c.Recorder.ConnectionChecked(string(outcome.Bucket))
	}
	return outcome
}

func (c *Checker) check(dial DialFunc, target sshutil.Target, opts sshutil.DialOptions) ConnectionOutcome {
	client, err := dial(target, opts)
	if err != nil {
		return failed(target.Address, err)
	}
	defer client.Close()

	_, stderr, exitCode, err := client.Exec(CheckCommand)
	if err != nil {
		return failed(target.Address, err)
	}
	if exitCode != 0 {
		return failed(target.Address, errors.NewCommand("Check command failed", exitCode, string(stderr)))
	}
	return ConnectionOutcome{Success: true, Message: MsgConnected, Bucket: BucketOK}
}

func failed(address string, err error) ConnectionOutcome {
	pe := categorizeProbeError(address, err)
	return ConnectionOutcome{
		Message: FailureMessage(err, "Connection failed"),
		Bucket:  pe.Reason.Bucket(),
		Reason:  pe.Reason,
		Err:     pe,
	}
}

// CheckResult pairs a named host with its check outcome.
type CheckResult struct {
	Name    string
	Outcome ConnectionOutcome
}

// CheckAll checks each named target in order. Checks run sequentially so a
// slow or dead host doesn't trigger rate limits on the others.
func (c *Checker) CheckAll(names []string, targets map[string]sshutil.Target) []CheckResult {
	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		target, ok := targets[name]
		if !ok {
			results = append(results, CheckResult{Name: name, Outcome: failed("", errors.New(errors.ErrConfig,
				fmt.Sprintf("Host %q is not configured", name), ""))})
			continue
		}
		results = append(results, CheckResult{Name: name, Outcome: c.Check(target)})
	}
	return results
}

// Summary renders a one-line description of the outcome, with the finer
// failure reason for diagnostics.
func (o ConnectionOutcome) Summary() string {
	if o.Success {
		return fmt.Sprintf("%s (%s)", o.Message, o.Latency.Round(time.Millisecond))
	}
	if o.Reason == ProbeFailUnknown {
		return o.Message
	}
	return fmt.Sprintf("%s [%s]", strings.TrimSpace(o.Message), o.Reason)
}
