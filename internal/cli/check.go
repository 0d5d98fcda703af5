package cli

import (
	"fmt"
	"sort"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/host"
	"github.com/rileyhilliard/agentdeploy/internal/ui"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
	"github.com/spf13/cobra"
)

var (
	checkCreds   CredentialFlags
	checkTimeout string
	checkJSON    bool
)

var checkCmd = &cobra.Command{
	Use:   "check [host...]",
	Short: "Check that hosts accept an SSH session",
	Long: `Open a session to each host, run a trivial command and close it.

Failures are sorted into three kinds: bad credentials, a timeout, and
everything else. With no arguments every configured host is checked.

Examples:
  agentdeploy check
  agentdeploy check 10.0.0.12 --user ops
  agentdeploy check edge-1 --timeout 2s --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkCommand(cmd, args)
	},
}

func init() {
	AddCredentialFlags(checkCmd, &checkCreds)
	checkCmd.Flags().StringVar(&checkTimeout, "timeout", "", "connection timeout (e.g., 5s); default ssh.check_timeout")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(checkCmd)
}

// CheckOutput is one host in the JSON output of check.
type CheckOutput struct {
	Host      string `json:"host"`
	Address   string `json:"address"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Bucket    string `json:"bucket"`
	Reason    string `json:"reason,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

func checkCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return fail(out, checkJSON, err)
	}
	timeout, err := ParseTimeout(checkTimeout)
	if err != nil {
		return fail(out, checkJSON, err)
	}

	names := args
	if len(names) == 0 {
		for name := range cfg.Hosts {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	if len(names) == 0 {
		return fail(out, checkJSON, errors.New(errors.ErrConfig,
			"No hosts to check",
			"Name a host, or add one with 'agentdeploy host add'"))
	}

	targets := make(map[string]sshutil.Target, len(names))
	for _, name := range names {
		target, err := resolveTarget(cfg, name, checkCreds)
		if err != nil {
			return fail(out, checkJSON, err)
		}
		targets[name] = target
	}

	checker := newChecker(cfg, nil)
	if timeout > 0 {
		checker.Options.Timeout = timeout
	}
	results := checker.CheckAll(names, targets)

	allOK := true
	for _, r := range results {
		allOK = allOK && r.Outcome.Success
	}

	if checkJSON {
		data := make([]CheckOutput, 0, len(results))
		for _, r := range results {
			data = append(data, checkOutput(r, targets[r.Name]))
		}
		if allOK {
			return WriteJSONSuccess(out, data)
		}
		if err := WriteJSONFailure(out, data, failedChecksError(results)); err != nil {
			return err
		}
		return errors.NewExitError(1)
	}

	rows := make([]ui.StatusTableRow, 0, len(results))
	for _, r := range results {
		address := r.Outcome.Address
		if address == "" {
			address = targets[r.Name].Address
		}
		rows = append(rows, ui.StatusTableRow{
			OK:      r.Outcome.Success,
			Host:    r.Name,
			Address: address,
			Detail:  r.Outcome.Summary(),
		})
	}
	fmt.Fprint(out, ui.RenderStatusTable(rows))

	if !allOK {
		return errors.NewExitError(1)
	}
	return nil
}

func checkOutput(r host.CheckResult, target sshutil.Target) CheckOutput {
	o := r.Outcome
	address := o.Address
	if address == "" {
		address = target.Address
	}
	co := CheckOutput{
		Host:      r.Name,
		Address:   address,
		Success:   o.Success,
		Message:   o.Message,
		Bucket:    string(o.Bucket),
		LatencyMS: o.Latency.Milliseconds(),
	}
	if !o.Success {
		co.Reason = o.Reason.String()
	}
	return co
}

// failedChecksError describes the first failed check, and how many failed.
func failedChecksError(results []host.CheckResult) *JSONError {
	var first *host.CheckResult
	failed := 0
	for i := range results {
		if results[i].Outcome.Success {
			continue
		}
		failed++
		if first == nil {
			first = &results[i]
		}
	}
	if first == nil {
		return nil
	}

	code := errors.ErrNetwork
	switch first.Outcome.Bucket {
	case host.BucketAuth:
		code = errors.ErrAuth
	case host.BucketTimeout:
		code = errors.ErrTimeout
	}
	return &JSONError{
		Code:    code,
		Message: fmt.Sprintf("%s: %s", first.Name, first.Outcome.Message),
		Details: map[string]interface{}{"failed": failed, "total": len(results)},
	}
}
