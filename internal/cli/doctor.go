package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/redis/go-redis/v9"
	"github.com/rileyhilliard/agentdeploy/internal/config"
	"github.com/rileyhilliard/agentdeploy/internal/doctor"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/lock"
	"github.com/rileyhilliard/agentdeploy/internal/ui"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
	"github.com/spf13/cobra"
)

var (
	doctorJSON   bool
	doctorFix    bool
	doctorRemote bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose config, package and host issues",
	Long: `Run diagnostic checks before deploying.

Checks:
  - Configuration validity
  - SSH host key policy and key files
  - The install package holds an executable agent
  - Lease backend and history database
  - Connectivity to every configured host
  - With --remote: required tools and install state on each host

Examples:
  agentdeploy doctor
  agentdeploy doctor --remote
  agentdeploy doctor --fix`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doctorCommand(cmd)
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output in JSON format")
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "attempt automatic fixes where possible")
	doctorCmd.Flags().BoolVar(&doctorRemote, "remote", false, "also inspect each reachable host")
	rootCmd.AddCommand(doctorCmd)
}

// DoctorOutput represents the JSON output for doctor command.
type DoctorOutput struct {
	Categories []doctor.CategoryResults `json:"categories"`
	Summary    SummaryOutput            `json:"summary"`
}

// SummaryOutput summarizes the check results.
type SummaryOutput struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	Fixable  int  `json:"fixable"`
	AllClear bool `json:"all_clear"`
}

// doctorCommand implements the doctor command logic.
func doctorCommand(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	// Load errors are reported by the schema check rather than aborting.
	cfgPath, _ := config.Find(Config())
	cfg := config.DefaultConfig()
	var loadErr error
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			loadErr = err
		} else {
			cfg = loaded
		}
	}
	if colorOverride() == "" {
		ui.ConfigureColor(cfg.Output.Color, out)
	}

	checks, cleanup := collectChecks(cfgPath, cfg, loadErr)
	defer cleanup()
	results := doctor.RunAll(checks)

	// Each host check may wait out a dial timeout.
	if len(cfg.Hosts) > 0 {
		hostChecks := doctor.NewHostsChecks(doctorTargets(cfg), newChecker(cfg, nil))
		checks = append(checks, hostChecks...)
		results = append(results, doctor.RunAllParallel(hostChecks)...)
	}

	if doctorRemote {
		clients := connectRemote(cfg)
		defer closeClients(clients)
		remoteChecks := doctor.NewRemoteChecks(clients, deployOptions(cfg).Layout)
		checks = append(checks, remoteChecks...)
		results = append(results, doctor.RunAll(remoteChecks)...)
	}

	if doctorFix {
		results = attemptFixes(checks, results)
	}

	if doctorJSON {
		return outputDoctorJSON(out, checks, results)
	}
	return outputDoctorText(out, checks, results)
}

// collectChecks gathers the checks that run on this machine. The returned
// func releases anything the checks hold open.
func collectChecks(cfgPath string, cfg *config.Config, loadErr error) ([]doctor.Check, func()) {
	cleanup := func() {}
	var checks []doctor.Check

	checks = append(checks, doctor.NewConfigChecks(cfgPath, cfg, loadErr)...)
	checks = append(checks, doctor.NewSSHChecks(cfg)...)
	checks = append(checks, &doctor.ArtifactCheck{
		Root:      cfg.Artifact.Root,
		Path:      cfg.Artifact.Path,
		AgentName: cfg.Agent.Name,
	})

	lease := &doctor.LeaseCheck{
		Enabled: cfg.Lease.Enabled,
		Backend: cfg.Lease.Backend,
		Addr:    cfg.Lease.RedisAddr,
	}
	if cfg.Lease.Enabled && cfg.Lease.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Lease.RedisAddr})
		lease.Pinger = lock.NewRedis(client, lock.Config{Prefix: cfg.Lease.Prefix})
		cleanup = func() { client.Close() }
	}
	checks = append(checks, lease)

	checks = append(checks, &doctor.StoreCheck{Path: cfg.Store.Path})
	return checks, cleanup
}

// doctorTargets builds targets for every configured host without prompting.
// Passwords only come from the environment; an unreadable key file is left
// for the key file check to report.
func doctorTargets(cfg *config.Config) map[string]sshutil.Target {
	targets := make(map[string]sshutil.Target, len(cfg.Hosts))
	for name, h := range cfg.Hosts {
		t := sshutil.Target{Address: h.Address, Username: h.Username}
		if h.KeyFile != "" {
			if key, err := os.ReadFile(h.KeyFile); err == nil {
				t.Secret = string(key)
			}
		} else {
			t.Secret = os.Getenv(PasswordEnv)
		}
		targets[name] = t
	}
	return targets
}

// connectRemote opens a session to every configured host it can reach.
func connectRemote(cfg *config.Config) map[string]sshutil.SSHClient {
	clients := make(map[string]sshutil.SSHClient)
	opts := dialOptions(cfg)
	for name, target := range doctorTargets(cfg) {
		client, err := dialer(target, opts)
		if err == nil {
			clients[name] = client
		}
	}
	return clients
}

func closeClients(clients map[string]sshutil.SSHClient) {
	for _, client := range clients {
		client.Close()
	}
}

// attemptFixes tries to fix issues where possible.
func attemptFixes(checks []doctor.Check, results []doctor.CheckResult) []doctor.CheckResult {
	for i, result := range results {
		if result.Fixable && (result.Status == doctor.StatusFail || result.Status == doctor.StatusWarn) {
			if err := checks[i].Fix(); err == nil {
				// Re-run the check to see if it's fixed
				results[i] = checks[i].Run()
			}
		}
	}
	return results
}

// outputDoctorJSON outputs results in JSON format.
func outputDoctorJSON(w io.Writer, checks []doctor.Check, results []doctor.CheckResult) error {
	output := DoctorOutput{Categories: doctor.GroupResults(checks, results)}

	counts := doctor.CountByStatus(results)
	output.Summary = SummaryOutput{
		Pass:     counts[doctor.StatusPass],
		Warn:     counts[doctor.StatusWarn],
		Fail:     counts[doctor.StatusFail],
		Fixable:  doctor.FixableCount(results),
		AllClear: !doctor.HasIssues(results),
	}

	if !doctor.HasFailures(results) {
		return WriteJSONSuccess(w, output)
	}
	if err := WriteJSONFailure(w, output, &JSONError{
		Code:    errors.ErrConfig,
		Message: doctor.Summary(results),
	}); err != nil {
		return err
	}
	return errors.NewExitError(1)
}

// outputDoctorText outputs results in human-readable format.
func outputDoctorText(w io.Writer, checks []doctor.Check, results []doctor.CheckResult) error {
	successStyle := lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	errorStyle := lipgloss.NewStyle().Foreground(ui.ColorError)
	warnStyle := lipgloss.NewStyle().Foreground(ui.ColorWarning)
	mutedStyle := lipgloss.NewStyle().Foreground(ui.ColorMuted)
	headerStyle := lipgloss.NewStyle().Bold(true)

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("agentdeploy diagnostic report"))
	fmt.Fprintln(w)

	rows := make([]ui.DoctorCheckRow, 0, len(results))
	for i, r := range results {
		rows = append(rows, ui.DoctorCheckRow{
			Status:     r.Status.String(),
			Category:   checks[i].Category(),
			Message:    r.Message,
			Suggestion: r.Suggestion,
		})
	}
	fmt.Fprint(w, ui.RenderDoctorTable(rows))

	fmt.Fprintln(w, ui.FormatDivider(60))
	fmt.Fprintln(w)

	summary := doctor.Summary(results)
	switch {
	case !doctor.HasIssues(results):
		fmt.Fprintf(w, "%s %s\n", successStyle.Render(ui.SymbolSuccess), summary)
	case !doctor.HasFailures(results):
		fmt.Fprintf(w, "%s %s\n", warnStyle.Render(ui.SymbolComplete), summary)
	default:
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render(ui.SymbolFail), summary)
	}

	if fixable := doctor.FixableCount(results); fixable > 0 && !doctorFix {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Run with %s to attempt automatic fixes where possible.\n",
			mutedStyle.Render("--fix"))
	}
	fmt.Fprintln(w)

	if doctor.HasFailures(results) {
		return errors.NewExitError(1)
	}
	return nil
}
