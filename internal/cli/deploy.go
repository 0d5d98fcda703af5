package cli

import (
	"fmt"

	"github.com/rileyhilliard/agentdeploy/internal/deploy"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/logger"
	"github.com/rileyhilliard/agentdeploy/internal/ui"
	"github.com/spf13/cobra"
)

var (
	deployCreds CredentialFlags
	deployForce bool
	deployJSON  bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy <host>",
	Short: "Install and start the agent on a host",
	Long: `Upload the install package to a host, extract it into the install
directory, start the agent and verify it is running and listening.

A host where the agent is already running is left alone. A host with an
install directory but no running agent fails with the tail of its log,
unless --force is given, in which case the directory is rebuilt.

Examples:
  agentdeploy deploy edge-1
  agentdeploy deploy 10.0.0.12 --user ops
  agentdeploy deploy edge-1 --force --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deployCommand(cmd, args[0])
	},
}

func init() {
	AddCredentialFlags(deployCmd, &deployCreds)
	deployCmd.Flags().BoolVarP(&deployForce, "force", "f", false, "rebuild an install directory whose agent isn't running")
	deployCmd.Flags().BoolVar(&deployJSON, "json", false, "output the outcome as JSON")
	rootCmd.AddCommand(deployCmd)
}

func deployCommand(cmd *cobra.Command, name string) error {
	out := cmd.OutOrStdout()
	log := logger.NewEnvLogger("[deploy]")

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return fail(out, deployJSON, err)
	}
	target, err := resolveTarget(cfg, name, deployCreds)
	if err != nil {
		return fail(out, deployJSON, err)
	}

	locker, closeLocker, err := newLocker(cfg)
	if err != nil {
		return fail(out, deployJSON, err)
	}
	defer closeLocker()

	// History is best effort: a broken database never blocks a deployment.
	st, err := openStore(cfg)
	if err != nil {
		log.Warn("deployment history unavailable: %s", errors.MessageOf(err))
	}
	if st != nil {
		defer st.Close()
	}

	options := []deploy.Option{
		deploy.WithDialer(dialer),
		deploy.WithLogger(log),
	}
	if locker != nil {
		options = append(options, deploy.WithLocker(locker))
	}
	if !deployJSON {
		fmt.Fprintf(out, "Deploying %s to %s\n\n", cfg.Agent.Name, target)
		options = append(options, deploy.WithObserver(ui.NewDeployDisplay(out).Observe))
	}

	var attemptOpts []deploy.AttemptOption
	if deployForce {
		attemptOpts = append(attemptOpts, deploy.WithForce())
	}

	outcome := deploy.New(deployOptions(cfg), options...).Deploy(target, attemptOpts...)

	if st != nil {
		if err := st.RecordDeployment(cmd.Context(), target.Username, outcome); err != nil {
			log.Warn("couldn't record attempt %s: %s", outcome.AttemptID, errors.MessageOf(err))
		}
	}

	if deployJSON {
		if outcome.Success {
			return WriteJSONSuccess(out, outcome)
		}
		if err := WriteJSONFailure(out, outcome, outcomeError(outcome.Code, outcome.Message)); err != nil {
			return err
		}
		return errors.NewExitError(1)
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, ui.RenderOutcome(outcome))
	if !outcome.Success {
		return errors.NewExitError(1)
	}
	return nil
}
