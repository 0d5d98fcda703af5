package cli

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/store"
	"github.com/rileyhilliard/agentdeploy/internal/ui"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history <host>",
	Short: "Show recorded deployments to a host",
	Long: `List the deployment attempts recorded for a host, newest first.

Examples:
  agentdeploy history edge-1
  agentdeploy history 10.0.0.12 --limit 5 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyCommand(cmd, args[0])
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", store.DefaultHistoryLimit, "maximum attempts to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output history as JSON")
	rootCmd.AddCommand(historyCmd)
}

// HistoryOutput is the JSON output of history.
type HistoryOutput struct {
	Address     string             `json:"address"`
	Machine     *store.Machine     `json:"machine,omitempty"`
	Deployments []store.Deployment `json:"deployments"`
}

func historyCommand(cmd *cobra.Command, name string) error {
	out := cmd.OutOrStdout()

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return fail(out, historyJSON, err)
	}
	if historyLimit <= 0 {
		return fail(out, historyJSON, errors.New(errors.ErrConfig,
			fmt.Sprintf("--limit must be positive, got %d", historyLimit), ""))
	}

	st, err := openStore(cfg)
	if err != nil {
		return fail(out, historyJSON, err)
	}
	if st == nil {
		return fail(out, historyJSON, errors.New(errors.ErrConfig,
			"Deployment history is disabled",
			"Set store.path in .agentdeploy.yaml"))
	}
	defer st.Close()

	h, _ := cfg.ResolveHost(name)
	ctx := cmd.Context()

	deployments, err := st.History(ctx, h.Address, historyLimit)
	if err != nil {
		return fail(out, historyJSON, err)
	}
	var machine *store.Machine
	m, err := st.Machine(ctx, h.Address)
	switch {
	case err == nil:
		machine = &m
	case !stderrors.Is(err, store.ErrNotFound):
		return fail(out, historyJSON, err)
	}

	if historyJSON {
		if deployments == nil {
			deployments = []store.Deployment{}
		}
		return WriteJSONSuccess(out, HistoryOutput{Address: h.Address, Machine: machine, Deployments: deployments})
	}

	if len(deployments) == 0 {
		fmt.Fprintf(out, "No deployments recorded for %s\n", h.Address)
		return nil
	}

	rows := make([]ui.HistoryRow, 0, len(deployments))
	for _, d := range deployments {
		rows = append(rows, historyRow(d))
	}
	fmt.Fprint(out, ui.RenderHistoryTable(h.Address, rows))

	if machine != nil && machine.UpdatedAt != nil {
		fmt.Fprintf(out, "\nLast successful deployment: %s by %s\n",
			machine.UpdatedAt.Local().Format(time.DateTime), machine.Username)
	}
	return nil
}

func historyRow(d store.Deployment) ui.HistoryRow {
	message, _, _ := strings.Cut(d.Message, "\n")
	return ui.HistoryRow{
		When:     d.StartedAt.Local().Format(time.DateTime),
		OK:       d.Success,
		State:    d.State.String(),
		Duration: d.FinishedAt.Sub(d.StartedAt).Round(100 * time.Millisecond).String(),
		Message:  message,
	}
}
