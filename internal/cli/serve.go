package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rileyhilliard/agentdeploy/internal/config"
	"github.com/rileyhilliard/agentdeploy/internal/deploy"
	"github.com/rileyhilliard/agentdeploy/internal/lock"
	"github.com/rileyhilliard/agentdeploy/internal/logger"
	"github.com/rileyhilliard/agentdeploy/internal/metrics"
	"github.com/rileyhilliard/agentdeploy/internal/server"
	"github.com/rileyhilliard/agentdeploy/internal/store"
	"github.com/spf13/cobra"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve connection checks and deployments over HTTP",
	Long: `Start an HTTP server exposing:

  POST /machines/validate                  check a host's credentials
  POST /machines/deploy                    deploy the agent to a host
  GET  /machines/{address}/deployments     recorded attempts for a host
  GET  /healthz
  GET  /metrics                            when server.metrics is on

Credentials travel with each request and are never stored.

Examples:
  agentdeploy serve
  agentdeploy serve --listen 0.0.0.0:9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCommand(cmd)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "address to listen on (default server.listen)")
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(cmd *cobra.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	listen := cfg.Server.Listen
	if serveListen != "" {
		listen = serveListen
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}
	locker, closeLocker, err := newLocker(cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	srv := buildServer(cfg, st, locker, metrics.New(nil))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", listen)
	return server.ListenAndServe(ctx, listen, server.NewHandler(srv), srv.Log)
}

// buildServer wires the orchestrator, checker, store and metrics behind
// the HTTP handlers. st and locker may be nil.
func buildServer(cfg *config.Config, st *store.Store, locker lock.Manager, rec *metrics.Recorder) *server.Server {
	log := logger.NewEnvLogger("[serve]")

	options := []deploy.Option{
		deploy.WithDialer(dialer),
		deploy.WithLogger(logger.NewEnvLogger("[deploy]")),
		deploy.WithMetrics(rec),
	}
	if locker != nil {
		options = append(options, deploy.WithLocker(locker))
	}

	srv := &server.Server{
		Checker:  newChecker(cfg, rec),
		Deployer: deploy.New(deployOptions(cfg), options...),
		Log:      log,
	}
	if st != nil {
		srv.Store = st
	}
	if cfg.Server.Metrics {
		srv.Metrics = rec.Handler()
	}
	return srv
}
