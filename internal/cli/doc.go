// Package cli implements the agentdeploy command-line interface.
//
// Each cobra command loads the config, builds the collaborators it needs
// from it (session dialer, lease manager, history store, metrics) and hands
// them to the package that does the work.
//
// # Command Structure
//
//	agentdeploy deploy <host>      Install and start the agent
//	agentdeploy check [host...]    Check hosts accept a session
//	agentdeploy history <host>     Recorded deployments
//	agentdeploy artifact           Inspect the install package
//	agentdeploy serve              HTTP API
//	agentdeploy doctor             Diagnose issues
//	agentdeploy init               Create .agentdeploy.yaml
//	agentdeploy host [add|list]    Manage hosts
//
// # Credentials
//
// A host argument is a configured name or a raw address. The username comes
// from --user or the config. A key file (--key-file or hosts.<name>.key_file)
// wins over a password; otherwise the password comes from --password, then
// AGENTDEPLOY_PASSWORD, then a prompt when stdin is a terminal.
//
// # Output
//
// Commands that take --json write a JSONEnvelope and exit non-zero when it
// reports failure. Global flags (--config, --verbose, --color, --no-color)
// are defined on the root command.
package cli
