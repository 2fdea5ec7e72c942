// Package main implements vctl, the command-line client for verifyd.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/verifyd/internal/client"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds flags shared by every command.
type cli struct {
	server  string
	jsonOut bool
}

func (c *cli) client() (*client.Client, error) {
	return client.New(c.server)
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "vctl",
		Short: "CLI for verifyd verification sessions",
		Long: `vctl drives verification sessions held by a verifyd server, or runs
a session locally in the terminal UI.

Examples:
  # Start a session from a plan and walk through it
  vctl create --plan login.yaml
  vctl preflight <id> --answer env=staging
  vctl approve <id>
  vctl reject <id> --issue "button does nothing" --expected "form submits" --priority blocker

  # Interactive local session
  vctl run --plan login.yaml`,
		Version:      version,
		SilenceUsage: true,
	}

	server := os.Getenv("VERIFYD_URL")
	if server == "" {
		server = client.DefaultBaseURL
	}
	root.PersistentFlags().StringVar(&c.server, "server", server, "verifyd server URL (env VERIFYD_URL)")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print raw JSON responses")

	root.AddCommand(
		newCreateCmd(c),
		newListCmd(c),
		newStatusCmd(c),
		newPreFlightCmd(c),
		newApproveCmd(c),
		newRejectCmd(c),
		newResolveCmd(c),
		newRestartCmd(c),
		newSaveCmd(c),
		newEndCmd(c),
		newFormCmd(c),
		newResumeCmd(c),
		newSnapshotsCmd(c),
		newHealthCmd(c),
		newRunCmd(c),
	)
	return root
}
