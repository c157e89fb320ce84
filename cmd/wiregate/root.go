package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the WireGate CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wiregate",
		Short: "WireGate - a token-gated persistent-connection message gateway",
		Long: `WireGate is a persistent-connection message service. Clients hold a
long-lived connection, exchange JSON message frames, and must present a
bearer session token for every channel outside the auth namespace.`,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
