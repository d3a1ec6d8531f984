package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dareon",
		Short: "Dareon2.0 - natural-language file and integration assistant",
		Long: `dareon serves the Dareon2.0 HTTP API. Users type commands such as
"sort my files by date" or "sync my outlook emails"; the server resolves
them to an intent and runs it against their files and connected accounts.

Configuration comes from an optional YAML file, then from the environment
(DAREON_-prefixed names win over bare ones). A .env file is loaded first
when present.`,
		Example: `  # Start the server with a generated master key
  DAREON_JWT_SECRET=change-me DAREON_MASTER_KEY=$(openssl rand -hex 32) dareon serve

  # See which intent a phrase resolves to
  dareon resolve "search for budget"`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newResolveCmd(), newVersionCmd())
	return root
}
