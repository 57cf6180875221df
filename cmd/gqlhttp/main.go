package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gqlhttp",
		Short:        "gqlhttp serves GraphQL over HTTP",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	return root
}
