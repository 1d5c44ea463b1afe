// SPDX-License-Identifier: MIT

// Command skylibctl is operator tooling for skylib data directories: it
// converts, merges and inspects configuration documents and verifies or backs
// up sqlite data stores.
package main

import (
	"os"

	"github.com/spf13/cobra"

	sklog "github.com/ManuGH/skylib/internal/log"
)

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "skylibctl",
		Short:         "Inspect skylib documents and data stores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			sklog.Configure(sklog.Config{
				Level:   logLevel,
				Output:  cmd.ErrOrStderr(),
				Service: "skylibctl",
			})
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.AddCommand(newDocCmd(), newDBCmd())
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		os.Exit(1)
	}
}
