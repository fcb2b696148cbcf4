// lockctl is a diagnostic tool for the compilation lock coordinator: it
// drives internal/lockmanager against real on-disk lock files so a build
// engineer can inspect or manually exercise a unit's lock state outside of
// a full build.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lockctl",
		Short:         "Inspect and drive the per-unit build lock coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newStrategyCmd())
	cmd.AddCommand(newUnitCmd())
	return cmd
}
