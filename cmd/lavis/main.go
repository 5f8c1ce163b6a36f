// Lavis is a headless desktop-automation agent core: a reasoning loop
// over screen perception and input actuation, with scheduled tasks and
// user-authored skills, served over a local HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lavishq/lavis/internal/logging"
)

func main() {
	root := &cobra.Command{
		Use:   "lavis",
		Short: "Lavis - desktop automation agent core",
		Long: `Lavis runs a vision-grounded reasoning loop against the local desktop.

Just type 'lavis serve' to start the core and its HTTP API.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !verbose {
				logging.Disable()
			}
			logging.SetDebug(verbose)
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose log output")
	root.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (default ~/.lavis)")

	root.AddCommand(serveCmd())
	root.AddCommand(taskCmd())
	root.AddCommand(skillCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("lavis " + Version)
		},
	}
}
