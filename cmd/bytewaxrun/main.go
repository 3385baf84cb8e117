// Command bytewaxrun wires a small demo dataflow together and runs it
// with a configurable number of local workers, in the manner of the
// pack's zoobzio-pipz CLI: a cobra root command delegating to a handful
// of subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"

	rootCmd = &cobra.Command{
		Use:     "bytewaxrun",
		Short:   "Run a demo partitioned-input dataflow locally",
		Long:    `bytewaxrun wires a demo partitioned input operator and sliding windower into one local, multi-worker dataflow, for exercising and demonstrating the engine core.`,
		Version: version,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tickCmd)
}
