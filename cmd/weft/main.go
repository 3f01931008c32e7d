package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "weft",
		Short: "Reactive state runtime tooling",
		Long: `Weft is a reactive state runtime for Go.

Signals hold mutable state, derivations compute over them with
glitch-free propagation, and subscribers observe committed changes.
This CLI runs propagation benchmarks and a demo state server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		benchCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
