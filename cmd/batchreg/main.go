package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/batchreg/internal/cli"
	"github.com/example/batchreg/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "batchreg",
		Short:   "batchreg - resilient batch registration runner",
		Version: version.String(),
		Long: `batchreg submits batches of registration records to a flaky remote form,
retrying each record with backoff until it reaches a terminal outcome, and
stores the results durably.`,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.ValidateCmd())
	rootCmd.AddCommand(cli.ReportCmd())
	rootCmd.AddCommand(cli.ConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
