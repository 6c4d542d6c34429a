package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/batchreg/internal/adapters/csvfile"
	"github.com/example/batchreg/internal/ports/secondary"
	"github.com/example/batchreg/internal/wire"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Read back stored run results",
}

var reportRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored run IDs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := wire.ResultRepository().Runs(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if len(runs) == 0 {
			fmt.Println("No stored runs.")
			return nil
		}
		for _, runID := range runs {
			fmt.Println(runID)
		}
		return nil
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Re-emit stored results as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		outPath, _ := cmd.Flags().GetString("output")

		results, err := wire.ResultRepository().List(context.Background(), secondary.ResultFilters{
			RunID:       runID,
			FinalStatus: status,
			Limit:       limit,
		})
		if err != nil {
			return fmt.Errorf("failed to list results: %w", err)
		}
		if len(results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		out := os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		if err := csvfile.WriteResultCSV(out, results); err != nil {
			return err
		}
		if outPath != "" {
			fmt.Printf("Wrote %d result(s) to %s\n", len(results), outPath)
		}
		return nil
	},
}

func init() {
	reportShowCmd.Flags().String("run", "", "Filter by run ID")
	reportShowCmd.Flags().String("status", "", "Filter by final status (succeeded, exhausted, interrupted)")
	reportShowCmd.Flags().Int("limit", 0, "Maximum number of rows (0 = all)")
	reportShowCmd.Flags().StringP("output", "o", "", "Write CSV to a file instead of stdout")

	reportCmd.AddCommand(reportRunsCmd)
	reportCmd.AddCommand(reportShowCmd)
}

// ReportCmd returns the report command.
func ReportCmd() *cobra.Command {
	return reportCmd
}
