package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/batchreg/internal/adapters/csvfile"
	"github.com/example/batchreg/internal/core/dedupe"
)

var validateCmd = &cobra.Command{
	Use:   "validate [input.csv]",
	Short: "Validate and deduplicate an input file without submitting",
	Long: `Validate runs the same normalization and deduplication as run, but makes
no network requests. Use it to check an input file before a real batch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, loadRejected, err := csvfile.LoadRecords(args[0])
		if err != nil {
			return err
		}

		result := dedupe.Deduplicate(records)

		fmt.Printf("%s %d record(s) accepted\n", color.New(color.FgGreen).Sprint("✓"), len(result.Accepted))
		if result.Duplicates > 0 {
			fmt.Printf("  %d duplicate row(s) skipped\n", result.Duplicates)
		}

		rejected := append(loadRejected, result.Rejected...)
		if len(rejected) > 0 {
			fmt.Printf("%s %d row(s) rejected:\n", color.New(color.FgRed).Sprint("✗"), len(rejected))
			describeRejected(rejected)
			return fmt.Errorf("input has invalid rows")
		}

		return nil
	},
}

// ValidateCmd returns the validate command.
func ValidateCmd() *cobra.Command {
	return validateCmd
}
