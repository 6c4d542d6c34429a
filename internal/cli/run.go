package cli

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cliadapter "github.com/example/batchreg/internal/adapters/cli"
	"github.com/example/batchreg/internal/adapters/csvfile"
	"github.com/example/batchreg/internal/config"
	"github.com/example/batchreg/internal/models"
	"github.com/example/batchreg/internal/ports/primary"
	"github.com/example/batchreg/internal/ports/secondary"
	"github.com/example/batchreg/internal/wire"
)

var runCmd = &cobra.Command{
	Use:   "run [input.csv]",
	Short: "Submit a batch of records to the registration form",
	Long: `Run loads records from a CSV file (columns name,ktp,phone), deduplicates
them, and drives every record to a terminal outcome: succeeded, exhausted,
or interrupted. Results are stored durably and written as CSV and JSON
reports. SIGINT stops admissions and flushes what has finished.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir, _ := cmd.Flags().GetString("config-dir")
		endpoint, _ := cmd.Flags().GetString("endpoint")
		fallbackEndpoint, _ := cmd.Flags().GetString("fallback")
		reportDir, _ := cmd.Flags().GetString("report-dir")
		runID, _ := cmd.Flags().GetString("run-id")
		startAt, _ := cmd.Flags().GetString("at")
		verbose, _ := cmd.Flags().GetBool("verbose")
		skipWarmup, _ := cmd.Flags().GetBool("no-warmup")

		cfg, err := config.LoadConfig(configDir)
		if err != nil {
			return err
		}
		if endpoint != "" {
			cfg.Endpoint = endpoint
		}
		if fallbackEndpoint != "" {
			cfg.FallbackEndpoint = fallbackEndpoint
		}
		if reportDir != "" {
			cfg.ReportDir = reportDir
		}
		if cfg.Endpoint == "" {
			return fmt.Errorf("no endpoint configured\nHint: use --endpoint or set \"endpoint\" in config.json")
		}

		records, rejected, err := csvfile.LoadRecords(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %d record(s) from %s", len(records), args[0])
		if len(rejected) > 0 {
			fmt.Printf(" (%d rejected)", len(rejected))
		}
		fmt.Println()
		describeRejected(rejected)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if startAt != "" {
			if err := waitUntil(ctx, startAt); err != nil {
				return err
			}
		}

		printer := cliadapter.NewRunPrinter(os.Stdout)
		printer.Verbose = verbose

		stack := wire.BuildRunStack(cfg, printer)

		if cfg.MetricsAddr != "" {
			srv, errCh := stack.Metrics.Serve(cfg.MetricsAddr)
			defer srv.Close()
			go func() {
				if err := <-errCh; err != nil && err != http.ErrServerClosed {
					fmt.Fprintf(os.Stderr, "metrics listener: %v\n", err)
				}
			}()
			fmt.Printf("Metrics on http://%s/metrics\n", cfg.MetricsAddr)
		}

		if !skipWarmup {
			if err := waitForServer(ctx, cfg.Endpoint); err != nil {
				return err
			}
		}

		started := time.Now()
		report, err := stack.Service.RunBatch(ctx, primary.RunBatchRequest{
			Records: records,
			RunID:   runID,
		})
		if err != nil {
			return fmt.Errorf("batch run failed: %w", err)
		}

		// Rows the loader rejected join the rows dedup rejected; both
		// sets are written to the report files below.
		report.Rejected = append(rejected, report.Rejected...)
		describeRejected(report.Rejected[len(rejected):])

		printer.Summary(report, time.Since(started))
		snap := stack.Metrics.Snapshot()
		p50, p95 := stack.Metrics.LatencyQuantiles()
		printer.AttemptStats(snap.TotalAttempts, p50, p95)

		// Terminal outcomes stream to storage during the run; read them
		// back so report writing never needs the whole batch in memory.
		listCtx, cancelList := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelList()
		results, err := wire.ResultRepository().List(listCtx, secondary.ResultFilters{RunID: report.RunID})
		if err != nil {
			return fmt.Errorf("failed to read back run results: %w", err)
		}

		csvPath, jsonPath, err := csvfile.WriteReportFiles(cfg.ReportDir, report, results)
		if err != nil {
			return err
		}
		fmt.Printf("\nReports written:\n  %s\n  %s\n", csvPath, jsonPath)

		if ctx.Err() != nil {
			return fmt.Errorf("run interrupted")
		}
		return nil
	},
}

// waitUntil sleeps until the next occurrence of the given local wall-clock
// time (HH:MM:SS), or until ctx is cancelled.
func waitUntil(ctx context.Context, clock string) error {
	target, err := time.ParseInLocation("15:04:05", clock, time.Local)
	if err != nil {
		return fmt.Errorf("invalid --at time %q, want HH:MM:SS", clock)
	}

	now := time.Now()
	at := time.Date(now.Year(), now.Month(), now.Day(),
		target.Hour(), target.Minute(), target.Second(), 0, time.Local)
	if !at.After(now) {
		at = at.Add(24 * time.Hour)
	}

	fmt.Printf("Waiting until %s to start...\n", at.Format("15:04:05"))
	timer := time.NewTimer(time.Until(at))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cancelled while waiting for start time")
	}
}

// waitForServer probes the endpoint until it answers, with a capped
// jittered delay between probes. Any HTTP response counts as up; only
// transport failures keep the probe looping.
func waitForServer(ctx context.Context, endpoint string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	delay := 2 * time.Second
	const maxDelay = 30 * time.Second

	for probe := 1; ; probe++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("invalid endpoint: %w", err)
		}

		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if probe > 1 {
				fmt.Println("Server is up.")
			}
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("cancelled while waiting for server")
		}

		jittered := delay + time.Duration(rand.Float64()*float64(delay)/2)
		fmt.Printf("Server not reachable (probe %d), retrying in %s...\n", probe, jittered.Round(time.Second))

		timer := time.NewTimer(jittered)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("cancelled while waiting for server")
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func init() {
	runCmd.Flags().String("config-dir", "", "Config directory (default ~/.batchreg)")
	runCmd.Flags().String("endpoint", "", "Registration form URL (overrides config)")
	runCmd.Flags().String("fallback", "", "Fallback status endpoint URL (overrides config)")
	runCmd.Flags().String("report-dir", "", "Directory for CSV/JSON reports (overrides config)")
	runCmd.Flags().String("run-id", "", "Run identifier (generated when empty)")
	runCmd.Flags().String("at", "", "Wait until this local time (HH:MM:SS) before starting")
	runCmd.Flags().BoolP("verbose", "v", false, "Print every attempt, not just terminal outcomes")
	runCmd.Flags().Bool("no-warmup", false, "Skip the server reachability probe")
}

// RunCmd returns the run command.
func RunCmd() *cobra.Command {
	return runCmd
}

// used by validate.go for shared record loading output.
func describeRejected(rejected []models.RejectedRecord) {
	for _, r := range rejected {
		fmt.Printf("  line %d: %s\n", r.Line, r.Reason)
	}
}
