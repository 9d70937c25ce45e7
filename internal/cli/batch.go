package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ppiankov/lupa/internal/worker"
)

var (
	concurrency    int
	batchTimeout   time.Duration
	batchIntegrate bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Run investigations for every query in a file",
	Long: `Batch runs many investigations concurrently:
- Read queries from the input file (one per line, # for comments)
- Run them in parallel with a configurable worker count
- Write each result to the output directory
- Optionally fold each completed result into the persistent graph

All investigations of a batch share one session id.

Example:
  lupa batch queries.txt
  lupa batch queries.txt --concurrency 8 --integrate
  lupa batch queries.txt --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent investigations (default: concurrency.workers)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&batchIntegrate, "integrate", false, "fold completed results into the persistent graph")
	batchCmd.Flags().StringVar(&userID, "user", "", "user id recorded on every investigation")
}

func runBatch(cmd *cobra.Command, args []string) (err error) {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	workers := concurrency
	if workers <= 0 {
		workers = a.cfg.Concurrency.Workers
	}
	session := uuid.NewString()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Lupa Batch Investigation\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Session:      %s\n", session)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", a.cfg.Output.Dir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	processor := worker.NewBatchProcessor(a.orchestrator, workers, userID, session)

	fmt.Fprintf(os.Stderr, "⚙️  Running investigations...\n\n")
	outcomes, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount, failureCount, networkCount := 0, 0, 0
	for _, o := range outcomes {
		if err := o.GetError(); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", o.Query, err)
			continue
		}
		successCount++
		r := o.Result
		fmt.Fprintf(os.Stderr, "✓ %s (%s, %d entities, confidence %d/100)\n", o.Query, r.Intent, len(r.Entities), r.Score.Index)

		// the graph serializes writes, so integration runs after the fan-out
		if batchIntegrate {
			summary, err := a.orchestrator.Integrate(ctx, r)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  ✗ integrate: %v\n", err)
				continue
			}
			networkCount += len(summary.Networks)
			for _, n := range summary.Networks {
				fmt.Fprintf(os.Stderr, "  ⚠ %s [%s, %s]\n", n.Name, n.Type, n.Severity)
			}
		}
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d queries\n", len(outcomes))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	if batchIntegrate {
		fmt.Fprintf(os.Stderr, "  Networks:  %d flagged\n", networkCount)
	}
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", a.cfg.Output.Dir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}
