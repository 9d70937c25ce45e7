package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/network"
)

var (
	userID        string
	sessionID     string
	integrate     bool
	printJSON     bool
	investTimeout time.Duration
)

// investigateCmd represents the investigate command
var investigateCmd = &cobra.Command{
	Use:   "investigate <query>",
	Short: "Run one investigation",
	Long: `Investigate classifies the query, plans which sources to call, runs the
plan and extracts the entities involved. The result is written to the
output directory (and S3 when configured).

With --integrate the entities are folded into the persistent network graph
afterwards and the suspicious-network detectors run.

Example:
  lupa investigate "Investigar fornecedor CNPJ 12.345.678/0001-90"
  lupa investigate "gastos com saúde em SP em 2023" --json
  lupa investigate "contratos sem licitação do Ministério da Saúde" --integrate`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvestigate,
}

func init() {
	rootCmd.AddCommand(investigateCmd)

	investigateCmd.Flags().StringVar(&userID, "user", "", "user id recorded on the investigation")
	investigateCmd.Flags().StringVar(&sessionID, "session", "", "session id recorded on the investigation")
	investigateCmd.Flags().BoolVar(&integrate, "integrate", false, "fold the result into the persistent graph and run the detectors")
	investigateCmd.Flags().BoolVar(&printJSON, "json", false, "print the result as JSON on stdout")
	investigateCmd.Flags().DurationVar(&investTimeout, "timeout", 5*time.Minute, "overall investigation timeout")
}

func runInvestigate(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), investTimeout)
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

	q := strings.Join(args, " ")
	if verbose {
		fmt.Fprintf(os.Stderr, "Investigating: %s\n", q)
		fmt.Fprintf(os.Stderr, "Sources: %d registered\n", a.registry.Len())
		fmt.Fprintln(os.Stderr)
	}

	result := a.orchestrator.Investigate(ctx, q, userID, sessionID)
	printResult(result)

	if integrate && result.Status == model.InvestigationCompleted {
		summary, err := a.orchestrator.Integrate(ctx, result)
		if err != nil {
			return fmt.Errorf("integrate with graph: %w", err)
		}
		printIntegration(summary)
	}

	if printJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}

	if result.Status == model.InvestigationFailed {
		return fmt.Errorf("%w: %s", model.ErrInvestigationFailed, result.Error)
	}
	return nil
}

func printResult(r *model.InvestigationResult) {
	fmt.Fprintf(os.Stderr, "Investigation %s\n", r.ID)
	fmt.Fprintf(os.Stderr, "  Intent:      %s (%s, %.2f)\n", r.Intent, r.Classification.Method, r.Classification.Confidence)
	if r.Plan != nil {
		fmt.Fprintf(os.Stderr, "  Plan:        %d stages, cache %s, up to %s\n",
			len(r.Plan.Stages), r.Plan.CacheStrategy, time.Duration(r.Plan.EstimatedDuration))
	}
	for _, st := range r.StageResults {
		mark := "✓"
		switch st.Status {
		case model.StagePartialSuccess:
			mark = "~"
		case model.StageFailed:
			mark = "✗"
		}
		fmt.Fprintf(os.Stderr, "  %s %-22s %-16s %s\n", mark, st.Name, st.Status, strings.Join(st.SourcesUsed, ", "))
		if verbose {
			for _, e := range st.Errors {
				fmt.Fprintf(os.Stderr, "      %s\n", e)
			}
		}
	}
	fmt.Fprintf(os.Stderr, "  Entities:    %d (%d relationships)\n", len(r.Entities), len(r.Relationships))
	fmt.Fprintf(os.Stderr, "  Confidence:  %d/100 (%s)\n", r.Score.Index, r.Score.Confidence)
	fmt.Fprintf(os.Stderr, "  Elapsed:     %s\n", r.Elapsed.Round(time.Millisecond))
	if r.Status == model.InvestigationFailed {
		fmt.Fprintf(os.Stderr, "✗ Failed: %s\n", r.Error)
	}
	fmt.Fprintln(os.Stderr)
}

func printIntegration(s *network.Integration) {
	fmt.Fprintf(os.Stderr, "✓ Integrated %d nodes, %d edges (%d contracts)\n", s.Nodes, s.Edges, s.Contracts)
	for _, n := range s.Networks {
		fmt.Fprintf(os.Stderr, "  ⚠ %s [%s, %s] %d entities, confidence %.2f\n", n.Name, n.Type, n.Severity, n.EntityCount, n.Confidence)
	}
}
