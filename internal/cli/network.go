package cli

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lupa/internal/model"
)

var (
	neighborhoodDepth int
	reviewNotes       string
	reviewReset       bool
	listAll           bool
	topN              int
	networkJSON       bool
)

// networkCmd represents the network command
var networkCmd = &cobra.Command{
	Use:   "network",
	Short: "Inspect and review the persistent network graph",
	Long: `The persistent graph accumulates the companies, people and agencies seen
across investigations (see investigate --integrate). These commands read it,
rerun the detectors and record manual reviews of flagged networks.

The graph lives in the SQLite database at graph.path
(default: ~/.lupa/graph.db).`,
}

var networkStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph and detection counts",
	Args:  cobra.NoArgs,
	RunE: withGraph(func(ctx context.Context, a *app, args []string) error {
		stats, err := a.graph.Stats(ctx)
		if err != nil {
			return err
		}
		if networkJSON {
			return printJSONOut(stats)
		}

		fmt.Printf("Nodes:     %d\n", stats.Nodes)
		for _, t := range sortedKeys(stats.NodesByType) {
			fmt.Printf("  %-12s %d\n", t, stats.NodesByType[t])
		}
		fmt.Printf("Edges:     %d (%d suspicious)\n", stats.Edges, stats.SuspiciousEdges)
		fmt.Printf("Networks:  %d (%d active, %d reviewed)\n", stats.Networks, stats.ActiveNetworks, stats.ReviewedNetworks)
		for _, t := range sortedKeys(stats.NetworksByType) {
			fmt.Printf("  %-14s %d\n", t, stats.NetworksByType[t])
		}
		return nil
	}),
}

var networkShowCmd = &cobra.Command{
	Use:   "show <entity>",
	Short: "Show an entity, where it was seen and its neighborhood",
	Long: `Show resolves the entity by node id, CNPJ, CPF or name, then prints its
statistics, the investigations that observed it and the entities within
--depth hops.

Example:
  lupa network show 12.345.678/0001-90
  lupa network show "Ministério da Saúde" --depth 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: withGraph(func(ctx context.Context, a *app, args []string) error {
		node, err := a.graph.Lookup(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		sub, err := a.graph.GetNeighborhood(ctx, node.ID, neighborhoodDepth)
		if err != nil {
			return err
		}
		refs, err := a.graph.Refs(ctx, node.ID)
		if err != nil {
			return err
		}
		if networkJSON {
			return printJSONOut(map[string]any{"node": node, "neighborhood": sub, "refs": refs})
		}

		printNode(node)
		fmt.Printf("\nSeen in %d investigation(s):\n", len(node.Investigations))
		for _, r := range refs {
			line := fmt.Sprintf("  %s  %-10s %s", r.CreatedAt.Format("2006-01-02 15:04"), r.Role, r.InvestigationID)
			if r.ContractID != "" {
				line += fmt.Sprintf("  contract %s (R$ %.2f)", r.ContractID, r.Value)
			}
			fmt.Println(line)
		}

		names := map[string]string{sub.Center.ID: sub.Center.Name}
		for _, n := range sub.Nodes {
			names[n.ID] = n.Name
		}
		fmt.Printf("\nNeighborhood (depth %d): %d nodes, %d edges\n", sub.Depth, len(sub.Nodes), len(sub.Edges))
		for _, e := range sub.Edges {
			mark := " "
			if e.Suspicious {
				mark = "⚠"
			}
			fmt.Printf("  %s %s -[%s x%d, %.1f]-> %s\n", mark, names[e.SourceID], e.Type, e.DetectionCount, e.Strength, names[e.TargetID])
		}
		return nil
	}),
}

var networkDetectCmd = &cobra.Command{
	Use:   "detect [investigation-id]",
	Short: "Recompute centrality and run the suspicious-network detectors",
	Long: `Detect recomputes centrality over the whole graph and runs the cartel,
concentration and shell-network detectors. Cartel detection is limited to
the contracts of the given investigation; without one it covers the whole
graph. Networks already on record are updated, never duplicated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withGraph(func(ctx context.Context, a *app, args []string) error {
		investigationID := ""
		if len(args) == 1 {
			investigationID = args[0]
		}
		if err := a.graph.RecomputeCentrality(ctx); err != nil {
			return fmt.Errorf("recompute centrality: %w", err)
		}
		networks, err := a.graph.DetectSuspiciousNetworks(ctx, investigationID)
		if err != nil {
			return err
		}
		if networkJSON {
			return printJSONOut(networks)
		}
		fmt.Fprintf(os.Stderr, "✓ %d network(s) detected\n", len(networks))
		printNetworks(networks)
		return nil
	}),
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List suspicious networks (active only unless --all)",
	Args:  cobra.NoArgs,
	RunE: withGraph(func(ctx context.Context, a *app, args []string) error {
		networks, err := a.graph.Networks(ctx, !listAll)
		if err != nil {
			return err
		}
		if networkJSON {
			return printJSONOut(networks)
		}
		printNetworks(networks)
		return nil
	}),
}

var networkReviewCmd = &cobra.Command{
	Use:   "review <network-id>",
	Short: "Mark a suspicious network as reviewed",
	Long: `Review marks the network reviewed and inactive with the given notes.
Reviewing twice with the same notes changes nothing. Later detector runs keep
the review. --reset reopens the network.

Example:
  lupa network review V1StGXR8_Z5jdHi6B-myT --notes "regular consortium, see process 123/2024"
  lupa network review V1StGXR8_Z5jdHi6B-myT --reset`,
	Args: cobra.ExactArgs(1),
	RunE: withGraph(func(ctx context.Context, a *app, args []string) error {
		if reviewReset {
			n, err := a.graph.ResetReview(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ %s reopened\n", n.Name)
			return nil
		}
		n, err := a.graph.MarkReviewed(ctx, args[0], reviewNotes)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ %s marked reviewed\n", n.Name)
		return nil
	}),
}

var networkCentralityCmd = &cobra.Command{
	Use:   "centrality",
	Short: "Recompute centrality and list the most central entities",
	Args:  cobra.NoArgs,
	RunE: withGraph(func(ctx context.Context, a *app, args []string) error {
		if err := a.graph.RecomputeCentrality(ctx); err != nil {
			return err
		}
		nodes, err := a.graph.Nodes(ctx)
		if err != nil {
			return err
		}
		slices.SortStableFunc(nodes, func(x, y model.NetworkNode) int {
			if c := cmp.Compare(y.BetweennessCentrality, x.BetweennessCentrality); c != 0 {
				return c
			}
			return cmp.Compare(y.DegreeCentrality, x.DegreeCentrality)
		})
		if topN > 0 && len(nodes) > topN {
			nodes = nodes[:topN]
		}
		if networkJSON {
			return printJSONOut(nodes)
		}

		fmt.Printf("%-40s %-10s %6s %8s %8s %8s %5s\n", "ENTITY", "TYPE", "DEGREE", "BETWEEN", "CLOSE", "EIGEN", "RISK")
		for _, n := range nodes {
			fmt.Printf("%-40s %-10s %6.0f %8.3f %8.3f %8.3f %5.1f\n",
				truncate(n.Name, 40), n.Type, n.DegreeCentrality, n.BetweennessCentrality,
				n.ClosenessCentrality, n.EigenvectorCentrality, n.RiskScore)
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(networkCmd)
	networkCmd.AddCommand(networkStatsCmd, networkShowCmd, networkDetectCmd, networkListCmd, networkReviewCmd, networkCentralityCmd)

	networkCmd.PersistentFlags().BoolVar(&networkJSON, "json", false, "print JSON instead of text")
	networkShowCmd.Flags().IntVar(&neighborhoodDepth, "depth", 1, "neighborhood depth in hops")
	networkReviewCmd.Flags().StringVar(&reviewNotes, "notes", "", "review notes")
	networkReviewCmd.Flags().BoolVar(&reviewReset, "reset", false, "reopen a reviewed network")
	networkListCmd.Flags().BoolVar(&listAll, "all", false, "include reviewed and inactive networks")
	networkCentralityCmd.Flags().IntVar(&topN, "top", 20, "number of entities to list (0 for all)")
}

// withGraph opens the graph for one network subcommand and closes it after
func withGraph(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		a, err := newGraphApp()
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := a.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		return fn(cmd.Context(), a, args)
	}
}

func printNode(n *model.NetworkNode) {
	fmt.Printf("%s [%s] %s\n", n.Name, n.Type, n.ID)
	if n.CNPJ != "" {
		fmt.Printf("  CNPJ:         %s\n", n.CNPJ)
	}
	if n.CPF != "" {
		fmt.Printf("  CPF:          %s\n", n.CPF)
	}
	fmt.Printf("  Times seen:   %d (first %s, last %s)\n", n.TimesSeen, n.FirstSeen.Format("2006-01-02"), n.LastSeen.Format("2006-01-02"))
	fmt.Printf("  Contracts:    %d, R$ %.2f, %d anomalous\n", n.TotalContracts, n.TotalContractValue, n.TotalAnomalies)
	fmt.Printf("  Risk score:   %.1f/10", n.RiskScore)
	if n.Sanctioned {
		fmt.Printf(" (sanctioned)")
	}
	fmt.Println()
	fmt.Printf("  Centrality:   degree %.0f, betweenness %.3f, closeness %.3f, eigenvector %.3f\n",
		n.DegreeCentrality, n.BetweennessCentrality, n.ClosenessCentrality, n.EigenvectorCentrality)
}

func printNetworks(networks []model.SuspiciousNetwork) {
	for _, n := range networks {
		state := "active"
		if n.Reviewed {
			state = "reviewed"
		}
		fmt.Printf("%s  %s\n", n.ID, n.Name)
		fmt.Printf("  %s, severity %s, confidence %.2f, %d entities, R$ %.2f (%s)\n",
			n.Type, n.Severity, n.Confidence, n.EntityCount, n.TotalValue, state)
		fmt.Printf("  %s\n", n.Rationale)
		if n.ReviewNotes != "" {
			fmt.Printf("  notes: %s\n", n.ReviewNotes)
		}
	}
}

func printJSONOut(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
