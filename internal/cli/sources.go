package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lupa/internal/model"
)

var capabilityFilter string

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the registered data sources",
	Long: `List every source in the capability registry: the built-in catalog,
sources added by catalog_file and the per-source overrides from the
configuration.

Example:
  lupa sources
  lupa sources --capability contract_search`,
	Args: cobra.NoArgs,
	RunE: runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.Flags().StringVar(&capabilityFilter, "capability", "", "only sources providing this capability")
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := newRegistry(cfg, newLogger(cfg))
	if err != nil {
		return fmt.Errorf("build source registry: %w", err)
	}

	regs := reg.All()
	if capabilityFilter != "" {
		c := model.Capability(capabilityFilter)
		if !slices.Contains(model.AllCapabilities(), c) {
			return fmt.Errorf("unknown capability %q", capabilityFilter)
		}
		regs = reg.FindByCapability(c)
	}

	fmt.Printf("%-14s %-7s %-8s %-8s %-14s %s\n", "ID", "KIND", "TIMEOUT", "RATE", "FALLBACKS", "CAPABILITIES")
	for _, r := range regs {
		caps := make([]string, len(r.Capabilities))
		for i, c := range r.Capabilities {
			caps[i] = string(c)
		}
		rate := "-"
		if r.RateLimit > 0 {
			rate = fmt.Sprintf("%g/s", r.RateLimit)
		}
		fallbacks := "-"
		if len(r.Fallbacks) > 0 {
			fallbacks = strings.Join(r.Fallbacks, ",")
		}
		fmt.Printf("%-14s %-7s %-8s %-8s %-14s %s\n", r.ID, r.Kind, r.Timeout, rate, fallbacks, strings.Join(caps, ", "))
	}
	fmt.Printf("\n%d sources\n", len(regs))
	return nil
}
