package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/lupa/internal/model"
	"github.com/ppiankov/lupa/internal/registry"
)

// Version is set at build time with -ldflags "-X github.com/ppiankov/lupa/internal/cli.Version=..."
var Version = "v0.1.0"

var (
	cfgFile     string
	verbose     bool
	jsonLogs    bool
	metricsFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lupa",
	Short: "Lupa - investigations over Brazilian public spending data",
	Long: `Lupa turns a question about public spending into an investigation.

It classifies the question, plans which public data sources to query
(Portal da Transparência, Receita Federal registries, PNCP, TSE, SIOP and
others), calls them with retries and fallbacks, and extracts the companies,
people, agencies and contracts involved.

Investigations can be folded into a persistent network graph that
accumulates what was seen across investigations and flags suspicious
networks such as possible cartels and shell companies.

Lupa points at patterns worth a closer look. It does not accuse anyone.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lupa %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.lupa/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log JSON lines instead of text")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this file on exit")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("output.json_logs", rootCmd.PersistentFlags().Lookup("json-logs"))
	_ = viper.BindPFlag("output.metrics_file", rootCmd.PersistentFlags().Lookup("metrics-file"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// configDir is where the config file, graph database and cache live by default
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".lupa"), nil
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(dir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match LUPA_* (LUPA_GRAPH_PATH -> graph.path)
	viper.SetEnvPrefix("LUPA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := setDefaults(model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading defaults: %v\n", err)
	}

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every default key so environment variables can
// override keys the config file does not mention
func setDefaults(cfg model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := prefix + k
			if child, ok := v.(map[string]any); ok && k != "sources" {
				walk(key+".", child)
				continue
			}
			viper.SetDefault(key, v)
		}
	}
	walk("", tree)
	return nil
}

// loadConfig merges defaults, config file, environment and flags, then
// validates the result
func loadConfig() (model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode configuration: %w", err)
	}

	if cfg.Graph.Path == "" {
		dir, err := configDir()
		if err != nil {
			return cfg, err
		}
		cfg.Graph.Path = filepath.Join(dir, "graph.db")
	}

	if err := registry.ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
