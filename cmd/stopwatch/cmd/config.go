package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Settings are read from defaults, $HOME/.stopwatch/config.yaml (or --config),
STOPWATCH_* environment variables (timer.mode is STOPWATCH_TIMER_MODE) and
flags, in increasing order of precedence.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Show prints the merged configuration as YAML, or as JSON with --output json.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	addPolicyFlags(configShowCmd.Flags())
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	shown := cfg.Redacted()
	if cfg.Output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(shown)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(shown); err != nil {
		return err
	}
	return enc.Close()
}
