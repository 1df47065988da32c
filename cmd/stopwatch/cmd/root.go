package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/psantana5/stopwatch/pkg/config"
	"github.com/psantana5/stopwatch/pkg/logging"
)

var (
	cfgFile string

	// Set by loadConfig before any command runs.
	cfg    *config.Config
	logger *logging.Logger
)

// flagKeys maps command-line flags onto configuration keys. A flag only
// overrides the file and environment when it is set explicitly.
var flagKeys = map[string]string{
	"mode":          "timer.mode",
	"format":        "timer.format",
	"timeout":       "timer.timeout",
	"output":        "output",
	"log-level":     "log.level",
	"log-json":      "log.json",
	"log-file":      "log.file",
	"addr":          "metrics.addr",
	"interval":      "metrics.interval",
	"tls":           "tls.enabled",
	"cert":          "tls.cert",
	"key":           "tls.key",
	"ca":            "tls.ca",
	"client-auth":   "tls.client_auth",
	"gen-cert":      "tls.generate",
	"api-key":       "auth.api_keys",
	"rate-limit":    "auth.rate_limit",
	"burst":         "auth.burst",
	"trusted-proxy": "auth.trusted_proxies",
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "stopwatch",
	Short: "Measure elapsed wall-clock time",
	Long: `stopwatch times commands and code with a monotonic clock and renders the
result as human-readable text ("1s500ms") or as a number of seconds ("1.500").`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stopwatch/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table, json, yaml or text")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
}

// addPolicyFlags registers the flags selecting how durations are rendered.
func addPolicyFlags(fs *pflag.FlagSet) {
	fs.StringP("mode", "m", "human", "print mode: human or numeric")
	fs.StringP("format", "f", "", `format hint: "%H:%M:%s" placeholders in human mode, ".3" or "%.3f" in numeric mode`)
}

// loadConfig reads defaults, the config file, STOPWATCH_* variables and
// explicit flags, in increasing order of precedence.
func loadConfig(cmd *cobra.Command) error {
	v := viper.New()
	config.SetDefaults(v)

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding --%s: %w", name, err)
			}
		}
	}

	used, err := config.ReadInConfig(v, cfgFile)
	if err != nil {
		return err
	}

	c, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = c

	logger = logging.NewLogger(cfg.LogLevel(), cfg.Log.JSON)
	logger.SetOutput(cmd.ErrOrStderr())
	if used != "" {
		logger.Debug("config loaded", map[string]interface{}{"file": used})
	}
	return nil
}
