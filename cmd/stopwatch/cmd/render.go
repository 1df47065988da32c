package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

var renderCmd = &cobra.Command{
	Use:   "render <duration>...",
	Short: "Render durations under a print mode and format",
	Long: `Render prints each argument the way a measured duration would be printed.
Arguments are integer nanoseconds or Go durations such as 1.5s or 2h3m.

Example:
  stopwatch render 1500000000
  stopwatch render --mode numeric --format %.3f 12.34s
  stopwatch render --format "%H:%M:%s" 3723s`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	addPolicyFlags(renderCmd.Flags())
}

func runRender(cmd *cobra.Command, args []string) error {
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	for _, arg := range args {
		nanos, err := parseNanos(arg)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), stopwatch.FromNanos(nanos, policy.Mode, policy.Format))
	}
	return nil
}

func parseNanos(arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(arg)
	if err != nil {
		return 0, fmt.Errorf("%q is neither nanoseconds nor a duration", arg)
	}
	return int64(d), nil
}
