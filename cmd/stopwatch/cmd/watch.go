package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

var (
	watchInterval time.Duration
	// watchClock is replaced in tests.
	watchClock clock.PassiveClock = clock.RealClock{}
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a live stopwatch",
	Long: `Watch starts a stopwatch and prints the elapsed time every --tick
until interrupted or until --timeout has passed, then prints the final time.

Example:
  stopwatch watch
  stopwatch watch --tick 100ms --mode numeric --format %.2f
  stopwatch watch --timeout 25m`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addPolicyFlags(watchCmd.Flags())
	watchCmd.Flags().DurationVar(&watchInterval, "tick", time.Second, "how often to print the elapsed time")
	watchCmd.Flags().Duration("timeout", 0, "stop once this much time has passed (0 runs until interrupted)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchInterval <= 0 {
		return fmt.Errorf("--tick must be positive, got %s", watchInterval)
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	timer := stopwatch.NewTimerWithClock(watchClock, policy.Mode, policy.Format)
	timer.SetTimeout(cfg.Timer.Timeout)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "stopped after", timer.Stop())
			return nil
		case <-ticker.C:
			if timer.HasTimeout() {
				fmt.Fprintln(out, "timeout after", timer.Stop())
				return nil
			}
			fmt.Fprintln(out, timer.Elapsed())
		}
	}
}
