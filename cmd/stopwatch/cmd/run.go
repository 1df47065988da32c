package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/psantana5/stopwatch/internal/report"
	"github.com/psantana5/stopwatch/internal/runner"
	"github.com/psantana5/stopwatch/pkg/metrics"
	"github.com/psantana5/stopwatch/pkg/sysinfo"
	"github.com/psantana5/stopwatch/pkg/tracing"
)

var (
	runRepeat      int
	runLabel       string
	runKill        bool
	runMetricsFile string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Time a command",
	Long: `Run executes a command, waits for it and reports how long it took.

Each repetition is reported on its own; nothing is averaged.

Example:
  stopwatch run -- make build
  stopwatch run --repeat 5 --mode numeric --format .3 -- ./bench.sh
  stopwatch run --timeout 30s --kill --output json -- curl -s https://example.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addPolicyFlags(runCmd.Flags())
	runCmd.Flags().IntVarP(&runRepeat, "repeat", "n", 1, "number of times to run the command")
	runCmd.Flags().StringVarP(&runLabel, "label", "l", "", "label for the samples (default is the command name)")
	runCmd.Flags().Duration("timeout", 0, "mark runs longer than this as timed out (0 disables)")
	runCmd.Flags().BoolVar(&runKill, "kill", false, "kill the command once --timeout has passed")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "write Prometheus text metrics to this file")
}

func runCommand(cmd *cobra.Command, args []string) error {
	if runRepeat < 1 {
		return fmt.Errorf("--repeat must be at least 1, got %d", runRepeat)
	}

	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder, err := metrics.NewRecorder(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	tracer, err := tracing.InitTracer(ctx, tracingConfig(), logger)
	if err != nil {
		return err
	}
	defer tracer.Shutdown(context.Background())

	r := &runner.Runner{
		Policy:   policy,
		Timeout:  cfg.Timer.Timeout,
		Kill:     runKill,
		Stdout:   cmd.OutOrStdout(),
		Stderr:   cmd.ErrOrStderr(),
		Logger:   logger,
		Recorder: recorder,
		Tracer:   tracer,
	}

	samples, runErr := r.Repeat(ctx, runRepeat, runLabel, args[0], args[1:])

	rep := report.New(sysinfo.Detect(ctx))
	rep.Add(samples...)
	if err := rep.Write(cmd.OutOrStdout(), cfg.Output); err != nil {
		return err
	}

	if runMetricsFile != "" {
		if err := writeMetricsFile(recorder, runMetricsFile); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	if failed := rep.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d runs failed", len(failed), len(samples))
	}
	return nil
}

func writeMetricsFile(recorder *metrics.Recorder, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	if err := recorder.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func tracingConfig() tracing.Config {
	return tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
	}
}
