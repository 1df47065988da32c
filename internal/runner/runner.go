// Package runner times external commands and in-process functions and
// reports each run as a report.Sample.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"k8s.io/utils/clock"

	"github.com/psantana5/stopwatch/internal/report"
	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/metrics"
	"github.com/psantana5/stopwatch/pkg/stopwatch"
	"github.com/psantana5/stopwatch/pkg/tracing"
)

// waitDelay bounds how long Wait blocks on output pipes after the command
// was killed.
const waitDelay = 2 * time.Second

// Runner holds the settings shared by every run. The zero value times
// commands with the human policy, no timeout and output to the process'
// stdout and stderr. Optional sinks left nil are skipped.
type Runner struct {
	Policy stopwatch.Policy
	// Timeout marks runs longer than this as timed out. Zero disables it.
	Timeout time.Duration
	// Kill cancels a command once Timeout has passed.
	Kill bool

	Stdout io.Writer
	Stderr io.Writer
	Clock  clock.PassiveClock

	Logger   *logging.Logger
	Recorder *metrics.Recorder
	Timeouts *report.TimeoutLog
	Tracer   *tracing.Provider
}

func (r *Runner) newTimer() *stopwatch.Timer {
	t := stopwatch.NewTimerWithClock(r.Clock, r.Policy.Mode, r.Policy.Format)
	t.SetTimeout(r.Timeout)
	return t
}

// stop ends the timer's window and reports whether it overran the
// timeout. After Stop the timer's start is the end of the old window.
func (r *Runner) stop(t *stopwatch.Timer) (elapsed stopwatch.Duration, end time.Time, timedOut bool) {
	elapsed = t.Stop()
	end = t.StartedAt()
	timedOut = r.Timeout > 0 && elapsed.Std() > r.Timeout
	return elapsed, end, timedOut
}

func (r *Runner) startSpan(ctx context.Context, name string, s *report.Sample) (context.Context, trace.Span) {
	if r.Tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return r.Tracer.StartSpan(ctx, name,
		attribute.String("stopwatch.id", s.ID),
		attribute.String("stopwatch.label", s.Label),
		attribute.String("stopwatch.command", s.CommandLine()),
	)
}

// Run executes command once and times it. A command that cannot be started
// yields a sample with report.ExitNotStarted and a non-nil error. A command
// that exits non-zero is not an error; the exit code is on the sample.
func (r *Runner) Run(ctx context.Context, label, command string, args []string) (*report.Sample, error) {
	sample := report.NewSample(label, command, args)
	sample.Timeout = r.Timeout

	ctx, span := r.startSpan(ctx, "stopwatch.run", sample)
	defer span.End()

	runCtx := ctx
	if r.Kill && r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, command, args...)
	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.WaitDelay = waitDelay

	timer := r.newTimer()
	start := timer.StartedAt()
	if err := cmd.Start(); err != nil {
		elapsed, end, _ := r.stop(timer)
		sample.Finish(start, end, elapsed, report.ExitNotStarted, false, err)
		tracing.SetError(ctx, err)
		r.record(sample)
		return sample, fmt.Errorf("failed to start %s: %w", command, err)
	}
	tracing.AddEvent(ctx, "started", attribute.Int("pid", cmd.Process.Pid))

	waitErr := cmd.Wait()
	elapsed, end, timedOut := r.stop(timer)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		timedOut = true
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
			if exitCode < 0 {
				exitCode = report.ExitSignaled
			}
		} else {
			exitCode = report.ExitSignaled
		}
		tracing.SetError(ctx, waitErr)
	}

	sample.Finish(start, end, elapsed, exitCode, timedOut, waitErr)
	span.SetAttributes(
		attribute.Float64("stopwatch.elapsed_seconds", elapsed.Count()),
		attribute.Int("stopwatch.exit_code", exitCode),
		attribute.Bool("stopwatch.timed_out", timedOut),
	)
	r.record(sample)

	if err := ctx.Err(); err != nil {
		return sample, err
	}
	return sample, nil
}

// Repeat runs the command n times in sequence and returns every sample.
// It stops early when a command cannot be started or ctx is done.
func (r *Runner) Repeat(ctx context.Context, n int, label, command string, args []string) ([]*report.Sample, error) {
	samples := make([]*report.Sample, 0, n)
	for i := 0; i < n; i++ {
		s, err := r.Run(ctx, label, command, args)
		samples = append(samples, s)
		if err != nil {
			return samples, err
		}
	}
	return samples, nil
}

// Func times fn. Its error is recorded on the sample and returned.
func (r *Runner) Func(ctx context.Context, label string, fn func(context.Context) error) (*report.Sample, error) {
	sample := report.NewSample(label, "", nil)
	sample.Timeout = r.Timeout

	ctx, span := r.startSpan(ctx, "stopwatch.func", sample)
	defer span.End()

	timer := r.newTimer()
	start := timer.StartedAt()
	err := fn(ctx)
	elapsed, end, timedOut := r.stop(timer)

	exitCode := 0
	if err != nil {
		exitCode = 1
		tracing.SetError(ctx, err)
	}
	sample.Finish(start, end, elapsed, exitCode, timedOut, err)
	span.SetAttributes(attribute.Float64("stopwatch.elapsed_seconds", elapsed.Count()))
	r.record(sample)
	return sample, err
}

func (r *Runner) record(s *report.Sample) {
	if r.Recorder != nil {
		r.Recorder.Observe(s.Observation())
	}
	if r.Timeouts != nil {
		r.Timeouts.Record(s)
	}
	if r.Logger != nil {
		s.LogSummary(r.Logger)
	}
}
