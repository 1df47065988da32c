package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/metrics"
	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

const (
	// ExitNotStarted is the exit code of a sample whose command never ran.
	ExitNotStarted = -1
	// ExitSignaled is the exit code of a command killed by a signal.
	ExitSignaled = -2
)

// Sample is one timed execution. It is filled in once by Finish and not
// changed afterwards.
type Sample struct {
	ID      string   `json:"id" yaml:"id"`
	Label   string   `json:"label" yaml:"label"`
	Command string   `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`

	StartTime time.Time          `json:"start_time" yaml:"start_time"`
	EndTime   time.Time          `json:"end_time" yaml:"end_time"`
	Elapsed   stopwatch.Duration `json:"elapsed" yaml:"elapsed"`
	Timeout   time.Duration      `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	ExitCode int    `json:"exit_code" yaml:"exit_code"`
	TimedOut bool   `json:"timed_out" yaml:"timed_out"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewSample creates a sample with a fresh ID.
func NewSample(label, command string, args []string) *Sample {
	if label == "" {
		label = command
	}
	return &Sample{
		ID:      uuid.NewString(),
		Label:   label,
		Command: command,
		Args:    args,
	}
}

// Finish records the outcome. err is kept as text; a nil err with a
// negative exit code is not expected.
func (s *Sample) Finish(start, end time.Time, elapsed stopwatch.Duration, exitCode int, timedOut bool, err error) {
	s.StartTime = start
	s.EndTime = end
	s.Elapsed = elapsed
	s.ExitCode = exitCode
	s.TimedOut = timedOut
	if err != nil {
		s.Error = err.Error()
	}
}

// Outcome classifies the sample for metrics.
func (s *Sample) Outcome() metrics.Outcome {
	switch {
	case s.ExitCode == ExitNotStarted:
		return metrics.OutcomeError
	case s.ExitCode != 0 || s.TimedOut || s.Error != "":
		return metrics.OutcomeFailure
	default:
		return metrics.OutcomeSuccess
	}
}

// Observation converts the sample for a metrics.Recorder.
func (s *Sample) Observation() metrics.Observation {
	return metrics.Observation{
		Label:    s.Label,
		Elapsed:  s.Elapsed,
		Outcome:  s.Outcome(),
		TimedOut: s.TimedOut,
	}
}

// CommandLine returns the command and its arguments joined by spaces.
func (s *Sample) CommandLine() string {
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}

// ShortID is the first block of the ID, enough to tell samples apart in a
// table.
func (s *Sample) ShortID() string {
	if i := strings.IndexByte(s.ID, '-'); i > 0 {
		return s.ID[:i]
	}
	return s.ID
}

// LogSummary emits a one-line summary of the sample.
func (s *Sample) LogSummary(logger *logging.Logger) {
	fields := map[string]interface{}{
		"id":        s.ID,
		"label":     s.Label,
		"elapsed":   s.Elapsed.String(),
		"seconds":   s.Elapsed.Count(),
		"exit_code": s.ExitCode,
		"outcome":   string(s.Outcome()),
	}
	if s.TimedOut {
		fields["timeout"] = s.Timeout.String()
	}
	if s.Error != "" {
		fields["error"] = s.Error
	}

	msg := fmt.Sprintf("%s finished in %s", s.Label, s.Elapsed)
	switch s.Outcome() {
	case metrics.OutcomeSuccess:
		logger.Info(msg, fields)
	default:
		logger.Warn(msg, fields)
	}
}
