// Package report collects timed samples and renders them for people and
// machines.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/stopwatch/pkg/metrics"
	"github.com/psantana5/stopwatch/pkg/sysinfo"
)

// ErrUnknownFormat is returned by Write for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown output format")

// Report is every sample of one invocation plus the host it ran on.
// Samples are listed individually; nothing is aggregated.
type Report struct {
	Host        sysinfo.Host `json:"host" yaml:"host"`
	GeneratedAt time.Time    `json:"generated_at" yaml:"generated_at"`
	Samples     []*Sample    `json:"samples" yaml:"samples"`
}

func New(host sysinfo.Host) *Report {
	return &Report{Host: host, GeneratedAt: time.Now()}
}

// Add appends samples in the order they were taken.
func (r *Report) Add(samples ...*Sample) {
	r.Samples = append(r.Samples, samples...)
}

// Failed returns the samples that did not succeed.
func (r *Report) Failed() []*Sample {
	return lo.Filter(r.Samples, func(s *Sample, _ int) bool {
		return s.Outcome() != metrics.OutcomeSuccess
	})
}

// Write renders the report as table, json, yaml or text.
func (r *Report) Write(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "", "table":
		return r.writeTable(w)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		return r.writeText(w)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func (r *Report) writeTable(w io.Writer) error {
	fmt.Fprintf(w, "Host: %s (%s/%s, %s, %d threads, %s)\n",
		r.Host.Hostname, r.Host.OS, r.Host.Arch, r.Host.CPUModel, r.Host.CPUThreads, sysinfo.FormatRAM(r.Host.RAMTotalBytes))

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Label", "Command", "Elapsed", "Exit", "Timed Out")

	rows := lo.Map(r.Samples, func(s *Sample, _ int) []string {
		exit := strconv.Itoa(s.ExitCode)
		switch s.ExitCode {
		case ExitNotStarted:
			exit = "-"
		case ExitSignaled:
			exit = "killed"
		}
		return []string{
			s.ShortID(),
			s.Label,
			truncate(s.CommandLine(), 40),
			s.Elapsed.String(),
			exit,
			yesNo(s.TimedOut),
		}
	})
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// writeText prints one "label elapsed" line per sample, which is what the
// plain output of a stopwatch looks like.
func (r *Report) writeText(w io.Writer) error {
	for _, s := range r.Samples {
		line := s.Label + " " + s.Elapsed.String()
		if s.TimedOut {
			line += " (timed out)"
		}
		if s.Error != "" {
			line += " (" + s.Error + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// truncate shortens s to at most n runes, ending in "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
