// Package metrics exposes stopwatch measurements as Prometheus metrics.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// Outcome classifies a finished measurement.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
)

// Observation is one finished measurement.
type Observation struct {
	Label    string
	Elapsed  stopwatch.Duration
	Outcome  Outcome
	TimedOut bool
}

// Registry is satisfied by *prometheus.Registry.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Recorder turns observations into Prometheus series.
type Recorder struct {
	registry Registry

	elapsed  *prometheus.HistogramVec
	last     *prometheus.GaugeVec
	runs     *prometheus.CounterVec
	timeouts *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewRecorder registers the stopwatch collectors on reg. A nil reg gets a
// fresh registry.
func NewRecorder(reg Registry) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Recorder{
		registry: reg,
		elapsed: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stopwatch_elapsed_seconds",
				Help:    "Elapsed wall time of timed runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"label"},
		),
		last: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stopwatch_last_elapsed_seconds",
				Help: "Elapsed wall time of the most recent run in seconds",
			},
			[]string{"label"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stopwatch_runs_total",
				Help: "Timed runs by outcome",
			},
			[]string{"label", "outcome"},
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stopwatch_timeouts_total",
				Help: "Timed runs that exceeded their timeout",
			},
			[]string{"label"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stopwatch_http_requests_total",
				Help: "HTTP requests served by the stopwatch endpoint",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stopwatch_http_request_duration_seconds",
				Help:    "HTTP request latency of the stopwatch endpoint",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	for _, c := range []prometheus.Collector{r.elapsed, r.last, r.runs, r.timeouts, r.httpRequests, r.httpDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering stopwatch metrics: %w", err)
		}
	}
	return r, nil
}

// Observe records o. Measurements that never started (OutcomeError) only
// count towards stopwatch_runs_total.
func (r *Recorder) Observe(o Observation) {
	r.runs.WithLabelValues(o.Label, string(o.Outcome)).Inc()
	if o.TimedOut {
		r.timeouts.WithLabelValues(o.Label).Inc()
	}
	if o.Outcome == OutcomeError {
		return
	}
	secs := o.Elapsed.Count()
	r.elapsed.WithLabelValues(o.Label).Observe(secs)
	r.last.WithLabelValues(o.Label).Set(secs)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// WriteText writes every gathered family in the text exposition format.
func (r *Recorder) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding metric %s: %w", mf.GetName(), err)
		}
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// RunTotals sums stopwatch_runs_total over all labels, by outcome.
func (r *Recorder) RunTotals() (map[Outcome]uint64, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering metrics: %w", err)
	}

	totals := make(map[Outcome]uint64)
	for _, mf := range families {
		if mf.GetName() != "stopwatch_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			totals[Outcome(labelValue(m, "outcome"))] += uint64(m.GetCounter().GetValue())
		}
	}
	return totals, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
