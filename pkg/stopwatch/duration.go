package stopwatch

import (
	"encoding/json"
	"time"
)

// Duration is a signed nanosecond count paired with a rendering Policy.
// Values are freely copyable; the policy only affects String.
type Duration struct {
	nanos  int64
	policy Policy
}

// Zero returns a zero Duration with the default policy.
func Zero() Duration {
	return Duration{}
}

// FromNanos builds a Duration of n nanoseconds rendered with mode and format.
func FromNanos(n int64, mode PrintMode, format string) Duration {
	return Duration{nanos: n, policy: Policy{Mode: mode, Format: format}}
}

// FromStd converts a time.Duration.
func FromStd(d time.Duration, p Policy) Duration {
	return Duration{nanos: int64(d), policy: p}
}

// Count returns the duration in seconds.
func (d Duration) Count() float64 {
	return float64(d.nanos) / 1e9
}

// Nanoseconds returns the raw nanosecond count.
func (d Duration) Nanoseconds() int64 { return d.nanos }

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d.nanos) }

func (d Duration) Policy() Policy       { return d.policy }
func (d Duration) PrintMode() PrintMode { return d.policy.Mode }
func (d Duration) Format() string       { return d.policy.Format }

// SetPrintMode changes the rendering mode; the value is untouched.
func (d *Duration) SetPrintMode(mode PrintMode) {
	d.policy.Mode = mode
}

// SetFormat changes the format string; the value is untouched.
func (d *Duration) SetFormat(format string) {
	d.policy.Format = format
}

// SetPolicy replaces the whole rendering policy.
func (d *Duration) SetPolicy(p Policy) {
	d.policy = p
}

// SetNanos replaces the value and keeps the current policy.
func (d *Duration) SetNanos(n int64) {
	d.nanos = n
}

// Assign copies the value of v into d and keeps d's policy, so assigning
// Zero() clears the measurement without resetting how it renders.
func (d *Duration) Assign(v Duration) {
	d.nanos = v.nanos
}

// WithPolicy returns a copy of d rendered under p.
func (d Duration) WithPolicy(p Policy) Duration {
	d.policy = p
	return d
}

// Equal reports whether both durations hold the same value.
func (d Duration) Equal(o Duration) bool {
	return d.nanos == o.nanos
}

// Compare returns -1, 0 or +1 depending on whether d is shorter than, equal
// to, or longer than o.
func (d Duration) Compare(o Duration) int {
	switch {
	case d.nanos < o.nanos:
		return -1
	case d.nanos > o.nanos:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether the value is zero.
func (d Duration) IsZero() bool { return d.nanos == 0 }

type durationView struct {
	Nanos   int64   `json:"nanos" yaml:"nanos"`
	Seconds float64 `json:"seconds" yaml:"seconds"`
	Text    string  `json:"text" yaml:"text"`
}

func (d Duration) view() durationView {
	return durationView{Nanos: d.nanos, Seconds: d.Count(), Text: d.String()}
}

// MarshalJSON emits the value together with its rendered text.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.view())
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.view(), nil
}
