// Package stopwatch measures elapsed wall-clock time between a start event
// and later inspections, and renders it as a human readable string or as a
// formatted number of seconds.
//
// A Timer is always measuring: Start, Reset and Stop all restart the
// measurement window, and Stop additionally returns what was measured.
// Timers are not safe for concurrent use; Duration values are.
package stopwatch

import (
	"errors"
	"fmt"
	"strings"
)

// PrintMode selects how a Duration renders itself.
type PrintMode int

const (
	// Human renders unit-suffixed text such as "1h23m" or "12s340ms".
	Human PrintMode = iota
	// Numeric renders a bare floating point number of seconds.
	Numeric
)

// ErrUnknownPrintMode is returned when a print mode name cannot be parsed.
var ErrUnknownPrintMode = errors.New("unknown print mode")

func (m PrintMode) String() string {
	switch m {
	case Human:
		return "human"
	case Numeric:
		return "numeric"
	default:
		return fmt.Sprintf("PrintMode(%d)", int(m))
	}
}

// ParsePrintMode parses "human" or "numeric", ignoring case and surrounding
// whitespace.
func ParsePrintMode(s string) (PrintMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "human":
		return Human, nil
	case "numeric":
		return Numeric, nil
	default:
		return Human, fmt.Errorf("%w: %q", ErrUnknownPrintMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m PrintMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *PrintMode) UnmarshalText(text []byte) error {
	parsed, err := ParsePrintMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Policy is the rendering policy of a Duration. It never takes part in
// equality or ordering.
type Policy struct {
	Mode   PrintMode `json:"mode" yaml:"mode"`
	Format string    `json:"format,omitempty" yaml:"format,omitempty"`
}

// NewPolicy parses a mode name and pairs it with format.
func NewPolicy(mode, format string) (Policy, error) {
	m, err := ParsePrintMode(mode)
	if err != nil {
		return Policy{}, err
	}
	return Policy{Mode: m, Format: format}, nil
}
