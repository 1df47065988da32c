package stopwatch

import (
	"time"

	"k8s.io/utils/clock"
)

// Timer measures the time elapsed since it was created or last restarted.
//
// There is no stopped state. Start, Reset and Stop all begin a new
// measurement window; Stop also returns the window that just ended.
type Timer struct {
	clock   clock.PassiveClock
	start   time.Time
	policy  Policy
	timeout time.Duration
}

// NewTimer returns a running timer on the process clock.
func NewTimer(mode PrintMode, format string) *Timer {
	return NewTimerWithClock(clock.RealClock{}, mode, format)
}

// NewTimerWithClock returns a running timer reading c. A nil clock falls
// back to the process clock.
func NewTimerWithClock(c clock.PassiveClock, mode PrintMode, format string) *Timer {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Timer{
		clock:  c,
		start:  c.Now(),
		policy: Policy{Mode: mode, Format: format},
	}
}

// Start discards the current window and begins a new one.
func (t *Timer) Start() {
	t.start = t.clock.Now()
}

// Reset begins a new window. The rendering policy and timeout are kept.
func (t *Timer) Reset() {
	t.start = t.clock.Now()
}

// Stop returns the elapsed time of the current window and then resets.
// Both steps read the clock once, so nothing is lost between them.
func (t *Timer) Stop() Duration {
	now := t.clock.Now()
	elapsed := FromStd(now.Sub(t.start), t.policy)
	t.start = now
	return elapsed
}

// Elapsed returns the time since the window began, rendered under the
// timer's current policy. It does not change the timer.
func (t *Timer) Elapsed() Duration {
	return FromStd(t.clock.Since(t.start), t.policy)
}

// StartedAt returns the clock sample that opened the current window.
func (t *Timer) StartedAt() time.Time { return t.start }

// SetPrintMode changes the mode of every Duration produced from now on.
func (t *Timer) SetPrintMode(mode PrintMode) {
	t.policy.Mode = mode
}

// SetFormat changes the format of every Duration produced from now on.
func (t *Timer) SetFormat(format string) {
	t.policy.Format = format
}

// SetPolicy replaces mode and format at once.
func (t *Timer) SetPolicy(p Policy) {
	t.policy = p
}

func (t *Timer) Policy() Policy { return t.policy }

// String renders a zero duration under the timer's policy. It does not
// report the elapsed time; use Elapsed().String() for that.
func (t *Timer) String() string {
	return Zero().WithPolicy(t.policy).String()
}

// SetTimeout sets the target duration checked by HasTimeout and Remaining.
// Zero means no target.
func (t *Timer) SetTimeout(d time.Duration) {
	t.timeout = d
}

// SetTimeoutSeconds is SetTimeout for a fractional number of seconds.
func (t *Timer) SetTimeoutSeconds(seconds float64) {
	t.timeout = time.Duration(seconds * float64(time.Second))
}

func (t *Timer) Timeout() time.Duration { return t.timeout }

// Remaining returns the time left before the timeout, or zero once the
// timeout is exceeded or when none is set.
func (t *Timer) Remaining() Duration {
	left := t.timeout - t.clock.Since(t.start)
	if t.timeout <= 0 || left < 0 {
		left = 0
	}
	return FromStd(left, t.policy)
}

// HasTimeout reports whether the elapsed time is strictly greater than the
// timeout. It is always false when no timeout is set.
func (t *Timer) HasTimeout() bool {
	if t.timeout <= 0 {
		return false
	}
	return t.Elapsed().Nanoseconds() > int64(t.timeout)
}

// HasElapsed reports whether more than seconds have elapsed on t. The
// comparison is strict: exactly reaching the threshold is not enough.
func HasElapsed(t *Timer, seconds float64) bool {
	return t.Elapsed().Count() > seconds
}

// Measure resets t, runs fn and returns how long it took. The timer is left
// running in a fresh window.
func Measure(t *Timer, fn func()) Duration {
	t.Reset()
	fn()
	return t.Stop()
}

// MeasureErr is Measure for functions that can fail. The duration is
// returned even when fn fails.
func MeasureErr(t *Timer, fn func() error) (Duration, error) {
	t.Reset()
	err := fn()
	return t.Stop(), err
}
