package stopwatch

import "k8s.io/utils/clock"

// Stopwatch records laps ("rounds"). Each Round closes the current lap,
// appends it to the partials and opens the next one. Like Timer, a
// Stopwatch is not safe for concurrent use.
type Stopwatch struct {
	timer    *Timer
	total    Duration
	partials []Duration
}

// NewStopwatch returns a stopwatch whose first lap starts now.
func NewStopwatch(mode PrintMode, format string) *Stopwatch {
	return NewStopwatchWithClock(clock.RealClock{}, mode, format)
}

func NewStopwatchWithClock(c clock.PassiveClock, mode PrintMode, format string) *Stopwatch {
	t := NewTimerWithClock(c, mode, format)
	return &Stopwatch{timer: t, total: Zero().WithPolicy(t.Policy())}
}

// Start reopens the current lap without touching recorded partials.
func (s *Stopwatch) Start() {
	s.timer.Start()
}

// Reset drops every partial, zeroes the total and opens a new lap.
func (s *Stopwatch) Reset() {
	s.timer.Reset()
	s.total.SetNanos(0)
	s.partials = nil
}

// Round closes the current lap, records it and returns it.
func (s *Stopwatch) Round() Duration {
	lap := s.timer.Stop()
	s.total = s.total.Add(lap)
	s.partials = append(s.partials, lap)
	return lap
}

// LastRound returns the most recent lap, or the running lap when none has
// been recorded yet.
func (s *Stopwatch) LastRound() Duration {
	if len(s.partials) == 0 {
		return s.timer.Elapsed()
	}
	return s.partials[len(s.partials)-1].WithPolicy(s.timer.Policy())
}

// Partials returns a copy of the recorded laps, oldest first.
func (s *Stopwatch) Partials() []Duration {
	out := make([]Duration, len(s.partials))
	p := s.timer.Policy()
	for i, lap := range s.partials {
		out[i] = lap.WithPolicy(p)
	}
	return out
}

// Rounds reports how many laps have been recorded.
func (s *Stopwatch) Rounds() int { return len(s.partials) }

// Total is the sum of the recorded laps. The running lap is not included.
func (s *Stopwatch) Total() Duration {
	return s.total.WithPolicy(s.timer.Policy())
}

func (s *Stopwatch) SetPrintMode(mode PrintMode) { s.timer.SetPrintMode(mode) }

func (s *Stopwatch) SetFormat(format string) { s.timer.SetFormat(format) }

func (s *Stopwatch) Policy() Policy { return s.timer.Policy() }

// String renders Total.
func (s *Stopwatch) String() string {
	return s.Total().String()
}

// Time resets s, runs fn as a single lap and returns it.
func Time(s *Stopwatch, fn func()) Duration {
	s.Reset()
	s.Start()
	fn()
	return s.Round()
}

// Repeat resets s and runs fn n times, one lap each, returning the laps.
func Repeat(s *Stopwatch, n int, fn func()) []Duration {
	s.Reset()
	for i := 0; i < n; i++ {
		s.Start()
		fn()
		s.Round()
	}
	return s.Partials()
}
