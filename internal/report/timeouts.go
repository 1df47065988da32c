package report

import "sync"

// TimeoutEntry is the part of a sample kept for a run that overran its
// timeout.
type TimeoutEntry struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Elapsed  string  `json:"elapsed"`
	Seconds  float64 `json:"elapsed_seconds"`
	Timeout  float64 `json:"timeout_seconds"`
	ExitCode int     `json:"exit_code"`
}

// TimeoutLog keeps the last N timed-out samples.
type TimeoutLog struct {
	entries []TimeoutEntry
	maxSize int
	total   uint64
	mu      sync.RWMutex
}

// NewTimeoutLog creates a log holding at most maxSize entries.
func NewTimeoutLog(maxSize int) *TimeoutLog {
	if maxSize < 1 {
		maxSize = 1
	}
	return &TimeoutLog{
		entries: make([]TimeoutEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record adds s if it timed out; other samples are ignored.
func (l *TimeoutLog) Record(s *Sample) {
	if !s.TimedOut {
		return
	}

	e := TimeoutEntry{
		ID:       s.ID,
		Label:    s.Label,
		Elapsed:  s.Elapsed.String(),
		Seconds:  s.Elapsed.Count(),
		Timeout:  s.Timeout.Seconds(),
		ExitCode: s.ExitCode,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.total++
	if len(l.entries) >= l.maxSize {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (l *TimeoutLog) Recent(n int) []TimeoutEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}

	out := make([]TimeoutEntry, n)
	for i := 0; i < n; i++ {
		out[i] = l.entries[len(l.entries)-1-i]
	}
	return out
}

// Count returns how many entries are held.
func (l *TimeoutLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Total returns how many timeouts were ever recorded.
func (l *TimeoutLog) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}
