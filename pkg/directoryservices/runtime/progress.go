package runtime

import "sync"

// Reporter receives progress checkpoints for a long-running operation.
// Checkpoints are emitted on failing paths too, up to the point of
// failure.
type Reporter interface {
	Report(percent int, message string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(percent int, message string)

// Report calls f.
func (f ReporterFunc) Report(percent int, message string) {
	f(percent, message)
}

// NopReporter discards progress checkpoints.
var NopReporter Reporter = ReporterFunc(func(int, string) {})

// monotonicReporter enforces a non-decreasing percentage per
// operation, as required by job-status observers.
type monotonicReporter struct {
	mu   sync.Mutex
	last int
	next Reporter
}

func newMonotonicReporter(next Reporter) *monotonicReporter {
	if next == nil {
		next = NopReporter
	}
	return &monotonicReporter{next: next}
}

func (m *monotonicReporter) Report(percent int, message string) {
	m.mu.Lock()
	if percent < m.last {
		percent = m.last
	}
	m.last = percent
	m.mu.Unlock()
	m.next.Report(percent, message)
}
