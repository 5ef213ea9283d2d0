package telemetry

import (
	"sync"

	"codeberg.org/mutker/mccli/internal/errors"
)

// EventLog is the ordered, append-only record of a session. Appends are
// safe from multiple goroutines; order is append completion order.
type EventLog struct {
	mu       sync.Mutex
	entries  []Entry
	closed   bool
	rejected int
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

// AppendSample appends a telemetry sample.
func (l *EventLog) AppendSample(s StateSample) error {
	return l.append(s)
}

// AppendMarker appends a command marker.
func (l *EventLog) AppendMarker(m CommandMarker) error {
	return l.append(m)
}

func (l *EventLog) append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		l.rejected++
		return errors.New().New(ErrLogClosed)
	}

	l.entries = append(l.entries, e)

	return nil
}

// Close freezes the log. Later appends fail with ErrLogClosed.
func (l *EventLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

func (l *EventLog) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Rejected returns how many appends arrived after Close.
func (l *EventLog) Rejected() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rejected
}

// Entries returns a copy of the log contents.
func (l *EventLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)

	return entries
}

// Samples returns the StateSample entries in log order.
func (l *EventLog) Samples() []StateSample {
	l.mu.Lock()
	defer l.mu.Unlock()

	var samples []StateSample
	for _, e := range l.entries {
		if s, ok := e.(StateSample); ok {
			samples = append(samples, s)
		}
	}

	return samples
}

// Markers returns the CommandMarker entries in log order.
func (l *EventLog) Markers() []CommandMarker {
	l.mu.Lock()
	defer l.mu.Unlock()

	var markers []CommandMarker
	for _, e := range l.entries {
		if m, ok := e.(CommandMarker); ok {
			markers = append(markers, m)
		}
	}

	return markers
}
