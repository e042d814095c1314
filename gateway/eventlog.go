package gateway

import (
	"sync"
	"time"

	"github.com/shreya-uprety/medforce-gateway/gateway/events"
)

const (
	maxEventLog  = 1000
	trimEventLog = 500
	maxDLQ       = 500
	trimDLQ      = 250
)

// EventLogEntry is one processed-event audit record (spec.md §7).
type EventLogEntry struct {
	EventID     string      `json:"event_id"`
	EventType   events.Type `json:"event_type"`
	PatientID   string      `json:"patient_id"`
	Target      string      `json:"target,omitempty"`
	Outcome     string      `json:"outcome"`
	Detail      string      `json:"detail,omitempty"`
	PhaseBefore string      `json:"phase_before,omitempty"`
	PhaseAfter  string      `json:"phase_after,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// DLQEntry is one event that failed agent processing after routing.
type DLQEntry struct {
	Event     events.Envelope `json:"event"`
	Target    string          `json:"target"`
	Err       string          `json:"error"`
	Timestamp time.Time       `json:"timestamp"`
}

// eventLog is a bounded FIFO audit trail, trimmed in one shot once it
// exceeds its cap rather than evicting one-at-a-time (spec.md §7).
type eventLog struct {
	mu      sync.Mutex
	entries []EventLogEntry
}

func newEventLog() *eventLog { return &eventLog{} }

func (l *eventLog) record(e EventLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if len(l.entries) > maxEventLog {
		l.entries = append([]EventLogEntry{}, l.entries[len(l.entries)-trimEventLog:]...)
	}
}

// Recent returns up to limit of the most recently recorded entries.
func (l *eventLog) Recent(limit int) []EventLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]EventLogEntry, limit)
	copy(out, l.entries[len(l.entries)-limit:])
	return out
}

// deadLetterQueue holds events an agent failed to process, for
// inspection and manual replay.
type deadLetterQueue struct {
	mu      sync.Mutex
	entries []DLQEntry
}

func newDeadLetterQueue() *deadLetterQueue { return &deadLetterQueue{} }

func (q *deadLetterQueue) record(e DLQEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
	if len(q.entries) > maxDLQ {
		q.entries = append([]DLQEntry{}, q.entries[len(q.entries)-trimDLQ:]...)
	}
}

// All returns every entry currently held.
func (q *deadLetterQueue) All() []DLQEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DLQEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size reports the current entry count.
func (q *deadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Remove deletes the first entry matching eventID and returns it. ok is
// false if no entry with that ID was found.
func (q *deadLetterQueue) Remove(eventID string) (entry DLQEntry, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.Event.EventID == eventID {
			entry = e
			ok = true
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
	return
}
