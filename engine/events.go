package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// EventSeverity classifies an operator event.
type EventSeverity string

const (
	SeverityInfo    EventSeverity = "info"
	SeverityWarning EventSeverity = "warning"
	SeverityError   EventSeverity = "error"
)

// EventType identifies what happened.
type EventType string

const (
	EventCycle          EventType = "cycle_completed"
	EventSignal         EventType = "signal_generated"
	EventOrder          EventType = "order_executed"
	EventStrategySwitch EventType = "strategy_switch"
	EventRegimeChange   EventType = "regime_change"
	EventRiskAlert      EventType = "risk_alert"
	EventSystem         EventType = "system"
)

// Event is one entry in the operator event log.
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// EventLog is a bounded, newest-first event buffer exposed over the
// operator API and broadcast to dashboard clients.
type EventLog struct {
	mu        sync.RWMutex
	events    []Event
	maxEvents int
	seq       atomic.Uint64
	onEvent   func(Event)
}

// NewEventLog creates a log that keeps at most maxEvents entries.
func NewEventLog(maxEvents int) *EventLog {
	if maxEvents <= 0 {
		maxEvents = 200
	}
	return &EventLog{maxEvents: maxEvents}
}

// OnEvent registers a callback invoked for every recorded event, outside
// the log's lock.
func (l *EventLog) OnEvent(fn func(Event)) {
	l.mu.Lock()
	l.onEvent = fn
	l.mu.Unlock()
}

// Record appends an event, evicting the oldest entries past the cap.
func (l *EventLog) Record(typ EventType, severity EventSeverity, format string, args ...interface{}) {
	ev := Event{
		ID:        fmt.Sprintf("evt-%d", l.seq.Add(1)),
		Type:      typ,
		Severity:  severity,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}

	l.mu.Lock()
	l.events = append([]Event{ev}, l.events...)
	if len(l.events) > l.maxEvents {
		l.events = l.events[:l.maxEvents]
	}
	fn := l.onEvent
	l.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
}

// Events returns a copy of the log, newest first.
func (l *EventLog) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// EventsBySeverity returns only events at the given severity, newest first.
func (l *EventLog) EventsBySeverity(severity EventSeverity) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Severity == severity {
			out = append(out, ev)
		}
	}
	return out
}
