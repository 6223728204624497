package control

import (
	"context"
	"sync"
	"time"
)

type Event struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

const DefaultEventCapacity = 50

// EventLog keeps the most recent device problems. It is the engine's
// notifier when the control server is enabled.
type EventLog struct {
	mu       sync.Mutex
	capacity int
	events   []Event
	now      func() time.Time
}

func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &EventLog{capacity: capacity, now: time.Now}
}

func (l *EventLog) Notify(_ context.Context, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{Time: l.now().UTC(), Message: message})
	if len(l.events) > l.capacity {
		l.events = l.events[len(l.events)-l.capacity:]
	}
	return nil
}

// Events returns the log oldest first.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}
