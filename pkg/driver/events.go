package driver

import (
	"time"
)

// EventType names a driver event.
type EventType string

const (
	EventOpened       EventType = "db.opened"
	EventOpenFailed   EventType = "db.open_failed"
	EventClosed       EventType = "db.closed"
	EventQueryDone    EventType = "query.completed"
	EventQueryFailed  EventType = "query.execution_failed"
	EventSystemFailed EventType = "query.system_failure"

	// Emitted when a cell is tagged node/edge but the engine refuses to
	// extract it. The cell decodes to Null and the query still succeeds.
	EventNodeExtractFailed EventType = "decode.node_extraction_failed"
	EventEdgeExtractFailed EventType = "decode.edge_extraction_failed"
)

// Event is a structured record of something the driver did. The driver emits
// events instead of logging; an Observer decides what to do with them.
type Event struct {
	Type EventType
	Time time.Time

	Path  string
	Query string

	// Row and Column locate decode events (zero-based).
	Row    int
	Column int

	// Message holds the failure text for failure events.
	Message string

	// Counts and timing for EventQueryDone.
	Rows     int
	Nodes    int
	Edges    int
	Duration time.Duration
}

// Observer receives driver events. Implementations must not call back into
// the driver.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type multiObserver []Observer

func (m multiObserver) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// MultiObserver fans events out to every non-nil observer.
func MultiObserver(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

func emit(o Observer, e Event) {
	if o == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	o.Observe(e)
}
