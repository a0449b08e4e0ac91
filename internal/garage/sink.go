package garage

import "github.com/sweeney/garage-door/internal/logic"

// Sink receives door status notifications. Implementations must be safe for
// concurrent use: every door notifies from its own goroutine.
type Sink interface {
	Notify(door string, event logic.Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(door string, event logic.Event)

// Notify calls f.
func (f SinkFunc) Notify(door string, event logic.Event) {
	f(door, event)
}

// Sinks fans a notification out to every member in order.
type Sinks []Sink

// Notify forwards the event to each sink.
func (s Sinks) Notify(door string, event logic.Event) {
	for _, sink := range s {
		sink.Notify(door, event)
	}
}

// Edges wraps a sink so it only sees non-repeat events.
func Edges(s Sink) Sink {
	return SinkFunc(func(door string, event logic.Event) {
		if event.Repeat {
			return
		}
		s.Notify(door, event)
	})
}
