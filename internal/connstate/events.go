package connstate

import "time"

type EventType string

const (
	ConnectionEstablished EventType = "connection_established"
	ConnectionLost        EventType = "connection_lost"
)

// Event is a connectivity transition raised by the Monitor.
type Event struct {
	Type EventType
	Info ConnectionInfo
	Time time.Time
}

// Emitter pushes events to consumers. Emit must not block on a consumer;
// implementations queue or drop instead.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to Emitter. The function must return promptly.
type EmitterFunc func(ev Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

// MultiEmitter forwards every event to each of its emitters in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ev Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ev)
		}
	}
}

type noopEmitter struct{}

func (noopEmitter) Emit(Event) {}
