package signals

import (
	"time"

	evbus "github.com/asaskevich/EventBus"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/connstated/internal/connstate"
	"github.com/dmdmdm-nz/connstated/internal/runtime"
)

// Topics published on the bus. Handlers receive the ConnectionInfo and the
// time the transition was observed:
//
//	func(info connstate.ConnectionInfo, at time.Time)
const (
	TopicEstablished = string(connstate.ConnectionEstablished)
	TopicLost        = string(connstate.ConnectionLost)
)

// BusEmitter republishes connection events as in-process bus topics. Emit
// only queues; a dispatcher goroutine publishes in event order so bus
// handlers never run on the platform callback thread.
type BusEmitter struct {
	bus  evbus.Bus
	q    *runtime.SubQueue[connstate.Event]
	done chan struct{}
}

// NewBusEmitter starts publishing onto bus, or a fresh bus when nil.
// maxBacklog bounds queued events; zero means unbounded.
func NewBusEmitter(bus evbus.Bus, maxBacklog int) *BusEmitter {
	if bus == nil {
		bus = evbus.New()
	}
	e := &BusEmitter{
		bus:  bus,
		q:    runtime.NewSubQueue[connstate.Event](0, maxBacklog),
		done: make(chan struct{}),
	}
	go e.dispatch()
	return e
}

// Bus returns the underlying bus for subscribing handlers.
func (e *BusEmitter) Bus() evbus.Bus { return e.bus }

func (e *BusEmitter) Emit(ev connstate.Event) {
	e.q.Enqueue(ev)
}

// Close stops publishing and waits for in-flight handlers, including async
// ones, to finish. Events still queued are discarded.
func (e *BusEmitter) Close() error {
	if n := e.q.Pending(); n > 0 {
		log.WithField("events", n).Debug("Discarding unpublished bus events")
	}
	e.q.Close()
	<-e.done
	e.bus.WaitAsync()
	if n := e.q.Dropped(); n > 0 {
		log.WithField("dropped", n).Warn("Event bus backlog overflowed")
	}
	return nil
}

func (e *BusEmitter) dispatch() {
	defer close(e.done)
	for ev := range e.q.Chan() {
		if !e.bus.HasCallback(string(ev.Type)) {
			continue
		}
		e.bus.Publish(string(ev.Type), ev.Info, ev.Time)
	}
}

// LogTransitions subscribes handlers that log every transition, for
// operators running without an event stream client.
func LogTransitions(bus evbus.Bus) error {
	if err := bus.SubscribeAsync(TopicEstablished, func(info connstate.ConnectionInfo, at time.Time) {
		log.WithFields(log.Fields{
			"connection_type": info.Type,
			"active":          info.IsActive,
			"metered":         info.IsMetered,
			"at":              at.Format(time.RFC3339),
		}).Debug("Bus: connection established")
	}, false); err != nil {
		return err
	}
	return bus.SubscribeAsync(TopicLost, func(info connstate.ConnectionInfo, at time.Time) {
		log.WithFields(log.Fields{
			"connection_type": info.Type,
			"at":              at.Format(time.RFC3339),
		}).Debug("Bus: connection lost")
	}, false)
}
