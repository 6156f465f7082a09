package api

import (
	"time"

	"github.com/dmdmdm-nz/connstated/internal/connstate"
)

// StateProvider answers get_connection_state.
type StateProvider interface {
	ConnectionState() []connstate.ConnectionInfo
}

// EventSource hands out live event subscriptions.
type EventSource interface {
	Subscribe() (<-chan connstate.Event, func())
}

// EventMessage is one websocket frame on /ws/events.
type EventMessage struct {
	Event string                   `json:"event"`
	Info  connstate.ConnectionInfo `json:"info"`
	Time  time.Time                `json:"time"`
}

// SnapshotMessage is the first frame of every /ws/events session.
type SnapshotMessage struct {
	Event       string                     `json:"event"`
	Connections []connstate.ConnectionInfo `json:"connections"`
	Time        time.Time                  `json:"time"`
}

const snapshotEvent = "snapshot"

func newEventMessage(ev connstate.Event) EventMessage {
	return EventMessage{
		Event: string(ev.Type),
		Info:  ev.Info,
		Time:  ev.Time.UTC(),
	}
}
