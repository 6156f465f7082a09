package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const writeTimeout = 5 * time.Second

func accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
}

// StreamEvents sends the current connection state, then every connection
// event until the client goes away or the event source closes.
func StreamEvents(s *Service, w http.ResponseWriter, r *http.Request) {
	c, err := accept(w, r)
	if err != nil {
		log.WithError(err).Error("Failed to accept websocket client")
		return
	}
	defer c.CloseNow()

	session := uuid.NewString()
	logger := log.WithFields(log.Fields{
		"session": session,
		"remote":  r.RemoteAddr,
	})
	logger.Info("Event stream client connected")
	defer logger.Info("Event stream client disconnected")

	// Subscribe before the snapshot so no event falls between the two.
	events, unsub := s.events.Subscribe()
	defer unsub()

	// Clients only listen; CloseRead handles their control frames and ends
	// ctx when they disconnect.
	ctx := c.CloseRead(r.Context())

	snapshot := SnapshotMessage{
		Event:       snapshotEvent,
		Connections: s.state.ConnectionState(),
		Time:        time.Now().UTC(),
	}
	if err := write(ctx, c, snapshot); err != nil {
		logger.WithError(err).Debug("Failed to send state snapshot")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := write(ctx, c, newEventMessage(ev)); err != nil {
				logger.WithError(err).Debug("Failed to send event")
				return
			}
		}
	}
}

func write(ctx context.Context, c *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, v)
}
