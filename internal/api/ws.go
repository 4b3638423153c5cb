package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/schawnndev/receiptprinter/internal/entity"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsBuffer     = 64
)

// Message is sent to websocket clients
type Message struct {
	Type      string       `json:"type"`
	State     entity.State `json:"state"`
	Timestamp string       `json:"timestamp"`
}

const (
	MessageTypeState        = "state"
	MessageTypeStateChanged = "state_changed"
)

// handleWS sends the current state of every sensor, then each change as it happens
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	updates, unsubscribe := s.manager.Subscribe(wsBuffer)
	defer unsubscribe()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	log := s.log.WithField("remote", r.RemoteAddr)
	log.Debug("websocket client connected")

	for _, e := range s.manager.Entries() {
		states, err := s.manager.States(e.ID)
		if err != nil {
			continue
		}
		for _, st := range states {
			if err := s.send(conn, MessageTypeState, st); err != nil {
				return
			}
		}
	}

	readErrors := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErrors <- err
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case err := <-readErrors:
			log.WithError(err).Debug("websocket client gone")
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := s.send(conn, MessageTypeStateChanged, st); err != nil {
				log.WithError(err).Debug("websocket write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(conn *websocket.Conn, kind string, st entity.State) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(Message{
		Type:      kind,
		State:     st,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
