package http

import (
	"net/http"
	"time"

	"samarpan/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type watchMessage struct {
	Type    string             `json:"type"`
	Payload domain.GameSession `json:"payload"`
}

// watchSession streams snapshots of a live session: one on connect, then one per status change.
// The feed is read-only; the socket is closed normally once the session finishes.
func (s *Server) watchSession(w http.ResponseWriter, r *http.Request) {
	updates, cancel, err := s.sessions.Watch(r.Context(), r.PathValue("pin"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()
	log := s.log.WithField("pin", r.PathValue("pin"))

	// Only this goroutine writes data frames.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case snapshot, ok := <-updates:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(watchMessage{Type: "session", Payload: snapshot}); err != nil {
					log.WithError(err).Debug("websocket write failed")
					return
				}
				if snapshot.Status == domain.StatusFinished {
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished")
					_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	cancel()
	<-writerDone
}
