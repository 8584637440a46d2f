package dashboard

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamBuffer       = 64
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: streamWriteTimeout,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// stream pushes a status snapshot followed by every store event until the
// client disconnects or the engine closes.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the snapshot so no update falls between the two.
	events, cancel := h.engine.Subscribe(streamBuffer)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", slog.Any("err", err))
		return
	}
	defer conn.Close()
	// The server read timeout would otherwise end idle streams.
	_ = conn.SetReadDeadline(time.Time{})

	first := h.snapshot()
	first.Type = "snapshot"
	if err := writeMessage(conn, first); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "engine closed"),
					time.Now().Add(streamWriteTimeout))
				return
			}
			if err := writeMessage(conn, ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeMessage(conn *websocket.Conn, payload any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(payload)
}
