package events

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin is not enforced here: the browser clients for this API
	// are expected to live on a different origin than the API host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsPingInterval = 15 * time.Second

// WSHandler upgrades to a WebSocket and relays every frame published for
// the requestId in the path, sending a ping every wsPingInterval. It stops
// after relaying a terminal frame, or when the client closes, a write or
// ping fails, or the subscription channel is closed.
func WSHandler(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := chi.URLParam(r, "requestId")
		if requestID == "" {
			http.Error(w, "requestId required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws: upgrade failed", "error", err, "requestId", requestID)
			return
		}
		defer conn.Close()

		ch, unsubscribe := hub.Subscribe(requestID)
		defer unsubscribe()

		// A read goroutine is required even though clients don't send
		// anything meaningful: it's the only way to observe a client-side
		// close via gorilla's control-frame handling.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-closed:
				return
			case frame, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.WriteJSON(frame); err != nil {
					logger.Warn("ws: write failed", "error", err, "requestId", requestID)
					return
				}
				if isTerminalFrame(frame.Type) {
					return
				}
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}

func isTerminalFrame(frameType string) bool {
	switch frameType {
	case FrameReady, FrameClarify, FrameStopped, FrameError, FrameDone:
		return true
	}
	return false
}
