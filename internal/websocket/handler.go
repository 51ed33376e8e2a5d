package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/mtr002/jobcore/internal/logger"
)

const (
	EventJobOutcome   = "job_outcome"
	EventCircuitState = "circuit_state"
)

func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// Handler returns an http.Handler upgrading requests onto hub
func Handler(hub *Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HandleWebSocket(hub, w, r)
	})
}

func BroadcastEvent(hub *Hub, eventType string, data any) {
	message, err := json.Marshal(map[string]any{
		"type": eventType,
		"data": data,
	})
	if err != nil {
		logger.Logger.Error().Err(err).Str("event", eventType).Msg("Failed to marshal websocket event")
		return
	}

	hub.Broadcast(message)
}
