// Package handlers provides the HTTP handlers of the realtime server.
package handlers

import (
	"time"

	"github.com/gorilla/websocket"

	ws "github.com/agentstation/rebase/internal/server/websocket"
)

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	store     string
	wsHub     *ws.Hub
	upgrader  websocket.Upgrader
	startTime time.Time
}

// New creates a new Handlers instance for the named store.
func New(store string, wsHub *ws.Hub, upgrader websocket.Upgrader, startTime time.Time) *Handlers {
	return &Handlers{
		store:     store,
		wsHub:     wsHub,
		upgrader:  upgrader,
		startTime: startTime,
	}
}
