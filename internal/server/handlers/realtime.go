package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/agentstation/rebase/internal/server/response"
	"github.com/agentstation/rebase/pkg/logging"
)

// HandleWebSocket upgrades the request and serves the store protocol on the
// connection until either side closes it.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.wsHub.Done():
		response.Unavailable(w, "the server is shutting down")
		return
	default:
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	ctx := logging.WithConnectionID(r.Context(), id.String())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(ctx).Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	if !h.wsHub.Serve(id.String(), conn) {
		logging.FromContext(ctx).Warn().Msg("WebSocket refused, server is shutting down")
		return
	}
	logging.FromContext(ctx).Debug().Msg("WebSocket connection upgraded")
}
