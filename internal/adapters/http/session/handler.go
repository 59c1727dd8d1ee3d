package session

import (
	"log/slog"
	"net/http"

	"3tcapital/otrs_connector/internal/core/ticket"
	httperrors "3tcapital/otrs_connector/internal/infrastructure/http"
)

// Handler exposes the cached OTRS session. The session ID itself is never returned.
type Handler struct {
	session ticket.SessionController
	log     *slog.Logger
}

func NewHandler(session ticket.SessionController, log *slog.Logger) *Handler {
	return &Handler{session: session, log: log}
}

// Status handles GET /api/v1/session.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	httperrors.WriteJSON(w, http.StatusOK, h.session.Status(), h.log)
}

// Invalidate handles DELETE /api/v1/session. The next OTRS call creates a new session.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	h.session.Invalidate()
	h.log.Info("OTRS session invalidated on request", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}
