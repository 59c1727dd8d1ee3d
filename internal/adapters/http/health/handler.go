package health

import (
	"net/http"

	apphealth "3tcapital/otrs_connector/internal/application/health"
	httperrors "3tcapital/otrs_connector/internal/infrastructure/http"
)

// Handler bridges HTTP traffic with the health application service.
type Handler struct {
	service *apphealth.Service
}

func NewHandler(service *apphealth.Service) *Handler {
	return &Handler{service: service}
}

// Status always answers 200 so a degraded audit database does not take the gateway out of rotation.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	httperrors.WriteJSON(w, http.StatusOK, h.service.Status(r.Context()), nil)
}
