package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"3tcapital/otrs_connector/internal/adapters/otrs"
	appticket "3tcapital/otrs_connector/internal/application/ticket"
	coreticket "3tcapital/otrs_connector/internal/core/ticket"
	ctxutil "3tcapital/otrs_connector/internal/infrastructure/context"
	httperrors "3tcapital/otrs_connector/internal/infrastructure/http"
)

// maxBodyBytes bounds request bodies; attachments travel base64 encoded.
const maxBodyBytes = 20 << 20

// Handler bridges HTTP traffic with the ticket application service.
type Handler struct {
	service *appticket.Service
	log     *slog.Logger
}

// NewHandler creates a new ticket HTTP handler.
func NewHandler(service *appticket.Service, log *slog.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// CreateTicketRequest is the body of POST /api/v1/tickets.
type CreateTicketRequest struct {
	Ticket  coreticket.Ticket  `json:"ticket"`
	Article coreticket.Article `json:"article"`
}

// UpdateTicketRequest is the body of PATCH /api/v1/tickets/{id}.
// ClearFields names fields that must be sent to OTRS as empty, e.g. "ServiceID".
type UpdateTicketRequest struct {
	Ticket      coreticket.Ticket   `json:"ticket"`
	Article     *coreticket.Article `json:"article,omitempty"`
	ClearFields []string            `json:"clearFields,omitempty"`
}

// CloseTicketRequest is the optional body of POST /api/v1/tickets/{id}/close.
type CloseTicketRequest struct {
	Note *coreticket.Article `json:"note,omitempty"`
}

// SearchResponse lists the IDs matched by a search.
type SearchResponse struct {
	Total     int     `json:"total"`
	TicketIDs []int64 `json:"ticketIds"`
}

// Get handles GET /api/v1/tickets/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(w, r)
	if !ok {
		return
	}

	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, t, h.log)
}

// ExpandedSearchResponse carries full tickets for ?expand=true searches.
type ExpandedSearchResponse struct {
	Total   int                 `json:"total"`
	Tickets []coreticket.Ticket `json:"tickets"`
}

// Search handles POST /api/v1/tickets/search. With ?expand=true the matching tickets
// are returned in full instead of as IDs.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var query coreticket.SearchQuery
	if !h.decode(w, r, &query, false) {
		return
	}

	if expand, _ := strconv.ParseBool(r.URL.Query().Get("expand")); expand {
		tickets, err := h.service.SearchExpanded(r.Context(), query)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		httperrors.WriteJSON(w, http.StatusOK, ExpandedSearchResponse{Total: len(tickets), Tickets: tickets}, h.log)
		return
	}

	ids, err := h.service.Search(r.Context(), query)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, SearchResponse{Total: len(ids), TicketIDs: ids}, h.log)
}

// Create handles POST /api/v1/tickets.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTicketRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	result, err := h.service.Create(r.Context(), req.Ticket, req.Article)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusCreated, result, h.log)
}

// Update handles PATCH /api/v1/tickets/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(w, r)
	if !ok {
		return
	}

	var req UpdateTicketRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	for _, field := range req.ClearFields {
		if err := req.Ticket.ClearField(field); err != nil {
			h.handleError(w, r, err)
			return
		}
	}

	result, err := h.service.Update(r.Context(), id, req.Ticket, req.Article)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, result, h.log)
}

// Close handles POST /api/v1/tickets/{id}/close. The body is optional.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ticketID(w, r)
	if !ok {
		return
	}

	var req CloseTicketRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	result, err := h.service.Close(r.Context(), id, req.Note)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, result, h.log)
}

func (h *Handler) ticketID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httperrors.WriteError(w, http.StatusBadRequest, "Error de Validación", []string{"El ID del ticket debe ser un entero positivo"}, h.log)
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		httperrors.WriteError(w, http.StatusRequestEntityTooLarge, "Error de Validación", []string{"El cuerpo de la petición excede el tamaño permitido"}, h.log)
		return false
	}
	httperrors.WriteError(w, http.StatusBadRequest, "Error de Validación", []string{"El cuerpo de la petición no es válido"}, h.log)
	return false
}

// handleError maps service and OTRS errors to HTTP responses.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	correlationID := ctxutil.GetCorrelationID(r.Context())

	var apiErr *otrs.APIError
	switch {
	case errors.Is(err, coreticket.ErrValidation):
		h.log.Warn("Ticket request rejected", "error", err, "path", r.URL.Path, "correlation_id", correlationID)
		httperrors.WriteError(w, http.StatusBadRequest, "Error de Validación", []string{err.Error()}, h.log)
	case errors.Is(err, coreticket.ErrNotFound):
		h.log.Warn("Ticket not found", "error", err, "path", r.URL.Path, "correlation_id", correlationID)
		httperrors.WriteError(w, http.StatusNotFound, "Recurso no encontrado", []string{"El ticket solicitado no existe"}, h.log)
	case errors.Is(err, otrs.ErrCircuitBreakerOpen):
		h.log.Error("OTRS unavailable", "error", err, "path", r.URL.Path, "correlation_id", correlationID)
		httperrors.WriteError(w, http.StatusServiceUnavailable, "Servicio no disponible", []string{"OTRS no está disponible temporalmente"}, h.log)
	case errors.Is(err, context.DeadlineExceeded):
		h.log.Error("OTRS request timed out", "error", err, "path", r.URL.Path, "correlation_id", correlationID)
		httperrors.WriteError(w, http.StatusGatewayTimeout, "Tiempo de espera agotado", []string{"OTRS no respondió a tiempo"}, h.log)
	case errors.As(err, &apiErr) && apiErr.IsAuthFailure():
		h.log.Error("OTRS authentication failed", "error", err, "path", r.URL.Path, "correlation_id", correlationID)
		httperrors.WriteError(w, http.StatusBadGateway, "Error de Autenticación", []string{"Error de autenticación con OTRS"}, h.log)
	case errors.As(err, &apiErr):
		h.log.Error("OTRS rejected request", "error", err, "code", apiErr.Code, "path", r.URL.Path, "correlation_id", correlationID)
		httperrors.WriteError(w, http.StatusBadGateway, "Error del Proveedor", []string{fmt.Sprintf("%s: %s", apiErr.Code, apiErr.Message)}, h.log)
	default:
		h.log.Error("Ticket request failed", "error", err, "path", r.URL.Path, "correlation_id", correlationID)
		httperrors.WriteError(w, http.StatusBadGateway, "Error del Proveedor", []string{"Servicio del proveedor no disponible"}, h.log)
	}
}
