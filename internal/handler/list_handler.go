package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/Raymond9734/campaign-dispatch-backend/internal/service"
)

// ListHandler handles contact list HTTP requests
type ListHandler struct {
	lists  service.ContactListService
	logger zerolog.Logger
}

// NewListHandler creates a new list handler
func NewListHandler(lists service.ContactListService, logger zerolog.Logger) *ListHandler {
	return &ListHandler{lists: lists, logger: logger}
}

// ListLists handles GET /contact-lists
func (h *ListHandler) ListLists(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	lists, err := h.lists.ListByCompany(r.Context(), p.CompanyID)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, map[string]interface{}{"data": lists})
}

// ImportList handles POST /contact-lists
func (h *ListHandler) ImportList(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req service.ImportListRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	result, err := h.lists.Import(r.Context(), p.CompanyID, &req)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondCreated(w, result)
}
