package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// LabelRequest is the create/update payload for a label.
type LabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ListLabels handles GET /api/v1/labels
func (h *Handler) ListLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := h.stack().lib.Labels(r.Context())
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, labels)
}

// CreateLabel handles POST /api/v1/labels
func (h *Handler) CreateLabel(w http.ResponseWriter, r *http.Request) {
	var req LabelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	l, err := h.stack().cmd.CreateLabel(r.Context(), req.Name, req.Color)
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, l)
}

// UpdateLabel handles PUT /api/v1/labels/{id}
func (h *Handler) UpdateLabel(w http.ResponseWriter, r *http.Request) {
	var req LabelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	l, err := h.stack().cmd.UpdateLabel(r.Context(), chi.URLParam(r, "id"), req.Name, req.Color)
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, l)
}

// DeleteLabel handles DELETE /api/v1/labels/{id}
func (h *Handler) DeleteLabel(w http.ResponseWriter, r *http.Request) {
	if err := h.stack().cmd.DeleteLabel(r.Context(), chi.URLParam(r, "id")); err != nil {
		MapCommandError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
