package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ContextRequest is the create/update payload for a context.
type ContextRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ListContexts handles GET /api/v1/contexts
func (h *Handler) ListContexts(w http.ResponseWriter, r *http.Request) {
	contexts, err := h.stack().lib.Contexts(r.Context())
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, contexts)
}

// GetContext handles GET /api/v1/contexts/{id}
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	c, err := h.stack().lib.ContextByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// CreateContext handles POST /api/v1/contexts
func (h *Handler) CreateContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s := h.stack()
	c, err := s.cmd.CreateContext(r.Context(), req.Title, req.Content, s.userID)
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// UpdateContext handles PUT /api/v1/contexts/{id}
func (h *Handler) UpdateContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.stack().cmd.UpdateContext(r.Context(), chi.URLParam(r, "id"), req.Title, req.Content)
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// EditContext handles PATCH /api/v1/contexts/{id}. Edits are debounced:
// the commit happens after the configured quiet interval, so rapid typing
// produces one event instead of one per keystroke.
func (h *Handler) EditContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	s := h.stack()
	id := chi.URLParam(r, "id")
	if _, err := s.lib.ContextByID(r.Context(), id); err != nil {
		MapCommandError(w, r, err)
		return
	}

	s.debouncer.Edit(id, req.Title, req.Content)
	w.WriteHeader(http.StatusAccepted)
}

// DeleteContextsRequest is the batch delete payload.
type DeleteContextsRequest struct {
	IDs []string `json:"ids"`
}

// DeleteContexts handles POST /api/v1/contexts/delete
func (h *Handler) DeleteContexts(w http.ResponseWriter, r *http.Request) {
	var req DeleteContextsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		WriteProblem(w, r, http.StatusUnprocessableEntity, "ids must not be empty")
		return
	}

	if err := h.stack().cmd.DeleteContexts(r.Context(), req.IDs); err != nil {
		MapCommandError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ContextLabelsRequest is the label-assignment payload.
type ContextLabelsRequest struct {
	LabelIDs []string `json:"label_ids"`
}

// SetContextLabels handles PUT /api/v1/contexts/{id}/labels
func (h *Handler) SetContextLabels(w http.ResponseWriter, r *http.Request) {
	var req ContextLabelsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.stack().cmd.SetContextLabels(r.Context(), chi.URLParam(r, "id"), req.LabelIDs)
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}
