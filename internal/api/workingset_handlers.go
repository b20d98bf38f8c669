package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contextdeck/contextdeck/internal/reconcile"
	"github.com/contextdeck/contextdeck/internal/workingset"
)

// ListWorkingSet handles GET /api/v1/workingset
func (h *Handler) ListWorkingSet(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.set.List())
}

// ForkRequest selects a library context into the working set.
type ForkRequest struct {
	ContextID string `json:"context_id"`
}

// ForkContext handles POST /api/v1/workingset/fork
func (h *Handler) ForkContext(w http.ResponseWriter, r *http.Request) {
	var req ForkRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	origin, err := h.stack().lib.ContextByID(r.Context(), req.ContextID)
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.set.Fork(*origin))
}

// AddUnlinked handles POST /api/v1/workingset. The item never touches the
// library until it is pushed.
func (h *Handler) AddUnlinked(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusCreated, h.set.AddUnlinked(req.Title, req.Content))
}

// UpdateWorkingSetItem handles PUT /api/v1/workingset/{id}
func (h *Handler) UpdateWorkingSetItem(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.set.Update(chi.URLParam(r, "id"), req.Title, req.Content)
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// RemoveWorkingSetItem handles DELETE /api/v1/workingset/{id}
func (h *Handler) RemoveWorkingSetItem(w http.ResponseWriter, r *http.Request) {
	h.set.Remove([]string{chi.URLParam(r, "id")}, "removed by user")
	w.WriteHeader(http.StatusNoContent)
}

// ReorderRequest is the full working-set ordering.
type ReorderRequest struct {
	IDs []string `json:"ids"`
}

// ReorderWorkingSet handles PUT /api/v1/workingset/order
func (h *Handler) ReorderWorkingSet(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.set.Reorder(req.IDs); err != nil {
		WriteProblem(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.set.List())
}

// PushWorkingSetItem handles POST /api/v1/workingset/{id}/push.
// Resolves a divergence in the fork's favor.
func (h *Handler) PushWorkingSetItem(w http.ResponseWriter, r *http.Request) {
	s := h.stack()
	c, err := s.engine.Push(r.Context(), chi.URLParam(r, "id"), s.userID)
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// RevertWorkingSetItem handles POST /api/v1/workingset/{id}/revert.
// Resolves a divergence in the library's favor.
func (h *Handler) RevertWorkingSetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.stack().engine.Revert(r.Context(), id); err != nil {
		MapCommandError(w, r, err)
		return
	}

	item, ok := h.set.Get(id)
	if !ok {
		// Origin was gone; the revert removed the fork.
		respondJSON(w, http.StatusOK, workingset.Removal{ID: id, Reason: reconcile.RemovalSourceDeleted})
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// Reconcile handles POST /api/v1/workingset/reconcile, forcing a pass.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.stack().engine.Pass(r.Context())
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
