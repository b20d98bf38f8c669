package api

import (
	"net/http"
)

// PreferencesResponse is the preferences payload.
type PreferencesResponse struct {
	Theme string `json:"theme"`
}

// GetPreferences handles GET /api/v1/preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	theme, err := h.stack().idn.Theme(r.Context())
	if err != nil {
		MapCommandError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, PreferencesResponse{Theme: theme})
}

// PutPreferences handles PUT /api/v1/preferences
func (h *Handler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	var req PreferencesResponse
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.stack().idn.SetTheme(r.Context(), req.Theme); err != nil {
		// Theme enum failures come back from event validation.
		WriteProblem(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, PreferencesResponse{Theme: req.Theme})
}
