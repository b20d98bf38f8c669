package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/contextdeck/contextdeck/internal/backup"
	"github.com/contextdeck/contextdeck/internal/command"
	"github.com/contextdeck/contextdeck/internal/identity"
	"github.com/contextdeck/contextdeck/internal/reconcile"
	"github.com/contextdeck/contextdeck/internal/store"
	"github.com/contextdeck/contextdeck/internal/workingset"
)

// Handler implements the API handlers over one identity's pair of store
// instances plus the session working set. The identity-scoped collaborators
// live in a swappable stack: a successful anonymous migration deletes the
// anonymous instances, so the handler must re-point at the authenticated
// identity's stores before serving another request.
type Handler struct {
	mu sync.RWMutex
	s  stack

	set      *workingset.Set
	migrator *identity.Migrator
	uploader backup.Uploader
	rebind   RebindFunc

	apiKey  string
	version string
}

// stack is the slice of collaborators bound to one identity's stores.
type stack struct {
	lib       *store.Instance
	cmd       *command.Commander
	idn       *command.Identity
	debouncer *command.Debouncer
	engine    *reconcile.Engine
	userID    string
}

// RebindFunc builds serving collaborators for a newly authenticated identity.
// The working set, uploader, and API key carry over unchanged.
type RebindFunc func(ctx context.Context, userKey string) (HandlerConfig, error)

// HandlerConfig carries the collaborators a Handler needs.
type HandlerConfig struct {
	Library   *store.Instance
	Commander *command.Commander
	Identity  *command.Identity
	Debouncer *command.Debouncer
	Set       *workingset.Set
	Engine    *reconcile.Engine
	Migrator  *identity.Migrator
	Uploader  backup.Uploader
	Rebind    RebindFunc
	APIKey    string
	Version   string
	UserID    string
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		s:        bindStack(cfg),
		set:      cfg.Set,
		migrator: cfg.Migrator,
		uploader: cfg.Uploader,
		rebind:   cfg.Rebind,
		apiKey:   cfg.APIKey,
		version:  cfg.Version,
	}
}

func bindStack(cfg HandlerConfig) stack {
	return stack{
		lib:       cfg.Library,
		cmd:       cfg.Commander,
		idn:       cfg.Identity,
		debouncer: cfg.Debouncer,
		engine:    cfg.Engine,
		userID:    cfg.UserID,
	}
}

// stack snapshots the current identity-scoped collaborators. Handlers read
// through the snapshot so a concurrent swap never splits one request across
// two identities.
func (h *Handler) stack() stack {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s
}

func (h *Handler) swap(cfg HandlerConfig) {
	h.mu.Lock()
	h.s = bindStack(cfg)
	h.mu.Unlock()
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	ContextCount int    `json:"context_count"`
	LabelCount   int    `json:"label_count"`
	LastSequence int64  `json:"last_sequence"`
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	s := h.stack()
	contexts, err := s.lib.Contexts(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	labels, err := s.lib.Labels(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	seq, err := s.lib.LatestSequence(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:       "healthy",
		Version:      h.version,
		ContextCount: len(contexts),
		LabelCount:   len(labels),
		LastSequence: seq,
	})
}

// respondJSON writes a JSON response body with the given status.
func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeJSON decodes a request body, writing a 400 problem on failure.
// Returns false when the caller should stop.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}
