package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			// Auth is optional: with no configured key the API serves a
			// single local user.
			if h.apiKey != "" {
				r.Use(AuthMiddleware(h.apiKey))
			}

			r.Route("/contexts", func(r chi.Router) {
				r.Get("/", h.ListContexts)
				r.Post("/", h.CreateContext)
				r.Post("/delete", h.DeleteContexts)
				r.Get("/{id}", h.GetContext)
				r.Put("/{id}", h.UpdateContext)
				r.Patch("/{id}", h.EditContext)
				r.Put("/{id}/labels", h.SetContextLabels)
			})

			r.Route("/labels", func(r chi.Router) {
				r.Get("/", h.ListLabels)
				r.Post("/", h.CreateLabel)
				r.Put("/{id}", h.UpdateLabel)
				r.Delete("/{id}", h.DeleteLabel)
			})

			r.Get("/preferences", h.GetPreferences)
			r.Put("/preferences", h.PutPreferences)

			r.Route("/workingset", func(r chi.Router) {
				r.Get("/", h.ListWorkingSet)
				r.Post("/", h.AddUnlinked)
				r.Post("/fork", h.ForkContext)
				r.Put("/order", h.ReorderWorkingSet)
				r.Post("/reconcile", h.Reconcile)
				r.Put("/{id}", h.UpdateWorkingSetItem)
				r.Delete("/{id}", h.RemoveWorkingSetItem)
				r.Post("/{id}/push", h.PushWorkingSetItem)
				r.Post("/{id}/revert", h.RevertWorkingSetItem)
			})

			r.Get("/backup/export", h.ExportBackup)
			r.Post("/backup/import", h.ImportBackup)
			r.Get("/backup/url", h.BackupDownloadURL)

			r.Post("/identity/migrate", h.Migrate)
		})
	})

	return r
}
