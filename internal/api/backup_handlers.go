package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/contextdeck/contextdeck/internal/backup"
	"github.com/contextdeck/contextdeck/internal/validation"
)

// maxImportBytes caps backup uploads. Content tops out at a million
// characters per context, so this allows a few thousand large contexts.
const maxImportBytes = 256 << 20

// ExportBackup handles GET /api/v1/backup/export
func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	doc, err := backup.Export(r.Context(), h.stack().lib)
	if err != nil {
		MapCommandError(w, r, err)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="contextdeck-backup.json"`)
	respondJSON(w, http.StatusOK, doc)
}

// ImportBackup handles POST /api/v1/backup/import. The document is validated
// as a whole before any change is applied; a structurally invalid file is
// rejected outright.
func (h *Handler) ImportBackup(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes+1))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(data) > maxImportBytes {
		WriteProblem(w, r, http.StatusBadRequest, "backup file too large")
		return
	}

	doc, err := backup.Parse(data)
	if err != nil {
		var verrs *validation.Errors
		if errors.As(err, &verrs) {
			WriteProblemWithErrors(w, r, "backup document failed validation", verrs.Fields)
			return
		}
		WriteProblem(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s := h.stack()
	if err := backup.Import(r.Context(), s.lib, s.cmd, doc); err != nil {
		MapCommandError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"contexts": len(doc.Contexts),
		"labels":   len(doc.Labels),
	})
}

// BackupDownloadURL handles GET /api/v1/backup/url, returning a pre-signed
// URL for the most recent off-site backup.
func (h *Handler) BackupDownloadURL(w http.ResponseWriter, r *http.Request) {
	url, expiry, err := h.uploader.PresignedURL(r.Context(), h.stack().userID)
	if errors.Is(err, backup.ErrNotConfigured) {
		WriteProblem(w, r, http.StatusServiceUnavailable, "Backup storage not configured")
		return
	}
	if err != nil {
		MapCommandError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"url":        url,
		"expires_at": expiry.UTC().Format(time.RFC3339),
	})
}

// MigrateRequest names the authenticated identity to migrate into.
type MigrateRequest struct {
	UserKey string `json:"user_key"`
}

// Migrate handles POST /api/v1/identity/migrate. Failure leaves the
// anonymous stores intact; the client may retry later. On success the
// handler rebinds to the authenticated identity's stores, since the
// anonymous instances it was serving are deleted by the migration.
func (h *Handler) Migrate(w http.ResponseWriter, r *http.Request) {
	var req MigrateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	// Pending debounced edits must land in the anonymous store before
	// its contents are copied.
	s := h.stack()
	if err := s.debouncer.Flush(r.Context()); err != nil {
		MapCommandError(w, r, err)
		return
	}

	report, err := h.migrator.Run(r.Context(), req.UserKey)
	if err != nil {
		MapCommandError(w, r, err)
		return
	}

	if !report.Skipped && h.rebind != nil {
		cfg, err := h.rebind(r.Context(), report.ToKey)
		if err != nil {
			MapCommandError(w, r, err)
			return
		}
		h.swap(cfg)
	}
	respondJSON(w, http.StatusOK, report)
}
