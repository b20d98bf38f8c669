package multistore

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/contextdeck/contextdeck/internal/store"
)

// dbFileName is the SQLite file inside each instance directory.
const dbFileName = "contextdeck.db"

// Handle wraps an opened store instance with metadata and access tracking.
type Handle struct {
	Key      string
	Instance *store.Instance
	Meta     *InstanceMeta
	BasePath string // Directory containing this instance

	mu        sync.Mutex
	metaDirty bool
}

// newHandle opens a store instance from an existing directory.
func newHandle(key, basePath string) (*Handle, error) {
	meta, err := LoadInstanceMeta(filepath.Join(basePath, "meta.yaml"))
	if err != nil {
		return nil, err
	}

	in, err := store.Open(filepath.Join(basePath, dbFileName), store.WithInstanceID(key))
	if err != nil {
		return nil, err
	}

	return &Handle{
		Key:      key,
		Instance: in,
		Meta:     meta,
		BasePath: basePath,
	}, nil
}

// TouchAccessed updates the last_accessed timestamp.
// Metadata is saved lazily, not on every access.
func (h *Handle) TouchAccessed() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Meta.LastAccessed = time.Now().UTC()
	h.metaDirty = true
}

// FlushMeta saves metadata to disk if dirty.
func (h *Handle) FlushMeta() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.metaDirty {
		return nil
	}

	if err := SaveInstanceMeta(filepath.Join(h.BasePath, "meta.yaml"), h.Meta); err != nil {
		return err
	}

	h.metaDirty = false
	return nil
}

// Close closes the underlying instance and flushes metadata.
func (h *Handle) Close() error {
	if err := h.FlushMeta(); err != nil {
		slog.Warn("failed to flush instance metadata", "key", h.Key, "error", err)
	}
	return h.Instance.Close()
}
