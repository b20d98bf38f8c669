// Package multistore manages independently persisted store instances,
// addressed by opaque string keys. Each instance lives in its own directory
// with its own event log, projection, and sequence counter; there is no
// cross-instance transaction.
package multistore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Manager loads store instances lazily and keeps them open until Close.
type Manager struct {
	rootPath string

	mu        sync.RWMutex
	instances map[string]*Handle
}

// NewManager creates a manager with the given root path.
// Creates the root directory if it doesn't exist.
func NewManager(rootPath string) (*Manager, error) {
	// Expand ~ to home directory
	if strings.HasPrefix(rootPath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		rootPath = filepath.Join(home, rootPath[2:])
	}

	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("create instances root directory: %w", err)
	}

	return &Manager{
		rootPath:  rootPath,
		instances: make(map[string]*Handle),
	}, nil
}

// Open returns the instance for the given key, loading it if necessary and
// creating it on first use. Opening is the asynchronous initialization step
// callers must await before issuing commits or queries against the key.
func (m *Manager) Open(ctx context.Context, key string) (*Handle, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	// Fast path: already loaded
	m.mu.RLock()
	if h, ok := m.instances[key]; ok {
		m.mu.RUnlock()
		h.TouchAccessed()
		return h, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if h, ok := m.instances[key]; ok {
		h.TouchAccessed()
		return h, nil
	}

	basePath := m.instancePath(key)
	created := false
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		if err := m.createInstanceDir(key, ""); err != nil {
			return nil, err
		}
		created = true
	}

	h, err := newHandle(key, basePath)
	if err != nil {
		return nil, fmt.Errorf("open instance %q: %w", key, err)
	}
	m.instances[key] = h

	slog.Info("instance opened",
		"component", "multistore",
		"action", "instance_opened",
		"key", key,
		"created", created,
	)

	h.TouchAccessed()
	return h, nil
}

// Exists reports whether an instance directory exists for the key,
// without opening it.
func (m *Manager) Exists(key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(m.instancePath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes an instance and its data. This is how a retired anonymous
// instance is discarded after identity migration.
func (m *Manager) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	basePath := m.instancePath(key)
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		return ErrInstanceNotFound
	}

	if h, ok := m.instances[key]; ok {
		if err := h.Close(); err != nil {
			slog.Warn("error closing instance before deletion", "key", key, "error", err)
		}
		delete(m.instances, key)
	}

	if err := os.RemoveAll(basePath); err != nil {
		return fmt.Errorf("remove instance directory: %w", err)
	}

	slog.Info("instance deleted",
		"component", "multistore",
		"action", "instance_deleted",
		"key", key,
	)

	return nil
}

// List returns metadata for all existing instances.
func (m *Manager) List(ctx context.Context) ([]InstanceInfo, error) {
	entries, err := os.ReadDir(m.rootPath)
	if err != nil {
		return nil, fmt.Errorf("read instances directory: %w", err)
	}

	var result []InstanceInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		// Keys may be nested (e.g. user/library), so walk recursively.
		infos, err := m.findInstancesRecursive(entry.Name(), "")
		if err != nil {
			slog.Warn("error scanning instance directory",
				"path", entry.Name(), "error", err)
			continue
		}
		result = append(result, infos...)
	}

	return result, nil
}

// findInstancesRecursive discovers instances in nested directories.
func (m *Manager) findInstancesRecursive(currentPath, prefix string) ([]InstanceInfo, error) {
	fullPath := filepath.Join(m.rootPath, currentPath)
	if prefix != "" {
		fullPath = filepath.Join(m.rootPath, prefix, currentPath)
	}

	// A directory with meta.yaml is an instance
	if _, err := os.Stat(filepath.Join(fullPath, "meta.yaml")); err == nil {
		key := currentPath
		if prefix != "" {
			key = prefix + "/" + currentPath
		}

		info, err := m.instanceInfo(key, fullPath)
		if err != nil {
			return nil, err
		}
		return []InstanceInfo{info}, nil
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, err
	}

	var result []InstanceInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		newPrefix := currentPath
		if prefix != "" {
			newPrefix = prefix + "/" + currentPath
		}

		infos, err := m.findInstancesRecursive(entry.Name(), newPrefix)
		if err != nil {
			continue // Skip problematic directories
		}
		result = append(result, infos...)
	}

	return result, nil
}

// instanceInfo collects information about a single instance.
func (m *Manager) instanceInfo(key, basePath string) (InstanceInfo, error) {
	meta, err := LoadInstanceMeta(filepath.Join(basePath, "meta.yaml"))
	if err != nil {
		return InstanceInfo{}, err
	}

	var sizeBytes int64
	if info, err := os.Stat(filepath.Join(basePath, dbFileName)); err == nil {
		sizeBytes = info.Size()
	}

	return InstanceInfo{
		Key:          key,
		Created:      meta.Created,
		LastAccessed: meta.LastAccessed,
		Description:  meta.Description,
		SizeBytes:    sizeBytes,
	}, nil
}

// instancePath returns the filesystem path for an instance key.
// Key segments map to directory structure.
func (m *Manager) instancePath(key string) string {
	return filepath.Join(m.rootPath, key)
}

// createInstanceDir creates a new instance directory with metadata.
func (m *Manager) createInstanceDir(key, description string) error {
	basePath := m.instancePath(key)

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return fmt.Errorf("create instance directory: %w", err)
	}

	meta := NewInstanceMeta(description)
	if err := SaveInstanceMeta(filepath.Join(basePath, "meta.yaml"), meta); err != nil {
		os.RemoveAll(basePath)
		return fmt.Errorf("write instance metadata: %w", err)
	}

	return nil
}

// Close closes all loaded instances.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for key, h := range m.instances {
		if err := h.Close(); err != nil {
			slog.Error("error closing instance", "key", key, "error", err)
			lastErr = err
		}
	}

	return lastErr
}
