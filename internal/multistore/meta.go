package multistore

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// InstanceMeta contains instance-level metadata persisted in meta.yaml.
type InstanceMeta struct {
	// Created is when the instance was first created.
	Created time.Time `yaml:"created"`
	// LastAccessed is when the instance was last accessed (read or write).
	LastAccessed time.Time `yaml:"last_accessed"`
	// Description is an optional human-readable description.
	Description string `yaml:"description,omitempty"`
}

// InstanceInfo contains summary information about a store instance.
type InstanceInfo struct {
	Key          string    `json:"key"`
	Created      time.Time `json:"created"`
	LastAccessed time.Time `json:"last_accessed"`
	Description  string    `json:"description,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
}

// NewInstanceMeta creates metadata for a new instance.
func NewInstanceMeta(description string) *InstanceMeta {
	now := time.Now().UTC()
	return &InstanceMeta{
		Created:      now,
		LastAccessed: now,
		Description:  description,
	}
}

// LoadInstanceMeta reads instance metadata from a file path.
// Returns an error if the file doesn't exist or is malformed.
func LoadInstanceMeta(path string) (*InstanceMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var meta InstanceMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse instance metadata: %w", err)
	}

	return &meta, nil
}

// SaveInstanceMeta writes instance metadata to a file path.
func SaveInstanceMeta(path string, meta *InstanceMeta) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal instance metadata: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}
