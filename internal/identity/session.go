// Package identity manages the session's identity keys and the one-shot
// migration from an anonymous identity to an authenticated one.
package identity

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

type sessionData struct {
	// AnonymousKey addresses the pre-sign-in store instances. Cleared
	// permanently once migration completes; its absence is what makes
	// migration at-most-once.
	AnonymousKey string `yaml:"anonymous_key,omitempty"`
}

// Session persists session-scoped identity state in a YAML file.
type Session struct {
	path string

	mu   sync.Mutex
	data sessionData
}

// LoadSession reads session state from path, starting empty when the file
// does not exist yet.
func LoadSession(path string) (*Session, error) {
	s := &Session{path: path}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse session file %s: %w", path, err)
	}
	return s, nil
}

// AnonymousKey returns the current anonymous key, empty when none is active.
func (s *Session) AnonymousKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AnonymousKey
}

// EnsureAnonymousKey returns the active anonymous key, minting and persisting
// a fresh one when the session has none.
func (s *Session) EnsureAnonymousKey() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.AnonymousKey != "" {
		return s.data.AnonymousKey, nil
	}
	s.data.AnonymousKey = "anon-" + strings.ToLower(ulid.Make().String())
	if err := s.saveLocked(); err != nil {
		s.data.AnonymousKey = ""
		return "", err
	}
	return s.data.AnonymousKey, nil
}

// RetireAnonymousKey permanently clears the anonymous key. Once cleared the
// key is never re-minted for the same identity, so a migration that already
// ran cannot run again.
func (s *Session) RetireAnonymousKey() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.AnonymousKey == "" {
		return nil
	}
	s.data.AnonymousKey = ""
	return s.saveLocked()
}

func (s *Session) saveLocked() error {
	raw, err := yaml.Marshal(&s.data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}
