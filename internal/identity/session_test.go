package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadSessionMissingFile(t *testing.T) {
	s, err := LoadSession(filepath.Join(t.TempDir(), "session.yaml"))
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if s.AnonymousKey() != "" {
		t.Errorf("fresh session has key %q", s.AnonymousKey())
	}
}

func TestEnsureAnonymousKeyMintsAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")

	s, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	key, err := s.EnsureAnonymousKey()
	if err != nil {
		t.Fatalf("EnsureAnonymousKey: %v", err)
	}
	if !strings.HasPrefix(key, "anon-") {
		t.Errorf("key = %q, want anon- prefix", key)
	}
	if key != strings.ToLower(key) {
		t.Errorf("key %q is not lowercase", key)
	}

	// Repeated calls reuse the minted key.
	again, err := s.EnsureAnonymousKey()
	if err != nil {
		t.Fatalf("EnsureAnonymousKey: %v", err)
	}
	if again != key {
		t.Errorf("second call minted a new key: %q vs %q", again, key)
	}

	// A fresh load from disk sees the same key.
	reloaded, err := LoadSession(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AnonymousKey() != key {
		t.Errorf("reloaded key = %q, want %q", reloaded.AnonymousKey(), key)
	}
}

func TestRetireAnonymousKeyIsPermanent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")

	s, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	key, err := s.EnsureAnonymousKey()
	if err != nil {
		t.Fatalf("EnsureAnonymousKey: %v", err)
	}
	if err := s.RetireAnonymousKey(); err != nil {
		t.Fatalf("RetireAnonymousKey: %v", err)
	}
	if s.AnonymousKey() != "" {
		t.Error("key still present after retirement")
	}

	reloaded, err := LoadSession(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AnonymousKey() != "" {
		t.Errorf("retired key %q came back after reload", key)
	}
}

func TestSessionFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")

	s, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if _, err := s.EnsureAnonymousKey(); err != nil {
		t.Fatalf("EnsureAnonymousKey: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("session file mode = %o, want 600", perm)
	}
}
