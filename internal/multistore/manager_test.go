package multistore

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestValidateKey(t *testing.T) {
	valid := []string{
		"local",
		"alice",
		"anon-01hqv3x7",
		"alice/library",
		"a/b/c/d",
		"multi-part-segment/library",
	}
	for _, key := range valid {
		if err := ValidateKey(key); err != nil {
			t.Errorf("ValidateKey(%q) = %v, want nil", key, err)
		}
	}

	invalid := []string{
		"",
		"Alice",
		"has space",
		"-leading",
		"trailing-",
		"a//b",
		"/leading",
		"trailing/",
		"a/b/c/d/e",
		strings.Repeat("x", MaxKeyLength+1),
	}
	for _, key := range invalid {
		err := ValidateKey(key)
		if err == nil {
			t.Errorf("ValidateKey(%q) = nil, want error", key)
			continue
		}
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ValidateKey(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestUserKeys(t *testing.T) {
	if got := IdentityKey("alice"); got != "alice/identity" {
		t.Errorf("IdentityKey = %q", got)
	}
	if got := LibraryKey("alice"); got != "alice/library" {
		t.Errorf("LibraryKey = %q", got)
	}
}

func TestOpenCreatesInstanceOnFirstUse(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	exists, err := m.Exists("alice/library")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("instance exists before first open")
	}

	h, err := m.Open(ctx, "alice/library")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if h.Instance == nil {
		t.Fatal("handle has no instance")
	}

	exists, err = m.Exists("alice/library")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("instance missing after open")
	}

	// A second open returns the same loaded handle.
	again, err := m.Open(ctx, "alice/library")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if again != h {
		t.Error("reopen returned a different handle")
	}
}

func TestOpenRejectsInvalidKey(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Open(context.Background(), "Not Valid"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Open = %v, want ErrInvalidKey", err)
	}
}

func TestDeleteRemovesInstance(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Open(ctx, "alice/library"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Delete(ctx, "alice/library"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	exists, err := m.Exists("alice/library")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("instance survives deletion")
	}

	if err := m.Delete(ctx, "alice/library"); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("second delete = %v, want ErrInstanceNotFound", err)
	}
}

func TestListFindsNestedInstances(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	for _, key := range []string{"local", "alice/identity", "alice/library"} {
		if _, err := m.Open(ctx, key); err != nil {
			t.Fatalf("Open(%s): %v", key, err)
		}
	}

	infos, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	keys := make(map[string]bool, len(infos))
	for _, info := range infos {
		keys[info.Key] = true
		if info.Created.IsZero() {
			t.Errorf("instance %s has zero created time", info.Key)
		}
	}
	for _, want := range []string{"local", "alice/identity", "alice/library"} {
		if !keys[want] {
			t.Errorf("List missing %s (got %v)", want, keys)
		}
	}
}
