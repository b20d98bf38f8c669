package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/contextdeck/contextdeck/internal/backup"
	"github.com/contextdeck/contextdeck/internal/command"
	"github.com/contextdeck/contextdeck/internal/multistore"
)

type recordingUploader struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func (u *recordingUploader) Upload(ctx context.Context, instanceKey string, data []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.uploads == nil {
		u.uploads = make(map[string][]byte)
	}
	u.uploads[instanceKey] = data
	return nil
}

func (u *recordingUploader) PresignedURL(ctx context.Context, instanceKey string) (string, time.Time, error) {
	return "", time.Time{}, backup.ErrNotConfigured
}

func (u *recordingUploader) keys(t *testing.T) map[string]bool {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	keys := make(map[string]bool, len(u.uploads))
	for k := range u.uploads {
		keys[k] = true
	}
	return keys
}

func newTestManager(t *testing.T) *multistore.Manager {
	t.Helper()
	m, err := multistore.NewManager(filepath.Join(t.TempDir(), "stores"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestBackupCycleSkipsIdentityInstances(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	lib, err := m.Open(ctx, multistore.LibraryKey("alice"))
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	if _, err := command.New(lib.Instance).CreateContext(ctx, "Backed up", "body", "alice"); err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	if _, err := m.Open(ctx, multistore.IdentityKey("alice")); err != nil {
		t.Fatalf("open identity: %v", err)
	}

	uploader := &recordingUploader{}
	c := NewBackupCoordinator(m, time.Hour, uploader)
	c.backupAll(ctx)

	keys := uploader.keys(t)
	if !keys["alice/library"] {
		t.Error("library instance was not backed up")
	}
	if keys["alice/identity"] {
		t.Error("identity instance was backed up")
	}

	uploader.mu.Lock()
	data := uploader.uploads["alice/library"]
	uploader.mu.Unlock()
	var doc backup.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("uploaded document does not parse: %v", err)
	}
	if len(doc.Contexts) != 1 || doc.Contexts[0].Title != "Backed up" {
		t.Errorf("uploaded document = %+v", doc)
	}
}

func TestBackupCycleWithoutUploaderStillExports(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Open(ctx, multistore.LibraryKey("alice")); err != nil {
		t.Fatalf("open library: %v", err)
	}

	// A nil uploader means local-only mode; the cycle must not panic.
	c := NewBackupCoordinator(m, time.Hour, nil)
	c.backupAll(ctx)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	m := newTestManager(t)
	c := NewBackupCoordinator(m, time.Hour, &recordingUploader{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}
