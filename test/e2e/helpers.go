package e2e

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/contextdeck/contextdeck/internal/api"
	"github.com/contextdeck/contextdeck/internal/backup"
	"github.com/contextdeck/contextdeck/internal/command"
	"github.com/contextdeck/contextdeck/internal/identity"
	"github.com/contextdeck/contextdeck/internal/multistore"
	"github.com/contextdeck/contextdeck/internal/query"
	"github.com/contextdeck/contextdeck/internal/reconcile"
	"github.com/contextdeck/contextdeck/internal/workingset"
	"github.com/contextdeck/contextdeck/pkg/deck"
)

// env is a full server stack over temp-dir stores: manager, working set,
// reconcile watcher, HTTP server, and a typed client. It mirrors the serve
// command's wiring.
type env struct {
	manager  *multistore.Manager
	session  *identity.Session
	library  *multistore.Handle
	set      *workingset.Set
	engine   *reconcile.Engine
	server   *httptest.Server
	client   *deck.Client
	userKey  string
	commands *command.Commander
}

func newEnv(t *testing.T, userKey string) *env {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	manager, err := multistore.NewManager(filepath.Join(dir, "stores"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	session, err := identity.LoadSession(filepath.Join(dir, "session.yaml"))
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}

	idn, err := manager.Open(ctx, multistore.IdentityKey(userKey))
	if err != nil {
		t.Fatalf("open identity: %v", err)
	}
	lib, err := manager.Open(ctx, multistore.LibraryKey(userKey))
	if err != nil {
		t.Fatalf("open library: %v", err)
	}

	cmd := command.New(lib.Instance)
	if _, err := cmd.EnsureLibrary(ctx, "", userKey); err != nil {
		t.Fatalf("EnsureLibrary: %v", err)
	}

	set := workingset.NewSet()
	engine := reconcile.NewEngine(lib.Instance, cmd, set)

	hub := query.NewHub(lib.Instance)
	cancelWatch, err := engine.Watch(ctx, hub)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	t.Cleanup(cancelWatch)

	debouncer := command.NewDebouncer(cmd, 10*time.Millisecond)
	t.Cleanup(func() { debouncer.Close() })

	h := api.NewHandler(api.HandlerConfig{
		Library:   lib.Instance,
		Commander: cmd,
		Identity:  command.NewIdentity(idn.Instance),
		Debouncer: debouncer,
		Set:       set,
		Engine:    engine,
		Migrator:  identity.NewMigrator(manager, session),
		Uploader:  &backup.NoopUploader{},
		Version:   "e2e",
		UserID:    userKey,
	})

	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)

	return &env{
		manager:  manager,
		session:  session,
		library:  lib,
		set:      set,
		engine:   engine,
		server:   srv,
		client:   deck.New(srv.URL),
		userKey:  userKey,
		commands: cmd,
	}
}

func (e *env) newMigrator() *identity.Migrator {
	return identity.NewMigrator(e.manager, e.session)
}
