package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/contextdeck/contextdeck/internal/backup"
	"github.com/contextdeck/contextdeck/internal/command"
	"github.com/contextdeck/contextdeck/internal/identity"
	"github.com/contextdeck/contextdeck/internal/multistore"
	"github.com/contextdeck/contextdeck/internal/reconcile"
	"github.com/contextdeck/contextdeck/internal/store"
	"github.com/contextdeck/contextdeck/internal/workingset"
)

type testServer struct {
	*httptest.Server
	lib *store.Instance
	cmd *command.Commander
	set *workingset.Set
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	dir := t.TempDir()

	lib, err := store.Open(filepath.Join(dir, "library.db"))
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	t.Cleanup(func() { lib.Close() })

	idn, err := store.Open(filepath.Join(dir, "identity.db"))
	if err != nil {
		t.Fatalf("open identity: %v", err)
	}
	t.Cleanup(func() { idn.Close() })

	cmd := command.New(lib)
	set := workingset.NewSet()
	debouncer := command.NewDebouncer(cmd, 10*time.Millisecond)
	t.Cleanup(func() { debouncer.Close() })

	h := NewHandler(HandlerConfig{
		Library:   lib,
		Commander: cmd,
		Identity:  command.NewIdentity(idn),
		Debouncer: debouncer,
		Set:       set,
		Engine:    reconcile.NewEngine(lib, cmd, set),
		Uploader:  &backup.NoopUploader{},
		APIKey:    apiKey,
		Version:   "test",
		UserID:    "tester",
	})

	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, lib: lib, cmd: cmd, set: set}
}

func (ts *testServer) request(t *testing.T, method, path string, body, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	var health HealthResponse
	resp := ts.request(t, http.MethodGet, "/api/v1/health", nil, &health)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if health.Status != "healthy" || health.Version != "test" {
		t.Errorf("health = %+v", health)
	}
}

func TestContextLifecycle(t *testing.T) {
	ts := newTestServer(t, "")

	var created store.Context
	resp := ts.request(t, http.MethodPost, "/api/v1/contexts",
		ContextRequest{Title: "Notes", Content: "first draft"}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	if created.ID == "" || created.TokenCount == 0 {
		t.Errorf("created = %+v", created)
	}

	var fetched store.Context
	resp = ts.request(t, http.MethodGet, "/api/v1/contexts/"+created.ID, nil, &fetched)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	if fetched.Title != "Notes" {
		t.Errorf("fetched title = %q", fetched.Title)
	}

	var updated store.Context
	resp = ts.request(t, http.MethodPut, "/api/v1/contexts/"+created.ID,
		ContextRequest{Title: "Notes", Content: "second draft"}, &updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	if updated.Version == created.Version {
		t.Error("update did not rotate the version")
	}

	resp = ts.request(t, http.MethodPost, "/api/v1/contexts/delete",
		DeleteContextsRequest{IDs: []string{created.ID}}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp = ts.request(t, http.MethodGet, "/api/v1/contexts/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
}

func TestCreateContextProblemResponses(t *testing.T) {
	ts := newTestServer(t, "")

	var problem Problem
	resp := ts.request(t, http.MethodPost, "/api/v1/contexts",
		ContextRequest{Title: "", Content: "x"}, &problem)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("empty title status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}
	if problem.Status != http.StatusUnprocessableEntity {
		t.Errorf("problem = %+v", problem)
	}

	ts.request(t, http.MethodPost, "/api/v1/contexts",
		ContextRequest{Title: "Dupe", Content: "a"}, nil)
	resp = ts.request(t, http.MethodPost, "/api/v1/contexts",
		ContextRequest{Title: "dupe", Content: "b"}, &problem)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate title status = %d, want 409", resp.StatusCode)
	}
}

func TestLabelAssignmentOverHTTP(t *testing.T) {
	ts := newTestServer(t, "")

	var label store.Label
	resp := ts.request(t, http.MethodPost, "/api/v1/labels",
		LabelRequest{Name: "infra", Color: "#336699"}, &label)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create label status = %d", resp.StatusCode)
	}

	var c store.Context
	ts.request(t, http.MethodPost, "/api/v1/contexts",
		ContextRequest{Title: "Tagged", Content: "x"}, &c)

	var tagged store.Context
	resp = ts.request(t, http.MethodPut, fmt.Sprintf("/api/v1/contexts/%s/labels", c.ID),
		ContextLabelsRequest{LabelIDs: []string{label.ID}}, &tagged)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set labels status = %d", resp.StatusCode)
	}
	if len(tagged.Labels) != 1 || tagged.Labels[0] != label.ID {
		t.Errorf("labels = %v", tagged.Labels)
	}
	if tagged.Version == c.Version {
		t.Error("label change did not rotate the context version")
	}
}

func TestPreferences(t *testing.T) {
	ts := newTestServer(t, "")

	var prefs PreferencesResponse
	ts.request(t, http.MethodGet, "/api/v1/preferences", nil, &prefs)
	if prefs.Theme != "light" {
		t.Errorf("default theme = %q", prefs.Theme)
	}

	resp := ts.request(t, http.MethodPut, "/api/v1/preferences",
		PreferencesResponse{Theme: "dark"}, &prefs)
	if resp.StatusCode != http.StatusOK || prefs.Theme != "dark" {
		t.Errorf("put theme: status %d, theme %q", resp.StatusCode, prefs.Theme)
	}

	resp = ts.request(t, http.MethodPut, "/api/v1/preferences",
		PreferencesResponse{Theme: "sepia"}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("invalid theme status = %d, want 422", resp.StatusCode)
	}
}

func TestWorkingSetFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t, "")

	var origin store.Context
	ts.request(t, http.MethodPost, "/api/v1/contexts",
		ContextRequest{Title: "Origin", Content: "shared"}, &origin)

	var fork workingset.SelectedContext
	resp := ts.request(t, http.MethodPost, "/api/v1/workingset/fork",
		ForkRequest{ContextID: origin.ID}, &fork)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("fork status = %d", resp.StatusCode)
	}
	if !fork.Pristine() {
		t.Error("fresh fork is not pristine")
	}

	var edited workingset.SelectedContext
	ts.request(t, http.MethodPut, "/api/v1/workingset/"+fork.ID,
		ContextRequest{Title: "Origin", Content: "mine"}, &edited)
	if edited.Pristine() {
		t.Error("edited fork still pristine")
	}

	// Pushing publishes the fork's content back to the library.
	var pushed store.Context
	resp = ts.request(t, http.MethodPost, "/api/v1/workingset/"+fork.ID+"/push", nil, &pushed)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("push status = %d", resp.StatusCode)
	}
	if pushed.Content != "mine" {
		t.Errorf("pushed content = %q", pushed.Content)
	}

	var items []workingset.SelectedContext
	ts.request(t, http.MethodGet, "/api/v1/workingset", nil, &items)
	if len(items) != 1 || !items[0].Pristine() {
		t.Errorf("working set after push = %+v", items)
	}

	resp = ts.request(t, http.MethodDelete, "/api/v1/workingset/"+fork.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove status = %d", resp.StatusCode)
	}
}

func TestReconcileEndpointRemovesOrphanedFork(t *testing.T) {
	ts := newTestServer(t, "")

	var origin store.Context
	ts.request(t, http.MethodPost, "/api/v1/contexts",
		ContextRequest{Title: "Doomed", Content: "x"}, &origin)

	var fork workingset.SelectedContext
	ts.request(t, http.MethodPost, "/api/v1/workingset/fork",
		ForkRequest{ContextID: origin.ID}, &fork)

	ts.request(t, http.MethodPost, "/api/v1/contexts/delete",
		DeleteContextsRequest{IDs: []string{origin.ID}}, nil)

	var result reconcile.Result
	resp := ts.request(t, http.MethodPost, "/api/v1/workingset/reconcile", nil, &result)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reconcile status = %d", resp.StatusCode)
	}
	if len(result.Removed) != 1 || result.Removed[0].ID != fork.ID {
		t.Errorf("result = %+v", result)
	}
}

func TestBackupExportImportOverHTTP(t *testing.T) {
	ts := newTestServer(t, "")

	ts.request(t, http.MethodPost, "/api/v1/contexts",
		ContextRequest{Title: "Exported", Content: "body"}, nil)

	var doc backup.Document
	resp := ts.request(t, http.MethodGet, "/api/v1/backup/export", nil, &doc)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if doc.Version != backup.FormatVersion || len(doc.Contexts) != 1 {
		t.Errorf("exported doc = %+v", doc)
	}

	resp = ts.request(t, http.MethodPost, "/api/v1/backup/import", doc, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("import status = %d", resp.StatusCode)
	}

	// Structurally invalid documents are rejected before any write, and the
	// problem response names every failing field.
	var problem ProblemWithErrors
	resp = ts.request(t, http.MethodPost, "/api/v1/backup/import",
		map[string]any{"version": "9.9"}, &problem)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("bad import status = %d, want 422", resp.StatusCode)
	}
	if len(problem.Errors) == 0 {
		t.Fatalf("problem carries no field errors: %+v", problem)
	}
	fields := make(map[string]bool, len(problem.Errors))
	for _, e := range problem.Errors {
		fields[e.Field] = true
	}
	for _, want := range []string{"version", "exportedAt", "contexts", "labels"} {
		if !fields[want] {
			t.Errorf("field error for %q missing: %+v", want, problem.Errors)
		}
	}
}

func TestBackupURLUnconfigured(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.request(t, http.MethodGet, "/api/v1/backup/url", nil, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestMigrationRebindsServingStack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	session, err := identity.LoadSession(filepath.Join(dir, "session.json"))
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	anonKey, err := session.EnsureAnonymousKey()
	if err != nil {
		t.Fatalf("EnsureAnonymousKey: %v", err)
	}
	manager, err := multistore.NewManager(filepath.Join(dir, "stores"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })

	idnHandle, err := manager.Open(ctx, multistore.IdentityKey(anonKey))
	if err != nil {
		t.Fatalf("open identity: %v", err)
	}
	libHandle, err := manager.Open(ctx, multistore.LibraryKey(anonKey))
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	cmd := command.New(libHandle.Instance)
	if _, err := cmd.EnsureLibrary(ctx, "", anonKey); err != nil {
		t.Fatalf("EnsureLibrary: %v", err)
	}
	set := workingset.NewSet()
	debouncer := command.NewDebouncer(cmd, 10*time.Millisecond)
	t.Cleanup(func() { debouncer.Close() })

	rebind := func(ctx context.Context, toKey string) (HandlerConfig, error) {
		idn, err := manager.Open(ctx, multistore.IdentityKey(toKey))
		if err != nil {
			return HandlerConfig{}, err
		}
		lib, err := manager.Open(ctx, multistore.LibraryKey(toKey))
		if err != nil {
			return HandlerConfig{}, err
		}
		c := command.New(lib.Instance)
		return HandlerConfig{
			Library:   lib.Instance,
			Commander: c,
			Identity:  command.NewIdentity(idn.Instance),
			Debouncer: command.NewDebouncer(c, 10*time.Millisecond),
			Engine:    reconcile.NewEngine(lib.Instance, c, set),
			UserID:    toKey,
		}, nil
	}

	h := NewHandler(HandlerConfig{
		Library:   libHandle.Instance,
		Commander: cmd,
		Identity:  command.NewIdentity(idnHandle.Instance),
		Debouncer: debouncer,
		Set:       set,
		Engine:    reconcile.NewEngine(libHandle.Instance, cmd, set),
		Migrator:  identity.NewMigrator(manager, session),
		Uploader:  &backup.NoopUploader{},
		Rebind:    rebind,
		Version:   "test",
		UserID:    anonKey,
	})
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	ts := &testServer{Server: srv, lib: libHandle.Instance, cmd: cmd, set: set}

	var created store.Context
	ts.request(t, http.MethodPost, "/api/v1/contexts",
		ContextRequest{Title: "Carried", Content: "body"}, &created)

	var report identity.Report
	resp := ts.request(t, http.MethodPost, "/api/v1/identity/migrate",
		MigrateRequest{UserKey: "alice"}, &report)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("migrate status = %d", resp.StatusCode)
	}
	if report.Skipped {
		t.Fatalf("migration skipped: %+v", report)
	}

	// The anonymous instances are deleted by the migration; the handler
	// must keep serving, now from the authenticated stores.
	var contexts []store.Context
	resp = ts.request(t, http.MethodGet, "/api/v1/contexts", nil, &contexts)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list after migration status = %d", resp.StatusCode)
	}
	if len(contexts) != 1 || contexts[0].ID != created.ID {
		t.Fatalf("contexts after migration = %+v", contexts)
	}

	// Writes land in the authenticated library too.
	resp = ts.request(t, http.MethodPost, "/api/v1/contexts",
		ContextRequest{Title: "After sign-in", Content: "x"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create after migration status = %d", resp.StatusCode)
	}
	authLib, err := manager.Open(ctx, multistore.LibraryKey("alice"))
	if err != nil {
		t.Fatalf("open authenticated library: %v", err)
	}
	got, err := authLib.Instance.Contexts(ctx)
	if err != nil {
		t.Fatalf("authenticated contexts: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("authenticated library has %d contexts, want 2", len(got))
	}
}

func TestBearerAuth(t *testing.T) {
	ts := newTestServer(t, "sekrit")

	// Health stays public.
	resp := ts.request(t, http.MethodGet, "/api/v1/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	resp = ts.request(t, http.MethodGet, "/api/v1/contexts", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/contexts", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("authed request: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Errorf("authenticated status = %d", authed.StatusCode)
	}

	req.Header.Set("Authorization", "Bearer wrong")
	denied, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("denied request: %v", err)
	}
	defer denied.Body.Close()
	if denied.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key status = %d, want 401", denied.StatusCode)
	}
}

func TestEditContextDebounces(t *testing.T) {
	ts := newTestServer(t, "")

	var created store.Context
	ts.request(t, http.MethodPost, "/api/v1/contexts",
		ContextRequest{Title: "Draft", Content: "v0"}, &created)

	resp := ts.request(t, http.MethodPatch, "/api/v1/contexts/"+created.ID,
		ContextRequest{Title: "Draft", Content: "v1"}, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("edit status = %d, want 202", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var fetched store.Context
		ts.request(t, http.MethodGet, "/api/v1/contexts/"+created.ID, nil, &fetched)
		if fetched.Content == "v1" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("debounced edit never applied, content = %q", fetched.Content)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
