package command

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/contextdeck/contextdeck/internal/store"
)

func newTestCommander(t *testing.T) (*Commander, *store.Instance) {
	t.Helper()
	in, err := store.Open(filepath.Join(t.TempDir(), "lib.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { in.Close() })
	return New(in), in
}

func TestCreateContextRejectsEmptyTitle(t *testing.T) {
	c, _ := newTestCommander(t)

	for _, title := range []string{"", "   ", "\t\n"} {
		if _, err := c.CreateContext(context.Background(), title, "content", "u"); !errors.Is(err, ErrEmptyTitle) {
			t.Errorf("CreateContext(%q) error = %v, want ErrEmptyTitle", title, err)
		}
	}
}

func TestCreateContextRejectsDuplicateTitle(t *testing.T) {
	c, _ := newTestCommander(t)
	ctx := context.Background()

	if _, err := c.CreateContext(ctx, "Deploy Notes", "a", "u"); err != nil {
		t.Fatalf("CreateContext: %v", err)
	}

	// Uniqueness is case-insensitive.
	_, err := c.CreateContext(ctx, "deploy notes", "b", "u")
	if !errors.Is(err, ErrDuplicateTitle) {
		t.Errorf("duplicate error = %v, want ErrDuplicateTitle", err)
	}
}

func TestUpdateContextRotatesVersionOnChange(t *testing.T) {
	c, _ := newTestCommander(t)
	ctx := context.Background()

	created, err := c.CreateContext(ctx, "Note", "hello", "u")
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}

	updated, err := c.UpdateContext(ctx, created.ID, "Note", "hello world")
	if err != nil {
		t.Fatalf("UpdateContext: %v", err)
	}
	if updated.Version == created.Version {
		t.Error("version did not rotate on content change")
	}
	if updated.Content != "hello world" {
		t.Errorf("Content = %q", updated.Content)
	}
}

func TestUpdateContextNoOpKeepsVersion(t *testing.T) {
	c, in := newTestCommander(t)
	ctx := context.Background()

	created, err := c.CreateContext(ctx, "Note", "hello", "u")
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	seqBefore, _ := in.LatestSequence(ctx)

	same, err := c.UpdateContext(ctx, created.ID, "Note", "hello")
	if err != nil {
		t.Fatalf("UpdateContext: %v", err)
	}
	if same.Version != created.Version {
		t.Error("version rotated on a no-op update")
	}

	seqAfter, _ := in.LatestSequence(ctx)
	if seqAfter != seqBefore {
		t.Errorf("no-op update appended events: %d -> %d", seqBefore, seqAfter)
	}
}

func TestSetContextLabelsRotatesVersion(t *testing.T) {
	c, _ := newTestCommander(t)
	ctx := context.Background()

	created, err := c.CreateContext(ctx, "Note", "hello", "u")
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	label, err := c.CreateLabel(ctx, "infra", "#112233")
	if err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}

	updated, err := c.SetContextLabels(ctx, created.ID, []string{label.ID})
	if err != nil {
		t.Fatalf("SetContextLabels: %v", err)
	}
	if updated.Version == created.Version {
		t.Error("version did not rotate on label change")
	}
	if len(updated.Labels) != 1 || updated.Labels[0] != label.ID {
		t.Errorf("Labels = %v", updated.Labels)
	}
}

func TestSetContextLabelsSameSetKeepsVersion(t *testing.T) {
	c, in := newTestCommander(t)
	ctx := context.Background()

	created, err := c.CreateContext(ctx, "Note", "hello", "u")
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	a, err := c.CreateLabel(ctx, "infra", "#112233")
	if err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}
	b, err := c.CreateLabel(ctx, "docs", "#445566")
	if err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}

	first, err := c.SetContextLabels(ctx, created.ID, []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("SetContextLabels: %v", err)
	}
	seqBefore, _ := in.LatestSequence(ctx)

	// Same set, different order: not a change.
	second, err := c.SetContextLabels(ctx, created.ID, []string{b.ID, a.ID})
	if err != nil {
		t.Fatalf("SetContextLabels: %v", err)
	}
	if second.Version != first.Version {
		t.Errorf("version rotated on an unchanged label set: %s -> %s", first.Version, second.Version)
	}

	seqAfter, _ := in.LatestSequence(ctx)
	if seqAfter != seqBefore {
		t.Errorf("unchanged label set appended events: %d -> %d", seqBefore, seqAfter)
	}
}

func TestSetContextLabelsRejectsUnknownLabel(t *testing.T) {
	c, _ := newTestCommander(t)
	ctx := context.Background()

	created, err := c.CreateContext(ctx, "Note", "hello", "u")
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}

	_, err = c.SetContextLabels(ctx, created.ID, []string{"missing"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteContextsRemovesRowsAndAssignments(t *testing.T) {
	c, in := newTestCommander(t)
	ctx := context.Background()

	created, err := c.CreateContext(ctx, "Note", "hello", "u")
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	label, err := c.CreateLabel(ctx, "infra", "#112233")
	if err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}
	if _, err := c.SetContextLabels(ctx, created.ID, []string{label.ID}); err != nil {
		t.Fatalf("SetContextLabels: %v", err)
	}

	if err := c.DeleteContexts(ctx, []string{created.ID}); err != nil {
		t.Fatalf("DeleteContexts: %v", err)
	}

	if _, err := in.ContextByID(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("context still present: %v", err)
	}
	ids, err := in.ContextLabelIDs(ctx, created.ID)
	if err != nil {
		t.Fatalf("ContextLabelIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("label assignments survived delete: %v", ids)
	}
	// The label itself stays.
	if _, err := in.LabelByID(ctx, label.ID); err != nil {
		t.Errorf("label disappeared: %v", err)
	}
}

func TestLabelNameUniquenessCaseInsensitive(t *testing.T) {
	c, _ := newTestCommander(t)
	ctx := context.Background()

	if _, err := c.CreateLabel(ctx, "Infra", "#112233"); err != nil {
		t.Fatalf("CreateLabel: %v", err)
	}
	if _, err := c.CreateLabel(ctx, "infra", "#445566"); !errors.Is(err, ErrDuplicateLabelName) {
		t.Errorf("duplicate error = %v, want ErrDuplicateLabelName", err)
	}
	if _, err := c.CreateLabel(ctx, "  ", "#445566"); !errors.Is(err, ErrEmptyLabelName) {
		t.Errorf("empty error = %v, want ErrEmptyLabelName", err)
	}
}

func TestEnsureLibraryIsIdempotent(t *testing.T) {
	c, _ := newTestCommander(t)
	ctx := context.Background()

	first, err := c.EnsureLibrary(ctx, "My Library", "u")
	if err != nil {
		t.Fatalf("EnsureLibrary: %v", err)
	}
	second, err := c.EnsureLibrary(ctx, "Other Name", "someone-else")
	if err != nil {
		t.Fatalf("EnsureLibrary: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("library recreated: %s vs %s", first.ID, second.ID)
	}
}

func TestRestoreContextPreservesIdentityFields(t *testing.T) {
	c, in := newTestCommander(t)
	ctx := context.Background()

	src := store.Context{
		ID:      "01HZX0000000000000000000AA",
		Title:   "Carried",
		Content: "payload",
		Version: "01HZX0000000000000000000BB",
	}
	if err := c.RestoreContext(ctx, src); err != nil {
		t.Fatalf("RestoreContext: %v", err)
	}

	got, err := in.ContextByID(ctx, src.ID)
	if err != nil {
		t.Fatalf("ContextByID: %v", err)
	}
	if got.Version != src.Version {
		t.Errorf("Version = %q, want %q", got.Version, src.Version)
	}
	if got.Title != src.Title || got.Content != src.Content {
		t.Errorf("restored row mismatch: %+v", got)
	}
}
