// Package command is the write surface of the context library. It turns
// caller intents into validated events, enforcing the rules that are not
// projection constraints: unique titles and label names (case-insensitive),
// non-empty names, and version rotation on every content-affecting change.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contextdeck/contextdeck/internal/event"
	"github.com/contextdeck/contextdeck/internal/store"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrEmptyTitle is returned when a context title is empty or whitespace.
	ErrEmptyTitle = errors.New("context title must not be empty")
	// ErrDuplicateTitle is returned when another context already uses the title.
	ErrDuplicateTitle = errors.New("a context with this title already exists")
	// ErrEmptyLabelName is returned when a label name is empty or whitespace.
	ErrEmptyLabelName = errors.New("label name must not be empty")
	// ErrDuplicateLabelName is returned when another label already uses the name.
	ErrDuplicateLabelName = errors.New("a label with this name already exists")
)

// Commander issues events against a context-library store instance.
type Commander struct {
	lib *store.Instance
	now func() time.Time
}

// New creates a Commander for the given library instance.
func New(lib *store.Instance) *Commander {
	return &Commander{lib: lib, now: time.Now}
}

// WithClock overrides the commander's clock. Tests use this to pin timestamps.
func (c *Commander) WithClock(now func() time.Time) *Commander {
	c.now = now
	return c
}

// NewID returns a fresh entity id.
func NewID() string { return ulid.Make().String() }

// NewVersion returns a fresh opaque version token.
func NewVersion() string { return ulid.Make().String() }

// CreateContext validates and commits a new library context.
func (c *Commander) CreateContext(ctx context.Context, title, content, creatorID string) (*store.Context, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	exists, err := c.lib.ContextTitleExists(ctx, title, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateTitle
	}

	ev := &event.ContextCreated{
		ID:        NewID(),
		Title:     title,
		Content:   content,
		CreatedAt: event.Millis(c.now()),
		Version:   NewVersion(),
		CreatorID: creatorID,
	}
	if _, err := c.lib.Commit(ctx, ev); err != nil {
		return nil, err
	}
	return c.lib.ContextByID(ctx, ev.ID)
}

// UpdateContext replaces a context's title and content, rotating its version.
// A no-op update (identical title and content) commits nothing, so the
// version token changes if and only if the content-affecting state changed.
func (c *Commander) UpdateContext(ctx context.Context, id, title, content string) (*store.Context, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	current, err := c.lib.ContextByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Title == title && current.Content == content {
		return current, nil
	}

	exists, err := c.lib.ContextTitleExists(ctx, title, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateTitle
	}

	ev := &event.ContextUpdated{
		ID:        id,
		Title:     title,
		Content:   content,
		UpdatedAt: event.Millis(c.now()),
		Version:   NewVersion(),
	}
	if _, err := c.lib.Commit(ctx, ev); err != nil {
		return nil, err
	}
	return c.lib.ContextByID(ctx, id)
}

// DeleteContexts removes a batch of contexts and their associations.
func (c *Commander) DeleteContexts(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.lib.Commit(ctx, &event.ContextsDeleted{IDs: ids})
	return err
}

// SetContextLabels replaces a context's full label set. Label edits count as
// content for reconciliation purposes, so the context's version is rotated in
// a follow-up update event. Setting the label set a context already has
// commits nothing and leaves the version untouched.
func (c *Commander) SetContextLabels(ctx context.Context, contextID string, labelIDs []string) (*store.Context, error) {
	current, err := c.lib.ContextByID(ctx, contextID)
	if err != nil {
		return nil, err
	}
	if sameLabelSet(current.Labels, labelIDs) {
		return current, nil
	}
	for _, labelID := range labelIDs {
		if _, err := c.lib.LabelByID(ctx, labelID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("label %q: %w", labelID, store.ErrNotFound)
			}
			return nil, err
		}
	}

	if _, err := c.lib.Commit(ctx, &event.ContextLabelsUpdated{ContextID: contextID, LabelIDs: labelIDs}); err != nil {
		return nil, err
	}
	if _, err := c.lib.Commit(ctx, &event.ContextUpdated{
		ID:        contextID,
		Title:     current.Title,
		Content:   current.Content,
		UpdatedAt: event.Millis(c.now()),
		Version:   NewVersion(),
	}); err != nil {
		return nil, err
	}
	return c.lib.ContextByID(ctx, contextID)
}

// sameLabelSet reports whether two label id lists name the same set.
// Association order is not content, so reordering alone is not a change.
func sameLabelSet(current, requested []string) bool {
	have := make(map[string]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		want[id] = struct{}{}
	}
	if len(have) != len(want) {
		return false
	}
	for id := range want {
		if _, ok := have[id]; !ok {
			return false
		}
	}
	return true
}

// CreateLabel validates and commits a new label.
// Name uniqueness is case-insensitive and enforced here, not in the projection.
func (c *Commander) CreateLabel(ctx context.Context, name, color string) (*store.Label, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyLabelName
	}
	exists, err := c.lib.LabelNameExists(ctx, name, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateLabelName
	}

	ev := &event.LabelCreated{ID: NewID(), Name: name, Color: color}
	if _, err := c.lib.Commit(ctx, ev); err != nil {
		return nil, err
	}
	return c.lib.LabelByID(ctx, ev.ID)
}

// UpdateLabel replaces a label's name and color.
func (c *Commander) UpdateLabel(ctx context.Context, id, name, color string) (*store.Label, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyLabelName
	}
	if _, err := c.lib.LabelByID(ctx, id); err != nil {
		return nil, err
	}
	exists, err := c.lib.LabelNameExists(ctx, name, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateLabelName
	}

	if _, err := c.lib.Commit(ctx, &event.LabelUpdated{ID: id, Name: name, Color: color}); err != nil {
		return nil, err
	}
	return c.lib.LabelByID(ctx, id)
}

// DeleteLabel removes a label; its context associations cascade away.
func (c *Commander) DeleteLabel(ctx context.Context, id string) error {
	if _, err := c.lib.LabelByID(ctx, id); err != nil {
		return err
	}
	_, err := c.lib.Commit(ctx, &event.LabelDeleted{ID: id})
	return err
}

// EnsureLibrary commits the library-creation event if no library exists yet,
// and returns the library record either way.
func (c *Commander) EnsureLibrary(ctx context.Context, name, creatorID string) (*store.Library, error) {
	lib, err := c.lib.Library(ctx)
	if err == nil {
		return lib, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	ev := &event.LibraryCreated{LibraryID: NewID(), Name: name, CreatorID: creatorID}
	if _, err := c.lib.Commit(ctx, ev); err != nil {
		return nil, err
	}
	return c.lib.Library(ctx)
}

// RestoreContext commits a creation event preserving the given id, version,
// and timestamps. Used by backup import and identity migration, which both
// carry entities across store boundaries verbatim.
func (c *Commander) RestoreContext(ctx context.Context, sc store.Context) error {
	version := sc.Version
	if version == "" {
		version = NewVersion()
	}
	createdAt := sc.CreatedAt
	if createdAt.IsZero() {
		createdAt = c.now()
	}

	ev := &event.ContextCreated{
		ID:        sc.ID,
		Title:     sc.Title,
		Content:   sc.Content,
		CreatedAt: event.Millis(createdAt),
		Version:   version,
		CreatorID: sc.CreatorID,
	}
	_, err := c.lib.Commit(ctx, ev)
	return err
}

// RestoreLabel commits a label-creation event preserving the given id.
func (c *Commander) RestoreLabel(ctx context.Context, l store.Label) error {
	_, err := c.lib.Commit(ctx, &event.LabelCreated{ID: l.ID, Name: l.Name, Color: l.Color})
	return err
}
