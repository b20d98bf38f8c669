package command

import (
	"context"

	"github.com/contextdeck/contextdeck/internal/event"
	"github.com/contextdeck/contextdeck/internal/store"
)

// Identity issues events against an identity store instance.
type Identity struct {
	in *store.Instance
}

// NewIdentity creates an Identity commander for the given instance.
func NewIdentity(in *store.Instance) *Identity {
	return &Identity{in: in}
}

// SetTheme upserts the identity's theme preference.
func (i *Identity) SetTheme(ctx context.Context, theme string) error {
	_, err := i.in.Commit(ctx, &event.PreferenceUpdated{Theme: theme})
	return err
}

// Theme returns the current theme, falling back to the default.
func (i *Identity) Theme(ctx context.Context) (string, error) {
	return i.in.Theme(ctx, event.DefaultTheme)
}

// AttachLibrary records which context library belongs to this identity.
func (i *Identity) AttachLibrary(ctx context.Context, libraryID string) error {
	_, err := i.in.Commit(ctx, &event.ContextLibraryCreated{LibraryID: libraryID})
	return err
}
