package event

import "github.com/contextdeck/contextdeck/internal/validation"

// PreferenceUpdated sets the identity's theme. Materialized as a
// delete-then-insert so the preferences row stays a singleton under replay.
type PreferenceUpdated struct {
	Theme string `json:"theme"`
}

func (e *PreferenceUpdated) Kind() string { return NamePreferenceUpdated }

func (e *PreferenceUpdated) Validate() error {
	var c validation.Collector
	c.Add(validation.ValidateEnum("theme", e.Theme, []string{ThemeLight, ThemeDark}))
	return c.Err()
}

// ContextLibraryCreated records, in the identity store, which context library
// belongs to this identity.
type ContextLibraryCreated struct {
	LibraryID string `json:"library_id"`
}

func (e *ContextLibraryCreated) Kind() string { return NameContextLibraryCreated }

func (e *ContextLibraryCreated) Validate() error {
	var c validation.Collector
	c.Add(validation.ValidateRequired("library_id", e.LibraryID))
	return c.Err()
}
