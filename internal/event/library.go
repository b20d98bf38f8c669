package event

import (
	"fmt"

	"github.com/contextdeck/contextdeck/internal/validation"
)

// MaxTitleLength bounds context titles and label names.
const MaxTitleLength = 500

// MaxContentLength bounds context content.
const MaxContentLength = 1_000_000

// ContextCreated records a new library context. Timestamps and ids travel in
// the payload so the materializer stays a pure function of the log.
type ContextCreated struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
	Version   string `json:"version"`
	CreatorID string `json:"creator_id,omitempty"`
}

func (e *ContextCreated) Kind() string { return NameContextCreated }

func (e *ContextCreated) Validate() error {
	var c validation.Collector
	c.Add(validation.ValidateRequired("id", e.ID))
	c.Add(validation.ValidateRequired("title", e.Title))
	c.Add(validation.ValidateMaxLength("title", e.Title, MaxTitleLength))
	c.Add(validation.ValidateUTF8("content", e.Content))
	c.Add(validation.ValidateMaxLength("content", e.Content, MaxContentLength))
	c.Add(validation.ValidateRequired("version", e.Version))
	if e.CreatedAt <= 0 {
		c.Add(&validation.ValidationError{Field: "created_at", Message: "must be a positive epoch-ms timestamp"})
	}
	return c.Err()
}

// ContextUpdated replaces a context's title and content and rotates its version.
type ContextUpdated struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updated_at"`
	Version   string `json:"version"`
}

func (e *ContextUpdated) Kind() string { return NameContextUpdated }

func (e *ContextUpdated) Validate() error {
	var c validation.Collector
	c.Add(validation.ValidateRequired("id", e.ID))
	c.Add(validation.ValidateRequired("title", e.Title))
	c.Add(validation.ValidateMaxLength("title", e.Title, MaxTitleLength))
	c.Add(validation.ValidateUTF8("content", e.Content))
	c.Add(validation.ValidateMaxLength("content", e.Content, MaxContentLength))
	c.Add(validation.ValidateRequired("version", e.Version))
	if e.UpdatedAt <= 0 {
		c.Add(&validation.ValidationError{Field: "updated_at", Message: "must be a positive epoch-ms timestamp"})
	}
	return c.Err()
}

// ContextsDeleted removes a batch of contexts and their label associations.
type ContextsDeleted struct {
	IDs []string `json:"ids"`
}

func (e *ContextsDeleted) Kind() string { return NameContextsDeleted }

func (e *ContextsDeleted) Validate() error {
	if len(e.IDs) == 0 {
		return fmt.Errorf("ids: at least one context id is required")
	}
	var c validation.Collector
	for i, id := range e.IDs {
		c.Add(validation.ValidateRequired(fmt.Sprintf("ids[%d]", i), id))
	}
	return c.Err()
}

// LabelCreated records a new label.
type LabelCreated struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

func (e *LabelCreated) Kind() string { return NameLabelCreated }

func (e *LabelCreated) Validate() error {
	var c validation.Collector
	c.Add(validation.ValidateRequired("id", e.ID))
	c.Add(validation.ValidateRequired("name", e.Name))
	c.Add(validation.ValidateMaxLength("name", e.Name, MaxTitleLength))
	if e.Color != "" {
		c.Add(validation.ValidateHexColor("color", e.Color))
	}
	return c.Err()
}

// LabelUpdated replaces a label's name and color.
type LabelUpdated struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

func (e *LabelUpdated) Kind() string { return NameLabelUpdated }

func (e *LabelUpdated) Validate() error {
	var c validation.Collector
	c.Add(validation.ValidateRequired("id", e.ID))
	c.Add(validation.ValidateRequired("name", e.Name))
	c.Add(validation.ValidateMaxLength("name", e.Name, MaxTitleLength))
	if e.Color != "" {
		c.Add(validation.ValidateHexColor("color", e.Color))
	}
	return c.Err()
}

// LabelDeleted removes a label and cascades removal of its associations.
type LabelDeleted struct {
	ID string `json:"id"`
}

func (e *LabelDeleted) Kind() string { return NameLabelDeleted }

func (e *LabelDeleted) Validate() error {
	var c validation.Collector
	c.Add(validation.ValidateRequired("id", e.ID))
	return c.Err()
}

// ContextLabelsUpdated replaces a context's full label set.
type ContextLabelsUpdated struct {
	ContextID string   `json:"context_id"`
	LabelIDs  []string `json:"label_ids"`
}

func (e *ContextLabelsUpdated) Kind() string { return NameContextLabelsUpdated }

func (e *ContextLabelsUpdated) Validate() error {
	var c validation.Collector
	c.Add(validation.ValidateRequired("context_id", e.ContextID))
	for i, id := range e.LabelIDs {
		c.Add(validation.ValidateRequired(fmt.Sprintf("label_ids[%d]", i), id))
	}
	return c.Err()
}

// LibraryCreated establishes the library record and its creator membership.
type LibraryCreated struct {
	LibraryID string `json:"library_id"`
	Name      string `json:"name,omitempty"`
	CreatorID string `json:"creator_id"`
}

func (e *LibraryCreated) Kind() string { return NameLibraryCreated }

func (e *LibraryCreated) Validate() error {
	var c validation.Collector
	c.Add(validation.ValidateRequired("library_id", e.LibraryID))
	c.Add(validation.ValidateRequired("creator_id", e.CreatorID))
	return c.Err()
}
