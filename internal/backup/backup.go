// Package backup exports a context library to a portable JSON document and
// imports such documents back. Import is all-or-nothing at the structural
// level: the whole file is validated before a single event is committed.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/contextdeck/contextdeck/internal/command"
	"github.com/contextdeck/contextdeck/internal/event"
	"github.com/contextdeck/contextdeck/internal/store"
	"github.com/contextdeck/contextdeck/internal/validation"
)

// FormatVersion is the only document version this codec reads and writes.
const FormatVersion = "1.0"

// Context is one library item in the backup document.
type Context struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
	Version   string   `json:"version"`
	CreatorID string   `json:"creatorId,omitempty"`
	LabelIDs  []string `json:"labelIds"`
}

// Label is one label in the backup document.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Document is the persisted backup file. Timestamps are epoch milliseconds.
type Document struct {
	Contexts   []Context `json:"contexts"`
	Labels     []Label   `json:"labels"`
	ExportedAt int64     `json:"exportedAt"`
	Version    string    `json:"version"`
}

// Export captures the library's current projected state as a document.
func Export(ctx context.Context, in *store.Instance) (*Document, error) {
	contexts, err := in.Contexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("export contexts: %w", err)
	}
	labels, err := in.Labels(ctx)
	if err != nil {
		return nil, fmt.Errorf("export labels: %w", err)
	}

	doc := &Document{
		Contexts:   make([]Context, 0, len(contexts)),
		Labels:     make([]Label, 0, len(labels)),
		ExportedAt: event.Millis(time.Now()),
		Version:    FormatVersion,
	}
	for _, c := range contexts {
		labelIDs := c.Labels
		if labelIDs == nil {
			labelIDs = []string{}
		}
		doc.Contexts = append(doc.Contexts, Context{
			ID:        c.ID,
			Title:     c.Title,
			Content:   c.Content,
			CreatedAt: event.Millis(c.CreatedAt),
			UpdatedAt: event.Millis(c.UpdatedAt),
			Version:   c.Version,
			CreatorID: c.CreatorID,
			LabelIDs:  labelIDs,
		})
	}
	for _, l := range labels {
		doc.Labels = append(doc.Labels, Label{ID: l.ID, Name: l.Name, Color: l.Color})
	}
	return doc, nil
}

// rawDocument mirrors Document with pointer fields so a missing key is
// distinguishable from a zero value during validation.
type rawDocument struct {
	Contexts   *[]rawContext `json:"contexts"`
	Labels     *[]rawLabel   `json:"labels"`
	ExportedAt *int64        `json:"exportedAt"`
	Version    *string       `json:"version"`
}

type rawContext struct {
	ID        *string   `json:"id"`
	Title     *string   `json:"title"`
	Content   *string   `json:"content"`
	CreatedAt *int64    `json:"createdAt"`
	UpdatedAt *int64    `json:"updatedAt"`
	Version   *string   `json:"version"`
	CreatorID *string   `json:"creatorId"`
	LabelIDs  *[]string `json:"labelIds"`
}

type rawLabel struct {
	ID    *string `json:"id"`
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

// Parse decodes and validates a backup file. Any structural failure rejects
// the entire document; a valid Document is never partially populated.
func Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse backup document: %w", err)
	}

	var c validation.Collector
	if raw.Version == nil {
		c.Addf("version", "is required")
	} else if *raw.Version != FormatVersion {
		c.Addf("version", "must be %q, got %q", FormatVersion, *raw.Version)
	}
	if raw.ExportedAt == nil {
		c.Addf("exportedAt", "is required")
	}
	if raw.Contexts == nil {
		c.Addf("contexts", "is required")
	}
	if raw.Labels == nil {
		c.Addf("labels", "is required")
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	doc := &Document{
		Contexts:   make([]Context, 0, len(*raw.Contexts)),
		Labels:     make([]Label, 0, len(*raw.Labels)),
		ExportedAt: *raw.ExportedAt,
		Version:    *raw.Version,
	}

	seenLabels := make(map[string]bool, len(*raw.Labels))
	for i, rl := range *raw.Labels {
		field := fmt.Sprintf("labels[%d]", i)
		label, ok := validateLabel(&c, field, rl)
		if !ok {
			continue
		}
		if seenLabels[label.ID] {
			c.Addf(field+".id", "duplicates label id %q", label.ID)
			continue
		}
		seenLabels[label.ID] = true
		doc.Labels = append(doc.Labels, label)
	}

	seenContexts := make(map[string]bool, len(*raw.Contexts))
	for i, rc := range *raw.Contexts {
		field := fmt.Sprintf("contexts[%d]", i)
		sc, ok := validateContext(&c, field, rc)
		if !ok {
			continue
		}
		if seenContexts[sc.ID] {
			c.Addf(field+".id", "duplicates context id %q", sc.ID)
			continue
		}
		for _, labelID := range sc.LabelIDs {
			if !seenLabels[labelID] {
				c.Addf(field+".labelIds", "references unknown label %q", labelID)
			}
		}
		seenContexts[sc.ID] = true
		doc.Contexts = append(doc.Contexts, sc)
	}

	if err := c.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

func validateLabel(c *validation.Collector, field string, rl rawLabel) (Label, bool) {
	before := c.Len()
	if rl.ID == nil || *rl.ID == "" {
		c.Addf(field+".id", "is required")
	} else {
		c.Add(validation.ValidateULID(field+".id", *rl.ID))
	}
	if rl.Name == nil || *rl.Name == "" {
		c.Addf(field+".name", "is required")
	}
	var label Label
	if c.Len() > before {
		return label, false
	}
	label = Label{ID: *rl.ID, Name: *rl.Name}
	if rl.Color != nil {
		label.Color = *rl.Color
		c.Add(validation.ValidateHexColor(field+".color", label.Color))
	}
	return label, c.Len() == before
}

func validateContext(c *validation.Collector, field string, rc rawContext) (Context, bool) {
	before := c.Len()
	if rc.ID == nil || *rc.ID == "" {
		c.Addf(field+".id", "is required")
	} else {
		c.Add(validation.ValidateULID(field+".id", *rc.ID))
	}
	if rc.Title == nil || *rc.Title == "" {
		c.Addf(field+".title", "is required")
	}
	if rc.Content == nil {
		c.Addf(field+".content", "is required")
	}
	if rc.CreatedAt == nil {
		c.Addf(field+".createdAt", "is required")
	}
	if rc.UpdatedAt == nil {
		c.Addf(field+".updatedAt", "is required")
	}
	if rc.Version == nil || *rc.Version == "" {
		c.Addf(field+".version", "is required")
	}
	if rc.LabelIDs == nil {
		c.Addf(field+".labelIds", "is required")
	}
	var sc Context
	if c.Len() > before {
		return sc, false
	}

	c.Add(validation.ValidateUTF8(field+".title", *rc.Title))
	c.Add(validation.ValidateMaxLength(field+".title", *rc.Title, event.MaxTitleLength))
	c.Add(validation.ValidateUTF8(field+".content", *rc.Content))
	c.Add(validation.ValidateMaxLength(field+".content", *rc.Content, event.MaxContentLength))

	sc = Context{
		ID:        *rc.ID,
		Title:     *rc.Title,
		Content:   *rc.Content,
		CreatedAt: *rc.CreatedAt,
		UpdatedAt: *rc.UpdatedAt,
		Version:   *rc.Version,
		LabelIDs:  append([]string{}, *rc.LabelIDs...),
	}
	if rc.CreatorID != nil {
		sc.CreatorID = *rc.CreatorID
	}
	return sc, c.Len() == before
}

// Import applies a validated document to the library. Contexts and labels
// whose ids already exist are updated in place; unknown ids are created
// preserving the document's ids, versions, and timestamps. Label associations
// are reconciled to exactly the imported set.
func Import(ctx context.Context, in *store.Instance, cmd *command.Commander, doc *Document) error {
	for _, l := range doc.Labels {
		_, err := in.LabelByID(ctx, l.ID)
		switch {
		case err == nil:
			if _, err := cmd.UpdateLabel(ctx, l.ID, l.Name, l.Color); err != nil {
				return fmt.Errorf("import label %s: %w", l.ID, err)
			}
		case isNotFound(err):
			if err := cmd.RestoreLabel(ctx, store.Label{ID: l.ID, Name: l.Name, Color: l.Color}); err != nil {
				return fmt.Errorf("import label %s: %w", l.ID, err)
			}
		default:
			return fmt.Errorf("look up label %s: %w", l.ID, err)
		}
	}

	for _, sc := range doc.Contexts {
		_, err := in.ContextByID(ctx, sc.ID)
		switch {
		case err == nil:
			if _, err := cmd.UpdateContext(ctx, sc.ID, sc.Title, sc.Content); err != nil {
				return fmt.Errorf("import context %s: %w", sc.ID, err)
			}
			if _, err := cmd.SetContextLabels(ctx, sc.ID, sc.LabelIDs); err != nil {
				return fmt.Errorf("import context labels %s: %w", sc.ID, err)
			}
		case isNotFound(err):
			restored := store.Context{
				ID:        sc.ID,
				Title:     sc.Title,
				Content:   sc.Content,
				Version:   sc.Version,
				CreatorID: sc.CreatorID,
				CreatedAt: event.FromMillis(sc.CreatedAt),
			}
			if err := cmd.RestoreContext(ctx, restored); err != nil {
				return fmt.Errorf("import context %s: %w", sc.ID, err)
			}
			if len(sc.LabelIDs) > 0 {
				// Raw label event keeps the imported version intact.
				_, err := in.Commit(ctx, &event.ContextLabelsUpdated{
					ContextID: sc.ID,
					LabelIDs:  sc.LabelIDs,
				})
				if err != nil {
					return fmt.Errorf("import context labels %s: %w", sc.ID, err)
				}
			}
		default:
			return fmt.Errorf("look up context %s: %w", sc.ID, err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
