// Package materialize maps committed events to relational mutations against
// the projection tables. The mapping is pure: mutations depend only on the
// event payload, so replaying the log from sequence 0 always reproduces the
// same projection state. Timestamps, ids, and versions are taken from the
// payload, never generated here.
package materialize

import (
	"fmt"
	"time"

	"github.com/contextdeck/contextdeck/internal/event"
)

// Projection table names, referenced by the reactive query layer to decide
// which subscriptions a commit invalidates.
const (
	TableContexts      = "contexts"
	TableLabels        = "labels"
	TableContextLabels = "context_labels"
	TableLibrary       = "library"
	TableMembers       = "members"
	TablePreferences   = "preferences"
)

// Mutation is a single relational change produced by materializing an event.
type Mutation struct {
	Table string
	SQL   string
	Args  []any
}

// Mutations returns the projection mutations for an event. The switch is
// exhaustive over the event package's concrete types; an event type without a
// branch fails the commit rather than silently materializing nothing.
//
// Creation and singleton events are materialized as delete-then-insert so a
// second replay of the same log lands in the identical state.
func Mutations(ev event.Event) ([]Mutation, error) {
	switch e := ev.(type) {
	case *event.ContextCreated:
		return contextCreated(e), nil
	case *event.ContextUpdated:
		return contextUpdated(e), nil
	case *event.ContextsDeleted:
		return contextsDeleted(e), nil
	case *event.LabelCreated:
		return []Mutation{
			{Table: TableLabels, SQL: `DELETE FROM labels WHERE id = ?`, Args: []any{e.ID}},
			{Table: TableLabels, SQL: `INSERT INTO labels (id, name, color) VALUES (?, ?, ?)`, Args: []any{e.ID, e.Name, e.Color}},
		}, nil
	case *event.LabelUpdated:
		return []Mutation{
			{Table: TableLabels, SQL: `UPDATE labels SET name = ?, color = ? WHERE id = ?`, Args: []any{e.Name, e.Color, e.ID}},
		}, nil
	case *event.LabelDeleted:
		return []Mutation{
			{Table: TableContextLabels, SQL: `DELETE FROM context_labels WHERE label_id = ?`, Args: []any{e.ID}},
			{Table: TableLabels, SQL: `DELETE FROM labels WHERE id = ?`, Args: []any{e.ID}},
		}, nil
	case *event.ContextLabelsUpdated:
		return contextLabelsUpdated(e), nil
	case *event.LibraryCreated:
		return []Mutation{
			{Table: TableMembers, SQL: `DELETE FROM members WHERE library_id = ?`, Args: []any{e.LibraryID}},
			{Table: TableLibrary, SQL: `DELETE FROM library WHERE id = ?`, Args: []any{e.LibraryID}},
			{Table: TableLibrary, SQL: `INSERT INTO library (id, name, creator_id) VALUES (?, ?, ?)`, Args: []any{e.LibraryID, e.Name, e.CreatorID}},
			{Table: TableMembers, SQL: `INSERT INTO members (library_id, user_id) VALUES (?, ?)`, Args: []any{e.LibraryID, e.CreatorID}},
		}, nil
	case *event.PreferenceUpdated:
		return []Mutation{
			{Table: TablePreferences, SQL: `DELETE FROM preferences`, Args: nil},
			{Table: TablePreferences, SQL: `INSERT INTO preferences (key, theme) VALUES ('current', ?)`, Args: []any{e.Theme}},
		}, nil
	case *event.ContextLibraryCreated:
		return []Mutation{
			{Table: TableLibrary, SQL: `DELETE FROM library WHERE id = ?`, Args: []any{e.LibraryID}},
			{Table: TableLibrary, SQL: `INSERT INTO library (id, name, creator_id) VALUES (?, '', '')`, Args: []any{e.LibraryID}},
		}, nil
	default:
		return nil, fmt.Errorf("no materializer for event %q", ev.Kind())
	}
}

// Tables returns the projection tables a mutation list touches, deduplicated,
// in mutation order. Commit hands the result to after-commit hooks.
func Tables(muts []Mutation) []string {
	seen := make(map[string]bool, len(muts))
	tables := make([]string, 0, 2)
	for _, m := range muts {
		if !seen[m.Table] {
			seen[m.Table] = true
			tables = append(tables, m.Table)
		}
	}
	return tables
}

func contextCreated(e *event.ContextCreated) []Mutation {
	created := formatTime(event.FromMillis(e.CreatedAt))
	return []Mutation{
		{Table: TableContexts, SQL: `DELETE FROM contexts WHERE id = ?`, Args: []any{e.ID}},
		{
			Table: TableContexts,
			SQL: `INSERT INTO contexts (id, title, content, token_count, version, creator_id, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			Args: []any{e.ID, e.Title, e.Content, EstimateTokens(e.Content), e.Version, e.CreatorID, created, created},
		},
	}
}

func contextUpdated(e *event.ContextUpdated) []Mutation {
	return []Mutation{
		{
			Table: TableContexts,
			SQL:   `UPDATE contexts SET title = ?, content = ?, token_count = ?, version = ?, updated_at = ? WHERE id = ?`,
			Args:  []any{e.Title, e.Content, EstimateTokens(e.Content), e.Version, formatTime(event.FromMillis(e.UpdatedAt)), e.ID},
		},
	}
}

func contextsDeleted(e *event.ContextsDeleted) []Mutation {
	muts := make([]Mutation, 0, len(e.IDs)*2)
	for _, id := range e.IDs {
		muts = append(muts,
			Mutation{Table: TableContextLabels, SQL: `DELETE FROM context_labels WHERE context_id = ?`, Args: []any{id}},
			Mutation{Table: TableContexts, SQL: `DELETE FROM contexts WHERE id = ?`, Args: []any{id}},
		)
	}
	return muts
}

func contextLabelsUpdated(e *event.ContextLabelsUpdated) []Mutation {
	// Full replace, never an incremental diff.
	muts := []Mutation{
		{Table: TableContextLabels, SQL: `DELETE FROM context_labels WHERE context_id = ?`, Args: []any{e.ContextID}},
	}
	for _, labelID := range e.LabelIDs {
		muts = append(muts, Mutation{
			Table: TableContextLabels,
			SQL:   `INSERT INTO context_labels (context_id, label_id) VALUES (?, ?)`,
			Args:  []any{e.ContextID, labelID},
		})
	}
	return muts
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
