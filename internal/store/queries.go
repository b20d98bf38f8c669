package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface{ Scan(dest ...any) error }

func scanContext(s scanner) (*Context, error) {
	var c Context
	var createdAt, updatedAt string

	err := s.Scan(&c.ID, &c.Title, &c.Content, &c.TokenCount, &c.Version, &c.CreatorID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		c.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		c.UpdatedAt = t
	}
	c.Labels = []string{}
	return &c, nil
}

const selectContextColumns = `
	SELECT id, title, content, token_count, version, creator_id, created_at, updated_at
	FROM contexts`

// Contexts returns all projected contexts ordered by creation time, with
// their label sets attached.
func (in *Instance) Contexts(ctx context.Context) ([]Context, error) {
	rows, err := in.db.QueryContext(ctx, selectContextColumns+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query contexts: %w", err)
	}
	defer rows.Close()

	var contexts []Context
	index := make(map[string]int)
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		index[c.ID] = len(contexts)
		contexts = append(contexts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contexts: %w", err)
	}

	labelRows, err := in.db.QueryContext(ctx,
		`SELECT context_id, label_id FROM context_labels ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query context labels: %w", err)
	}
	defer labelRows.Close()

	for labelRows.Next() {
		var contextID, labelID string
		if err := labelRows.Scan(&contextID, &labelID); err != nil {
			return nil, fmt.Errorf("scan context label: %w", err)
		}
		if i, ok := index[contextID]; ok {
			contexts[i].Labels = append(contexts[i].Labels, labelID)
		}
	}
	return contexts, labelRows.Err()
}

// ContextByID returns a single projected context with its label set.
func (in *Instance) ContextByID(ctx context.Context, id string) (*Context, error) {
	row := in.db.QueryRowContext(ctx, selectContextColumns+` WHERE id = ?`, id)
	c, err := scanContext(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan context: %w", err)
	}

	labels, err := in.ContextLabelIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Labels = labels
	return c, nil
}

// ContextLabelIDs returns the label ids associated with a context.
func (in *Instance) ContextLabelIDs(ctx context.Context, contextID string) ([]string, error) {
	rows, err := in.db.QueryContext(ctx,
		`SELECT label_id FROM context_labels WHERE context_id = ? ORDER BY rowid ASC`, contextID)
	if err != nil {
		return nil, fmt.Errorf("query context labels: %w", err)
	}
	defer rows.Close()

	labels := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan label id: %w", err)
		}
		labels = append(labels, id)
	}
	return labels, rows.Err()
}

// ContextTitleExists reports whether another context already uses the title
// (case-insensitive). excludeID ignores the entity being updated.
func (in *Instance) ContextTitleExists(ctx context.Context, title, excludeID string) (bool, error) {
	var count int
	err := in.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contexts WHERE lower(title) = lower(?) AND id != ?`,
		title, excludeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check title: %w", err)
	}
	return count > 0, nil
}

// Labels returns all projected labels ordered by name.
func (in *Instance) Labels(ctx context.Context) ([]Label, error) {
	rows, err := in.db.QueryContext(ctx,
		`SELECT id, name, color FROM labels ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var labels []Label
	for rows.Next() {
		var l Label
		if err := rows.Scan(&l.ID, &l.Name, &l.Color); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// LabelByID returns a single projected label.
func (in *Instance) LabelByID(ctx context.Context, id string) (*Label, error) {
	var l Label
	err := in.db.QueryRowContext(ctx,
		`SELECT id, name, color FROM labels WHERE id = ?`, id).Scan(&l.ID, &l.Name, &l.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query label: %w", err)
	}
	return &l, nil
}

// LabelNameExists reports whether another label already uses the name
// (case-insensitive). Uniqueness is a command-layer rule, not a projection
// constraint, so replay of historical logs is never blocked by it.
func (in *Instance) LabelNameExists(ctx context.Context, name, excludeID string) (bool, error) {
	var count int
	err := in.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM labels WHERE lower(name) = lower(?) AND id != ?`,
		name, excludeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check label name: %w", err)
	}
	return count > 0, nil
}

// Library returns the projected library record with its members,
// or ErrNotFound when no library has been created yet.
func (in *Instance) Library(ctx context.Context) (*Library, error) {
	var lib Library
	err := in.db.QueryRowContext(ctx,
		`SELECT id, name, creator_id FROM library LIMIT 1`).Scan(&lib.ID, &lib.Name, &lib.CreatorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query library: %w", err)
	}

	rows, err := in.db.QueryContext(ctx,
		`SELECT user_id FROM members WHERE library_id = ? ORDER BY user_id ASC`, lib.ID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		lib.Members = append(lib.Members, userID)
	}
	return &lib, rows.Err()
}

// Theme returns the current theme preference, or the default when no
// preference row exists.
func (in *Instance) Theme(ctx context.Context, defaultTheme string) (string, error) {
	var theme string
	err := in.db.QueryRowContext(ctx,
		`SELECT theme FROM preferences WHERE key = 'current'`).Scan(&theme)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultTheme, nil
	}
	if err != nil {
		return "", fmt.Errorf("query preference: %w", err)
	}
	return theme, nil
}

// DumpProjection serializes every projection table into a stable,
// deterministic form. Used to verify replay idempotence.
func (in *Instance) DumpProjection(ctx context.Context) (string, error) {
	var out string

	dump := func(query string, columns int) error {
		rows, err := in.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		dest := make([]any, columns)
		vals := make([]sql.NullString, columns)
		for i := range vals {
			dest[i] = &vals[i]
		}
		for rows.Next() {
			if err := rows.Scan(dest...); err != nil {
				return err
			}
			for _, v := range vals {
				out += v.String + "|"
			}
			out += "\n"
		}
		return rows.Err()
	}

	tables := []struct {
		query   string
		columns int
	}{
		{`SELECT id, title, content, token_count, version, creator_id, created_at, updated_at FROM contexts ORDER BY id`, 8},
		{`SELECT id, name, color FROM labels ORDER BY id`, 3},
		{`SELECT context_id, label_id FROM context_labels ORDER BY context_id, label_id`, 2},
		{`SELECT id, name, creator_id FROM library ORDER BY id`, 3},
		{`SELECT library_id, user_id FROM members ORDER BY library_id, user_id`, 2},
		{`SELECT key, theme FROM preferences ORDER BY key`, 2},
	}
	for _, t := range tables {
		if err := dump(t.query, t.columns); err != nil {
			return "", fmt.Errorf("dump projection: %w", err)
		}
		out += "--\n"
	}
	return out, nil
}
