// Package store implements a single event-sourced store instance: an
// append-only SQLite event log plus the relational projection derived from it.
// Commits are serialized per instance; materialization happens inside the
// same transaction as the log append, so the projection can never reflect a
// partially applied event.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/contextdeck/contextdeck/internal/event"
	"github.com/contextdeck/contextdeck/internal/materialize"
	_ "modernc.org/sqlite"
)

// Instance binds an event log, the materializer, and a projection under one
// durable identifier.
type Instance struct {
	id string
	db *sql.DB

	// mu serializes commits: at most one event is materialized at a time,
	// and after-commit hooks run before the next commit is admitted.
	mu    sync.Mutex
	hooks []func(tables []string)
}

// Option configures an Instance at open time.
type Option func(*Instance)

// WithInstanceID attaches an identifier used in log output.
func WithInstanceID(id string) Option {
	return func(in *Instance) { in.id = id }
}

// Open creates or opens the store instance database at the given path.
// It enables WAL mode, applies pragmas, and runs the embedded migrations.
func Open(dbPath string, opts ...Option) (*Instance, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY under the per-instance commit lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	in := &Instance{db: db}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// ID returns the instance identifier, if one was set.
func (in *Instance) ID() string { return in.id }

// Close closes the database connection.
func (in *Instance) Close() error {
	return in.db.Close()
}

// AfterCommit registers a hook invoked after every successful commit with the
// projection tables the event touched. Hooks run synchronously under the
// commit lock, before the next event for this instance is processed; they
// must not commit back into the same instance.
func (in *Instance) AfterCommit(fn func(tables []string)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.hooks = append(in.hooks, fn)
}

// Commit validates the event, appends it to the log, and materializes it into
// the projection in one transaction. Returns the assigned sequence number.
// A failed materialization aborts the append: the log position never advances
// for an event the projection did not absorb.
func (in *Instance) Commit(ctx context.Context, ev event.Event) (int64, error) {
	if err := ev.Validate(); err != nil {
		return 0, fmt.Errorf("validate %s: %w", ev.Kind(), err)
	}

	muts, err := materialize.Mutations(ev)
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", ev.Kind(), err)
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	tx, err := in.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO events (name, payload, recorded_at) VALUES (?, ?, ?)`,
		ev.Kind(), string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get sequence: %w", err)
	}

	for i, m := range muts {
		if _, err := tx.ExecContext(ctx, m.SQL, m.Args...); err != nil {
			return 0, fmt.Errorf("materialize %s mutation %d (%s): %w", ev.Kind(), i, m.Table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	slog.Debug("event committed",
		"component", "store",
		"action", "event_committed",
		"store_id", in.id,
		"event", ev.Kind(),
		"sequence", seq,
	)

	tables := materialize.Tables(muts)
	for _, hook := range in.hooks {
		hook(tables)
	}

	return seq, nil
}

// Events returns committed envelopes with sequence > afterSeq, up to limit.
// A limit <= 0 means no limit.
func (in *Instance) Events(ctx context.Context, afterSeq int64, limit int) ([]event.Envelope, error) {
	query := `
		SELECT sequence, name, payload, recorded_at
		FROM events
		WHERE sequence > ?
		ORDER BY sequence ASC`
	args := []any{afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := in.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var envelopes []event.Envelope
	for rows.Next() {
		var e event.Envelope
		var payload, recordedAt string
		if err := rows.Scan(&e.Sequence, &e.Name, &payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			slog.Warn("events: failed to parse recorded_at",
				"store_id", in.id, "sequence", e.Sequence, "value", recordedAt, "error", err)
		}
		envelopes = append(envelopes, e)
	}
	return envelopes, rows.Err()
}

// LatestSequence returns the highest sequence in the log, 0 when empty.
func (in *Instance) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := in.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get latest sequence: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// projectionTables lists every table cleared before a replay, children first.
var projectionTables = []string{
	materialize.TableContextLabels,
	materialize.TableContexts,
	materialize.TableLabels,
	materialize.TableMembers,
	materialize.TableLibrary,
	materialize.TablePreferences,
}

// Replay rebuilds the whole projection from the event log. The projection is
// treated as a cache: it is cleared and every logged event is re-materialized
// in sequence order, all inside one transaction.
func (in *Instance) Replay(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	envelopes, err := in.Events(ctx, 0, 0)
	if err != nil {
		return err
	}

	tx, err := in.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range projectionTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, env := range envelopes {
		ev, err := env.Decode()
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		muts, err := materialize.Mutations(ev)
		if err != nil {
			return fmt.Errorf("replay sequence %d: %w", env.Sequence, err)
		}
		for _, m := range muts {
			if _, err := tx.ExecContext(ctx, m.SQL, m.Args...); err != nil {
				return fmt.Errorf("replay sequence %d (%s): %w", env.Sequence, m.Table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replay: %w", err)
	}

	slog.Info("projection rebuilt from log",
		"component", "store",
		"action", "replay_complete",
		"store_id", in.id,
		"events", len(envelopes),
	)
	return nil
}
