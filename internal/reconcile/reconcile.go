// Package reconcile keeps working-set forks consistent with the library they
// were taken from. A pass walks every linked fork and applies exactly one of
// three outcomes per fork: heal a pristine copy from its updated origin, flag
// an edited copy as diverged, or remove a copy whose origin was deleted.
// All outcomes of one pass land on the working set as a single batched notice.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/contextdeck/contextdeck/internal/command"
	"github.com/contextdeck/contextdeck/internal/query"
	"github.com/contextdeck/contextdeck/internal/store"
	"github.com/contextdeck/contextdeck/internal/workingset"
)

// RemovalSourceDeleted is the user-facing reason attached when a fork's
// origin context no longer exists in the library.
const RemovalSourceDeleted = "source deleted"

// Result summarizes one reconciliation pass.
type Result struct {
	Healed   []string             `json:"healed,omitempty"`
	Removed  []workingset.Removal `json:"removed,omitempty"`
	Diverged []string             `json:"diverged,omitempty"`
}

// Engine runs reconciliation passes between one library instance and one
// working set.
type Engine struct {
	lib *store.Instance
	cmd *command.Commander
	set *workingset.Set
}

// NewEngine wires an engine to its library and working set.
func NewEngine(lib *store.Instance, cmd *command.Commander, set *workingset.Set) *Engine {
	return &Engine{lib: lib, cmd: cmd, set: set}
}

// Pass reconciles every linked fork against the current library state.
// Unlinked items are never touched. The pass converges: running it twice in a
// row with no interleaved library change yields an empty second result.
func (e *Engine) Pass(ctx context.Context) (Result, error) {
	var (
		heals    []workingset.Heal
		removals []workingset.Removal
		diverged []string
	)

	for _, item := range e.set.List() {
		if !item.Linked() {
			continue
		}

		origin, err := e.lib.ContextByID(ctx, item.OriginalContextID)
		if errors.Is(err, store.ErrNotFound) {
			removals = append(removals, workingset.Removal{
				ID:     item.ID,
				Reason: RemovalSourceDeleted,
			})
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("load origin %s: %w", item.OriginalContextID, err)
		}

		if origin.Version == item.OriginalVersion {
			continue
		}
		if item.Pristine() {
			heals = append(heals, workingset.Heal{ForkID: item.ID, From: *origin})
			continue
		}
		diverged = append(diverged, item.ID)
	}

	notice := e.set.ApplyReconciliation(heals, removals, diverged)
	result := Result{
		Healed:   notice.IDs,
		Removed:  notice.Removals,
		Diverged: notice.Diverged,
	}

	if len(result.Healed) > 0 || len(result.Removed) > 0 || len(result.Diverged) > 0 {
		slog.Info("reconciliation pass applied",
			"component", "reconcile",
			"action", "pass",
			"healed", len(result.Healed),
			"removed", len(result.Removed),
			"diverged", len(result.Diverged),
		)
	}
	return result, nil
}

// Push writes a fork's local state back to the library, resolving a
// divergence in the fork's favor. An unlinked fork becomes a new library
// context owned by creatorID and is linked to it.
func (e *Engine) Push(ctx context.Context, forkID, creatorID string) (*store.Context, error) {
	item, ok := e.set.Get(forkID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", workingset.ErrNotFound, forkID)
	}

	var (
		updated *store.Context
		err     error
	)
	if item.Linked() {
		updated, err = e.cmd.UpdateContext(ctx, item.OriginalContextID, item.Title, item.Content)
	} else {
		updated, err = e.cmd.CreateContext(ctx, item.Title, item.Content, creatorID)
	}
	if err != nil {
		return nil, fmt.Errorf("push fork %s: %w", forkID, err)
	}

	if err := e.set.SyncOrigin(forkID, *updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Revert discards a fork's local edits, resolving a divergence in the
// library's favor. If the origin is gone the fork is removed instead.
func (e *Engine) Revert(ctx context.Context, forkID string) error {
	item, ok := e.set.Get(forkID)
	if !ok {
		return fmt.Errorf("%w: %s", workingset.ErrNotFound, forkID)
	}
	if !item.Linked() {
		return fmt.Errorf("fork %s has no library origin to revert to", forkID)
	}

	origin, err := e.lib.ContextByID(ctx, item.OriginalContextID)
	if errors.Is(err, store.ErrNotFound) {
		e.set.Remove([]string{forkID}, RemovalSourceDeleted)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load origin %s: %w", item.OriginalContextID, err)
	}
	return e.set.SyncOrigin(forkID, *origin)
}

// Watch subscribes the engine to the library's context query so every commit
// that changes the context list triggers a pass. The hub callback runs under
// the instance commit lock and a pass only reads the library, so no commit
// can interleave between the change and the reconciliation.
func (e *Engine) Watch(ctx context.Context, hub *query.Hub) (func(), error) {
	_, cancel, err := hub.Subscribe(ctx, query.Contexts(), func(any) {
		if _, err := e.Pass(ctx); err != nil {
			slog.Error("reconciliation pass failed",
				"component", "reconcile",
				"action", "pass_failed",
				"error", err,
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("watch library contexts: %w", err)
	}

	if _, err := e.Pass(ctx); err != nil {
		cancel()
		return nil, err
	}
	return cancel, nil
}
