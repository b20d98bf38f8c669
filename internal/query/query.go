// Package query provides the reactive read layer over a store instance's
// projection. Subscribers attach a declarative query; every commit that
// touches one of the query's tables re-evaluates it synchronously, before the
// next event for that instance is processed, and notifies the subscriber only
// when the result actually changed.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/contextdeck/contextdeck/internal/materialize"
	"github.com/contextdeck/contextdeck/internal/store"
)

// Query is a read-only, side-effect-free projection expression.
// Eval must be restartable: subscribing twice with the same query is valid.
type Query struct {
	// Name identifies the query in log output.
	Name string
	// Tables lists the projection tables the query reads. A commit touching
	// any of them triggers re-evaluation.
	Tables []string
	// Eval computes the current result.
	Eval func(ctx context.Context, in *store.Instance) (any, error)
}

type subscription struct {
	q    Query
	fn   func(result any)
	last []byte
}

// Hub fans store commits out to query subscriptions for one instance.
type Hub struct {
	in *store.Instance

	mu   sync.Mutex
	subs map[int]*subscription
	next int
}

// NewHub creates a hub bound to the instance's commit notifications.
func NewHub(in *store.Instance) *Hub {
	h := &Hub{in: in, subs: make(map[int]*subscription)}
	in.AfterCommit(h.onCommit)
	return h
}

// Subscribe evaluates the query once, registers it for change notification,
// and returns the current result plus a cancel function. The callback runs on
// the committing goroutine and must not commit back into the same instance.
func (h *Hub) Subscribe(ctx context.Context, q Query, fn func(result any)) (any, func(), error) {
	result, err := q.Eval(ctx, h.in)
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate query %s: %w", q.Name, err)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, nil, fmt.Errorf("encode query %s result: %w", q.Name, err)
	}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = &subscription{q: q, fn: fn, last: encoded}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return result, cancel, nil
}

// onCommit re-evaluates every subscription whose tables overlap the commit.
// Runs under the instance commit lock, so no event can slip between the
// commit and the re-evaluation.
func (h *Hub) onCommit(tables []string) {
	touched := make(map[string]bool, len(tables))
	for _, t := range tables {
		touched[t] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		affected := false
		for _, t := range sub.q.Tables {
			if touched[t] {
				affected = true
				break
			}
		}
		if !affected {
			continue
		}

		result, err := sub.q.Eval(context.Background(), h.in)
		if err != nil {
			slog.Error("query re-evaluation failed",
				"component", "query",
				"action", "eval_failed",
				"query", sub.q.Name,
				"error", err,
			)
			continue
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			slog.Error("query result encoding failed",
				"component", "query",
				"query", sub.q.Name,
				"error", err,
			)
			continue
		}
		if string(encoded) == string(sub.last) {
			continue
		}
		sub.last = encoded
		sub.fn(result)
	}
}

// Contexts is the standard subscription over the full context list.
func Contexts() Query {
	return Query{
		Name:   "contexts",
		Tables: []string{materialize.TableContexts, materialize.TableContextLabels},
		Eval: func(ctx context.Context, in *store.Instance) (any, error) {
			return in.Contexts(ctx)
		},
	}
}

// Labels is the standard subscription over the label list.
func Labels() Query {
	return Query{
		Name:   "labels",
		Tables: []string{materialize.TableLabels},
		Eval: func(ctx context.Context, in *store.Instance) (any, error) {
			return in.Labels(ctx)
		},
	}
}

// Theme is the standard subscription over the identity theme preference.
func Theme(defaultTheme string) Query {
	return Query{
		Name:   "theme",
		Tables: []string{materialize.TablePreferences},
		Eval: func(ctx context.Context, in *store.Instance) (any, error) {
			return in.Theme(ctx, defaultTheme)
		},
	}
}
