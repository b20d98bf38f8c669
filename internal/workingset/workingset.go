// Package workingset holds the user's working copies of library contexts.
// Unlike the two durable store instances, the working set is not
// event-sourced: it is a plain observable container of ephemeral forks,
// created per session and injectable so tests can run isolated instances.
package workingset

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/contextdeck/contextdeck/internal/materialize"
	"github.com/contextdeck/contextdeck/internal/store"
	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when a fork id is not in the set.
var ErrNotFound = errors.New("working set item not found")

// SelectedContext is a working copy. A zero OriginalContextID means the item
// is unlinked (pasted directly, never tied to a library context). Its own
// Version rotates on every local edit; OriginalVersion records the library
// version it was forked at, which is what pristine-ness is judged against.
type SelectedContext struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	TokenCount        int       `json:"token_count"`
	Version           string    `json:"version"`
	OriginalContextID string    `json:"original_context_id,omitempty"`
	OriginalVersion   string    `json:"original_version,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Labels            []string  `json:"labels"`
	Diverged          bool      `json:"diverged,omitempty"`
}

// Pristine reports whether the fork has never been edited locally: its own
// version still equals the version it was forked at. Content is never diffed;
// any edit rotates Version, so this check is deterministic and cheap.
func (s *SelectedContext) Pristine() bool {
	return s.OriginalContextID != "" && s.Version == s.OriginalVersion
}

// Linked reports whether the fork is tied to a library context.
func (s *SelectedContext) Linked() bool { return s.OriginalContextID != "" }

// Notice reasons.
const (
	NoticeForked     = "forked"
	NoticeAdded      = "added"
	NoticeEdited     = "edited"
	NoticeRemoved    = "removed"
	NoticeReordered  = "reordered"
	NoticeReconciled = "reconciled"
	NoticeSynced     = "synced"
)

// Removal describes one item removed from the set, with the reason shown to
// the user (removals are never silent).
type Removal struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Notice is a batched change notification. A reconciliation pass emits
// exactly one Notice regardless of how many items it touched.
type Notice struct {
	Reason   string    `json:"reason"`
	IDs      []string  `json:"ids,omitempty"`
	Removals []Removal `json:"removals,omitempty"`
	Diverged []string  `json:"diverged,omitempty"`
}

// Set is the observable working-set container.
type Set struct {
	mu        sync.Mutex
	items     map[string]*SelectedContext
	order     []string
	observers map[int]func(Notice)
	nextObs   int
	now       func() time.Time
}

// NewSet creates an empty working set.
func NewSet() *Set {
	return &Set{
		items:     make(map[string]*SelectedContext),
		observers: make(map[int]func(Notice)),
		now:       time.Now,
	}
}

// WithClock overrides the set's clock for tests.
func (s *Set) WithClock(now func() time.Time) *Set {
	s.now = now
	return s
}

// Subscribe registers an observer and returns a cancel function.
// Observers receive batched notices after every mutation.
func (s *Set) Subscribe(fn func(Notice)) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// notify must be called without the lock held.
func (s *Set) notify(n Notice) {
	s.mu.Lock()
	observers := make([]func(Notice), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(n)
	}
}

// List returns a snapshot of all items in working-set order.
func (s *Set) List() []SelectedContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SelectedContext, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	return out
}

// Get returns a copy of one item.
func (s *Set) Get(id string) (SelectedContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return SelectedContext{}, false
	}
	return *item, true
}

// Fork creates a working copy of a library context. The copy gets its own id;
// OriginalVersion pins the library version it was taken from.
func (s *Set) Fork(c store.Context) SelectedContext {
	now := s.now().UTC()
	item := &SelectedContext{
		ID:                ulid.Make().String(),
		Title:             c.Title,
		Content:           c.Content,
		TokenCount:        c.TokenCount,
		Version:           c.Version,
		OriginalContextID: c.ID,
		OriginalVersion:   c.Version,
		CreatedAt:         now,
		UpdatedAt:         now,
		Labels:            append([]string{}, c.Labels...),
	}

	s.mu.Lock()
	s.items[item.ID] = item
	s.order = append(s.order, item.ID)
	copied := *item
	s.mu.Unlock()

	s.notify(Notice{Reason: NoticeForked, IDs: []string{item.ID}})
	return copied
}

// AddUnlinked adds a working copy with no library origin.
func (s *Set) AddUnlinked(title, content string) SelectedContext {
	now := s.now().UTC()
	item := &SelectedContext{
		ID:         ulid.Make().String(),
		Title:      title,
		Content:    content,
		TokenCount: materialize.EstimateTokens(content),
		Version:    ulid.Make().String(),
		CreatedAt:  now,
		UpdatedAt:  now,
		Labels:     []string{},
	}

	s.mu.Lock()
	s.items[item.ID] = item
	s.order = append(s.order, item.ID)
	copied := *item
	s.mu.Unlock()

	s.notify(Notice{Reason: NoticeAdded, IDs: []string{item.ID}})
	return copied
}

// Update edits an item locally, rotating its version so the fork is no longer
// pristine relative to its origin.
func (s *Set) Update(id, title, content string) (SelectedContext, error) {
	s.mu.Lock()
	item, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return SelectedContext{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	item.Title = title
	item.Content = content
	item.TokenCount = materialize.EstimateTokens(content)
	item.Version = ulid.Make().String()
	item.UpdatedAt = s.now().UTC()
	copied := *item
	s.mu.Unlock()

	s.notify(Notice{Reason: NoticeEdited, IDs: []string{id}})
	return copied, nil
}

// Remove deletes items from the set with an explanatory reason.
func (s *Set) Remove(ids []string, reason string) {
	if len(ids) == 0 {
		return
	}

	s.mu.Lock()
	removals := s.removeLocked(ids, reason)
	s.mu.Unlock()

	if len(removals) > 0 {
		s.notify(Notice{Reason: NoticeRemoved, Removals: removals})
	}
}

// removeLocked removes items and returns the removals actually performed.
func (s *Set) removeLocked(ids []string, reason string) []Removal {
	var removals []Removal
	for _, id := range ids {
		if _, ok := s.items[id]; !ok {
			continue
		}
		delete(s.items, id)
		removals = append(removals, Removal{ID: id, Reason: reason})
	}
	if len(removals) > 0 {
		kept := s.order[:0]
		for _, id := range s.order {
			if _, ok := s.items[id]; ok {
				kept = append(kept, id)
			}
		}
		s.order = kept
	}
	return removals
}

// Reorder replaces the working-set order. The ids must be a permutation of
// the current set.
func (s *Set) Reorder(ids []string) error {
	s.mu.Lock()
	if len(ids) != len(s.order) {
		s.mu.Unlock()
		return fmt.Errorf("reorder: got %d ids, set has %d", len(ids), len(s.order))
	}
	for _, id := range ids {
		if _, ok := s.items[id]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("reorder: %w: %s", ErrNotFound, id)
		}
	}
	s.order = append([]string{}, ids...)
	s.mu.Unlock()

	s.notify(Notice{Reason: NoticeReordered, IDs: ids})
	return nil
}

// Heal overwrites a fork from its library origin during reconciliation.
type Heal struct {
	ForkID string
	From   store.Context
}

// ApplyReconciliation applies one reconciliation pass's heals, removals, and
// divergence flags, then emits a single batched notice.
func (s *Set) ApplyReconciliation(heals []Heal, removals []Removal, diverged []string) Notice {
	s.mu.Lock()

	var healed []string
	for _, h := range heals {
		item, ok := s.items[h.ForkID]
		if !ok {
			continue
		}
		item.Title = h.From.Title
		item.Content = h.From.Content
		item.TokenCount = h.From.TokenCount
		item.Labels = append([]string{}, h.From.Labels...)
		item.Version = h.From.Version
		item.OriginalVersion = h.From.Version
		item.UpdatedAt = s.now().UTC()
		item.Diverged = false
		healed = append(healed, h.ForkID)
	}

	removeIDs := make([]string, len(removals))
	reasonByID := make(map[string]string, len(removals))
	for i, r := range removals {
		removeIDs[i] = r.ID
		reasonByID[r.ID] = r.Reason
	}
	performed := s.removeLocked(removeIDs, "")
	for i := range performed {
		performed[i].Reason = reasonByID[performed[i].ID]
	}

	var flagged []string
	for _, id := range diverged {
		if item, ok := s.items[id]; ok && !item.Diverged {
			item.Diverged = true
			flagged = append(flagged, id)
		}
	}

	s.mu.Unlock()

	notice := Notice{
		Reason:   NoticeReconciled,
		IDs:      healed,
		Removals: performed,
		Diverged: flagged,
	}
	if len(healed) > 0 || len(performed) > 0 || len(flagged) > 0 {
		s.notify(notice)
	}
	return notice
}

// SyncOrigin re-pins a fork to a library version after an explicit push or
// revert, clearing any divergence flag.
func (s *Set) SyncOrigin(forkID string, from store.Context) error {
	s.mu.Lock()
	item, ok := s.items[forkID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, forkID)
	}
	item.Title = from.Title
	item.Content = from.Content
	item.TokenCount = from.TokenCount
	item.Labels = append([]string{}, from.Labels...)
	item.OriginalContextID = from.ID
	item.Version = from.Version
	item.OriginalVersion = from.Version
	item.UpdatedAt = s.now().UTC()
	item.Diverged = false
	s.mu.Unlock()

	s.notify(Notice{Reason: NoticeSynced, IDs: []string{forkID}})
	return nil
}
