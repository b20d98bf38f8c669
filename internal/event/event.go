// Package event defines the closed set of schema-validated facts a store
// instance can commit. Events are immutable once appended; the materializer
// switches exhaustively over the concrete types defined here, so adding an
// event type is a compile-time obligation for every consumer.
package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Versioned event name tags. The version suffix allows a future payload
// change to coexist with old log entries during replay.
const (
	NameContextCreated        = "context.created.v1"
	NameContextUpdated        = "context.updated.v1"
	NameContextsDeleted       = "contexts.deleted.v1"
	NameLabelCreated          = "label.created.v1"
	NameLabelUpdated          = "label.updated.v1"
	NameLabelDeleted          = "label.deleted.v1"
	NameContextLabelsUpdated  = "context.labels_updated.v1"
	NameLibraryCreated        = "library.created.v1"
	NamePreferenceUpdated     = "preference.updated.v1"
	NameContextLibraryCreated = "context_library.created.v1"
)

// Theme values accepted by PreferenceUpdated.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// DefaultTheme is the theme assumed when no preference row exists.
const DefaultTheme = ThemeLight

// Event is a typed fact that can be committed to a store instance's log.
// Payloads validate themselves before any mutation is applied.
type Event interface {
	Kind() string
	Validate() error
}

// Envelope is a committed event as read back from the log.
type Envelope struct {
	Sequence   int64           `json:"sequence"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Decode reconstructs the typed event from an envelope during replay.
// The payload is trusted: it was validated when originally committed.
func (e *Envelope) Decode() (Event, error) {
	var ev Event
	switch e.Name {
	case NameContextCreated:
		ev = &ContextCreated{}
	case NameContextUpdated:
		ev = &ContextUpdated{}
	case NameContextsDeleted:
		ev = &ContextsDeleted{}
	case NameLabelCreated:
		ev = &LabelCreated{}
	case NameLabelUpdated:
		ev = &LabelUpdated{}
	case NameLabelDeleted:
		ev = &LabelDeleted{}
	case NameContextLabelsUpdated:
		ev = &ContextLabelsUpdated{}
	case NameLibraryCreated:
		ev = &LibraryCreated{}
	case NamePreferenceUpdated:
		ev = &PreferenceUpdated{}
	case NameContextLibraryCreated:
		ev = &ContextLibraryCreated{}
	default:
		return nil, fmt.Errorf("unknown event name %q at sequence %d", e.Name, e.Sequence)
	}

	if err := json.Unmarshal(e.Payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s payload at sequence %d: %w", e.Name, e.Sequence, err)
	}
	return ev, nil
}

// Millis converts a time to the epoch-millisecond representation events carry.
func Millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis converts an epoch-millisecond payload timestamp back to a time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
