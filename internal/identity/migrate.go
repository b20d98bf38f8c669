package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/contextdeck/contextdeck/internal/command"
	"github.com/contextdeck/contextdeck/internal/event"
	"github.com/contextdeck/contextdeck/internal/multistore"
)

// Report summarizes a completed migration run.
type Report struct {
	Skipped   bool   `json:"skipped"`
	FromKey   string `json:"from_key,omitempty"`
	ToKey     string `json:"to_key,omitempty"`
	LibraryID string `json:"library_id,omitempty"`
	Contexts  int    `json:"contexts"`
	Labels    int    `json:"labels"`
}

// Migrator copies an anonymous identity's data into an authenticated one.
type Migrator struct {
	manager *multistore.Manager
	session *Session
}

// NewMigrator wires a migrator to the instance manager and session state.
func NewMigrator(manager *multistore.Manager, session *Session) *Migrator {
	return &Migrator{manager: manager, session: session}
}

// Run migrates the session's anonymous data into the stores addressed by
// userKey. It re-emits the anonymous library's state as fresh events in the
// authenticated stores, preserving context ids, versions, and timestamps, so
// forks taken before sign-in stay linked and pristine afterwards.
//
// On success the anonymous key is retired before the anonymous instances are
// deleted; once the key is gone the migration can never run again, even if
// instance deletion is interrupted. On failure the key and the anonymous
// instances are left intact so the user loses nothing.
func (m *Migrator) Run(ctx context.Context, userKey string) (*Report, error) {
	anonKey := m.session.AnonymousKey()
	if anonKey == "" {
		return &Report{Skipped: true, ToKey: userKey}, nil
	}
	if err := multistore.ValidateKey(userKey); err != nil {
		return nil, fmt.Errorf("migrate to %q: %w", userKey, err)
	}

	report := &Report{FromKey: anonKey, ToKey: userKey}

	anonIdentity, err := m.manager.Open(ctx, multistore.IdentityKey(anonKey))
	if err != nil {
		return nil, fmt.Errorf("open anonymous identity store: %w", err)
	}
	anonLib, err := m.manager.Open(ctx, multistore.LibraryKey(anonKey))
	if err != nil {
		return nil, fmt.Errorf("open anonymous library store: %w", err)
	}
	authIdentity, err := m.manager.Open(ctx, multistore.IdentityKey(userKey))
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}
	authLib, err := m.manager.Open(ctx, multistore.LibraryKey(userKey))
	if err != nil {
		return nil, fmt.Errorf("open library store: %w", err)
	}

	cmd := command.New(authLib.Instance)

	lib, err := cmd.EnsureLibrary(ctx, "", userKey)
	if err != nil {
		return nil, fmt.Errorf("ensure library: %w", err)
	}
	report.LibraryID = lib.ID

	labels, err := anonLib.Instance.Labels(ctx)
	if err != nil {
		return nil, fmt.Errorf("read anonymous labels: %w", err)
	}
	for _, l := range labels {
		if err := cmd.RestoreLabel(ctx, l); err != nil {
			return nil, fmt.Errorf("migrate label %s: %w", l.ID, err)
		}
		report.Labels++
	}

	contexts, err := anonLib.Instance.Contexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read anonymous contexts: %w", err)
	}
	for _, c := range contexts {
		if err := cmd.RestoreContext(ctx, c); err != nil {
			return nil, fmt.Errorf("migrate context %s: %w", c.ID, err)
		}
		if len(c.Labels) > 0 {
			// Raw label event, not SetContextLabels: attaching labels during
			// migration must not rotate the preserved context version.
			_, err := authLib.Instance.Commit(ctx, &event.ContextLabelsUpdated{
				ContextID: c.ID,
				LabelIDs:  c.Labels,
			})
			if err != nil {
				return nil, fmt.Errorf("migrate labels for context %s: %w", c.ID, err)
			}
		}
		report.Contexts++
	}

	theme, err := anonIdentity.Instance.Theme(ctx, event.DefaultTheme)
	if err != nil {
		return nil, fmt.Errorf("read anonymous theme: %w", err)
	}
	if theme != event.DefaultTheme {
		if err := command.NewIdentity(authIdentity.Instance).SetTheme(ctx, theme); err != nil {
			return nil, fmt.Errorf("migrate theme: %w", err)
		}
	}
	if err := command.NewIdentity(authIdentity.Instance).AttachLibrary(ctx, lib.ID); err != nil {
		return nil, fmt.Errorf("attach library: %w", err)
	}

	if err := m.session.RetireAnonymousKey(); err != nil {
		return nil, fmt.Errorf("retire anonymous key: %w", err)
	}

	// Cleanup is best effort. The key is already retired, so a failure here
	// leaves orphaned files but cannot cause a second migration.
	for _, key := range []string{multistore.IdentityKey(anonKey), multistore.LibraryKey(anonKey)} {
		if err := m.manager.Delete(ctx, key); err != nil {
			slog.Warn("failed to delete migrated anonymous instance",
				"component", "identity",
				"action", "cleanup_failed",
				"key", key,
				"error", err,
			)
		}
	}

	slog.Info("anonymous identity migrated",
		"component", "identity",
		"action", "migrated",
		"from", anonKey,
		"to", userKey,
		"contexts", report.Contexts,
		"labels", report.Labels,
	)
	return report, nil
}
