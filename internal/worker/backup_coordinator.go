// Package worker runs background loops behind the serve command.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/contextdeck/contextdeck/internal/backup"
	"github.com/contextdeck/contextdeck/internal/multistore"
)

// InstanceEnumerator provides access to all managed store instances.
// This interface allows testing with mock implementations.
type InstanceEnumerator interface {
	List(ctx context.Context) ([]multistore.InstanceInfo, error)
	Open(ctx context.Context, key string) (*multistore.Handle, error)
}

// BackupCoordinator periodically exports every library instance and ships
// the export off-site when an uploader is configured.
type BackupCoordinator struct {
	manager  InstanceEnumerator
	uploader backup.Uploader
	interval time.Duration
}

// NewBackupCoordinator creates a coordinator over the given instance manager.
// The uploader parameter is optional; if nil, no S3 upload is attempted.
func NewBackupCoordinator(
	manager InstanceEnumerator,
	interval time.Duration,
	uploader backup.Uploader,
) *BackupCoordinator {
	return &BackupCoordinator{
		manager:  manager,
		uploader: uploader,
		interval: interval,
	}
}

// Run starts the coordinator loop. It backs up once immediately, then on
// every tick until the context is cancelled.
func (c *BackupCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", "worker_started",
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.backupAll(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "backup-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.backupAll(ctx)
		}
	}
}

// backupAll iterates through all library instances and backs each one up.
// Identity instances hold only preferences and are skipped.
func (c *BackupCoordinator) backupAll(ctx context.Context) {
	instances, err := c.manager.List(ctx)
	if err != nil {
		slog.Error("failed to list instances for backup",
			"component", "worker",
			"worker", "backup-coordinator",
			"action", "list_instances_failed",
			"error", err,
		)
		return
	}

	var succeeded, failed int
	for _, info := range instances {
		if ctx.Err() != nil {
			return // Graceful shutdown, don't log summary
		}
		if !strings.HasSuffix(info.Key, "/library") && info.Key != multistore.LocalKey {
			continue
		}
		if c.backupInstance(ctx, info.Key) {
			succeeded++
		} else {
			failed++
		}
	}

	if succeeded+failed > 0 {
		slog.Info("backup cycle complete",
			"component", "worker",
			"worker", "backup-coordinator",
			"action", "cycle_complete",
			"succeeded", succeeded,
			"failed", failed,
		)
	}
}

// backupInstance exports one instance and uploads the document.
func (c *BackupCoordinator) backupInstance(ctx context.Context, key string) bool {
	handle, err := c.manager.Open(ctx, key)
	if err != nil {
		c.logFailure(key, "open_instance_failed", err)
		return false
	}

	doc, err := backup.Export(ctx, handle.Instance)
	if err != nil {
		c.logFailure(key, "export_failed", err)
		return false
	}

	if c.uploader == nil {
		return true
	}
	data, err := json.Marshal(doc)
	if err != nil {
		c.logFailure(key, "encode_failed", err)
		return false
	}
	if err := c.uploader.Upload(ctx, key, data); err != nil {
		c.logFailure(key, "upload_failed", err)
		return false
	}
	return true
}

func (c *BackupCoordinator) logFailure(key, action string, err error) {
	slog.Error("instance backup failed",
		"component", "worker",
		"worker", "backup-coordinator",
		"action", action,
		"key", key,
		"error", err,
	)
}
