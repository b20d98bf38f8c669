package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/contextdeck/contextdeck/internal/api"
	"github.com/contextdeck/contextdeck/internal/backup"
	"github.com/contextdeck/contextdeck/internal/command"
	"github.com/contextdeck/contextdeck/internal/config"
	"github.com/contextdeck/contextdeck/internal/identity"
	"github.com/contextdeck/contextdeck/internal/multistore"
	"github.com/contextdeck/contextdeck/internal/query"
	"github.com/contextdeck/contextdeck/internal/reconcile"
	"github.com/contextdeck/contextdeck/internal/worker"
	"github.com/contextdeck/contextdeck/internal/workingset"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "contextdeck",
	Short: "ContextDeck - event-sourced context library service",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// 4. Session state and identity key resolution
	session, err := identity.LoadSession(expandHome(cfg.Session.Path))
	if err != nil {
		return err
	}
	userKey := session.AnonymousKey()
	if userKey == "" {
		if userKey, err = session.EnsureAnonymousKey(); err != nil {
			return err
		}
	}
	slog.Info("session loaded", "key", userKey)

	// 5. Store instances (migrations run on open)
	manager, err := multistore.NewManager(cfg.Stores.RootPath)
	if err != nil {
		return err
	}
	identityHandle, err := manager.Open(ctx, multistore.IdentityKey(userKey))
	if err != nil {
		return err
	}
	libraryHandle, err := manager.Open(ctx, multistore.LibraryKey(userKey))
	if err != nil {
		return err
	}
	slog.Info("stores opened", "root", cfg.Stores.RootPath)

	// 6. Command layer, working set, reconciliation
	commander := command.New(libraryHandle.Instance)
	identityCmd := command.NewIdentity(identityHandle.Instance)
	if _, err := commander.EnsureLibrary(ctx, "", userKey); err != nil {
		return err
	}
	debouncer := command.NewDebouncer(commander, time.Duration(cfg.Editor.DebounceInterval))
	set := workingset.NewSet()
	hub := query.NewHub(libraryHandle.Instance)
	engine := reconcile.NewEngine(libraryHandle.Instance, commander, set)
	stopWatch, err := engine.Watch(ctx, hub)
	if err != nil {
		return err
	}

	// A successful anonymous migration swaps the serving stack, so shutdown
	// must flush and stop whatever stack is current at that point.
	var serveMu sync.Mutex
	curDebouncer, curStopWatch := debouncer, stopWatch
	defer func() {
		serveMu.Lock()
		stop := curStopWatch
		serveMu.Unlock()
		stop()
	}()

	// 7. Backup uploader and migrator
	uploader, err := backup.NewUploader(cfg.BackupStorage)
	if err != nil {
		return err
	}
	migrator := identity.NewMigrator(manager, session)

	// rebind re-points the serving stack at the authenticated identity's
	// stores after the migrator has deleted the anonymous instances. The
	// working set carries over so forks survive sign-in.
	rebind := func(reqCtx context.Context, toKey string) (api.HandlerConfig, error) {
		idnHandle, err := manager.Open(reqCtx, multistore.IdentityKey(toKey))
		if err != nil {
			return api.HandlerConfig{}, err
		}
		libHandle, err := manager.Open(reqCtx, multistore.LibraryKey(toKey))
		if err != nil {
			return api.HandlerConfig{}, err
		}
		cmdr := command.New(libHandle.Instance)
		newDebouncer := command.NewDebouncer(cmdr, time.Duration(cfg.Editor.DebounceInterval))
		newEngine := reconcile.NewEngine(libHandle.Instance, cmdr, set)
		// The watch must outlive the request, so it binds to the server
		// lifetime context, not reqCtx.
		newStop, err := newEngine.Watch(ctx, query.NewHub(libHandle.Instance))
		if err != nil {
			newDebouncer.Close()
			return api.HandlerConfig{}, err
		}

		serveMu.Lock()
		oldDebouncer, oldStop := curDebouncer, curStopWatch
		curDebouncer, curStopWatch = newDebouncer, newStop
		serveMu.Unlock()
		oldStop()
		if err := oldDebouncer.Close(); err != nil {
			slog.Warn("previous debouncer close error", "error", err)
		}

		return api.HandlerConfig{
			Library:   libHandle.Instance,
			Commander: cmdr,
			Identity:  command.NewIdentity(idnHandle.Instance),
			Debouncer: newDebouncer,
			Engine:    newEngine,
			UserID:    toKey,
		}, nil
	}

	// 8. HTTP router
	handler := api.NewHandler(api.HandlerConfig{
		Library:   libraryHandle.Instance,
		Commander: commander,
		Identity:  identityCmd,
		Debouncer: debouncer,
		Set:       set,
		Engine:    engine,
		Migrator:  migrator,
		Uploader:  uploader,
		Rebind:    rebind,
		APIKey:    cfg.Auth.APIKey,
		Version:   Version,
		UserID:    userKey,
	})
	router := api.NewRouter(handler)

	// 9. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 10. Background workers
	var wg sync.WaitGroup
	backupWorker := worker.NewBackupCoordinator(manager,
		time.Duration(cfg.Worker.BackupInterval), uploader)
	startWorker(ctx, &wg, "backup-coordinator", backupWorker.Run)

	// 11. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Anything else is a real failure.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 12. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 13. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 13a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 13b. Flush pending debounced edits before closing stores
	serveMu.Lock()
	closingDebouncer := curDebouncer
	serveMu.Unlock()
	if err := closingDebouncer.Close(); err != nil {
		slog.Error("debouncer close error", "error", err)
	}

	// 13c. Wait for workers to complete
	wg.Wait()

	// 13d. Close all store instances
	if err := manager.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn(ctx)
	}()
}
