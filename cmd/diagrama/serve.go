package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rendis/diagrama/internal/logging"
	"github.com/rendis/diagrama/internal/scheduler"
	"github.com/rendis/diagrama/internal/script"
	"github.com/rendis/diagrama/internal/session"
	"github.com/rendis/diagrama/internal/store"
	"github.com/rendis/diagrama/internal/streaming"
	"github.com/rendis/diagrama/internal/validation"
	"github.com/rendis/diagrama/pkg/mcp"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	file := fs.String("file", "", "diagram file to open at startup")
	libraryID := fs.String("library-id", "", "library document to open at startup")
	noLibrary := fs.Bool("no-library", false, "run without the document library (disables autosave)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig()
	// stdout carries the MCP protocol, so logs go to stderr.
	logger := logging.New(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var library store.DocumentStore
	if !*noLibrary && cfg.LibraryPath != "" {
		lib, err := openLibrary(ctx, cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer lib.Close()
		library = lib
	}

	hub := streaming.NewMemoryHub()
	opts := []session.Option{
		session.WithConfig(cfg.sessionConfig()),
		session.WithLogger(logger),
		session.WithHub(hub),
	}
	if library != nil {
		opts = append(opts, session.WithLibrary(library))
	}
	if v, err := validation.NewDocumentValidator(); err == nil {
		opts = append(opts, session.WithValidator(v))
	} else {
		logger.Warn("document validation disabled", "error", err)
	}
	if cfg.SystemClipboard {
		if session.SystemClipboardAvailable() {
			opts = append(opts, session.WithClipboard(session.SystemClipboard{}))
		} else {
			logger.Warn("system clipboard unavailable on this platform")
		}
	}

	ds, err := session.New(opts...)
	if err != nil {
		fatalf("create session: %v", err)
	}
	switch {
	case *file != "":
		if err := ds.Open(ctx, *file); err != nil {
			fatalf("open %s: %v", *file, err)
		}
	case *libraryID != "":
		if err := ds.OpenFromLibrary(ctx, *libraryID); err != nil {
			fatalf("open library document %s: %v", *libraryID, err)
		}
	}
	locked := session.NewLocked(ds)

	var sched *scheduler.Scheduler
	if library != nil && cfg.Autosave != "" {
		sched = scheduler.NewScheduler(library, logger, scheduler.WithKeepRevisions(cfg.KeepRevisions))
		if _, err := sched.Add(cfg.Autosave, locked); err != nil {
			fatalf("autosave: %v", err)
		}
		if err := sched.Start(ctx); err != nil {
			fatalf("autosave: %v", err)
		}
		if next, err := sched.NextRun(cfg.Autosave, time.Now()); err == nil {
			logger.Debug("first autosave", slog.Time("at", next))
		}
	}

	srv := mcp.NewDiagramServer(mcp.DiagramServerDeps{
		Session: locked,
		Library: library,
		Hub:     hub,
		Scripts: script.NewInterpreter(nil, logger),
		Logger:  logger,
	})

	logger.Info("diagrama serving on stdio",
		slog.String("version", version),
		slog.String("document_id", locked.DocumentID()),
		slog.Bool("library", library != nil),
	)
	serveErr := srv.Serve(ctx)

	if sched != nil {
		_ = sched.Stop()
		// Final autosave so nothing since the last tick is lost.
		sched.RunOnce(context.Background())
	}
	hub.Close()
	if n := hub.Dropped(); n > 0 {
		logger.Debug("scene events dropped for slow clients", slog.Uint64("count", n))
	}
	if serveErr != nil && ctx.Err() == nil {
		fatalf("serve: %v", serveErr)
	}
}

// openLibrary opens and migrates the libSQL document library.
func openLibrary(ctx context.Context, cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LibraryPath), 0o700); err != nil {
		return nil, fmt.Errorf("cannot create %s: %w", filepath.Dir(cfg.LibraryPath), err)
	}
	lib, err := store.NewLibSQLStore("file:" + cfg.LibraryPath)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	if err := lib.Migrate(ctx); err != nil {
		lib.Close()
		return nil, fmt.Errorf("migrate library: %w", err)
	}
	return lib, nil
}
