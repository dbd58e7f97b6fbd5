package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mschirtzinger/inkshelf/internal/config"
	"github.com/mschirtzinger/inkshelf/internal/logging"
	"github.com/mschirtzinger/inkshelf/internal/shelf/db"
	"github.com/mschirtzinger/inkshelf/internal/shelf/pagemap"
	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/remote/fakeremote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/remote/notion"
	shelfsync "github.com/mschirtzinger/inkshelf/internal/shelf/sync"
)

// workspace bundles everything a command needs from the .inkshelf directory.
type workspace struct {
	cfg   *config.Config
	logs  *logging.Sink
	db    *db.DB
	pages *pagemap.Map
}

// resolveShelfDir returns --dir or the nearest .inkshelf directory.
func resolveShelfDir() (string, error) {
	if shelfDirFlag != "" {
		return shelfDirFlag, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return config.FindShelfDir(cwd)
}

// openWorkspace loads config, opens the log sink, the database and the page
// map. Callers must call close.
func openWorkspace(ctx context.Context) (*workspace, error) {
	dir, err := resolveShelfDir()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	logs, err := logging.Open(logging.Options{
		File:       cfg.LogPath(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Quiet:      quietFlag,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	database, err := db.OpenContext(ctx, cfg.DBPath())
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var backend pagemap.Backend = database.PageMapBackend()
	if cfg.PageMap.Backend == config.PageMapFile {
		backend = pagemap.FileBackend{Path: cfg.PageMapPath()}
	}
	pages, err := pagemap.Open(ctx, backend)
	if err != nil {
		database.Close()
		logs.Close()
		return nil, fmt.Errorf("failed to load page map: %w", err)
	}

	return &workspace{cfg: cfg, logs: logs, db: database, pages: pages}, nil
}

func (w *workspace) close() {
	if err := w.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
	_ = w.logs.Close()
}

func (w *workspace) logger(component string) *log.Logger {
	return w.logs.Logger(component)
}

// remoteClient connects to the configured remote.
func (w *workspace) remoteClient() (remote.Client, error) {
	if err := w.cfg.RemoteReady(); err != nil {
		return nil, err
	}
	return notion.New(notion.Config{Token: w.cfg.Remote.Token, Timeout: w.cfg.Remote.Timeout})
}

// syncer builds a Syncer against the configured remote. With dryRun set, the
// pass runs against an empty in-memory remote and a throwaway page map, so it
// reports what a first push would write without touching anything remote.
func (w *workspace) syncer(ctx context.Context, dryRun bool, observer shelfsync.Observer) (shelfsync.Syncer, error) {
	cfg := shelfsync.Config{
		Store:      w.db,
		PageMap:    w.pages,
		RootPageID: w.cfg.Remote.RootPageID,
		BatchWidth: w.cfg.Sync.BatchWidth,
		BatchDelay: w.cfg.Sync.BatchDelay,
		Logger:     w.logger("sync"),
		Observer:   observer,
	}

	if dryRun {
		fake := fakeremote.New()
		cfg.Client = fake
		cfg.RootPageID = fake.AddRoot("dry run")
		pages, err := pagemap.Open(ctx, &pagemap.MemoryBackend{})
		if err != nil {
			return nil, err
		}
		cfg.PageMap = pages
		return shelfsync.New(cfg), nil
	}

	client, err := w.remoteClient()
	if err != nil {
		return nil, err
	}
	cfg.Client = client
	return shelfsync.New(cfg), nil
}

// fatal prints an error in the CLI's format and exits.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
