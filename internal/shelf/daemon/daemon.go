package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	shelfsync "github.com/mschirtzinger/inkshelf/internal/shelf/sync"
)

// Pusher runs a push pass. sync.Syncer satisfies it.
type Pusher interface {
	Push(ctx context.Context, opts shelfsync.Options) (*shelfsync.Report, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long the store must be quiet before a push.
	// Every new change restarts the wait.
	DebounceInterval time.Duration

	// PushOnStart runs one dirty-only push before watching.
	PushOnStart bool

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 2 * time.Second,
		PushOnStart:      true,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Stats describes what the daemon has done so far.
type Stats struct {
	Events     int
	Passes     int
	Failures   int
	LastPass   time.Time
	LastReport *shelfsync.Report
	LastError  error
}

// Daemon pushes dirty records after the local store goes quiet.
type Daemon struct {
	pusher  Pusher
	dbPath  string
	config  *Config
	watcher *StoreWatcher

	trigger chan struct{}

	statsMu sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon that watches the database at dbPath and pushes
// through pusher. Use Start() to begin watching.
func New(pusher Pusher, dbPath string) (*Daemon, error) {
	return NewWithConfig(pusher, dbPath, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(pusher Pusher, dbPath string, config *Config) (*Daemon, error) {
	if pusher == nil {
		return nil, fmt.Errorf("pusher cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	watcher, err := NewStoreWatcher(dbPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		pusher:  pusher,
		dbPath:  dbPath,
		config:  config,
		watcher: watcher,
		trigger: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Optionally push dirty records once
// 2. Start watching the store for writes
// 3. Push after each quiet period
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.watcher.Start(); err != nil {
		return err
	}
	d.config.Logger.Printf("Watching: %s (debounce %s)", d.dbPath, d.config.DebounceInterval)

	if d.config.PushOnStart {
		d.Trigger()
	}

	d.wg.Add(2)
	go d.watchStoreEvents()
	go d.processChanges()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon. A pass in progress is cancelled.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Stop(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// Trigger queues a push as if the store had changed.
func (d *Daemon) Trigger() {
	d.statsMu.Lock()
	d.stats.Events++
	d.statsMu.Unlock()

	select {
	case d.trigger <- struct{}{}:
	default:
		// a push is already queued
	}
}

// Stats returns a snapshot of the daemon's counters.
func (d *Daemon) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *Daemon) watchStoreEvents() {
	defer d.wg.Done()

	events := d.watcher.Events()
	errs := d.watcher.Errors()
	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			d.config.Logger.Printf("Store event: %s %s", event.Op, event.Path)
			d.Trigger()

		case err, ok := <-errs:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processChanges waits for the store to go quiet and then pushes. Passes run
// on this goroutine, so at most one is in flight; changes that arrive during a
// pass queue exactly one follow-up.
func (d *Daemon) processChanges() {
	defer d.wg.Done()

	timer := time.NewTimer(d.config.DebounceInterval)
	timer.Stop()
	defer timer.Stop()

	pending := false
	for {
		select {
		case <-d.ctx.Done():
			return

		case <-d.trigger:
			pending = true
			timer.Reset(d.config.DebounceInterval)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			d.runPass()
		}
	}
}

func (d *Daemon) runPass() {
	d.config.Logger.Println("Pushing dirty records")

	report, err := d.pusher.Push(d.ctx, shelfsync.Options{})

	d.statsMu.Lock()
	d.stats.Passes++
	d.stats.LastPass = time.Now()
	d.stats.LastReport = report
	d.stats.LastError = err
	if err != nil {
		d.stats.Failures++
	}
	d.statsMu.Unlock()

	if err != nil {
		d.config.Logger.Printf("WARNING: Push failed: %v", err)
		return
	}
	if report != nil {
		if failed := report.Total().Failed; failed > 0 {
			d.config.Logger.Printf("Push finished with %d failures, they stay dirty for the next pass", failed)
		}
	}
}
