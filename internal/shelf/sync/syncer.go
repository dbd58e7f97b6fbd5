package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/inkshelf/internal/shelf/pagemap"
	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
)

// Syncer mirrors the local object graph onto the remote workspace.
//
// Both directions are resilient: a failure on one entity is logged, counted
// in the Report and skipped, and the pass continues with its siblings. Only
// prerequisite failures (no remote root, rejected credential, unreadable
// local store) are returned as errors.
type Syncer interface {
	// Push writes local records to the remote.
	//
	// Only dirty records are written unless opts.All is set. Records
	// written successfully are marked clean in the local store.
	//
	// Example:
	//   report, err := syncer.Push(ctx, sync.Options{})
	Push(ctx context.Context, opts Options) (*Report, error)

	// Pull reads the remote tree and writes every record it finds to the
	// local store, clean.
	//
	// Example:
	//   report, err := syncer.Pull(ctx)
	Pull(ctx context.Context) (*Report, error)
}

// Options controls record selection for Push.
type Options struct {
	// All pushes every record, dirty or not.
	All bool

	// Since also selects records updated after this time.
	Since time.Time

	// DryRun leaves local records dirty after the pass.
	DryRun bool
}

// Config holds the collaborators of a Syncer.
type Config struct {
	Client  remote.Client
	Store   Store
	PageMap *pagemap.Map

	// RootPageID is the remote page every work page is created under.
	RootPageID string

	BatchWidth int
	BatchDelay time.Duration

	// Logger defaults to stderr with a "[sync] " prefix.
	Logger *log.Logger

	// Observer receives progress events. Optional.
	Observer Observer

	// Now defaults to time.Now.
	Now func() time.Time
}

// syncer implements the Syncer interface.
type syncer struct {
	client   remote.Client
	store    Store
	pages    *pagemap.Map
	rootID   string
	width    int
	delay    time.Duration
	upserter *Upserter
	logger   *log.Logger
	observer Observer
	now      func() time.Time

	// passMu serializes passes.
	passMu sync.Mutex
}

// New creates a new Syncer instance.
//
// If cfg.Logger is nil, a default logger writing to stderr is used. Zero
// batch settings fall back to DefaultBatchWidth and DefaultBatchDelay.
//
// Example:
//
//	pages, err := pagemap.Open(ctx, store.PageMapBackend())
//	if err != nil {
//	    return err
//	}
//	syncer := sync.New(sync.Config{
//	    Client:     client,
//	    Store:      store,
//	    PageMap:    pages,
//	    RootPageID: cfg.Remote.RootPageID,
//	})
func New(cfg Config) Syncer {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	width := cfg.BatchWidth
	if width <= 0 {
		width = DefaultBatchWidth
	}
	delay := cfg.BatchDelay
	if delay <= 0 {
		delay = DefaultBatchDelay
	}

	return &syncer{
		client:   cfg.Client,
		store:    cfg.Store,
		pages:    cfg.PageMap,
		rootID:   cfg.RootPageID,
		width:    width,
		delay:    delay,
		upserter: NewUpserter(cfg.Client),
		logger:   logger,
		observer: observer,
		now:      now,
	}
}

// checkPrerequisites fails fast when the pass cannot reach the remote root.
func (s *syncer) checkPrerequisites(ctx context.Context) error {
	if s.client == nil || s.rootID == "" {
		return &Error{Class: ClassPrerequisite, Err: ErrNoRemoteRoot}
	}
	if s.store == nil || s.pages == nil {
		return fmt.Errorf("sync: store and page map are required")
	}
	root, err := s.client.RetrievePage(ctx, s.rootID)
	if err != nil {
		return &Error{Class: ClassPrerequisite, Err: fmt.Errorf("%w: %v", ErrNoRemoteRoot, err)}
	}
	if root.Archived {
		return &Error{Class: ClassPrerequisite, Err: fmt.Errorf("%w: root page %s is archived", ErrNoRemoteRoot, s.rootID)}
	}
	return nil
}

// flush persists the page map, logging instead of failing the entity.
func (s *syncer) flush(ctx context.Context) {
	if err := s.pages.Flush(ctx); err != nil {
		s.logger.Printf("WARNING: Failed to flush page map: %v", err)
	}
}

func (s *syncer) finish(r *Report) *Report {
	r.Finished = s.now()
	total := r.Total()
	s.logger.Printf("%s complete: synced=%d failed=%d skipped=%d (%s)",
		r.Direction, total.Succeeded, total.Failed, total.Skipped, r.Duration().Round(time.Millisecond))
	s.observer.PassComplete(r)
	return r
}
