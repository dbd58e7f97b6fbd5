// Package sync mirrors the local object graph onto a remote page/block
// workspace and reads it back.
//
// Overview
//
// The remote has only pages and blocks, so each work becomes a small tree of
// pages under a configured root page:
//
//	Root
//	 ├── <Work title>            work envelope
//	 │    ├── Synopsis           synopsis envelope
//	 │    ├── Characters         container
//	 │    │    └── <Name>        character envelope
//	 │    ├── Settings           container
//	 │    │    └── <Name>        setting envelope
//	 │    └── Serial             container + "Serial statistics" section
//	 │         ├── <Chapter>     chapter envelope
//	 │         │    └── Episode N
//	 │         └── Episode N     chapterless episode
//	 └── Tags                    container
//	      └── <Category>         category envelope
//	           └── <Tag>         tag envelope
//
// Every record page holds one code block with the record's JSON envelope (see
// the codec package). The page map (see the pagemap package) remembers which
// page belongs to which record so repeated pushes update pages in place.
//
// Usage
//
//	pages, err := pagemap.Open(ctx, store.PageMapBackend())
//	if err != nil {
//	    return err
//	}
//
//	syncer := sync.New(sync.Config{
//	    Client:     client,
//	    Store:      store,
//	    PageMap:    pages,
//	    RootPageID: rootID,
//	})
//
//	// Push dirty records
//	report, err := syncer.Push(ctx, sync.Options{})
//
//	// Push everything
//	report, err = syncer.Push(ctx, sync.Options{All: true})
//
//	// Rebuild the local store from the remote
//	report, err = syncer.Pull(ctx)
//
// Upserts
//
// Upserter.Upsert retrieves the mapped page, restores it if archived, renames
// it if the title changed, and replaces its content blocks only when they
// differ from the new ones. Child pages are never deleted. A mapped page that
// is gone, or archived under an archived parent, is recreated. A second push
// of unchanged data performs no block mutation and no title update.
//
// A recreated page gets its whole local subtree written under it again,
// clean records included, so the mirror never keeps children under a dead
// parent. A record that fails during such a rebuild loses its page mapping
// and is marked dirty for the next push.
//
// Rate limits
//
// Siblings (characters, settings, episodes, tags) are written through
// RunBatches: at most BatchWidth requests in flight, with BatchDelay between
// groups.
//
// Error Handling
//
// The engine is resilient to individual entity failures:
//
//   - A failed entity is logged, counted in the Report and skipped
//   - Its pending descendants are counted as failed, since they have no
//     parent page
//   - Records that failed stay dirty and are retried on the next push
//   - A missing root page or rejected credential returns ErrNoRemoteRoot
//     before any work is done
//
// Concurrency
//
// A Syncer runs one pass at a time; concurrent Push and Pull calls wait for
// each other. Batch goroutines share the page map, which is safe for
// concurrent use.
package sync
