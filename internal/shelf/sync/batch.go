package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Default batch settings. The Notion API allows about three requests per
// second per integration.
const (
	DefaultBatchWidth = 3
	DefaultBatchDelay = 350 * time.Millisecond
)

// ItemError is the failure of one batch item.
type ItemError struct {
	Index int
	Err   error
}

// BatchResult collects the outcome of RunBatches.
type BatchResult struct {
	Succeeded int
	Failed    []ItemError
}

// sleep waits for d or until ctx is done. Tests replace it.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunBatches runs op over items in chunks of width. Items within a chunk run
// concurrently; chunks run one after another with delay between the end of
// one chunk and the start of the next. There is no delay after the last
// chunk.
//
// An op error is recorded for its item and never stops the batch. When ctx is
// cancelled, items not yet dispatched fail with the context error.
func RunBatches[T any](ctx context.Context, items []T, width int, delay time.Duration, op func(context.Context, T) error) BatchResult {
	if width <= 0 {
		width = DefaultBatchWidth
	}

	var (
		mu     sync.Mutex
		result BatchResult
	)
	record := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Failed = append(result.Failed, ItemError{Index: i, Err: err})
			return
		}
		result.Succeeded++
	}

	for start := 0; start < len(items); start += width {
		if start > 0 {
			if err := sleep(ctx, delay); err != nil {
				for i := start; i < len(items); i++ {
					record(i, err)
				}
				break
			}
		}
		if err := ctx.Err(); err != nil {
			for i := start; i < len(items); i++ {
				record(i, err)
			}
			break
		}

		end := min(start+width, len(items))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				record(i, op(ctx, items[i]))
				return nil
			})
		}
		_ = g.Wait()
	}

	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].Index < result.Failed[j].Index })
	return result
}
