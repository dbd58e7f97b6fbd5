package sync

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// Direction names a sync pass.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// Counts tallies entity outcomes for one kind.
type Counts struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Report summarizes a pass. It is safe for concurrent use while the pass
// runs.
type Report struct {
	Direction Direction `json:"direction"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	DryRun    bool      `json:"dry_run,omitempty"`

	mu     sync.Mutex
	counts map[schema.Kind]*Counts
	errs   []error
}

func newReport(dir Direction, now time.Time) *Report {
	return &Report{
		Direction: dir,
		Started:   now,
		counts:    make(map[schema.Kind]*Counts),
	}
}

func (r *Report) entry(kind schema.Kind) *Counts {
	c, ok := r.counts[kind]
	if !ok {
		c = &Counts{}
		r.counts[kind] = c
	}
	return c
}

func (r *Report) succeed(kind schema.Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(kind).Succeeded++
}

func (r *Report) skip(kind schema.Kind, n int) {
	if n == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(kind).Skipped += n
}

func (r *Report) fail(kind schema.Kind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(kind).Failed++
	r.errs = append(r.errs, err)
}

// Counts returns a copy of the tally for one kind.
func (r *Report) Counts(kind schema.Kind) Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counts[kind]; ok {
		return *c
	}
	return Counts{}
}

// Total sums the tallies of every kind.
func (r *Report) Total() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total Counts
	for _, c := range r.counts {
		total.Succeeded += c.Succeeded
		total.Failed += c.Failed
		total.Skipped += c.Skipped
	}
	return total
}

// Errors returns every per-entity failure recorded during the pass.
func (r *Report) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// Duration is the wall time of the pass.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// String renders a one-line summary per kind, in dependency order.
func (r *Report) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]schema.Kind, 0, len(r.counts))
	for k := range r.counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kindRank(kinds[i]) < kindRank(kinds[j]) })

	var sb strings.Builder
	for _, k := range kinds {
		c := r.counts[k]
		fmt.Fprintf(&sb, "%s: %d synced, %d failed, %d skipped\n", k, c.Succeeded, c.Failed, c.Skipped)
	}
	return sb.String()
}

func kindRank(k schema.Kind) int {
	for i, known := range schema.Kinds {
		if k == known {
			return i
		}
	}
	return len(schema.Kinds)
}

// Observer receives progress events during a pass. Implementations must be
// safe for concurrent use; EntitySynced is called from batch goroutines.
type Observer interface {
	PassStarted(dir Direction)
	EntitySynced(kind schema.Kind, id, pageID string, err error)
	PassComplete(r *Report)
}

type nopObserver struct{}

func (nopObserver) PassStarted(Direction)                           {}
func (nopObserver) EntitySynced(schema.Kind, string, string, error) {}
func (nopObserver) PassComplete(*Report)                            {}
