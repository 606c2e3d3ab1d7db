package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dbradf/evg-patch-history/pkg/patch"
	"github.com/rs/zerolog"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testOptions() []Option {
	return []Option{WithLogger(zerolog.Nop()), WithClock(fixedClock)}
}

// fakeSource serves summaries in order, optionally failing after
// failAfter items.
type fakeSource struct {
	summaries []patch.Summary
	failAfter int
	err       error
	yielded   atomic.Int32
}

func (s *fakeSource) StreamPatches(ctx context.Context, projectID string) iter.Seq2[patch.Summary, error] {
	return func(yield func(patch.Summary, error) bool) {
		for i, summary := range s.summaries {
			if s.err != nil && i == s.failAfter {
				yield(patch.Summary{}, s.err)
				return
			}
			s.yielded.Add(1)
			if !yield(summary, nil) {
				return
			}
		}
		if s.err != nil && s.failAfter >= len(s.summaries) {
			yield(patch.Summary{}, s.err)
		}
	}
}

func summary(id string, age time.Duration) patch.Summary {
	return patch.Summary{ID: id, Author: "dev", CreatedAt: testNow.Add(-age)}
}

// fakeResolver serves details from a map and records the lookups.
type fakeResolver struct {
	mu       sync.Mutex
	details  map[string]*patch.Detail
	failing  map[string]error
	panics   map[string]bool
	calls    []string
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		details: make(map[string]*patch.Detail),
		failing: make(map[string]error),
		panics:  make(map[string]bool),
	}
}

func (r *fakeResolver) FetchPatch(ctx context.Context, id string) (*patch.Detail, error) {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if n <= seen || r.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	r.mu.Lock()
	r.calls = append(r.calls, id)
	detail, ok := r.details[id]
	err := r.failing[id]
	panics := r.panics[id]
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if panics {
		panic("boom " + id)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no such patch %s", id)
	}
	return detail, nil
}

func (r *fakeResolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// detailWith builds a detail with one variant per name, each running
// the given tasks.
func detailWith(id string, alias *string, variants ...patch.VariantTasks) *patch.Detail {
	return &patch.Detail{ID: id, Author: "dev", Alias: alias, Variants: variants}
}

func alias(s string) *string { return &s }

// memoryWriter captures written records.
type memoryWriter struct {
	mu      sync.Mutex
	writes  int
	records []patch.Record
	err     error
}

func (w *memoryWriter) WriteRecords(ctx context.Context, records []patch.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes++
	if w.err != nil {
		return w.err
	}
	w.records = append(w.records, records...)
	return nil
}

var errListing = errors.New("listing unavailable")
