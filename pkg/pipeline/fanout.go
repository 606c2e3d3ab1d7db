package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbradf/evg-patch-history/pkg/patch"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrResolverPanic marks a lookup that panicked.
	ErrResolverPanic = errors.New("resolver panicked")

	// ErrNoDetail marks a lookup that returned neither a detail nor an
	// error.
	ErrNoDetail = errors.New("resolver returned no detail")
)

// Resolver looks up the detail of one patch.
type Resolver interface {
	FetchPatch(ctx context.Context, patchID string) (*patch.Detail, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, patchID string) (*patch.Detail, error)

// FetchPatch calls f.
func (f ResolverFunc) FetchPatch(ctx context.Context, patchID string) (*patch.Detail, error) {
	return f(ctx, patchID)
}

// Result is the outcome of one lookup. Exactly one of Detail and Err is
// set.
type Result struct {
	ID     string
	Detail *patch.Detail
	Err    error
}

// FanOut resolves a batch of ids concurrently.
type FanOut struct {
	resolver Resolver
	limit    int
	logger   zerolog.Logger
}

// NewFanOut creates a fan-out with at most limit lookups in flight.
// A limit <= 0 means one goroutine per id.
func NewFanOut(resolver Resolver, limit int, opts ...Option) *FanOut {
	o := buildOptions(opts)
	return &FanOut{
		resolver: resolver,
		limit:    limit,
		logger:   o.componentLogger("fanout"),
	}
}

// Resolve looks up every id and waits for all of them. Results are in
// input order. A started batch runs to completion even if ctx is
// cancelled; each lookup is bounded by the resolver's own timeouts.
func (f *FanOut) Resolve(ctx context.Context, ids []string) []Result {
	results := make([]Result, len(ids))
	ctx = context.WithoutCancel(ctx)

	var g errgroup.Group
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}

	for i, id := range ids {
		g.Go(func() error {
			results[i] = f.resolveOne(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (f *FanOut) resolveOne(ctx context.Context, id string) (res Result) {
	res.ID = id

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().
				Str("patch_id", id).
				Interface("panic", r).
				Msg("Patch lookup panicked")
			res.Detail = nil
			res.Err = fmt.Errorf("%w: %v", ErrResolverPanic, r)
		}
		if res.Err != nil {
			resolveFailuresTotal.Inc()
		}
	}()

	detail, err := f.resolver.FetchPatch(ctx, id)
	switch {
	case err != nil:
		res.Err = err
	case detail == nil:
		res.Err = fmt.Errorf("%w: %s", ErrNoDetail, id)
	default:
		res.Detail = detail
	}
	return res
}
