package pagination

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/dbradf/evg-patch-history/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "evg_pages_fetched_total",
	Help: "Total listing pages fetched by outcome",
}, []string{"outcome"})

// Config holds walker configuration.
type Config struct {
	// MaxPages stops the walk after this many pages (0 = unlimited).
	MaxPages int

	// ProgressEvery logs progress every N pages (0 disables).
	ProgressEvery int
}

// DefaultConfig returns the default walker configuration.
func DefaultConfig() Config {
	return Config{
		MaxPages:      0,
		ProgressEvery: 10,
	}
}

// Page is one fetched page of a listing.
type Page[T any] struct {
	Items []T

	// Next is the URL of the following page, "" on the last page.
	Next string
}

// PageFetcher fetches a single page of a listing.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, pageURL string) (Page[T], error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc[T any] func(ctx context.Context, pageURL string) (Page[T], error)

// FetchPage calls f.
func (f PageFetcherFunc[T]) FetchPage(ctx context.Context, pageURL string) (Page[T], error) {
	return f(ctx, pageURL)
}

// Walker follows next links across the pages of a listing.
type Walker[T any] struct {
	fetcher PageFetcher[T]
	config  Config
	logger  zerolog.Logger
}

// NewWalker creates a new walker.
func NewWalker[T any](fetcher PageFetcher[T], config Config) *Walker[T] {
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}
	return &Walker[T]{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("pagination"),
	}
}

// Items returns the listing starting at firstURL as a lazy sequence.
// The sequence is single use.
func (w *Walker[T]) Items(ctx context.Context, firstURL string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		start := time.Now()
		pageURL := firstURL
		pages, items := 0, 0

		for pageURL != "" {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}

			page, err := w.fetcher.FetchPage(ctx, pageURL)
			if err != nil {
				pagesFetchedTotal.WithLabelValues("error").Inc()
				w.logger.Error().
					Err(err).
					Int("page", pages+1).
					Msg("Page fetch failed")
				yield(zero, fmt.Errorf("fetch page %d: %w", pages+1, err))
				return
			}
			pagesFetchedTotal.WithLabelValues("ok").Inc()
			pages++

			for _, item := range page.Items {
				items++
				if !yield(item, nil) {
					return
				}
			}

			if w.config.ProgressEvery > 0 && pages%w.config.ProgressEvery == 0 {
				w.logger.Info().
					Int("pages", pages).
					Int("items", items).
					Dur("elapsed", time.Since(start)).
					Msg("Listing progress")
			}

			if page.Next == pageURL {
				yield(zero, fmt.Errorf("page %d links to itself: %s", pages, pageURL))
				return
			}
			if w.config.MaxPages > 0 && pages >= w.config.MaxPages {
				w.logger.Warn().Int("max_pages", w.config.MaxPages).Msg("Page limit reached")
				return
			}
			pageURL = page.Next
		}

		w.logger.Debug().
			Int("pages", pages).
			Int("items", items).
			Dur("duration", time.Since(start)).
			Msg("Listing exhausted")
	}
}
