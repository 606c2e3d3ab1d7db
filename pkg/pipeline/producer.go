package pipeline

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/dbradf/evg-patch-history/pkg/patch"
	"github.com/rs/zerolog"
)

// Source lists the patches of a project, newest first.
type Source interface {
	StreamPatches(ctx context.Context, projectID string) iter.Seq2[patch.Summary, error]
}

// Producer feeds patch ids from a Source into a Queue until the
// lookback cutoff is reached.
type Producer struct {
	source        Source
	queue         *Queue
	lookback      time.Duration
	progressEvery int
	now           func() time.Time
	logger        zerolog.Logger
}

// NewProducer creates a producer writing to queue.
func NewProducer(source Source, queue *Queue, cfg Config, opts ...Option) *Producer {
	o := buildOptions(opts)
	return &Producer{
		source:        source,
		queue:         queue,
		lookback:      cfg.Lookback,
		progressEvery: cfg.ProgressEvery,
		now:           o.now,
		logger:        o.componentLogger("producer"),
	}
}

// Run streams the listing of projectID and returns the number of ids
// sent. The first patch older than the cutoff ends the stream and is
// not forwarded. On success End is the last message sent; on a listing
// failure the queue is closed without End.
func (p *Producer) Run(ctx context.Context, projectID string) (int, error) {
	cutoff := p.now().Add(-p.lookback)
	sent := 0

	p.logger.Info().
		Str("project", projectID).
		Time("cutoff", cutoff).
		Msg("Listing patches")

	for summary, err := range p.source.StreamPatches(ctx, projectID) {
		if err != nil {
			p.queue.Close()
			return sent, fmt.Errorf("list patches for %s: %w", projectID, err)
		}

		if summary.CreatedAt.Before(cutoff) {
			p.logger.Debug().
				Str("patch_id", summary.ID).
				Time("created_at", summary.CreatedAt).
				Msg("Reached lookback cutoff")
			break
		}

		if err := p.queue.Send(Item(summary.ID)); err != nil {
			p.queue.Close()
			return sent, fmt.Errorf("queue patch %s: %w", summary.ID, err)
		}
		sent++
		patchesDiscoveredTotal.Inc()

		if p.progressEvery > 0 && sent%p.progressEvery == 0 {
			p.logger.Info().
				Int("patches", sent).
				Time("created_at", summary.CreatedAt).
				Msg("Discovered patches")
		}
	}

	if err := p.queue.Send(End()); err != nil {
		p.queue.Close()
		return sent, fmt.Errorf("end stream: %w", err)
	}

	p.logger.Info().Int("patches", sent).Msg("Out of patches")
	return sent, nil
}
