package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CollectorStats counts what the collector processed.
type CollectorStats struct {
	Rounds   int
	Resolved int
	Failed   int
	Excluded int
	Records  int
}

// Collector groups ids from a Queue into batches, resolves each batch
// and appends the resulting records to a Sink.
type Collector struct {
	queue     *Queue
	fanout    *FanOut
	sink      *Sink
	batchSize int
	logger    zerolog.Logger
}

// NewCollector creates a collector draining queue.
func NewCollector(queue *Queue, fanout *FanOut, sink *Sink, cfg Config, opts ...Option) *Collector {
	o := buildOptions(opts)
	return &Collector{
		queue:     queue,
		fanout:    fanout,
		sink:      sink,
		batchSize: cfg.BatchSize,
		logger:    o.componentLogger("collector"),
	}
}

// Run consumes the queue until End. A full buffer is resolved before the
// next id is read; a partial buffer is resolved when End arrives. Rounds
// never overlap, and no round starts after ctx is done.
func (c *Collector) Run(ctx context.Context) (CollectorStats, error) {
	var stats CollectorStats
	if c.batchSize < 1 {
		return stats, fmt.Errorf("%w: batch size must be at least 1 (got %d)", ErrInvalidConfig, c.batchSize)
	}

	buffer := make([]string, 0, c.batchSize)
	for {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("collector stopped after %d rounds: %w", stats.Rounds, err)
		}

		msg, err := c.queue.Receive(ctx)
		if err != nil {
			return stats, fmt.Errorf("receive: %w", err)
		}

		if msg.IsEnd() {
			if len(buffer) > 0 {
				if err := c.drain(ctx, buffer, &stats); err != nil {
					return stats, err
				}
			}
			c.logger.Info().
				Int("rounds", stats.Rounds).
				Int("records", stats.Records).
				Msg("Collector finished")
			return stats, nil
		}

		buffer = append(buffer, msg.ID)
		if len(buffer) == c.batchSize {
			if err := c.drain(ctx, buffer, &stats); err != nil {
				return stats, err
			}
			buffer = buffer[:0]
		}
	}
}

// drain resolves one round and appends its records. A round is not
// started once ctx is done; a started round runs to completion.
func (c *Collector) drain(ctx context.Context, ids []string, stats *CollectorStats) error {
	round := stats.Rounds + 1
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("batch %d not started: %w", round, err)
	}
	start := time.Now()

	c.logger.Info().
		Int("batch", round).
		Int("size", len(ids)).
		Msg("Sending batch")

	results := c.fanout.Resolve(ctx, ids)
	records := Transform(results, c.logger)
	if err := c.sink.Append(records...); err != nil {
		return fmt.Errorf("append batch %d: %w", round, err)
	}

	t := tally(results)
	stats.Rounds = round
	stats.Resolved += t.resolved
	stats.Failed += t.failed
	stats.Excluded += t.excluded
	stats.Records += len(records)

	batchesTotal.Inc()
	batchDuration.Observe(time.Since(start).Seconds())
	patchesExcludedTotal.Add(float64(t.excluded))
	recordsTotal.Add(float64(len(records)))

	c.logger.Info().
		Int("batch", round).
		Int("records", len(records)).
		Int("failed", t.failed).
		Dur("duration", time.Since(start)).
		Msg("Batch completed")
	return nil
}
