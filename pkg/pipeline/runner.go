package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Summary describes a finished run.
type Summary struct {
	Discovered int
	Rounds     int
	Resolved   int
	Failed     int
	Excluded   int
	Records    int
	Duration   time.Duration
}

// Pipeline wires a Producer and a Collector around one Queue and one
// Sink. A Pipeline runs once.
type Pipeline struct {
	config    Config
	queue     *Queue
	sink      *Sink
	producer  *Producer
	collector *Collector
	writer    Writer
	logger    zerolog.Logger
}

// New validates cfg and builds a pipeline reading from source,
// resolving through resolver and writing through writer.
func New(cfg Config, source Source, resolver Resolver, writer Writer, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil || resolver == nil || writer == nil {
		return nil, fmt.Errorf("%w: source, resolver and writer are required", ErrInvalidConfig)
	}

	o := buildOptions(opts)
	queue := NewQueue()
	sink := NewSink()
	fanout := NewFanOut(resolver, cfg.concurrency(), opts...)

	return &Pipeline{
		config:    cfg,
		queue:     queue,
		sink:      sink,
		producer:  NewProducer(source, queue, cfg, opts...),
		collector: NewCollector(queue, fanout, sink, cfg, opts...),
		writer:    writer,
		logger:    o.componentLogger("pipeline"),
	}, nil
}

// Run executes the producer and the collector concurrently, then writes
// the accumulated records. Nothing is written if either task fails.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var summary Summary

	p.logger.Info().
		Str("project", p.config.ProjectID).
		Dur("lookback", p.config.Lookback).
		Int("batch_size", p.config.BatchSize).
		Msg("Starting export")

	g, gctx := errgroup.WithContext(ctx)

	var producerErr error
	g.Go(func() error {
		summary.Discovered, producerErr = p.producer.Run(gctx, p.config.ProjectID)
		return producerErr
	})

	var stats CollectorStats
	var collectorErr error
	g.Go(func() error {
		stats, collectorErr = p.collector.Run(gctx)
		return collectorErr
	})

	if err := g.Wait(); err != nil {
		summary.Duration = time.Since(start)
		// The collector fails with ErrQueueClosed whenever the producer
		// fails; report the cause.
		if producerErr != nil && (collectorErr == nil || errors.Is(collectorErr, ErrQueueClosed) || errors.Is(collectorErr, context.Canceled)) {
			return summary, producerErr
		}
		return summary, err
	}

	summary.Rounds = stats.Rounds
	summary.Resolved = stats.Resolved
	summary.Failed = stats.Failed
	summary.Excluded = stats.Excluded
	summary.Records = stats.Records

	if err := p.sink.Flush(ctx, p.writer); err != nil {
		summary.Duration = time.Since(start)
		return summary, fmt.Errorf("write records: %w", err)
	}

	summary.Duration = time.Since(start)
	p.logger.Info().
		Int("discovered", summary.Discovered).
		Int("rounds", summary.Rounds).
		Int("failed", summary.Failed).
		Int("excluded", summary.Excluded).
		Int("records", summary.Records).
		Dur("duration", summary.Duration).
		Msg("Export complete")

	return summary, nil
}
